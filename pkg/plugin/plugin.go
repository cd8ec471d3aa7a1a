// Package plugin 提供订阅求解事件的通知插件
package plugin

import (
	"fmt"

	"github.com/LENAX/optsched/pkg/core/realtime"
)

// Plugin 插件基础接口（对外导出）
type Plugin interface {
	// Name 插件名称（对外导出）
	Name() string
	// Init 初始化插件（对外导出）
	Init(params map[string]string) error
	// Execute 执行插件逻辑（对外导出）
	Execute(data interface{}) error
}

// NotifyData 传递给插件的数据（对外导出）
type NotifyData struct {
	Event    realtime.EventType     `json:"event"`              // 触发事件
	RunID    string                 `json:"run_id"`             // 求解运行ID
	Instance string                 `json:"instance,omitempty"` // 引擎实例名
	Makespan int                    `json:"makespan,omitempty"` // 完成时的 makespan
	Error    string                 `json:"error,omitempty"`    // 失败原因
	Data     map[string]interface{} `json:"data,omitempty"`     // 原始事件负载
}

// FromEvent 从总线事件构造插件数据
// 经过总线的负载已是 JSON 解码后的 map
func FromEvent(event *realtime.SearchEvent) NotifyData {
	data := NotifyData{
		Event:    event.Type,
		RunID:    event.RunID,
		Instance: event.Metadata["instance"],
	}
	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		return data
	}
	data.Data = payload
	if v, ok := payload["makespan"].(float64); ok {
		data.Makespan = int(v)
	}
	if v, ok := payload["message"].(string); ok {
		data.Error = v
	}
	return data
}

// New 按类型创建插件，name 为空时使用类型名
func New(pluginType, name string) (Plugin, error) {
	var p Plugin
	switch pluginType {
	case "webhook":
		p = NewWebhookPlugin(name)
	case "email":
		p = NewEmailPlugin(name)
	default:
		return nil, fmt.Errorf("不支持的插件类型: %s", pluginType)
	}
	return p, nil
}
