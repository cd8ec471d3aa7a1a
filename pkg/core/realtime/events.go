// Package realtime 提供求解过程的实时进度事件与事件总线
package realtime

import (
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	// 求解生命周期事件
	EventSearchStarted  EventType = "search.started"  // 求解开始
	EventSearchFinished EventType = "search.finished" // 求解完成
	EventSearchFailed   EventType = "search.failed"   // 求解失败

	// 搜索过程事件
	EventBestImproved   EventType = "best.improved"   // 找到更优调度
	EventTierDispatched EventType = "tier.dispatched" // 工作项进入下一层

	// 背压事件
	EventBackpressure         EventType = "backpressure.triggered" // 背压触发
	EventBackpressureRelieved EventType = "backpressure.relieved"  // 背压解除
)

// AllEventTypes 全部事件类型
var AllEventTypes = []EventType{
	EventSearchStarted,
	EventSearchFinished,
	EventSearchFailed,
	EventBestImproved,
	EventTierDispatched,
	EventBackpressure,
	EventBackpressureRelieved,
}

// SearchEvent 求解事件基础结构
type SearchEvent struct {
	ID        string            `json:"id"`        // 事件ID（UUID）
	Type      EventType         `json:"type"`      // 事件类型
	RunID     string            `json:"run_id"`    // 关联求解运行ID
	Timestamp time.Time         `json:"timestamp"` // 事件时间
	Payload   interface{}       `json:"payload"`   // 事件负载
	Metadata  map[string]string `json:"metadata"`  // 元数据
}

// NewSearchEvent 创建求解事件
func NewSearchEvent(eventType EventType, runID string, payload interface{}) *SearchEvent {
	return &SearchEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now(),
		Payload:   payload,
		Metadata:  make(map[string]string),
	}
}

// WithMetadata 添加元数据
func (e *SearchEvent) WithMetadata(key, value string) *SearchEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// SearchStartedPayload 求解开始事件负载
type SearchStartedPayload struct {
	Graph          string `json:"graph"`           // 图名称
	Nodes          int    `json:"nodes"`           // 节点数
	Processors     int    `json:"processors"`      // 处理器数
	Threads        int    `json:"threads"`         // 工作协程数
	GreedyMakespan int    `json:"greedy_makespan"` // 贪心初始上界
}

// BestImprovedPayload 最优解改进事件负载
type BestImprovedPayload struct {
	Makespan int `json:"makespan"` // 新的最优 makespan
}

// TierPayload 分层派发事件负载
type TierPayload struct {
	Tier  int `json:"tier"`  // 目标层
	Depth int `json:"depth"` // 工作项已放置任务数
}

// BackpressurePayload 背压事件负载
type BackpressurePayload struct {
	BufferUsage float64 `json:"buffer_usage"` // 缓冲区使用率
	QueueLength int     `json:"queue_length"` // 队列长度
	Threshold   float64 `json:"threshold"`    // 触发阈值
}

// SearchFinishedPayload 求解完成事件负载
type SearchFinishedPayload struct {
	Makespan   int   `json:"makespan"`    // 最优 makespan
	Expanded   int64 `json:"expanded"`    // 展开状态数
	DurationMs int64 `json:"duration_ms"` // 耗时（毫秒）
	FromCache  bool  `json:"from_cache"`  // 是否命中缓存
}

// ErrorPayload 错误事件负载
type ErrorPayload struct {
	Message string `json:"message"` // 错误消息
}

// EventHandler 事件处理器函数类型
type EventHandler func(event *SearchEvent)
