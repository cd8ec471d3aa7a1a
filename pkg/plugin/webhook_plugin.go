package plugin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookPlugin 以 JSON POST 推送求解事件（对外导出）
type WebhookPlugin struct {
	name    string
	url     string
	token   string
	client  *http.Client
	enabled bool
}

// NewWebhookPlugin 创建 Webhook 插件（对外导出）
func NewWebhookPlugin(name string) Plugin {
	if name == "" {
		name = "webhook"
	}
	return &WebhookPlugin{name: name}
}

// Name 插件名称（实现Plugin接口）
func (w *WebhookPlugin) Name() string {
	return w.name
}

// Init 初始化插件（实现Plugin接口）
// 参数: url 必填；timeout 可选（Go duration）；token 可选，作为 Bearer 认证头
func (w *WebhookPlugin) Init(params map[string]string) error {
	w.url = params["url"]
	if w.url == "" {
		return fmt.Errorf("url参数不能为空")
	}

	timeout := defaultWebhookTimeout
	if raw := params["timeout"]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return fmt.Errorf("timeout参数格式错误: %s", raw)
		}
		timeout = d
	}
	w.token = params["token"]
	w.client = &http.Client{Timeout: timeout}
	w.enabled = true
	log.Printf("✅ [WebhookPlugin] 初始化完成: Name=%s, URL=%s, Timeout=%s", w.name, w.url, timeout)
	return nil
}

// Execute 推送通知（实现Plugin接口）
func (w *WebhookPlugin) Execute(data interface{}) error {
	if !w.enabled {
		return fmt.Errorf("webhook插件未初始化")
	}
	notify, ok := data.(NotifyData)
	if !ok {
		return fmt.Errorf("插件数据类型错误")
	}

	body, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("序列化通知失败: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-OptSched-Event", string(notify.Event))
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook请求失败: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook返回异常状态码: %d", resp.StatusCode)
	}
	return nil
}
