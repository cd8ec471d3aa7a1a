package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/LENAX/optsched/pkg/api/dto"
	"github.com/LENAX/optsched/pkg/core/realtime"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// EventHandler 求解事件推送处理器（WebSocket）
type EventHandler struct {
	bus      *realtime.EventBus
	upgrader websocket.Upgrader
}

// NewEventHandler 创建EventHandler
func NewEventHandler(bus *realtime.EventBus) *EventHandler {
	return &EventHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Stream 订阅求解事件
// GET /api/v1/events?types=best.improved,search.finished&run_id=xxx
func (h *EventHandler) Stream(c *gin.Context) {
	if h.bus == nil {
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, "事件总线未配置"))
		return
	}
	var types []realtime.EventType
	if raw := c.Query("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, realtime.EventType(t))
			}
		}
	}
	runID := c.Query("run_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ [EventStream] WebSocket 升级失败: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := h.bus.Subscribe(ctx, types...)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()), time.Now().Add(writeWait))
		return
	}
	// 订阅完成后才通知客户端，之后发布的事件不会丢失
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(dto.NewSuccessResponse(map[string]string{"status": "subscribed"})); err != nil {
		return
	}

	// 读循环只用于感知客户端断开
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("⚠️ [EventStream] 读取失败: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if runID != "" && event.RunID != runID {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
