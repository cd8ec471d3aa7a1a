package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// searchTopic 全部搜索事件共用的 topic，按 event_type 元数据过滤
const searchTopic = "optsched.search"

// EventBus 基于 watermill GoChannel 的进程内事件总线（对外导出）
// 所有事件发布到同一 topic，发布等待订阅者确认，订阅者按发布顺序收到事件
type EventBus struct {
	pubsub    *gochannel.GoChannel
	published int64 // atomic
	closed    int32 // atomic
}

// NewEventBus 创建事件总线
func NewEventBus(debug, trace bool) *EventBus {
	logger := watermill.NewStdLogger(debug, trace)
	return &EventBus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            256,
				Persistent:                     false,
				BlockPublishUntilSubscriberAck: true,
			},
			logger,
		),
	}
}

// Publish 发布事件
func (b *EventBus) Publish(event *SearchEvent) error {
	if atomic.LoadInt32(&b.closed) == 1 {
		return fmt.Errorf("事件总线已关闭")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("run_id", event.RunID)
	msg.Metadata.Set("timestamp", event.Timestamp.Format(time.RFC3339Nano))

	if err := b.pubsub.Publish(searchTopic, msg); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	atomic.AddInt64(&b.published, 1)
	return nil
}

// Emit 发布事件，失败只记录日志，用作搜索过程中的回调
func (b *EventBus) Emit(event *SearchEvent) {
	if err := b.Publish(event); err != nil {
		log.Printf("⚠️ [EventBus] 发布事件失败: Type=%s, Error=%v", event.Type, err)
	}
}

// Subscribe 订阅指定类型的事件，不传类型时订阅全部（对外导出）
// ctx 结束后返回的通道关闭
func (b *EventBus) Subscribe(ctx context.Context, types ...EventType) (<-chan *SearchEvent, error) {
	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[string(t)] = true
	}

	messages, err := b.pubsub.Subscribe(ctx, searchTopic)
	if err != nil {
		return nil, fmt.Errorf("订阅事件失败: %w", err)
	}

	out := make(chan *SearchEvent, 64)
	go func() {
		defer close(out)
		for msg := range messages {
			// 收到即确认，发布方只等待消息进入本订阅者
			msg.Ack()
			if len(wanted) > 0 && !wanted[msg.Metadata.Get("event_type")] {
				continue
			}
			var event SearchEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.Printf("⚠️ [EventBus] 反序列化事件失败: MessageID=%s, Error=%v", msg.UUID, err)
				continue
			}
			select {
			case out <- &event:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// Published 已发布事件数
func (b *EventBus) Published() int64 {
	return atomic.LoadInt64(&b.published)
}

// Close 关闭事件总线
func (b *EventBus) Close() error {
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		return nil
	}
	if err := b.pubsub.Close(); err != nil {
		return fmt.Errorf("关闭事件总线失败: %w", err)
	}
	return nil
}
