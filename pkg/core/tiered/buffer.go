package tiered

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/LENAX/optsched/pkg/core/schedule"
)

// ErrBufferClosed 缓冲区已关闭（对外导出）
var ErrBufferClosed = errors.New("工作缓冲区已关闭")

// WorkItem 待搜索的部分调度（对外导出）
type WorkItem struct {
	Schedule *schedule.Schedule
	Ready    *schedule.ReadySet
	Tier     int
}

// WorkBuffer 有界工作缓冲区（对外导出）
// Push 在缓冲区满时阻塞，只用于投递根工作项；工作者投递子工作项用 TryPush，
// 缓冲区满时由工作者自己处理该工作项（见 Coordinator.process）。
// Pop 在缓冲区空时阻塞，直到有新工作或所有工作者空闲（搜索耗尽）
type WorkBuffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []WorkItem
	capacity int
	active   int // 已出队但未 Done 的工作项
	closed   bool

	threshold    float64
	backpressure int32 // atomic，0=正常，1=背压

	// 统计
	totalIn  int64 // atomic，总入队数
	totalOut int64 // atomic，总出队数
	inline   int64 // atomic，缓冲区满时由工作者直接处理的数量

	onBackpressure        func(usage float64, length int)
	onBackpressureRelieve func(usage float64, length int)
}

// NewWorkBuffer 创建工作缓冲区
func NewWorkBuffer(capacity int, threshold float64) *WorkBuffer {
	if capacity <= 0 {
		capacity = 2
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	b := &WorkBuffer{
		items:     make([]WorkItem, 0, capacity),
		capacity:  capacity,
		threshold: threshold,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// SetBackpressureCallback 设置背压触发回调
func (b *WorkBuffer) SetBackpressureCallback(callback func(usage float64, length int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onBackpressure = callback
}

// SetBackpressureRelieveCallback 设置背压解除回调
func (b *WorkBuffer) SetBackpressureRelieveCallback(callback func(usage float64, length int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onBackpressureRelieve = callback
}

// CloseOnDone ctx 结束时关闭缓冲区，唤醒所有阻塞者
func (b *WorkBuffer) CloseOnDone(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, b.Close)
}

// Push 推入工作项（阻塞）
func (b *WorkBuffer) Push(item WorkItem) error {
	b.mu.Lock()
	for len(b.items) >= b.capacity && !b.closed {
		b.cond.Wait()
	}
	if b.closed {
		b.mu.Unlock()
		return ErrBufferClosed
	}
	b.enqueue(item)
	b.mu.Unlock()
	return nil
}

// TryPush 推入工作项（非阻塞）
// 返回 false 表示缓冲区已满或已关闭，调用方应自行处理该工作项
func (b *WorkBuffer) TryPush(item WorkItem) bool {
	b.mu.Lock()
	if b.closed || len(b.items) >= b.capacity {
		b.mu.Unlock()
		atomic.AddInt64(&b.inline, 1)
		return false
	}
	b.enqueue(item)
	b.mu.Unlock()
	return true
}

// enqueue 调用方持有锁
func (b *WorkBuffer) enqueue(item WorkItem) {
	b.items = append(b.items, item)
	atomic.AddInt64(&b.totalIn, 1)
	b.cond.Broadcast()
	b.checkBackpressure()
}

// Pop 弹出工作项（阻塞）
// 返回 false 表示搜索已耗尽（缓冲区空且没有在途工作）或缓冲区已关闭
func (b *WorkBuffer) Pop() (WorkItem, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.items) == 0 && b.active > 0 && !b.closed {
		b.cond.Wait()
	}
	if b.closed || len(b.items) == 0 {
		b.cond.Broadcast()
		return WorkItem{}, false
	}
	item := b.items[0]
	b.items[0] = WorkItem{}
	b.items = b.items[1:]
	b.active++
	atomic.AddInt64(&b.totalOut, 1)
	b.cond.Broadcast()
	b.checkBackpressure()
	return item, true
}

// Done 标记一个出队的工作项处理完毕
func (b *WorkBuffer) Done() {
	b.mu.Lock()
	b.active--
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Close 关闭缓冲区，唤醒所有阻塞的 Push/Pop
func (b *WorkBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Len 当前缓冲区长度
func (b *WorkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Cap 缓冲区容量
func (b *WorkBuffer) Cap() int {
	return b.capacity
}

// IsBackpressure 是否处于背压状态
func (b *WorkBuffer) IsBackpressure() bool {
	return atomic.LoadInt32(&b.backpressure) == 1
}

// checkBackpressure 检查背压状态，调用方持有锁
func (b *WorkBuffer) checkBackpressure() {
	length := len(b.items)
	usage := float64(length) / float64(b.capacity)

	if usage >= b.threshold {
		if atomic.CompareAndSwapInt32(&b.backpressure, 0, 1) && b.onBackpressure != nil {
			go b.onBackpressure(usage, length)
		}
	} else if usage < b.threshold*0.5 {
		// 使用率降到阈值一半以下时解除背压
		if atomic.CompareAndSwapInt32(&b.backpressure, 1, 0) && b.onBackpressureRelieve != nil {
			go b.onBackpressureRelieve(usage, length)
		}
	}
}

// Stats 获取统计信息
func (b *WorkBuffer) Stats() (totalIn, totalOut, inline int64) {
	return atomic.LoadInt64(&b.totalIn),
		atomic.LoadInt64(&b.totalOut),
		atomic.LoadInt64(&b.inline)
}
