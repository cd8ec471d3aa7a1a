package algorithm

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/LENAX/optsched/pkg/core/schedule"
)

// Communicator 搜索实例之间共享的最优解（对外导出）
// 发布出去的调度都是克隆且不再修改；只有 makespan 严格更小的完整调度才会通过 CAS 替换当前值
type Communicator struct {
	best         atomic.Pointer[schedule.Schedule]
	improvements int64 // atomic

	mu        sync.RWMutex
	listeners []func(best *schedule.Schedule)
}

// NewCommunicator 创建共享最优解（对外导出），seed 为 nil 时 makespan 视为无穷大
func NewCommunicator(seed *schedule.Schedule) *Communicator {
	c := &Communicator{}
	if seed != nil {
		c.best.Store(seed.Clone())
	}
	return c
}

// OnImprove 注册最优解改进回调，回调在发布者的 goroutine 中同步执行
func (c *Communicator) OnImprove(listener func(best *schedule.Schedule)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Best 当前最优调度（只读），尚无解时为 nil
func (c *Communicator) Best() *schedule.Schedule {
	return c.best.Load()
}

// BestMakespan 当前最优 makespan，尚无解时为 math.MaxInt
func (c *Communicator) BestMakespan() int {
	if b := c.best.Load(); b != nil {
		return b.Makespan()
	}
	return math.MaxInt
}

// Offer 提交一个完整调度，严格更优时替换并返回 true
func (c *Communicator) Offer(s *schedule.Schedule) bool {
	if s == nil || !s.Complete() {
		return false
	}
	makespan := s.Makespan()
	var candidate *schedule.Schedule
	for {
		current := c.best.Load()
		if current != nil && current.Makespan() <= makespan {
			return false
		}
		if candidate == nil {
			candidate = s.Clone()
		}
		if c.best.CompareAndSwap(current, candidate) {
			atomic.AddInt64(&c.improvements, 1)
			c.notify(candidate)
			return true
		}
	}
}

// Improvements 成功替换的次数
func (c *Communicator) Improvements() int64 {
	return atomic.LoadInt64(&c.improvements)
}

func (c *Communicator) notify(best *schedule.Schedule) {
	c.mu.RLock()
	listeners := c.listeners
	c.mu.RUnlock()
	for _, l := range listeners {
		l(best)
	}
}
