// Package tiered 提供多协程分层搜索协调器：把搜索树切分为部分调度工作项，分发给共享最优解的工作者
package tiered

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/LENAX/optsched/pkg/core/algorithm"
	"github.com/LENAX/optsched/pkg/core/graph"
	"github.com/LENAX/optsched/pkg/core/realtime"
	"github.com/LENAX/optsched/pkg/core/schedule"
)

// Tier 一层搜索配置（对外导出）
// Depth 为该层在工作项之下最多放置的任务数，超过后交给下一层；0 表示不限制
type Tier struct {
	Algorithm string `yaml:"algorithm" json:"algorithm"`
	Depth     int    `yaml:"depth" json:"depth"`
}

// DefaultTiers 默认分层：第 0 层浅展开两步，第 1 层完整 DFS
func DefaultTiers() []Tier {
	return []Tier{
		{Algorithm: algorithm.NameDFS, Depth: 2},
		{Algorithm: algorithm.NameDFS, Depth: 0},
	}
}

// Factory 按层创建搜索算法实例（对外导出）
type Factory func(tier int, comm *algorithm.Communicator) algorithm.BoundableAlgorithm

// NewFactory 按分层配置创建工厂，提前校验算法名称
func NewFactory(g *graph.Graph, tiers []Tier, opts algorithm.Options) (Factory, error) {
	for i, t := range tiers {
		if _, err := algorithm.New(t.Algorithm, g, algorithm.NewCommunicator(nil), opts); err != nil {
			return nil, fmt.Errorf("第 %d 层配置无效: %w", i, err)
		}
	}
	return func(tier int, comm *algorithm.Communicator) algorithm.BoundableAlgorithm {
		alg, _ := algorithm.New(tiers[tier].Algorithm, g, comm, opts)
		return alg
	}, nil
}

// Option 协调器选项
type Option func(*Coordinator)

// WithSeed 预置初始最优解（通常来自贪心）
func WithSeed(seed *schedule.Schedule) Option {
	return func(c *Coordinator) {
		c.seed = seed
	}
}

// WithTiers 设置分层配置
func WithTiers(tiers []Tier) Option {
	return func(c *Coordinator) {
		c.tiers = tiers
	}
}

// WithEventSink 设置进度事件接收者
func WithEventSink(runID string, sink func(*realtime.SearchEvent)) Option {
	return func(c *Coordinator) {
		c.runID = runID
		c.sink = sink
	}
}

// WithBackpressureThreshold 设置工作缓冲区背压阈值
func WithBackpressureThreshold(threshold float64) Option {
	return func(c *Coordinator) {
		c.threshold = threshold
	}
}

// Coordinator 分层搜索协调器（对外导出）
type Coordinator struct {
	threads   int
	factory   Factory
	tiers     []Tier
	seed      *schedule.Schedule
	threshold float64
	runID     string
	sink      func(*realtime.SearchEvent)

	comm       *algorithm.Communicator
	stats      algorithm.Stats
	dispatched []int32 // atomic，每层是否已派发过工作项
	inline     int64   // atomic
}

// New 创建协调器（对外导出）
func New(threads int, factory Factory, opts ...Option) (*Coordinator, error) {
	if threads <= 0 {
		return nil, fmt.Errorf("工作协程数必须大于 0, 实际: %d", threads)
	}
	if factory == nil {
		return nil, errors.New("算法工厂不能为空")
	}
	c := &Coordinator{
		threads:   threads,
		factory:   factory,
		threshold: 0.8,
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.tiers) == 0 {
		c.tiers = DefaultTiers()
	}
	for i, t := range c.tiers {
		if t.Depth < 0 {
			return nil, fmt.Errorf("第 %d 层深度不能为负数: %d", i, t.Depth)
		}
	}
	c.dispatched = make([]int32, len(c.tiers))
	c.comm = algorithm.NewCommunicator(c.seed)
	c.comm.OnImprove(func(best *schedule.Schedule) {
		c.emit(realtime.EventBestImproved, &realtime.BestImprovedPayload{Makespan: best.Makespan()})
	})
	return c, nil
}

// Communicator 共享最优解
func (c *Coordinator) Communicator() *algorithm.Communicator {
	return c.comm
}

// CurrentBest 当前全局最优调度，Run 正常结束后即为最优解
func (c *Coordinator) CurrentBest() *schedule.Schedule {
	return c.comm.Best()
}

// Stats 汇总的搜索统计
func (c *Coordinator) Stats() algorithm.Stats {
	return c.stats.Snapshot()
}

// Inline 缓冲区满时由工作者直接处理的工作项数
func (c *Coordinator) Inline() int64 {
	return atomic.LoadInt64(&c.inline)
}

// Solve 从空调度开始搜索并返回最优调度（对外导出）
func (c *Coordinator) Solve(ctx context.Context, g *graph.Graph, processors int) (*schedule.Schedule, error) {
	s, err := schedule.NewSchedule(g, processors)
	if err != nil {
		return nil, err
	}
	if err := c.Run(ctx, WorkItem{Schedule: s, Ready: schedule.NewReadySet(g)}); err != nil {
		return nil, err
	}
	best := c.CurrentBest()
	if best == nil {
		return nil, algorithm.ErrNoSchedule
	}
	return best, nil
}

// Run 以 root 为根运行分层搜索，直到工作耗尽、出错或 ctx 结束（对外导出）
// 出错或取消时在途的部分调度直接丢弃
func (c *Coordinator) Run(ctx context.Context, root WorkItem) error {
	if root.Tier < 0 || root.Tier >= len(c.tiers) {
		root.Tier = 0
	}
	for i := range c.dispatched {
		atomic.StoreInt32(&c.dispatched[i], 0)
	}
	buffer := NewWorkBuffer(2*c.threads, c.threshold)
	buffer.SetBackpressureCallback(func(usage float64, length int) {
		c.emit(realtime.EventBackpressure, &realtime.BackpressurePayload{
			BufferUsage: usage, QueueLength: length, Threshold: c.threshold,
		})
	})
	buffer.SetBackpressureRelieveCallback(func(usage float64, length int) {
		c.emit(realtime.EventBackpressureRelieved, &realtime.BackpressurePayload{
			BufferUsage: usage, QueueLength: length, Threshold: c.threshold,
		})
	})
	if err := buffer.Push(root); err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	stop := buffer.CloseOnDone(egCtx)
	defer stop()

	for i := 0; i < c.threads; i++ {
		eg.Go(func() error {
			return c.work(egCtx, buffer)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	// 父 ctx 取消时工作者可能在检查前已全部退出
	return ctx.Err()
}

// work 工作者循环
func (c *Coordinator) work(ctx context.Context, buffer *WorkBuffer) error {
	for {
		item, ok := buffer.Pop()
		if !ok {
			return ctx.Err()
		}
		err := c.process(ctx, buffer, item)
		buffer.Done()
		if err != nil {
			return err
		}
	}
}

// process 在工作项所在层运行一次搜索，深度截断的状态投递到下一层；
// 缓冲区满时在当前协程内直接处理，避免工作者互相等待
func (c *Coordinator) process(ctx context.Context, buffer *WorkBuffer, item WorkItem) error {
	alg := c.factory(item.Tier, c.comm)
	if alg == nil {
		return fmt.Errorf("第 %d 层算法工厂返回空实例", item.Tier)
	}
	maxDepth := 0
	if depth := c.tiers[item.Tier].Depth; depth > 0 {
		maxDepth = item.Schedule.Len() + depth
	}
	next := min(item.Tier+1, len(c.tiers)-1)

	err := alg.Search(ctx, item.Schedule, item.Ready, maxDepth, func(s *schedule.Schedule, r *schedule.ReadySet) error {
		child := WorkItem{Schedule: s, Ready: r, Tier: next}
		if atomic.CompareAndSwapInt32(&c.dispatched[next], 0, 1) {
			c.emit(realtime.EventTierDispatched, &realtime.TierPayload{Tier: next, Depth: s.Len()})
		}
		if buffer.TryPush(child) {
			return nil
		}
		atomic.AddInt64(&c.inline, 1)
		return c.process(ctx, buffer, child)
	})
	c.stats.Add(alg.Stats())
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("❌ [Tiered] 第 %d 层 %s 搜索失败: %v", item.Tier, alg.Name(), err)
	}
	return err
}

func (c *Coordinator) emit(eventType realtime.EventType, payload interface{}) {
	if c.sink == nil {
		return
	}
	c.sink(realtime.NewSearchEvent(eventType, c.runID, payload))
}
