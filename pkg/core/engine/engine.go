// Package engine 串联贪心初始解、共享最优解与分层搜索，并负责结果缓存、持久化与事件发布
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/optsched/pkg/config"
	"github.com/LENAX/optsched/pkg/core/algorithm"
	"github.com/LENAX/optsched/pkg/core/arborist"
	"github.com/LENAX/optsched/pkg/core/bound"
	"github.com/LENAX/optsched/pkg/core/cache"
	"github.com/LENAX/optsched/pkg/core/graph"
	"github.com/LENAX/optsched/pkg/core/realtime"
	"github.com/LENAX/optsched/pkg/core/schedule"
	"github.com/LENAX/optsched/pkg/core/tiered"
	"github.com/LENAX/optsched/pkg/dot"
	"github.com/LENAX/optsched/pkg/storage"
)

// ErrInvalidRequest 求解请求参数无效（对外导出）
var ErrInvalidRequest = errors.New("求解请求无效")

// SolveRequest 求解请求（对外导出）
type SolveRequest struct {
	Graph      *graph.Graph
	Processors int
	Threads    int    // <=0 时使用配置
	Source     string // 触发来源，记录到运行记录
	SkipCache  bool   // 忽略缓存强制搜索
}

// Result 求解结果（对外导出）
type Result struct {
	RunID          string             `json:"run_id"`
	Schedule       *schedule.Schedule `json:"-"`
	Makespan       int                `json:"makespan"`
	GreedyMakespan int                `json:"greedy_makespan"`
	Improvements   int64              `json:"improvements"`
	Stats          algorithm.Stats    `json:"stats"`
	Inline         int64              `json:"inline"`
	Threads        int                `json:"threads"`
	Duration       time.Duration      `json:"duration"`
	FromCache      bool               `json:"from_cache"`
}

// Option 引擎选项
type Option func(*Engine)

// WithRepository 设置运行记录存储
func WithRepository(repo storage.RunRepository) Option {
	return func(e *Engine) {
		e.repo = repo
	}
}

// WithCache 设置最优解缓存
func WithCache(c cache.SolutionCache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithEventBus 设置事件总线
func WithEventBus(bus *realtime.EventBus) Option {
	return func(e *Engine) {
		e.bus = bus
	}
}

// Engine 最优调度求解引擎（对外导出）
type Engine struct {
	cfg   *config.EngineConfig
	lb    bound.LowerBound
	arb   arborist.Arborist
	repo  storage.RunRepository
	cache cache.SolutionCache
	bus   *realtime.EventBus

	cronScheduler *CronScheduler
	runs          map[string]context.CancelFunc // RunID -> 取消函数
	closers       []func() error                // Close 时逆序释放
	mu            sync.RWMutex
}

// NewEngine 创建Engine实例（对外导出的工厂方法）
// cfg 为 nil 时使用默认配置
func NewEngine(cfg *config.EngineConfig, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.ApplyDefaults()
	if err := config.ValidateFrameworkConfig(cfg); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	lb, err := bound.FromNames(cfg.GetBounds())
	if err != nil {
		return nil, err
	}
	arb, err := arborist.ByName(cfg.GetArborist())
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		cfg:  cfg,
		lb:   lb,
		arb:  arb,
		runs: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(eng)
	}
	eng.cronScheduler = NewCronScheduler(eng)
	return eng, nil
}

// Config 引擎配置
func (e *Engine) Config() *config.EngineConfig {
	return e.cfg
}

// Repository 运行记录存储，未配置时为 nil
func (e *Engine) Repository() storage.RunRepository {
	return e.repo
}

// EventBus 事件总线，未配置时为 nil
func (e *Engine) EventBus() *realtime.EventBus {
	return e.bus
}

// CronScheduler 定时调度器
func (e *Engine) CronScheduler() *CronScheduler {
	return e.cronScheduler
}

// Start 注册配置中的定时任务并启动调度器（对外导出）
func (e *Engine) Start(ctx context.Context) error {
	for _, job := range e.cfg.OptSched.Jobs {
		if err := e.cronScheduler.RegisterJob(job); err != nil {
			return err
		}
	}
	e.cronScheduler.Start()
	log.Printf("✅ [Engine] %s 已启动, 定时任务数: %d", e.cfg.OptSched.General.InstanceName, len(e.cfg.OptSched.Jobs))
	return nil
}

// Stop 停止调度器并取消所有运行中的求解（对外导出）
func (e *Engine) Stop() {
	e.cronScheduler.Stop()
	e.mu.Lock()
	for runID, cancel := range e.runs {
		cancel()
		log.Printf("⚠️ [Engine] 停止时取消运行中的求解: RunID=%s", runID)
	}
	e.mu.Unlock()
	log.Println("✅ [Engine] 已停止")
}

// Close 释放构建器装配的存储、缓存与事件总线
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// ActiveRuns 运行中的求解ID
func (e *Engine) ActiveRuns() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.runs))
	for id := range e.runs {
		ids = append(ids, id)
	}
	return ids
}

// Cancel 取消运行中的求解，返回是否存在
func (e *Engine) Cancel(runID string) bool {
	e.mu.RLock()
	cancel, ok := e.runs[runID]
	e.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

// Solve 求解最优调度（对外导出）
// 流程：参数校验 → 缓存 → 贪心初始解 → 分层搜索 → 校验 → 持久化 → 写缓存
func (e *Engine) Solve(ctx context.Context, req SolveRequest) (*Result, error) {
	if req.Graph == nil {
		return nil, fmt.Errorf("%w: 任务图不能为空", ErrInvalidRequest)
	}
	if req.Processors < 1 {
		return nil, fmt.Errorf("%w: 处理器数必须大于 0, 实际: %d", ErrInvalidRequest, req.Processors)
	}
	threads := req.Threads
	if threads <= 0 {
		threads = e.cfg.GetThreads()
	}
	g := req.Graph
	runID := uuid.NewString()
	started := time.Now()

	// 1. 缓存
	key := cache.Key(g, req.Processors)
	if e.cache != nil && !req.SkipCache {
		if hit, ok := e.cache.Get(key); ok {
			best, err := rebind(hit, g)
			if err == nil {
				log.Printf("✅ [Engine] 命中缓存: Graph=%s, Processors=%d, Makespan=%d", g.Name(), req.Processors, best.Makespan())
				res := &Result{
					RunID:     runID,
					Schedule:  best,
					Makespan:  best.Makespan(),
					Threads:   threads,
					Duration:  time.Since(started),
					FromCache: true,
				}
				e.publish(realtime.EventSearchFinished, runID, &realtime.SearchFinishedPayload{
					Makespan: res.Makespan, DurationMs: res.Duration.Milliseconds(), FromCache: true,
				})
				return res, nil
			}
			log.Printf("⚠️ [Engine] 缓存结果无法映射到当前任务图, 重新求解: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	if timeout := e.cfg.OptSched.Search.Timeout; timeout > 0 {
		ctx, cancel = withTimeout(ctx, cancel, timeout)
	}
	e.mu.Lock()
	e.runs[runID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.runs, runID)
		e.mu.Unlock()
		cancel()
	}()

	// 2. 贪心初始解
	var seed *schedule.Schedule
	greedyMakespan := 0
	if e.cfg.UseGreedySeed() {
		s, err := algorithm.Greedy(g, req.Processors)
		if err != nil {
			return nil, fmt.Errorf("贪心初始解失败: %w", err)
		}
		seed = s
		greedyMakespan = s.Makespan()
	}
	e.publish(realtime.EventSearchStarted, runID, &realtime.SearchStartedPayload{
		Graph: g.Name(), Nodes: g.Len(), Processors: req.Processors, Threads: threads, GreedyMakespan: greedyMakespan,
	})
	log.Printf("🚀 [Engine] 开始求解: RunID=%s, Graph=%s, Nodes=%d, Processors=%d, Threads=%d, Greedy=%d",
		runID, g.Name(), g.Len(), req.Processors, threads, greedyMakespan)

	// 3. 分层搜索
	tiers := e.cfg.GetTiers()
	factory, err := tiered.NewFactory(g, tiers, algorithm.Options{Bound: e.lb, Arborist: e.arb})
	if err != nil {
		return nil, err
	}
	coord, err := tiered.New(threads, factory,
		tiered.WithSeed(seed),
		tiered.WithTiers(tiers),
		tiered.WithBackpressureThreshold(e.cfg.OptSched.Search.BackpressureThreshold),
		tiered.WithEventSink(runID, e.emit),
	)
	if err != nil {
		return nil, err
	}
	best, err := coord.Solve(ctx, g, req.Processors)
	if err == nil {
		// 4. 结果校验
		if vErr := best.Validate(); vErr != nil {
			err = fmt.Errorf("最优调度校验失败: %w", vErr)
		} else if !best.Complete() {
			err = fmt.Errorf("最优调度不完整: %d/%d", best.Len(), g.Len())
		}
	}

	res := &Result{
		RunID:          runID,
		GreedyMakespan: greedyMakespan,
		Improvements:   coord.Communicator().Improvements(),
		Stats:          coord.Stats(),
		Inline:         coord.Inline(),
		Threads:        threads,
		Duration:       time.Since(started),
	}
	record := e.newRecord(req, res, threads)
	if err != nil {
		record.Status = storage.RunStatusFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			record.Status = storage.RunStatusCancelled
		}
		record.Error = err.Error()
		e.persist(record)
		e.publish(realtime.EventSearchFailed, runID, &realtime.ErrorPayload{Message: err.Error()})
		log.Printf("❌ [Engine] 求解失败: RunID=%s, Error=%v", runID, err)
		return nil, err
	}

	res.Schedule = best
	res.Makespan = best.Makespan()

	// 5. 持久化与缓存
	record.Status = storage.RunStatusFinished
	record.Makespan = res.Makespan
	var buf bytes.Buffer
	if wErr := dot.NewWriter(&buf).Write(best, g); wErr != nil {
		log.Printf("⚠️ [Engine] 生成调度DOT失败: %v", wErr)
	} else {
		record.ScheduleDOT = buf.String()
	}
	e.persist(record)
	if e.cache != nil {
		if cErr := e.cache.Set(key, best, e.cfg.OptSched.Storage.Cache.DefaultTTL); cErr != nil {
			log.Printf("⚠️ [Engine] 写入缓存失败: %v", cErr)
		}
	}
	e.publish(realtime.EventSearchFinished, runID, &realtime.SearchFinishedPayload{
		Makespan: res.Makespan, Expanded: res.Stats.Expanded, DurationMs: res.Duration.Milliseconds(),
	})
	log.Printf("✅ [Engine] 求解完成: RunID=%s, Makespan=%d, Greedy=%d, Expanded=%d, 耗时=%v",
		runID, res.Makespan, greedyMakespan, res.Stats.Expanded, res.Duration)
	return res, nil
}

// newRecord 构造运行记录（状态与结果由调用方补齐）
func (e *Engine) newRecord(req SolveRequest, res *Result, threads int) *storage.RunRecord {
	tiers := e.cfg.GetTiers()
	parts := make([]string, len(tiers))
	for i, t := range tiers {
		parts[i] = fmt.Sprintf("%s:%d", t.Algorithm, t.Depth)
	}
	source := req.Source
	if source == "" {
		source = "api"
	}
	return &storage.RunRecord{
		ID:             res.RunID,
		GraphName:      req.Graph.Name(),
		Fingerprint:    req.Graph.Fingerprint(),
		Processors:     req.Processors,
		Threads:        threads,
		GreedyMakespan: res.GreedyMakespan,
		Bounds:         e.cfg.GetBounds(),
		Arborist:       e.cfg.GetArborist(),
		Tiers:          strings.Join(parts, ","),
		Stats: map[string]int64{
			"expanded":        res.Stats.Expanded,
			"bound_pruned":    res.Stats.BoundPruned,
			"arborist_cut":    res.Stats.ArboristCut,
			"terminals":       res.Stats.Terminals,
			"deferred":        res.Stats.Deferred,
			"max_open_states": res.Stats.MaxOpenStates,
			"improvements":    res.Improvements,
			"inline":          res.Inline,
		},
		Source:     source,
		Duration:   res.Duration,
		CreateTime: time.Now(),
	}
}

// persist 保存运行记录，失败只记录日志
func (e *Engine) persist(record *storage.RunRecord) {
	if e.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.repo.SaveRun(ctx, record); err != nil {
		log.Printf("⚠️ [Engine] 保存运行记录失败: RunID=%s, Error=%v", record.ID, err)
	}
}

func (e *Engine) emit(event *realtime.SearchEvent) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(event.WithMetadata("instance", e.cfg.OptSched.General.InstanceName))
}

func (e *Engine) publish(eventType realtime.EventType, runID string, payload interface{}) {
	e.emit(realtime.NewSearchEvent(eventType, runID, payload))
}

// withTimeout 在已有取消函数上叠加超时
func withTimeout(parent context.Context, cancel context.CancelFunc, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancelTimeout := context.WithTimeout(parent, timeout)
	return ctx, func() {
		cancelTimeout()
		cancel()
	}
}

// rebind 把缓存中的调度复制到 g 上；g 与原图内容相同时按节点标签映射
func rebind(s *schedule.Schedule, g *graph.Graph) (*schedule.Schedule, error) {
	if s.Graph() == g {
		return s.Clone(), nil
	}
	out, err := schedule.NewSchedule(g, s.Processors())
	if err != nil {
		return nil, err
	}
	for _, t := range s.Tasks() {
		n, ok := g.NodeByLabel(t.Node.Label)
		if !ok {
			return nil, fmt.Errorf("节点 %s 不存在于任务图 %s", t.Node.Label, g.Name())
		}
		if err := out.AddTask(schedule.Task{Processor: t.Processor, Start: t.Start, Node: n}); err != nil {
			return nil, err
		}
	}
	return out, nil
}
