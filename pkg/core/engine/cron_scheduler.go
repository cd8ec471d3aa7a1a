package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/LENAX/optsched/pkg/config"
	"github.com/LENAX/optsched/pkg/dot"
)

// ErrJobNotFound 定时任务未注册
var ErrJobNotFound = errors.New("定时任务未注册")

// CronScheduler 定时批量求解调度器（对外导出）
// 每个任务按 cron 表达式重新读取 DOT 文件并求解
type CronScheduler struct {
	cron    *cron.Cron
	engine  *Engine
	jobs    map[string]config.JobConfig // 任务名 -> 配置
	entries map[string]cron.EntryID     // 任务名 -> cron.EntryID
	lastRun map[string]string           // 任务名 -> 最近一次 RunID
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewCronScheduler 创建定时调度器（对外导出）
func NewCronScheduler(eng *Engine) *CronScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &CronScheduler{
		cron:    cron.New(cron.WithSeconds()), // 支持秒级精度
		engine:  eng,
		jobs:    make(map[string]config.JobConfig),
		entries: make(map[string]cron.EntryID),
		lastRun: make(map[string]string),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// RegisterJob 注册定时求解任务（对外导出）
func (cs *CronScheduler) RegisterJob(job config.JobConfig) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if job.Name == "" {
		return fmt.Errorf("定时任务名称不能为空")
	}
	// 检查是否已注册
	if _, exists := cs.jobs[job.Name]; exists {
		return fmt.Errorf("定时任务 %s 已注册", job.Name)
	}
	if job.Processors < 1 {
		return fmt.Errorf("定时任务 %s 的处理器数必须大于 0", job.Name)
	}

	// 验证Cron表达式（使用Parser支持秒级精度）
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(job.Cron); err != nil {
		return fmt.Errorf("定时任务 %s 的Cron表达式无效: %w", job.Name, err)
	}

	entryID, err := cs.cron.AddFunc(job.Cron, func() {
		if _, err := cs.RunJob(cs.ctx, job.Name); err != nil {
			log.Printf("❌ [Cron调度器] 定时任务执行失败: Name=%s, Error=%v", job.Name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("添加Cron任务失败: %w", err)
	}

	cs.jobs[job.Name] = job
	cs.entries[job.Name] = entryID

	log.Printf("✅ [Cron调度器] 已注册定时任务: Name=%s, Graph=%s, Processors=%d, CronExpr=%s",
		job.Name, job.Graph, job.Processors, job.Cron)
	return nil
}

// UnregisterJob 取消注册定时任务（对外导出）
func (cs *CronScheduler) UnregisterJob(name string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	entryID, exists := cs.entries[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	cs.cron.Remove(entryID)
	delete(cs.jobs, name)
	delete(cs.entries, name)

	log.Printf("✅ [Cron调度器] 已取消注册定时任务: Name=%s", name)
	return nil
}

// RunJob 立即执行一次定时任务（对外导出）
// 读取 DOT 文件、求解、按需写出结果文件
func (cs *CronScheduler) RunJob(ctx context.Context, name string) (*Result, error) {
	cs.mu.RLock()
	job, exists := cs.jobs[name]
	cs.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	log.Printf("🕐 [Cron调度器] 触发定时任务: Name=%s, Graph=%s", job.Name, job.Graph)

	f, err := os.Open(job.Graph)
	if err != nil {
		return nil, fmt.Errorf("打开任务图文件失败: %w", err)
	}
	g, err := dot.NewReader(f).Read()
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("读取任务图失败: %w", err)
	}

	res, err := cs.engine.Solve(ctx, SolveRequest{
		Graph:      g,
		Processors: job.Processors,
		Source:     "cron:" + job.Name,
	})
	if err != nil {
		return nil, err
	}

	if job.Output != "" {
		out, err := os.Create(job.Output)
		if err != nil {
			return nil, fmt.Errorf("创建输出文件失败: %w", err)
		}
		werr := dot.NewWriter(out).Write(res.Schedule, g)
		if cerr := out.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return nil, fmt.Errorf("写出调度结果失败: %w", werr)
		}
	}

	cs.mu.Lock()
	cs.lastRun[name] = res.RunID
	cs.mu.Unlock()
	log.Printf("✅ [Cron调度器] 定时任务完成: Name=%s, RunID=%s, Makespan=%d", job.Name, res.RunID, res.Makespan)
	return res, nil
}

// LastRun 任务最近一次成功运行的ID
func (cs *CronScheduler) LastRun(name string) (string, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	id, ok := cs.lastRun[name]
	return id, ok
}

// Start 启动定时调度器（对外导出）
func (cs *CronScheduler) Start() {
	cs.cron.Start()
	log.Println("✅ [Cron调度器] 已启动")
}

// Stop 停止定时调度器，等待执行中的任务结束（对外导出）
func (cs *CronScheduler) Stop() {
	cs.cancel()
	<-cs.cron.Stop().Done()
	log.Println("✅ [Cron调度器] 已停止")
}

// GetJob 获取已注册任务的配置
func (cs *CronScheduler) GetJob(name string) (config.JobConfig, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	job, ok := cs.jobs[name]
	return job, ok
}

// GetRegisteredJobs 获取已注册的任务名（按名称排序）
func (cs *CronScheduler) GetRegisteredJobs() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	names := make([]string, 0, len(cs.jobs))
	for name := range cs.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
