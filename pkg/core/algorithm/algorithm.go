// Package algorithm 提供最优调度搜索算法：贪心初始解、深度优先分支定界与 A*
package algorithm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/LENAX/optsched/pkg/core/arborist"
	"github.com/LENAX/optsched/pkg/core/bound"
	"github.com/LENAX/optsched/pkg/core/graph"
	"github.com/LENAX/optsched/pkg/core/schedule"
)

// ErrNoSchedule 搜索结束时没有任何可行调度（对外导出）
var ErrNoSchedule = errors.New("没有可行调度")

// 算法名称
const (
	NameDFS   = "dfs"
	NameAStar = "astar"
)

// DeferFunc 深度截断回调（对外导出）
// 搜索到达 maxDepth 仍未完成的状态以克隆形式交给调用方，返回错误会中止搜索
type DeferFunc func(s *schedule.Schedule, ready *schedule.ReadySet) error

// BoundableAlgorithm 可设置深度上限的搜索算法（对外导出）
// maxDepth 为绝对深度（已放置任务数），0 表示不限制
type BoundableAlgorithm interface {
	Name() string
	Search(ctx context.Context, s *schedule.Schedule, ready *schedule.ReadySet, maxDepth int, deferFn DeferFunc) error
	Stats() Stats
}

// Stats 搜索统计（对外导出）
type Stats struct {
	Expanded      int64 `json:"expanded"`        // 展开的状态数
	BoundPruned   int64 `json:"bound_pruned"`    // 被下界剪掉的状态数
	ArboristCut   int64 `json:"arborist_cut"`    // 被剪枝器剪掉的候选数
	Terminals     int64 `json:"terminals"`       // 到达的完整调度数
	Deferred      int64 `json:"deferred"`        // 深度截断交出的状态数
	MaxOpenStates int64 `json:"max_open_states"` // A* 开放集峰值
}

// Add 累加另一份统计（并发安全）
func (s *Stats) Add(o Stats) {
	atomic.AddInt64(&s.Expanded, o.Expanded)
	atomic.AddInt64(&s.BoundPruned, o.BoundPruned)
	atomic.AddInt64(&s.ArboristCut, o.ArboristCut)
	atomic.AddInt64(&s.Terminals, o.Terminals)
	atomic.AddInt64(&s.Deferred, o.Deferred)
	for {
		cur := atomic.LoadInt64(&s.MaxOpenStates)
		if o.MaxOpenStates <= cur || atomic.CompareAndSwapInt64(&s.MaxOpenStates, cur, o.MaxOpenStates) {
			return
		}
	}
}

// Snapshot 读取一致的副本
func (s *Stats) Snapshot() Stats {
	return Stats{
		Expanded:      atomic.LoadInt64(&s.Expanded),
		BoundPruned:   atomic.LoadInt64(&s.BoundPruned),
		ArboristCut:   atomic.LoadInt64(&s.ArboristCut),
		Terminals:     atomic.LoadInt64(&s.Terminals),
		Deferred:      atomic.LoadInt64(&s.Deferred),
		MaxOpenStates: atomic.LoadInt64(&s.MaxOpenStates),
	}
}

// Options 搜索配置（对外导出）
type Options struct {
	Bound    bound.LowerBound
	Arborist arborist.Arborist
}

func (o Options) withDefaults() Options {
	if o.Bound == nil {
		o.Bound = bound.Naive{}
	}
	if o.Arborist == nil {
		o.Arborist = arborist.None{}
	}
	return o
}

// New 按名称创建搜索算法（对外导出）
func New(name string, g *graph.Graph, comm *Communicator, opts Options) (BoundableAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameDFS, "":
		return NewDFS(g, comm, opts), nil
	case NameAStar, "a*", "a-star":
		return NewAStar(g, comm, opts), nil
	default:
		return nil, fmt.Errorf("未知的搜索算法: %s", name)
	}
}

// Solve 在单个 goroutine 中从空调度求解（对外导出）
// comm 中已有的调度作为初始上界；返回搜索结束后的最优调度
func Solve(ctx context.Context, alg BoundableAlgorithm, comm *Communicator, g *graph.Graph, processors int) (*schedule.Schedule, error) {
	s, err := schedule.NewSchedule(g, processors)
	if err != nil {
		return nil, err
	}
	if err := alg.Search(ctx, s, schedule.NewReadySet(g), 0, nil); err != nil {
		return nil, err
	}
	best := comm.Best()
	if best == nil {
		return nil, ErrNoSchedule
	}
	return best, nil
}

// estimate 计算状态的 f 值：下界与当前 makespan 取大
func estimate(lb bound.LowerBound, g *graph.Graph, s *schedule.Schedule, ready *schedule.ReadySet) int {
	f := lb.Estimate(g, s, ready)
	if m := s.Makespan(); m > f {
		return m
	}
	return f
}
