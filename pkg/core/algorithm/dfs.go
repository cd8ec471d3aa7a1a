package algorithm

import (
	"context"

	"github.com/LENAX/optsched/pkg/core/arborist"
	"github.com/LENAX/optsched/pkg/core/bound"
	"github.com/LENAX/optsched/pkg/core/graph"
	"github.com/LENAX/optsched/pkg/core/schedule"
)

// cancelCheckInterval 每展开多少个状态检查一次 ctx
const cancelCheckInterval = 1024

// DFS 深度优先分支定界（对外导出）
// 在同一个 Schedule/ReadySet 上追加与回退，不为每个搜索节点复制状态；实例只能在单个 goroutine 中使用
type DFS struct {
	g     *graph.Graph
	comm  *Communicator
	lb    bound.LowerBound
	arb   arborist.Arborist
	stats Stats
}

// NewDFS 创建深度优先搜索（对外导出）
func NewDFS(g *graph.Graph, comm *Communicator, opts Options) *DFS {
	opts = opts.withDefaults()
	return &DFS{g: g, comm: comm, lb: opts.Bound, arb: opts.Arborist}
}

// Name 名称
func (d *DFS) Name() string { return NameDFS }

// Stats 统计信息
func (d *DFS) Stats() Stats { return d.stats }

// Search 从给定部分调度开始搜索（对外导出）
// 返回时 s 与 ready 恢复为调用前的状态
func (d *DFS) Search(ctx context.Context, s *schedule.Schedule, ready *schedule.ReadySet, maxDepth int, deferFn DeferFunc) error {
	return d.visit(ctx, s, ready, maxDepth, deferFn)
}

func (d *DFS) visit(ctx context.Context, s *schedule.Schedule, ready *schedule.ReadySet, maxDepth int, deferFn DeferFunc) error {
	d.stats.Expanded++
	if d.stats.Expanded%cancelCheckInterval == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	// >= 而不是 >：与当前最优相等的分支不可能严格改进
	if estimate(d.lb, d.g, s, ready) >= d.comm.BestMakespan() {
		d.stats.BoundPruned++
		return nil
	}
	if ready.Empty() {
		d.stats.Terminals++
		d.comm.Offer(s)
		return nil
	}
	if maxDepth > 0 && s.Len() >= maxDepth {
		d.stats.Deferred++
		if deferFn == nil {
			return nil
		}
		return deferFn(s.Clone(), ready.Clone())
	}

	for _, n := range ready.Nodes() {
		for p := 0; p < s.Processors(); p++ {
			t := s.Candidate(n, p)
			if t.End() >= d.comm.BestMakespan() {
				d.stats.BoundPruned++
				continue
			}
			if d.arb.Prune(d.g, s, t) {
				d.stats.ArboristCut++
				continue
			}
			if err := s.AddTask(t); err != nil {
				return err
			}
			ready.Place(n)
			err := d.visit(ctx, s, ready, maxDepth, deferFn)
			ready.Unplace(n)
			if rerr := s.RemoveTask(t); rerr != nil {
				return rerr
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}
