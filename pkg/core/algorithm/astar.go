package algorithm

import (
	"context"

	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/LENAX/optsched/pkg/core/arborist"
	"github.com/LENAX/optsched/pkg/core/bound"
	"github.com/LENAX/optsched/pkg/core/graph"
	"github.com/LENAX/optsched/pkg/core/schedule"
)

// astarState A* 开放集中的状态，每个状态持有自己的调度副本
type astarState struct {
	s     *schedule.Schedule
	ready *schedule.ReadySet
	f     int
	seq   int64
}

// compareStates f 小者优先；f 相同时已放置任务多者优先；再按入队顺序
func compareStates(a, b interface{}) int {
	x := a.(*astarState)
	y := b.(*astarState)
	switch {
	case x.f != y.f:
		if x.f < y.f {
			return -1
		}
		return 1
	case x.s.Len() != y.s.Len():
		if x.s.Len() > y.s.Len() {
			return -1
		}
		return 1
	case x.seq < y.seq:
		return -1
	case x.seq > y.seq:
		return 1
	}
	return 0
}

// AStar 最佳优先搜索（对外导出）
// 第一个出队的完整调度即为最优（下界可采纳）；实例只能在单个 goroutine 中使用
type AStar struct {
	g     *graph.Graph
	comm  *Communicator
	lb    bound.LowerBound
	arb   arborist.Arborist
	stats Stats
	seq   int64
}

// NewAStar 创建 A* 搜索（对外导出）
func NewAStar(g *graph.Graph, comm *Communicator, opts Options) *AStar {
	opts = opts.withDefaults()
	return &AStar{g: g, comm: comm, lb: opts.Bound, arb: opts.Arborist}
}

// Name 名称
func (a *AStar) Name() string { return NameAStar }

// Stats 统计信息
func (a *AStar) Stats() Stats { return a.stats }

// Search 从给定部分调度开始搜索（对外导出），不修改入参
func (a *AStar) Search(ctx context.Context, s *schedule.Schedule, ready *schedule.ReadySet, maxDepth int, deferFn DeferFunc) error {
	open := binaryheap.NewWith(compareStates)
	open.Push(a.newState(s.Clone(), ready.Clone()))

	for !open.Empty() {
		v, _ := open.Pop()
		st := v.(*astarState)
		a.stats.Expanded++
		if a.stats.Expanded%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		// 开放集按 f 有序，队首已不优于当前最优时其余状态同样不可能改进
		if st.f >= a.comm.BestMakespan() {
			a.stats.BoundPruned += int64(open.Size()) + 1
			return nil
		}
		if st.ready.Empty() {
			a.stats.Terminals++
			a.comm.Offer(st.s)
			return nil
		}
		if maxDepth > 0 && st.s.Len() >= maxDepth {
			a.stats.Deferred++
			if deferFn != nil {
				if err := deferFn(st.s, st.ready); err != nil {
					return err
				}
			}
			continue
		}

		if err := a.expand(st, open); err != nil {
			return err
		}
		if size := int64(open.Size()); size > a.stats.MaxOpenStates {
			a.stats.MaxOpenStates = size
		}
	}
	return nil
}

// expand 生成全部未被剪掉的子状态并入队
func (a *AStar) expand(st *astarState, open *binaryheap.Heap) error {
	best := a.comm.BestMakespan()
	for _, n := range st.ready.Nodes() {
		for p := 0; p < st.s.Processors(); p++ {
			t := st.s.Candidate(n, p)
			if t.End() >= best {
				a.stats.BoundPruned++
				continue
			}
			if a.arb.Prune(a.g, st.s, t) {
				a.stats.ArboristCut++
				continue
			}
			child := st.s.Clone()
			if err := child.AddTask(t); err != nil {
				return err
			}
			ready := st.ready.Clone()
			ready.Place(n)
			next := a.newState(child, ready)
			if next.f >= best {
				a.stats.BoundPruned++
				continue
			}
			open.Push(next)
		}
	}
	return nil
}

func (a *AStar) newState(s *schedule.Schedule, ready *schedule.ReadySet) *astarState {
	a.seq++
	return &astarState{s: s, ready: ready, f: estimate(a.lb, a.g, s, ready), seq: a.seq}
}
