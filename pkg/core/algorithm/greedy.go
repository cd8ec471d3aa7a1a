package algorithm

import (
	"fmt"

	"github.com/LENAX/optsched/pkg/core/graph"
	"github.com/LENAX/optsched/pkg/core/schedule"
)

// Greedy 贪心构造一个可行调度，仅用于给最优搜索提供初始上界（对外导出）
// 第一个任务取代价最小的就绪节点放在处理器 0 的时刻 0；
// 之后每步在所有 (就绪节点 × 处理器) 中选择使 makespan 最小的放置，
// 平局依次按结束时间、节点 ID、处理器编号取小
func Greedy(g *graph.Graph, processors int) (*schedule.Schedule, error) {
	s, err := schedule.NewSchedule(g, processors)
	if err != nil {
		return nil, err
	}
	ready := schedule.NewReadySet(g)

	var first *graph.Node
	for _, n := range ready.Nodes() {
		if first == nil || n.Cost < first.Cost {
			first = n
		}
	}
	if err := s.AddTask(schedule.Task{Processor: 0, Start: 0, Node: first}); err != nil {
		return nil, fmt.Errorf("贪心放置首个任务失败: %w", err)
	}
	ready.Place(first)

	for !ready.Empty() {
		var (
			pick         schedule.Task
			pickMakespan int
			found        bool
		)
		current := s.Makespan()
		for _, n := range ready.Nodes() {
			for p := 0; p < processors; p++ {
				t := s.Candidate(n, p)
				makespan := max(current, t.End())
				if !found || makespan < pickMakespan || (makespan == pickMakespan && t.End() < pick.End()) {
					pick, pickMakespan, found = t, makespan, true
				}
			}
		}
		if err := s.AddTask(pick); err != nil {
			return nil, fmt.Errorf("贪心放置任务 %s 失败: %w", pick.Node.Label, err)
		}
		ready.Place(pick.Node)
	}
	return s, nil
}
