// Package arborist 提供搜索树剪枝器：利用处理器对称、插入顺序等价与支配关系裁掉冗余分支
package arborist

import (
	"fmt"
	"strings"

	"github.com/LENAX/optsched/pkg/core/graph"
	"github.com/LENAX/optsched/pkg/core/schedule"
)

// Arborist 剪枝器接口（对外导出）
// Prune 返回 true 表示丢弃该候选放置
type Arborist interface {
	Name() string
	Prune(g *graph.Graph, s *schedule.Schedule, candidate schedule.Task) bool
}

// None 不剪枝
type None struct{}

// Name 名称
func (None) Name() string { return "none" }

// Prune 恒返回 false
func (None) Prune(*graph.Graph, *schedule.Schedule, schedule.Task) bool { return false }

// ProcessorOrder 空处理器对称剪枝（对外导出）
// 空处理器可互换，只允许放到编号最小的空处理器上
type ProcessorOrder struct{}

// Name 名称
func (ProcessorOrder) Name() string { return "processor-order" }

// Prune 候选处理器为空且存在编号更小的空处理器时剪枝
func (ProcessorOrder) Prune(_ *graph.Graph, s *schedule.Schedule, c schedule.Task) bool {
	if !s.IsProcessorEmpty(c.Processor) {
		return false
	}
	for p := 0; p < c.Processor; p++ {
		if s.IsProcessorEmpty(p) {
			return true
		}
	}
	return false
}

// StartTime 插入顺序剪枝（对外导出）
// 要求放置序列的开始时间非递减；开始时间相同且两者代价都为正时按节点 ID 升序
type StartTime struct{}

// Name 名称
func (StartTime) Name() string { return "start-time" }

// Prune 候选早于最近一次放置，或同时开始但 ID 逆序时剪枝
func (StartTime) Prune(_ *graph.Graph, s *schedule.Schedule, c schedule.Task) bool {
	last, ok := s.Last()
	if !ok {
		return false
	}
	if c.Start < last.Start {
		return true
	}
	return c.Start == last.Start &&
		c.Node.Cost > 0 && last.Node.Cost > 0 &&
		c.Node.ID < last.Node.ID
}

// BetterStart 更早开始支配剪枝（对外导出）
// 若另一处理器 q 上的最早开始时间 s_q 满足 s_q + 代价 <= s_p 且 s_q + 最大出边代价 <= s_p，
// 则把节点移到 q 不会推迟任何后继的数据到达，也不会与 q 上之后的任务重叠
type BetterStart struct{}

// Name 名称
func (BetterStart) Name() string { return "better-start" }

// Prune 存在严格更早且不劣的处理器时剪枝
func (BetterStart) Prune(g *graph.Graph, s *schedule.Schedule, c schedule.Task) bool {
	maxOut := g.MaxOutgoingCost(c.Node)
	for q := 0; q < s.Processors(); q++ {
		if q == c.Processor {
			continue
		}
		sq := s.EarliestStart(c.Node, q)
		if sq < c.Start && sq+maxOut <= c.Start && sq+c.Node.Cost <= c.Start {
			return true
		}
	}
	return false
}

// BetterSwap 相邻交换支配剪枝（对外导出）
// 处理器上的最后一个任务 u 同时是全局最后放置的任务时，比较 "u 后接候选 t" 与 "t 后接 u"：
// 若交换后处理器结束不晚于原来，且 t、u 的每个后继在任意处理器上的数据到达都不晚于原来，
// 则保留 ID 较小者在前的顺序，剪掉 ID 逆序的分支
type BetterSwap struct{}

// Name 名称
func (BetterSwap) Name() string { return "better-swap" }

// Prune 交换后不劣且 ID 逆序时剪枝
func (BetterSwap) Prune(g *graph.Graph, s *schedule.Schedule, c schedule.Task) bool {
	p := c.Processor
	u, ok := s.LastOn(p)
	if !ok {
		return false
	}
	last, _ := s.Last()
	if last.Node != u.Node {
		return false
	}
	t := c.Node
	if t.ID >= u.Node.ID || g.HasEdge(u.Node, t) {
		return false
	}

	// 交换前处理器在 u 之前的结束时间
	list := s.TasksOn(p)
	before := 0
	if len(list) > 1 {
		before = list[len(list)-2].End()
	}

	// 交换后：t 先于 u
	swappedT := before
	if ready := s.DataReady(t, p); ready > swappedT {
		swappedT = ready
	}
	swappedU := swappedT + t.Cost
	if ready := s.DataReady(u.Node, p); ready > swappedU {
		swappedU = ready
	}
	if swappedU+u.Node.Cost > c.End() {
		return false
	}

	oldEnd := map[*graph.Node]int{t: c.End(), u.Node: u.End()}
	newEnd := map[*graph.Node]int{t: swappedT + t.Cost, u.Node: swappedU + u.Node.Cost}
	return successorsNotLater(g, []*graph.Node{t, u.Node}, oldEnd, newEnd)
}

// successorsNotLater 检查 pair 中节点对每个后继提供的数据到达时间在交换后都不晚于交换前，
// 分别考虑后继位于同一处理器（无通信代价）与其它处理器两种情况
func successorsNotLater(g *graph.Graph, pair []*graph.Node, oldEnd, newEnd map[*graph.Node]int) bool {
	type arrival struct{ local, remote int }
	oldArr := make(map[*graph.Node]*arrival)
	newArr := make(map[*graph.Node]*arrival)
	for _, n := range pair {
		for _, e := range g.Outgoing(n) {
			d := e.Destination
			if oldArr[d] == nil {
				oldArr[d] = &arrival{}
				newArr[d] = &arrival{}
			}
			oldArr[d].local = max(oldArr[d].local, oldEnd[n])
			oldArr[d].remote = max(oldArr[d].remote, oldEnd[n]+e.Cost)
			newArr[d].local = max(newArr[d].local, newEnd[n])
			newArr[d].remote = max(newArr[d].remote, newEnd[n]+e.Cost)
		}
	}
	for d, o := range oldArr {
		n := newArr[d]
		if n.local > o.local || n.remote > o.remote {
			return false
		}
	}
	return true
}

// combined 多个剪枝器逻辑或
type combined struct {
	members []Arborist
}

// Combine 组合剪枝器，任一成员要求剪枝即剪枝（对外导出）
// 组合是否兼容由调用方保证，组合器本身不做检查
func Combine(arborists ...Arborist) Arborist {
	flat := make([]Arborist, 0, len(arborists))
	for _, a := range arborists {
		switch v := a.(type) {
		case *combined:
			flat = append(flat, v.members...)
		case None:
		default:
			flat = append(flat, a)
		}
	}
	switch len(flat) {
	case 0:
		return None{}
	case 1:
		return flat[0]
	}
	return &combined{members: flat}
}

// Name 名称
func (c *combined) Name() string {
	names := make([]string, 0, len(c.members))
	for _, a := range c.members {
		names = append(names, a.Name())
	}
	return strings.Join(names, "+")
}

// Prune 短路逻辑或
func (c *combined) Prune(g *graph.Graph, s *schedule.Schedule, candidate schedule.Task) bool {
	for _, a := range c.members {
		if a.Prune(g, s, candidate) {
			return true
		}
	}
	return false
}

// 预置的兼容组合
const (
	PresetNone    = "none"
	PresetDefault = "default"
	PresetSwap    = "swap"
)

// ByName 按名称创建剪枝器或预置组合（对外导出）
// default = processor-order + start-time + better-start；swap = processor-order + better-swap
func ByName(name string) (Arborist, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PresetNone, "":
		return None{}, nil
	case PresetDefault:
		return Combine(ProcessorOrder{}, StartTime{}, BetterStart{}), nil
	case PresetSwap:
		return Combine(ProcessorOrder{}, BetterSwap{}), nil
	case "processor-order":
		return ProcessorOrder{}, nil
	case "start-time":
		return StartTime{}, nil
	case "better-start":
		return BetterStart{}, nil
	case "better-swap":
		return BetterSwap{}, nil
	default:
		return nil, fmt.Errorf("未知的剪枝器: %s", name)
	}
}

// FromNames 按名称列表创建组合剪枝器
func FromNames(names []string) (Arborist, error) {
	members := make([]Arborist, 0, len(names))
	for _, name := range names {
		a, err := ByName(name)
		if err != nil {
			return nil, err
		}
		members = append(members, a)
	}
	return Combine(members...), nil
}
