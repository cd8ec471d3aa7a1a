// Package bound 提供部分调度的下界估计（可采纳启发函数）
package bound

import (
	"fmt"
	"strings"

	"github.com/LENAX/optsched/pkg/core/graph"
	"github.com/LENAX/optsched/pkg/core/schedule"
)

// LowerBound 下界估计接口（对外导出）
// Estimate 的返回值不得超过补全该部分调度所能达到的最优 makespan
type LowerBound interface {
	Name() string
	Estimate(g *graph.Graph, s *schedule.Schedule, ready *schedule.ReadySet) int
}

// Naive 恒为 0 的下界
type Naive struct{}

// Name 名称
func (Naive) Name() string { return "naive" }

// Estimate 恒返回 0
func (Naive) Estimate(*graph.Graph, *schedule.Schedule, *schedule.ReadySet) int { return 0 }

// CriticalPath 关键路径下界（对外导出）
// 已放置节点取其结束时间；未放置节点按拓扑序取 代价 + max(前驱结果, 最早空闲处理器结束时间)。
// 忽略通信代价（后继可能与前驱同处理器）。
type CriticalPath struct{}

// Name 名称
func (CriticalPath) Name() string { return "critical-path" }

// Estimate 计算剩余工作的最长链
func (CriticalPath) Estimate(g *graph.Graph, s *schedule.Schedule, _ *schedule.ReadySet) int {
	floor := minProcessorEnd(s)
	weight := make([]int, g.Len())
	best := s.Makespan()
	for _, n := range g.TopologicalOrder() {
		if t, ok := s.TaskOf(n); ok {
			weight[n.ID] = t.End()
			continue
		}
		base := floor
		for _, e := range g.Incoming(n) {
			if w := weight[e.Origin.ID]; w > base {
				base = w
			}
		}
		weight[n.ID] = base + n.Cost
		if weight[n.ID] > best {
			best = weight[n.ID]
		}
	}
	return best
}

// FillTime 负载均衡下界（对外导出）
// ceil((各处理器结束时间之和 + 剩余计算代价) / 处理器数)，并不低于当前 makespan
type FillTime struct{}

// Name 名称
func (FillTime) Name() string { return "fill-time" }

// Estimate 计算负载填充下界
func (FillTime) Estimate(g *graph.Graph, s *schedule.Schedule, _ *schedule.ReadySet) int {
	occupied := 0
	remaining := g.TotalCost()
	for p := 0; p < s.Processors(); p++ {
		occupied += s.ProcessorEnd(p)
		for _, t := range s.TasksOn(p) {
			remaining -= t.Node.Cost
		}
	}
	procs := s.Processors()
	fill := (occupied + remaining + procs - 1) / procs
	if m := s.Makespan(); m > fill {
		return m
	}
	return fill
}

func minProcessorEnd(s *schedule.Schedule) int {
	m := s.ProcessorEnd(0)
	for p := 1; p < s.Processors(); p++ {
		if end := s.ProcessorEnd(p); end < m {
			m = end
		}
	}
	return m
}

// combined 多个下界取最大值
type combined struct {
	bounds []LowerBound
}

// Combine 组合多个下界，结果取各下界的最大值（对外导出）
// 不传参数时等价于 Naive，单个参数时直接返回该下界
func Combine(bounds ...LowerBound) LowerBound {
	flat := make([]LowerBound, 0, len(bounds))
	for _, b := range bounds {
		if c, ok := b.(*combined); ok {
			flat = append(flat, c.bounds...)
			continue
		}
		flat = append(flat, b)
	}
	switch len(flat) {
	case 0:
		return Naive{}
	case 1:
		return flat[0]
	}
	return &combined{bounds: flat}
}

// Name 名称
func (c *combined) Name() string {
	names := make([]string, 0, len(c.bounds))
	for _, b := range c.bounds {
		names = append(names, b.Name())
	}
	return strings.Join(names, "+")
}

// Estimate 返回各下界的最大值
func (c *combined) Estimate(g *graph.Graph, s *schedule.Schedule, ready *schedule.ReadySet) int {
	best := 0
	for _, b := range c.bounds {
		if v := b.Estimate(g, s, ready); v > best {
			best = v
		}
	}
	return best
}

// ByName 按名称创建下界（对外导出）
func ByName(name string) (LowerBound, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "naive", "none":
		return Naive{}, nil
	case "critical-path", "critical_path", "cp":
		return CriticalPath{}, nil
	case "fill-time", "fill_time", "ft":
		return FillTime{}, nil
	default:
		return nil, fmt.Errorf("未知的下界类型: %s", name)
	}
}

// FromNames 按名称列表创建组合下界
func FromNames(names []string) (LowerBound, error) {
	bounds := make([]LowerBound, 0, len(names))
	for _, name := range names {
		b, err := ByName(name)
		if err != nil {
			return nil, err
		}
		bounds = append(bounds, b)
	}
	return Combine(bounds...), nil
}
