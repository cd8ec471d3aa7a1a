// Package schedule 提供任务在处理器上的放置模型（栈式追加/回退）与就绪集合
package schedule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/LENAX/optsched/pkg/core/graph"
)

// ErrInvalidPlacement 放置违反调度不变量（对外导出）
var ErrInvalidPlacement = errors.New("非法的任务放置")

// Task 一次任务放置（对外导出），值类型，创建后不再修改
type Task struct {
	Processor int
	Start     int
	Node      *graph.Node
}

// End 结束时间
func (t Task) End() int {
	return t.Start + t.Node.Cost
}

// String 简要描述
func (t Task) String() string {
	return fmt.Sprintf("%s@P%d[%d,%d)", t.Node.Label, t.Processor, t.Start, t.End())
}

// Schedule 部分或完整调度（对外导出）
// 每个处理器上的任务按开始时间非递减排列，只允许在处理器末尾追加、从末尾移除
type Schedule struct {
	g          *graph.Graph
	processors [][]Task
	index      []Task
	placed     []bool
	stack      []*graph.Node
}

// NewSchedule 创建空调度（对外导出）
func NewSchedule(g *graph.Graph, processors int) (*Schedule, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: 任务图为空", ErrInvalidPlacement)
	}
	if processors <= 0 {
		return nil, fmt.Errorf("%w: 处理器数量必须大于 0, 实际: %d", ErrInvalidPlacement, processors)
	}
	return &Schedule{
		g:          g,
		processors: make([][]Task, processors),
		index:      make([]Task, g.Len()),
		placed:     make([]bool, g.Len()),
		stack:      make([]*graph.Node, 0, g.Len()),
	}, nil
}

// Graph 调度所属的任务图
func (s *Schedule) Graph() *graph.Graph {
	return s.g
}

// Processors 处理器数量
func (s *Schedule) Processors() int {
	return len(s.processors)
}

// Len 已放置任务数
func (s *Schedule) Len() int {
	return len(s.stack)
}

// Complete 是否所有节点都已放置
func (s *Schedule) Complete() bool {
	return len(s.stack) == s.g.Len()
}

// IsPlaced 节点是否已放置
func (s *Schedule) IsPlaced(n *graph.Node) bool {
	return s.placed[n.ID]
}

// TaskOf 获取节点对应的放置
func (s *Schedule) TaskOf(n *graph.Node) (Task, bool) {
	if !s.placed[n.ID] {
		return Task{}, false
	}
	return s.index[n.ID], true
}

// TasksOn 获取处理器上的任务列表（只读）
func (s *Schedule) TasksOn(p int) []Task {
	return s.processors[p]
}

// Tasks 按放置顺序返回全部任务
func (s *Schedule) Tasks() []Task {
	tasks := make([]Task, 0, len(s.stack))
	for _, n := range s.stack {
		tasks = append(tasks, s.index[n.ID])
	}
	return tasks
}

// Last 最近一次放置的任务
func (s *Schedule) Last() (Task, bool) {
	if len(s.stack) == 0 {
		return Task{}, false
	}
	return s.index[s.stack[len(s.stack)-1].ID], true
}

// LastOn 处理器上的最后一个任务
func (s *Schedule) LastOn(p int) (Task, bool) {
	list := s.processors[p]
	if len(list) == 0 {
		return Task{}, false
	}
	return list[len(list)-1], true
}

// IsProcessorEmpty 处理器上是否没有任务
func (s *Schedule) IsProcessorEmpty(p int) bool {
	return len(s.processors[p]) == 0
}

// ProcessorEnd 处理器的结束时间（空处理器为 0）
func (s *Schedule) ProcessorEnd(p int) int {
	list := s.processors[p]
	if len(list) == 0 {
		return 0
	}
	return list[len(list)-1].End()
}

// Makespan 所有处理器结束时间的最大值
func (s *Schedule) Makespan() int {
	m := 0
	for p := range s.processors {
		if end := s.ProcessorEnd(p); end > m {
			m = end
		}
	}
	return m
}

// DataReady 节点在处理器 p 上的数据就绪时间（对外导出）
// 只统计已放置的前驱；跨处理器的前驱需要加上通信代价
func (s *Schedule) DataReady(n *graph.Node, p int) int {
	ready := 0
	for _, e := range s.g.Incoming(n) {
		if !s.placed[e.Origin.ID] {
			continue
		}
		pred := s.index[e.Origin.ID]
		arrival := pred.End()
		if pred.Processor != p {
			arrival += e.Cost
		}
		if arrival > ready {
			ready = arrival
		}
	}
	return ready
}

// EarliestStart 节点追加到处理器 p 末尾时的最早开始时间（对外导出）
func (s *Schedule) EarliestStart(n *graph.Node, p int) int {
	start := s.ProcessorEnd(p)
	if ready := s.DataReady(n, p); ready > start {
		start = ready
	}
	return start
}

// Candidate 构造节点在处理器 p 上以最早开始时间放置的任务
func (s *Schedule) Candidate(n *graph.Node, p int) Task {
	return Task{Processor: p, Start: s.EarliestStart(n, p), Node: n}
}

// AddTask 在处理器末尾追加任务（对外导出）
// 拒绝越界处理器、重复放置、与处理器末尾重叠、前驱未放置以及违反依赖的放置
func (s *Schedule) AddTask(t Task) error {
	if t.Node == nil {
		return fmt.Errorf("%w: 任务节点为空", ErrInvalidPlacement)
	}
	if t.Processor < 0 || t.Processor >= len(s.processors) {
		return fmt.Errorf("%w: 处理器 %d 超出范围 [0,%d)", ErrInvalidPlacement, t.Processor, len(s.processors))
	}
	if t.Start < 0 {
		return fmt.Errorf("%w: 节点 %s 开始时间为负数 %d", ErrInvalidPlacement, t.Node.Label, t.Start)
	}
	if s.placed[t.Node.ID] {
		return fmt.Errorf("%w: 节点 %s 已放置", ErrInvalidPlacement, t.Node.Label)
	}
	if end := s.ProcessorEnd(t.Processor); t.Start < end {
		return fmt.Errorf("%w: 节点 %s 在处理器 %d 上开始于 %d, 早于处理器结束时间 %d",
			ErrInvalidPlacement, t.Node.Label, t.Processor, t.Start, end)
	}
	for _, e := range s.g.Incoming(t.Node) {
		if !s.placed[e.Origin.ID] {
			return fmt.Errorf("%w: 节点 %s 的前驱 %s 未放置", ErrInvalidPlacement, t.Node.Label, e.Origin.Label)
		}
	}
	if ready := s.DataReady(t.Node, t.Processor); t.Start < ready {
		return fmt.Errorf("%w: 节点 %s 开始于 %d, 早于数据就绪时间 %d",
			ErrInvalidPlacement, t.Node.Label, t.Start, ready)
	}

	s.processors[t.Processor] = append(s.processors[t.Processor], t)
	s.index[t.Node.ID] = t
	s.placed[t.Node.ID] = true
	s.stack = append(s.stack, t.Node)
	return nil
}

// RemoveTask 移除处理器上的最后一个任务（对外导出）
func (s *Schedule) RemoveTask(t Task) error {
	if t.Node == nil || t.Processor < 0 || t.Processor >= len(s.processors) {
		return fmt.Errorf("%w: 无效的移除请求 %v", ErrInvalidPlacement, t)
	}
	last, ok := s.LastOn(t.Processor)
	if !ok || last.Node != t.Node {
		return fmt.Errorf("%w: 节点 %s 不是处理器 %d 上的最后一个任务", ErrInvalidPlacement, t.Node.Label, t.Processor)
	}

	list := s.processors[t.Processor]
	s.processors[t.Processor] = list[:len(list)-1]
	s.placed[t.Node.ID] = false
	s.index[t.Node.ID] = Task{}
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i] == t.Node {
			s.stack = append(s.stack[:i], s.stack[i+1:]...)
			break
		}
	}
	return nil
}

// PopLast 回退最近一次放置（对外导出）
func (s *Schedule) PopLast() (Task, error) {
	last, ok := s.Last()
	if !ok {
		return Task{}, fmt.Errorf("%w: 调度为空", ErrInvalidPlacement)
	}
	return last, s.RemoveTask(last)
}

// Clone 深拷贝（节点引用共享）
func (s *Schedule) Clone() *Schedule {
	c := &Schedule{
		g:          s.g,
		processors: make([][]Task, len(s.processors)),
		index:      make([]Task, len(s.index)),
		placed:     make([]bool, len(s.placed)),
		stack:      make([]*graph.Node, len(s.stack), s.g.Len()),
	}
	for p, list := range s.processors {
		c.processors[p] = append(make([]Task, 0, len(list)+1), list...)
	}
	copy(c.index, s.index)
	copy(c.placed, s.placed)
	copy(c.stack, s.stack)
	return c
}

// Validate 全量校验调度不变量（对外导出）
// 处理器内不重叠且按开始时间有序；每条两端都已放置的边满足依赖与通信代价
func (s *Schedule) Validate() error {
	for p, list := range s.processors {
		for i, t := range list {
			if t.Processor != p {
				return fmt.Errorf("%w: 任务 %v 记录的处理器与所在处理器 %d 不一致", ErrInvalidPlacement, t, p)
			}
			if i > 0 && t.Start < list[i-1].End() {
				return fmt.Errorf("%w: 任务 %v 与 %v 重叠", ErrInvalidPlacement, list[i-1], t)
			}
		}
	}
	for _, e := range s.g.Edges() {
		if !s.placed[e.Origin.ID] || !s.placed[e.Destination.ID] {
			continue
		}
		u := s.index[e.Origin.ID]
		v := s.index[e.Destination.ID]
		need := u.End()
		if u.Processor != v.Processor {
			need += e.Cost
		}
		if v.Start < need {
			return fmt.Errorf("%w: 依赖 %s->%s 不满足, %s 开始于 %d, 最早应为 %d",
				ErrInvalidPlacement, e.Origin.Label, e.Destination.Label, v.Node.Label, v.Start, need)
		}
	}
	return nil
}

// String 按处理器输出调度
func (s *Schedule) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Schedule(makespan=%d)", s.Makespan())
	for p, list := range s.processors {
		fmt.Fprintf(&sb, "\n  P%d:", p)
		for _, t := range list {
			fmt.Fprintf(&sb, " %s[%d,%d)", t.Node.Label, t.Start, t.End())
		}
	}
	return sb.String()
}
