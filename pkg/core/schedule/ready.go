package schedule

import "github.com/LENAX/optsched/pkg/core/graph"

// ReadySet 就绪节点集合（对外导出）
// 就绪 = 未放置且所有前驱均已放置；随 Place/Unplace 增量维护
type ReadySet struct {
	g         *graph.Graph
	remaining []int
	ready     []bool
	placed    []bool
	count     int
}

// NewReadySet 创建空调度对应的就绪集合（入口节点）
func NewReadySet(g *graph.Graph) *ReadySet {
	r := &ReadySet{
		g:         g,
		remaining: make([]int, g.Len()),
		ready:     make([]bool, g.Len()),
		placed:    make([]bool, g.Len()),
	}
	for _, n := range g.Nodes() {
		r.remaining[n.ID] = len(g.Incoming(n))
		if r.remaining[n.ID] == 0 {
			r.ready[n.ID] = true
			r.count++
		}
	}
	return r
}

// ReadySetFor 按已有部分调度重新计算就绪集合（对外导出）
func ReadySetFor(g *graph.Graph, s *Schedule) *ReadySet {
	r := &ReadySet{
		g:         g,
		remaining: make([]int, g.Len()),
		ready:     make([]bool, g.Len()),
		placed:    make([]bool, g.Len()),
	}
	for _, n := range g.Nodes() {
		r.placed[n.ID] = s.IsPlaced(n)
		for _, e := range g.Incoming(n) {
			if !s.IsPlaced(e.Origin) {
				r.remaining[n.ID]++
			}
		}
	}
	for _, n := range g.Nodes() {
		if !r.placed[n.ID] && r.remaining[n.ID] == 0 {
			r.ready[n.ID] = true
			r.count++
		}
	}
	return r
}

// Place 节点被放置：移出集合，并加入前驱全部放置的后继
func (r *ReadySet) Place(n *graph.Node) {
	if r.ready[n.ID] {
		r.ready[n.ID] = false
		r.count--
	}
	r.placed[n.ID] = true
	for _, e := range r.g.Outgoing(n) {
		d := e.Destination.ID
		r.remaining[d]--
		if r.remaining[d] == 0 && !r.placed[d] {
			r.ready[d] = true
			r.count++
		}
	}
}

// Unplace Place 的逆操作
func (r *ReadySet) Unplace(n *graph.Node) {
	for _, e := range r.g.Outgoing(n) {
		d := e.Destination.ID
		if r.remaining[d] == 0 && r.ready[d] {
			r.ready[d] = false
			r.count--
		}
		r.remaining[d]++
	}
	r.placed[n.ID] = false
	if r.remaining[n.ID] == 0 && !r.ready[n.ID] {
		r.ready[n.ID] = true
		r.count++
	}
}

// Contains 节点是否就绪
func (r *ReadySet) Contains(n *graph.Node) bool {
	return r.ready[n.ID]
}

// Nodes 按 ID 升序返回就绪节点
func (r *ReadySet) Nodes() []*graph.Node {
	nodes := make([]*graph.Node, 0, r.count)
	for id, ok := range r.ready {
		if ok {
			nodes = append(nodes, r.g.Node(id))
		}
	}
	return nodes
}

// Len 就绪节点数
func (r *ReadySet) Len() int {
	return r.count
}

// Empty 是否为空
func (r *ReadySet) Empty() bool {
	return r.count == 0
}

// Clone 深拷贝
func (r *ReadySet) Clone() *ReadySet {
	c := &ReadySet{
		g:         r.g,
		remaining: append([]int(nil), r.remaining...),
		ready:     append([]bool(nil), r.ready...),
		placed:    append([]bool(nil), r.placed...),
		count:     r.count,
	}
	return c
}
