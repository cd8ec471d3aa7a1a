package graph

import (
	"fmt"
	"sort"

	dag "github.com/begmaroman/go-dag"
)

// vertex go-dag 顶点，实现 ID() 接口
// go-dag 以 JSON 编码计算顶点哈希，字段必须导出
type vertex struct {
	Label string `json:"label"`
}

// ID 实现 go-dag 的 Identifiable 接口
func (v *vertex) ID() string {
	return v.Label
}

type pendingEdge struct {
	from, to string
	cost     int
}

// Builder 任务图构建器（对外导出）
// 节点 ID 按 AddNode 调用顺序稠密分配；所有校验在 Build 时统一完成
type Builder struct {
	name   string
	nodes  []*Node
	labels map[string]*Node
	edges  []pendingEdge
	errs   []error
}

// NewBuilder 创建构建器（对外导出）
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		labels: make(map[string]*Node),
	}
}

// AddNode 添加节点
func (b *Builder) AddNode(label string, cost int) *Builder {
	if label == "" {
		b.errs = append(b.errs, fmt.Errorf("%w: 节点标签为空", ErrInvalidGraph))
		return b
	}
	if cost < 0 {
		b.errs = append(b.errs, fmt.Errorf("%w: 节点 %s 计算代价为负数 %d", ErrInvalidGraph, label, cost))
		return b
	}
	if _, exists := b.labels[label]; exists {
		b.errs = append(b.errs, fmt.Errorf("%w: 节点 %s 重复定义", ErrInvalidGraph, label))
		return b
	}
	n := &Node{ID: len(b.nodes), Label: label, Cost: cost}
	b.nodes = append(b.nodes, n)
	b.labels[label] = n
	return b
}

// HasNode 判断节点是否已添加
func (b *Builder) HasNode(label string) bool {
	_, ok := b.labels[label]
	return ok
}

// AddEdge 添加依赖边 from->to
func (b *Builder) AddEdge(from, to string, cost int) *Builder {
	if cost < 0 {
		b.errs = append(b.errs, fmt.Errorf("%w: 边 %s->%s 通信代价为负数 %d", ErrInvalidGraph, from, to, cost))
		return b
	}
	b.edges = append(b.edges, pendingEdge{from: from, to: to, cost: cost})
	return b
}

// Build 校验并生成不可变任务图（对外导出）
func (b *Builder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.nodes) == 0 {
		return nil, ErrEmptyGraph
	}

	n := len(b.nodes)
	g := &Graph{
		name:     b.name,
		nodes:    b.nodes,
		incoming: make([][]*Edge, n),
		outgoing: make([][]*Edge, n),
		byLabel:  b.labels,
		edgeCost: make(map[[2]int]int, len(b.edges)),
		maxOut:   make([]int, n),
	}
	for _, node := range g.nodes {
		g.totalCost += node.Cost
	}

	// 1. 解析边端点，拒绝自环与重复边
	for _, pe := range b.edges {
		from, ok := b.labels[pe.from]
		if !ok {
			return nil, fmt.Errorf("%w: 边 %s->%s 的起点不存在", ErrInvalidGraph, pe.from, pe.to)
		}
		to, ok := b.labels[pe.to]
		if !ok {
			return nil, fmt.Errorf("%w: 边 %s->%s 的终点不存在", ErrInvalidGraph, pe.from, pe.to)
		}
		if from == to {
			return nil, fmt.Errorf("%w: 节点 %s 存在自环", ErrCycle, pe.from)
		}
		key := [2]int{from.ID, to.ID}
		if _, dup := g.edgeCost[key]; dup {
			return nil, fmt.Errorf("%w: 边 %s->%s 重复定义", ErrInvalidGraph, pe.from, pe.to)
		}
		e := &Edge{Origin: from, Destination: to, Cost: pe.cost}
		g.edgeCost[key] = pe.cost
		g.edges = append(g.edges, e)
		g.outgoing[from.ID] = append(g.outgoing[from.ID], e)
		g.incoming[to.ID] = append(g.incoming[to.ID], e)
		if pe.cost > g.maxOut[from.ID] {
			g.maxOut[from.ID] = pe.cost
		}
	}

	// 2. 交给 go-dag 做循环检测（AddEdge 发现回路时返回错误）
	if err := detectCycle(g); err != nil {
		return nil, err
	}

	// 3. Kahn 拓扑排序
	topo, err := kahn(g)
	if err != nil {
		return nil, err
	}
	g.topo = topo

	for _, node := range g.nodes {
		if len(g.incoming[node.ID]) == 0 {
			g.entries = append(g.entries, node)
		}
	}
	return g, nil
}

// detectCycle 使用 go-dag 检测循环依赖
func detectCycle(g *Graph) error {
	d := dag.NewDAG[*vertex]()
	for _, node := range g.nodes {
		if _, err := d.AddVertex(&vertex{Label: node.Label}); err != nil {
			return fmt.Errorf("%w: 添加节点 %s 失败: %v", ErrInvalidGraph, node.Label, err)
		}
	}
	for _, e := range g.edges {
		if err := d.AddEdge(e.Origin.Label, e.Destination.Label); err != nil {
			return fmt.Errorf("%w: %s -> %s: %v", ErrCycle, e.Origin.Label, e.Destination.Label, err)
		}
	}
	return nil
}

// kahn 按层执行拓扑排序，层内按 ID 升序
func kahn(g *Graph) ([]*Node, error) {
	inDegree := make([]int, len(g.nodes))
	for _, e := range g.edges {
		inDegree[e.Destination.ID]++
	}
	queue := make([]*Node, 0)
	for _, node := range g.nodes {
		if inDegree[node.ID] == 0 {
			queue = append(queue, node)
		}
	}

	order := make([]*Node, 0, len(g.nodes))
	for len(queue) > 0 {
		next := make([]*Node, 0)
		for _, node := range queue {
			order = append(order, node)
			for _, e := range g.outgoing[node.ID] {
				inDegree[e.Destination.ID]--
				if inDegree[e.Destination.ID] == 0 {
					next = append(next, e.Destination)
				}
			}
		}
		sort.Slice(next, func(i, j int) bool { return next[i].ID < next[j].ID })
		queue = next
	}

	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("%w: 拓扑排序仅覆盖 %d/%d 个节点", ErrCycle, len(order), len(g.nodes))
	}
	return order, nil
}
