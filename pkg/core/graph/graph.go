// Package graph 提供任务图（带计算代价的节点 + 带通信代价的依赖边）的不可变模型
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyGraph 空图错误（对外导出）
	ErrEmptyGraph = errors.New("任务图为空")
	// ErrCycle 循环依赖错误（对外导出）
	ErrCycle = errors.New("任务图存在循环依赖")
	// ErrInvalidGraph 非法图结构错误（对外导出）
	ErrInvalidGraph = errors.New("任务图结构非法")
)

// Node 任务节点（对外导出）
// ID 为 0..N-1 的稠密编号，由 Builder 按添加顺序分配
type Node struct {
	ID    int
	Label string
	Cost  int
}

// Edge 依赖边（对外导出）
type Edge struct {
	Origin      *Node
	Destination *Node
	Cost        int
}

// Graph 不可变任务图（对外导出）
type Graph struct {
	name      string
	nodes     []*Node
	edges     []*Edge
	incoming  [][]*Edge
	outgoing  [][]*Edge
	entries   []*Node
	topo      []*Node
	byLabel   map[string]*Node
	edgeCost  map[[2]int]int
	maxOut    []int
	totalCost int
}

// Name 图名称
func (g *Graph) Name() string {
	return g.name
}

// Len 节点数量
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes 按 ID 升序返回全部节点（对外导出）
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Edges 按添加顺序返回全部边（对外导出）
func (g *Graph) Edges() []*Edge {
	return g.edges
}

// Node 按 ID 获取节点
func (g *Graph) Node(id int) *Node {
	if id < 0 || id >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// NodeByLabel 按标签获取节点
func (g *Graph) NodeByLabel(label string) (*Node, bool) {
	n, ok := g.byLabel[label]
	return n, ok
}

// Incoming 获取节点的入边（对外导出）
func (g *Graph) Incoming(n *Node) []*Edge {
	return g.incoming[n.ID]
}

// Outgoing 获取节点的出边（对外导出）
func (g *Graph) Outgoing(n *Node) []*Edge {
	return g.outgoing[n.ID]
}

// Entries 获取入口节点（没有入边的节点）
func (g *Graph) Entries() []*Node {
	return g.entries
}

// TopologicalOrder 拓扑序（Kahn 算法，同层按 ID 升序）
func (g *Graph) TopologicalOrder() []*Node {
	return g.topo
}

// EdgeCost 获取 from->to 的通信代价，边不存在时返回 false
func (g *Graph) EdgeCost(from, to *Node) (int, bool) {
	c, ok := g.edgeCost[[2]int{from.ID, to.ID}]
	return c, ok
}

// HasEdge 判断是否存在 from->to 的边
func (g *Graph) HasEdge(from, to *Node) bool {
	_, ok := g.edgeCost[[2]int{from.ID, to.ID}]
	return ok
}

// MaxOutgoingCost 节点出边的最大通信代价，无出边时为 0
func (g *Graph) MaxOutgoingCost(n *Node) int {
	return g.maxOut[n.ID]
}

// TotalCost 全部节点计算代价之和
func (g *Graph) TotalCost() int {
	return g.totalCost
}

// Fingerprint 图内容指纹（对外导出）
// 只依赖节点标签、代价与边，不依赖图名称，用于结果缓存与运行记录去重
func (g *Graph) Fingerprint() string {
	var sb strings.Builder
	for _, n := range g.nodes {
		fmt.Fprintf(&sb, "n %s %d\n", n.Label, n.Cost)
	}
	for _, e := range g.edges {
		fmt.Fprintf(&sb, "e %s %s %d\n", e.Origin.Label, e.Destination.Label, e.Cost)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// String 简要描述
func (g *Graph) String() string {
	return fmt.Sprintf("Graph(%s, nodes=%d, edges=%d)", g.name, len(g.nodes), len(g.edges))
}
