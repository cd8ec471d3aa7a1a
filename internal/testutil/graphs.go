// Package testutil 提供测试共用的任务图样例与穷举求解器
package testutil

import (
	"fmt"
	"math/rand"

	"github.com/LENAX/optsched/pkg/core/graph"
	"github.com/LENAX/optsched/pkg/core/schedule"
)

// Sample 五节点样例图：a(3)->c(2,2), b(4)->d(1,3), c->e(3,4), b->e(2)，2 处理器最优为 9
func Sample() *graph.Graph {
	return mustBuild(graph.NewBuilder("sample").
		AddNode("a", 3).AddNode("b", 4).AddNode("c", 2).AddNode("d", 1).AddNode("e", 3).
		AddEdge("a", "c", 2).
		AddEdge("b", "d", 3).
		AddEdge("c", "e", 4).
		AddEdge("b", "e", 2))
}

// Chain 代价均为 cost 的 n 节点链
func Chain(n, cost int) *graph.Graph {
	b := graph.NewBuilder("chain")
	for i := 0; i < n; i++ {
		b.AddNode(fmt.Sprintf("n%d", i), cost)
		if i > 0 {
			b.AddEdge(fmt.Sprintf("n%d", i-1), fmt.Sprintf("n%d", i), 1)
		}
	}
	return mustBuild(b)
}

// ForkJoin 一个源节点分叉为 width 个分支再汇聚
func ForkJoin(width int) *graph.Graph {
	b := graph.NewBuilder("fork_join").AddNode("src", 2).AddNode("sink", 2)
	for i := 0; i < width; i++ {
		label := fmt.Sprintf("w%d", i)
		b.AddNode(label, 2+i%3).
			AddEdge("src", label, 1+i%2).
			AddEdge(label, "sink", 2-i%2)
	}
	return mustBuild(b)
}

// Independent 互不依赖的节点集合
func Independent(costs ...int) *graph.Graph {
	b := graph.NewBuilder("independent")
	for i, c := range costs {
		b.AddNode(fmt.Sprintf("t%d", i), c)
	}
	return mustBuild(b)
}

// Random 按种子生成的随机小 DAG（边只从小编号指向大编号）
func Random(seed int64, nodes int, density float64) *graph.Graph {
	rnd := rand.New(rand.NewSource(seed))
	b := graph.NewBuilder(fmt.Sprintf("random_%d", seed))
	for i := 0; i < nodes; i++ {
		b.AddNode(fmt.Sprintf("r%d", i), rnd.Intn(5))
	}
	for i := 0; i < nodes; i++ {
		for j := i + 1; j < nodes; j++ {
			if rnd.Float64() < density {
				b.AddEdge(fmt.Sprintf("r%d", i), fmt.Sprintf("r%d", j), rnd.Intn(4))
			}
		}
	}
	return mustBuild(b)
}

func mustBuild(b *graph.Builder) *graph.Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}

// BruteForce 不剪枝穷举部分调度的所有补全方式，返回可达的最小 makespan
// 每一步把任一就绪节点以最早开始时间追加到任一处理器；该搜索空间包含最优调度
func BruteForce(s *schedule.Schedule) int {
	g := s.Graph()
	ready := schedule.ReadySetFor(g, s)
	best := -1
	var walk func()
	walk = func() {
		if ready.Empty() {
			if m := s.Makespan(); best < 0 || m < best {
				best = m
			}
			return
		}
		for _, n := range ready.Nodes() {
			for p := 0; p < s.Processors(); p++ {
				t := s.Candidate(n, p)
				if err := s.AddTask(t); err != nil {
					panic(err)
				}
				ready.Place(n)
				walk()
				ready.Unplace(n)
				if err := s.RemoveTask(t); err != nil {
					panic(err)
				}
			}
		}
	}
	walk()
	return best
}

// RandomPrefix 随机放置 k 个就绪节点，得到一个合法的部分调度
func RandomPrefix(rnd *rand.Rand, g *graph.Graph, processors, k int) *schedule.Schedule {
	s, err := schedule.NewSchedule(g, processors)
	if err != nil {
		panic(err)
	}
	ready := schedule.NewReadySet(g)
	for i := 0; i < k && !ready.Empty(); i++ {
		nodes := ready.Nodes()
		n := nodes[rnd.Intn(len(nodes))]
		if err := s.AddTask(s.Candidate(n, rnd.Intn(processors))); err != nil {
			panic(err)
		}
		ready.Place(n)
	}
	return s
}
