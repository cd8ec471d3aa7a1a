package dot

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/LENAX/optsched/pkg/core/graph"
	"github.com/LENAX/optsched/pkg/core/schedule"
)

// Writer 把调度结果写成带 Start/Processor 属性的 DOT（对外导出）
// 文件中的处理器从 1 开始编号
type Writer struct {
	w io.Writer
}

// NewWriter 创建写入器
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write 写出调度结果；s 为 nil 时只写任务图
func (wr *Writer) Write(s *schedule.Schedule, g *graph.Graph) error {
	if s != nil && s.Graph() != g {
		return fmt.Errorf("调度结果与任务图不匹配")
	}
	bw := bufio.NewWriter(wr.w)
	name := g.Name()
	if name == "" {
		name = "schedule"
	}
	fmt.Fprintf(bw, "digraph %s {\n", quote(name))
	for _, n := range g.Nodes() {
		if s == nil {
			fmt.Fprintf(bw, "\t%s\t[Weight=%d];\n", quote(n.Label), n.Cost)
			continue
		}
		t, ok := s.TaskOf(n)
		if !ok {
			fmt.Fprintf(bw, "\t%s\t[Weight=%d];\n", quote(n.Label), n.Cost)
			continue
		}
		fmt.Fprintf(bw, "\t%s\t[Weight=%d,Start=%d,Processor=%d];\n", quote(n.Label), n.Cost, t.Start, t.Processor+1)
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(bw, "\t%s -> %s\t[Weight=%d];\n", quote(e.Origin.Label), quote(e.Destination.Label), e.Cost)
	}
	fmt.Fprintln(bw, "}")
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("写出 DOT 失败: %w", err)
	}
	return nil
}

// quote 纯标识符原样输出，关键字、数字开头或含其他字符时加引号
func quote(s string) string {
	if s == "" || keywords[strings.ToLower(s)] || (s[0] >= '0' && s[0] <= '9') {
		return quoteString(s)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return quoteString(s)
		}
	}
	return s
}

var keywords = map[string]bool{
	"strict": true, "graph": true, "digraph": true, "subgraph": true, "node": true, "edge": true,
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quoteString(s string) string {
	return `"` + escaper.Replace(s) + `"`
}

// Placement 读回的任务放置信息
type Placement struct {
	Label     string
	Start     int
	Processor int // 从 0 开始
}

// ReadSchedule 读取带 Start/Processor 属性的 DOT，重建任务图与调度（对外导出）
// 放置顺序按开始时间，保证依赖先于后继入栈
func ReadSchedule(r io.Reader, processors int) (*schedule.Schedule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("读取 DOT 输入失败: %w", err)
	}
	c, err := parse(data)
	if err != nil {
		return nil, err
	}
	g, err := c.build()
	if err != nil {
		return nil, err
	}
	placements, err := placementsOf(c)
	if err != nil {
		return nil, err
	}
	s, err := schedule.NewSchedule(g, processors)
	if err != nil {
		return nil, err
	}
	for _, n := range g.TopologicalOrder() {
		if _, ok := placements[n.Label]; !ok {
			return nil, fmt.Errorf("%w: 节点 %s 缺少 Start/Processor 属性", ErrParse, n.Label)
		}
	}
	order := g.TopologicalOrder()
	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n.Label] = i
	}
	sorted := make([]*graph.Node, len(order))
	copy(sorted, order)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		pa, pb := placements[a.Label], placements[b.Label]
		if pa.Start != pb.Start {
			return pa.Start < pb.Start
		}
		// 同一时刻开始时零代价任务先放
		if (a.Cost == 0) != (b.Cost == 0) {
			return a.Cost == 0
		}
		return pos[a.Label] < pos[b.Label]
	})
	for _, n := range sorted {
		pl := placements[n.Label]
		if err := s.AddTask(schedule.Task{Processor: pl.Processor, Start: pl.Start, Node: n}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// placementsOf 从节点属性中提取 Start/Processor
func placementsOf(c *collector) (map[string]Placement, error) {
	out := make(map[string]Placement)
	for _, label := range c.order {
		attrs := c.attrs[label]
		_, hasStart := attrs["start"]
		procRaw, hasProc := attrs["processor"]
		if !hasStart || !hasProc {
			continue
		}
		start, err := intAttr(attrs, "start", label)
		if err != nil {
			return nil, err
		}
		proc, err := intAttr(attrs, "processor", label)
		if err != nil || proc < 1 {
			return nil, fmt.Errorf("%w: 节点 %s 的 Processor 无效: %q", ErrParse, label, procRaw)
		}
		out[label] = Placement{Label: label, Start: start, Processor: proc - 1}
	}
	return out, nil
}
