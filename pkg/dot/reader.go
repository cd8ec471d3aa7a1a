// Package dot 读写 DOT 格式的带权任务图与调度结果
//
// 支持的写法：
//
//	digraph "name" {
//		a [Weight=2];
//		a -> b [Weight=1];
//	}
//
// 节点与边的 Weight 分别为计算代价与通信代价；其余属性读取时忽略。
// 语法解析交给 gographviz，本包只负责把节点和边映射到 graph.Builder
package dot

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"

	"github.com/LENAX/optsched/pkg/core/graph"
)

// ErrParse DOT 解析失败（对外导出）
var ErrParse = errors.New("DOT 解析失败")

// Reader 从 io.Reader 读取任务图（对外导出）
type Reader struct {
	r io.Reader
}

// NewReader 创建读取器
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read 读取并构建任务图（对外导出）
// 语法错误包装为 ErrParse，图结构错误沿用 graph 包的错误
func (rd *Reader) Read() (*graph.Graph, error) {
	data, err := io.ReadAll(rd.r)
	if err != nil {
		return nil, fmt.Errorf("读取 DOT 输入失败: %w", err)
	}
	c, err := parse(data)
	if err != nil {
		return nil, err
	}
	return c.build()
}

// ReadString 便捷函数：从字符串读取任务图
func ReadString(src string) (*graph.Graph, error) {
	return NewReader(strings.NewReader(src)).Read()
}

// parse 用 gographviz 解析语法树，再分析到 collector
func parse(data []byte) (*collector, error) {
	tree, err := gographviz.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	c := newCollector()
	if err := gographviz.Analyse(tree, c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if c.err != nil {
		return nil, c.err
	}
	if !c.directed {
		return nil, fmt.Errorf("%w: 期望 digraph", ErrParse)
	}
	return c, nil
}

type collectedEdge struct {
	from, to string
	attrs    map[string]string
}

// collector 实现 gographviz.Interface，按首次出现顺序收集节点
// 属性键统一小写，引号已去除
type collector struct {
	name     string
	directed bool
	order    []string
	attrs    map[string]map[string]string
	edges    []collectedEdge
	err      error
}

var _ gographviz.Interface = (*collector)(nil)

func newCollector() *collector {
	return &collector{attrs: make(map[string]map[string]string)}
}

func (c *collector) SetStrict(strict bool) error {
	return nil
}

func (c *collector) SetDir(directed bool) error {
	c.directed = directed
	return nil
}

func (c *collector) SetName(name string) error {
	c.name = unquote(name)
	return nil
}

func (c *collector) AddPortEdge(src, srcPort, dst, dstPort string, directed bool, attrs map[string]string) error {
	from, to := unquote(src), unquote(dst)
	if !directed {
		c.fail(fmt.Errorf("%w: 边 %s -- %s 不是有向边", ErrParse, from, to))
		return nil
	}
	c.edges = append(c.edges, collectedEdge{from: from, to: to, attrs: normalize(attrs)})
	return nil
}

func (c *collector) AddEdge(src, dst string, directed bool, attrs map[string]string) error {
	return c.AddPortEdge(src, "", dst, "", directed, attrs)
}

// AddNode 重复声明的节点合并属性，后声明的覆盖先声明的
func (c *collector) AddNode(parentGraph string, name string, attrs map[string]string) error {
	label := unquote(name)
	merged, ok := c.attrs[label]
	if !ok {
		merged = make(map[string]string)
		c.attrs[label] = merged
		c.order = append(c.order, label)
	}
	for k, v := range normalize(attrs) {
		merged[k] = v
	}
	return nil
}

func (c *collector) AddAttr(parentGraph string, field, value string) error {
	return nil
}

func (c *collector) AddSubGraph(parentGraph string, name string, attrs map[string]string) error {
	return nil
}

func (c *collector) String() string {
	return c.name
}

func (c *collector) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// build 节点按首次出现顺序编号，交给 graph.Builder 校验
func (c *collector) build() (*graph.Graph, error) {
	b := graph.NewBuilder(c.name)
	for _, label := range c.order {
		attrs := c.attrs[label]
		if _, ok := attrs["weight"]; !ok {
			return nil, fmt.Errorf("%w: 节点 %s 缺少 Weight 属性", ErrParse, label)
		}
		w, err := intAttr(attrs, "weight", label)
		if err != nil {
			return nil, err
		}
		b.AddNode(label, w)
	}
	for _, e := range c.edges {
		w, err := intAttr(e.attrs, "weight", e.from+" -> "+e.to)
		if err != nil {
			return nil, err
		}
		b.AddEdge(e.from, e.to, w)
	}
	return b.Build()
}

func normalize(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[strings.ToLower(unquote(k))] = unquote(v)
	}
	return out
}

// intAttr 读取整数属性，缺省为 0
func intAttr(attrs map[string]string, key, owner string) (int, error) {
	raw, ok := attrs[key]
	if !ok {
		return 0, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s 的 %s 不是整数: %q", ErrParse, owner, key, raw)
	}
	return v, nil
}

var unescaper = strings.NewReplacer(`\"`, `"`, `\\`, `\`)

// unquote 去掉 DOT 字符串的双引号
func unquote(id string) string {
	if len(id) >= 2 && id[0] == '"' && id[len(id)-1] == '"' {
		return unescaper.Replace(id[1 : len(id)-1])
	}
	return id
}
