package output

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Table 简单表格输出
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable 创建表格
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &Table{headers: headers, widths: widths}
}

// AddRow 添加行，列数不足时补空
func (t *Table) AddRow(cells ...interface{}) {
	row := make([]string, len(t.headers))
	for i := range row {
		if i < len(cells) {
			row[i] = fmt.Sprint(cells[i])
		}
		if len(row[i]) > t.widths[i] {
			t.widths[i] = len(row[i])
		}
	}
	t.rows = append(t.rows, row)
}

// Len 数据行数
func (t *Table) Len() int {
	return len(t.rows)
}

// Render 渲染表格
func (t *Table) Render() {
	header := color.New(color.FgCyan, color.Bold)
	for i, h := range t.headers {
		header.Fprintf(Out, "%-*s  ", t.widths[i], h)
	}
	fmt.Fprintln(Out)

	for i := range t.headers {
		fmt.Fprint(Out, strings.Repeat("-", t.widths[i])+"  ")
	}
	fmt.Fprintln(Out)

	for _, row := range t.rows {
		for i, cell := range row {
			fmt.Fprintf(Out, "%-*s  ", t.widths[i], cell)
		}
		fmt.Fprintln(Out)
	}
}
