package output

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/LENAX/optsched/pkg/core/schedule"
)

// maxGanttWidth 甘特图最大列宽，超出时按比例缩放
const maxGanttWidth = 80

// Gantt 以文本甘特图输出调度，每行一个处理器
func Gantt(s *schedule.Schedule) {
	makespan := s.Makespan()
	if makespan == 0 {
		Info("空调度")
		return
	}
	scale := 1.0
	if makespan > maxGanttWidth {
		scale = float64(maxGanttWidth) / float64(makespan)
	}
	col := func(t int) int { return int(float64(t) * scale) }

	label := color.New(color.FgCyan, color.Bold)
	for p := 0; p < s.Processors(); p++ {
		line := []rune(strings.Repeat(".", col(makespan)))
		for _, t := range s.TasksOn(p) {
			from, to := col(t.Start), col(t.End())
			if to <= from {
				to = from + 1
			}
			for i := from; i < to && i < len(line); i++ {
				line[i] = '#'
			}
			// 空间足够时写入节点标签
			name := []rune(t.Node.Label)
			if len(name) <= to-from {
				copy(line[from:], name)
			}
		}
		label.Fprintf(Out, "P%-3d", p+1)
		fmt.Fprintf(Out, "|%s|\n", string(line))
	}
	fmt.Fprintf(Out, "    makespan=%d\n", makespan)
}
