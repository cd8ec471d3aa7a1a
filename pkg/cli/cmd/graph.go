package cmd

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/LENAX/optsched/pkg/cli/output"
	"github.com/LENAX/optsched/pkg/config"
	"github.com/LENAX/optsched/pkg/core/algorithm"
	"github.com/LENAX/optsched/pkg/core/bound"
	"github.com/LENAX/optsched/pkg/core/schedule"
	"github.com/LENAX/optsched/pkg/dot"
)

var graphProcessors int

// graphCmd graph子命令
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "任务图工具",
}

// GraphInfo 任务图摘要
type GraphInfo struct {
	Name           string `json:"name"`
	Nodes          int    `json:"nodes"`
	Edges          int    `json:"edges"`
	TotalCost      int    `json:"total_cost"`
	Fingerprint    string `json:"fingerprint"`
	Processors     int    `json:"processors"`
	LowerBound     int    `json:"lower_bound"`
	GreedyMakespan int    `json:"greedy_makespan"`
}

// graphInspectCmd 查看任务图
var graphInspectCmd = &cobra.Command{
	Use:   "inspect <graph.dot|->",
	Short: "校验任务图并输出下界与贪心上界",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readSource(cmd, args[0])
		if err != nil {
			output.Error("读取任务图失败: %v", err)
			return err
		}
		g, err := dot.NewReader(bytes.NewReader(src)).Read()
		if err != nil {
			output.Error("解析任务图失败: %v", err)
			return err
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			output.Error("加载配置失败: %v", err)
			return err
		}
		lb, err := bound.FromNames(cfg.GetBounds())
		if err != nil {
			return err
		}
		empty, err := schedule.NewSchedule(g, graphProcessors)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		greedy, err := algorithm.Greedy(g, graphProcessors)
		if err != nil {
			output.Error("贪心调度失败: %v", err)
			return err
		}

		info := GraphInfo{
			Name:           g.Name(),
			Nodes:          g.Len(),
			Edges:          len(g.Edges()),
			TotalCost:      g.TotalCost(),
			Fingerprint:    g.Fingerprint(),
			Processors:     graphProcessors,
			LowerBound:     lb.Estimate(g, empty, schedule.NewReadySet(g)),
			GreedyMakespan: greedy.Makespan(),
		}
		if outputJSON {
			return output.PrintJSON(info)
		}

		table := output.NewTable("NAME", "NODES", "EDGES", "TOTAL", "PROCESSORS", "LOWER BOUND", "GREEDY")
		table.AddRow(info.Name, info.Nodes, info.Edges, info.TotalCost, info.Processors, info.LowerBound, info.GreedyMakespan)
		table.Render()
		output.Info("Fingerprint: %s", info.Fingerprint)
		return nil
	},
}

func init() {
	graphInspectCmd.Flags().IntVarP(&graphProcessors, "processors", "p", 1, "处理器数")
	graphCmd.AddCommand(graphInspectCmd)
}
