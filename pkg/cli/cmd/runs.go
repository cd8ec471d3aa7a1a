package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LENAX/optsched/pkg/cli/client"
	"github.com/LENAX/optsched/pkg/cli/output"
)

var (
	runsStatus      string
	runsFingerprint string
	runsLimit       int
	runsOffset      int
)

// runsCmd runs子命令
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "运行记录管理命令",
	Long:  `通过 --server 指定的服务查询、删除和取消求解运行记录。`,
}

// runsListCmd 列出运行记录
var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出运行记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client.New(serverURL, 0).ListRuns(runsStatus, runsFingerprint, runsLimit, runsOffset)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(result)
		}
		if len(result.Items) == 0 {
			output.Info("暂无运行记录")
			return nil
		}

		table := output.NewTable("ID", "GRAPH", "P", "STATUS", "MAKESPAN", "GREEDY", "SOURCE", "DURATION", "CREATED")
		for _, run := range result.Items {
			table.AddRow(run.ID, run.GraphName, run.Processors, run.Status, run.Makespan, run.GreedyMakespan,
				run.Source, run.Duration, run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		table.Render()
		if result.HasMore {
			output.Info("还有更多记录，使用 --offset %d 查看下一页", runsOffset+len(result.Items))
		}
		return nil
	},
}

// runsShowCmd 查看运行记录详情
var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "查看运行记录详情",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := client.New(serverURL, 0).GetRun(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(run)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run:         %s\n", run.ID)
		fmt.Fprintf(out, "Graph:       %s (%s)\n", run.GraphName, run.Fingerprint)
		fmt.Fprintf(out, "Status:      %s\n", run.Status)
		fmt.Fprintf(out, "Processors:  %d\n", run.Processors)
		fmt.Fprintf(out, "Threads:     %d\n", run.Threads)
		fmt.Fprintf(out, "Makespan:    %d (greedy %d)\n", run.Makespan, run.GreedyMakespan)
		fmt.Fprintf(out, "Bounds:      %v\n", run.Bounds)
		fmt.Fprintf(out, "Arborist:    %s\n", run.Arborist)
		fmt.Fprintf(out, "Tiers:       %s\n", run.Tiers)
		fmt.Fprintf(out, "Duration:    %s\n", run.Duration)
		fmt.Fprintf(out, "Source:      %s\n", run.Source)
		if run.ErrorMessage != "" {
			output.Warning("错误: %s", run.ErrorMessage)
		}
		if len(run.Stats) > 0 {
			table := output.NewTable("STAT", "VALUE")
			for _, key := range []string{"expanded", "bound_pruned", "arborist_cut", "terminals", "deferred", "max_open_states", "improvements", "inline"} {
				if v, ok := run.Stats[key]; ok {
					table.AddRow(key, v)
				}
			}
			table.Render()
		}
		return nil
	},
}

// runsScheduleCmd 输出运行的调度结果
var runsScheduleCmd = &cobra.Command{
	Use:   "schedule <id>",
	Short: "以 DOT 输出运行的最优调度",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := client.New(serverURL, 0).GetRun(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if run.DOT == "" {
			output.Warning("运行 %s 没有调度结果（状态 %s）", run.ID, run.Status)
			return fmt.Errorf("run %s has no schedule", run.ID)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), run.DOT)
		return err
	},
}

// runsDeleteCmd 删除运行记录
var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "删除运行记录",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.New(serverURL, 0).DeleteRun(args[0]); err != nil {
			output.Error("删除失败: %v", err)
			return err
		}
		output.Success("运行记录 %s 已删除", args[0])
		return nil
	},
}

// runsCancelCmd 取消运行中的求解
var runsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "取消运行中的求解",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.New(serverURL, 0).CancelRun(args[0]); err != nil {
			output.Error("取消失败: %v", err)
			return err
		}
		output.Success("求解 %s 已取消", args[0])
		return nil
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "按状态过滤（FINISHED/FAILED/CANCELLED）")
	runsListCmd.Flags().StringVar(&runsFingerprint, "fingerprint", "", "按任务图指纹过滤")
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "l", 20, "返回数量")
	runsListCmd.Flags().IntVar(&runsOffset, "offset", 0, "偏移量")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsScheduleCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsCmd.AddCommand(runsCancelCmd)
}
