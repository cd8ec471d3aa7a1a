package cmd

import (
	"github.com/spf13/cobra"

	"github.com/LENAX/optsched/pkg/cli/client"
	"github.com/LENAX/optsched/pkg/cli/output"
)

// jobsCmd jobs子命令
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "定时求解任务命令",
}

// jobsListCmd 列出定时任务
var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出服务端注册的定时任务",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client.New(serverURL, 0).ListJobs()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(result)
		}
		if len(result.Items) == 0 {
			output.Info("暂无定时任务")
			return nil
		}
		table := output.NewTable("NAME", "GRAPH", "P", "CRON", "LAST RUN")
		for _, job := range result.Items {
			lastRun := job.LastRunID
			if lastRun == "" {
				lastRun = "-"
			}
			table.AddRow(job.Name, job.Graph, job.Processors, job.Cron, lastRun)
		}
		table.Render()
		return nil
	},
}

// jobsRunCmd 立即执行定时任务
var jobsRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "立即执行一次定时任务",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := client.New(serverURL, 0).RunJob(args[0])
		if err != nil {
			output.Error("执行失败: %v", err)
			return err
		}
		output.Success("定时任务 %s 已执行, RunID: %s", args[0], runID)
		return nil
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsRunCmd)
}
