package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LENAX/optsched/pkg/cli/client"
	"github.com/LENAX/optsched/pkg/cli/output"
	"github.com/LENAX/optsched/pkg/config"
	"github.com/LENAX/optsched/pkg/core/engine"
	"github.com/LENAX/optsched/pkg/dot"
)

var (
	solveProcessors int
	solveThreads    int
	solveOutput     string
	solveTimeout    time.Duration
	solveRemote     bool
	solveNoStore    bool
	solveSkipCache  bool
	solveGantt      bool
)

// solveCmd 求解命令
var solveCmd = &cobra.Command{
	Use:   "solve <graph.dot|-> [processors]",
	Short: "求解任务图的最优调度",
	Long: `读取 DOT 任务图并求解最优调度，结果以 DOT 输出（节点带 Start 和 Processor 属性）。

处理器数可作为第二个参数给出，也可用 --processors 指定。
未指定 --output 时结果写到标准输出。使用 --remote 时提交给 --server 指定的服务求解。

示例：
  optsched solve example.dot 2
  optsched solve example.dot 4 -p 8 -o example.out.dot --gantt
  cat example.dot | optsched solve - 2 --remote`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				output.Error("处理器数无效: %s", args[1])
				return fmt.Errorf("invalid processor count %q: %w", args[1], err)
			}
			solveProcessors = n
		}
		src, err := readSource(cmd, args[0])
		if err != nil {
			output.Error("读取任务图失败: %v", err)
			return err
		}
		if solveRemote {
			return solveOnServer(cmd, src)
		}
		return solveLocally(cmd, src)
	},
}

func readSource(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func solveLocally(cmd *cobra.Command, src []byte) error {
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
	if solveTimeout > 0 {
		cfg.OptSched.Search.Timeout = solveTimeout
	}
	builder := engine.NewEngineBuilder("").WithConfig(cfg).WithoutEvents()
	if solveNoStore {
		builder = builder.WithoutStorage()
	}
	eng, err := builder.Build()
	if err != nil {
		output.Error("创建Engine失败: %v", err)
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	res, err := eng.Solve(ctx, engine.SolveRequest{
		Graph:      g,
		Processors: solveProcessors,
		Threads:    solveThreads,
		Source:     "cli",
		SkipCache:  solveSkipCache,
	})
	if err != nil {
		output.Error("求解失败: %v", err)
		return err
	}

	var buf bytes.Buffer
	if err := dot.NewWriter(&buf).Write(res.Schedule, g); err != nil {
		output.Error("生成调度DOT失败: %v", err)
		return err
	}
	if err := emitSchedule(cmd, buf.Bytes()); err != nil {
		return err
	}

	if outputJSON {
		return output.PrintJSON(res)
	}
	if solveGantt {
		output.Gantt(res.Schedule)
	}
	if solveOutput != "" {
		output.Success("最优调度 makespan=%d（贪心 %d），展开 %d 个状态，耗时 %v",
			res.Makespan, res.GreedyMakespan, res.Stats.Expanded, res.Duration.Round(time.Millisecond))
		output.Info("RunID: %s", res.RunID)
	}
	return nil
}

func solveOnServer(cmd *cobra.Command, src []byte) error {
	c := client.New(serverURL, solveTimeout)
	res, err := c.Solve(string(src), solveProcessors, solveThreads, solveSkipCache)
	if err != nil {
		output.Error("远程求解失败: %v", err)
		return err
	}
	if err := emitSchedule(cmd, []byte(res.DOT)); err != nil {
		return err
	}
	if outputJSON {
		return output.PrintJSON(res)
	}
	if solveOutput != "" {
		output.Success("最优调度 makespan=%d（贪心 %d），耗时 %s", res.Makespan, res.GreedyMakespan, res.Duration)
		output.Info("RunID: %s", res.RunID)
	}
	return nil
}

// emitSchedule 写出结果 DOT；未指定输出文件且非 JSON 模式时写到标准输出
func emitSchedule(cmd *cobra.Command, data []byte) error {
	if solveOutput == "" {
		if outputJSON {
			return nil
		}
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(solveOutput, data, 0o644); err != nil {
		output.Error("写出结果失败: %v", err)
		return fmt.Errorf("write %s: %w", solveOutput, err)
	}
	return nil
}

func init() {
	solveCmd.Flags().IntVar(&solveProcessors, "processors", 1, "处理器数（第二个参数优先）")
	solveCmd.Flags().IntVarP(&solveThreads, "parallel", "p", 0, "搜索线程数（默认取配置）")
	solveCmd.Flags().StringVarP(&solveOutput, "output", "o", "", "结果 DOT 输出路径")
	solveCmd.Flags().DurationVar(&solveTimeout, "timeout", 0, "求解超时（0 表示不限）")
	solveCmd.Flags().BoolVar(&solveRemote, "remote", false, "提交给服务端求解")
	solveCmd.Flags().BoolVar(&solveNoStore, "no-store", false, "不保存运行记录")
	solveCmd.Flags().BoolVar(&solveSkipCache, "skip-cache", false, "忽略缓存")
	solveCmd.Flags().BoolVar(&solveGantt, "gantt", false, "输出文本甘特图")
}
