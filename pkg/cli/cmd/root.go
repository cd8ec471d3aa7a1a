package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// 全局变量
	serverURL  string
	outputJSON bool
	configPath string
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "optsched",
	Short: "OptSched CLI - 最优任务图调度命令行工具",
	Long: `OptSched CLI 求解带通信开销的任务图在多处理器上的最优调度。

支持的功能：
  - 本地或远程求解 DOT 任务图（solve）
  - 查看任务图信息与下界（graph）
  - 查询、删除、取消运行记录（runs）
  - 查看和触发定时求解任务（jobs）
  - 启动HTTP API服务（server）

使用示例：
  # 在 2 个处理器上用 4 个线程求解
  optsched solve example.dot 2 -p 4 -o example.out.dot

  # 查看最近的运行记录
  optsched runs list --status FINISHED

  # 启动HTTP服务
  optsched server start --port 8080`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Root 根命令，供测试和嵌入使用
func Root() *cobra.Command {
	return rootCmd
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "OptSched服务器地址")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径")

	// 添加子命令
	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}
