package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LENAX/optsched/pkg/api"
	"github.com/LENAX/optsched/pkg/cli/output"
	"github.com/LENAX/optsched/pkg/config"
	"github.com/LENAX/optsched/pkg/core/engine"
)

var (
	serverPort int
	serverHost string
)

// serverCmd server子命令
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "服务管理命令",
	Long:  `管理OptSched HTTP API服务。`,
}

// serverStartCmd 启动服务
var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动HTTP API服务",
	Long: `启动OptSched HTTP API服务，同时启动配置中的定时求解任务。

示例：
  # 使用默认配置启动
  optsched server start

  # 指定端口和配置文件启动
  optsched server start --port 8080 --config ./configs/optsched.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			// 尝试默认配置路径
			for _, p := range []string{"./configs/optsched.yaml", "./config/optsched.yaml", "./optsched.yaml"} {
				if _, err := os.Stat(p); err == nil {
					configPath = p
					break
				}
			}
		}
		if configPath != "" {
			output.Info("使用配置文件: %s", configPath)
		} else {
			output.Warning("未找到配置文件，使用默认配置")
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			output.Error("加载配置失败: %v", err)
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.OptSched.Server.Port = serverPort
		}
		if cmd.Flags().Changed("host") {
			cfg.OptSched.Server.Host = serverHost
		}

		eng, err := engine.NewEngineBuilder("").WithConfig(cfg).Build()
		if err != nil {
			output.Error("创建Engine失败: %v", err)
			return err
		}
		defer eng.Close()

		if err := eng.Start(context.Background()); err != nil {
			output.Error("启动Engine失败: %v", err)
			return err
		}

		serverConfig := api.ServerConfigFrom(cfg)
		apiServer := api.NewAPIServer(eng, serverConfig, Version)

		go func() {
			if err := apiServer.Start(); err != nil {
				log.Printf("❌ API服务器错误: %v", err)
			}
		}()

		output.Success("OptSched Server started on %s", apiServer.Addr())

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		output.Info("正在关闭服务...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ReadTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			output.Error("关闭API服务器失败: %v", err)
		}

		eng.Stop()
		output.Success("服务已停止")
		return nil
	},
}

func init() {
	serverStartCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "监听端口")
	serverStartCmd.Flags().StringVarP(&serverHost, "host", "H", "0.0.0.0", "监听地址")

	serverCmd.AddCommand(serverStartCmd)
}
