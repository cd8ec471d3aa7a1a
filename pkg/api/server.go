// Package api 提供求解引擎的 HTTP/WebSocket 接口
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/LENAX/optsched/pkg/config"
	"github.com/LENAX/optsched/pkg/core/engine"
)

// ServerConfig API服务器配置
type ServerConfig struct {
	Host         string        // 监听地址
	Port         int           // 监听端口
	ReadTimeout  time.Duration // 读取超时
	WriteTimeout time.Duration // 写入超时，需覆盖最长求解时间
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
}

// ServerConfigFrom 从引擎配置读取服务器配置
func ServerConfigFrom(cfg *config.EngineConfig) ServerConfig {
	s := cfg.OptSched.Server
	out := DefaultServerConfig()
	if s.Host != "" {
		out.Host = s.Host
	}
	if s.Port > 0 {
		out.Port = s.Port
	}
	if s.ReadTimeout > 0 {
		out.ReadTimeout = s.ReadTimeout
	}
	if s.WriteTimeout > 0 {
		out.WriteTimeout = s.WriteTimeout
	}
	return out
}

// APIServer HTTP API服务器
type APIServer struct {
	engine     *engine.Engine
	httpServer *http.Server
	config     ServerConfig
	version    string
}

// NewAPIServer 创建API服务器
func NewAPIServer(eng *engine.Engine, cfg ServerConfig, version string) *APIServer {
	s := &APIServer{
		engine:  eng,
		config:  cfg,
		version: version,
	}
	s.httpServer = &http.Server{
		Addr:         s.Addr(),
		Handler:      SetupRouter(eng, version),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start 启动服务器，阻塞直到关闭
func (s *APIServer) Start() error {
	log.Printf("🚀 [API] OptSched API Server starting on %s", s.Addr())

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen failed: %w", err)
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *APIServer) Shutdown(ctx context.Context) error {
	log.Println("🛑 [API] Shutting down API Server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("✅ [API] API Server stopped")
	return nil
}

// Handler 路由处理器
func (s *APIServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr 获取服务器地址
func (s *APIServer) Addr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}
