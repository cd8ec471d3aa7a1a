package dto

import "time"

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// TaskPlacement 单个任务的放置，处理器从 1 开始编号
type TaskPlacement struct {
	Label     string `json:"label"`
	Processor int    `json:"processor"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
}

// SolveResponse 求解响应
type SolveResponse struct {
	RunID          string           `json:"run_id"`
	Graph          string           `json:"graph"`
	Processors     int              `json:"processors"`
	Makespan       int              `json:"makespan"`
	GreedyMakespan int              `json:"greedy_makespan"`
	FromCache      bool             `json:"from_cache"`
	Threads        int              `json:"threads"`
	Duration       string           `json:"duration"`
	Stats          map[string]int64 `json:"stats,omitempty"`
	Tasks          []TaskPlacement  `json:"tasks"`
	DOT            string           `json:"dot"`
}

// RunSummary 运行记录摘要
type RunSummary struct {
	ID             string    `json:"id"`
	GraphName      string    `json:"graph_name"`
	Fingerprint    string    `json:"fingerprint"`
	Processors     int       `json:"processors"`
	Status         string    `json:"status"`
	Makespan       int       `json:"makespan"`
	GreedyMakespan int       `json:"greedy_makespan"`
	Source         string    `json:"source"`
	Duration       string    `json:"duration"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// RunDetail 运行记录详情
type RunDetail struct {
	RunSummary
	Threads  int              `json:"threads"`
	Bounds   []string         `json:"bounds"`
	Arborist string           `json:"arborist"`
	Tiers    string           `json:"tiers"`
	Stats    map[string]int64 `json:"stats"`
	DOT      string           `json:"dot,omitempty"`
}

// JobSummary 定时任务摘要
type JobSummary struct {
	Name       string `json:"name"`
	Graph      string `json:"graph"`
	Processors int    `json:"processors"`
	Cron       string `json:"cron"`
	Output     string `json:"output,omitempty"`
	LastRunID  string `json:"last_run_id,omitempty"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	Timestamp  string `json:"timestamp"`
	ActiveRuns int    `json:"active_runs"`
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total   int  `json:"total"`
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`
}
