// Package storage 定义求解运行记录的持久化接口与SQL方言
package storage

import (
	"context"
	"time"
)

// RunStatus 运行状态
type RunStatus string

const (
	RunStatusFinished  RunStatus = "FINISHED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// RunRecord 一次求解运行的记录（对外导出）
type RunRecord struct {
	ID             string           // 运行唯一标识（UUID）
	GraphName      string           // 任务图名称
	Fingerprint    string           // 任务图内容指纹
	Processors     int              // 处理器数
	Threads        int              // 工作协程数
	Status         RunStatus        // 运行状态
	Makespan       int              // 最优 makespan，失败时为 0
	GreedyMakespan int              // 贪心初始解 makespan
	Bounds         []string         // 使用的下界
	Arborist       string           // 使用的剪枝器预置
	Tiers          string           // 分层配置摘要，如 "dfs:2,dfs:0"
	Stats          map[string]int64 // 搜索统计
	ScheduleDOT    string           // 最优调度的 DOT 表示
	Error          string           // 失败原因
	Source         string           // 触发来源：cli/api/cron:<job>
	Duration       time.Duration    // 耗时
	CreateTime     time.Time        // 创建时间
}

// RunFilter 运行记录查询条件
type RunFilter struct {
	Fingerprint string
	Status      RunStatus
	Limit       int // 0 表示默认 50
	Offset      int
}

// RunRepository 运行记录存储接口（对外导出）
type RunRepository interface {
	// SaveRun 保存运行记录（创建或覆盖）
	SaveRun(ctx context.Context, run *RunRecord) error
	// GetRun 根据ID查询，不存在时返回 nil, nil
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	// ListRuns 按创建时间倒序列出
	ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error)
	// DeleteRun 删除运行记录，返回是否存在
	DeleteRun(ctx context.Context, id string) (bool, error)
	// Close 关闭底层连接
	Close() error
}
