package dao

import (
	"database/sql"
	"time"
)

// RunDAO solve_run表的数据访问对象（内部使用）
type RunDAO struct {
	ID             string         `db:"id"`
	GraphName      string         `db:"graph_name"`
	Fingerprint    string         `db:"fingerprint"`
	Processors     int            `db:"processors"`
	Threads        int            `db:"threads"`
	Status         string         `db:"status"`
	Makespan       int            `db:"makespan"`
	GreedyMakespan int            `db:"greedy_makespan"`
	Bounds         string         `db:"bounds"` // JSON格式存储
	Arborist       string         `db:"arborist"`
	Tiers          string         `db:"tiers"`
	Stats          string         `db:"stats"` // JSON格式存储
	ScheduleDOT    sql.NullString `db:"schedule_dot"`
	ErrorMessage   sql.NullString `db:"error_message"`
	Source         string         `db:"source"`
	DurationMS     int64          `db:"duration_ms"`
	CreateTime     time.Time      `db:"create_time"`
}

// RunColumns solve_run表的列，顺序与DDL一致
var RunColumns = []string{
	"id", "graph_name", "fingerprint", "processors", "threads", "status",
	"makespan", "greedy_makespan", "bounds", "arborist", "tiers", "stats",
	"schedule_dot", "error_message", "source", "duration_ms", "create_time",
}
