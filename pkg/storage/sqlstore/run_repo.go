// Package sqlstore 基于 sqlx 的运行记录存储，SQL差异由 storage.Dialect 处理
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/optsched/pkg/storage"
	"github.com/LENAX/optsched/pkg/storage/dao"
)

const runTable = "solve_run"

// runSchema SQLite风格的基础DDL，由方言转换
const runSchema = `
CREATE TABLE IF NOT EXISTS solve_run (
	id VARCHAR(36) PRIMARY KEY,
	graph_name VARCHAR(255) NOT NULL,
	fingerprint VARCHAR(64) NOT NULL,
	processors INTEGER NOT NULL,
	threads INTEGER NOT NULL,
	status VARCHAR(32) NOT NULL,
	makespan INTEGER NOT NULL,
	greedy_makespan INTEGER NOT NULL,
	bounds TEXT,
	arborist VARCHAR(64),
	tiers VARCHAR(255),
	stats TEXT,
	schedule_dot TEXT,
	error_message TEXT,
	source VARCHAR(128),
	duration_ms BIGINT NOT NULL,
	create_time DATETIME NOT NULL
);
`

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RunRepo 运行记录Repository的SQL实现（对外导出）
type RunRepo struct {
	db      *sqlx.DB
	dialect storage.Dialect
}

// NewRunRepo 用已有连接创建Repository并初始化表结构（对外导出）
func NewRunRepo(db *sqlx.DB, dialect storage.Dialect) (*RunRepo, error) {
	repo := &RunRepo{db: db, dialect: dialect}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return repo, nil
}

// Open 通过DSN打开数据库并创建Repository（对外导出）
func Open(dialect storage.Dialect, dsn string, pool PoolConfig) (*RunRepo, error) {
	normalized, err := dialect.NormalizeDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("解析DSN失败: %w", err)
	}
	db, err := sqlx.Open(dialect.DriverName(), normalized)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			log.Printf("⚠️ [Storage] %s 配置语句执行失败: %s: %v", dialect.Name(), stmt, err)
		}
	}

	repo, err := NewRunRepo(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// GetDB 获取底层数据库连接（对外导出）
func (r *RunRepo) GetDB() *sqlx.DB {
	return r.db
}

// Close 关闭数据库连接（对外导出）
func (r *RunRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// initSchema 初始化数据库表结构
func (r *RunRepo) initSchema() error {
	stmts := []string{
		r.dialect.CreateTableSQL(runSchema),
		r.dialect.CreateIndexSQL(runTable, "idx_solve_run_fingerprint", "fingerprint"),
		r.dialect.CreateIndexSQL(runTable, "idx_solve_run_create_time", "create_time"),
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			// MySQL 重复建索引会报错，忽略这类错误
			msg := err.Error()
			if strings.Contains(msg, "already exists") || strings.Contains(msg, "Duplicate key name") {
				continue
			}
			return fmt.Errorf("执行SQL失败: %w", err)
		}
	}
	return nil
}

// SaveRun 保存运行记录（对外导出）
func (r *RunRepo) SaveRun(ctx context.Context, run *storage.RunRecord) error {
	if run == nil || run.ID == "" {
		return errors.New("运行记录ID不能为空")
	}
	runDAO, err := toDAO(run)
	if err != nil {
		return err
	}
	upsert := r.dialect.UpsertSQL(runTable, dao.RunColumns, "id", dao.RunColumns[1:])
	if _, err := r.db.NamedExecContext(ctx, upsert, runDAO); err != nil {
		return fmt.Errorf("保存运行记录失败: %w", err)
	}
	return nil
}

// GetRun 根据ID查询运行记录（对外导出）
func (r *RunRepo) GetRun(ctx context.Context, id string) (*storage.RunRecord, error) {
	var runDAO dao.RunDAO
	query := r.db.Rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, strings.Join(dao.RunColumns, ", "), runTable))
	if err := r.db.GetContext(ctx, &runDAO, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询运行记录失败: %w", err)
	}
	return fromDAO(&runDAO)
}

// ListRuns 列出运行记录（对外导出）
func (r *RunRepo) ListRuns(ctx context.Context, filter storage.RunFilter) ([]*storage.RunRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Fingerprint != "" {
		where = append(where, "fingerprint = ?")
		args = append(args, filter.Fingerprint)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(dao.RunColumns, ", "), runTable)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY create_time DESC, id ASC LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	var runDAOs []dao.RunDAO
	if err := r.db.SelectContext(ctx, &runDAOs, r.db.Rebind(sb.String()), args...); err != nil {
		return nil, fmt.Errorf("查询运行记录列表失败: %w", err)
	}
	runs := make([]*storage.RunRecord, 0, len(runDAOs))
	for i := range runDAOs {
		run, err := fromDAO(&runDAOs[i])
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// DeleteRun 删除运行记录（对外导出）
func (r *RunRepo) DeleteRun(ctx context.Context, id string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, runTable)), id)
	if err != nil {
		return false, fmt.Errorf("删除运行记录失败: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("读取影响行数失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("提交事务失败: %w", err)
	}
	return affected > 0, nil
}

func toDAO(run *storage.RunRecord) (*dao.RunDAO, error) {
	bounds := run.Bounds
	if bounds == nil {
		bounds = []string{}
	}
	boundsJSON, err := json.Marshal(bounds)
	if err != nil {
		return nil, fmt.Errorf("序列化下界列表失败: %w", err)
	}
	stats := run.Stats
	if stats == nil {
		stats = map[string]int64{}
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("序列化搜索统计失败: %w", err)
	}
	createTime := run.CreateTime
	if createTime.IsZero() {
		createTime = time.Now()
	}
	return &dao.RunDAO{
		ID:             run.ID,
		GraphName:      run.GraphName,
		Fingerprint:    run.Fingerprint,
		Processors:     run.Processors,
		Threads:        run.Threads,
		Status:         string(run.Status),
		Makespan:       run.Makespan,
		GreedyMakespan: run.GreedyMakespan,
		Bounds:         string(boundsJSON),
		Arborist:       run.Arborist,
		Tiers:          run.Tiers,
		Stats:          string(statsJSON),
		ScheduleDOT:    sql.NullString{String: run.ScheduleDOT, Valid: run.ScheduleDOT != ""},
		ErrorMessage:   sql.NullString{String: run.Error, Valid: run.Error != ""},
		Source:         run.Source,
		DurationMS:     run.Duration.Milliseconds(),
		CreateTime:     createTime.UTC().Truncate(time.Millisecond),
	}, nil
}

func fromDAO(d *dao.RunDAO) (*storage.RunRecord, error) {
	run := &storage.RunRecord{
		ID:             d.ID,
		GraphName:      d.GraphName,
		Fingerprint:    d.Fingerprint,
		Processors:     d.Processors,
		Threads:        d.Threads,
		Status:         storage.RunStatus(d.Status),
		Makespan:       d.Makespan,
		GreedyMakespan: d.GreedyMakespan,
		Arborist:       d.Arborist,
		Tiers:          d.Tiers,
		ScheduleDOT:    d.ScheduleDOT.String,
		Error:          d.ErrorMessage.String,
		Source:         d.Source,
		Duration:       time.Duration(d.DurationMS) * time.Millisecond,
		CreateTime:     d.CreateTime,
	}
	if d.Bounds != "" {
		if err := json.Unmarshal([]byte(d.Bounds), &run.Bounds); err != nil {
			return nil, fmt.Errorf("反序列化下界列表失败: %w", err)
		}
	}
	if d.Stats != "" {
		if err := json.Unmarshal([]byte(d.Stats), &run.Stats); err != nil {
			return nil, fmt.Errorf("反序列化搜索统计失败: %w", err)
		}
	}
	return run, nil
}

// 确保实现接口
var _ storage.RunRepository = (*RunRepo)(nil)
