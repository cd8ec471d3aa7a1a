package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/LENAX/optsched/pkg/storage"
	"github.com/LENAX/optsched/pkg/storage/sqlstore"
)

// SQLiteDialect SQLite方言实现（对外导出）
type SQLiteDialect struct{}

// NewSQLiteDialect 创建SQLite方言实例
func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

// Name 返回方言名称
func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

// DriverName 返回驱动名
func (d *SQLiteDialect) DriverName() string {
	return "sqlite3"
}

// NormalizeDSN SQLite DSN 原样使用
func (d *SQLiteDialect) NormalizeDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("sqlite dsn不能为空")
	}
	return dsn, nil
}

// UpsertSQL 返回SQLite的UPSERT语句
func (d *SQLiteDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	// SQLite 3.24+ 支持 ON CONFLICT
	// 但为了兼容性，使用 INSERT OR REPLACE
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}

	return fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
	)
}

// CreateTableSQL 返回创建表的DDL（SQLite原样返回）
func (d *SQLiteDialect) CreateTableSQL(schema string) string {
	return schema
}

// CreateIndexSQL 返回创建索引的语句
func (d *SQLiteDialect) CreateIndexSQL(tableName, indexName, column string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", indexName, tableName, column)
}

// ConfigureDB 返回SQLite配置SQL
func (d *SQLiteDialect) ConfigureDB() []string {
	return []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
		"PRAGMA wal_autocheckpoint=1000;",
		"PRAGMA synchronous=NORMAL;",
	}
}

// IsMemoryDSN 判断是否为内存数据库
func IsMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// NewRunRepoFromDSN 通过DSN创建SQLite运行记录Repository（对外导出）
// 内存数据库每个连接都是独立的库，因此固定为单连接且不回收
func NewRunRepoFromDSN(dsn string, pool sqlstore.PoolConfig) (*sqlstore.RunRepo, error) {
	if IsMemoryDSN(dsn) {
		pool = sqlstore.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}
	} else if err := ensureDir(dsn); err != nil {
		return nil, err
	}
	return sqlstore.Open(NewSQLiteDialect(), dsn, pool)
}

// ensureDir 创建数据库文件所在目录
func ensureDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建数据库目录失败: %w", err)
	}
	return nil
}

// 确保实现接口
var _ storage.Dialect = (*SQLiteDialect)(nil)
