package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/LENAX/optsched/pkg/storage"
	"github.com/LENAX/optsched/pkg/storage/sqlstore"
)

// PostgresDialect PostgreSQL方言实现（对外导出）
type PostgresDialect struct{}

// NewPostgresDialect 创建PostgreSQL方言实例
func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{}
}

// Name 返回方言名称
func (d *PostgresDialect) Name() string {
	return "postgres"
}

// DriverName 返回驱动名（sqlx 据此使用 $1, $2 占位符）
func (d *PostgresDialect) DriverName() string {
	return "postgres"
}

// NormalizeDSN 支持 postgres:// URL 与 key=value 两种写法
func (d *PostgresDialect) NormalizeDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		converted, err := pq.ParseURL(dsn)
		if err != nil {
			return "", fmt.Errorf("解析postgres URL失败: %w", err)
		}
		return converted, nil
	}
	if dsn == "" {
		return "", fmt.Errorf("postgres dsn不能为空")
	}
	return dsn, nil
}

// UpsertSQL 返回PostgreSQL的UPSERT语句（使用ON CONFLICT DO UPDATE）
func (d *PostgresDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}

	// 构建ON CONFLICT DO UPDATE子句
	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		pq.QuoteIdentifier(tableName),
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
		conflictColumn,
		strings.Join(updateParts, ", "),
	)
}

// CreateTableSQL 转换DDL为PostgreSQL兼容格式
func (d *PostgresDialect) CreateTableSQL(schema string) string {
	result := schema

	// 替换DATETIME为TIMESTAMPTZ
	result = strings.ReplaceAll(result, "DATETIME", "TIMESTAMPTZ")

	// 替换REAL为DOUBLE PRECISION
	result = strings.ReplaceAll(result, "REAL NOT NULL", "DOUBLE PRECISION NOT NULL")
	result = strings.ReplaceAll(result, "REAL DEFAULT", "DOUBLE PRECISION DEFAULT")

	// 替换INTEGER PRIMARY KEY为SERIAL PRIMARY KEY（自增）
	result = strings.ReplaceAll(result, "INTEGER PRIMARY KEY AUTOINCREMENT", "SERIAL PRIMARY KEY")

	return result
}

// CreateIndexSQL 返回创建索引的语句
func (d *PostgresDialect) CreateIndexSQL(tableName, indexName, column string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", indexName, pq.QuoteIdentifier(tableName), column)
}

// ConfigureDB 返回PostgreSQL配置SQL
func (d *PostgresDialect) ConfigureDB() []string {
	return []string{
		"SET timezone = 'UTC';",
	}
}

// NewRunRepoFromDSN 通过DSN创建PostgreSQL运行记录Repository（对外导出）
func NewRunRepoFromDSN(dsn string, pool sqlstore.PoolConfig) (*sqlstore.RunRepo, error) {
	return sqlstore.Open(NewPostgresDialect(), dsn, pool)
}

// 确保实现接口
var _ storage.Dialect = (*PostgresDialect)(nil)
