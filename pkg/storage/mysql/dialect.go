package mysql

import (
	"fmt"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/LENAX/optsched/pkg/storage"
	"github.com/LENAX/optsched/pkg/storage/sqlstore"
)

// MySQLDialect MySQL方言实现（对外导出）
type MySQLDialect struct{}

// NewMySQLDialect 创建MySQL方言实例
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

// Name 返回方言名称
func (d *MySQLDialect) Name() string {
	return "mysql"
}

// DriverName 返回驱动名
func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

// NormalizeDSN 确保DSN开启parseTime并使用UTC
// dsn格式: user:password@tcp(host:port)/dbname
func (d *MySQLDialect) NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}
	return cfg.FormatDSN(), nil
}

// UpsertSQL 返回MySQL的UPSERT语句（使用ON DUPLICATE KEY UPDATE）
func (d *MySQLDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}

	// 构建ON DUPLICATE KEY UPDATE子句
	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
		strings.Join(updateParts, ", "),
	)
}

// CreateTableSQL 转换DDL为MySQL兼容格式
func (d *MySQLDialect) CreateTableSQL(schema string) string {
	result := schema

	// 替换REAL为DOUBLE
	result = strings.ReplaceAll(result, "REAL NOT NULL", "DOUBLE NOT NULL")
	result = strings.ReplaceAll(result, "REAL DEFAULT", "DOUBLE DEFAULT")

	// DATETIME保留毫秒
	result = strings.ReplaceAll(result, "DATETIME", "DATETIME(3)")

	// 替换AUTOINCREMENT为AUTO_INCREMENT
	result = strings.ReplaceAll(result, "AUTOINCREMENT", "AUTO_INCREMENT")

	// 添加引擎声明
	if !strings.Contains(result, "ENGINE=") && strings.Contains(result, "CREATE TABLE") {
		result = strings.TrimRight(strings.TrimSpace(result), ";") + " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;"
	}

	return result
}

// CreateIndexSQL MySQL不支持IF NOT EXISTS，重复创建的错误由调用方忽略
func (d *MySQLDialect) CreateIndexSQL(tableName, indexName, column string) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s(%s)", indexName, tableName, column)
}

// ConfigureDB 返回MySQL配置SQL
func (d *MySQLDialect) ConfigureDB() []string {
	return []string{
		"SET SESSION sql_mode='STRICT_TRANS_TABLES,NO_ZERO_IN_DATE,NO_ZERO_DATE,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION';",
	}
}

// NewRunRepoFromDSN 通过DSN创建MySQL运行记录Repository（对外导出）
func NewRunRepoFromDSN(dsn string, pool sqlstore.PoolConfig) (*sqlstore.RunRepo, error) {
	return sqlstore.Open(NewMySQLDialect(), dsn, pool)
}

// 确保实现接口
var _ storage.Dialect = (*MySQLDialect)(nil)
