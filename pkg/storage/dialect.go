package storage

// Dialect SQL方言接口（对外导出）
// 封装不同数据库的SQL语法差异
type Dialect interface {
	// Name 返回方言名称（如 "sqlite", "mysql", "postgres"）
	Name() string

	// DriverName 返回 database/sql 驱动名，sqlx 依此决定占位符风格
	DriverName() string

	// NormalizeDSN 补齐驱动需要的连接参数
	NormalizeDSN(dsn string) (string, error)

	// UpsertSQL 返回INSERT或UPDATE的SQL语句（sqlx 命名参数形式）
	// tableName: 表名
	// columns: 列名列表
	// conflictColumn: 冲突判断列（通常是主键）
	// updateColumns: 需要更新的列（不含主键）
	UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string

	// CreateTableSQL 把SQLite风格的DDL转换为本方言的DDL
	CreateTableSQL(schema string) string

	// CreateIndexSQL 返回创建索引的语句
	CreateIndexSQL(tableName, indexName, column string) string

	// ConfigureDB 配置数据库连接（如SQLite的PRAGMA）
	// 返回需要执行的SQL语句列表
	ConfigureDB() []string
}
