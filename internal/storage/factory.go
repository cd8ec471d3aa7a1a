package storage

import (
	"fmt"

	"github.com/LENAX/optsched/pkg/config"
	"github.com/LENAX/optsched/pkg/storage"
	"github.com/LENAX/optsched/pkg/storage/mysql"
	"github.com/LENAX/optsched/pkg/storage/postgres"
	pkgsqlite "github.com/LENAX/optsched/pkg/storage/sqlite"
	"github.com/LENAX/optsched/pkg/storage/sqlstore"
)

// DatabaseFactory 数据库工厂接口（内部使用）
type DatabaseFactory interface {
	// RunRepository 返回运行记录Repository
	RunRepository() storage.RunRepository
	// Close 关闭数据库连接
	Close() error
}

// NewDatabaseFactory 创建数据库工厂（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres）
// dsn: 数据库连接字符串
func NewDatabaseFactory(dbType, dsn string, pool sqlstore.PoolConfig) (DatabaseFactory, error) {
	var (
		repo *sqlstore.RunRepo
		err  error
	)
	switch dbType {
	case "sqlite", "sqlite3":
		repo, err = pkgsqlite.NewRunRepoFromDSN(dsn, pool)
	case "mysql":
		repo, err = mysql.NewRunRepoFromDSN(dsn, pool)
	case "postgres", "postgresql":
		repo, err = postgres.NewRunRepoFromDSN(dsn, pool)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s repository failed: %w", dbType, err)
	}
	return &sqlFactory{repo: repo}, nil
}

// NewDatabaseFactoryFromConfig 按引擎配置创建数据库工厂
func NewDatabaseFactoryFromConfig(cfg *config.EngineConfig) (DatabaseFactory, error) {
	db := cfg.OptSched.Storage.Database
	return NewDatabaseFactory(db.Type, db.DSN, sqlstore.PoolConfig{
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
	})
}

// sqlFactory 基于 sqlstore 的工厂（内部实现）
type sqlFactory struct {
	repo *sqlstore.RunRepo
}

func (f *sqlFactory) RunRepository() storage.RunRepository {
	return f.repo
}

func (f *sqlFactory) Close() error {
	return f.repo.Close()
}
