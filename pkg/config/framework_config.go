package config

import (
	"time"

	"github.com/LENAX/optsched/pkg/core/tiered"
)

// EngineConfig 求解引擎配置（对外导出）
type EngineConfig struct {
	OptSched struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			Env          string `yaml:"env"`
		} `yaml:"general"`
		Search struct {
			Threads               int           `yaml:"threads"`
			Bounds                []string      `yaml:"bounds"`
			Arborist              string        `yaml:"arborist"`
			GreedySeed            *bool         `yaml:"greedy_seed"`
			BackpressureThreshold float64       `yaml:"backpressure_threshold"`
			Timeout               time.Duration `yaml:"timeout"`
			Tiers                 []tiered.Tier `yaml:"tiers"`
		} `yaml:"search"`
		Storage struct {
			Database struct {
				Type            string        `yaml:"type"`
				DSN             string        `yaml:"dsn"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
				ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
			} `yaml:"database"`
			Cache struct {
				Enabled    bool          `yaml:"enabled"`
				DefaultTTL time.Duration `yaml:"default_ttl"`
			} `yaml:"cache"`
		} `yaml:"storage"`
		Server struct {
			Host         string        `yaml:"host"`
			Port         int           `yaml:"port"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
		} `yaml:"server"`
		Events struct {
			Debug bool `yaml:"debug"`
			Trace bool `yaml:"trace"`
		} `yaml:"events"`
		Jobs    []JobConfig    `yaml:"jobs"`
		Plugins []PluginConfig `yaml:"plugins"`
	} `yaml:"optsched"`
}

// JobConfig 定时批量求解任务
type JobConfig struct {
	Name       string `yaml:"name"`
	Graph      string `yaml:"graph"`      // DOT 文件路径
	Processors int    `yaml:"processors"` // 处理器数
	Cron       string `yaml:"cron"`       // 秒级 cron 表达式
	Output     string `yaml:"output"`     // 可选，结果 DOT 输出路径
}

// PluginConfig 事件通知插件
type PluginConfig struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`   // webhook / email
	Events []string          `yaml:"events"` // 订阅的事件类型
	Params map[string]string `yaml:"params"` // 插件初始化参数
}

// GetDatabaseType 获取数据库类型
func (c *EngineConfig) GetDatabaseType() string {
	return c.OptSched.Storage.Database.Type
}

// GetDatabaseDSN 获取数据库DSN
func (c *EngineConfig) GetDatabaseDSN() string {
	return c.OptSched.Storage.Database.DSN
}

// GetThreads 获取搜索工作协程数
func (c *EngineConfig) GetThreads() int {
	threads := c.OptSched.Search.Threads
	if threads <= 0 {
		return 1 // 默认值
	}
	return threads
}

// GetBounds 获取下界组合
func (c *EngineConfig) GetBounds() []string {
	if len(c.OptSched.Search.Bounds) == 0 {
		return []string{"critical-path", "fill-time"}
	}
	return c.OptSched.Search.Bounds
}

// GetArborist 获取剪枝器预置
func (c *EngineConfig) GetArborist() string {
	if c.OptSched.Search.Arborist == "" {
		return "default"
	}
	return c.OptSched.Search.Arborist
}

// GetTiers 获取分层配置
func (c *EngineConfig) GetTiers() []tiered.Tier {
	if len(c.OptSched.Search.Tiers) == 0 {
		return tiered.DefaultTiers()
	}
	return c.OptSched.Search.Tiers
}

// UseGreedySeed 是否用贪心解作为初始上界
func (c *EngineConfig) UseGreedySeed() bool {
	if c.OptSched.Search.GreedySeed == nil {
		return true
	}
	return *c.OptSched.Search.GreedySeed
}

// GetServerAddr 获取 HTTP 监听地址
func (c *EngineConfig) GetServerAddr() string {
	return joinHostPort(c.OptSched.Server.Host, c.OptSched.Server.Port)
}

// ApplyDefaults 应用默认值
func (c *EngineConfig) ApplyDefaults() {
	// General默认值
	if c.OptSched.General.InstanceName == "" {
		c.OptSched.General.InstanceName = "optsched"
	}
	if c.OptSched.General.LogLevel == "" {
		c.OptSched.General.LogLevel = "info"
	}
	if c.OptSched.General.Env == "" {
		c.OptSched.General.Env = "dev"
	}

	// Search默认值
	if c.OptSched.Search.Threads <= 0 {
		c.OptSched.Search.Threads = 1
	}
	if len(c.OptSched.Search.Bounds) == 0 {
		c.OptSched.Search.Bounds = []string{"critical-path", "fill-time"}
	}
	if c.OptSched.Search.Arborist == "" {
		c.OptSched.Search.Arborist = "default"
	}
	if c.OptSched.Search.BackpressureThreshold <= 0 {
		c.OptSched.Search.BackpressureThreshold = 0.8
	}
	if len(c.OptSched.Search.Tiers) == 0 {
		c.OptSched.Search.Tiers = tiered.DefaultTiers()
	}

	// Database默认值
	if c.OptSched.Storage.Database.Type == "" {
		c.OptSched.Storage.Database.Type = "sqlite"
	}
	if c.OptSched.Storage.Database.DSN == "" {
		c.OptSched.Storage.Database.DSN = "./optsched.db"
	}
	if c.OptSched.Storage.Database.MaxOpenConns <= 0 {
		c.OptSched.Storage.Database.MaxOpenConns = 10
	}
	if c.OptSched.Storage.Database.MaxIdleConns <= 0 {
		c.OptSched.Storage.Database.MaxIdleConns = 5
	}
	if c.OptSched.Storage.Database.ConnMaxLifetime <= 0 {
		c.OptSched.Storage.Database.ConnMaxLifetime = 2 * time.Hour
	}
	if c.OptSched.Storage.Database.ConnMaxIdleTime <= 0 {
		c.OptSched.Storage.Database.ConnMaxIdleTime = 1 * time.Hour
	}

	// Cache默认值
	if c.OptSched.Storage.Cache.DefaultTTL <= 0 {
		c.OptSched.Storage.Cache.DefaultTTL = 1 * time.Hour
	}

	// Server默认值
	if c.OptSched.Server.Port <= 0 {
		c.OptSched.Server.Port = 8080
	}
	if c.OptSched.Server.ReadTimeout <= 0 {
		c.OptSched.Server.ReadTimeout = 30 * time.Second
	}
	if c.OptSched.Server.WriteTimeout <= 0 {
		c.OptSched.Server.WriteTimeout = 5 * time.Minute
	}
}
