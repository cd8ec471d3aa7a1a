package config

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/LENAX/optsched/pkg/core/algorithm"
	"github.com/LENAX/optsched/pkg/core/arborist"
	"github.com/LENAX/optsched/pkg/core/bound"
	"github.com/LENAX/optsched/pkg/core/realtime"
)

// ValidateFrameworkConfig 校验引擎配置合法性
func ValidateFrameworkConfig(cfg *EngineConfig) error {
	if cfg == nil {
		return fmt.Errorf("配置不能为空")
	}

	// 校验General
	if cfg.OptSched.General.InstanceName == "" {
		return fmt.Errorf("instance_name不能为空")
	}
	if cfg.OptSched.General.LogLevel != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[cfg.OptSched.General.LogLevel] {
			return fmt.Errorf("log_level必须是debug/info/warn/error之一")
		}
	}

	// 校验Search
	if cfg.OptSched.Search.Threads <= 0 {
		return fmt.Errorf("search.threads必须大于0")
	}
	if _, err := bound.FromNames(cfg.OptSched.Search.Bounds); err != nil {
		return fmt.Errorf("search.bounds无效: %w", err)
	}
	if _, err := arborist.ByName(cfg.OptSched.Search.Arborist); err != nil {
		return fmt.Errorf("search.arborist无效: %w", err)
	}
	if t := cfg.OptSched.Search.BackpressureThreshold; t < 0 || t > 1 {
		return fmt.Errorf("search.backpressure_threshold必须在(0,1]之间")
	}
	if cfg.OptSched.Search.Timeout < 0 {
		return fmt.Errorf("search.timeout不能为负数")
	}
	for i, tier := range cfg.OptSched.Search.Tiers {
		if tier.Algorithm != algorithm.NameDFS && tier.Algorithm != algorithm.NameAStar {
			return fmt.Errorf("search.tiers[%d].algorithm必须是dfs/astar之一", i)
		}
		if tier.Depth < 0 {
			return fmt.Errorf("search.tiers[%d].depth不能为负数", i)
		}
	}

	// 校验Storage.Database
	validDBTypes := map[string]bool{
		"sqlite":     true,
		"sqlite3":    true,
		"postgres":   true,
		"postgresql": true,
		"mysql":      true,
	}
	if !validDBTypes[cfg.OptSched.Storage.Database.Type] {
		return fmt.Errorf("database.type必须是sqlite/postgres/mysql之一")
	}
	if cfg.OptSched.Storage.Database.DSN == "" {
		return fmt.Errorf("database.dsn不能为空")
	}
	if cfg.OptSched.Storage.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns必须大于0")
	}
	if cfg.OptSched.Storage.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns不能为负数")
	}

	// 校验Server
	if cfg.OptSched.Server.Port <= 0 || cfg.OptSched.Server.Port > 65535 {
		return fmt.Errorf("server.port必须在1-65535之间")
	}

	// 校验Jobs
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	names := make(map[string]bool)
	for i, job := range cfg.OptSched.Jobs {
		if job.Name == "" {
			return fmt.Errorf("jobs[%d].name不能为空", i)
		}
		if names[job.Name] {
			return fmt.Errorf("jobs[%d].name重复: %s", i, job.Name)
		}
		names[job.Name] = true
		if job.Graph == "" {
			return fmt.Errorf("jobs[%d].graph不能为空", i)
		}
		if job.Processors <= 0 {
			return fmt.Errorf("jobs[%d].processors必须大于0", i)
		}
		if _, err := parser.Parse(job.Cron); err != nil {
			return fmt.Errorf("jobs[%d].cron无效: %w", i, err)
		}
	}

	// 校验Plugins
	validEvents := make(map[string]bool, len(realtime.AllEventTypes))
	for _, t := range realtime.AllEventTypes {
		validEvents[string(t)] = true
	}
	pluginNames := make(map[string]bool)
	for i, p := range cfg.OptSched.Plugins {
		if p.Name == "" {
			return fmt.Errorf("plugins[%d].name不能为空", i)
		}
		if pluginNames[p.Name] {
			return fmt.Errorf("plugins[%d].name重复: %s", i, p.Name)
		}
		pluginNames[p.Name] = true
		if p.Type != "webhook" && p.Type != "email" {
			return fmt.Errorf("plugins[%d].type必须是webhook/email之一", i)
		}
		if len(p.Events) == 0 {
			return fmt.Errorf("plugins[%d].events不能为空", i)
		}
		for _, e := range p.Events {
			if !validEvents[e] {
				return fmt.Errorf("plugins[%d].events包含未知事件: %s", i, e)
			}
		}
	}

	return nil
}
