package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/LENAX/optsched/internal/storage"
	"github.com/LENAX/optsched/pkg/config"
	"github.com/LENAX/optsched/pkg/core/cache"
	"github.com/LENAX/optsched/pkg/core/realtime"
	"github.com/LENAX/optsched/pkg/plugin"
)

// EngineBuilder 引擎构建器（链式调用）
// 按配置装配存储、缓存、事件总线与通知插件
type EngineBuilder struct {
	configPath string
	cfg        *config.EngineConfig
	noStorage  bool
	noEvents   bool
	err        error
}

// NewEngineBuilder 创建引擎构建器（入口）
// configPath 为空时使用默认配置
func NewEngineBuilder(configPath string) *EngineBuilder {
	return &EngineBuilder{configPath: configPath}
}

// WithConfig 直接使用已加载的配置（链式）
func (b *EngineBuilder) WithConfig(cfg *config.EngineConfig) *EngineBuilder {
	if b.err != nil {
		return b
	}
	if cfg == nil {
		b.err = errors.New("engine config is nil")
		return b
	}
	b.cfg = cfg
	return b
}

// WithoutStorage 不持久化运行记录（链式）
func (b *EngineBuilder) WithoutStorage() *EngineBuilder {
	b.noStorage = true
	return b
}

// WithoutEvents 不创建事件总线（链式）
func (b *EngineBuilder) WithoutEvents() *EngineBuilder {
	b.noEvents = true
	return b
}

// Build 构建引擎实例（最终步骤）
func (b *EngineBuilder) Build() (*Engine, error) {
	if b.err != nil {
		return nil, b.err
	}

	// 1. 加载引擎配置
	cfg := b.cfg
	if cfg == nil {
		loaded, err := config.Load(b.configPath)
		if err != nil {
			return nil, fmt.Errorf("load engine config failed: %w", err)
		}
		cfg = loaded
	}

	var (
		opts    []Option
		closers []func() error
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	// 2. 初始化存储层
	if !b.noStorage {
		factory, err := storage.NewDatabaseFactoryFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("init storage failed: %w", err)
		}
		opts = append(opts, WithRepository(factory.RunRepository()))
		closers = append(closers, factory.Close)
		log.Printf("✅ [EngineBuilder] 存储已初始化: Type=%s", cfg.GetDatabaseType())
	}

	// 3. 最优解缓存
	if cfg.OptSched.Storage.Cache.Enabled {
		c := cache.NewMemorySolutionCache(cfg.OptSched.Storage.Cache.DefaultTTL)
		opts = append(opts, WithCache(c))
		closers = append(closers, func() error {
			c.Close()
			return nil
		})
	}

	// 4. 事件总线
	if !b.noEvents {
		bus := realtime.NewEventBus(cfg.OptSched.Events.Debug, cfg.OptSched.Events.Trace)
		opts = append(opts, WithEventBus(bus))
		closers = append(closers, bus.Close)

		// 5. 通知插件（依赖事件总线）
		if len(cfg.OptSched.Plugins) > 0 {
			cancel, err := attachPlugins(bus, cfg.OptSched.Plugins)
			if err != nil {
				cleanup()
				return nil, err
			}
			closers = append(closers, func() error {
				cancel()
				return nil
			})
		}
	} else if len(cfg.OptSched.Plugins) > 0 {
		log.Printf("⚠️ [EngineBuilder] 事件总线未启用，忽略 %d 个插件", len(cfg.OptSched.Plugins))
	}

	opts = append(opts, withClosers(closers))
	eng, err := NewEngine(cfg, opts...)
	if err != nil {
		cleanup()
		return nil, err
	}
	return eng, nil
}

// attachPlugins 按配置注册插件并订阅事件总线，返回停止订阅的函数
func attachPlugins(bus *realtime.EventBus, configs []config.PluginConfig) (context.CancelFunc, error) {
	pm := plugin.NewPluginManager()
	for _, pc := range configs {
		p, err := plugin.New(pc.Type, pc.Name)
		if err != nil {
			return nil, err
		}
		if err := pm.RegisterWithInit(p, pc.Params); err != nil {
			return nil, err
		}
		for _, event := range pc.Events {
			if err := pm.Bind(plugin.PluginBinding{PluginName: p.Name(), Event: realtime.EventType(event)}); err != nil {
				return nil, err
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := pm.Attach(ctx, bus); err != nil {
		cancel()
		return nil, err
	}
	log.Printf("✅ [EngineBuilder] 插件已加载: %v", pm.ListPlugins())
	return cancel, nil
}

func withClosers(closers []func() error) Option {
	return func(e *Engine) {
		e.closers = append(e.closers, closers...)
	}
}
