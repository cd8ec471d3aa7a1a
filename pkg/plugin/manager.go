package plugin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/LENAX/optsched/pkg/core/realtime"
)

// PluginBinding 插件绑定规则（对外导出）
type PluginBinding struct {
	PluginName string                     // 插件名称
	Event      realtime.EventType         // 触发事件
	Condition  func(data NotifyData) bool // 可选：条件函数，满足条件才触发
}

// PluginManager 插件管理器接口（对外导出）
type PluginManager interface {
	// Register 注册插件
	Register(plugin Plugin) error
	// RegisterWithInit 注册并初始化插件
	RegisterWithInit(plugin Plugin, params map[string]string) error
	// Bind 绑定插件到事件
	Bind(binding PluginBinding) error
	// Trigger 触发插件
	Trigger(ctx context.Context, data NotifyData) error
	// Attach 订阅事件总线上已绑定的事件，ctx 结束后停止
	Attach(ctx context.Context, bus *realtime.EventBus) error
	// GetPlugin 获取已注册的插件
	GetPlugin(name string) (Plugin, bool)
	// ListPlugins 列出所有已注册的插件
	ListPlugins() []string
	// Unregister 取消注册插件
	Unregister(name string) error
}

// pluginManagerImpl 插件管理器实现（内部实现）
type pluginManagerImpl struct {
	plugins  map[string]Plugin                       // 已注册的插件（插件名称 -> 插件实例）
	bindings map[realtime.EventType][]PluginBinding // 事件绑定（事件类型 -> 绑定列表）
	mu       sync.RWMutex                            // 读写锁
}

// NewPluginManager 创建插件管理器（对外导出）
func NewPluginManager() PluginManager {
	return &pluginManagerImpl{
		plugins:  make(map[string]Plugin),
		bindings: make(map[realtime.EventType][]PluginBinding),
	}
}

// Register 注册插件（实现PluginManager接口）
func (pm *pluginManagerImpl) Register(plugin Plugin) error {
	if plugin == nil {
		return fmt.Errorf("插件不能为空")
	}

	name := plugin.Name()
	if name == "" {
		return fmt.Errorf("插件名称不能为空")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[name]; exists {
		return fmt.Errorf("插件 %s 已注册", name)
	}

	pm.plugins[name] = plugin
	return nil
}

// RegisterWithInit 注册并初始化插件（实现PluginManager接口）
func (pm *pluginManagerImpl) RegisterWithInit(plugin Plugin, params map[string]string) error {
	if err := pm.Register(plugin); err != nil {
		return err
	}

	if err := plugin.Init(params); err != nil {
		// 初始化失败，移除已注册的插件
		pm.mu.Lock()
		delete(pm.plugins, plugin.Name())
		pm.mu.Unlock()
		return fmt.Errorf("插件 %s 初始化失败: %w", plugin.Name(), err)
	}

	return nil
}

// Bind 绑定插件到事件（实现PluginManager接口）
func (pm *pluginManagerImpl) Bind(binding PluginBinding) error {
	if binding.PluginName == "" {
		return fmt.Errorf("插件名称不能为空")
	}
	if binding.Event == "" {
		return fmt.Errorf("触发事件不能为空")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[binding.PluginName]; !exists {
		return fmt.Errorf("插件 %s 未注册", binding.PluginName)
	}
	pm.bindings[binding.Event] = append(pm.bindings[binding.Event], binding)
	return nil
}

// Trigger 触发绑定到 data.Event 的插件（实现PluginManager接口）
func (pm *pluginManagerImpl) Trigger(ctx context.Context, data NotifyData) error {
	pm.mu.RLock()
	bindings := append([]PluginBinding(nil), pm.bindings[data.Event]...)
	pm.mu.RUnlock()

	var errs []error
	for _, binding := range bindings {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if binding.Condition != nil && !binding.Condition(data) {
			continue
		}

		pm.mu.RLock()
		plugin, exists := pm.plugins[binding.PluginName]
		pm.mu.RUnlock()
		if !exists {
			continue
		}

		if err := plugin.Execute(data); err != nil {
			errs = append(errs, fmt.Errorf("插件 %s 执行失败: %w", binding.PluginName, err))
		}
	}
	return errors.Join(errs...)
}

// Attach 订阅已绑定的事件类型并在后台触发插件（实现PluginManager接口）
func (pm *pluginManagerImpl) Attach(ctx context.Context, bus *realtime.EventBus) error {
	pm.mu.RLock()
	types := make([]realtime.EventType, 0, len(pm.bindings))
	for t, bindings := range pm.bindings {
		if len(bindings) > 0 {
			types = append(types, t)
		}
	}
	pm.mu.RUnlock()
	if len(types) == 0 {
		return nil
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	events, err := bus.Subscribe(ctx, types...)
	if err != nil {
		return fmt.Errorf("插件订阅事件失败: %w", err)
	}
	go func() {
		for event := range events {
			if err := pm.Trigger(ctx, FromEvent(event)); err != nil {
				log.Printf("⚠️ [PluginManager] 事件处理失败: Event=%s, RunID=%s, Error=%v", event.Type, event.RunID, err)
			}
		}
	}()
	log.Printf("✅ [PluginManager] 已订阅事件: %v", types)
	return nil
}

// GetPlugin 获取已注册的插件（实现PluginManager接口）
func (pm *pluginManagerImpl) GetPlugin(name string) (Plugin, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	plugin, exists := pm.plugins[name]
	return plugin, exists
}

// ListPlugins 列出所有已注册的插件（按名称排序）
func (pm *pluginManagerImpl) ListPlugins() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	names := make([]string, 0, len(pm.plugins))
	for name := range pm.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister 取消注册插件（实现PluginManager接口）
func (pm *pluginManagerImpl) Unregister(name string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[name]; !exists {
		return fmt.Errorf("插件 %s 未注册", name)
	}
	delete(pm.plugins, name)

	// 移除所有相关的绑定
	for event, bindings := range pm.bindings {
		filtered := bindings[:0]
		for _, binding := range bindings {
			if binding.PluginName != name {
				filtered = append(filtered, binding)
			}
		}
		pm.bindings[event] = filtered
	}
	return nil
}
