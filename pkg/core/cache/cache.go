package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/LENAX/optsched/pkg/core/graph"
	"github.com/LENAX/optsched/pkg/core/schedule"
)

// SolutionCache 最优解缓存接口（对外导出）
type SolutionCache interface {
	// Set 设置缓存值
	// ttl: 缓存有效期，<=0 表示使用默认有效期
	Set(key string, best *schedule.Schedule, ttl time.Duration) error

	// Get 获取缓存值
	// 返回: 最优调度和是否存在
	Get(key string) (*schedule.Schedule, bool)

	// Delete 删除缓存值
	Delete(key string) error

	// Clear 清空所有缓存
	Clear() error
}

// Key 缓存键：图指纹 + 处理器数（对外导出）
func Key(g *graph.Graph, processors int) string {
	return fmt.Sprintf("%s:%d", g.Fingerprint(), processors)
}

// cacheEntry 缓存条目（内部使用）
type cacheEntry struct {
	value      *schedule.Schedule
	expireTime time.Time
}

// MemorySolutionCache 内存最优解缓存实现（对外导出）
// 缓存的调度为只读克隆
type MemorySolutionCache struct {
	mu         sync.RWMutex
	cache      map[string]*cacheEntry
	defaultTTL time.Duration
	stop       chan struct{}
	once       sync.Once
}

// NewMemorySolutionCache 创建内存最优解缓存实例（对外导出）
func NewMemorySolutionCache(defaultTTL time.Duration) *MemorySolutionCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	c := &MemorySolutionCache{
		cache:      make(map[string]*cacheEntry),
		defaultTTL: defaultTTL,
		stop:       make(chan struct{}),
	}
	// 启动清理协程，定期清理过期缓存
	go c.cleanupExpired(time.Minute)
	return c
}

// Set 设置缓存值
func (c *MemorySolutionCache) Set(key string, best *schedule.Schedule, ttl time.Duration) error {
	if key == "" || best == nil {
		return nil // 空key，忽略
	}
	if !best.Complete() {
		return fmt.Errorf("只能缓存完整调度: %s", key)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[key] = &cacheEntry{
		value:      best.Clone(),
		expireTime: time.Now().Add(ttl),
	}
	return nil
}

// Get 获取缓存值
func (c *MemorySolutionCache) Get(key string) (*schedule.Schedule, bool) {
	if key == "" {
		return nil, false
	}

	c.mu.RLock()
	entry, exists := c.cache[key]
	c.mu.RUnlock()
	if !exists {
		return nil, false
	}

	// 检查是否过期
	if time.Now().After(entry.expireTime) {
		c.mu.Lock()
		if current, ok := c.cache[key]; ok && current == entry {
			delete(c.cache, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.value, true
}

// Delete 删除缓存值
func (c *MemorySolutionCache) Delete(key string) error {
	if key == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.cache, key)
	return nil
}

// Clear 清空所有缓存
func (c *MemorySolutionCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*cacheEntry)
	return nil
}

// Len 当前条目数（包含尚未清理的过期条目）
func (c *MemorySolutionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Close 停止清理协程
func (c *MemorySolutionCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanupExpired 清理过期缓存（内部方法）
func (c *MemorySolutionCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.purge(time.Now())
		}
	}
}

// purge 删除 now 之前过期的条目
func (c *MemorySolutionCache) purge(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.cache {
		if now.After(entry.expireTime) {
			delete(c.cache, key)
			removed++
		}
	}
	return removed
}
