package modbusserver

import (
	"sync"
	"time"
)

// CachedData 一个软件地址的最新状态值
type CachedData struct {
	Value     interface{}
	Caption   string
	SimType   string
	Timestamp time.Time
	TTL       time.Duration // 0表示永不过期
}

// IsExpired 检查缓存的数据是否已过期
func (c *CachedData) IsExpired() bool {
	return c.TTL > 0 && time.Since(c.Timestamp) > c.TTL
}

// Cache 按软件地址保存最新值, 线程安全
type Cache struct {
	data       map[uint16]*CachedData
	mu         sync.RWMutex
	defaultTTL time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewCache 创建新的缓存实例
func NewCache(defaultTTL time.Duration) *Cache {
	return &Cache{
		data:       make(map[uint16]*CachedData),
		defaultTTL: defaultTTL,
		stopCh:     make(chan struct{}),
	}
}

// Set 将值存储在缓存中
func (c *Cache) Set(addr uint16, data *CachedData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data.TTL == 0 {
		data.TTL = c.defaultTTL
	}
	if data.Timestamp.IsZero() {
		data.Timestamp = time.Now()
	}
	c.data[addr] = data
}

// Get 从缓存中检索未过期的值
func (c *Cache) Get(addr uint16) (*CachedData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.data[addr]
	if !ok || data.IsExpired() {
		return nil, false
	}
	return data, true
}

// Cleanup 从缓存中删除过期条目
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for addr, data := range c.data {
		if data.IsExpired() {
			delete(c.data, addr)
			count++
		}
	}
	return count
}

// StartPeriodicCleanup 启动一个goroutine，定期清理过期条目
func (c *Cache) StartPeriodicCleanup(interval time.Duration, callback func(int)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if count := c.Cleanup(); callback != nil && count > 0 {
					callback(count)
				}
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop 停止定期清理goroutine
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Size 返回缓存中的项目数
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
