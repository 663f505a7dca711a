package wechat

import (
	"sync"
	"time"

	"github.com/silenceper/wechat/v2/cache"
)

// memoryCache 给 silenceper 的内存缓存加锁：cache.Memory 的 Get 不加锁读 map，
// 过期时还会删除 key，与 Set 并发会触发 concurrent map read and map write
type memoryCache struct {
	mu    sync.Mutex
	inner *cache.Memory
}

// NewMemoryCache 返回可并发使用的内存缓存
func NewMemoryCache() cache.Cache {
	return &memoryCache{inner: cache.NewMemory()}
}

func (m *memoryCache) Get(key string) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.Get(key)
}

func (m *memoryCache) Set(key string, val interface{}, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.Set(key, val, timeout)
}

func (m *memoryCache) IsExist(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.IsExist(key)
}

func (m *memoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.Delete(key)
}
