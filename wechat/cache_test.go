package wechat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需配合 go test -race 运行
func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := NewMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			assert.NoError(t, c.Set(key, "v", time.Minute))
			c.Get(key)
			c.IsExist(key)
			if i%7 == 0 {
				assert.NoError(t, c.Delete(key))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, c.Set("k", "v", time.Minute))
	assert.Equal(t, "v", c.Get("k"))
	assert.True(t, c.IsExist("k"))
	require.NoError(t, c.Delete("k"))
	assert.Nil(t, c.Get("k"))
}

func TestNewCache_MemoryIsLocked(t *testing.T) {
	c, err := NewCache(context.Background(), CacheOptions{Driver: CacheMemory})
	require.NoError(t, err)
	assert.IsType(t, &memoryCache{}, c)
}

// 并发获取 token 并在 40001 时清除缓存，需配合 go test -race 运行
func TestTokenCache_ConcurrentInvalidation(t *testing.T) {
	v := &countingVendor{expiresIn: 2 * time.Hour, ticketErr: &APIError{Code: 40001, Msg: "invalid credential"}}
	tc := NewTokenCache(v, NewMemoryCache(), "wx-app")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := tc.FetchAccessToken(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			_, err = tc.CreateSceneTicket(context.Background(), tok.Value, "login_1")
			assert.ErrorIs(t, err, ErrUpstream)
		}()
	}
	wg.Wait()
}
