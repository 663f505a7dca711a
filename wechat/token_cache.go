package wechat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/silenceper/wechat/v2/cache"
)

const (
	CacheNone     = "none"
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CacheMemcache = "memcache"

	accessTokenKeyPrefix = "wechat_access_token_"
	// 提前一分钟过期，避免拿到即将失效的 token
	accessTokenMargin = 60 * time.Second
)

// CacheOptions 描述 access_token 的缓存后端
type CacheOptions struct {
	Driver          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	MemcacheServers []string
}

// NewCache 按驱动创建缓存，driver 为 none 时返回 nil
func NewCache(ctx context.Context, opts CacheOptions) (cache.Cache, error) {
	switch opts.Driver {
	case CacheNone:
		return nil, nil
	case CacheMemory, "":
		return NewMemoryCache(), nil
	case CacheRedis:
		return cache.NewRedis(ctx, &cache.RedisOpts{
			Host:     opts.RedisAddr,
			Password: opts.RedisPassword,
			Database: opts.RedisDB,
		}), nil
	case CacheMemcache:
		return cache.NewMemcache(opts.MemcacheServers...), nil
	default:
		return nil, fmt.Errorf("未知的缓存驱动: %s", opts.Driver)
	}
}

// TokenCache 为任意 Vendor 增加 access_token 缓存，其余接口直接透传
type TokenCache struct {
	Vendor
	cache cache.Cache
	key   string
	mu    sync.Mutex
}

// NewTokenCache 以 appID 区分缓存 key
func NewTokenCache(v Vendor, c cache.Cache, appID string) *TokenCache {
	return &TokenCache{
		Vendor: v,
		cache:  c,
		key:    accessTokenKeyPrefix + appID,
	}
}

func (t *TokenCache) FetchAccessToken(ctx context.Context) (AccessToken, error) {
	if tok, ok := t.cached(); ok {
		return tok, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if tok, ok := t.cached(); ok {
		return tok, nil
	}

	tok, err := t.Vendor.FetchAccessToken(ctx)
	if err != nil {
		return AccessToken{}, err
	}
	if ttl := tok.ExpiresIn - accessTokenMargin; ttl > 0 {
		// 缓存写失败不影响本次调用
		_ = t.cache.Set(t.key, tok.Value, ttl)
	}
	return tok, nil
}

func (t *TokenCache) FetchUserProfile(ctx context.Context, accessToken, openID string) (Profile, error) {
	profile, err := t.Vendor.FetchUserProfile(ctx, accessToken, openID)
	t.invalidateOn(err)
	return profile, err
}

func (t *TokenCache) CreateSceneTicket(ctx context.Context, accessToken, scene string) (string, error) {
	ticket, err := t.Vendor.CreateSceneTicket(ctx, accessToken, scene)
	t.invalidateOn(err)
	return ticket, err
}

// invalidateOn 在微信提示 token 失效时删除缓存，下一次调用重新获取
func (t *TokenCache) invalidateOn(err error) {
	if IsTokenInvalid(err) {
		_ = t.cache.Delete(t.key)
	}
}

func (t *TokenCache) cached() (AccessToken, bool) {
	v, ok := t.cache.Get(t.key).(string)
	if !ok || v == "" {
		return AccessToken{}, false
	}
	return AccessToken{Value: v}, true
}
