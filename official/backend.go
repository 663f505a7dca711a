// Package official 通过 silenceper/wechat 公众号 SDK 实现 wechat.Vendor，
// access_token 由 SDK 按配置的缓存自行维护。
package official

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	sdk "github.com/silenceper/wechat/v2"
	"github.com/silenceper/wechat/v2/cache"
	"github.com/silenceper/wechat/v2/officialaccount"
	"github.com/silenceper/wechat/v2/officialaccount/basic"
	offConfig "github.com/silenceper/wechat/v2/officialaccount/config"

	"wechat_qrlogin/wechat"
)

// Backend 是基于 SDK 的 Vendor 实现，传入的 accessToken 参数不使用
type Backend struct {
	oa         *officialaccount.OfficialAccount
	configured bool
	timeout    time.Duration
}

// New 创建 SDK 后端，c 为 nil 时使用内存缓存
func New(appID, appSecret, token string, c cache.Cache, timeout time.Duration) *Backend {
	if c == nil {
		c = wechat.NewMemoryCache()
	}
	wc := sdk.NewWechat()
	cfg := &offConfig.Config{
		AppID:     appID,
		AppSecret: appSecret,
		Token:     token,
		Cache:     c,
	}
	return &Backend{
		oa:         wc.GetOfficialAccount(cfg),
		configured: appID != "" && appSecret != "",
		timeout:    timeout,
	}
}

func (b *Backend) FetchAccessToken(ctx context.Context) (wechat.AccessToken, error) {
	if !b.configured {
		return wechat.AccessToken{}, wechat.ErrMissingCredentials
	}
	tok, err := call(ctx, b.timeout, b.oa.GetAccessToken)
	if err != nil {
		return wechat.AccessToken{}, fmt.Errorf("%w: %v", wechat.ErrUpstream, err)
	}
	return wechat.AccessToken{Value: tok}, nil
}

func (b *Backend) CreateSceneTicket(ctx context.Context, _ string, scene string) (string, error) {
	ticket, err := call(ctx, b.timeout, func() (*basic.Ticket, error) {
		return b.oa.GetBasic().GetQRTicket(basic.NewTmpQrRequest(wechat.QRCodeExpire, scene))
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", wechat.ErrUpstream, err)
	}
	if ticket == nil || ticket.Ticket == "" {
		return "", fmt.Errorf("%w: ticket", wechat.ErrMissingField)
	}
	return ticket.Ticket, nil
}

func (b *Backend) FetchUserProfile(ctx context.Context, _ string, openID string) (wechat.Profile, error) {
	info, err := call(ctx, b.timeout, func() (any, error) {
		return b.oa.GetUser().GetUserInfo(openID)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wechat.ErrUpstream, err)
	}

	return toProfile(info)
}

// toProfile 按微信原始字段名把 SDK 返回的结构体转换为 map
func toProfile(info any) (wechat.Profile, error) {
	raw, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	var profile wechat.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, err
	}
	// 与 HTTP 接口返回的用户信息保持一致
	delete(profile, "errcode")
	delete(profile, "errmsg")
	return profile, nil
}

type result[T any] struct {
	val T
	err error
}

// call 为不支持 context 的 SDK 调用加上超时
func call[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan result[T], 1)
	go func() {
		v, err := fn()
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
