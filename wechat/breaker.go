package wechat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Breaker 为 Vendor 加上熔断：微信接口持续失败时直接拒绝请求，不再等待超时
type Breaker struct {
	vendor Vendor
	cb     *gobreaker.CircuitBreaker[any]
	log    *logrus.Entry
}

// NewBreaker 在 1 分钟窗口内至少 10 次请求且失败率 >= 60% 时熔断，30 秒后半开
func NewBreaker(v Vendor, log *logrus.Entry) *Breaker {
	b := &Breaker{vendor: v, log: log}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "wechat-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// 凭证缺失是配置问题，不计入失败
			return err == nil || errors.Is(err, ErrMissingCredentials)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Warn("微信接口熔断状态变化")
		},
	})
	return b
}

// State 返回当前熔断状态
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) FetchAccessToken(ctx context.Context) (AccessToken, error) {
	res, err := b.execute(func() (any, error) {
		return b.vendor.FetchAccessToken(ctx)
	})
	if err != nil {
		return AccessToken{}, err
	}
	return res.(AccessToken), nil
}

func (b *Breaker) FetchUserProfile(ctx context.Context, accessToken, openID string) (Profile, error) {
	res, err := b.execute(func() (any, error) {
		return b.vendor.FetchUserProfile(ctx, accessToken, openID)
	})
	if err != nil {
		return nil, err
	}
	return res.(Profile), nil
}

func (b *Breaker) CreateSceneTicket(ctx context.Context, accessToken, scene string) (string, error) {
	res, err := b.execute(func() (any, error) {
		return b.vendor.CreateSceneTicket(ctx, accessToken, scene)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return res, err
}
