package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"wechat_qrlogin/config"
	"wechat_qrlogin/logger"
	"wechat_qrlogin/official"
	"wechat_qrlogin/service"
	"wechat_qrlogin/wechat"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	log := logger.New(cfg.Logging)
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vendor, err := newVendor(ctx, cfg, log)
	if err != nil {
		log.Fatalf("初始化微信接口失败: %v", err)
	}

	svc := service.NewLoginService(service.Options{
		Vendor: vendor,
		Token:  cfg.WeChat.Token,
		Log:    logrus.NewEntry(log),
	})
	router := service.NewRouter(svc, service.RouterOptions{
		MockMode: cfg.WeChat.Backend == config.BackendMock,
		Log:      log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"backend": cfg.WeChat.Backend,
		}).Info("扫码登录服务已启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("正在关闭服务")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("关闭服务失败")
	}
}

// newVendor 按 wechat.backend 选择微信接口实现：
// api 直接调用 HTTP 接口，外加熔断和 access_token 缓存；
// sdk 使用 silenceper/wechat，token 由 SDK 缓存；
// mock 返回固定数据。
func newVendor(ctx context.Context, cfg *config.Config, log *logrus.Logger) (wechat.Vendor, error) {
	wc := cfg.WeChat
	if wc.Backend == config.BackendMock {
		log.Warn("当前为 mock 模式，不会访问微信接口")
		return wechat.NewMock(), nil
	}

	tokenCache, err := wechat.NewCache(ctx, wechat.CacheOptions{
		Driver:          cfg.Cache.Driver,
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		MemcacheServers: cfg.Cache.MemcacheServers,
	})
	if err != nil {
		return nil, err
	}

	breakerLog := log.WithField("component", "wechat")
	if wc.Backend == config.BackendSDK {
		return wechat.NewBreaker(official.New(wc.AppID, wc.AppSecret, wc.Token, tokenCache, wc.HTTPTimeout), breakerLog), nil
	}

	var vendor wechat.Vendor = wechat.NewBreaker(wechat.NewClient(wc.AppID, wc.AppSecret, wc.APIBase, wc.HTTPTimeout), breakerLog)
	if tokenCache != nil {
		vendor = wechat.NewTokenCache(vendor, tokenCache, wc.AppID)
	}
	return vendor, nil
}
