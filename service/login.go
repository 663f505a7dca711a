// Package service 实现公众号扫码登录：生成场景值和二维码、处理微信回调、
// 维护场景值到登录结果的映射并响应前端轮询。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"wechat_qrlogin/wechat"
)

const scenePrefix = "login_"

var (
	ErrAccessToken  = errors.New("获取access_token失败")
	ErrQRCode       = errors.New("获取二维码失败")
	ErrUnauthorized = errors.New("未登录或登录已过期")
)

// QRCode 是返回给前端的二维码信息
type QRCode struct {
	URL   string
	Scene string
}

// LoginService 串起签名校验、消息解析、微信接口和登录状态存储
type LoginService struct {
	vendor wechat.Vendor
	store  *Store
	token  string
	now    func() time.Time
	log    *logrus.Entry
}

// Options 是 LoginService 的依赖
type Options struct {
	Vendor wechat.Vendor
	// Token 是公众号后台配置的服务器校验 token
	Token string
	Store *Store
	Now   func() time.Time
	Log   *logrus.Entry
}

func NewLoginService(opts Options) *LoginService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	store := opts.Store
	if store == nil {
		store = NewStore(now)
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LoginService{
		vendor: opts.Vendor,
		store:  store,
		token:  opts.Token,
		now:    now,
		log:    log.WithField("component", "login"),
	}
}

// IssueQRCode 生成场景值并换取带参数的临时二维码
func (s *LoginService) IssueQRCode(ctx context.Context) (QRCode, error) {
	tok, err := s.vendor.FetchAccessToken(ctx)
	vendorRequests.WithLabelValues("access_token", outcome(err)).Inc()
	if err != nil {
		qrCodesIssued.WithLabelValues("token_error").Inc()
		s.log.WithError(err).Error("获取access_token失败")
		return QRCode{}, fmt.Errorf("%w: %v", ErrAccessToken, err)
	}

	scene := fmt.Sprintf("%s%d", scenePrefix, s.now().Unix())
	ticket, err := s.vendor.CreateSceneTicket(ctx, tok.Value, scene)
	vendorRequests.WithLabelValues("qrcode_create", outcome(err)).Inc()
	if err != nil {
		qrCodesIssued.WithLabelValues("ticket_error").Inc()
		s.log.WithError(err).WithField("scene", scene).Error("获取二维码ticket失败")
		return QRCode{}, fmt.Errorf("%w: %v", ErrQRCode, err)
	}

	qrCodesIssued.WithLabelValues("success").Inc()
	s.log.WithField("scene", scene).Debug("已生成登录二维码")
	return QRCode{URL: wechat.QRCodeURL(ticket), Scene: scene}, nil
}

// VerifySignature 校验微信回调签名
func (s *LoginService) VerifySignature(signature, timestamp, nonce string) bool {
	ok := wechat.CheckSignature(s.token, signature, timestamp, nonce)
	if !ok {
		s.log.WithFields(logrus.Fields{
			"timestamp": timestamp,
			"nonce":     nonce,
		}).Warn("签名校验失败")
	}
	return ok
}

// HandleMessage 处理微信推送的消息。任何失败都只记录日志，
// 调用方始终回复 success，避免微信重复推送。
func (s *LoginService) HandleMessage(ctx context.Context, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("处理微信消息时发生异常")
		}
	}()

	fields, ok := wechat.ParseMessage(payload)
	if !ok {
		webhookEvents.WithLabelValues("malformed", "ignored").Inc()
		s.log.Warn("解析XML失败，忽略该消息")
		return
	}

	evtName := fields["Event"]
	evt, ok := wechat.ExtractLoginEvent(fields)
	if !ok {
		webhookEvents.WithLabelValues(eventLabel(evtName), "ignored").Inc()
		s.log.WithFields(logrus.Fields{
			"msg_type": fields["MsgType"],
			"event":    evtName,
		}).Debug("非扫码登录消息，忽略")
		return
	}

	log := s.log.WithFields(logrus.Fields{"scene": evt.Scene, "openid": evt.OpenID, "event": evtName})

	tok, err := s.vendor.FetchAccessToken(ctx)
	vendorRequests.WithLabelValues("access_token", outcome(err)).Inc()
	if err != nil {
		webhookEvents.WithLabelValues(evtName, "token_error").Inc()
		log.WithError(err).Error("获取access_token失败")
		return
	}

	profile, err := s.vendor.FetchUserProfile(ctx, tok.Value, evt.OpenID)
	vendorRequests.WithLabelValues("user_info", outcome(err)).Inc()
	if err != nil {
		webhookEvents.WithLabelValues(evtName, "profile_error").Inc()
		log.WithError(err).Error("获取用户信息失败")
		return
	}

	s.store.Put(evt.Scene, evt.OpenID, profile)
	webhookEvents.WithLabelValues(evtName, "logged_in").Inc()
	log.WithField("nickname", cast.ToString(profile["nickname"])).Info("用户扫码登录成功")
}

// CheckLogin 查询场景值对应的登录结果，过期视为未登录
func (s *LoginService) CheckLogin(scene string) (LoginRecord, bool) {
	rec, ok := s.store.Get(scene)
	if ok {
		loginChecks.WithLabelValues("logged_in").Inc()
	} else {
		loginChecks.WithLabelValues("pending").Inc()
	}
	return rec, ok
}

// Authenticate 以场景值作为临时凭证，存在有效登录结果时返回用户标识
func (s *LoginService) Authenticate(scene string) (string, error) {
	if scene == "" {
		return "", ErrUnauthorized
	}
	if _, ok := s.store.Get(scene); !ok {
		return "", ErrUnauthorized
	}
	return scene, nil
}

// SimulateScan 模拟用户扫码，仅在 mock 模式下开放
func (s *LoginService) SimulateScan(ctx context.Context, scene, openID string) error {
	if scene == "" {
		return errors.New("缺少 scene")
	}
	if openID == "" {
		openID = "mock_openid_" + scene
	}
	profile, err := s.vendor.FetchUserProfile(ctx, wechat.MockAccessToken, openID)
	if err != nil {
		return err
	}
	s.store.Put(scene, openID, profile)
	s.log.WithFields(logrus.Fields{"scene": scene, "openid": openID}).Info("模拟扫码登录")
	return nil
}

func eventLabel(evt string) string {
	switch evt {
	case "SCAN", "subscribe":
		return evt
	case "":
		return "none"
	}
	return "other"
}
