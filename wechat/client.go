// Package wechat 封装公众号扫码登录用到的微信协议：回调签名、XML 消息、
// access_token / 二维码 ticket / 用户信息接口。
package wechat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

const (
	// DefaultAPIBase 微信公众平台接口地址
	DefaultAPIBase = "https://api.weixin.qq.com"

	// QRCodeExpire 临时二维码有效期
	QRCodeExpire = 600 * time.Second

	showQRCodeURL = "https://mp.weixin.qq.com/cgi-bin/showqrcode?ticket=%s"
)

var (
	ErrMissingCredentials = errors.New("未配置 WECHAT_APP_ID 或 WECHAT_APP_SECRET")
	ErrUpstream           = errors.New("微信接口调用失败")
	ErrMissingField       = errors.New("微信返回缺少字段")
)

// APIError 是微信接口返回的 errcode/errmsg
type APIError struct {
	Code int64
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("微信返回错误: %d %s", e.Code, e.Msg)
}

func (e *APIError) Unwrap() error {
	return ErrUpstream
}

// IsTokenInvalid 判断错误是否为 access_token 无效或过期
func IsTokenInvalid(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case 40001, 40014, 42001:
		return true
	}
	return false
}

// AccessToken 是全局接口调用凭证
type AccessToken struct {
	Value     string
	ExpiresIn time.Duration
}

// Profile 是 /cgi-bin/user/info 返回的用户信息，原样保留微信字段
type Profile map[string]interface{}

// Vendor 是微信接口的抽象，真实接口、SDK 和 mock 三种实现
type Vendor interface {
	FetchAccessToken(ctx context.Context) (AccessToken, error)
	FetchUserProfile(ctx context.Context, accessToken, openID string) (Profile, error)
	CreateSceneTicket(ctx context.Context, accessToken, scene string) (string, error)
}

// QRCodeURL 用 ticket 拼出二维码图片地址
func QRCodeURL(ticket string) string {
	return fmt.Sprintf(showQRCodeURL, url.QueryEscape(ticket))
}

// Client 直接调用微信 HTTP 接口
type Client struct {
	appID      string
	appSecret  string
	apiBase    string
	httpClient *http.Client
}

// NewClient 创建接口客户端，timeout 为每次请求的超时
func NewClient(appID, appSecret, apiBase string, timeout time.Duration) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Client{
		appID:      appID,
		appSecret:  appSecret,
		apiBase:    strings.TrimRight(apiBase, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchAccessToken 用 appid + secret 换取 access_token
func (c *Client) FetchAccessToken(ctx context.Context) (AccessToken, error) {
	if c.appID == "" || c.appSecret == "" {
		return AccessToken{}, ErrMissingCredentials
	}

	tokenURL := fmt.Sprintf(
		"%s/cgi-bin/token?grant_type=client_credential&appid=%s&secret=%s",
		c.apiBase,
		url.QueryEscape(c.appID),
		url.QueryEscape(c.appSecret),
	)
	body, err := c.do(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		return AccessToken{}, err
	}

	token := gjson.GetBytes(body, "access_token")
	if !token.Exists() || token.String() == "" {
		return AccessToken{}, fmt.Errorf("%w: access_token", ErrMissingField)
	}
	return AccessToken{
		Value:     token.String(),
		ExpiresIn: time.Duration(gjson.GetBytes(body, "expires_in").Int()) * time.Second,
	}, nil
}

// FetchUserProfile 获取关注用户的基本信息
func (c *Client) FetchUserProfile(ctx context.Context, accessToken, openID string) (Profile, error) {
	infoURL := fmt.Sprintf(
		"%s/cgi-bin/user/info?access_token=%s&openid=%s&lang=zh_CN",
		c.apiBase,
		url.QueryEscape(accessToken),
		url.QueryEscape(openID),
	)
	body, err := c.do(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return nil, err
	}

	profile, ok := gjson.ParseBytes(body).Value().(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: 用户信息不是 JSON 对象", ErrUpstream)
	}
	return profile, nil
}

// CreateSceneTicket 创建字符串场景值的临时二维码，返回 ticket
func (c *Client) CreateSceneTicket(ctx context.Context, accessToken, scene string) (string, error) {
	endpoint := fmt.Sprintf("%s/cgi-bin/qrcode/create?access_token=%s", c.apiBase, url.QueryEscape(accessToken))
	payload := map[string]interface{}{
		"expire_seconds": int(QRCodeExpire.Seconds()),
		"action_name":    "QR_STR_SCENE",
		"action_info": map[string]interface{}{
			"scene": map[string]string{
				"scene_str": scene,
			},
		},
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	body, err := c.do(ctx, http.MethodPost, endpoint, reqBody)
	if err != nil {
		return "", err
	}

	ticket := gjson.GetBytes(body, "ticket")
	if !ticket.Exists() || ticket.String() == "" {
		return "", fmt.Errorf("%w: ticket", ErrMissingField)
	}
	return ticket.String(), nil
}

// do 发送请求并检查状态码、JSON 格式与 errcode
func (c *Client) do(ctx context.Context, method, endpoint string, reqBody []byte) ([]byte, error) {
	var reader io.Reader
	if reqBody != nil {
		reader = bytes.NewReader(reqBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: 状态码 %d", ErrUpstream, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: 返回内容不是合法 JSON", ErrUpstream)
	}
	if code := gjson.GetBytes(body, "errcode").Int(); code != 0 {
		return nil, &APIError{Code: code, Msg: gjson.GetBytes(body, "errmsg").String()}
	}
	return body, nil
}
