package wechat

import (
	"context"
	"time"
)

const (
	MockAccessToken  = "mock_access_token"
	mockTicketPrefix = "mock_ticket_"
)

// Mock 返回固定数据，用于本地联调，不访问微信
type Mock struct{}

// NewMock 创建 mock 接口
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) FetchAccessToken(ctx context.Context) (AccessToken, error) {
	return AccessToken{Value: MockAccessToken, ExpiresIn: 2 * time.Hour}, nil
}

func (m *Mock) FetchUserProfile(ctx context.Context, accessToken, openID string) (Profile, error) {
	return MockProfile(openID), nil
}

func (m *Mock) CreateSceneTicket(ctx context.Context, accessToken, scene string) (string, error) {
	return mockTicketPrefix + scene, nil
}

// MockProfile 是 mock 模式下的用户信息
func MockProfile(openID string) Profile {
	return Profile{
		"subscribe":  1,
		"openid":     openID,
		"nickname":   "测试用户",
		"sex":        1,
		"language":   "zh_CN",
		"city":       "深圳",
		"province":   "广东",
		"country":    "中国",
		"headimgurl": "",
	}
}
