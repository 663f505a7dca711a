package wechat

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("wx-app", "wx-secret", srv.URL, 2*time.Second)
}

func TestClient_FetchAccessToken(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/cgi-bin/token", r.URL.Path)
			assert.Equal(t, "client_credential", r.URL.Query().Get("grant_type"))
			assert.Equal(t, "wx-app", r.URL.Query().Get("appid"))
			assert.Equal(t, "wx-secret", r.URL.Query().Get("secret"))
			_, _ = io.WriteString(w, `{"access_token":"ACCESS","expires_in":7200}`)
		})
		tok, err := c.FetchAccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ACCESS", tok.Value)
		assert.Equal(t, 2*time.Hour, tok.ExpiresIn)
	})

	t.Run("errcode", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"errcode":40013,"errmsg":"invalid appid"}`)
		})
		_, err := c.FetchAccessToken(context.Background())
		require.ErrorIs(t, err, ErrUpstream)
		assert.Contains(t, err.Error(), "40013")
	})

	t.Run("missing field", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"expires_in":7200}`)
		})
		_, err := c.FetchAccessToken(context.Background())
		require.ErrorIs(t, err, ErrMissingField)
	})

	t.Run("malformed json", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `<html>bad gateway</html>`)
		})
		_, err := c.FetchAccessToken(context.Background())
		require.ErrorIs(t, err, ErrUpstream)
	})

	t.Run("http status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := c.FetchAccessToken(context.Background())
		require.ErrorIs(t, err, ErrUpstream)
	})

	t.Run("missing credentials", func(t *testing.T) {
		c := NewClient("", "", "http://127.0.0.1:1", time.Second)
		_, err := c.FetchAccessToken(context.Background())
		require.ErrorIs(t, err, ErrMissingCredentials)
	})

	t.Run("network error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		c := NewClient("wx-app", "wx-secret", srv.URL, time.Second)
		_, err := c.FetchAccessToken(context.Background())
		require.ErrorIs(t, err, ErrUpstream)
	})

	t.Run("timeout", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-block:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(func() {
			close(block)
			srv.Close()
		})
		c := NewClient("wx-app", "wx-secret", srv.URL, 50*time.Millisecond)
		_, err := c.FetchAccessToken(context.Background())
		require.ErrorIs(t, err, ErrUpstream)
	})
}

func TestClient_FetchUserProfile(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/cgi-bin/user/info", r.URL.Path)
			assert.Equal(t, "ACCESS", r.URL.Query().Get("access_token"))
			assert.Equal(t, "oUser", r.URL.Query().Get("openid"))
			assert.Equal(t, "zh_CN", r.URL.Query().Get("lang"))
			_, _ = io.WriteString(w, `{"subscribe":1,"openid":"oUser","nickname":"小明"}`)
		})
		profile, err := c.FetchUserProfile(context.Background(), "ACCESS", "oUser")
		require.NoError(t, err)
		assert.Equal(t, "oUser", profile["openid"])
		assert.Equal(t, "小明", profile["nickname"])
		assert.EqualValues(t, 1, profile["subscribe"])
	})

	t.Run("errcode", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"errcode":40003,"errmsg":"invalid openid"}`)
		})
		_, err := c.FetchUserProfile(context.Background(), "ACCESS", "bad")
		require.ErrorIs(t, err, ErrUpstream)
	})

	t.Run("not an object", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `["a","b"]`)
		})
		_, err := c.FetchUserProfile(context.Background(), "ACCESS", "oUser")
		require.ErrorIs(t, err, ErrUpstream)
	})
}

func TestClient_CreateSceneTicket(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/cgi-bin/qrcode/create", r.URL.Path)
			assert.Equal(t, "ACCESS", r.URL.Query().Get("access_token"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			assert.EqualValues(t, 600, gjson.GetBytes(body, "expire_seconds").Int())
			assert.Equal(t, "QR_STR_SCENE", gjson.GetBytes(body, "action_name").String())
			assert.Equal(t, "login_1700000000", gjson.GetBytes(body, "action_info.scene.scene_str").String())

			_, _ = io.WriteString(w, `{"ticket":"gQH47joAAAAA==","expire_seconds":600,"url":"http://weixin.qq.com/q/x"}`)
		})
		ticket, err := c.CreateSceneTicket(context.Background(), "ACCESS", "login_1700000000")
		require.NoError(t, err)
		assert.Equal(t, "gQH47joAAAAA==", ticket)
	})

	t.Run("missing ticket", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"expire_seconds":600}`)
		})
		_, err := c.CreateSceneTicket(context.Background(), "ACCESS", "login_1")
		require.ErrorIs(t, err, ErrMissingField)
	})
}

func TestQRCodeURL(t *testing.T) {
	assert.Equal(t,
		"https://mp.weixin.qq.com/cgi-bin/showqrcode?ticket=gQH47joAAAAA%3D%3D",
		QRCodeURL("gQH47joAAAAA=="),
	)
}
