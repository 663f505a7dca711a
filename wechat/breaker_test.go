package wechat

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingVendor struct {
	Mock
	calls int
	err   error
}

func (v *failingVendor) FetchAccessToken(ctx context.Context) (AccessToken, error) {
	v.calls++
	return AccessToken{}, v.err
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestBreaker_PassesThrough(t *testing.T) {
	b := NewBreaker(NewMock(), quietLog())

	tok, err := b.FetchAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MockAccessToken, tok.Value)

	ticket, err := b.CreateSceneTicket(context.Background(), tok.Value, "login_1")
	require.NoError(t, err)
	assert.Equal(t, "mock_ticket_login_1", ticket)

	profile, err := b.FetchUserProfile(context.Background(), tok.Value, "oUser")
	require.NoError(t, err)
	assert.Equal(t, "oUser", profile["openid"])
}

func TestBreaker_OpensAfterRepeatedFailures(t *testing.T) {
	v := &failingVendor{err: errors.New("connection refused")}
	b := NewBreaker(v, quietLog())

	for i := 0; i < 10; i++ {
		_, err := b.FetchAccessToken(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.FetchAccessToken(context.Background())
	require.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, 10, v.calls)
}

func TestBreaker_MissingCredentialsDoNotTrip(t *testing.T) {
	v := &failingVendor{err: ErrMissingCredentials}
	b := NewBreaker(v, quietLog())

	for i := 0; i < 20; i++ {
		_, err := b.FetchAccessToken(context.Background())
		require.ErrorIs(t, err, ErrMissingCredentials)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
