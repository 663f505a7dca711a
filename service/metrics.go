package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// qrCodesIssued outcome: success, token_error, ticket_error
	qrCodesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wechat_qrcodes_issued_total",
			Help: "Total number of login QR code requests",
		},
		[]string{"outcome"},
	)

	// webhookEvents event: SCAN, subscribe, other, malformed
	// outcome: logged_in, ignored, profile_error, token_error
	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wechat_webhook_events_total",
			Help: "Total number of webhook messages received from WeChat",
		},
		[]string{"event", "outcome"},
	)

	loginChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wechat_login_checks_total",
			Help: "Total number of login polling requests",
		},
		[]string{"result"},
	)

	vendorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wechat_vendor_requests_total",
			Help: "Total number of WeChat API calls made by the login service",
		},
		[]string{"op", "outcome"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
