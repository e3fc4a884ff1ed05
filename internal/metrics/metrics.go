// Package metrics exposes Prometheus instrumentation for the auth
// flows.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Logins counts successful logins by method: otp, password, oauth.
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buddy_logins_total",
		Help: "Successful logins by method.",
	}, []string{"method"})

	// OTPIssued counts issued one-time codes.
	OTPIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buddy_otp_issued_total",
		Help: "One-time codes issued.",
	})

	// OTPRejected counts failed verification attempts.
	OTPRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buddy_otp_rejected_total",
		Help: "One-time code verifications rejected.",
	})

	// RateLimited counts requests refused by the attempt limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buddy_rate_limited_total",
		Help: "Requests refused by the OTP attempt limiter.",
	})

	// SessionsRevoked counts users affected by revocation sweeps.
	SessionsRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buddy_sessions_revoked_total",
		Help: "Users whose sessions were revoked by the sweep.",
	})
)

// Handler returns an http.Handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
