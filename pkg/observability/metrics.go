// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the portier authentication gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// AuthBuckets defines histogram buckets suited for authentication
// latencies, ranging from 1ms (in-memory key lookup) to 10s (remote
// identity store round trips).
var AuthBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portier_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portier_request_duration_seconds",
			Help:    "Request duration",
			Buckets: AuthBuckets,
		},
		[]string{"method"},
	)

	// AuthAttemptsTotal counts mechanism attempts by mechanism and outcome
	// (authenticated, not_authenticated, not_attempted, error).
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portier_auth_attempts_total",
			Help: "Mechanism attempts",
		},
		[]string{"mechanism", "outcome"},
	)

	// ChallengesSentTotal counts challenges written by mechanism.
	ChallengesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portier_challenges_sent_total",
			Help: "Challenges sent",
		},
		[]string{"mechanism"},
	)

	// LoginsTotal counts explicit login calls by result
	// (success, invalid, error).
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portier_logins_total",
			Help: "Login attempts",
		},
		[]string{"result"},
	)

	// SessionOpsTotal counts session manager operations by op and result.
	SessionOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portier_session_ops_total",
			Help: "Session manager operations",
		},
		[]string{"op", "result"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portier_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthAttemptsTotal,
		ChallengesSentTotal,
		LoginsTotal,
		SessionOpsTotal,
		RateLimitRejectedTotal,
	)
}
