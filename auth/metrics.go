package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	methodLocal  = "local"
	methodSignup = "signup"
	methodGoogle = "google"

	resultSuccess = "success"
	resultFailure = "failure"
	resultError   = "error"
)

var attempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lighthouse_auth_attempts_total",
	Help: "Authentication attempts by method and result.",
}, []string{"method", "result"})

func record(method, result string) {
	attempts.WithLabelValues(method, result).Inc()
}
