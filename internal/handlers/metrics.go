package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "userhub_registrations_total",
		Help: "Total number of successful user registrations.",
	})

	loginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "userhub_login_attempts_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	resetRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "userhub_password_reset_requests_total",
			Help: "Forgot-password requests by outcome.",
		},
		[]string{"outcome"},
	)

	resetCompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "userhub_password_resets_total",
			Help: "Password reset redemptions by outcome.",
		},
		[]string{"outcome"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
