package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes operational counters for the vote-integrity subsystem.
type Metrics struct {
	LoginAttempts      *prometheus.CounterVec
	OTPSends           prometheus.Counter
	Votes              *prometheus.CounterVec
	ChainVerifications *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "evote_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"result"}),
		OTPSends: factory.NewCounter(prometheus.CounterOpts{
			Name: "evote_otp_sends_total",
			Help: "OTP codes handed to the notifier.",
		}),
		Votes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "evote_votes_total",
			Help: "Vote submissions by outcome.",
		}, []string{"result"}),
		ChainVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "evote_chain_verifications_total",
			Help: "Full-chain integrity verifications by result.",
		}, []string{"valid"}),
	}
}
