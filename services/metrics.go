package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wagerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_transitions_total",
		Help: "Wager state machine operations by outcome.",
	}, []string{"op", "outcome"})

	ledgerWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_ledger_writes_total",
		Help: "Ledger append attempts by kind and status.",
	}, []string{"kind", "status"})

	settledLamports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_settled_lamports_total",
		Help: "Lamports recorded in confirmed settlement ledger rows.",
	}, []string{"kind"})

	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_auth_attempts_total",
		Help: "Sign-in attempts by outcome.",
	}, []string{"outcome"})
)

// observe records the outcome of op, labelled by error kind on failure.
func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	wagerTransitions.WithLabelValues(op, outcome).Inc()
}
