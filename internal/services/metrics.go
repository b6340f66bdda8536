package services

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for sessionWrites.
const (
	outcomeCreated   = "created"
	outcomeReplayed  = "replayed"
	outcomeDuplicate = "duplicate"
	outcomeInvalid   = "invalid"
	outcomeUpdated   = "updated"
	outcomeNotFound  = "not_found"
	outcomeError     = "error"
)

// sessionWrites counts create/update attempts by operation and outcome.
var sessionWrites = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "charging_session_writes_total",
		Help: "Charging session writes by operation and outcome.",
	},
	[]string{"op", "outcome"},
)

func init() {
	prometheus.MustRegister(sessionWrites)
}
