package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mplus",
		Name:      "registrations_total",
		Help:      "Finished registration conversations by outcome.",
	}, []string{"outcome"})

	removalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mplus",
		Name:      "signup_removals_total",
		Help:      "User initiated signup removals by outcome.",
	}, []string{"outcome"})

	// SyncRowsTotal counts rows visited by the nightly stat sync.
	SyncRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mplus",
		Name:      "sync_rows_total",
		Help:      "Rows processed by the nightly stat sync by result.",
	}, []string{"result"})

	// RotationsTotal counts weekly rotation runs.
	RotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mplus",
		Name:      "rotations_total",
		Help:      "Weekly sheet rotation runs by result.",
	}, []string{"result"})
)
