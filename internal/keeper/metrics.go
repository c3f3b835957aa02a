package keeper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SweepsTotal tracks completed registry sweeps.
	SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_bets_keeper_sweeps_total",
		Help: "Total number of keeper sweeps",
	})

	// SweepDuration tracks the time taken by a sweep.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "price_bets_keeper_sweep_duration_seconds",
		Help:    "Time taken to sweep the vault registry",
		Buckets: prometheus.DefBuckets,
	})

	// VaultsClosedTotal tracks close attempts by outcome.
	VaultsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_bets_keeper_vaults_closed_total",
			Help: "Total number of keeper close attempts by result (closed, empty, failed)",
		},
		[]string{"result"},
	)

	// OverdueVaults tracks vaults still unresolved after their whole round end.
	OverdueVaults = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "price_bets_keeper_overdue_vaults",
		Help: "Number of vaults unresolved past their whole round end time",
	})
)
