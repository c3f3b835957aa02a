package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// TransfersTotal tracks ledger balance operations by result.
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_bets_ledger_transfers_total",
			Help: "Total number of ledger balance operations",
		},
		[]string{"result"},
	)
)
