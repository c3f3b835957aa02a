package vault

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// BidsPlacedTotal tracks accepted bids.
	BidsPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_bets_vault_bids_placed_total",
		Help: "Total number of accepted bids",
	})

	// StakeVolumeEther tracks the staked value of accepted bids.
	StakeVolumeEther = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_bets_vault_stake_volume_ether",
		Help: "Total value staked in accepted bids (ether)",
	})

	// RejectionsTotal tracks rejected operations by operation and error code.
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_bets_vault_rejections_total",
			Help: "Total number of rejected vault operations",
		},
		[]string{"operation", "code"},
	)

	// VaultsByPhase tracks initialized vaults per lifecycle phase.
	VaultsByPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "price_bets_vaults_by_phase",
			Help: "Number of initialized vaults per phase",
		},
		[]string{"phase"},
	)

	// AssessmentsTotal tracks price assessments by result.
	AssessmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_bets_vault_assessments_total",
			Help: "Total number of price assessments",
		},
		[]string{"result"},
	)

	// ResolutionsTotal tracks resolved vaults.
	ResolutionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_bets_vault_resolutions_total",
		Help: "Total number of resolved vaults",
	})

	// WinnersPerVault tracks the size of winner sets.
	WinnersPerVault = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "price_bets_vault_winners",
		Help:    "Number of winners per resolved vault",
		Buckets: []float64{1, 2, 3, 5, 10, 25, 50},
	})

	// PayoutsTotal tracks payout transfers by result.
	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_bets_vault_payouts_total",
			Help: "Total number of payout transfers",
		},
		[]string{"result"},
	)

	// EventSinkErrorsTotal tracks audit events that could not be stored.
	EventSinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_bets_event_sink_errors_total",
			Help: "Total number of audit events the sink rejected",
		},
		[]string{"kind"},
	)
)
