package factory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// VaultsCreatedTotal tracks clones created and initialized.
	VaultsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_bets_factory_vaults_created_total",
		Help: "Total number of vault clones created",
	})

	// CreateFailuresTotal tracks clones discarded because initialization failed.
	CreateFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_bets_factory_create_failures_total",
			Help: "Total number of failed vault creations by error code",
		},
		[]string{"code"},
	)
)
