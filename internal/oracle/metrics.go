package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// OracleReadsTotal tracks price reads by source and result.
	OracleReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_bets_oracle_reads_total",
			Help: "Total number of oracle price reads",
		},
		[]string{"source", "result"},
	)

	// OracleReadDuration tracks the time taken for a full price read.
	OracleReadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_bets_oracle_read_duration_seconds",
			Help:    "Time taken to read a price from an oracle",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// RPCCallsTotal tracks feed contract calls by method and result.
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_bets_oracle_rpc_calls_total",
			Help: "Total number of price feed contract calls",
		},
		[]string{"method", "result"},
	)

	// RPCCallDuration tracks contract call latency by method.
	RPCCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_bets_oracle_rpc_call_duration_seconds",
			Help:    "Latency of price feed contract calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method"},
	)
)
