package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "investor_fee_distributor_build_info",
			Help: "Build information of the investor fee distributor",
		},
		[]string{"version", "commit", "date"},
	)

	DistributeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investor_fee_distributor_distribute_calls_total",
			Help: "Total number of distribute calls",
		},
		[]string{"status"},
	)

	PagesProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "investor_fee_distributor_pages_processed_total",
			Help: "Total number of investor pages processed",
		},
	)

	InvestorsPaidTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "investor_fee_distributor_investors_paid_total",
			Help: "Total number of investor payouts executed",
		},
	)

	LamportsDistributedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investor_fee_distributor_lamports_distributed_total",
			Help: "Total quote lamports distributed",
		},
		[]string{"recipient"},
	)

	ClaimDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "investor_fee_distributor_claim_duration_seconds",
			Help:    "Duration of fee claims from the external position",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investor_fee_distributor_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "investor_fee_distributor_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
