package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for cart_operations_total.
const (
	outcomeSuccess         = "success"
	outcomeOutOfStock      = "out_of_stock"
	outcomeNotFound        = "not_found"
	outcomeInvalidQuantity = "invalid_quantity"
	outcomeServiceFailure  = "service_failure"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_operations_total",
			Help: "Cart operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cart_operation_duration_seconds",
			Help:    "Cart operation latency including stock, catalog and store calls",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	cartLines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cart_lines",
		Help: "Number of distinct product lines in the committed cart",
	})
)
