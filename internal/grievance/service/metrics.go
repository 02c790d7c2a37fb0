package service

import (
	pkgerrors "safevoice/pkg/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lifecycleOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grievance_lifecycle_operations_total",
			Help: "Lifecycle operations by outcome",
		},
		[]string{"operation", "result"},
	)

	attachmentBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grievance_attachment_bytes",
			Help:    "Aggregate attachment size per accepted submission",
			Buckets: prometheus.ExponentialBuckets(4<<10, 4, 6),
		},
	)
)

// observe records the outcome of one operation. Errors mapping to 5xx count as
// "error", every other error as "rejected".
func observe(operation string, err error) {
	result := "ok"
	if err != nil {
		code := pkgerrors.GetCode(err)
		if code.HTTPStatus() >= 500 {
			result = "error"
		} else {
			result = "rejected"
		}
	}
	lifecycleOperations.WithLabelValues(operation, result).Inc()
}
