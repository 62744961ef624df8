package files

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "appforge_file_operations_total",
		Help: "File operations by target kind, operation and result kind",
	}, []string{"target", "op", "result"})

	lockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "appforge_file_lock_wait_seconds",
		Help:    "Time spent waiting for a per-target lock",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

func observe(t Target, op string, err error) {
	result := "ok"
	if err != nil {
		result = string(models.KindOf(err))
	}
	operationsTotal.WithLabelValues(string(t.Kind), op, result).Inc()
}
