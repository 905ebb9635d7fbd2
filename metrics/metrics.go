package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "painel",
		Name:      "store_operations_total",
		Help:      "Remote and local store operations by backend, operation and result.",
	}, []string{"backend", "op", "result"})

	DroppedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "painel",
		Name:      "normalizer_dropped_rows_total",
		Help:      "Rows discarded by the normalizer because of unreadable dates.",
	}, []string{"dataset"})

	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "painel",
		Name:      "dataset_mutations_total",
		Help:      "Session cache mutations by dataset and kind.",
	}, []string{"dataset", "kind"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "painel",
		Name:      "sessions_active",
		Help:      "Sessions currently held in memory.",
	})
)

// ObserveStore records one store call.
func ObserveStore(backend, op string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	StoreOperations.WithLabelValues(backend, op, result).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
