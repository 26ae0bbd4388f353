package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics FFE 引擎的变更计数
type Metrics struct {
	MutationsTotal  *prometheus.CounterVec
	ChangeLogWrites prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MutationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ffe",
			Name:      "mutations_total",
			Help:      "Committed or rejected FFE mutations by operation.",
		}, []string{"operation", "result"}),
		ChangeLogWrites: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ffe",
			Name:      "change_events_total",
			Help:      "Committed change events observed on the event bus.",
		}),
	}
}

// ObserveMutation result 为 ok 或错误分类
func (m *Metrics) ObserveMutation(operation, result string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(operation, result).Inc()
}
