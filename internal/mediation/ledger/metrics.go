package ledger

import "github.com/prometheus/client_golang/prometheus"

type Outcome string

const (
	OutcomeHandled  Outcome = "handled"  // interceptor changed the result
	OutcomeDeferred Outcome = "deferred" // native behaviour kept
	OutcomeDisabled Outcome = "disabled"
	OutcomePanic    Outcome = "panic"
)

type Metrics struct {
	HookCalls      *prometheus.CounterVec
	UnitsMoved     *prometheus.CounterVec
	LiveContainers *prometheus.GaugeVec
	StoredUnits    *prometheus.GaugeVec
	SinkQueueDrops prometheus.Counter
}

// NewMetrics registers the deepstore collectors on reg (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HookCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deepstore",
			Name:      "hook_calls_total",
			Help:      "Interceptor dispatches by hook and outcome.",
		}, []string{"hook", "outcome"}),
		UnitsMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deepstore",
			Name:      "units_moved_total",
			Help:      "Item units touched by interceptors by hook and action.",
		}, []string{"hook", "action"}),
		LiveContainers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "deepstore",
			Name:      "live_containers",
			Help:      "Spawned and operational containers per area.",
		}, []string{"area"}),
		StoredUnits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "deepstore",
			Name:      "stored_units",
			Help:      "Units held by live containers per area and kind.",
		}, []string{"area", "kind"}),
		SinkQueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deepstore",
			Name:      "ledger_sink_drops_total",
			Help:      "Ledger entries dropped by a full sink queue.",
		}),
	}
	reg.MustRegister(m.HookCalls, m.UnitsMoved, m.LiveContainers, m.StoredUnits, m.SinkQueueDrops)
	return m
}
