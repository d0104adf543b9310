package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the relay collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	callsTotal       prometheus.Counter
	callsActive      prometheus.Gauge
	callDuration     prometheus.Histogram
	stateTransitions *prometheus.CounterVec
	framesRelayed    *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	sessionsEvicted  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		callsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "callrelay",
			Subsystem: "relay",
			Name:      "calls_total",
			Help:      "Inbound media streams accepted.",
		}),
		callsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "callrelay",
			Subsystem: "relay",
			Name:      "calls_active",
			Help:      "Calls not yet terminated.",
		}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "callrelay",
			Subsystem: "relay",
			Name:      "call_duration_seconds",
			Help:      "Time from inbound connect to teardown.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callrelay",
			Subsystem: "relay",
			Name:      "state_transitions_total",
			Help:      "Call state machine transitions.",
		}, []string{"from", "to"}),
		framesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callrelay",
			Subsystem: "relay",
			Name:      "frames_relayed_total",
			Help:      "Audio frames forwarded, by direction.",
		}, []string{"direction"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callrelay",
			Subsystem: "relay",
			Name:      "frames_dropped_total",
			Help:      "Audio frames discarded, by reason.",
		}, []string{"reason"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callrelay",
			Subsystem: "relay",
			Name:      "errors_total",
			Help:      "Relay errors by kind (transport, parse, missing_data, downstream).",
		}, []string{"kind"}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "callrelay",
			Subsystem: "store",
			Name:      "sessions_evicted_total",
			Help:      "Sessions removed by the idle reaper or the session cap.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.callsTotal, m.callsActive, m.callDuration, m.stateTransitions,
			m.framesRelayed, m.framesDropped, m.errorsTotal, m.sessionsEvicted,
		)
	}
	return m
}

func (m *Metrics) callStarted() {
	if m == nil {
		return
	}
	m.callsTotal.Inc()
	m.callsActive.Inc()
}

func (m *Metrics) callEnded(seconds float64) {
	if m == nil {
		return
	}
	m.callsActive.Dec()
	m.callDuration.Observe(seconds)
}

func (m *Metrics) transition(from, to CallState) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) relayed(direction string) {
	if m == nil {
		return
	}
	m.framesRelayed.WithLabelValues(direction).Inc()
}

func (m *Metrics) dropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) failed(kind string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(kind).Inc()
}

// Evicted records sessions dropped by the store.
func (m *Metrics) Evicted(n int) {
	if m == nil {
		return
	}
	m.sessionsEvicted.Add(float64(n))
}
