package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for chat turns and sessions.
type ConversationMetrics struct {
	turnsTotal     *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	tokensTotal    *prometheus.CounterVec
	activeSessions prometheus.Gauge
	evictionsTotal *prometheus.CounterVec
	webchatConns   prometheus.Gauge
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Chat turns by outcome (question, conclusion, malformed, upstream_error, store_error)",
		}, []string{"outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "conversation",
			Name:      "llm_latency_seconds",
			Help:      "Latency of upstream model completions",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"status"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "conversation",
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by upstream completions",
		}, []string{"direction"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intake",
			Subsystem: "conversation",
			Name:      "active_sessions",
			Help:      "Sessions currently held by the in-memory store",
		}),
		evictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "conversation",
			Name:      "session_evictions_total",
			Help:      "Sessions evicted from the in-memory store",
		}, []string{"reason"}),
		webchatConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intake",
			Subsystem: "webchat",
			Name:      "open_connections",
			Help:      "Websocket chat connections currently open",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.llmLatency, m.tokensTotal, m.activeSessions, m.evictionsTotal, m.webchatConns)
	return m
}

func (m *ConversationMetrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *ConversationMetrics) ObserveLLMLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(status).Observe(seconds)
}

func (m *ConversationMetrics) AddTokens(input, output int32) {
	if m == nil {
		return
	}
	if input > 0 {
		m.tokensTotal.WithLabelValues("input").Add(float64(input))
	}
	if output > 0 {
		m.tokensTotal.WithLabelValues("output").Add(float64(output))
	}
}

func (m *ConversationMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *ConversationMetrics) ObserveEviction(reason string) {
	if m == nil {
		return
	}
	m.evictionsTotal.WithLabelValues(reason).Inc()
}

func (m *ConversationMetrics) WebChatConnected() {
	if m == nil {
		return
	}
	m.webchatConns.Inc()
}

func (m *ConversationMetrics) WebChatDisconnected() {
	if m == nil {
		return
	}
	m.webchatConns.Dec()
}

// AppointmentMetrics counts lifecycle operations.
type AppointmentMetrics struct {
	bookedTotal      prometheus.Counter
	transitionsTotal *prometheus.CounterVec
}

func NewAppointmentMetrics(reg prometheus.Registerer) *AppointmentMetrics {
	m := &AppointmentMetrics{
		bookedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "appointments",
			Name:      "booked_total",
			Help:      "Appointments created in pending status",
		}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "appointments",
			Name:      "status_transitions_total",
			Help:      "Administrator status decisions by target status and result",
		}, []string{"status", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookedTotal, m.transitionsTotal)
	return m
}

func (m *AppointmentMetrics) ObserveBooked() {
	if m == nil {
		return
	}
	m.bookedTotal.Inc()
}

func (m *AppointmentMetrics) ObserveTransition(status, result string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(status, result).Inc()
}
