package mailcore

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors shared by a protocol listener.
// A nil *Metrics is valid everywhere it's accepted; callers that don't
// want metrics simply don't construct one.
type Metrics struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	CommandsTotal       *prometheus.CounterVec
	BytesRead           prometheus.Counter
	BytesWritten        prometheus.Counter
	MessageSize         prometheus.Histogram
	HookDenials         *prometheus.CounterVec
}

// NewMetrics registers a full set of collectors under the given namespace
// (e.g. "smtpd", "lmtpd", "pop3d") with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_accepted_total",
			Help: "Total TCP connections accepted.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections_active",
			Help: "Currently open connections.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_total",
			Help: "Commands processed, by verb and outcome.",
		}, []string{"verb", "outcome"}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_read_total",
			Help: "Total bytes read from clients.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_written_total",
			Help: "Total bytes written to clients.",
		}),
		MessageSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "message_size_bytes",
			Help:    "Size of accepted message bodies.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		HookDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "hook_denials_total",
			Help: "Commands rejected by a hook, by hook name and action.",
		}, []string{"hook", "action"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectionsAccepted,
			m.ConnectionsActive,
			m.CommandsTotal,
			m.BytesRead,
			m.BytesWritten,
			m.MessageSize,
			m.HookDenials,
		)
	}
	return m
}

// ObserveCommand records one processed command outcome.
func (m *Metrics) ObserveCommand(verb, outcome string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(verb, outcome).Inc()
}

// ObserveHookDenial records one hook-driven rejection.
func (m *Metrics) ObserveHookDenial(hookName string, action HookAction) {
	if m == nil {
		return
	}
	var label string
	switch action {
	case HookDeny:
		label = "deny"
	case HookDenySoft:
		label = "denysoft"
	case HookDisconnect:
		label = "disconnect"
	default:
		label = "other"
	}
	m.HookDenials.WithLabelValues(hookName, label).Inc()
}

// ObserveBytesRead records bytes read from a client connection.
func (m *Metrics) ObserveBytesRead(n int) {
	if m == nil {
		return
	}
	m.BytesRead.Add(float64(n))
}

// ObserveBytesWritten records bytes written to a client connection.
func (m *Metrics) ObserveBytesWritten(n int) {
	if m == nil {
		return
	}
	m.BytesWritten.Add(float64(n))
}

// ObserveMessageSize records the size of an accepted message body.
func (m *Metrics) ObserveMessageSize(n int) {
	if m == nil {
		return
	}
	m.MessageSize.Observe(float64(n))
}
