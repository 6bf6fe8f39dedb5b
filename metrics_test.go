package mailcore

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsObserversWithNilRegistry(t *testing.T) {
	m := NewMetrics(nil, "test")

	m.ObserveBytesRead(10)
	m.ObserveBytesWritten(20)
	m.ObserveMessageSize(1024)
	m.ObserveCommand("MAIL", "ok")
	m.ObserveHookDenial("dnscheck", HookDeny)

	assert.Equal(t, float64(10), testutil.ToFloat64(m.BytesRead))
	assert.Equal(t, float64(20), testutil.ToFloat64(m.BytesWritten))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CommandsTotal.WithLabelValues("MAIL", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HookDenials.WithLabelValues("dnscheck", "deny")))
}

func TestNilMetricsObserversAreNoOps(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveBytesRead(10)
		m.ObserveBytesWritten(20)
		m.ObserveMessageSize(1024)
		m.ObserveCommand("MAIL", "ok")
		m.ObserveHookDenial("dnscheck", HookDeny)
	})
}
