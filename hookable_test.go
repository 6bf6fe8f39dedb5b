package mailcore

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHook struct {
	name   string
	result HookResult
}

func (s stubHook) HookName() string { return s.name }

func TestHookableExecuteSkipsCoreOnDeny(t *testing.T) {
	var h HookableCommandHandler[stubHook]
	deny := NewResponse(stubStatus{}, "denied")
	h.RegisterHook(stubHook{name: "deny", result: Deny(deny)})

	coreRan := false
	resp := h.Execute(func() Response {
		coreRan = true
		return NewResponse(stubStatus{}, "should not be seen")
	}, func(hook stubHook) HookResult {
		return hook.result
	})

	assert.False(t, coreRan, "core must not run once a hook has denied the command")
	assert.Equal(t, []string{"denied"}, resp.Lines)
}

func TestHookableExecuteRunsCoreWhenDeclined(t *testing.T) {
	var h HookableCommandHandler[stubHook]
	h.RegisterHook(stubHook{name: "noop", result: Declined()})

	coreRan := false
	resp := h.Execute(func() Response {
		coreRan = true
		return NewResponse(stubStatus{}, "core response")
	}, func(hook stubHook) HookResult {
		return hook.result
	})

	assert.True(t, coreRan)
	assert.Equal(t, []string{"core response"}, resp.Lines)
}

func TestHookableExecuteOKRunsCoreButHookResponseWins(t *testing.T) {
	var h HookableCommandHandler[stubHook]
	override := NewResponse(stubStatus{}, "hook override")
	h.RegisterHook(stubHook{name: "ok", result: OKWithResponse(override)})

	coreRan := false
	resp := h.Execute(func() Response {
		coreRan = true
		return NewResponse(stubStatus{}, "core response")
	}, func(hook stubHook) HookResult {
		return hook.result
	})

	assert.True(t, coreRan, "OK doesn't stop the chain, so core still runs and mutates state")
	assert.Equal(t, []string{"hook override"}, resp.Lines)
}

func TestRunHooksStopsAtFirstTerminatingResult(t *testing.T) {
	var h HookableCommandHandler[stubHook]
	h.RegisterHook(stubHook{name: "deny", result: Deny(NewResponse(stubStatus{}, "denied"))})
	h.RegisterHook(stubHook{name: "never", result: Declined()})

	invoked := []string{}
	h.RunHooks(func(hook stubHook) HookResult {
		invoked = append(invoked, hook.name)
		return hook.result
	})

	assert.Equal(t, []string{"deny"}, invoked, "a hook after the terminating one must never run")
}

func TestRunHooksRecordsHookDenialMetric(t *testing.T) {
	metrics := NewMetrics(nil, "test")
	h := HookableCommandHandler[stubHook]{Metrics: metrics}
	h.RegisterHook(stubHook{name: "dnscheck", result: DenySoft(NewResponse(stubStatus{}, "try later"))})

	result := h.RunHooks(func(hook stubHook) HookResult { return hook.result })

	require.Equal(t, HookDenySoft, result.Action)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HookDenials.WithLabelValues("dnscheck", "denysoft")))
}
