package mailcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHookChainFirstTerminatingWins(t *testing.T) {
	deny := NewResponse(stubStatus{}, "denied")
	results := []HookResult{
		Declined(),
		OK(),
		Deny(deny),
		Disconnect(NewResponse(stubStatus{}, "should not be reached")),
	}

	got := RunHookChain(results)
	require.Equal(t, HookDeny, got.Action)
	require.NotNil(t, got.Response)
	assert.Equal(t, []string{"denied"}, got.Response.Lines)
}

func TestRunHookChainTentativeOKSurvivesDeclines(t *testing.T) {
	ok := OKWithResponse(NewResponse(stubStatus{}, "accepted"))
	results := []HookResult{Declined(), ok, Declined()}

	got := RunHookChain(results)
	assert.Equal(t, HookOK, got.Action)
	assert.Equal(t, ok.Response, got.Response)
}

func TestRunHookChainAllDeclinedIsDeclined(t *testing.T) {
	got := RunHookChain([]HookResult{Declined(), Declined()})
	assert.Equal(t, HookDeclined, got.Action)
	assert.False(t, got.Terminates())
}

func TestHookResultTerminates(t *testing.T) {
	cases := []struct {
		result HookResult
		want   bool
	}{
		{Declined(), false},
		{OK(), false},
		{Deny(Response{}), true},
		{DenySoft(Response{}), true},
		{Disconnect(Response{}), true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.result.Terminates())
	}
}

func TestDisconnectSetsEndSession(t *testing.T) {
	result := Disconnect(NewResponse(stubStatus{}, "bye"))
	require.NotNil(t, result.Response)
	assert.True(t, result.Response.EndSession)
}

type stubStatus struct{}

func (stubStatus) Render(lines []string) []byte {
	out := make([]byte, 0)
	for _, l := range lines {
		out = append(out, l...)
		out = append(out, '\n')
	}
	return out
}
