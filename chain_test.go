package mailcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCommand struct{ verbs []string }

func (s stubCommand) Verbs() []string { return s.verbs }

func (s stubCommand) HandleCommand(ctx context.Context, sess *Session, verb, args string) (Response, error) {
	return Response{}, nil
}

type stubConnect struct{}

func (stubConnect) HookName() string { return "stub-connect" }

func (stubConnect) HandleConnect(ctx context.Context, sess *Session) HookResult { return Declined() }

func TestRegisterCommandRejectsDuplicateVerb(t *testing.T) {
	chain := NewHandlerChain()
	require.NoError(t, chain.RegisterCommand(stubCommand{verbs: []string{"MAIL"}}))

	err := chain.RegisterCommand(stubCommand{verbs: []string{"MAIL"}})
	require.Error(t, err)
	var wiringErr *WiringError
	assert.ErrorAs(t, err, &wiringErr)

	h, ok := chain.Lookup("MAIL")
	assert.True(t, ok)
	assert.NotNil(t, h)
}

func TestRegisterCommandDuplicateVerbLeavesOtherVerbsUnregistered(t *testing.T) {
	chain := NewHandlerChain()
	require.NoError(t, chain.RegisterCommand(stubCommand{verbs: []string{"MAIL"}}))

	err := chain.RegisterCommand(stubCommand{verbs: []string{"RCPT", "MAIL"}})
	require.Error(t, err)

	_, ok := chain.Lookup("RCPT")
	assert.False(t, ok, "a handler that fails on one verb must not partially register its other verbs")
}

func TestRegisterCommandAfterWireFails(t *testing.T) {
	chain := NewHandlerChain()
	require.NoError(t, chain.RegisterCommand(stubCommand{verbs: []string{"MAIL"}}))
	require.NoError(t, chain.WireExtensibleHandlers())

	err := chain.RegisterCommand(stubCommand{verbs: []string{"RCPT"}})
	require.Error(t, err)
	var wiringErr *WiringError
	assert.ErrorAs(t, err, &wiringErr)

	_, ok := chain.Lookup("RCPT")
	assert.False(t, ok)
}

func TestRegisterConnectAfterWireFails(t *testing.T) {
	chain := NewHandlerChain()
	require.NoError(t, chain.WireExtensibleHandlers())

	err := chain.RegisterConnect(stubConnect{})
	require.Error(t, err)
	var wiringErr *WiringError
	assert.ErrorAs(t, err, &wiringErr)
}
