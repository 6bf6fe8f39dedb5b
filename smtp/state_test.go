package smtp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailforge/mailcore"
	"github.com/mailforge/mailcore/smtp"
)

func TestCanTransitionFollowsReceivePath(t *testing.T) {
	path := []mailcore.State{
		smtp.StateConnected,
		smtp.StateGreeted,
		smtp.StateIdentified,
		smtp.StateMailFrom,
		smtp.StateRcptTo,
		smtp.StateData,
		smtp.StateDataDone,
		smtp.StateIdentified,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, smtp.CanTransition(path[i], path[i+1]),
			"%s -> %s should be a legal transition", smtp.StateName(path[i]), smtp.StateName(path[i+1]))
	}

	assert.False(t, smtp.CanTransition(smtp.StateGreeted, smtp.StateData),
		"DATA must not be reachable before a recipient is accepted")
	assert.False(t, smtp.CanTransition(smtp.StateData, smtp.StateMailFrom),
		"a new transaction must not start mid-DATA")
}

func TestAdvanceMovesSessionThroughLegalTransition(t *testing.T) {
	sess := mailcore.NewSession(mailcore.SessionID("s1"), nil, nil, mailcore.NullLogger{})
	sess.SetState(smtp.StateGreeted)

	smtp.Advance(sess, smtp.StateIdentified)
	require.Equal(t, smtp.StateIdentified, sess.State())
}

func TestAdvancePanicsOnIllegalTransition(t *testing.T) {
	sess := mailcore.NewSession(mailcore.SessionID("s1"), nil, nil, mailcore.NullLogger{})
	sess.SetState(smtp.StateGreeted)

	assert.Panics(t, func() { smtp.Advance(sess, smtp.StateData) })
	assert.Equal(t, smtp.StateGreeted, sess.State(), "a refused transition must leave the state untouched")
}
