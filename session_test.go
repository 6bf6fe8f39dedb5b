package mailcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetStatePreservesExactlyCarryOverKeys(t *testing.T) {
	sess := NewSession(SessionID("s1"), nil, nil, NullLogger{})
	sess.SetCarryOverKeys("helo_mode")

	sess.SetTxState("helo_mode", "EHLO")
	sess.SetTxState("sender", "a@example.com")
	sess.SetTxState("rcpt_count", 2)

	sess.ResetState()

	v, ok := sess.TxState("helo_mode")
	require.True(t, ok)
	assert.Equal(t, "EHLO", v)

	_, ok = sess.TxState("sender")
	assert.False(t, ok)
	_, ok = sess.TxState("rcpt_count")
	assert.False(t, ok)
}

func TestResetStateIsIdempotent(t *testing.T) {
	sess := NewSession(SessionID("s1"), nil, nil, NullLogger{})
	sess.SetCarryOverKeys("helo_mode")
	sess.SetTxState("helo_mode", "EHLO")
	sess.SetTxState("sender", "a@example.com")

	sess.ResetState()
	sess.ResetState()

	v, ok := sess.TxState("helo_mode")
	require.True(t, ok)
	assert.Equal(t, "EHLO", v)
	_, ok = sess.TxState("sender")
	assert.False(t, ok)
}

func TestAbsentKeyIsDistinctFromPresentNil(t *testing.T) {
	sess := NewSession(SessionID("s1"), nil, nil, NullLogger{})

	_, ok := sess.TxState("missing")
	assert.False(t, ok)

	sess.SetTxState("present-nil", nil)
	v, ok := sess.TxState("present-nil")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestConnStateSurvivesResetState(t *testing.T) {
	sess := NewSession(SessionID("s1"), nil, nil, NullLogger{})
	sess.SetConnState("hostname", "client.example.com")
	sess.SetTxState("sender", "a@example.com")

	sess.ResetState()

	v, ok := sess.ConnState("hostname")
	require.True(t, ok)
	assert.Equal(t, "client.example.com", v)
}

func TestErrorCountIncrementAndReset(t *testing.T) {
	sess := NewSession(SessionID("s1"), nil, nil, NullLogger{})

	assert.Equal(t, 1, sess.IncrementErrorCount())
	assert.Equal(t, 2, sess.IncrementErrorCount())
	sess.ResetErrorCount()
	assert.Equal(t, 1, sess.IncrementErrorCount())
}

func TestExtensionSetPreservesOrderAndDeduplicates(t *testing.T) {
	e := NewExtensionSet("SIZE 1000", "8BITMIME")
	e.Add("STARTTLS")
	e.Add("8BITMIME")

	assert.Equal(t, []string{"SIZE 1000", "8BITMIME", "STARTTLS"}, e.Names())
	assert.True(t, e.Has("STARTTLS"))

	e.Remove("8BITMIME")
	assert.False(t, e.Has("8BITMIME"))
	assert.Equal(t, []string{"SIZE 1000", "STARTTLS"}, e.Names())
}
