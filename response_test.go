package mailcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseBytesRendersThroughStatus(t *testing.T) {
	resp := NewMultilineResponse(stubStatus{}, "first", "second")
	assert.Equal(t, "first\nsecond\n", string(resp.Bytes()))
}

func TestMergeConcatenatesInOrderAndOrsEndSession(t *testing.T) {
	a := NewResponse(stubStatus{}, "a")
	b := NewResponse(stubStatus{}, "b")
	b.EndSession = true
	c := NewResponse(stubStatus{}, "c")

	merged := Merge([]Response{a, b, c})
	require.True(t, merged.IsEndSession())
	assert.Equal(t, "a\nb\nc\n", string(merged.Bytes()))
}

func TestMergeOfSingleResponseMatchesItsBytes(t *testing.T) {
	only := NewResponse(stubStatus{}, "solo")
	merged := Merge([]Response{only})
	assert.Equal(t, only.Bytes(), merged.Bytes())
	assert.False(t, merged.IsEndSession())
}

func TestMergeEmptyIsEmpty(t *testing.T) {
	merged := Merge(nil)
	assert.Empty(t, merged.Bytes())
	assert.False(t, merged.IsEndSession())
}
