package conversation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlaceholderIDIsDeterministic(t *testing.T) {
	require.Equal(t, MessageID("pending-response-0"), PlaceholderID(0))
	require.Equal(t, MessageID("pending-response-3"), PlaceholderID(3))
	require.True(t, IsPlaceholderID(PlaceholderID(7)))
	require.False(t, IsPlaceholderID("srv-123"))
}

func TestRegistryIssuesAndResolves(t *testing.T) {
	r := NewPlaceholderRegistry([]SpanID{0, 1})

	id, ok := r.IDFor(0)
	require.True(t, ok)
	require.Equal(t, PlaceholderID(0), id)

	placeholder, err := r.Resolve(0, "srv-1")
	require.NoError(t, err)
	require.Equal(t, PlaceholderID(0), placeholder)

	require.Equal(t, []SpanID{1}, r.Pending())
	_, ok = r.IDFor(0)
	require.False(t, ok)
}

func TestRegistryRejectsDoubleResolve(t *testing.T) {
	r := NewPlaceholderRegistry([]SpanID{0})
	_, err := r.Resolve(0, "srv-1")
	require.NoError(t, err)

	_, err = r.Resolve(0, "srv-2")
	require.Error(t, err)
}

func TestRegistryRejectsUnknownSpan(t *testing.T) {
	r := NewPlaceholderRegistry([]SpanID{0})
	_, err := r.Resolve(9, "srv-1")
	require.Error(t, err)
}

func TestRegistryRejectsEmptyFinalID(t *testing.T) {
	r := NewPlaceholderRegistry([]SpanID{0})
	_, err := r.Resolve(0, NullID)
	require.Error(t, err)
}
