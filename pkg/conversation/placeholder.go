package conversation

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// placeholderPrefix is fixed so the reconciler can address a span before the
// server has issued a real id. Placeholder ids are never persisted.
const placeholderPrefix = "pending-response"

// PlaceholderID returns the deterministic transient id for a span.
func PlaceholderID(spanID SpanID) MessageID {
	return MessageID(fmt.Sprintf("%s-%d", placeholderPrefix, spanID))
}

// IsPlaceholderID reports whether id follows the reserved placeholder
// pattern.
func IsPlaceholderID(id MessageID) bool {
	return strings.HasPrefix(string(id), placeholderPrefix+"-")
}

// PlaceholderRegistry maps each active span to its provisional message id
// for the duration of one response cycle. Entries are resolved exactly once,
// on the finalize event, and are invalid for reuse afterward.
type PlaceholderRegistry struct {
	pending  map[SpanID]MessageID
	resolved map[SpanID]MessageID
}

func NewPlaceholderRegistry(spanIDs []SpanID) *PlaceholderRegistry {
	r := &PlaceholderRegistry{
		pending:  make(map[SpanID]MessageID, len(spanIDs)),
		resolved: make(map[SpanID]MessageID),
	}
	for _, spanID := range spanIDs {
		r.pending[spanID] = PlaceholderID(spanID)
	}
	return r
}

// IDFor returns the placeholder id for a span that has not been resolved
// yet.
func (r *PlaceholderRegistry) IDFor(spanID SpanID) (MessageID, bool) {
	id, ok := r.pending[spanID]
	return id, ok
}

// Resolve maps a span's placeholder to the server-issued final id. Resolving
// a span twice, or a span that was never registered, is an error.
func (r *PlaceholderRegistry) Resolve(spanID SpanID, finalID MessageID) (MessageID, error) {
	placeholder, ok := r.pending[spanID]
	if !ok {
		if prev, done := r.resolved[spanID]; done {
			return NullID, errors.Errorf("span %d already resolved to %s", spanID, prev)
		}
		return NullID, errors.Errorf("span %d has no pending placeholder", spanID)
	}
	if finalID == NullID {
		return NullID, errors.Errorf("span %d: final id is empty", spanID)
	}
	delete(r.pending, spanID)
	r.resolved[spanID] = finalID
	return placeholder, nil
}

// Pending returns the spans that have not been finalized yet.
func (r *PlaceholderRegistry) Pending() []SpanID {
	out := make([]SpanID, 0, len(r.pending))
	for spanID := range r.pending {
		out = append(out, spanID)
	}
	return out
}
