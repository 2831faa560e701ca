package session

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/events"
)

// reconciler applies one cycle's decoded event sequence to the chat state.
// Events arrive multiplexed across spans on a single stream; the reconciler
// addresses each one to the right placeholder through the registry, so spans
// never interfere with each other. One reconciler instance serves exactly
// one streamed body.
type reconciler struct {
	state    *conversation.ChatState
	registry *conversation.PlaceholderRegistry
	publish  func(events.Progress)
	logger   zerolog.Logger
}

func newReconciler(
	state *conversation.ChatState,
	registry *conversation.PlaceholderRegistry,
	publish func(events.Progress),
	logger zerolog.Logger,
) *reconciler {
	return &reconciler{
		state:    state,
		registry: registry,
		publish:  publish,
		logger:   logger,
	}
}

// apply translates one event into state mutations. An error means the event
// addressed a span or placeholder the cycle does not know about, which is a
// consistency bug, not an expected runtime condition.
func (r *reconciler) apply(ev events.Event) error {
	switch e := ev.(type) {
	case events.StopIDEvent:
		return r.state.Apply(conversation.MutateSetStopID(e.ID))

	case events.ReasoningSegmentEvent:
		id, err := r.placeholderFor(e.SpanID)
		if err != nil {
			return err
		}
		if err := r.state.Apply(conversation.MutateAppendSegment(
			id, conversation.ContentKindReasoning, conversation.SpanStatusReasoning, e.Text)); err != nil {
			return err
		}
		r.publish(events.Progress{Kind: events.ProgressSegment, SpanID: e.SpanID, MessageID: id, Delta: e.Text})
		return nil

	case events.SegmentEvent:
		id, err := r.placeholderFor(e.SpanID)
		if err != nil {
			return err
		}
		if err := r.state.Apply(conversation.MutateAppendSegment(
			id, conversation.ContentKindText, conversation.SpanStatusChatting, e.Text)); err != nil {
			return err
		}
		r.publish(events.Progress{Kind: events.ProgressSegment, SpanID: e.SpanID, MessageID: id, Delta: e.Text})
		return nil

	case events.ErrorEvent:
		// Local to the span: sibling spans and the cycle continue.
		id, err := r.placeholderFor(e.SpanID)
		if err != nil {
			return err
		}
		if err := r.state.Apply(conversation.MutateSpanError(id, e.Text)); err != nil {
			return err
		}
		r.publish(events.Progress{Kind: events.ProgressSpanFailed, SpanID: e.SpanID, MessageID: id, Error: e.Text})
		return nil

	case events.StartResponseEvent:
		id, err := r.placeholderFor(e.SpanID)
		if err != nil {
			return err
		}
		return r.state.Apply(conversation.MutateReasoningDuration(id, e.ElapsedMs))

	case events.ImageGeneratedEvent:
		id, err := r.placeholderFor(e.SpanID)
		if err != nil {
			return err
		}
		return r.state.Apply(conversation.MutateAttachFile(id, e.File))

	case events.ResponseMessageEvent:
		if e.Message == nil {
			return errors.Errorf("span %d finalized without a message", e.SpanID)
		}
		placeholder, err := r.registry.Resolve(e.SpanID, e.Message.ID)
		if err != nil {
			return err
		}
		if err := r.state.Apply(conversation.MutateFinalizeSpan(placeholder, e.Message)); err != nil {
			return err
		}
		r.publish(events.Progress{Kind: events.ProgressSpanFinalized, SpanID: e.SpanID, MessageID: e.Message.ID})
		return nil

	case events.UserMessageEvent:
		return r.state.Apply(conversation.MutateCommitUser(e.Message))

	case events.UpdateTitleEvent:
		if err := r.state.Apply(conversation.MutateSetTitle(e.Text)); err != nil {
			return err
		}
		r.publish(events.Progress{Kind: events.ProgressTitleChanged, Title: r.state.Title})
		return nil

	case events.TitleSegmentEvent:
		if err := r.state.Apply(conversation.MutateAppendTitle(e.Text)); err != nil {
			return err
		}
		r.publish(events.Progress{Kind: events.ProgressTitleChanged, Title: r.state.Title})
		return nil

	default:
		r.logger.Warn().Str("kind", ev.Kind().String()).Msg("unhandled event kind")
		return nil
	}
}

func (r *reconciler) placeholderFor(spanID conversation.SpanID) (conversation.MessageID, error) {
	id, ok := r.registry.IDFor(spanID)
	if !ok {
		return conversation.NullID, errors.Errorf("span %d has no pending placeholder", spanID)
	}
	return id, nil
}
