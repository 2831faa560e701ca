package events

import (
	"github.com/go-go-golems/arbor/pkg/conversation"
)

// Kind is the wire discriminant of one streamed event. The numeric values
// are part of the protocol and must not be reordered.
type Kind int

const (
	KindStopID           Kind = 0
	KindSegment          Kind = 1
	KindError            Kind = 2
	KindUserMessage      Kind = 3
	KindUpdateTitle      Kind = 4
	KindTitleSegment     Kind = 5
	KindResponseMessage  Kind = 6
	KindStartResponse    Kind = 7
	KindReasoningSegment Kind = 8
	KindImageGenerated   Kind = 9
)

func (k Kind) String() string {
	switch k {
	case KindStopID:
		return "stop-id"
	case KindSegment:
		return "segment"
	case KindError:
		return "error"
	case KindUserMessage:
		return "user-message"
	case KindUpdateTitle:
		return "update-title"
	case KindTitleSegment:
		return "title-segment"
	case KindResponseMessage:
		return "response-message"
	case KindStartResponse:
		return "start-response"
	case KindReasoningSegment:
		return "reasoning-segment"
	case KindImageGenerated:
		return "image-generated"
	default:
		return "unknown"
	}
}

// Event is one decoded protocol event.
type Event interface {
	Kind() Kind
}

// StopIDEvent carries the server-issued id of the in-flight operation, used
// to request cancellation out of band.
type StopIDEvent struct {
	ID string
}

func (StopIDEvent) Kind() Kind { return KindStopID }

// SegmentEvent is a streamed text delta for one span.
type SegmentEvent struct {
	SpanID conversation.SpanID
	Text   string
}

func (SegmentEvent) Kind() Kind { return KindSegment }

// ReasoningSegmentEvent is a streamed reasoning delta for one span.
type ReasoningSegmentEvent struct {
	SpanID conversation.SpanID
	Text   string
}

func (ReasoningSegmentEvent) Kind() Kind { return KindReasoningSegment }

// ErrorEvent is a per-span generation failure. It does not end the cycle.
type ErrorEvent struct {
	SpanID conversation.SpanID
	Text   string
}

func (ErrorEvent) Kind() Kind { return KindError }

// UserMessageEvent carries the committed user message of the current turn.
type UserMessageEvent struct {
	Message *conversation.Message
}

func (UserMessageEvent) Kind() Kind { return KindUserMessage }

// ResponseMessageEvent finalizes one span: it carries the committed
// assistant message, including the server-issued final id and the
// finalization metrics.
type ResponseMessageEvent struct {
	SpanID  conversation.SpanID
	Message *conversation.Message
}

func (ResponseMessageEvent) Kind() Kind { return KindResponseMessage }

// StartResponseEvent reports the elapsed reasoning time before a span
// started producing output.
type StartResponseEvent struct {
	SpanID    conversation.SpanID
	ElapsedMs int64
}

func (StartResponseEvent) Kind() Kind { return KindStartResponse }

// ImageGeneratedEvent carries a generated file descriptor for one span.
type ImageGeneratedEvent struct {
	SpanID conversation.SpanID
	File   conversation.FileDef
}

func (ImageGeneratedEvent) Kind() Kind { return KindImageGenerated }

// UpdateTitleEvent replaces the chat title.
type UpdateTitleEvent struct {
	Text string
}

func (UpdateTitleEvent) Kind() Kind { return KindUpdateTitle }

// TitleSegmentEvent appends a fragment to the chat title.
type TitleSegmentEvent struct {
	Text string
}

func (TitleSegmentEvent) Kind() Kind { return KindTitleSegment }
