package events

import "github.com/go-go-golems/arbor/pkg/conversation"

// TopicChatProgress is the default topic progress events are published on.
const TopicChatProgress = "chat-progress"

type ProgressKind string

const (
	ProgressCycleStarted  ProgressKind = "cycle-started"
	ProgressSegment       ProgressKind = "segment"
	ProgressSpanFinalized ProgressKind = "span-finalized"
	ProgressSpanFailed    ProgressKind = "span-failed"
	ProgressTitleChanged  ProgressKind = "title-changed"
	ProgressCycleDone     ProgressKind = "cycle-done"
	ProgressCycleFailed   ProgressKind = "cycle-failed"
)

// Progress is the payload published to subscribers while a cycle runs. It is
// a notification surface only; the chat state itself is read through session
// snapshots.
type Progress struct {
	ChatID    string                 `json:"chatId"`
	Kind      ProgressKind           `json:"kind"`
	SpanID    conversation.SpanID    `json:"spanId,omitempty"`
	MessageID conversation.MessageID `json:"messageId,omitempty"`
	Delta     string                 `json:"delta,omitempty"`
	Title     string                 `json:"title,omitempty"`
	Error     string                 `json:"error,omitempty"`
}
