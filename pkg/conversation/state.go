package conversation

import (
	"time"

	"github.com/pkg/errors"
)

// ChatStatus is the overall lifecycle of a chat, distinct from per-span
// status. ChatStatusChatting gates new submissions on this chat only.
type ChatStatus string

const (
	ChatStatusNone     ChatStatus = "none"
	ChatStatusChatting ChatStatus = "chatting"
	ChatStatusFailed   ChatStatus = "failed"
)

// SpanConfig describes one parallel response slot requested for each turn.
type SpanConfig struct {
	SpanID    SpanID `json:"spanId" yaml:"spanId"`
	ModelID   int    `json:"modelId" yaml:"modelId"`
	ModelName string `json:"modelName" yaml:"modelName"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

// ChatState is the canonical mutable state of one chat: the committed tree,
// the derived selection path, and chat-level metadata. All changes go
// through Apply so the version counter tracks every mutation.
type ChatState struct {
	ID            string
	Title         string
	Status        ChatStatus
	LeafMessageID MessageID
	UpdatedAt     time.Time
	StopIDs       []string
	Spans         []SpanConfig

	Tree    *ConversationTree
	Path    SelectionPath
	Version int64
}

func NewChatState(id string, spans []SpanConfig) *ChatState {
	return &ChatState{
		ID:     id,
		Status: ChatStatusNone,
		Spans:  spans,
		Tree:   NewConversationTree(),
	}
}

// EnabledSpans returns the span ids that participate in a new turn, in
// configuration order.
func (cs *ChatState) EnabledSpans() []SpanID {
	out := make([]SpanID, 0, len(cs.Spans))
	for _, span := range cs.Spans {
		if span.Enabled {
			out = append(out, span.SpanID)
		}
	}
	return out
}

// Apply applies a single mutation and increments the version.
func (cs *ChatState) Apply(m Mutation) error {
	if cs == nil {
		return errors.New("chat state is nil")
	}
	if m == nil {
		return errors.New("mutation is nil")
	}
	if err := m.Apply(cs); err != nil {
		return errors.Wrapf(err, "mutation %s failed", m.Name())
	}
	cs.Version++
	return nil
}

// ApplyAll applies multiple mutations sequentially, stopping at the first
// failure.
func (cs *ChatState) ApplyAll(muts ...Mutation) error {
	for _, m := range muts {
		if err := cs.Apply(m); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a deep copy. Callers get immutable views, never
// references into the live structures.
func (cs *ChatState) Snapshot() *ChatState {
	out := *cs
	out.Tree = cs.Tree.Clone()
	out.Path = cs.Path.Clone()
	out.StopIDs = append([]string(nil), cs.StopIDs...)
	out.Spans = append([]SpanConfig(nil), cs.Spans...)
	return &out
}

// Hydrate loads a chat from its externally stored messages and leaf pointer,
// rebuilding the tree and the selection path.
func (cs *ChatState) Hydrate(messages []*Message, leafID MessageID) {
	cs.Tree = NewConversationTree()
	cs.Tree.Insert(messages...)
	cs.Tree.ActivateChain(leafID)
	cs.LeafMessageID = leafID
	cs.Path = ActivePath(cs.Tree, leafID)
	cs.Status = ChatStatusNone
}
