package conversation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MessageID is an opaque message identifier. Server-issued ids are arbitrary
// strings; locally generated ids are uuids; placeholder ids are only ever
// issued by the PlaceholderRegistry. The empty id means "no message" and is
// used as the parent of conversation roots.
type MessageID string

const NullID MessageID = ""

func NewMessageID() MessageID {
	return MessageID(uuid.NewString())
}

// SpanID identifies one parallel response slot within a turn.
type SpanID int

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ContentKind string

const (
	ContentKindText      ContentKind = "text"
	ContentKindReasoning ContentKind = "reasoning"
	ContentKindFile      ContentKind = "file"
	ContentKindError     ContentKind = "error"
)

// SpanStatus is the lifecycle of an in-flight assistant message.
// SpanStatusNone means finalized or idle.
type SpanStatus string

const (
	SpanStatusNone      SpanStatus = "none"
	SpanStatusReasoning SpanStatus = "reasoning"
	SpanStatusChatting  SpanStatus = "chatting"
	SpanStatusFailed    SpanStatus = "failed"
)

// DisplayType is a presentation hint, orthogonal to the tree shape.
type DisplayType string

const (
	DisplayTypeNormal DisplayType = "normal"
	DisplayTypeRaw    DisplayType = "raw"
)

// Reaction is the tri-state up/down/unset rating of a message. On the wire it
// is a nullable boolean.
type Reaction int

const (
	ReactionUnset Reaction = iota
	ReactionUp
	ReactionDown
)

func (r Reaction) MarshalJSON() ([]byte, error) {
	switch r {
	case ReactionUp:
		return []byte("true"), nil
	case ReactionDown:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (r *Reaction) UnmarshalJSON(data []byte) error {
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrap(err, "reaction must be a nullable boolean")
	}
	switch {
	case v == nil:
		*r = ReactionUnset
	case *v:
		*r = ReactionUp
	default:
		*r = ReactionDown
	}
	return nil
}

// FileDef describes a generated or attached file.
type FileDef struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
}

// ContentPart is one element of a message's ordered content sequence. Parts
// are append-only during streaming; a new part is started only when the kind
// changes, otherwise text payload is concatenated onto the last part.
type ContentPart struct {
	ID   string
	Kind ContentKind
	Text string
	File *FileDef
}

// Wire shape: {"i": <part id>, "$type": <kind>, "c": <payload>}. The payload
// is a string for text-like kinds and a FileDef object for file parts.
type contentPartWire struct {
	I    string          `json:"i"`
	Type ContentKind     `json:"$type"`
	C    json.RawMessage `json:"c"`
}

func (p *ContentPart) MarshalJSON() ([]byte, error) {
	w := contentPartWire{I: p.ID, Type: p.Kind}
	var err error
	if p.Kind == ContentKindFile {
		w.C, err = json.Marshal(p.File)
	} else {
		w.C, err = json.Marshal(p.Text)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (p *ContentPart) UnmarshalJSON(data []byte) error {
	var w contentPartWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.ID = w.I
	p.Kind = w.Type
	if w.Type == ContentKindFile {
		var f FileDef
		if err := json.Unmarshal(w.C, &f); err != nil {
			return errors.Wrap(err, "file part payload")
		}
		p.File = &f
		return nil
	}
	if err := json.Unmarshal(w.C, &p.Text); err != nil {
		return errors.Wrapf(err, "%s part payload", w.Type)
	}
	return nil
}

func (p *ContentPart) Clone() *ContentPart {
	out := *p
	if p.File != nil {
		f := *p.File
		out.File = &f
	}
	return &out
}

// Message is a single node in the conversation tree.
//
// SpanID is meaningful only for assistant messages. SiblingIDs lists every
// alternative occupying the same tree position, including the message's own
// id; all members of a committed sibling group carry the same set.
type Message struct {
	ID         MessageID      `json:"id"`
	ParentID   MessageID      `json:"parentId,omitempty"`
	Role       Role           `json:"role"`
	SpanID     SpanID         `json:"spanId,omitempty"`
	Content    []*ContentPart `json:"content"`
	SiblingIDs []MessageID    `json:"siblingIds,omitempty"`
	IsActive   bool           `json:"isActive,omitempty"`
	Status     SpanStatus     `json:"status,omitempty"`
	Edited     bool           `json:"edited,omitempty"`
	Reaction   Reaction       `json:"reaction,omitempty"`

	DisplayType DisplayType `json:"displayType,omitempty"`
	CreatedAt   time.Time   `json:"createdAt,omitempty"`

	// Finalization metrics, populated by the ResponseMessage event.
	// Durations and latency are milliseconds.
	Duration          int64   `json:"duration,omitempty"`
	FirstTokenLatency int64   `json:"firstTokenLatency,omitempty"`
	ReasoningDuration int64   `json:"reasoningDuration,omitempty"`
	InputTokens       int     `json:"inputTokens,omitempty"`
	OutputTokens      int     `json:"outputTokens,omitempty"`
	InputPrice        float64 `json:"inputPrice,omitempty"`
	OutputPrice       float64 `json:"outputPrice,omitempty"`
}

type MessageOption func(*Message)

func WithID(id MessageID) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithParentID(parentID MessageID) MessageOption {
	return func(m *Message) {
		m.ParentID = parentID
	}
}

func WithCreatedAt(t time.Time) MessageOption {
	return func(m *Message) {
		m.CreatedAt = t
	}
}

func WithSiblingIDs(ids ...MessageID) MessageOption {
	return func(m *Message) {
		m.SiblingIDs = ids
	}
}

func WithStatus(status SpanStatus) MessageOption {
	return func(m *Message) {
		m.Status = status
	}
}

func newMessage(role Role, options ...MessageOption) *Message {
	m := &Message{
		ID:        NewMessageID(),
		Role:      role,
		IsActive:  true,
		Status:    SpanStatusNone,
		CreatedAt: time.Now(),
	}
	for _, option := range options {
		option(m)
	}
	if len(m.SiblingIDs) == 0 {
		m.SiblingIDs = []MessageID{m.ID}
	}
	return m
}

// NewUserMessage creates a user turn node carrying the given content parts.
func NewUserMessage(content []*ContentPart, options ...MessageOption) *Message {
	m := newMessage(RoleUser, options...)
	m.Content = content
	return m
}

// NewAssistantMessage creates an assistant node for the given span.
func NewAssistantMessage(spanID SpanID, options ...MessageOption) *Message {
	m := newMessage(RoleAssistant, options...)
	m.SpanID = spanID
	return m
}

// NewTextPart creates a standalone text content part.
func NewTextPart(text string) *ContentPart {
	return &ContentPart{Kind: ContentKindText, Text: text}
}

// AppendPayload concatenates text onto the last content part if it has the
// same kind, otherwise starts a new part of that kind.
func (m *Message) AppendPayload(kind ContentKind, text string) {
	if n := len(m.Content); n > 0 && m.Content[n-1].Kind == kind {
		m.Content[n-1].Text += text
		return
	}
	m.Content = append(m.Content, &ContentPart{Kind: kind, Text: text})
}

// AttachFile appends a file content part, or replaces the payload of the last
// part when it is already a file part.
func (m *Message) AttachFile(file FileDef) {
	if n := len(m.Content); n > 0 && m.Content[n-1].Kind == ContentKindFile {
		m.Content[n-1].File = &file
		return
	}
	m.Content = append(m.Content, &ContentPart{Kind: ContentKindFile, File: &file})
}

// Text returns the concatenation of all text parts.
func (m *Message) Text() string {
	out := ""
	for _, p := range m.Content {
		if p.Kind == ContentKindText {
			out += p.Text
		}
	}
	return out
}

// HasSibling reports whether id is part of the message's sibling group.
func (m *Message) HasSibling(id MessageID) bool {
	for _, s := range m.SiblingIDs {
		if s == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Mutations on the copy never reach the original;
// this is the unit of the copy-on-write discipline used by the selection
// path.
func (m *Message) Clone() *Message {
	out := *m
	out.Content = make([]*ContentPart, len(m.Content))
	for i, p := range m.Content {
		out.Content[i] = p.Clone()
	}
	out.SiblingIDs = append([]MessageID(nil), m.SiblingIDs...)
	return &out
}
