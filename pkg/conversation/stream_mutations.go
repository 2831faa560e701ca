package conversation

import (
	"time"

	"github.com/pkg/errors"
)

// Stream-side mutations: each decoded event is translated into one of these
// by the reconciler, so every streaming state change runs through the same
// Apply pipeline as branch editing.

type beginCycleMutation struct{}

// MutateBeginCycle marks the chat as chatting, gating further submissions.
func MutateBeginCycle() Mutation { return beginCycleMutation{} }

func (beginCycleMutation) Apply(cs *ChatState) error {
	cs.Status = ChatStatusChatting
	return nil
}

func (beginCycleMutation) Name() string { return "begin_cycle" }

type failCycleMutation struct{}

// MutateFailCycle marks the chat failed after a transport-level failure.
// Nodes already committed stay where they are.
func MutateFailCycle() Mutation { return failCycleMutation{} }

func (failCycleMutation) Apply(cs *ChatState) error {
	cs.Status = ChatStatusFailed
	return nil
}

func (failCycleMutation) Name() string { return "fail_cycle" }

type appendSegmentMutation struct {
	messageID MessageID
	kind      ContentKind
	status    SpanStatus
	text      string
}

// MutateAppendSegment appends streamed text to the addressed node on the
// deepest path level and updates its span status.
func MutateAppendSegment(messageID MessageID, kind ContentKind, status SpanStatus, text string) Mutation {
	return appendSegmentMutation{messageID: messageID, kind: kind, status: status, text: text}
}

func (m appendSegmentMutation) Apply(cs *ChatState) error {
	path, ok := cs.Path.UpdateInLastLevel(m.messageID, func(msg *Message) {
		msg.AppendPayload(m.kind, m.text)
		msg.Status = m.status
	})
	if !ok {
		return errors.Errorf("message %s not on the streaming level", m.messageID)
	}
	cs.Path = path
	return nil
}

func (m appendSegmentMutation) Name() string { return "append_segment" }

type spanErrorMutation struct {
	messageID MessageID
	text      string
}

// MutateSpanError records a per-span generation failure: an error content
// part plus failed status. Sibling spans and the cycle are unaffected.
func MutateSpanError(messageID MessageID, text string) Mutation {
	return spanErrorMutation{messageID: messageID, text: text}
}

func (m spanErrorMutation) Apply(cs *ChatState) error {
	path, ok := cs.Path.UpdateInLastLevel(m.messageID, func(msg *Message) {
		msg.Content = append(msg.Content, &ContentPart{Kind: ContentKindError, Text: m.text})
		msg.Status = SpanStatusFailed
	})
	if !ok {
		return errors.Errorf("message %s not on the streaming level", m.messageID)
	}
	cs.Path = path
	return nil
}

func (m spanErrorMutation) Name() string { return "span_error" }

type reasoningDurationMutation struct {
	messageID MessageID
	elapsedMs int64
}

// MutateReasoningDuration records the elapsed reasoning time reported by the
// StartResponse event. Status is left as is.
func MutateReasoningDuration(messageID MessageID, elapsedMs int64) Mutation {
	return reasoningDurationMutation{messageID: messageID, elapsedMs: elapsedMs}
}

func (m reasoningDurationMutation) Apply(cs *ChatState) error {
	path, ok := cs.Path.UpdateInLastLevel(m.messageID, func(msg *Message) {
		msg.ReasoningDuration = m.elapsedMs
	})
	if !ok {
		return errors.Errorf("message %s not on the streaming level", m.messageID)
	}
	cs.Path = path
	return nil
}

func (m reasoningDurationMutation) Name() string { return "reasoning_duration" }

type attachFileMutation struct {
	messageID MessageID
	file      FileDef
}

// MutateAttachFile appends or replaces a file content part on the addressed
// node.
func MutateAttachFile(messageID MessageID, file FileDef) Mutation {
	return attachFileMutation{messageID: messageID, file: file}
}

func (m attachFileMutation) Apply(cs *ChatState) error {
	path, ok := cs.Path.UpdateInLastLevel(m.messageID, func(msg *Message) {
		msg.AttachFile(m.file)
	})
	if !ok {
		return errors.Errorf("message %s not on the streaming level", m.messageID)
	}
	cs.Path = path
	return nil
}

func (m attachFileMutation) Name() string { return "attach_file" }

type finalizeSpanMutation struct {
	placeholderID MessageID
	final         *Message
}

// MutateFinalizeSpan resolves a placeholder against the server-issued final
// message: the path node keeps its accumulated content but takes the final
// id (the placeholder id is folded into the sibling set first, then replaced
// everywhere) and the finalization metrics; the committed message is
// appended to the tree.
func MutateFinalizeSpan(placeholderID MessageID, final *Message) Mutation {
	return finalizeSpanMutation{placeholderID: placeholderID, final: final}
}

func (m finalizeSpanMutation) Apply(cs *ChatState) error {
	if m.final == nil {
		return errors.New("final message is nil")
	}
	path, ok := cs.Path.UpdateInLastLevel(m.placeholderID, func(msg *Message) {
		msg.Status = SpanStatusNone
		if !msg.HasSibling(msg.ID) {
			msg.SiblingIDs = append(msg.SiblingIDs, msg.ID)
		}
		for i, sibling := range msg.SiblingIDs {
			if sibling == m.placeholderID {
				msg.SiblingIDs[i] = m.final.ID
			}
		}
		msg.ID = m.final.ID
		msg.ParentID = m.final.ParentID
		msg.Duration = m.final.Duration
		msg.FirstTokenLatency = m.final.FirstTokenLatency
		msg.InputTokens = m.final.InputTokens
		msg.OutputTokens = m.final.OutputTokens
		msg.InputPrice = m.final.InputPrice
		msg.OutputPrice = m.final.OutputPrice
	})
	if !ok {
		return errors.Errorf("placeholder %s not on the streaming level", m.placeholderID)
	}
	cs.Path = path
	cs.Tree.Insert(m.final.Clone())

	// The committed node joins its structural span group; rewrite the sets
	// so every member carries the same one.
	group := cs.Tree.SpanSiblings(m.final.ID)
	ids := make([]MessageID, 0, len(group))
	for _, member := range group {
		ids = append(ids, member.ID)
	}
	cs.Tree.SetSiblingGroup(ids)
	return nil
}

func (m finalizeSpanMutation) Name() string { return "finalize_span" }

type commitUserMutation struct {
	message *Message
}

// MutateCommitUser appends the server-committed user message to the tree.
// The path entry for the user turn was already added optimistically.
func MutateCommitUser(message *Message) Mutation {
	return commitUserMutation{message: message}
}

func (m commitUserMutation) Apply(cs *ChatState) error {
	if m.message == nil {
		return errors.New("user message is nil")
	}
	cs.Tree.Insert(m.message.Clone())
	return nil
}

func (m commitUserMutation) Name() string { return "commit_user" }

type setStopIDMutation struct {
	stopID string
}

// MutateSetStopID records the server-issued in-flight operation id used for
// out-of-band cancellation.
func MutateSetStopID(stopID string) Mutation {
	return setStopIDMutation{stopID: stopID}
}

func (m setStopIDMutation) Apply(cs *ChatState) error {
	cs.StopIDs = []string{m.stopID}
	return nil
}

func (m setStopIDMutation) Name() string { return "set_stop_id" }

type setTitleMutation struct {
	text   string
	append bool
}

// MutateSetTitle replaces the chat title.
func MutateSetTitle(text string) Mutation {
	return setTitleMutation{text: text}
}

// MutateAppendTitle appends a streamed title fragment.
func MutateAppendTitle(text string) Mutation {
	return setTitleMutation{text: text, append: true}
}

func (m setTitleMutation) Apply(cs *ChatState) error {
	if m.append {
		cs.Title += m.text
	} else {
		cs.Title = m.text
	}
	return nil
}

func (m setTitleMutation) Name() string { return "set_title" }

type completeCycleMutation struct {
	now time.Time
}

// MutateCompleteCycle ends a reconciliation cycle normally: the leaf is
// re-derived from the last committed message, the path is rebuilt from the
// tree, and the chat returns to idle.
func MutateCompleteCycle(now time.Time) Mutation {
	return completeCycleMutation{now: now}
}

func (m completeCycleMutation) Apply(cs *ChatState) error {
	if last := cs.Tree.LastID(); last != NullID {
		leaf := LastLeafID(cs.Tree, last)
		cs.Tree.ActivateChain(leaf)
		cs.LeafMessageID = leaf
		cs.Path = ActivePath(cs.Tree, leaf)
	}
	cs.UpdatedAt = m.now
	cs.Status = ChatStatusNone
	return nil
}

func (m completeCycleMutation) Name() string { return "complete_cycle" }
