package conversation

import (
	"github.com/pkg/errors"
)

// Mutation represents a deterministic change to a chat's state. Branch
// editing and stream reconciliation are both expressed as mutations so that
// every state change is named, testable in isolation, and counted by the
// state version.
type Mutation interface {
	Apply(cs *ChatState) error
	Name() string
}

type submitMutation struct {
	user         *Message
	placeholders []*Message
}

// MutateSubmit appends a new user level and one placeholder level (one entry
// per requested span) to the selection path. Nothing is committed to the
// tree yet; commits happen on the UserMessage and ResponseMessage events.
func MutateSubmit(user *Message, placeholders []*Message) Mutation {
	return submitMutation{user: user, placeholders: placeholders}
}

func (m submitMutation) Apply(cs *ChatState) error {
	if m.user == nil {
		return errors.New("user message is nil")
	}
	if len(m.placeholders) == 0 {
		return errors.New("no placeholders")
	}
	cs.Path = append(cs.Path, Level{m.user}, Level(m.placeholders))
	return nil
}

func (m submitMutation) Name() string { return "submit" }

type regenerateMutation struct {
	spanID      SpanID
	parentID    MessageID
	placeholder *Message
}

// MutateRegenerate truncates the path to the level holding the children of
// parentID, replaces that span's node with a fresh placeholder whose sibling
// set prepends the old node's id, and drops every deeper level.
func MutateRegenerate(spanID SpanID, parentID MessageID, placeholder *Message) Mutation {
	return regenerateMutation{spanID: spanID, parentID: parentID, placeholder: placeholder}
}

func (m regenerateMutation) Apply(cs *ChatState) error {
	if m.placeholder == nil {
		return errors.New("placeholder is nil")
	}
	idx := cs.Path.LevelIndexOfChild(m.parentID)
	if idx < 0 {
		return errors.Errorf("no path level below message %s", m.parentID)
	}
	level := cs.Path[idx].Clone()
	replaced := false
	for i, member := range level {
		if member.Role != RoleAssistant || member.SpanID != m.spanID {
			continue
		}
		m.placeholder.SiblingIDs = append([]MessageID{m.placeholder.ID}, member.SiblingIDs...)
		level[i] = m.placeholder
		replaced = true
		break
	}
	if !replaced {
		return errors.Errorf("span %d not present below message %s", m.spanID, m.parentID)
	}
	cs.Path = append(cs.Path[:idx:idx], level)
	return nil
}

func (m regenerateMutation) Name() string { return "regenerate" }

type editForkMutation struct {
	anchorID     MessageID
	user         *Message
	placeholders []*Message
}

// MutateEditFork truncates the path after anchorID and then behaves like
// submit, producing a new branch. The original branch stays reachable
// through sibling ids once the server commits the fork.
func MutateEditFork(anchorID MessageID, user *Message, placeholders []*Message) Mutation {
	return editForkMutation{anchorID: anchorID, user: user, placeholders: placeholders}
}

func (m editForkMutation) Apply(cs *ChatState) error {
	if m.user == nil {
		return errors.New("user message is nil")
	}
	if m.anchorID == NullID {
		cs.Path = nil
	} else {
		idx := cs.Path.LevelIndexOf(m.anchorID)
		if idx < 0 {
			return errors.Errorf("anchor %s not on the selection path", m.anchorID)
		}
		cs.Path = cs.Path[:idx+1 : idx+1]
	}
	return MutateSubmit(m.user, m.placeholders).Apply(cs)
}

func (m editForkMutation) Name() string { return "edit_fork" }

type editInPlaceMutation struct {
	messageID MessageID
	partID    string
	text      string
}

// MutateEditInPlace rewrites one content part's payload without changing the
// tree shape and marks the message edited.
func MutateEditInPlace(messageID MessageID, partID string, text string) Mutation {
	return editInPlaceMutation{messageID: messageID, partID: partID, text: text}
}

func (m editInPlaceMutation) Apply(cs *ChatState) error {
	edit := func(msg *Message) {
		for _, part := range msg.Content {
			if part.ID == m.partID {
				part.Text = m.text
			}
		}
		msg.Edited = true
	}
	if node, ok := cs.Tree.Get(m.messageID); ok {
		edit(node)
	}
	cs.Path = cs.Path.UpdateEverywhere(m.messageID, edit)
	return nil
}

func (m editInPlaceMutation) Name() string { return "edit_in_place" }

type forkAsNewMutation struct {
	originalID MessageID
	copy       *Message
}

// MutateForkAsNew commits a server-created copy of originalID as a new
// sibling, moves the leaf pointer onto it, and keeps the sibling sets of the
// whole group symmetric.
func MutateForkAsNew(originalID MessageID, copy *Message) Mutation {
	return forkAsNewMutation{originalID: originalID, copy: copy}
}

func (m forkAsNewMutation) Apply(cs *ChatState) error {
	if m.copy == nil {
		return errors.New("copy is nil")
	}
	original, ok := cs.Tree.Get(m.originalID)
	if !ok {
		return errors.Errorf("message %s not found", m.originalID)
	}
	m.copy.ParentID = original.ParentID
	m.copy.Role = original.Role
	m.copy.SpanID = original.SpanID

	siblings := append([]MessageID(nil), original.SiblingIDs...)
	if !original.HasSibling(m.copy.ID) {
		siblings = append(siblings, m.copy.ID)
	}
	cs.Tree.Insert(m.copy)
	cs.Tree.SetSiblingGroup(siblings)

	cs.LeafMessageID = LastLeafID(cs.Tree, m.copy.ID)
	cs.Path = ActivePath(cs.Tree, cs.LeafMessageID)
	return nil
}

func (m forkAsNewMutation) Name() string { return "fork_as_new" }

// DeleteMutation removes a message following the branch-aware delete rules.
// After Apply, NewLeafID holds the resolved leaf that the external delete
// call must persist so server and client state stay consistent.
type DeleteMutation struct {
	MessageID MessageID
	NewLeafID MessageID
}

func NewDeleteMutation(messageID MessageID) *DeleteMutation {
	return &DeleteMutation{MessageID: messageID}
}

func (m *DeleteMutation) Apply(cs *ChatState) error {
	node, ok := cs.Tree.Get(m.MessageID)
	if !ok {
		return errors.Errorf("message %s not found", m.MessageID)
	}

	group := cs.Tree.SpanSiblings(m.MessageID)
	if len(group) > 1 {
		// Other siblings exist: drop this one and select the most
		// recently added remaining sibling.
		remaining := make([]MessageID, 0, len(group)-1)
		for _, member := range group {
			if member.ID != m.MessageID {
				remaining = append(remaining, member.ID)
			}
		}
		chosen := remaining[len(remaining)-1]
		cs.Tree.Remove(m.MessageID)
		cs.Tree.SetSiblingGroup(remaining)
		for _, id := range remaining {
			if member, ok := cs.Tree.Get(id); ok {
				member.IsActive = member.ID == chosen
			}
		}
		m.NewLeafID = LastLeafID(cs.Tree, chosen)
	} else {
		anchor := node.ParentID
		cs.Tree.Remove(m.MessageID)
		if node.Role == RoleAssistant {
			// A sole assistant takes its user parent with it; the
			// new leaf is resolved from the grandparent.
			if parent, ok := cs.Tree.Get(node.ParentID); ok && parent.Role == RoleUser {
				anchor = parent.ParentID
				cs.Tree.Remove(parent.ID)
				pruneSiblingSets(cs.Tree, parent)
			}
		}
		pruneSiblingSets(cs.Tree, node)
		if anchor == NullID {
			m.NewLeafID = NullID
		} else {
			m.NewLeafID = LastLeafID(cs.Tree, anchor)
		}
	}

	cs.LeafMessageID = m.NewLeafID
	if m.NewLeafID == NullID {
		cs.Path = nil
	} else {
		cs.Path = ActivePath(cs.Tree, m.NewLeafID)
	}
	return nil
}

func (m *DeleteMutation) Name() string { return "delete_message" }

// pruneSiblingSets drops a removed message's id from the sibling sets of the
// group members still in the tree.
func pruneSiblingSets(tree *ConversationTree, removed *Message) {
	var remaining []MessageID
	for _, id := range removed.SiblingIDs {
		if id == removed.ID {
			continue
		}
		if _, ok := tree.Get(id); ok {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) > 0 {
		tree.SetSiblingGroup(remaining)
	}
}

type setReactionMutation struct {
	messageID MessageID
	reaction  Reaction
}

// MutateSetReaction reflects a confirmed reaction change in the tree and the
// path. Deciding between set and clear happens before the external request
// is sent; this mutation only records the outcome.
func MutateSetReaction(messageID MessageID, reaction Reaction) Mutation {
	return setReactionMutation{messageID: messageID, reaction: reaction}
}

func (m setReactionMutation) Apply(cs *ChatState) error {
	if node, ok := cs.Tree.Get(m.messageID); ok {
		node.Reaction = m.reaction
	}
	cs.Path = cs.Path.UpdateEverywhere(m.messageID, func(msg *Message) {
		msg.Reaction = m.reaction
	})
	return nil
}

func (m setReactionMutation) Name() string { return "set_reaction" }

type selectBranchMutation struct {
	messageID MessageID
}

// MutateSelectBranch makes messageID's branch the displayed one: the leaf is
// resolved downward from it, active flags are flipped along the chain, and
// the path is rebuilt.
func MutateSelectBranch(messageID MessageID) Mutation {
	return selectBranchMutation{messageID: messageID}
}

func (m selectBranchMutation) Apply(cs *ChatState) error {
	if _, ok := cs.Tree.Get(m.messageID); !ok {
		return errors.Errorf("message %s not found", m.messageID)
	}
	leaf := LastLeafID(cs.Tree, m.messageID)
	cs.Tree.ActivateChain(leaf)
	cs.LeafMessageID = leaf
	cs.Path = ActivePath(cs.Tree, leaf)
	return nil
}

func (m selectBranchMutation) Name() string { return "select_branch" }

type setDisplayTypeMutation struct {
	messageID   MessageID
	displayType DisplayType
}

// MutateSetDisplayType flips a message's presentation hint.
func MutateSetDisplayType(messageID MessageID, displayType DisplayType) Mutation {
	return setDisplayTypeMutation{messageID: messageID, displayType: displayType}
}

func (m setDisplayTypeMutation) Apply(cs *ChatState) error {
	if node, ok := cs.Tree.Get(m.messageID); ok {
		node.DisplayType = m.displayType
	}
	cs.Path = cs.Path.UpdateEverywhere(m.messageID, func(msg *Message) {
		msg.DisplayType = m.displayType
	})
	return nil
}

func (m setDisplayTypeMutation) Name() string { return "set_display_type" }
