package conversation

import "sort"

// LastLeafID walks forward from startID, at each step descending into the
// active child, until no active child exists, and returns the deepest id
// reached. When several children are active (one per span column) the most
// recently inserted one wins.
//
// The walk is bounded by the tree size so a violated acyclicity invariant
// cannot make it loop forever.
func LastLeafID(tree *ConversationTree, startID MessageID) MessageID {
	id := startID
	for steps := 0; steps <= tree.Len(); steps++ {
		next := NullID
		for _, child := range tree.Children(id) {
			if child.IsActive {
				next = child.ID
			}
		}
		if next == NullID {
			return id
		}
		id = next
	}
	return id
}

// ActivePath walks backward from leafID to a root and regroups the resulting
// id sequence into a SelectionPath: each ancestor contributes one level
// holding every span candidate at that tree position, with the on-path node
// marked active. Returned messages are clones of the tree nodes.
func ActivePath(tree *ConversationTree, leafID MessageID) SelectionPath {
	ids := ancestry(tree, leafID)
	if len(ids) == 0 {
		return nil
	}

	path := make(SelectionPath, 0, len(ids))
	for _, id := range ids {
		node, ok := tree.Get(id)
		if !ok {
			break
		}
		if node.Role == RoleUser {
			clone := node.Clone()
			clone.IsActive = true
			path = append(path, Level{clone})
			continue
		}
		path = append(path, assistantLevel(tree, node))
	}
	return path
}

// ancestry returns the root-to-leaf id sequence ending at leafID, bounded by
// the tree size.
func ancestry(tree *ConversationTree, leafID MessageID) []MessageID {
	var ids []MessageID
	id := leafID
	for steps := 0; steps <= tree.Len() && id != NullID; steps++ {
		node, ok := tree.Get(id)
		if !ok {
			break
		}
		ids = append([]MessageID{id}, ids...)
		id = node.ParentID
	}
	return ids
}

// assistantLevel collects one member per span among the assistant children
// of the path node's parent: the path node itself for its own span, and each
// other span's active member (falling back to the newest).
func assistantLevel(tree *ConversationTree, pathNode *Message) Level {
	bySpan := map[SpanID]*Message{}
	for _, candidate := range tree.Children(pathNode.ParentID) {
		if candidate.Role != RoleAssistant {
			continue
		}
		if candidate.SpanID == pathNode.SpanID {
			continue
		}
		current, seen := bySpan[candidate.SpanID]
		if !seen || candidate.IsActive || !current.IsActive {
			bySpan[candidate.SpanID] = candidate
		}
	}

	level := Level{activeClone(pathNode)}
	for _, member := range bySpan {
		level = append(level, activeClone(member))
	}
	sort.Slice(level, func(i, j int) bool {
		return level[i].SpanID < level[j].SpanID
	})
	return level
}

func activeClone(m *Message) *Message {
	clone := m.Clone()
	clone.IsActive = true
	return clone
}
