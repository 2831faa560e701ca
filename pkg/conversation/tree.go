package conversation

// ConversationTree is the committed store of every message ever created in a
// chat, connected by parent links. It is the source of truth; the selection
// path is a projection derived from it.
//
// Insertion order is preserved so that "most recently added" is well defined
// for sibling groups. Inserting an assistant message deactivates the other
// members of its span group; the newest sibling becomes the displayed one,
// matching how regeneration behaves during streaming.
type ConversationTree struct {
	nodes    map[MessageID]*Message
	order    []MessageID
	children map[MessageID][]MessageID
}

func NewConversationTree() *ConversationTree {
	return &ConversationTree{
		nodes:    make(map[MessageID]*Message),
		children: make(map[MessageID][]MessageID),
	}
}

func (ct *ConversationTree) Len() int {
	return len(ct.nodes)
}

func (ct *ConversationTree) Get(id MessageID) (*Message, bool) {
	m, ok := ct.nodes[id]
	return m, ok
}

// Insert adds messages to the tree. Each inserted message becomes the active
// member of its sibling group; previous members are deactivated.
func (ct *ConversationTree) Insert(msgs ...*Message) {
	for _, msg := range msgs {
		if msg == nil || msg.ID == NullID {
			continue
		}
		if _, exists := ct.nodes[msg.ID]; !exists {
			ct.order = append(ct.order, msg.ID)
			ct.children[msg.ParentID] = append(ct.children[msg.ParentID], msg.ID)
		}
		ct.nodes[msg.ID] = msg
		for _, sibling := range ct.siblingGroup(msg) {
			sibling.IsActive = sibling.ID == msg.ID
		}
		msg.IsActive = true
	}
}

// Remove deletes a single node. Its descendants are not touched; delete
// semantics above the tree decide what else goes.
func (ct *ConversationTree) Remove(id MessageID) {
	node, ok := ct.nodes[id]
	if !ok {
		return
	}
	delete(ct.nodes, id)
	ct.order = removeID(ct.order, id)
	ct.children[node.ParentID] = removeID(ct.children[node.ParentID], id)
	if len(ct.children[node.ParentID]) == 0 {
		delete(ct.children, node.ParentID)
	}
}

// Children returns the child messages of id in insertion order.
func (ct *ConversationTree) Children(id MessageID) []*Message {
	ids := ct.children[id]
	out := make([]*Message, 0, len(ids))
	for _, cid := range ids {
		if node, ok := ct.nodes[cid]; ok {
			out = append(out, node)
		}
	}
	return out
}

// SpanSiblings returns the sibling group of a message: every node with the
// same parent, role, and (for assistants) span, in insertion order.
func (ct *ConversationTree) SpanSiblings(id MessageID) []*Message {
	node, ok := ct.nodes[id]
	if !ok {
		return nil
	}
	return ct.siblingGroup(node)
}

func (ct *ConversationTree) siblingGroup(node *Message) []*Message {
	var group []*Message
	for _, candidate := range ct.Children(node.ParentID) {
		if candidate.Role != node.Role {
			continue
		}
		if candidate.Role == RoleAssistant && candidate.SpanID != node.SpanID {
			continue
		}
		group = append(group, candidate)
	}
	return group
}

// Messages returns every node in insertion order.
func (ct *ConversationTree) Messages() []*Message {
	out := make([]*Message, 0, len(ct.order))
	for _, id := range ct.order {
		out = append(out, ct.nodes[id])
	}
	return out
}

// LastID returns the id of the most recently inserted node, or NullID on an
// empty tree.
func (ct *ConversationTree) LastID() MessageID {
	if len(ct.order) == 0 {
		return NullID
	}
	return ct.order[len(ct.order)-1]
}

// SetSiblingGroup rewrites the sibling set of every listed member, keeping
// the groups symmetric (invariant: set equality across members).
func (ct *ConversationTree) SetSiblingGroup(ids []MessageID) {
	for _, id := range ids {
		if node, ok := ct.nodes[id]; ok {
			node.SiblingIDs = append([]MessageID(nil), ids...)
		}
	}
}

// ActivateChain walks from leafID up to the root and makes every node on the
// way the active member of its sibling group. Used when hydrating a chat or
// switching branches.
func (ct *ConversationTree) ActivateChain(leafID MessageID) {
	id := leafID
	for steps := 0; steps <= len(ct.nodes) && id != NullID; steps++ {
		node, ok := ct.nodes[id]
		if !ok {
			return
		}
		for _, sibling := range ct.siblingGroup(node) {
			sibling.IsActive = sibling.ID == id
		}
		id = node.ParentID
	}
}

// Clone deep-copies the tree.
func (ct *ConversationTree) Clone() *ConversationTree {
	out := NewConversationTree()
	out.order = append([]MessageID(nil), ct.order...)
	for id, node := range ct.nodes {
		out.nodes[id] = node.Clone()
	}
	for id, kids := range ct.children {
		out.children[id] = append([]MessageID(nil), kids...)
	}
	return out
}

func removeID(ids []MessageID, id MessageID) []MessageID {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}
