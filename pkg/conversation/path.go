package conversation

// Level holds every message occupying one turn depth along the displayed
// branch. User levels carry a single node; assistant levels carry one node
// per span column, ordered by span id.
type Level []*Message

// SelectionPath is the materialized projection of the active branch used for
// display and incremental streaming updates. It is derived from the
// ConversationTree and never the source of truth. Levels hold clones, never
// aliases into the tree; updates replace whole levels so that a reader
// holding a snapshot never observes a partially updated structure.
type SelectionPath []Level

func (l Level) Clone() Level {
	out := make(Level, len(l))
	for i, m := range l {
		out[i] = m.Clone()
	}
	return out
}

// Find returns the message with the given id within the level.
func (l Level) Find(id MessageID) (*Message, bool) {
	for _, m := range l {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// FindSpan returns the level member for the given span.
func (l Level) FindSpan(spanID SpanID) (*Message, bool) {
	for _, m := range l {
		if m.Role == RoleAssistant && m.SpanID == spanID {
			return m, true
		}
	}
	return nil, false
}

// Active returns the active member of the level, preferring the last one
// when several spans are active.
func (l Level) Active() (*Message, bool) {
	var found *Message
	for _, m := range l {
		if m.IsActive {
			found = m
		}
	}
	return found, found != nil
}

func (p SelectionPath) Clone() SelectionPath {
	out := make(SelectionPath, len(p))
	for i, lvl := range p {
		out[i] = lvl.Clone()
	}
	return out
}

func (p SelectionPath) LastLevel() (Level, bool) {
	if len(p) == 0 {
		return nil, false
	}
	return p[len(p)-1], true
}

// LastActiveID returns the id of the active message on the deepest level.
func (p SelectionPath) LastActiveID() MessageID {
	lvl, ok := p.LastLevel()
	if !ok {
		return NullID
	}
	m, ok := lvl.Active()
	if !ok {
		return NullID
	}
	return m.ID
}

// Find returns the message with the given id anywhere on the path.
func (p SelectionPath) Find(id MessageID) (*Message, bool) {
	for _, lvl := range p {
		if m, ok := lvl.Find(id); ok {
			return m, true
		}
	}
	return nil, false
}

// LevelIndexOf returns the index of the level containing id, or -1.
func (p SelectionPath) LevelIndexOf(id MessageID) int {
	for i, lvl := range p {
		if _, ok := lvl.Find(id); ok {
			return i
		}
	}
	return -1
}

// LevelIndexOfChild returns the index of the level whose members have
// parentID as parent, or -1.
func (p SelectionPath) LevelIndexOfChild(parentID MessageID) int {
	for i, lvl := range p {
		for _, m := range lvl {
			if m.ParentID == parentID {
				return i
			}
		}
	}
	return -1
}

// UpdateInLastLevel applies fn to the message with the given id on the last
// level, replacing that level with a patched clone. It reports whether the
// id was found. The receiver is not modified.
func (p SelectionPath) UpdateInLastLevel(id MessageID, fn func(*Message)) (SelectionPath, bool) {
	lvl, ok := p.LastLevel()
	if !ok {
		return p, false
	}
	patched := lvl.Clone()
	target, ok := patched.Find(id)
	if !ok {
		return p, false
	}
	fn(target)
	out := make(SelectionPath, len(p))
	copy(out, p)
	out[len(out)-1] = patched
	return out, true
}

// UpdateEverywhere applies fn to every occurrence of id across all levels,
// cloning the levels it touches.
func (p SelectionPath) UpdateEverywhere(id MessageID, fn func(*Message)) SelectionPath {
	out := make(SelectionPath, len(p))
	copy(out, p)
	for i, lvl := range out {
		if _, ok := lvl.Find(id); !ok {
			continue
		}
		patched := lvl.Clone()
		if target, ok := patched.Find(id); ok {
			fn(target)
		}
		out[i] = patched
	}
	return out
}
