package conversation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func twoSpanState() *ChatState {
	return NewChatState("chat-1", []SpanConfig{
		{SpanID: 0, ModelID: 1, ModelName: "alpha", Enabled: true},
		{SpanID: 1, ModelID: 2, ModelName: "beta", Enabled: true},
	})
}

func submittedState(t *testing.T) (*ChatState, *Message, []*Message) {
	t.Helper()
	cs := twoSpanState()
	user := NewUserMessage([]*ContentPart{NewTextPart("question")}, WithID("u-1"))
	placeholders := []*Message{
		NewAssistantMessage(0, WithID(PlaceholderID(0)), WithParentID("u-1"), WithStatus(SpanStatusChatting)),
		NewAssistantMessage(1, WithID(PlaceholderID(1)), WithParentID("u-1"), WithStatus(SpanStatusChatting)),
	}
	require.NoError(t, cs.Apply(MutateSubmit(user, placeholders)))
	return cs, user, placeholders
}

func TestSubmitAppendsTwoLevels(t *testing.T) {
	cs, user, placeholders := submittedState(t)

	require.Len(t, cs.Path, 2)
	require.Equal(t, user.ID, cs.Path[0][0].ID)
	require.Len(t, cs.Path[1], 2)
	require.Equal(t, placeholders[0].ID, cs.Path[1][0].ID)
	require.Equal(t, placeholders[1].ID, cs.Path[1][1].ID)
	require.Equal(t, int64(1), cs.Version)
}

func TestFinalizeSpanSwapsPlaceholderID(t *testing.T) {
	cs, _, _ := submittedState(t)
	require.NoError(t, cs.Apply(MutateAppendSegment(
		PlaceholderID(0), ContentKindText, SpanStatusChatting, "answer")))

	final := NewAssistantMessage(0, WithID("srv-1"), WithParentID("u-1"))
	final.Duration = 900
	final.InputTokens = 10
	final.OutputTokens = 20
	require.NoError(t, cs.Apply(MutateFinalizeSpan(PlaceholderID(0), final)))

	node, ok := cs.Path.Find("srv-1")
	require.True(t, ok)
	require.Equal(t, "answer", node.Text())
	require.Equal(t, SpanStatusNone, node.Status)
	require.Equal(t, int64(900), node.Duration)
	require.Equal(t, 10, node.InputTokens)
	require.Equal(t, 20, node.OutputTokens)
	require.NotContains(t, node.SiblingIDs, PlaceholderID(0))
	require.Contains(t, node.SiblingIDs, MessageID("srv-1"))

	_, ok = cs.Tree.Get("srv-1")
	require.True(t, ok)
	_, ok = cs.Path.Find(PlaceholderID(0))
	require.False(t, ok)
}

func TestRegenerateReplacesOneSpanAndTruncates(t *testing.T) {
	cs := twoSpanState()
	cs.Tree.Insert(
		userMsg("u-1", NullID),
		assistantMsg("a-1", "u-1", 0),
		assistantMsg("b-1", "u-1", 1),
		userMsg("u-2", "a-1"),
		assistantMsg("a-2", "u-2", 0),
	)
	cs.Path = ActivePath(cs.Tree, "a-2")
	require.Len(t, cs.Path, 4)

	placeholder := NewAssistantMessage(0,
		WithID(PlaceholderID(0)), WithParentID("u-1"), WithStatus(SpanStatusChatting))
	require.NoError(t, cs.Apply(MutateRegenerate(0, "u-1", placeholder)))

	// Deeper levels are gone; the regenerated level keeps the other span.
	require.Len(t, cs.Path, 2)
	level := cs.Path[1]
	require.Len(t, level, 2)

	regenerated, ok := level.FindSpan(0)
	require.True(t, ok)
	require.Equal(t, PlaceholderID(0), regenerated.ID)
	require.Equal(t, []MessageID{PlaceholderID(0), "a-1"}, regenerated.SiblingIDs)

	untouched, ok := level.FindSpan(1)
	require.True(t, ok)
	require.Equal(t, MessageID("b-1"), untouched.ID)
}

func TestRegenerateUnknownSpanFails(t *testing.T) {
	cs, _, _ := submittedState(t)
	placeholder := NewAssistantMessage(5, WithID(PlaceholderID(5)), WithParentID("u-1"))
	require.Error(t, cs.Apply(MutateRegenerate(5, "u-1", placeholder)))
}

func TestEditForkTruncatesAtAnchor(t *testing.T) {
	cs := twoSpanState()
	cs.Tree.Insert(
		userMsg("u-1", NullID),
		assistantMsg("a-1", "u-1", 0),
		userMsg("u-2", "a-1"),
		assistantMsg("a-2", "u-2", 0),
	)
	cs.Path = ActivePath(cs.Tree, "a-2")

	user := NewUserMessage([]*ContentPart{NewTextPart("edited")}, WithID("u-3"), WithParentID("a-1"))
	placeholder := NewAssistantMessage(0, WithID(PlaceholderID(0)), WithParentID("u-3"))
	require.NoError(t, cs.Apply(MutateEditFork("a-1", user, []*Message{placeholder})))

	require.Len(t, cs.Path, 4)
	require.Equal(t, MessageID("a-1"), cs.Path[1][0].ID)
	require.Equal(t, MessageID("u-3"), cs.Path[2][0].ID)
	require.Equal(t, PlaceholderID(0), cs.Path[3][0].ID)
}

func TestEditInPlaceRewritesPartEverywhere(t *testing.T) {
	cs := twoSpanState()
	user := NewUserMessage([]*ContentPart{{ID: "p-1", Kind: ContentKindText, Text: "old"}}, WithID("u-1"))
	cs.Tree.Insert(user)
	cs.Path = ActivePath(cs.Tree, "u-1")

	require.NoError(t, cs.Apply(MutateEditInPlace("u-1", "p-1", "new")))

	node, _ := cs.Tree.Get("u-1")
	require.Equal(t, "new", node.Content[0].Text)
	require.True(t, node.Edited)

	onPath, ok := cs.Path.Find("u-1")
	require.True(t, ok)
	require.Equal(t, "new", onPath.Content[0].Text)
	require.True(t, onPath.Edited)
}

func TestForkAsNewCreatesSiblingAndMovesLeaf(t *testing.T) {
	cs := twoSpanState()
	cs.Tree.Insert(
		userMsg("u-1", NullID),
		assistantMsg("a-1", "u-1", 0),
	)
	cs.Path = ActivePath(cs.Tree, "a-1")

	copyMsg := &Message{ID: "a-copy", Content: []*ContentPart{NewTextPart("edited")}}
	require.NoError(t, cs.Apply(MutateForkAsNew("a-1", copyMsg)))

	require.Equal(t, MessageID("u-1"), copyMsg.ParentID)
	require.Equal(t, RoleAssistant, copyMsg.Role)

	original, _ := cs.Tree.Get("a-1")
	forked, _ := cs.Tree.Get("a-copy")
	require.ElementsMatch(t, original.SiblingIDs, forked.SiblingIDs)
	require.Contains(t, forked.SiblingIDs, MessageID("a-1"))
	require.Contains(t, forked.SiblingIDs, MessageID("a-copy"))

	require.Equal(t, MessageID("a-copy"), cs.LeafMessageID)
	_, ok := cs.Path.Find("a-copy")
	require.True(t, ok)
}

func TestDeleteWithSiblingsSelectsNewestRemaining(t *testing.T) {
	cs := twoSpanState()
	cs.Tree.Insert(
		userMsg("u-1", NullID),
		assistantMsg("a-1", "u-1", 0),
		assistantMsg("a-2", "u-1", 0),
		assistantMsg("a-3", "u-1", 0),
	)
	cs.Tree.SetSiblingGroup([]MessageID{"a-1", "a-2", "a-3"})

	del := NewDeleteMutation("a-3")
	require.NoError(t, cs.Apply(del))

	_, ok := cs.Tree.Get("a-3")
	require.False(t, ok)
	require.Equal(t, MessageID("a-2"), del.NewLeafID)
	require.Equal(t, del.NewLeafID, cs.LeafMessageID)

	a1, _ := cs.Tree.Get("a-1")
	a2, _ := cs.Tree.Get("a-2")
	require.Equal(t, []MessageID{"a-1", "a-2"}, a1.SiblingIDs)
	require.Equal(t, []MessageID{"a-1", "a-2"}, a2.SiblingIDs)
	require.True(t, a2.IsActive)
	require.False(t, a1.IsActive)
}

func TestDeleteSoleAssistantRemovesUserParent(t *testing.T) {
	cs := twoSpanState()
	cs.Tree.Insert(
		userMsg("u-1", NullID),
		assistantMsg("a-1", "u-1", 0),
		userMsg("u-2", "a-1"),
		assistantMsg("a-2", "u-2", 0),
	)

	del := NewDeleteMutation("a-2")
	require.NoError(t, cs.Apply(del))

	_, ok := cs.Tree.Get("a-2")
	require.False(t, ok)
	_, ok = cs.Tree.Get("u-2")
	require.False(t, ok)
	require.Equal(t, MessageID("a-1"), del.NewLeafID)
}

func TestDeleteSoleUserResolvesLeafFromParent(t *testing.T) {
	cs := twoSpanState()
	cs.Tree.Insert(
		userMsg("u-1", NullID),
		assistantMsg("a-1", "u-1", 0),
		userMsg("u-2", "a-1"),
	)

	del := NewDeleteMutation("u-2")
	require.NoError(t, cs.Apply(del))
	require.Equal(t, MessageID("a-1"), del.NewLeafID)
}

func TestDeleteLastMessageEmptiesPath(t *testing.T) {
	cs := twoSpanState()
	cs.Tree.Insert(userMsg("u-1", NullID))
	cs.Path = ActivePath(cs.Tree, "u-1")

	del := NewDeleteMutation("u-1")
	require.NoError(t, cs.Apply(del))
	require.Equal(t, NullID, del.NewLeafID)
	require.Nil(t, cs.Path)
	require.Equal(t, 0, cs.Tree.Len())
}

func TestDeleteMissingMessageFails(t *testing.T) {
	cs := twoSpanState()
	require.Error(t, cs.Apply(NewDeleteMutation("ghost")))
}

func TestSetReactionUpdatesTreeAndPath(t *testing.T) {
	cs := twoSpanState()
	cs.Tree.Insert(userMsg("u-1", NullID), assistantMsg("a-1", "u-1", 0))
	cs.Path = ActivePath(cs.Tree, "a-1")

	require.NoError(t, cs.Apply(MutateSetReaction("a-1", ReactionUp)))

	node, _ := cs.Tree.Get("a-1")
	require.Equal(t, ReactionUp, node.Reaction)
	onPath, _ := cs.Path.Find("a-1")
	require.Equal(t, ReactionUp, onPath.Reaction)

	require.NoError(t, cs.Apply(MutateSetReaction("a-1", ReactionUnset)))
	node, _ = cs.Tree.Get("a-1")
	require.Equal(t, ReactionUnset, node.Reaction)
}

func TestSelectBranchSwitchesPath(t *testing.T) {
	cs := twoSpanState()
	cs.Tree.Insert(
		userMsg("u-1", NullID),
		assistantMsg("a-1", "u-1", 0),
		userMsg("u-2", "a-1"),
		assistantMsg("a-2", "u-1", 0),
	)
	cs.Tree.SetSiblingGroup([]MessageID{"a-1", "a-2"})

	// a-2 was inserted last, so its (childless) branch is displayed.
	// Switching to a-1 descends into its subtree.
	require.NoError(t, cs.Apply(MutateSelectBranch("a-1")))
	require.Equal(t, MessageID("u-2"), cs.LeafMessageID)

	a1, _ := cs.Tree.Get("a-1")
	a2, _ := cs.Tree.Get("a-2")
	require.True(t, a1.IsActive)
	require.False(t, a2.IsActive)
	_, ok := cs.Path.Find("u-2")
	require.True(t, ok)
}

func TestSelectBranchUnknownMessageFails(t *testing.T) {
	cs := twoSpanState()
	require.Error(t, cs.Apply(MutateSelectBranch("ghost")))
}

func TestSetDisplayType(t *testing.T) {
	cs := twoSpanState()
	cs.Tree.Insert(userMsg("u-1", NullID))
	cs.Path = ActivePath(cs.Tree, "u-1")

	require.NoError(t, cs.Apply(MutateSetDisplayType("u-1", DisplayTypeRaw)))
	node, _ := cs.Tree.Get("u-1")
	require.Equal(t, DisplayTypeRaw, node.DisplayType)
}

func TestSnapshotIsolation(t *testing.T) {
	cs, _, _ := submittedState(t)
	snap := cs.Snapshot()

	require.NoError(t, cs.Apply(MutateAppendSegment(
		PlaceholderID(0), ContentKindText, SpanStatusChatting, "late")))

	fromSnap, ok := snap.Path.Find(PlaceholderID(0))
	require.True(t, ok)
	require.Empty(t, fromSnap.Text())
}
