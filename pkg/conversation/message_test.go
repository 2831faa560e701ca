package conversation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendPayloadConcatenatesSameKind(t *testing.T) {
	m := NewAssistantMessage(0)
	m.AppendPayload(ContentKindText, "hello ")
	m.AppendPayload(ContentKindText, "world")

	require.Len(t, m.Content, 1)
	require.Equal(t, "hello world", m.Content[0].Text)
}

func TestAppendPayloadStartsNewPartOnKindChange(t *testing.T) {
	m := NewAssistantMessage(0)
	m.AppendPayload(ContentKindReasoning, "think ")
	m.AppendPayload(ContentKindReasoning, "harder")
	m.AppendPayload(ContentKindText, "answer")
	m.AppendPayload(ContentKindReasoning, "again")

	require.Len(t, m.Content, 3)
	require.Equal(t, ContentKindReasoning, m.Content[0].Kind)
	require.Equal(t, "think harder", m.Content[0].Text)
	require.Equal(t, ContentKindText, m.Content[1].Kind)
	require.Equal(t, ContentKindReasoning, m.Content[2].Kind)
}

func TestAttachFileReplacesTrailingFilePart(t *testing.T) {
	m := NewAssistantMessage(0)
	m.AttachFile(FileDef{ID: "f-1", URL: "u1"})
	m.AttachFile(FileDef{ID: "f-2", URL: "u2"})

	require.Len(t, m.Content, 1)
	require.Equal(t, "f-2", m.Content[0].File.ID)

	m.AppendPayload(ContentKindText, "caption")
	m.AttachFile(FileDef{ID: "f-3", URL: "u3"})
	require.Len(t, m.Content, 3)
}

func TestTextSkipsNonTextParts(t *testing.T) {
	m := NewAssistantMessage(0)
	m.AppendPayload(ContentKindReasoning, "internal")
	m.AppendPayload(ContentKindText, "visible")
	require.Equal(t, "visible", m.Text())
}

func TestContentPartWireFormat(t *testing.T) {
	part := &ContentPart{ID: "p-1", Kind: ContentKindText, Text: "hi"}
	b, err := json.Marshal(part)
	require.NoError(t, err)
	require.JSONEq(t, `{"i":"p-1","$type":"text","c":"hi"}`, string(b))

	var back ContentPart
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, *part, back)
}

func TestContentPartFilePayload(t *testing.T) {
	var part ContentPart
	err := json.Unmarshal([]byte(`{"i":"p-2","$type":"file","c":{"id":"f-1","url":"https://x/y.png"}}`), &part)
	require.NoError(t, err)
	require.Equal(t, ContentKindFile, part.Kind)
	require.Equal(t, "f-1", part.File.ID)
}

func TestReactionWireFormat(t *testing.T) {
	for reaction, wire := range map[Reaction]string{
		ReactionUp:    "true",
		ReactionDown:  "false",
		ReactionUnset: "null",
	} {
		b, err := json.Marshal(reaction)
		require.NoError(t, err)
		require.Equal(t, wire, string(b))

		var back Reaction
		require.NoError(t, json.Unmarshal([]byte(wire), &back))
		require.Equal(t, reaction, back)
	}
}

func TestNewMessageDefaultsSiblingSetToSelf(t *testing.T) {
	m := NewUserMessage([]*ContentPart{NewTextPart("hi")})
	require.Equal(t, []MessageID{m.ID}, m.SiblingIDs)
	require.True(t, m.IsActive)
}

func TestCloneIsDeep(t *testing.T) {
	m := NewAssistantMessage(1, WithID("a-1"))
	m.AppendPayload(ContentKindText, "original")
	m.SiblingIDs = []MessageID{"a-1", "a-2"}

	clone := m.Clone()
	clone.Content[0].Text = "changed"
	clone.SiblingIDs[1] = "a-3"

	require.Equal(t, "original", m.Content[0].Text)
	require.Equal(t, MessageID("a-2"), m.SiblingIDs[1])
}
