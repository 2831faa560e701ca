package session

import (
	"context"
	"io"

	"github.com/go-go-golems/arbor/pkg/chatservice"
	"github.com/go-go-golems/arbor/pkg/conversation"
)

// Service is the external chat-service collaborator as the session consumes
// it. Streamed bodies are returned raw; the session owns framing, decoding,
// and reconciliation.
type Service interface {
	Submit(ctx context.Context, req chatservice.SubmitRequest) (io.ReadCloser, error)
	Regenerate(ctx context.Context, req chatservice.RegenerateRequest) (io.ReadCloser, error)
	UpdateLeaf(ctx context.Context, chatID string, leafID conversation.MessageID) error
	SetReaction(ctx context.Context, messageID conversation.MessageID, up bool) error
	ClearReaction(ctx context.Context, messageID conversation.MessageID) error
	EditInPlace(ctx context.Context, req chatservice.EditRequest) error
	EditAsNew(ctx context.Context, req chatservice.EditRequest) (*conversation.Message, error)
	Delete(ctx context.Context, messageID conversation.MessageID, newLeafID conversation.MessageID) error
	Stop(ctx context.Context, stopID string) error
}

var _ Service = (*chatservice.Client)(nil)
