package chatservice

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/arbor/pkg/conversation"
)

func TestSubmitStreamsBodyAndSendsAuth(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq SubmitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write([]byte("data: {\"k\":0,\"r\":\"stop-1\"}\r\n\r\n"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithToken("secret"))
	parent := conversation.MessageID("a-1")
	body, err := client.Submit(context.Background(), SubmitRequest{
		ChatID:                   "chat-1",
		ParentAssistantMessageID: &parent,
		UserContent:              []*conversation.ContentPart{conversation.NewTextPart("hi")},
	})
	require.NoError(t, err)
	defer func() {
		_ = body.Close()
	}()

	b, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Contains(t, string(b), "stop-1")

	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, "/api/chats/general", gotPath)
	require.Equal(t, "chat-1", gotReq.ChatID)
	require.Equal(t, parent, *gotReq.ParentAssistantMessageID)
}

func TestSubmitNonOKBecomesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("model backend unavailable"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Submit(context.Background(), SubmitRequest{ChatID: "chat-1"})

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, http.StatusBadGateway, transportErr.StatusCode)
	require.Equal(t, "model backend unavailable", err.Error())
}

func TestTransportErrorFallsBackToStatusText(t *testing.T) {
	err := &TransportError{StatusCode: http.StatusServiceUnavailable}
	require.Equal(t, http.StatusText(http.StatusServiceUnavailable), err.Error())
}

func TestDeleteSendsLeafQuery(t *testing.T) {
	var gotPath, gotLeaf, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotLeaf = r.URL.Query().Get("leafMessageId")
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.Delete(context.Background(), "m-1", "leaf-9"))
	require.Equal(t, http.MethodDelete, gotMethod)
	require.Equal(t, "/api/messages/m-1", gotPath)
	require.Equal(t, "leaf-9", gotLeaf)
}

func TestReactionEndpoints(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.SetReaction(context.Background(), "m-1", true))
	require.NoError(t, client.SetReaction(context.Background(), "m-1", false))
	require.NoError(t, client.ClearReaction(context.Background(), "m-1"))

	require.Equal(t, []string{
		"PUT /api/messages/m-1/reaction/up",
		"PUT /api/messages/m-1/reaction/down",
		"PUT /api/messages/m-1/reaction/clear",
	}, paths)
}

func TestUpdateLeafBody(t *testing.T) {
	var got leafUpdateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.UpdateLeaf(context.Background(), "chat-1", "leaf-1"))
	require.True(t, got.SetsLeafMessageID)
	require.Equal(t, conversation.MessageID("leaf-1"), got.LeafMessageID)
}

func TestEditAsNewDecodesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"m-copy","role":"user","content":[{"i":"p-1","$type":"text","c":"edited"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	msg, err := client.EditAsNew(context.Background(), EditRequest{
		MessageID: "m-1", ContentPartID: "p-1", Text: "edited",
	})
	require.NoError(t, err)
	require.Equal(t, conversation.MessageID("m-copy"), msg.ID)
	require.Equal(t, "edited", msg.Text())
}

func TestStopEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.Stop(context.Background(), "stop-1"))
	require.Equal(t, "/api/chats/stop/stop-1", gotPath)
}
