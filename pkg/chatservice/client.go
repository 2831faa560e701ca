package chatservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/arbor/pkg/conversation"
)

// TransportError is a non-2xx response from the chat service. Its message is
// the error body text, or the HTTP status when the body is empty.
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return http.StatusText(e.StatusCode)
	}
	return e.Body
}

// SubmitRequest starts a new turn.
type SubmitRequest struct {
	ChatID                   string                      `json:"chatId"`
	TimezoneOffset           int                         `json:"timezoneOffset"`
	ParentAssistantMessageID *conversation.MessageID     `json:"parentAssistantMessageId"`
	UserContent              []*conversation.ContentPart `json:"userMessage"`
}

// RegenerateRequest re-runs a single span below an existing user message.
type RegenerateRequest struct {
	ChatID              string                  `json:"chatId"`
	SpanID              conversation.SpanID     `json:"spanId"`
	ModelID             int                     `json:"modelId"`
	ParentUserMessageID *conversation.MessageID `json:"parentUserMessageId"`
	TimezoneOffset      int                     `json:"timezoneOffset"`
}

// EditRequest rewrites one content part of a message, either in place or as
// a newly forked sibling.
type EditRequest struct {
	MessageID     conversation.MessageID `json:"messageId"`
	ContentPartID string                 `json:"contentId"`
	Text          string                 `json:"c"`
}

type leafUpdateRequest struct {
	SetsLeafMessageID bool                   `json:"setsLeafMessageId"`
	LeafMessageID     conversation.MessageID `json:"leafMessageId"`
}

// Client talks to the chat service over HTTP with bearer authentication.
// It performs no retries and no response interpretation beyond framing;
// streamed bodies are handed back for the reconciler to consume.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	tzOffset   func() int
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimezoneOffset overrides the local timezone offset (minutes east of
// UTC) sent with chat submissions.
func WithTimezoneOffset(fn func() int) ClientOption {
	return func(c *Client) {
		c.tzOffset = fn
	}
}

func NewClient(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		tzOffset:   localTimezoneOffset,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func localTimezoneOffset() int {
	_, seconds := time.Now().Zone()
	return seconds / 60
}

// Submit starts a new turn and returns the streamed response body. The
// caller owns the body and must close it.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (io.ReadCloser, error) {
	if req.TimezoneOffset == 0 {
		req.TimezoneOffset = c.tzOffset()
	}
	return c.stream(ctx, "/api/chats/general", req)
}

// Regenerate re-runs one span and returns the streamed response body.
func (c *Client) Regenerate(ctx context.Context, req RegenerateRequest) (io.ReadCloser, error) {
	if req.TimezoneOffset == 0 {
		req.TimezoneOffset = c.tzOffset()
	}
	return c.stream(ctx, "/api/chats/regenerate-assistant-message", req)
}

// UpdateLeaf persists the active-branch pointer.
func (c *Client) UpdateLeaf(ctx context.Context, chatID string, leafID conversation.MessageID) error {
	body := leafUpdateRequest{SetsLeafMessageID: true, LeafMessageID: leafID}
	return c.ack(ctx, http.MethodPut, "/api/chats/"+url.PathEscape(chatID), body, nil)
}

// SetReaction records an up or down reaction.
func (c *Client) SetReaction(ctx context.Context, messageID conversation.MessageID, up bool) error {
	direction := "down"
	if up {
		direction = "up"
	}
	path := fmt.Sprintf("/api/messages/%s/reaction/%s", url.PathEscape(string(messageID)), direction)
	return c.ack(ctx, http.MethodPut, path, nil, nil)
}

// ClearReaction removes a reaction.
func (c *Client) ClearReaction(ctx context.Context, messageID conversation.MessageID) error {
	path := fmt.Sprintf("/api/messages/%s/reaction/clear", url.PathEscape(string(messageID)))
	return c.ack(ctx, http.MethodPut, path, nil, nil)
}

// EditInPlace rewrites one content part without forking.
func (c *Client) EditInPlace(ctx context.Context, req EditRequest) error {
	return c.ack(ctx, http.MethodPut, "/api/messages/edit-in-place", req, nil)
}

// EditAsNew forks the edited message into a new sibling and returns the
// created message descriptor.
func (c *Client) EditAsNew(ctx context.Context, req EditRequest) (*conversation.Message, error) {
	var msg conversation.Message
	if err := c.ack(ctx, http.MethodPut, "/api/messages/edit-and-save-new", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Delete removes a message, handing the server the resolved new leaf id so
// persisted state matches the client.
func (c *Client) Delete(ctx context.Context, messageID conversation.MessageID, newLeafID conversation.MessageID) error {
	path := fmt.Sprintf("/api/messages/%s?leafMessageId=%s",
		url.PathEscape(string(messageID)), url.QueryEscape(string(newLeafID)))
	return c.ack(ctx, http.MethodDelete, path, nil, nil)
}

// Stop requests server-side cancellation of an in-flight stream.
func (c *Client) Stop(ctx context.Context, stopID string) error {
	return c.ack(ctx, http.MethodPost, "/api/chats/stop/"+url.PathEscape(stopID), nil, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload interface{}) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "marshaling request body")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// stream performs a POST and returns the body for streaming consumption.
func (c *Client) stream(ctx context.Context, path string, payload interface{}) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func(body io.ReadCloser) {
			_ = body.Close()
		}(resp.Body)
		b, _ := io.ReadAll(resp.Body)
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if resp.Body == nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: "empty response body"}
	}
	return resp.Body, nil
}

// ack performs a request that returns either a bare acknowledgement or a
// small JSON payload decoded into out.
func (c *Client) ack(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			return errors.Wrap(err, "decoding response body")
		}
	}
	return nil
}
