package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/arbor/pkg/chatservice"
	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/events"
)

// Session owns one chat's state and drives all its operations: submissions,
// branch edits, and the stream-reconciliation cycle. At most one cycle runs
// per chat at a time; the chat status gates new submissions while a cycle is
// in flight. All mutations run through ChatState.Apply under the session
// lock, and callers only ever receive snapshots.
type Session struct {
	mu      sync.Mutex
	state   *conversation.ChatState
	svc     Service
	catalog ModelCatalog
	pub     *events.PublisherManager
	logger  zerolog.Logger
}

type Option func(*Session)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithPublisherManager wires progress-event fan-out. Without it the session
// stays silent.
func WithPublisherManager(pub *events.PublisherManager) Option {
	return func(s *Session) {
		s.pub = pub
	}
}

func New(state *conversation.ChatState, svc Service, catalog ModelCatalog, options ...Option) *Session {
	s := &Session{
		state:   state,
		svc:     svc,
		catalog: catalog,
		logger:  zerolog.Nop(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Hydrate loads the chat from its externally stored messages and leaf
// pointer.
func (s *Session) Hydrate(messages []*conversation.Message, leafID conversation.MessageID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Hydrate(messages, leafID)
}

// Snapshot returns a deep copy of the chat state.
func (s *Session) Snapshot() *conversation.ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot()
}

// Submit starts a new turn: the user message and one placeholder per enabled
// span are added to the path optimistically, then the streamed response is
// reconciled until it ends.
func (s *Session) Submit(ctx context.Context, content []*conversation.ContentPart) error {
	s.mu.Lock()
	if err := s.gateLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.checkSpanModelsLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	parentID := s.state.Path.LastActiveID()
	user := conversation.NewUserMessage(content, conversation.WithParentID(parentID))
	spans := s.state.EnabledSpans()
	registry := conversation.NewPlaceholderRegistry(spans)
	placeholders := s.placeholdersLocked(registry, spans, user.ID)

	if err := s.state.ApplyAll(
		conversation.MutateBeginCycle(),
		conversation.MutateSubmit(user, placeholders),
	); err != nil {
		s.mu.Unlock()
		return err
	}
	chatID := s.state.ID
	s.mu.Unlock()

	body, err := s.svc.Submit(ctx, chatservice.SubmitRequest{
		ChatID:                   chatID,
		ParentAssistantMessageID: optionalID(parentID),
		UserContent:              content,
	})
	if err != nil {
		return s.failCycle(err)
	}
	return s.runCycle(ctx, body, registry)
}

// Regenerate re-runs one span below an existing user message with the given
// model, branching a new sibling for that span only.
func (s *Session) Regenerate(ctx context.Context, spanID conversation.SpanID, parentUserMessageID conversation.MessageID, modelID int) error {
	s.mu.Lock()
	if err := s.gateLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.catalog.Lookup(modelID); !ok {
		s.mu.Unlock()
		return &ModelsUnavailableError{Missing: []string{s.modelNameLocked(modelID)}}
	}

	registry := conversation.NewPlaceholderRegistry([]conversation.SpanID{spanID})
	placeholderID, _ := registry.IDFor(spanID)
	placeholder := conversation.NewAssistantMessage(spanID,
		conversation.WithID(placeholderID),
		conversation.WithParentID(parentUserMessageID),
		conversation.WithStatus(conversation.SpanStatusChatting),
	)

	if err := s.state.ApplyAll(
		conversation.MutateBeginCycle(),
		conversation.MutateRegenerate(spanID, parentUserMessageID, placeholder),
	); err != nil {
		s.mu.Unlock()
		return err
	}
	chatID := s.state.ID
	s.mu.Unlock()

	body, err := s.svc.Regenerate(ctx, chatservice.RegenerateRequest{
		ChatID:              chatID,
		SpanID:              spanID,
		ModelID:             modelID,
		ParentUserMessageID: optionalID(parentUserMessageID),
	})
	if err != nil {
		return s.failCycle(err)
	}
	return s.runCycle(ctx, body, registry)
}

// EditAndResend forks a new branch at an arbitrary earlier message: the path
// is truncated at the anchor and a fresh turn is submitted there. The
// original branch stays reachable through sibling ids.
func (s *Session) EditAndResend(ctx context.Context, anchorID conversation.MessageID, content []*conversation.ContentPart) error {
	s.mu.Lock()
	if err := s.gateLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.checkSpanModelsLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	user := conversation.NewUserMessage(content, conversation.WithParentID(anchorID))
	spans := s.state.EnabledSpans()
	registry := conversation.NewPlaceholderRegistry(spans)
	placeholders := s.placeholdersLocked(registry, spans, user.ID)

	if err := s.state.ApplyAll(
		conversation.MutateBeginCycle(),
		conversation.MutateEditFork(anchorID, user, placeholders),
	); err != nil {
		s.mu.Unlock()
		return err
	}
	chatID := s.state.ID
	s.mu.Unlock()

	body, err := s.svc.Submit(ctx, chatservice.SubmitRequest{
		ChatID:                   chatID,
		ParentAssistantMessageID: optionalID(anchorID),
		UserContent:              content,
	})
	if err != nil {
		return s.failCycle(err)
	}
	return s.runCycle(ctx, body, registry)
}

// EditMessage rewrites one content part, either in place or as a forked
// sibling when saveAsNew is set.
func (s *Session) EditMessage(ctx context.Context, messageID conversation.MessageID, partID string, text string, saveAsNew bool) error {
	req := chatservice.EditRequest{MessageID: messageID, ContentPartID: partID, Text: text}
	if !saveAsNew {
		if err := s.svc.EditInPlace(ctx, req); err != nil {
			return err
		}
		return s.apply(conversation.MutateEditInPlace(messageID, partID, text))
	}

	copyMsg, err := s.svc.EditAsNew(ctx, req)
	if err != nil {
		return err
	}
	return s.apply(conversation.MutateForkAsNew(messageID, copyMsg))
}

// Delete removes a message following the branch-aware rules and tells the
// chat service the resolved new leaf so server state stays consistent.
func (s *Session) Delete(ctx context.Context, messageID conversation.MessageID) error {
	s.mu.Lock()
	probe := conversation.NewDeleteMutation(messageID)
	if err := probe.Apply(s.state.Snapshot()); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if err := s.svc.Delete(ctx, messageID, probe.NewLeafID); err != nil {
		return err
	}
	return s.apply(conversation.NewDeleteMutation(messageID))
}

// ToggleReaction implements the idempotent reaction semantics: repeating the
// current reaction clears it, anything else overwrites it. The clear-or-set
// decision is made from the current state before the request goes out.
func (s *Session) ToggleReaction(ctx context.Context, messageID conversation.MessageID, up bool) error {
	s.mu.Lock()
	node, ok := s.state.Tree.Get(messageID)
	if !ok {
		s.mu.Unlock()
		return errors.Errorf("message %s not found", messageID)
	}
	current := node.Reaction
	s.mu.Unlock()

	target := conversation.ReactionDown
	if up {
		target = conversation.ReactionUp
	}

	if current == target {
		if err := s.svc.ClearReaction(ctx, messageID); err != nil {
			return err
		}
		return s.apply(conversation.MutateSetReaction(messageID, conversation.ReactionUnset))
	}
	if err := s.svc.SetReaction(ctx, messageID, up); err != nil {
		return err
	}
	return s.apply(conversation.MutateSetReaction(messageID, target))
}

// SelectBranch switches the displayed branch to the one through messageID
// and persists the resulting leaf pointer.
func (s *Session) SelectBranch(ctx context.Context, messageID conversation.MessageID) error {
	s.mu.Lock()
	if s.state.Status == conversation.ChatStatusChatting {
		s.mu.Unlock()
		return ErrCycleInFlight
	}
	if m, ok := s.state.Path.Find(messageID); ok && m.IsActive {
		s.mu.Unlock()
		return nil
	}
	if err := s.state.Apply(conversation.MutateSelectBranch(messageID)); err != nil {
		s.mu.Unlock()
		return err
	}
	chatID := s.state.ID
	leafID := s.state.LeafMessageID
	s.state.UpdatedAt = time.Now()
	s.mu.Unlock()

	return s.svc.UpdateLeaf(ctx, chatID, leafID)
}

// SetDisplayType flips a message's presentation hint. Local only.
func (s *Session) SetDisplayType(messageID conversation.MessageID, displayType conversation.DisplayType) error {
	return s.apply(conversation.MutateSetDisplayType(messageID, displayType))
}

// Stop requests server-side cancellation of the in-flight stream using the
// recorded stop ids.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	stopIDs := append([]string(nil), s.state.StopIDs...)
	s.mu.Unlock()
	if len(stopIDs) == 0 {
		return errors.New("no in-flight operation to stop")
	}
	for _, stopID := range stopIDs {
		if err := s.svc.Stop(ctx, stopID); err != nil {
			return err
		}
	}
	return nil
}

// runCycle is the single cooperative consumer of one streamed body. Events
// are applied strictly in arrival order; every mutation runs to completion
// before the next read, so no two events are ever applied concurrently.
func (s *Session) runCycle(ctx context.Context, body io.ReadCloser, registry *conversation.PlaceholderRegistry) error {
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(body)

	s.publishProgress(events.Progress{Kind: events.ProgressCycleStarted})

	decoder := events.NewFrameDecoder(body)
	rec := newReconciler(s.state, registry, s.publishProgress, s.logger)

	for {
		frame, err := decoder.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				// Cancelled: end the cycle cleanly, keeping the
				// last committed state.
				s.finishCycle()
				return ctx.Err()
			}
			return s.failCycle(errors.Wrap(err, "reading event stream"))
		}

		ev, err := events.DecodeEvent(frame)
		if err != nil {
			if errors.Is(err, events.ErrUnknownKind) {
				s.logger.Warn().Err(err).Str("frame", frame).Msg("skipping unknown event kind")
			} else {
				s.logger.Warn().Err(err).Str("frame", frame).Msg("skipping malformed event frame")
			}
			continue
		}

		s.mu.Lock()
		err = rec.apply(ev)
		s.mu.Unlock()
		if err != nil {
			_ = s.failCycle(err)
			return err
		}
	}

	s.finishCycle()
	s.publishProgress(events.Progress{Kind: events.ProgressCycleDone})
	return nil
}

func (s *Session) finishCycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.Apply(conversation.MutateCompleteCycle(time.Now())); err != nil {
		s.logger.Error().Err(err).Msg("completing cycle")
	}
}

func (s *Session) failCycle(cause error) error {
	s.mu.Lock()
	if err := s.state.Apply(conversation.MutateFailCycle()); err != nil {
		s.logger.Error().Err(err).Msg("marking cycle failed")
	}
	s.mu.Unlock()
	s.publishProgress(events.Progress{Kind: events.ProgressCycleFailed, Error: cause.Error()})
	return cause
}

func (s *Session) apply(m conversation.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Apply(m)
}

func (s *Session) gateLocked() error {
	if s.state.Status == conversation.ChatStatusChatting {
		return ErrCycleInFlight
	}
	return nil
}

// checkSpanModelsLocked verifies every enabled span's model before any
// network call; on failure no tree mutation happens and the error names the
// missing models.
func (s *Session) checkSpanModelsLocked() error {
	var missing []string
	for _, span := range s.state.Spans {
		if !span.Enabled {
			continue
		}
		if _, ok := s.catalog.Lookup(span.ModelID); !ok {
			missing = append(missing, span.ModelName)
		}
	}
	if len(missing) > 0 {
		return &ModelsUnavailableError{Missing: missing}
	}
	return nil
}

func (s *Session) placeholdersLocked(registry *conversation.PlaceholderRegistry, spans []conversation.SpanID, parentID conversation.MessageID) []*conversation.Message {
	out := make([]*conversation.Message, 0, len(spans))
	for _, spanID := range spans {
		id, _ := registry.IDFor(spanID)
		out = append(out, conversation.NewAssistantMessage(spanID,
			conversation.WithID(id),
			conversation.WithParentID(parentID),
			conversation.WithStatus(conversation.SpanStatusChatting),
		))
	}
	return out
}

func (s *Session) modelNameLocked(modelID int) string {
	for _, span := range s.state.Spans {
		if span.ModelID == modelID && span.ModelName != "" {
			return span.ModelName
		}
	}
	return "unknown"
}

// publishProgress is called both directly and from inside reconciliation
// while the session lock is held, so it must not lock. The chat id is
// immutable after construction.
func (s *Session) publishProgress(p events.Progress) {
	if s.pub == nil {
		return
	}
	p.ChatID = s.state.ID
	s.pub.PublishBlind(p)
}

func optionalID(id conversation.MessageID) *conversation.MessageID {
	if id == conversation.NullID {
		return nil
	}
	return &id
}
