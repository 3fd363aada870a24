// Package streaming orchestrates one chat turn: validate, authorize, drive
// the model, demultiplex its output into framed stream events, and persist
// the final message set.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	"parley/internal/domain"
	"parley/internal/domain/models"
	"parley/internal/domain/repositories"
	authsvc "parley/internal/service/auth"
	"parley/internal/service/llm"
	"parley/internal/service/llm/reasoning"
)

// EventSink receives framed stream events. The HTTP handler implements it
// over the response writer; tests implement it over a slice.
type EventSink interface {
	Send(ev models.StreamEvent) error
}

// IncomingMessage is the user message of a turn request.
type IncomingMessage struct {
	ID    string               `json:"id"`
	Role  models.Role          `json:"role"`
	Parts []models.MessagePart `json:"parts"`
}

// TurnRequest is the body of POST /api/chat. UserID is filled from the
// authenticated principal, never from the payload.
type TurnRequest struct {
	ID                string           `json:"id"`
	Message           *IncomingMessage `json:"message"`
	SelectedChatModel string           `json:"selectedChatModel"`

	UserID string `json:"-"`
}

// Service runs streaming chat turns.
type Service struct {
	chats    repositories.ChatRepository
	tx       repositories.TransactionManager
	guard    *authsvc.Guard
	registry *llm.Registry
	logger   *slog.Logger
}

// NewService creates a streaming session service. The model registry is the
// injected model-invocation capability; production and test wiring differ
// only at composition time.
func NewService(
	chats repositories.ChatRepository,
	tx repositories.TransactionManager,
	guard *authsvc.Guard,
	registry *llm.Registry,
	logger *slog.Logger,
) *Service {
	return &Service{
		chats:    chats,
		tx:       tx,
		guard:    guard,
		registry: registry,
		logger:   logger,
	}
}

// validate schema-checks the request before any authorization or
// persistence work. Chat ids are client-chosen and must be UUIDs:
// creation-on-first-write is only safe when ids are unguessable.
func (s *Service) validate(req *TurnRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.ID, validation.Required, is.UUID),
		validation.Field(&req.Message, validation.Required),
		validation.Field(&req.SelectedChatModel, validation.Required),
	)
	if err != nil {
		return err
	}

	if req.Message.Role != models.RoleUser {
		return fmt.Errorf("message role must be %q", models.RoleUser)
	}
	if len(req.Message.Parts) == 0 {
		return fmt.Errorf("message must have at least one part")
	}
	if req.Message.ID != "" {
		if _, err := uuid.Parse(req.Message.ID); err != nil {
			return fmt.Errorf("message id must be a UUID")
		}
	}
	if !s.registry.Knows(req.SelectedChatModel) {
		return fmt.Errorf("unknown chat model %q", req.SelectedChatModel)
	}
	return nil
}

// Turn is one prepared chat turn, ready to stream. By the time a Turn
// exists the request is validated, the principal authorized, and the user
// message durably appended.
type Turn struct {
	svc      *Service
	chat     *models.Chat
	provider llm.Provider
	spec     llm.ModelSpec
	history  []models.Message
}

// Begin runs the Validating and Authorizing stages and persists the user
// message. Any failure here happens before the first streamed byte, so it
// is returned as a ChatError for a plain non-2xx response.
//
// Validate then authorize then mutate is a strict pipeline: reordering can
// leak existence information or allow partial writes under a denied
// principal.
func (s *Service) Begin(ctx context.Context, req *TurnRequest) (*Turn, *domain.ChatError) {
	// Validating
	if err := s.validate(req); err != nil {
		return nil, domain.WrapError(domain.KindBadRequest, domain.SurfaceAPI, err)
	}

	// Authorizing. The anonymous principal can never own a chat.
	if req.UserID == "" {
		return nil, domain.NewError(domain.KindUnauthorized, domain.SurfaceAuth)
	}

	chat, err := s.guard.Authorize(ctx, req.UserID, req.ID, authsvc.ActionAppend)
	switch {
	case err == nil:
		// Existing chat, caller owns it.
	case isNotFound(err):
		// Creation on first write: a brand-new caller-chosen id becomes a
		// chat owned by the caller.
		chat = &models.Chat{
			ID:            req.ID,
			UserID:        req.UserID,
			Title:         titleFromParts(req.Message.Parts),
			Visibility:    models.VisibilityPrivate,
			SelectedModel: req.SelectedChatModel,
			CreatedAt:     time.Now(),
		}
		if err := s.chats.CreateChat(ctx, chat); err != nil {
			return nil, domain.WrapError(domain.KindInternal, domain.SurfaceDatabase, err)
		}
		s.logger.Info("chat created on first write",
			"chat_id", chat.ID,
			"user_id", chat.UserID,
			"model", chat.SelectedModel,
		)
	case isForbidden(err):
		return nil, domain.NewError(domain.KindForbidden, domain.SurfaceChat)
	default:
		return nil, domain.WrapError(domain.KindInternal, domain.SurfaceDatabase, err)
	}

	provider, spec, err := s.registry.Resolve(req.SelectedChatModel)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, domain.SurfaceChat, err)
	}

	// Persist the incoming user message before invoking the model. It is
	// retained even if generation fails, so the turn is resumable.
	now := time.Now()
	userMsg := &models.Message{
		ID:        req.Message.ID,
		ChatID:    chat.ID,
		Role:      models.RoleUser,
		Parts:     req.Message.Parts,
		Metadata:  models.MessageMetadata{CreatedAt: now},
		CreatedAt: now,
	}
	if userMsg.ID == "" {
		userMsg.ID = uuid.New().String()
	}
	if err := s.chats.AppendMessage(ctx, userMsg); err != nil {
		return nil, domain.WrapError(domain.KindInternal, domain.SurfaceDatabase, err)
	}

	history, err := s.chats.GetMessages(ctx, chat.ID)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, domain.SurfaceDatabase, err)
	}

	s.logger.Info("turn prepared",
		"chat_id", chat.ID,
		"user_id", req.UserID,
		"model", spec.ID,
		"history_len", len(history),
	)

	return &Turn{
		svc:      s,
		chat:     chat,
		provider: provider,
		spec:     spec,
		history:  history,
	}, nil
}

// Stream runs the Generating and Persisting stages, forwarding every event
// to the sink as it is produced. Model and persistence failures after the
// first byte are reported as in-stream error events, never as a broken
// connection. The returned error is non-nil only when the sink itself
// fails (client disconnect).
func (t *Turn) Stream(ctx context.Context, sink EventSink) error {
	s := t.svc

	if err := sink.Send(event(models.StreamEventStart)); err != nil {
		return err
	}

	fragments, err := t.provider.Stream(ctx, &llm.GenerateRequest{
		Model:    t.spec.UpstreamModel,
		Messages: t.history,
	})
	if err != nil {
		s.logger.Error("provider invocation failed",
			"chat_id", t.chat.ID,
			"model", t.spec.ID,
			"error", err,
		)
		return sink.Send(errorEvent(domain.KindOffline, domain.SurfaceChat))
	}

	var demux *reasoning.Demux
	if t.spec.ReasoningTag != "" {
		demux = reasoning.New(t.spec.ReasoningTag)
	}

	var parts []models.MessagePart
	emit := func(seg reasoning.Segment) error {
		ev := event(models.StreamEventTextDelta)
		if seg.Reasoning {
			ev = event(models.StreamEventReasoningDelta)
		}
		ev.Delta = seg.Text
		parts = appendSegment(parts, seg)
		return sink.Send(ev)
	}

	for frag := range fragments {
		if frag.Err != nil {
			s.logger.Error("model stream failed",
				"chat_id", t.chat.ID,
				"model", t.spec.ID,
				"error", frag.Err,
			)
			return sink.Send(errorEvent(domain.KindOffline, domain.SurfaceChat))
		}

		if demux == nil {
			if err := emit(reasoning.Segment{Text: frag.Text}); err != nil {
				return err
			}
			continue
		}
		for _, seg := range demux.Feed(frag.Text) {
			if err := emit(seg); err != nil {
				return err
			}
		}
	}

	if demux != nil {
		// Unterminated tagging degrades gracefully: whatever is buffered is
		// flushed in the state it was read in.
		for _, seg := range demux.Flush() {
			if err := emit(seg); err != nil {
				return err
			}
		}
	}

	if ctx.Err() != nil {
		// Client cancelled mid-generation. The user message stays; nothing
		// assistant-side is committed.
		s.logger.Info("turn cancelled", "chat_id", t.chat.ID)
		return ctx.Err()
	}

	// Persisting: commit the assistant message before the finish frame, so
	// a client never sees finished framing for data that did not survive.
	if len(parts) > 0 {
		now := time.Now()
		assistantMsg := &models.Message{
			ID:        uuid.New().String(),
			ChatID:    t.chat.ID,
			Role:      models.RoleAssistant,
			Parts:     parts,
			Metadata:  models.MessageMetadata{CreatedAt: now},
			CreatedAt: now,
		}
		err := s.tx.ExecTx(ctx, func(txCtx context.Context) error {
			return s.chats.AppendMessage(txCtx, assistantMsg)
		})
		if err != nil {
			s.logger.Error("assistant message commit failed",
				"chat_id", t.chat.ID,
				"error", err,
			)
			return sink.Send(errorEvent(domain.KindInternal, domain.SurfaceChat))
		}
	}

	s.logger.Info("turn completed",
		"chat_id", t.chat.ID,
		"model", t.spec.ID,
		"parts", len(parts),
	)

	// Completed. The finish frame doubles as the history invalidation
	// signal: clients refetch their chat listing rather than patch it.
	return sink.Send(event(models.StreamEventFinish))
}

// appendSegment merges a segment into the part list, extending the last
// part when the channel has not changed so part ordering mirrors the
// original stream.
func appendSegment(parts []models.MessagePart, seg reasoning.Segment) []models.MessagePart {
	partType := models.PartTypeText
	if seg.Reasoning {
		partType = models.PartTypeReasoning
	}

	if n := len(parts); n > 0 && parts[n-1].Type == partType {
		parts[n-1].Text += seg.Text
		return parts
	}
	return append(parts, models.MessagePart{Type: partType, Text: seg.Text})
}

// titleFromParts derives a chat title from the first text part.
func titleFromParts(parts []models.MessagePart) string {
	const maxTitle = 80
	for _, p := range parts {
		if p.Type != models.PartTypeText || p.Text == "" {
			continue
		}
		if len(p.Text) > maxTitle {
			return p.Text[:maxTitle]
		}
		return p.Text
	}
	return "New chat"
}

func event(eventType string) models.StreamEvent {
	return models.StreamEvent{Type: eventType, ID: uuid.New().String()}
}

func errorEvent(kind domain.Kind, surface domain.Surface) models.StreamEvent {
	cerr := domain.NewError(kind, surface)
	ev := event(models.StreamEventError)
	ev.Code = cerr.Code()
	ev.Message = cerr.Message()
	return ev
}

func isNotFound(err error) bool {
	var cerr *domain.ChatError
	return errors.As(err, &cerr) && cerr.Kind == domain.KindNotFound
}

func isForbidden(err error) bool {
	var cerr *domain.ChatError
	return errors.As(err, &cerr) && cerr.Kind == domain.KindForbidden
}
