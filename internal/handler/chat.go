package handler

import (
	"log/slog"
	"net/http"

	"parley/internal/domain"
	"parley/internal/handler/sse"
	"parley/internal/httputil"
	chatSvc "parley/internal/service/chat"
	"parley/internal/service/llm/streaming"
)

// ChatHandler handles chat HTTP requests.
// Handlers only communicate with services, never repositories.
type ChatHandler struct {
	chatService      *chatSvc.Service
	streamingService *streaming.Service
	logger           *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(
	chatService *chatSvc.Service,
	streamingService *streaming.Service,
	logger *slog.Logger,
) *ChatHandler {
	return &ChatHandler{
		chatService:      chatService,
		streamingService: streamingService,
		logger:           logger,
	}
}

// PostChat runs one streaming chat turn
// POST /api/chat
// 200 with a streamed body of "data: <json>" frames; errors before the
// first byte are plain JSON {code, message} responses.
func (h *ChatHandler) PostChat(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	var req streaming.TurnRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, domain.WrapError(domain.KindBadRequest, domain.SurfaceAPI, err))
		return
	}
	req.UserID = userID

	turn, cerr := h.streamingService.Begin(r.Context(), &req)
	if cerr != nil {
		httputil.RespondError(w, cerr)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("response writer does not support streaming")
		httputil.RespondError(w, domain.NewError(domain.KindInternal, domain.SurfaceAPI))
		return
	}

	writer := sse.NewFrameWriter(w, flusher)
	if err := turn.Stream(r.Context(), writer); err != nil {
		// Sink failures mean the client went away; there is nobody left to
		// tell.
		h.logger.Info("stream aborted", "chat_id", req.ID, "error", err)
		return
	}
	writer.Close()
}

// GetChat returns a chat and its ordered messages
// GET /api/chat?id=<chatId>
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("id")
	if chatID == "" {
		httputil.RespondError(w, domain.NewError(domain.KindBadRequest, domain.SurfaceAPI))
		return
	}

	userID := httputil.GetUserID(r)
	detail, err := h.chatService.GetChat(r.Context(), userID, chatID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, detail)
}

// DeleteChat removes a chat and cascades to messages and votes
// DELETE /api/chat?id=<chatId>
// Returns {id} for confirmation; repeating the delete is a 404.
func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("id")
	if chatID == "" {
		httputil.RespondError(w, domain.NewError(domain.KindBadRequest, domain.SurfaceAPI))
		return
	}

	userID := httputil.GetUserID(r)
	deleted, err := h.chatService.DeleteChat(r.Context(), userID, chatID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]string{"id": deleted.ID})
}
