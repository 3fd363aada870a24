package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"parley/internal/domain"
	"parley/internal/httputil"
	chatSvc "parley/internal/service/chat"
)

// HistoryHandler serves the caller's paginated chat list.
type HistoryHandler struct {
	chatService *chatSvc.Service
	logger      *slog.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(chatService *chatSvc.Service, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{chatService: chatService, logger: logger}
}

// ListChats returns one page of the caller's chats, newest first
// GET /api/history?limit=<n>&cursor=<token>
func (h *HistoryHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httputil.RespondError(w, domain.NewError(domain.KindBadRequest, domain.SurfaceHistory))
			return
		}
		limit = parsed
	}

	cursor := r.URL.Query().Get("cursor")

	page, err := h.chatService.ListChats(r.Context(), userID, limit, cursor)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, page)
}
