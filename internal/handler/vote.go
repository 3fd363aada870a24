package handler

import (
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"parley/internal/domain"
	"parley/internal/httputil"
	chatSvc "parley/internal/service/chat"
)

// VoteHandler handles message vote requests.
type VoteHandler struct {
	chatService *chatSvc.Service
	logger      *slog.Logger
}

// NewVoteHandler creates a new vote handler
func NewVoteHandler(chatService *chatSvc.Service, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{chatService: chatService, logger: logger}
}

// GetVotes returns all votes recorded for a chat's messages
// GET /api/vote?chatId=<chatId>
func (h *VoteHandler) GetVotes(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chatId")
	if chatID == "" {
		httputil.RespondError(w, domain.NewError(domain.KindBadRequest, domain.SurfaceAPI))
		return
	}

	userID := httputil.GetUserID(r)
	votes, err := h.chatService.GetVotes(r.Context(), userID, chatID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, votes)
}

type voteRequest struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	Type      string `json:"type"`
}

func (req *voteRequest) validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.ChatID, validation.Required),
		validation.Field(&req.MessageID, validation.Required),
		validation.Field(&req.Type, validation.Required, validation.In("up", "down")),
	)
}

// PatchVote records or flips an up/down vote on a message
// PATCH /api/vote
func (h *VoteHandler) PatchVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, domain.WrapError(domain.KindBadRequest, domain.SurfaceAPI, err))
		return
	}
	if err := req.validate(); err != nil {
		httputil.RespondError(w, domain.WrapError(domain.KindBadRequest, domain.SurfaceAPI, err))
		return
	}

	userID := httputil.GetUserID(r)
	if err := h.chatService.VoteMessage(r.Context(), userID, req.ChatID, req.MessageID, req.Type == "up"); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]string{"message": "Message voted"})
}
