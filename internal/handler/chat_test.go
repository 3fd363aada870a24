package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"parley/internal/domain/models"
	"parley/internal/middleware"
	"parley/internal/repository/memory"
	authsvc "parley/internal/service/auth"
	chatSvc "parley/internal/service/chat"
	"parley/internal/service/llm"
	"parley/internal/service/llm/providers/fixture"
	"parley/internal/service/llm/streaming"
)

const (
	adaToken     = "token-ada"
	babbageToken = "token-babbage"
	chatAlpha    = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	chatBeta     = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
)

// stubVerifier maps fixed bearer tokens to principals.
type stubVerifier struct{}

func (stubVerifier) VerifyToken(token string) (*models.Claims, error) {
	users := map[string]string{
		adaToken:     "user-ada",
		babbageToken: "user-babbage",
	}
	userID, ok := users[token]
	if !ok {
		return nil, fmt.Errorf("unknown token")
	}
	return &models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	}, nil
}

func (stubVerifier) Close() error { return nil }

type testEnv struct {
	server *httptest.Server
	repo   *memory.ChatRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry := llm.NewRegistry()
	registry.RegisterProvider(fixture.NewProvider())
	registry.RegisterModel(llm.ModelSpec{
		ID:            "chat-model",
		Provider:      "fixture",
		UpstreamModel: "chat-model",
	})
	registry.RegisterModel(llm.ModelSpec{
		ID:            "chat-model-reasoning",
		Provider:      "fixture",
		UpstreamModel: "chat-model-reasoning",
		ReasoningTag:  "think",
	})

	repo := memory.NewChatRepository()
	tx := memory.NoopTransactionManager{}
	guard := authsvc.NewGuard(repo)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	chatService := chatSvc.NewService(repo, tx, guard, logger)
	streamingService := streaming.NewService(repo, tx, guard, registry, logger)

	chatHandler := NewChatHandler(chatService, streamingService, logger)
	historyHandler := NewHistoryHandler(chatService, logger)
	voteHandler := NewVoteHandler(chatService, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", chatHandler.PostChat)
	mux.HandleFunc("GET /api/chat", chatHandler.GetChat)
	mux.HandleFunc("DELETE /api/chat", chatHandler.DeleteChat)
	mux.HandleFunc("GET /api/history", historyHandler.ListChats)
	mux.HandleFunc("GET /api/vote", voteHandler.GetVotes)
	mux.HandleFunc("PATCH /api/vote", voteHandler.PatchVote)

	server := httptest.NewServer(middleware.AuthMiddleware(stubVerifier{})(mux))
	t.Cleanup(server.Close)

	return &testEnv{server: server, repo: repo}
}

func (e *testEnv) request(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeErrorBody(t *testing.T, resp *http.Response) (code, message string) {
	t.Helper()
	defer resp.Body.Close()

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Code, body.Message
}

func turnBody(chatID, model, text string) string {
	payload := map[string]any{
		"id":                chatID,
		"selectedChatModel": model,
		"message": map[string]any{
			"role":  "user",
			"parts": []map[string]string{{"type": "text", "text": text}},
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

// readFrames parses a streamed body into its events, normalizing the
// per-frame ids so sequences compare deterministically.
func readFrames(t *testing.T, body io.Reader) (events []models.StreamEvent, terminated bool) {
	t.Helper()

	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			t.Fatalf("stream line without frame prefix: %q", line)
		}
		if payload == "[DONE]" {
			terminated = true
			continue
		}
		if terminated {
			t.Fatalf("frame after terminator: %q", line)
		}

		var ev models.StreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("frame is not valid JSON: %q: %v", payload, err)
		}
		if ev.ID == "" {
			t.Fatalf("frame without id: %q", payload)
		}
		ev.ID = "<id>"
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	return events, terminated
}

func TestPostChat_Stream(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, "POST", "/api/chat", adaToken, turnBody(chatAlpha, "chat-model", "why is the sky blue?"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	events, terminated := readFrames(t, resp.Body)
	if !terminated {
		t.Error("stream did not end with the [DONE] terminator")
	}

	want := []models.StreamEvent{
		{Type: "start", ID: "<id>"},
		{Type: "text-delta", ID: "<id>", Delta: "It's "},
		{Type: "text-delta", ID: "<id>", Delta: "just "},
		{Type: "text-delta", ID: "<id>", Delta: "blue "},
		{Type: "text-delta", ID: "<id>", Delta: "duh!"},
		{Type: "finish", ID: "<id>"},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("frames = %#v, want %#v", events, want)
	}
}

func TestPostChat_ReasoningStream(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, "POST", "/api/chat", adaToken, turnBody(chatAlpha, "chat-model-reasoning", "why is the grass green?"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	events, terminated := readFrames(t, resp.Body)
	if !terminated {
		t.Error("stream did not end with the [DONE] terminator")
	}

	var reasoningText, answerText string
	for _, ev := range events {
		switch ev.Type {
		case "reasoning-delta":
			reasoningText += ev.Delta
		case "text-delta":
			answerText += ev.Delta
		}
	}
	if reasoningText != "The question is simple." {
		t.Errorf("reasoning = %q", reasoningText)
	}
	if answerText != "It's just green duh!" {
		t.Errorf("answer = %q", answerText)
	}
}

func TestPostChat_Errors(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed json",
			token:      adaToken,
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantCode:   "bad_request:api",
		},
		{
			name:       "id not a uuid",
			token:      adaToken,
			body:       turnBody("chat-1", "chat-model", "hi"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "bad_request:api",
		},
		{
			name:       "unknown model",
			token:      adaToken,
			body:       turnBody(chatAlpha, "chat-model-quantum", "hi"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "bad_request:api",
		},
		{
			name:       "anonymous",
			token:      "",
			body:       turnBody(chatAlpha, "chat-model", "hi"),
			wantStatus: http.StatusUnauthorized,
			wantCode:   "unauthorized:auth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp := env.request(t, "POST", "/api/chat", tt.token, tt.body)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			code, message := decodeErrorBody(t, resp)
			if code != tt.wantCode {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
			if message == "" {
				t.Error("error body is missing its message")
			}
		})
	}
}

func TestPostChat_CrossUserForbidden(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, "POST", "/api/chat", adaToken, turnBody(chatAlpha, "chat-model", "mine"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner turn status = %d, want 200", resp.StatusCode)
	}

	resp = env.request(t, "POST", "/api/chat", babbageToken, turnBody(chatAlpha, "chat-model", "hijack"))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	code, message := decodeErrorBody(t, resp)
	if code != "forbidden:chat" {
		t.Errorf("code = %s, want forbidden:chat", code)
	}
	if !strings.Contains(message, "belongs to another user") {
		t.Errorf("message = %q", message)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, "POST", "/api/chat", "token-mallory", turnBody(chatAlpha, "chat-model", "hi"))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	code, _ := decodeErrorBody(t, resp)
	if code != "unauthorized:auth" {
		t.Errorf("code = %s, want unauthorized:auth", code)
	}
}

func TestGetChat(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, "POST", "/api/chat", adaToken, turnBody(chatAlpha, "chat-model", "why is the sky blue?"))
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	t.Run("owner reads", func(t *testing.T) {
		resp := env.request(t, "GET", "/api/chat?id="+chatAlpha, adaToken, "")
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var detail chatSvc.ChatDetail
		if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if detail.Chat.ID != chatAlpha || detail.Chat.Title != "why is the sky blue?" {
			t.Errorf("chat = %+v", detail.Chat)
		}
		if len(detail.Messages) != 2 {
			t.Errorf("messages = %d, want user and assistant", len(detail.Messages))
		}
	})

	t.Run("other user forbidden", func(t *testing.T) {
		resp := env.request(t, "GET", "/api/chat?id="+chatAlpha, babbageToken, "")
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", resp.StatusCode)
		}
		if code, _ := decodeErrorBody(t, resp); code != "forbidden:chat" {
			t.Errorf("code = %s, want forbidden:chat", code)
		}
	})

	t.Run("missing chat", func(t *testing.T) {
		resp := env.request(t, "GET", "/api/chat?id="+chatBeta, adaToken, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
		if code, _ := decodeErrorBody(t, resp); code != "not_found:chat" {
			t.Errorf("code = %s, want not_found:chat", code)
		}
	})

	t.Run("missing id param", func(t *testing.T) {
		resp := env.request(t, "GET", "/api/chat", adaToken, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
		resp.Body.Close()
	})

	// A malformed id can never name an existing chat; it must read as
	// not-found, never as a server fault.
	t.Run("malformed id is not found", func(t *testing.T) {
		resp := env.request(t, "GET", "/api/chat?id=not-a-uuid", adaToken, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
		if code, _ := decodeErrorBody(t, resp); code != "not_found:chat" {
			t.Errorf("code = %s, want not_found:chat", code)
		}
	})
}

func TestDeleteChat(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, "POST", "/api/chat", adaToken, turnBody(chatAlpha, "chat-model", "ephemeral"))
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	t.Run("other user forbidden", func(t *testing.T) {
		resp := env.request(t, "DELETE", "/api/chat?id="+chatAlpha, babbageToken, "")
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", resp.StatusCode)
		}
		resp.Body.Close()
	})

	t.Run("owner deletes", func(t *testing.T) {
		resp := env.request(t, "DELETE", "/api/chat?id="+chatAlpha, adaToken, "")
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var body map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["id"] != chatAlpha {
			t.Errorf("body = %v, want the deleted id", body)
		}
	})

	t.Run("repeat delete is not found", func(t *testing.T) {
		resp := env.request(t, "DELETE", "/api/chat?id="+chatAlpha, adaToken, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
		if code, _ := decodeErrorBody(t, resp); code != "not_found:chat" {
			t.Errorf("code = %s, want not_found:chat", code)
		}
	})
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)

	// Three chats for Ada, one for Babbage
	adaChats := []string{
		"00000000-0000-4000-8000-000000000001",
		"00000000-0000-4000-8000-000000000002",
		"00000000-0000-4000-8000-000000000003",
	}
	for i, id := range adaChats {
		resp := env.request(t, "POST", "/api/chat", adaToken, turnBody(id, "chat-model", fmt.Sprintf("chat number %d", i)))
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	resp := env.request(t, "POST", "/api/chat", babbageToken, turnBody(chatBeta, "chat-model", "other user"))
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	t.Run("anonymous rejected", func(t *testing.T) {
		resp := env.request(t, "GET", "/api/history", "", "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", resp.StatusCode)
		}
		resp.Body.Close()
	})

	t.Run("lists own chats only", func(t *testing.T) {
		resp := env.request(t, "GET", "/api/history", adaToken, "")
		defer resp.Body.Close()

		var page chatSvc.HistoryPage
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(page.Chats) != 3 {
			t.Fatalf("chats = %d, want 3", len(page.Chats))
		}
		if page.HasMore {
			t.Error("HasMore set with everything on one page")
		}
		for _, chat := range page.Chats {
			if chat.UserID != "user-ada" {
				t.Errorf("listing leaked chat of %s", chat.UserID)
			}
		}
	})

	t.Run("pages with cursor", func(t *testing.T) {
		resp := env.request(t, "GET", "/api/history?limit=2", adaToken, "")
		var first chatSvc.HistoryPage
		if err := json.NewDecoder(resp.Body).Decode(&first); err != nil {
			t.Fatalf("decode first page: %v", err)
		}
		resp.Body.Close()

		if len(first.Chats) != 2 || !first.HasMore || first.NextCursor == "" {
			t.Fatalf("first page = %d chats, hasMore=%v", len(first.Chats), first.HasMore)
		}

		resp = env.request(t, "GET", "/api/history?limit=2&cursor="+first.NextCursor, adaToken, "")
		var second chatSvc.HistoryPage
		if err := json.NewDecoder(resp.Body).Decode(&second); err != nil {
			t.Fatalf("decode second page: %v", err)
		}
		resp.Body.Close()

		if len(second.Chats) != 1 || second.HasMore {
			t.Fatalf("second page = %d chats, hasMore=%v", len(second.Chats), second.HasMore)
		}

		// No overlap between pages
		seen := map[string]bool{}
		for _, chat := range append(first.Chats, second.Chats...) {
			if seen[chat.ID] {
				t.Errorf("chat %s appeared on both pages", chat.ID)
			}
			seen[chat.ID] = true
		}
	})

	t.Run("garbled cursor", func(t *testing.T) {
		resp := env.request(t, "GET", "/api/history?cursor=%21%21garbage", adaToken, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
		if code, _ := decodeErrorBody(t, resp); code != "bad_request:history" {
			t.Errorf("code = %s, want bad_request:history", code)
		}
	})

	t.Run("non-numeric limit", func(t *testing.T) {
		resp := env.request(t, "GET", "/api/history?limit=lots", adaToken, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
		resp.Body.Close()
	})
}

func TestVotes(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, "POST", "/api/chat", adaToken, turnBody(chatAlpha, "chat-model", "rate me"))
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	// Find the assistant message to vote on
	resp = env.request(t, "GET", "/api/chat?id="+chatAlpha, adaToken, "")
	var detail chatSvc.ChatDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	resp.Body.Close()
	if len(detail.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(detail.Messages))
	}
	messageID := detail.Messages[1].ID

	voteBody := func(msgID, voteType string) string {
		b, _ := json.Marshal(map[string]string{
			"chatId":    chatAlpha,
			"messageId": msgID,
			"type":      voteType,
		})
		return string(b)
	}

	t.Run("owner votes up", func(t *testing.T) {
		resp := env.request(t, "PATCH", "/api/vote", adaToken, voteBody(messageID, "up"))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		resp.Body.Close()
	})

	t.Run("revote overwrites", func(t *testing.T) {
		resp := env.request(t, "PATCH", "/api/vote", adaToken, voteBody(messageID, "down"))
		resp.Body.Close()

		resp = env.request(t, "GET", "/api/vote?chatId="+chatAlpha, adaToken, "")
		defer resp.Body.Close()

		var votes []models.Vote
		if err := json.NewDecoder(resp.Body).Decode(&votes); err != nil {
			t.Fatalf("decode votes: %v", err)
		}
		if len(votes) != 1 {
			t.Fatalf("votes = %d, want the single overwritten vote", len(votes))
		}
		if votes[0].MessageID != messageID || votes[0].IsUpvoted {
			t.Errorf("vote = %+v, want downvote on %s", votes[0], messageID)
		}
	})

	t.Run("non-owner forbidden", func(t *testing.T) {
		resp := env.request(t, "PATCH", "/api/vote", babbageToken, voteBody(messageID, "up"))
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", resp.StatusCode)
		}
		if code, _ := decodeErrorBody(t, resp); code != "forbidden:vote" {
			t.Errorf("code = %s, want forbidden:vote", code)
		}
	})

	t.Run("unknown message", func(t *testing.T) {
		resp := env.request(t, "PATCH", "/api/vote", adaToken, voteBody("99999999-9999-4999-8999-999999999999", "up"))
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
		if code, _ := decodeErrorBody(t, resp); code != "not_found:vote" {
			t.Errorf("code = %s, want not_found:vote", code)
		}
	})

	t.Run("malformed chat id is not found", func(t *testing.T) {
		resp := env.request(t, "GET", "/api/vote?chatId=not-a-uuid", adaToken, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
		if code, _ := decodeErrorBody(t, resp); code != "not_found:chat" {
			t.Errorf("code = %s, want not_found:chat", code)
		}
	})

	t.Run("malformed message id is not found", func(t *testing.T) {
		resp := env.request(t, "PATCH", "/api/vote", adaToken, voteBody("not-a-uuid", "up"))
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
		if code, _ := decodeErrorBody(t, resp); code != "not_found:vote" {
			t.Errorf("code = %s, want not_found:vote", code)
		}
	})

	t.Run("invalid vote type", func(t *testing.T) {
		resp := env.request(t, "PATCH", "/api/vote", adaToken, voteBody(messageID, "sideways"))
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
		resp.Body.Close()
	})
}
