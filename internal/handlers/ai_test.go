package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuddy/apiserver/internal/auth"
	"github.com/codebuddy/apiserver/internal/logging"
	"github.com/codebuddy/apiserver/internal/services"
	"github.com/codebuddy/apiserver/types"
)

type fakeProvider struct{}

func (fakeProvider) Hint(_ context.Context, problemText string) (string, error) {
	return "hint for: " + problemText, nil
}

func (fakeProvider) Quiz(context.Context, string, string, int) (json.RawMessage, error) {
	return json.RawMessage(`{"success":true,"questions":[]}`), nil
}

func (fakeProvider) Chat(_ context.Context, _ []types.ChatMessage, message string) (string, error) {
	return "echo: " + message, nil
}

type memChatRepo struct {
	messages map[string][]types.ChatMessage
}

func (m *memChatRepo) Append(_ context.Context, userID, role, content string) (types.ChatMessage, error) {
	msg := types.ChatMessage{
		ID:        int64(len(m.messages[userID]) + 1),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	m.messages[userID] = append(m.messages[userID], msg)
	return msg, nil
}

func (m *memChatRepo) History(_ context.Context, userID string, limit int) ([]types.ChatMessage, error) {
	return m.messages[userID], nil
}

func (m *memChatRepo) Clear(_ context.Context, userID string) error {
	delete(m.messages, userID)
	return nil
}

func newAITestRouter(t *testing.T) (*chi.Mux, string) {
	t.Helper()

	repo := newMemRepo()
	notifier := &memNotifier{codes: make(map[string]string)}
	authService := services.NewAuthService(
		repo,
		auth.NewOTPManager(10*time.Minute),
		auth.NewTokenIssuer("test-secret", time.Hour),
		notifier,
		nil,
		logging.Nop(),
	)
	chatService := services.NewChatService(&memChatRepo{messages: make(map[string][]types.ChatMessage)}, fakeProvider{})

	router := chi.NewRouter()
	router.Route("/api/auth", func(r chi.Router) {
		AuthRouter(r, authService, nil, "https://buddy.example.com", logging.Nop())
	})
	router.Route("/api/ai", func(r chi.Router) {
		AIRouter(r, chatService, authService, logging.Nop())
	})

	// Open a session to exercise the protected surface.
	ctx := context.Background()
	require.NoError(t, authService.RequestChallenge(ctx, "a@x.com", "secret1", ""))
	result, err := authService.CompleteChallenge(ctx, "a@x.com", notifier.codes["a@x.com"], "", services.LoginMeta{})
	require.NoError(t, err)

	return router, result.Token
}

func TestAIRoutesRequireAuth(t *testing.T) {
	router, _ := newAITestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/ai/hint", map[string]string{"problemText": "x"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHintEndpoint(t *testing.T) {
	router, token := newAITestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/ai/hint", map[string]string{}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/ai/hint", map[string]string{"problemText": "two sum"}, token)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HintResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hint for: two sum", resp.Hint)
}

func TestQuizEndpoint(t *testing.T) {
	router, token := newAITestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/ai/quiz", map[string]any{"text": "pointers in go"}, token)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QuizResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.JSONEq(t, `{"success":true,"questions":[]}`, string(resp.Quiz))
}

func TestChatRoundTripAndHistory(t *testing.T) {
	router, token := newAITestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/ai/chat", map[string]string{"message": "hello"}, token)
	require.Equal(t, http.StatusOK, rec.Code)

	var chatResp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chatResp))
	assert.Equal(t, "echo: hello", chatResp.Reply)

	rec = doJSON(t, router, http.MethodGet, "/api/ai/history", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	var histResp ChatHistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &histResp))
	require.Len(t, histResp.Messages, 2)
	assert.Equal(t, types.RoleUser, histResp.Messages[0].Role)
	assert.Equal(t, types.RoleAssistant, histResp.Messages[1].Role)

	rec = doJSON(t, router, http.MethodDelete, "/api/ai/history", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/ai/history", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &histResp))
	assert.Empty(t, histResp.Messages)
}
