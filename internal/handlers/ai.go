package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/codebuddy/apiserver/internal/services"
	"github.com/codebuddy/apiserver/types"
)

// AIHandler proxies the assistant surface: hints, quiz generation, and
// the persisted chat conversation.
type AIHandler struct {
	chat *services.ChatService
	log  *zap.SugaredLogger
}

func NewAIHandler(chat *services.ChatService, log *zap.SugaredLogger) *AIHandler {
	return &AIHandler{chat: chat, log: log}
}

// AIRouter registers the assistant routes. Every route requires an
// authenticated session.
func AIRouter(r chi.Router, chat *services.ChatService, authService *services.AuthService, log *zap.SugaredLogger) {
	handler := NewAIHandler(chat, log)

	r.Use(RequireAuth(authService))
	r.Post("/hint", handler.Hint)
	r.Post("/quiz", handler.Quiz)
	r.Post("/chat", handler.Chat)
	r.Get("/history", handler.History)
	r.Delete("/history", handler.ClearHistory)
}

// Hint returns a nudge toward the solution without giving it away.
func (h *AIHandler) Hint(w http.ResponseWriter, r *http.Request) {
	var req HintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.ProblemText == "" {
		writeError(w, http.StatusBadRequest, "problem text is required")
		return
	}

	hint, err := h.chat.Hint(r.Context(), req.ProblemText)
	if err != nil {
		h.log.Errorw("hint generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to generate hint")
		return
	}

	writeJSON(w, http.StatusOK, HintResponse{Hint: hint})
}

// Quiz generates a structured quiz from the supplied content.
func (h *AIHandler) Quiz(w http.ResponseWriter, r *http.Request) {
	var req QuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Type == "" {
		req.Type = "mcq"
	}
	if req.NumQuestions == 0 {
		req.NumQuestions = 5
	}

	quiz, err := h.chat.Quiz(r.Context(), req.Text, req.Type, req.NumQuestions)
	if err != nil {
		h.log.Errorw("quiz generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to generate quiz")
		return
	}

	writeJSON(w, http.StatusOK, QuizResponse{Quiz: quiz})
}

// Chat answers a message in the context of the stored conversation.
func (h *AIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := h.chat.Chat(r.Context(), user.ID, req.Message)
	if err != nil {
		h.log.Errorw("chat failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusBadGateway, "failed to answer")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Reply: reply})
}

// History returns the user's stored conversation, oldest first.
func (h *AIHandler) History(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	messages, err := h.chat.History(r.Context(), user.ID, limit)
	if err != nil {
		h.log.Errorw("loading chat history failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if messages == nil {
		messages = []types.ChatMessage{}
	}

	writeJSON(w, http.StatusOK, ChatHistoryResponse{Messages: messages})
}

// ClearHistory wipes the user's stored conversation.
func (h *AIHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.chat.Clear(r.Context(), user.ID); err != nil {
		h.log.Errorw("clearing chat history failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "chat cleared"})
}

type HintRequest struct {
	ProblemText string `json:"problemText"`
}

type HintResponse struct {
	Hint string `json:"hint"`
}

type QuizRequest struct {
	Text         string `json:"text"`
	Type         string `json:"type"`
	NumQuestions int    `json:"numQuestions"`
}

type QuizResponse struct {
	Quiz json.RawMessage `json:"quiz"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type ChatHistoryResponse struct {
	Messages []types.ChatMessage `json:"messages"`
}
