package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codebuddy/apiserver/internal/ai"
	"github.com/codebuddy/apiserver/types"
)

const defaultHistoryLimit = 50

// ChatRepository defines persistence operations for conversations.
type ChatRepository interface {
	Append(ctx context.Context, userID, role, content string) (types.ChatMessage, error)
	History(ctx context.Context, userID string, limit int) ([]types.ChatMessage, error)
	Clear(ctx context.Context, userID string) error
}

// ChatService fronts the assistant surface: hints and quizzes are
// stateless passes to the provider, chat turns are persisted per user.
type ChatService struct {
	repo         ChatRepository
	provider     ai.Provider
	historyLimit int
}

func NewChatService(repo ChatRepository, provider ai.Provider) *ChatService {
	return &ChatService{repo: repo, provider: provider, historyLimit: defaultHistoryLimit}
}

func (s *ChatService) Hint(ctx context.Context, problemText string) (string, error) {
	return s.provider.Hint(ctx, problemText)
}

func (s *ChatService) Quiz(ctx context.Context, text, quizType string, numQuestions int) (json.RawMessage, error) {
	return s.provider.Quiz(ctx, text, quizType, numQuestions)
}

// Chat answers a message in the context of the user's stored
// conversation and appends both turns.
func (s *ChatService) Chat(ctx context.Context, userID, message string) (string, error) {
	history, err := s.repo.History(ctx, userID, s.historyLimit)
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}

	reply, err := s.provider.Chat(ctx, history, message)
	if err != nil {
		return "", err
	}

	if _, err := s.repo.Append(ctx, userID, types.RoleUser, message); err != nil {
		return "", fmt.Errorf("saving message: %w", err)
	}
	if _, err := s.repo.Append(ctx, userID, types.RoleAssistant, reply); err != nil {
		return "", fmt.Errorf("saving reply: %w", err)
	}
	return reply, nil
}

func (s *ChatService) History(ctx context.Context, userID string, limit int) ([]types.ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = s.historyLimit
	}
	return s.repo.History(ctx, userID, limit)
}

func (s *ChatService) Clear(ctx context.Context, userID string) error {
	return s.repo.Clear(ctx, userID)
}
