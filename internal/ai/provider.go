// Package ai fronts the hosted language model the assistant surface
// talks to. The model is an external collaborator; this package only
// shuttles prompts and replies.
package ai

import (
	"context"
	"encoding/json"

	"github.com/codebuddy/apiserver/types"
)

// Provider is the generative-model contract the assistant endpoints
// depend on.
type Provider interface {
	// Hint returns a nudge for a problem statement without revealing
	// the solution.
	Hint(ctx context.Context, problemText string) (string, error)

	// Quiz builds a quiz from source text. quizType is "mcq" or
	// "short"; the result is the model's strict-JSON document.
	Quiz(ctx context.Context, text, quizType string, numQuestions int) (json.RawMessage, error)

	// Chat answers a message in the context of prior conversation
	// turns.
	Chat(ctx context.Context, history []types.ChatMessage, message string) (string, error)
}
