package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuddy/apiserver/config"
	"github.com/codebuddy/apiserver/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewGeminiClient(config.GeminiConfig{APIKey: "test-key", Model: "gemini-2.5-flash"})
	require.NoError(t, err)
	client.baseURL = srv.URL
	return client
}

func modelReply(text string) string {
	reply := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
		},
	}
	body, _ := json.Marshal(reply)
	return string(body)
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(config.GeminiConfig{})
	assert.Error(t, err)
}

func TestHint(t *testing.T) {
	var gotPath string
	var gotReq generateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(modelReply("try a two-pointer approach")))
	})

	hint, err := client.Hint(context.Background(), "find the longest palindrome")
	require.NoError(t, err)
	assert.Equal(t, "try a two-pointer approach", hint)
	assert.Equal(t, "/gemini-2.5-flash:generateContent", gotPath)

	require.Len(t, gotReq.Contents, 1)
	assert.Contains(t, gotReq.Contents[0].Parts[0].Text, "find the longest palindrome")
	assert.Contains(t, gotReq.Contents[0].Parts[0].Text, "just the hint")
}

func TestQuizStripsCodeFences(t *testing.T) {
	quiz := `{"success":true,"type":"mcq","questions":[]}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(modelReply("```json\n" + quiz + "\n```")))
	})

	raw, err := client.Quiz(context.Background(), "some content", "mcq", 5)
	require.NoError(t, err)
	assert.JSONEq(t, quiz, string(raw))
}

func TestQuizRejectsMalformedJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(modelReply("here is your quiz: {broken")))
	})

	_, err := client.Quiz(context.Background(), "some content", "mcq", 5)
	assert.Error(t, err)
}

func TestQuizClampsQuestionCount(t *testing.T) {
	var prompt string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompt = req.Contents[0].Parts[0].Text
		w.Write([]byte(modelReply(`{"success":true}`)))
	})

	_, err := client.Quiz(context.Background(), "content", "short", 500)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Number of questions: 20")
	assert.Contains(t, prompt, "short-answer quiz")
}

func TestChatMapsAssistantRole(t *testing.T) {
	var gotReq generateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(modelReply("happy to help!")))
	})

	history := []types.ChatMessage{
		{Role: types.RoleUser, Content: "hi"},
		{Role: types.RoleAssistant, Content: "hello!"},
	}
	reply, err := client.Chat(context.Background(), history, "explain recursion")
	require.NoError(t, err)
	assert.Equal(t, "happy to help!", reply)

	require.Len(t, gotReq.Contents, 3)
	assert.Equal(t, "user", gotReq.Contents[0].Role)
	assert.Equal(t, "model", gotReq.Contents[1].Role)
	assert.Equal(t, "user", gotReq.Contents[2].Role)
	assert.Equal(t, "explain recursion", gotReq.Contents[2].Parts[0].Text)
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
	})

	_, err := client.Hint(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "API key not valid"))
}

func TestGenerateEmptyResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := client.Hint(context.Background(), "anything")
	assert.Error(t, err)
}
