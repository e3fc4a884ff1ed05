package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codebuddy/apiserver/config"
	"github.com/codebuddy/apiserver/types"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultHTTPTimeout = 60 * time.Second
	maxQuizQuestions   = 20
)

// GeminiClient implements Provider against the Gemini REST API.
type GeminiClient struct {
	apiKey  string
	model   string
	httpc   *http.Client
	baseURL string
}

func NewGeminiClient(cfg config.GeminiConfig) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	return &GeminiClient{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpc:   &http.Client{Timeout: defaultHTTPTimeout},
		baseURL: geminiBaseURL,
	}, nil
}

func (c *GeminiClient) Hint(ctx context.Context, problemText string) (string, error) {
	prompt := problemText + "\nPlease provide a hint for the problem. Don't give me the solution, just the hint."
	return c.generate(ctx, []geminiContent{userTurn(prompt)})
}

func (c *GeminiClient) Quiz(ctx context.Context, text, quizType string, numQuestions int) (json.RawMessage, error) {
	if numQuestions < 1 {
		numQuestions = 5
	}
	if numQuestions > maxQuizQuestions {
		numQuestions = maxQuizQuestions
	}
	kind := "short-answer quiz"
	schema := shortSchema
	if strings.EqualFold(quizType, "mcq") {
		kind = "multiple-choice quiz"
		schema = mcqSchema
	}

	prompt := fmt.Sprintf(`You are an expert educator.
Create a %s from the following content.

Constraints:
- Number of questions: %d
- Target audience: intermediate learners
- Output MUST be strict JSON. No markdown, no commentary.
- JSON schema:
%s

Source text:
"""
%s
"""`, kind, numQuestions, schema, text)

	reply, err := c.generate(ctx, []geminiContent{userTurn(prompt)})
	if err != nil {
		return nil, err
	}

	doc := stripFences(reply)
	if !json.Valid([]byte(doc)) {
		return nil, errors.New("model returned malformed quiz json")
	}
	return json.RawMessage(doc), nil
}

func (c *GeminiClient) Chat(ctx context.Context, history []types.ChatMessage, message string) (string, error) {
	contents := make([]geminiContent, 0, len(history)+1)
	for _, msg := range history {
		role := "user"
		if msg.Role == types.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	contents = append(contents, userTurn(message))
	return c.generate(ctx, contents)
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type generateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *GeminiClient) generate(ctx context.Context, contents []geminiContent) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: contents})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling gemini: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed generateResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decoding gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("gemini: %s", parsed.Error.Message)
		}
		return "", fmt.Errorf("gemini: unexpected status %d", resp.StatusCode)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini: empty response")
	}

	var out strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}
	return out.String(), nil
}

func userTurn(text string) geminiContent {
	return geminiContent{Role: "user", Parts: []geminiPart{{Text: text}}}
}

// stripFences removes a markdown code fence if the model wrapped its
// JSON in one despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

const mcqSchema = `{
  "success": true,
  "type": "mcq",
  "questions": [
    {
      "question": string,
      "options": [string, string, string, string],
      "answerIndex": number
    }
  ]
}`

const shortSchema = `{
  "success": true,
  "type": "short",
  "questions": [
    {
      "question": string,
      "answer": string
    }
  ]
}`
