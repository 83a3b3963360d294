package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"caloriebuddy/backend/internal/config"
)

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type AIModelRequest struct {
	Model        string
	SystemPrompt string
	Conversation []ChatTurn
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

type AIModelResponse struct {
	Answer string
	Model  string
	Usage  AIUsage
}

type AIClient interface {
	Query(ctx context.Context, req AIModelRequest) (AIModelResponse, error)
}

type OpenAIChatClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewOpenAIChatClient(cfg config.Config) *OpenAIChatClient {
	timeoutSeconds := cfg.AITimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 20
	}
	return &OpenAIChatClient{
		apiKey:  strings.TrimSpace(cfg.OpenAIAPIKey),
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.OpenAIBaseURL), "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

func (c *OpenAIChatClient) Query(ctx context.Context, req AIModelRequest) (AIModelResponse, error) {
	if c.apiKey == "" {
		return AIModelResponse{}, errors.New("OPENAI_API_KEY is not configured")
	}
	if c.baseURL == "" {
		return AIModelResponse{}, errors.New("OPENAI_BASE_URL is not configured")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return AIModelResponse{}, errors.New("AI request model is empty")
	}

	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	messages := make([]message, 0, len(req.Conversation)+2)
	if prompt := strings.TrimSpace(req.SystemPrompt); prompt != "" {
		messages = append(messages, message{Role: "system", Content: prompt})
	}
	for _, turn := range req.Conversation {
		role := strings.ToLower(strings.TrimSpace(turn.Role))
		if role != "user" && role != "assistant" {
			continue
		}
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		messages = append(messages, message{Role: role, Content: content})
	}
	if prompt := strings.TrimSpace(req.UserPrompt); prompt != "" {
		messages = append(messages, message{Role: "user", Content: prompt})
	}
	if len(messages) == 0 {
		return AIModelResponse{}, errors.New("AI request input is empty")
	}

	payload := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	bodyRaw, err := json.Marshal(payload)
	if err != nil {
		return AIModelResponse{}, err
	}

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(bodyRaw),
	)
	if err != nil {
		return AIModelResponse{}, err
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return AIModelResponse{}, err
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return AIModelResponse{}, err
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return AIModelResponse{}, fmt.Errorf(
			"openai chat completions error (%d): %s",
			response.StatusCode,
			strings.TrimSpace(string(responseBody)),
		)
	}

	var parsed struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage AIUsage `json:"usage"`
	}
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return AIModelResponse{}, fmt.Errorf("openai chat completions response is not JSON: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return AIModelResponse{}, errors.New("openai chat completions response has no choices")
	}

	modelName := strings.TrimSpace(parsed.Model)
	if modelName == "" {
		modelName = model
	}
	return AIModelResponse{
		Answer: parsed.Choices[0].Message.Content,
		Model:  modelName,
		Usage:  parsed.Usage,
	}, nil
}

// MockAIClient answers without any upstream call. The parser prompt is served
// from the static calorie table, so the whole pipeline works offline in tests
// and keyless local runs.
type MockAIClient struct{}

func (m MockAIClient) Query(_ context.Context, req AIModelRequest) (AIModelResponse, error) {
	usage := AIUsage{PromptTokens: 40, CompletionTokens: 20, TotalTokens: 60}

	if strings.Contains(req.SystemPrompt, "nutrition data parser") {
		fragment := strings.ToLower(strings.TrimSpace(req.UserPrompt))
		for _, name := range mockFoodNames() {
			if strings.Contains(fragment, name) {
				answer := fmt.Sprintf(
					`{"food":%q,"quantity":1,"unit":"piece","calories":%d}`,
					name,
					foodCalories[name],
				)
				return AIModelResponse{Answer: answer, Model: "mock", Usage: usage}, nil
			}
		}
		return AIModelResponse{Answer: `{"food":null}`, Model: "mock", Usage: usage}, nil
	}

	return AIModelResponse{
		Answer: "Got it! Keep me posted on your next meal 🍎",
		Model:  "mock",
		Usage:  usage,
	}, nil
}

// Longest names first so "falafel sandwich" wins over "sandwich"-style overlaps.
func mockFoodNames() []string {
	names := make([]string, 0, len(foodCalories))
	for name := range foodCalories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}
