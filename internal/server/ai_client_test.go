package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"caloriebuddy/backend/internal/config"
)

func newUpstream(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func openAIClientFor(baseURL string) *OpenAIChatClient {
	return NewOpenAIChatClient(config.Config{
		OpenAIAPIKey:     "sk-test",
		OpenAIBaseURL:    baseURL,
		AITimeoutSeconds: 5,
	})
}

func TestOpenAIClientSendsChatCompletionRequest(t *testing.T) {
	var captured map[string]any
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-mini-2024",
			"choices": [{"message": {"content": "Hello there!"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	})

	client := openAIClientFor(upstream.URL)
	resp, err := client.Query(context.Background(), AIModelRequest{
		Model:        "gpt-4o-mini",
		SystemPrompt: "be brief",
		Conversation: []ChatTurn{
			{Role: "user", Content: "hi"},
			{Role: "tool", Content: "ignored"},
			{Role: "assistant", Content: "  "},
		},
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	if resp.Answer != "Hello there!" {
		t.Fatalf("unexpected answer %q", resp.Answer)
	}
	if resp.Model != "gpt-4o-mini-2024" {
		t.Fatalf("expected upstream model name kept, got %q", resp.Model)
	}
	if resp.Usage.TotalTokens != 16 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}

	if captured["model"] != "gpt-4o-mini" {
		t.Fatalf("unexpected model in payload: %v", captured["model"])
	}
	if captured["temperature"] != 0.7 {
		t.Fatalf("unexpected temperature: %v", captured["temperature"])
	}
	if captured["max_tokens"] != float64(200) {
		t.Fatalf("unexpected max_tokens: %v", captured["max_tokens"])
	}
	messages, ok := captured["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("expected system turn plus one valid user turn, got %v", captured["messages"])
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "be brief" {
		t.Fatalf("unexpected first message: %v", first)
	}
}

func TestOpenAIClientAppendsUserPrompt(t *testing.T) {
	var captured map[string]any
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "{\"food\":null}"}}]}`))
	})

	client := openAIClientFor(upstream.URL)
	resp, err := client.Query(context.Background(), AIModelRequest{
		Model:        "gpt-4o",
		SystemPrompt: parserSystemPrompt,
		UserPrompt:   "a banana",
		Temperature:  0.15,
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if resp.Model != "gpt-4o" {
		t.Fatalf("expected request model as fallback name, got %q", resp.Model)
	}

	messages, _ := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system + user prompt, got %v", captured["messages"])
	}
	last, _ := messages[len(messages)-1].(map[string]any)
	if last["role"] != "user" || last["content"] != "a banana" {
		t.Fatalf("unexpected trailing message: %v", last)
	}
	if _, sent := captured["max_tokens"]; sent {
		t.Fatalf("expected max_tokens omitted when unset, payload %v", captured)
	}
}

func TestOpenAIClientUpstreamErrors(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	})

	client := openAIClientFor(upstream.URL)
	_, err := client.Query(context.Background(), AIModelRequest{
		Model:      "gpt-4o",
		UserPrompt: "hi",
	})
	if err == nil {
		t.Fatalf("expected error on 429")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected status and body in error, got %v", err)
	}
}

func TestOpenAIClientRejectsEmptyChoices(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	})

	client := openAIClientFor(upstream.URL)
	_, err := client.Query(context.Background(), AIModelRequest{Model: "gpt-4o", UserPrompt: "hi"})
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Fatalf("expected no-choices error, got %v", err)
	}
}

func TestOpenAIClientValidatesConfiguration(t *testing.T) {
	client := NewOpenAIChatClient(config.Config{OpenAIBaseURL: "https://example.test"})
	if _, err := client.Query(context.Background(), AIModelRequest{Model: "gpt-4o", UserPrompt: "hi"}); err == nil {
		t.Fatalf("expected error without API key")
	}

	client = NewOpenAIChatClient(config.Config{OpenAIAPIKey: "sk-test", OpenAIBaseURL: "https://example.test"})
	if _, err := client.Query(context.Background(), AIModelRequest{UserPrompt: "hi"}); err == nil {
		t.Fatalf("expected error without model")
	}
	if _, err := client.Query(context.Background(), AIModelRequest{Model: "gpt-4o"}); err == nil {
		t.Fatalf("expected error without any input")
	}
}

func TestMockAIClientParsesKnownFoods(t *testing.T) {
	mock := MockAIClient{}

	resp, err := mock.Query(context.Background(), AIModelRequest{
		SystemPrompt: parserSystemPrompt,
		UserPrompt:   "I had a falafel sandwich",
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	parsed, ok := decodeExtractionJSON(resp.Answer)
	if !ok || parsed.Food == nil || *parsed.Food != "falafel sandwich" {
		t.Fatalf("expected falafel sandwich, got %+v", parsed)
	}
	if parsed.Calories == nil || *parsed.Calories != foodCalories["falafel sandwich"] {
		t.Fatalf("unexpected calories: %+v", parsed.Calories)
	}
}

func TestMockAIClientUnknownFoodReturnsNull(t *testing.T) {
	mock := MockAIClient{}

	resp, err := mock.Query(context.Background(), AIModelRequest{
		SystemPrompt: parserSystemPrompt,
		UserPrompt:   "a plate of zorgonite",
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	parsed, ok := decodeExtractionJSON(resp.Answer)
	if !ok {
		t.Fatalf("expected decodable answer, got %q", resp.Answer)
	}
	if parsed.Food != nil {
		t.Fatalf("expected null food, got %+v", parsed.Food)
	}
}

func TestMockAIClientPersonaReply(t *testing.T) {
	mock := MockAIClient{}

	resp, err := mock.Query(context.Background(), AIModelRequest{
		SystemPrompt: personaSystemPrompt,
		Conversation: []ChatTurn{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if strings.TrimSpace(resp.Answer) == "" {
		t.Fatalf("expected non-empty persona reply")
	}
	if resp.Model != "mock" {
		t.Fatalf("unexpected model %q", resp.Model)
	}
}
