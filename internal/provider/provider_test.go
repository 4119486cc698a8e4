package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/elf/pkg/llm"
)

func collect(t *testing.T, events <-chan llm.StreamEvent) (string, *llm.Usage, error) {
	t.Helper()
	var sb strings.Builder
	var usage *llm.Usage
	var streamErr error
	for ev := range events {
		switch ev.Type {
		case llm.StreamEventText:
			sb.WriteString(ev.Content)
		case llm.StreamEventUsage:
			usage = ev.Usage
		case llm.StreamEventError:
			streamErr = ev.Error
		}
	}
	return sb.String(), usage, streamErr
}

func TestOpenAIChat_Streams(t *testing.T) {
	var captured openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"Hello"}}]}` + "\n\n"))
		w.Write([]byte(`data: {"choices":[{"delta":{"content":" world"}}]}` + "\n\n"))
		w.Write([]byte(`data: {"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":2}}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	p := NewOpenAI("test-key", server.URL)
	events, err := p.Chat(context.Background(), &llm.ChatRequest{
		Model:        "gpt-4o",
		SystemPrompt: "be brief",
		Messages:     []llm.Message{llm.UserMessage("Hi")},
		MaxTokens:    800,
		Temperature:  0,
		TopP:         1,
	})
	require.NoError(t, err)

	text, usage, streamErr := collect(t, events)
	require.NoError(t, streamErr)
	assert.Equal(t, "Hello world", text)
	require.NotNil(t, usage)
	assert.Equal(t, 12, usage.InputTokens)

	assert.Equal(t, "gpt-4o", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, 800, captured.MaxTokens)
	require.NotNil(t, captured.Temperature)
	assert.Equal(t, 0.0, *captured.Temperature)
	assert.Equal(t, 1.0, captured.TopP)
	assert.True(t, captured.Stream)
}

func TestOpenAIChat_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer server.Close()

	p := NewOpenAI("bad-key", server.URL)
	_, err := p.Chat(context.Background(), &llm.ChatRequest{
		Model:    "gpt-4o",
		Messages: []llm.Message{llm.UserMessage("Hi")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestOpenAIBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{"empty uses default", "", "https://api.openai.com/v1/chat/completions"},
		{"adds /v1/chat/completions", "http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"adds /chat/completions to /v1", "http://localhost:8080/v1", "http://localhost:8080/v1/chat/completions"},
		{"removes trailing slash", "http://localhost:8080/v1/", "http://localhost:8080/v1/chat/completions"},
		{"keeps full path", "http://localhost:8080/v1/chat/completions", "http://localhost:8080/v1/chat/completions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewOpenAI("key", tt.baseURL)
			assert.Equal(t, tt.want, p.baseURL)
		})
	}
}

func TestAnthropicChat_Streams(t *testing.T) {
	var captured anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("event: message_start\n"))
		w.Write([]byte(`data: {"type":"message_start","message":{"usage":{"input_tokens":30,"output_tokens":0}}}` + "\n\n"))
		w.Write([]byte("event: ping\n"))
		w.Write([]byte(`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"[1,2]"}}` + "\n\n"))
		w.Write([]byte(`data: {"type":"message_delta","delta":{},"usage":{"output_tokens":4}}` + "\n\n"))
		w.Write([]byte(`data: {"type":"message_stop"}` + "\n\n"))
	}))
	defer server.Close()

	p := NewAnthropic("test-key", server.URL+"/v1")
	events, err := p.Chat(context.Background(), &llm.ChatRequest{
		Model: "claude-sonnet-4-20250514",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "system text"},
			llm.UserMessage("list ids"),
		},
		Temperature: 0.7,
		MaxTokens:   1500,
	})
	require.NoError(t, err)

	text, usage, streamErr := collect(t, events)
	require.NoError(t, streamErr)
	assert.Equal(t, "[1,2]", text)
	require.NotNil(t, usage)
	assert.Equal(t, 30, usage.InputTokens)
	assert.Equal(t, 4, usage.OutputTokens)

	assert.Equal(t, "system text", captured.System)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, 1500, captured.MaxTokens)
}

func TestAnthropicChat_StreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}` + "\n\n"))
	}))
	defer server.Close()

	p := NewAnthropic("k", server.URL)
	events, err := p.Chat(context.Background(), &llm.ChatRequest{Messages: []llm.Message{llm.UserMessage("x")}})
	require.NoError(t, err)

	_, _, streamErr := collect(t, events)
	require.Error(t, streamErr)
	assert.Contains(t, streamErr.Error(), "overloaded_error")
}

func TestAnthropicBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{"empty uses default", "", "https://api.anthropic.com/v1/messages"},
		{"adds /messages", "http://localhost:8080", "http://localhost:8080/messages"},
		{"adds /messages to /v1", "http://localhost:8080/v1", "http://localhost:8080/v1/messages"},
		{"removes trailing slash", "http://localhost:8080/", "http://localhost:8080/messages"},
		{"keeps full path", "http://localhost:8080/v1/messages", "http://localhost:8080/v1/messages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewAnthropic("key", tt.baseURL)
			assert.Equal(t, tt.want, p.baseURL)
		})
	}
}

func TestFactory_CreateByID(t *testing.T) {
	f := NewFactory()

	tests := []struct {
		id      string
		wantID  string
		wantErr bool
	}{
		{"anthropic", "anthropic", false},
		{"claude", "anthropic", false},
		{"openai", "openai", false},
		{"gpt", "openai", false},
		{"unknown", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, err := f.CreateByID(tt.id, WithAPIKey("test"))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, p.ID())
		})
	}
}

func TestFactory_Caching(t *testing.T) {
	f := NewFactory()

	p1, _ := f.Create(ProviderAnthropic, WithAPIKey("same-key"))
	p2, _ := f.Create(ProviderAnthropic, WithAPIKey("same-key"))
	assert.Same(t, p1, p2)

	p3, _ := f.Create(ProviderAnthropic, WithAPIKey("diff-key1"))
	assert.NotSame(t, p1, p3)
}

type countingClient struct {
	inner HTTPClient
	calls int
}

func (c *countingClient) Do(req *http.Request) (*http.Response, error) {
	c.calls++
	return c.inner.Do(req)
}

func TestFactory_WithHTTPClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"ok"}}]}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := &countingClient{inner: server.Client()}
	p, err := NewFactory().Create(ProviderOpenAI,
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithHTTPClient(client),
	)
	require.NoError(t, err)

	events, err := p.Chat(context.Background(), &llm.ChatRequest{Model: "gpt-4o", Messages: []llm.Message{llm.UserMessage("Hi")}})
	require.NoError(t, err)
	text, _, streamErr := collect(t, events)
	require.NoError(t, streamErr)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 1, client.calls)
}

type stubProvider struct{ id string }

func (s *stubProvider) ID() string          { return s.id }
func (s *stubProvider) Name() string        { return s.id }
func (s *stubProvider) Models() []llm.Model { return nil }
func (s *stubProvider) Chat(context.Context, *llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	return nil, nil
}

func TestFactory_Register(t *testing.T) {
	f := NewFactory()
	f.Register(ProviderType("local"), func(cfg Config) llm.Provider {
		return &stubProvider{id: "local"}
	})

	p, err := f.CreateByID("local")
	require.NoError(t, err)
	assert.Equal(t, "local", p.ID())
}
