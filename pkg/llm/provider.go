package llm

import (
	"context"
	"sort"
)

// Provider is the interface all LLM providers must implement
type Provider interface {
	ID() string
	Name() string
	Models() []Model

	// Chat sends messages and returns a streaming response
	Chat(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)
}

// ChatRequest represents a request to the LLM
type ChatRequest struct {
	Model        string
	Messages     []Message
	MaxTokens    int
	Temperature  float64
	TopP         float64
	SystemPrompt string
}

// ProviderRegistry holds all available providers
type ProviderRegistry struct {
	providers map[string]Provider
}

func NewRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]Provider),
	}
}

func (r *ProviderRegistry) Register(p Provider) {
	r.providers[p.ID()] = p
}

func (r *ProviderRegistry) Get(id string) (Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// List returns providers sorted by ID.
func (r *ProviderRegistry) List() []Provider {
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}
