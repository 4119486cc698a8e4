// Package testutil provides scripted collaborators for engine, pipeline and
// skill tests: a mock chat provider, a rule-driven completion gateway and
// message recorders.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joss/elf/internal/completion"
	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/pkg/llm"
)

// WriteFile creates a file with the given content in dir, creating parents.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// MockProvider replays scripted stream events, one script per Chat call.
type MockProvider struct {
	responses [][]llm.StreamEvent
	requests  []*llm.ChatRequest
	mu        sync.Mutex

	// Block makes Chat hold the stream open until the context ends.
	Block bool
}

func NewMockProvider(responses ...[]llm.StreamEvent) *MockProvider {
	return &MockProvider{responses: responses}
}

// TextResponse scripts a stream that yields the given chunks then done.
func TextResponse(chunks ...string) []llm.StreamEvent {
	events := make([]llm.StreamEvent, 0, len(chunks)+1)
	for _, c := range chunks {
		events = append(events, llm.StreamEvent{Type: llm.StreamEventText, Content: c})
	}
	return append(events, llm.StreamEvent{Type: llm.StreamEventDone, Done: true})
}

func (m *MockProvider) ID() string   { return "mock" }
func (m *MockProvider) Name() string { return "Mock" }
func (m *MockProvider) Models() []llm.Model {
	return []llm.Model{{ID: "mock", Name: "Mock Model"}}
}

func (m *MockProvider) Chat(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	m.mu.Lock()
	idx := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	events := make(chan llm.StreamEvent, 100)
	go func() {
		defer close(events)
		if idx < len(m.responses) {
			for _, event := range m.responses[idx] {
				if m.Block && event.Type == llm.StreamEventDone {
					break
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
		if m.Block {
			<-ctx.Done()
		}
	}()
	return events, nil
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns the chat requests received so far.
func (m *MockProvider) Requests() []*llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.ChatRequest(nil), m.requests...)
}

var _ llm.Provider = (*MockProvider)(nil)

// Rule answers a completion whose prompt contains Match. Rules are tried in
// order; a rule with Times > 0 is used at most that many times.
type Rule struct {
	Match string
	Reply string
	Err   error
	Times int

	// Before runs ahead of the reply, e.g. to cancel a run mid-call.
	Before func(ctx context.Context, req completion.Request)

	used int
}

// Gateway is a scripted completion.Gateway.
type Gateway struct {
	mu       sync.Mutex
	rules    []*Rule
	calls    []completion.Request
	Fallback string
}

func NewGateway(rules ...Rule) *Gateway {
	g := &Gateway{}
	for i := range rules {
		r := rules[i]
		g.rules = append(g.rules, &r)
	}
	return g
}

// On appends a rule.
func (g *Gateway) On(match, reply string) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, &Rule{Match: match, Reply: reply})
	return g
}

func (g *Gateway) Complete(ctx context.Context, req completion.Request) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	var rule *Rule
	for _, r := range g.rules {
		if !strings.Contains(req.Prompt, r.Match) {
			continue
		}
		if r.Times > 0 && r.used >= r.Times {
			continue
		}
		r.used++
		rule = r
		break
	}
	g.mu.Unlock()

	if rule != nil && rule.Before != nil {
		rule.Before(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return "", completion.ErrCancelled
	}
	if rule == nil {
		return g.Fallback, nil
	}
	if rule.Err != nil {
		return "", rule.Err
	}
	if req.Params.Stream && req.OnToken != nil {
		req.OnToken(rule.Reply)
	}
	return rule.Reply, nil
}

// Calls returns every request received so far.
func (g *Gateway) Calls() []completion.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]completion.Request(nil), g.calls...)
}

// CallsMatching counts requests whose prompt contains substr.
func (g *Gateway) CallsMatching(substr string) int {
	n := 0
	for _, c := range g.Calls() {
		if strings.Contains(c.Prompt, substr) {
			n++
		}
	}
	return n
}

var _ completion.Gateway = (*Gateway)(nil)

// Messages records messages delivered to a sink.
type Messages struct {
	mu   sync.Mutex
	list []domain.Message
}

func (m *Messages) Sink() domain.MessageSink {
	return func(msg domain.Message) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.list = append(m.list, msg)
	}
}

func (m *Messages) All() []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message(nil), m.list...)
}

// OfType returns recorded messages of the given type.
func (m *Messages) OfType(typ domain.MessageType) []domain.Message {
	var out []domain.Message
	for _, msg := range m.All() {
		if msg.Type == typ {
			out = append(out, msg)
		}
	}
	return out
}
