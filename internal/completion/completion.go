// Package completion is the text-in/text-out gateway every prompt in the
// agent goes through. It sits on top of a streaming llm.Provider.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joss/elf/internal/logging"
	"github.com/joss/elf/internal/tokens"
	"github.com/joss/elf/pkg/llm"
)

// ErrCancelled reports that a call ended because its context was done.
var ErrCancelled = errors.New("completion cancelled")

// IsCancelled reports whether err is (or wraps) a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Params are the sampling parameters of one call.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
	TopP        float64
	Stream      bool
}

// Request is one completion call.
type Request struct {
	System string
	Prompt string
	Params Params

	// OnToken receives incremental text when Params.Stream is set.
	OnToken func(token string)
}

// Gateway submits a prompt and returns the model's text.
type Gateway interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client implements Gateway over a provider.
type Client struct {
	provider     llm.Provider
	defaultModel string
	log          *logging.Logger
}

func NewClient(provider llm.Provider, defaultModel string) *Client {
	return &Client{
		provider:     provider,
		defaultModel: defaultModel,
		log:          logging.New("completion"),
	}
}

// Complete drains the provider stream. A context that ends mid-stream
// yields ErrCancelled, never a partial answer.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	model := req.Params.Model
	if model == "" {
		model = c.defaultModel
	}

	chatReq := &llm.ChatRequest{
		Model:        model,
		Messages:     []llm.Message{llm.UserMessage(req.Prompt)},
		SystemPrompt: req.System,
		MaxTokens:    req.Params.MaxTokens,
		Temperature:  req.Params.Temperature,
		TopP:         req.Params.TopP,
	}

	log := c.log.WithRun(logging.GetRunID(ctx))
	start := time.Now()
	promptTokens := tokens.CountMessages(chatReq.Messages) + tokens.Count(req.System)

	events, err := c.provider.Chat(ctx, chatReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		log.Error("chat_failed", map[string]interface{}{"model": model}, err)
		return "", fmt.Errorf("chat %s: %w", model, err)
	}

	var sb strings.Builder
	var usage llm.Usage
	for {
		select {
		case <-ctx.Done():
			go drain(events)
			return "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
				}
				c.logDone(log, start, model, promptTokens, usage)
				return sb.String(), nil
			}
			switch ev.Type {
			case llm.StreamEventText:
				sb.WriteString(ev.Content)
				if req.Params.Stream && req.OnToken != nil {
					req.OnToken(ev.Content)
				}
			case llm.StreamEventUsage:
				if ev.Usage != nil {
					usage.Add(*ev.Usage)
				}
			case llm.StreamEventError:
				go drain(events)
				if ctx.Err() != nil {
					return "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
				}
				log.Error("stream_failed", map[string]interface{}{"model": model}, ev.Error)
				return "", fmt.Errorf("stream %s: %w", model, ev.Error)
			case llm.StreamEventDone:
				go drain(events)
				c.logDone(log, start, model, promptTokens, usage)
				return sb.String(), nil
			}
		}
	}
}

func (c *Client) logDone(log *logging.Logger, start time.Time, model string, promptTokens int, usage llm.Usage) {
	log.TimedEvent("complete", start, map[string]interface{}{
		"model":         model,
		"prompt_tokens": promptTokens,
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
	})
}

func drain(events <-chan llm.StreamEvent) {
	for range events {
	}
}

var _ Gateway = (*Client)(nil)
