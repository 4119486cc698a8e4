// Package tokens provides token counting using tiktoken-go.
// Used to log prompt sizes and to keep accumulated notes inside a model's context.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/joss/elf/pkg/llm"
)

// Counter counts tokens with the cl100k_base encoding.
type Counter struct {
	enc  *tiktoken.Tiktoken
	once sync.Once
	err  error
}

var defaultCounter = &Counter{}

// Count returns the number of tokens in text.
func Count(text string) int {
	return defaultCounter.Count(text)
}

// CountMessages returns total tokens for a slice of chat messages.
func CountMessages(msgs []llm.Message) int {
	return defaultCounter.CountMessages(msgs)
}

// TruncateTail keeps the last max tokens of text.
func TruncateTail(text string, max int) string {
	return defaultCounter.TruncateTail(text, max)
}

func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.init()
	if c.err != nil || c.enc == nil {
		// Encoding unavailable (offline): 4 bytes per token
		return (len(text) + 3) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *Counter) CountMessages(msgs []llm.Message) int {
	total := 0
	for _, msg := range msgs {
		// role + framing overhead
		total += 4 + c.Count(msg.Content)
	}
	return total
}

// TruncateTail drops leading text so that at most max tokens remain.
func (c *Counter) TruncateTail(text string, max int) string {
	if max <= 0 {
		return ""
	}
	c.init()
	if c.err != nil || c.enc == nil {
		limit := max * 4
		if len(text) <= limit {
			return text
		}
		return text[len(text)-limit:]
	}
	ids := c.enc.Encode(text, nil, nil)
	if len(ids) <= max {
		return text
	}
	return c.enc.Decode(ids[len(ids)-max:])
}

func (c *Counter) init() {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding("cl100k_base")
	})
}
