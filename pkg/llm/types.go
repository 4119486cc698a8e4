package llm

// Role identifies the author of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single text turn sent to a provider
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a user turn.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

type Model struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ContextSize int     `json:"contextSize"`
	InputCost   float64 `json:"inputCost"`  // per 1M tokens
	OutputCost  float64 `json:"outputCost"` // per 1M tokens
}

// StreamEvent represents events during message streaming
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`
	Error   error           `json:"-"`
	Done    bool            `json:"done,omitempty"`
	Usage   *Usage          `json:"usage,omitempty"`
}

type StreamEventType string

const (
	StreamEventText  StreamEventType = "text"
	StreamEventDone  StreamEventType = "done"
	StreamEventError StreamEventType = "error"
	StreamEventUsage StreamEventType = "usage"
)

// Usage tracks token usage reported by a provider
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	CacheRead    int `json:"cacheRead,omitempty"`
	CacheWrite   int `json:"cacheWrite,omitempty"`
}

// Add combines two Usage values
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheRead += other.CacheRead
	u.CacheWrite += other.CacheWrite
}
