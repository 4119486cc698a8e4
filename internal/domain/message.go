package domain

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// MessageType classifies a message in a run's log.
type MessageType string

const (
	MessageObjective      MessageType = "objective"
	MessageTaskList       MessageType = "task-list"
	MessageNextTask       MessageType = "next-task"
	MessageTaskExecute    MessageType = "task-execute"
	MessageTaskOutput     MessageType = "task-output"
	MessageTaskParameters MessageType = "task-parameters"
	MessageSearchLogs     MessageType = "search-logs"
	MessageReflection     MessageType = "reflection"
	MessageDone           MessageType = "done"
	MessageFailed         MessageType = "failed"
)

// Message is an appendable log entry: a title plus a markdown body.
// Messages with the same ID replace each other when rendered, which is how
// streamed text and cumulative search logs update in place.
type Message struct {
	ID     string      `json:"id"`
	TaskID int         `json:"task_id,omitempty"`
	Type   MessageType `json:"type"`
	Title  string      `json:"title,omitempty"`
	Text   string      `json:"text"`
	Icon   string      `json:"icon,omitempty"`
	Open   bool        `json:"open,omitempty"`
	Time   time.Time   `json:"time"`
}

// MessageSink receives messages in the order operations complete.
type MessageSink func(Message)

// NewMessage stamps a message with a fresh ULID and the current time.
func NewMessage(typ MessageType, taskID int, title, text, icon string) Message {
	return Message{
		ID:     ulid.Make().String(),
		TaskID: taskID,
		Type:   typ,
		Title:  title,
		Text:   text,
		Icon:   icon,
		Time:   time.Now().UTC(),
	}
}

// Emit delivers m if the sink is set.
func (s MessageSink) Emit(m Message) {
	if s != nil {
		s(m)
	}
}
