// Package skills provides the skill catalog the task engine dispatches to.
package skills

import (
	"context"

	"github.com/joss/elf/internal/domain"
)

// Location is where a skill prefers to run.
type Location string

const (
	LocationLocal  Location = "local"
	LocationRemote Location = "remote"
)

// Descriptor describes a registered skill. It never changes after
// registration.
type Descriptor struct {
	Name                string   `json:"name"`
	HumanDescription    string   `json:"description_for_human"`
	ModelDescription    string   `json:"description_for_model"`
	Icon                string   `json:"icon"`
	RequiredCredentials []string `json:"required_credentials,omitempty"`
	Location            Location `json:"location"`
}

// Input is one skill invocation.
type Input struct {
	Task             domain.Task `json:"task"`
	DependentOutputs string      `json:"dependent_task_outputs"`
	Objective        string      `json:"objective"`
	Language         string      `json:"language,omitempty"`

	// Sink receives progress messages. It is not sent over the wire; remote
	// executions replay the messages streamed back by the server.
	Sink domain.MessageSink `json:"-"`
}

// Output is what a skill returns. Parameters, when set, are cached on the
// task so a re-run can reuse them.
type Output struct {
	Output     string             `json:"output"`
	Parameters *domain.Parameters `json:"parameters,omitempty"`
}

// Skill is a named executor.
type Skill interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, in Input) (Output, error)
}

func (in Input) language() string {
	if in.Language == "" {
		return "en"
	}
	return in.Language
}
