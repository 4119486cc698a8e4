package skills

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

// ErrUnknownSkill indicates no skill is registered under a name.
var ErrUnknownSkill = errors.New("unknown skill")

// UnknownSkillError wraps ErrUnknownSkill with close matches.
type UnknownSkillError struct {
	Name        string
	Suggestions []string
}

func (e *UnknownSkillError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown skill: %s", e.Name)
	}
	return fmt.Sprintf("unknown skill: %s (did you mean %s?)", e.Name, strings.Join(e.Suggestions, ", "))
}

func (e *UnknownSkillError) Unwrap() error {
	return ErrUnknownSkill
}

// Registry maps skill names to implementations. It is filled once at
// startup and only read afterwards.
type Registry struct {
	skills      map[string]Skill
	order       []string
	credentials map[string]bool
}

// NewRegistry creates a registry that treats creds as the available
// credentials.
func NewRegistry(creds []string) *Registry {
	r := &Registry{
		skills:      make(map[string]Skill),
		credentials: make(map[string]bool, len(creds)),
	}
	for _, c := range creds {
		r.credentials[c] = true
	}
	return r
}

// Register adds skills in order. Names must be unique.
func (r *Registry) Register(skills ...Skill) error {
	for _, s := range skills {
		name := s.Descriptor().Name
		if name == "" {
			return errors.New("skill has no name")
		}
		if _, ok := r.skills[name]; ok {
			return fmt.Errorf("skill %s already registered", name)
		}
		r.skills[name] = s
		r.order = append(r.order, name)
	}
	return nil
}

// Get returns the skill registered under name.
func (r *Registry) Get(name string) (Skill, error) {
	if s, ok := r.skills[name]; ok {
		return s, nil
	}
	return nil, &UnknownSkillError{Name: name, Suggestions: r.suggest(name)}
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.skills[name]
	return ok
}

func (r *Registry) suggest(name string) []string {
	if name == "" {
		return nil
	}
	matches := fuzzy.Find(name, r.order)
	out := make([]string, 0, 3)
	for _, m := range matches {
		out = append(out, m.Str)
		if len(out) == cap(out) {
			break
		}
	}
	return out
}

// Valid reports whether every credential the skill requires is available.
func (r *Registry) Valid(d Descriptor) bool {
	for _, c := range d.RequiredCredentials {
		if !r.credentials[c] {
			return false
		}
	}
	return true
}

// List returns descriptors in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.skills[name].Descriptor())
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// CatalogDescription lists the usable skills for prompts, one
// "name: description" line each. Skills missing a credential are left out
// so the planner cannot pick them.
func (r *Registry) CatalogDescription() string {
	var lines []string
	for _, d := range r.List() {
		if !r.Valid(d) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", d.Name, d.ModelDescription))
	}
	return strings.Join(lines, "\n")
}
