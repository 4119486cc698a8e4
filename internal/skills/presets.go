package skills

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/joss/elf/internal/completion"
	"github.com/joss/elf/internal/config"
)

// TextCompletion answers a task with one completion over the dependent
// task outputs.
type TextCompletion struct {
	gateway completion.Gateway
	model   string
}

func NewTextCompletion(gateway completion.Gateway, model string) *TextCompletion {
	return &TextCompletion{gateway: gateway, model: model}
}

func (s *TextCompletion) Descriptor() Descriptor {
	return Descriptor{
		Name:                "text_completion",
		HumanDescription:    "A tool that uses a language model's text completion API to generate, summarize, and/or analyze text.",
		ModelDescription:    "A tool that uses a language model's text completion API to generate, summarize, and/or analyze text.",
		Icon:                "🤖",
		RequiredCredentials: []string{config.CredentialLLM},
		Location:            LocationLocal,
	}
}

func (s *TextCompletion) Execute(ctx context.Context, in Input) (Output, error) {
	prompt := fmt.Sprintf("Complete your assigned task based on the objective and only based on information provided in the dependent task output, if provided. \n###\n"+
		"Output must be answered in %s.\n"+
		"TASK=%s\n"+
		"OBJECTIVE=%s\n"+
		"DEPENDENT TASK OUTPUT=%s\n"+
		"RESPONSE=\n", in.language(), in.Task.Task, in.Objective, in.DependentOutputs)

	text, err := s.gateway.Complete(ctx, completion.Request{
		Prompt: prompt,
		Params: completion.Params{
			Model:       s.model,
			Temperature: 0.2,
			MaxTokens:   800,
			TopP:        1,
		},
	})
	if err != nil {
		return Output{}, err
	}
	return Output{Output: text}, nil
}

// DefaultIgnore keeps version control and dependency trees out of
// directory listings.
var DefaultIgnore = []string{"**/.git", "**/node_modules", "**/vendor", "**/_examples"}

// maxTreeEntries bounds the listing so a huge tree cannot flood a prompt.
const maxTreeEntries = 2000

// DirectoryStructure lists the tree under a root directory.
type DirectoryStructure struct {
	root   string
	ignore []string
}

func NewDirectoryStructure(root string, ignore []string) *DirectoryStructure {
	if ignore == nil {
		ignore = DefaultIgnore
	}
	return &DirectoryStructure{root: root, ignore: ignore}
}

func (s *DirectoryStructure) Descriptor() Descriptor {
	return Descriptor{
		Name:             "directory_structure",
		HumanDescription: fmt.Sprintf("A skill that outputs the directory structure of the '%s' folder.", path.Base(s.root)),
		ModelDescription: fmt.Sprintf("A skill that outputs the directory structure of the '%s' folder.", path.Base(s.root)),
		Icon:             "📂",
		Location:         LocationLocal,
	}
}

func (s *DirectoryStructure) Execute(ctx context.Context, in Input) (Output, error) {
	tree, err := s.Tree(ctx)
	if err != nil {
		return Output{}, err
	}
	return Output{Output: tree}, nil
}

// Tree renders one line per entry in path order, indented two spaces per
// level, with a trailing slash on directories.
func (s *DirectoryStructure) Tree(ctx context.Context) (string, error) {
	type entry struct {
		parts []string
		dir   bool
	}
	var entries []entry

	err := doublestar.GlobWalk(os.DirFS(s.root), "**", func(p string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		if s.ignored(p) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		entries = append(entries, entry{parts: strings.Split(p, "/"), dir: d.IsDir()})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", s.root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return slices.Compare(entries[i].parts, entries[j].parts) < 0
	})

	var b strings.Builder
	for i, e := range entries {
		if i == maxTreeEntries {
			fmt.Fprintf(&b, "... truncated after %d entries\n", maxTreeEntries)
			break
		}
		b.WriteString(strings.Repeat("  ", len(e.parts)-1))
		b.WriteString(e.parts[len(e.parts)-1])
		if e.dir {
			b.WriteByte('/')
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// ignored reports whether p or any of its parent directories matches an
// ignore pattern.
func (s *DirectoryStructure) ignored(p string) bool {
	for {
		for _, pattern := range s.ignore {
			if ok, _ := doublestar.Match(pattern, p); ok {
				return true
			}
		}
		parent := path.Dir(p)
		if parent == "." || parent == p {
			return false
		}
		p = parent
	}
}
