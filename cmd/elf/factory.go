package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joss/elf/internal/completion"
	"github.com/joss/elf/internal/config"
	"github.com/joss/elf/internal/docstore"
	"github.com/joss/elf/internal/examples"
	"github.com/joss/elf/internal/extract"
	"github.com/joss/elf/internal/graph"
	"github.com/joss/elf/internal/provider"
	"github.com/joss/elf/internal/search"
	"github.com/joss/elf/internal/skills"
	"github.com/joss/elf/internal/tasks"
	"github.com/joss/elf/internal/vector"
)

// stores are the document-side collaborators: enough for ingest.
type stores struct {
	embedder vector.Embedder
	index    vector.Index
	docs     *docstore.SQLiteRepository
	objects  *docstore.FSObjectStore
}

func openStores(ctx context.Context, env *config.ElfEnv) (*stores, error) {
	paths := config.GetPaths()

	index, err := openIndex(ctx, env, paths)
	if err != nil {
		return nil, err
	}
	docs, err := docstore.OpenSQLite(env.DocsDB)
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("open document store: %w", err)
	}
	return &stores{
		embedder: vector.NewEmbedder(env),
		index:    index,
		docs:     docs,
		objects:  docstore.NewFSObjectStore(env.ObjectsDir),
	}, nil
}

func openIndex(ctx context.Context, env *config.ElfEnv, paths *config.Paths) (vector.Index, error) {
	switch env.VectorBackend {
	case "memgraph", "neo4j":
		db, err := graph.ConnectWithRetry(ctx, graph.ConfigFromEnv(env), 3)
		if err != nil {
			return nil, fmt.Errorf("connect vector graph: %w", err)
		}
		return vector.NewMemgraphStore(db), nil
	default:
		index, err := vector.NewLanceStore(paths.Vectors)
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		return index, nil
	}
}

func (s *stores) Close() {
	s.index.Close()
	s.docs.Close()
}

func (s *stores) searchStore() search.Store {
	return search.Store{Embedder: s.embedder, Index: s.index, Repo: s.docs, Objects: s.objects}
}

// providerClient bounds the wait for response headers only; completion
// bodies stream for as long as the model writes.
func providerClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 2 * time.Minute
	return &http.Client{Transport: transport}
}

// app is the fully wired agent.
type app struct {
	*stores
	env      *config.ElfEnv
	model    string
	gateway  completion.Gateway
	selector *examples.Selector
	skills   *skills.Registry
	// local runs every skill in-process; executor routes remote-tagged
	// skills to ELF_REMOTE_URL when one is configured.
	local    *skills.Dispatcher
	executor *skills.Dispatcher
	tasks    *tasks.Registry
}

// newApp wires the agent. model overrides the configured model when set.
func newApp(ctx context.Context, model string) (*app, error) {
	env := config.Env()
	if model == "" {
		model = env.Model
	}

	llm, err := provider.Default.CreateByID(env.Provider,
		provider.WithAPIKey(env.APIKey()),
		provider.WithBaseURL(env.BaseURL()),
		provider.WithHTTPClient(providerClient()),
	)
	if err != nil {
		return nil, err
	}
	gateway := completion.NewClient(llm, model)

	st, err := openStores(ctx, env)
	if err != nil {
		return nil, err
	}

	selector, err := examples.NewSelector(st.embedder)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load examples: %w", err)
	}

	root, err := os.Getwd()
	if err != nil {
		root = "."
	}
	extractor := extract.New(gateway, model)

	registry := skills.NewRegistry(env.Credentials())
	err = registry.Register(
		skills.NewTextCompletion(gateway, model),
		skills.NewDirectoryStructure(root, skills.DefaultIgnore),
		search.NewFilingSearch(search.Deps{
			Gateway:   gateway,
			Model:     model,
			Selector:  selector,
			Extractor: extractor,
			Source:    search.NewFilingSource(st.searchStore()),
		}),
		search.NewTranscriptSearch(search.Deps{
			Gateway:   gateway,
			Model:     model,
			Selector:  selector,
			Extractor: extractor,
			Source:    search.NewTranscriptSource(st.searchStore()),
		}),
	)
	if err != nil {
		st.Close()
		return nil, err
	}

	local := skills.NewDispatcher(registry, nil)
	executor := local
	if env.RemoteURL != "" {
		executor = skills.NewDispatcher(registry, skills.NewRemoteExecutor(env.RemoteURL))
	}

	return &app{
		stores:   st,
		env:      env,
		model:    model,
		gateway:  gateway,
		selector: selector,
		skills:   registry,
		local:    local,
		executor: executor,
		tasks:    tasks.NewRegistry(gateway, model, selector, registry, executor),
	}, nil
}
