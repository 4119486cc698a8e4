// Package graph wraps the bolt driver used by the graph-backed similarity index.
package graph

import (
	"context"

	"github.com/joss/elf/internal/config"
)

// Record represents a single result row from a query.
type Record map[string]any

// Reader runs read queries.
type Reader interface {
	Execute(ctx context.Context, query string, params map[string]any) ([]Record, error)
}

// Writer runs write queries (CREATE, MERGE, SET, DELETE).
type Writer interface {
	ExecuteWrite(ctx context.Context, query string, params map[string]any) error
}

// Driver is the full graph database surface. Memgraph and Neo4j both satisfy it.
type Driver interface {
	Reader
	Writer
	Close() error
	Ping(ctx context.Context) error
}

// Config holds database connection configuration.
type Config struct {
	URI      string
	Username string
	Password string
}

// ConfigFromEnv builds a Config from the NEO4J_* settings.
func ConfigFromEnv(env *config.ElfEnv) Config {
	return Config{
		URI:      env.Neo4jURI,
		Username: env.Neo4jUser,
		Password: env.Neo4jPassword,
	}
}
