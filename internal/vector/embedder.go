package vector

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/joss/elf/internal/config"
)

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// NewEmbedder picks the embedder configured by ELF_EMBEDDING_PROVIDER:
// tei, local, or OpenAI when a key is set. Without any of those it falls
// back to the local hashing embedder.
func NewEmbedder(env *config.ElfEnv) Embedder {
	switch env.EmbeddingProvider {
	case "tei":
		return NewTeiEmbedder(env.TEIURL)
	case "local":
		return NewLocalEmbedder(384)
	}
	if env.OpenAIKey != "" {
		return NewOpenAIEmbedder(env.OpenAIKey, env.OpenAIBaseURL)
	}
	return NewLocalEmbedder(384)
}

// LocalEmbedder builds deterministic feature-hashed embeddings. Lexically
// similar texts land close together, which is enough for example selection
// and tests without a network dependency.
type LocalEmbedder struct {
	dims int
}

func NewLocalEmbedder(dims int) *LocalEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &LocalEmbedder{dims: dims}
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embedding := make([]float32, e.dims)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return embedding, nil
	}

	tf := make(map[string]int)
	for _, token := range tokens {
		tf[token]++
	}

	for token, count := range tf {
		weight := float32(1.0 + math.Log(float64(count)))
		for seed, scale := range []float32{1, 0.5, 0.25} {
			h := hashString(token, uint64(seed))
			pos := int(h % uint64(e.dims))
			if h&1 == 0 {
				embedding[pos] += weight * scale
			} else {
				embedding[pos] -= weight * scale
			}
		}

		if len(token) > 3 {
			for i := 0; i < len(token)-1; i++ {
				bh := hashString(token[i:i+2], 3)
				bpos := int(bh % uint64(e.dims))
				if bh&1 == 0 {
					embedding[bpos] += 0.1
				} else {
					embedding[bpos] -= 0.1
				}
			}
		}
	}

	normalize(embedding)
	return embedding, nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

func (e *LocalEmbedder) Dimensions() int {
	return e.dims
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := matches[:0]
	for _, m := range matches {
		if len(m) >= 2 {
			tokens = append(tokens, m)
		}
	}
	return tokens
}

func hashString(s string, seed uint64) uint64 {
	h := fnv.New64a()
	h.Write([]byte{byte(seed), byte(seed >> 8)})
	h.Write([]byte(s))
	return h.Sum64()
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
