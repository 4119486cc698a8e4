package vector

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// LanceStore is a file-backed Index: metadata in index.json, vectors as
// little-endian float32 in vectors.bin.
type LanceStore struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	metaFile string
	vecFile  string
	dirty    bool
}

// NewLanceStore opens (or creates) a store under dbPath.
func NewLanceStore(dbPath string) (*LanceStore, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("create vector dir: %w", err)
	}

	s := &LanceStore{
		entries:  make(map[string]Entry),
		metaFile: filepath.Join(dbPath, "index.json"),
		vecFile:  filepath.Join(dbPath, "vectors.bin"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func entryKey(namespace, id string) string {
	return namespace + "\x00" + id
}

// Upsert stores entries, replacing any with the same namespace and ID.
func (s *LanceStore) Upsert(ctx context.Context, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("upsert: entry in %q has no id", e.Namespace)
		}
		s.entries[entryKey(e.Namespace, e.ID)] = e
	}
	s.dirty = true
	return s.persist()
}

// Query ranks stored entries by cosine similarity.
func (s *LanceStore) Query(ctx context.Context, vec []float32, q Query) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	candidates := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		candidates = append(candidates, e)
	}
	s.mu.RUnlock()

	return rank(vec, candidates, q), nil
}

// Count returns the number of entries in namespace, or all entries when
// namespace is empty.
func (s *LanceStore) Count(ctx context.Context, namespace string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if namespace == "" {
		return len(s.entries), nil
	}
	n := 0
	for _, e := range s.entries {
		if e.Namespace == namespace {
			n++
		}
	}
	return n, nil
}

func (s *LanceStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

type metaEntry struct {
	ID        string         `json:"id"`
	Namespace string         `json:"namespace"`
	Text      string         `json:"text,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	VecDims   int            `json:"vec_dims"`
	VecOffset int64          `json:"vec_offset"`
}

// persist must be called with s.mu held.
func (s *LanceStore) persist() error {
	if !s.dirty {
		return nil
	}

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	metas := make([]metaEntry, 0, len(keys))
	var vectors []byte
	buf := make([]byte, 4)
	for _, k := range keys {
		e := s.entries[k]
		metas = append(metas, metaEntry{
			ID:        e.ID,
			Namespace: e.Namespace,
			Text:      e.Text,
			Metadata:  e.Metadata,
			VecDims:   len(e.Vector),
			VecOffset: int64(len(vectors)),
		})
		for _, v := range e.Vector {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			vectors = append(vectors, buf...)
		}
	}

	metaData, err := json.MarshalIndent(metas, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(s.metaFile, metaData, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.WriteFile(s.vecFile, vectors, 0644); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}

	s.dirty = false
	return nil
}

func (s *LanceStore) load() error {
	metaData, err := os.ReadFile(s.metaFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read metadata: %w", err)
	}

	var metas []metaEntry
	if err := json.Unmarshal(metaData, &metas); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}

	vecFile, err := os.Open(s.vecFile)
	if err != nil {
		return fmt.Errorf("open vectors: %w", err)
	}
	defer vecFile.Close()

	for _, meta := range metas {
		if _, err := vecFile.Seek(meta.VecOffset, io.SeekStart); err != nil {
			return fmt.Errorf("seek vector %s: %w", meta.ID, err)
		}
		raw := make([]byte, 4*meta.VecDims)
		if _, err := io.ReadFull(vecFile, raw); err != nil {
			return fmt.Errorf("read vector %s: %w", meta.ID, err)
		}
		vec := make([]float32, meta.VecDims)
		for i := range vec {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}

		s.entries[entryKey(meta.Namespace, meta.ID)] = Entry{
			ID:        meta.ID,
			Namespace: meta.Namespace,
			Text:      meta.Text,
			Vector:    vec,
			Metadata:  meta.Metadata,
		}
	}
	return nil
}

var _ Index = (*LanceStore)(nil)
