package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Bucket holds every document body the search skills read.
const Bucket = "tp-company-documents"

// ObjectStore fetches raw JSON document bodies by bucket and key.
type ObjectStore interface {
	FetchRawObject(ctx context.Context, bucket, key string) (json.RawMessage, error)
}

// FSObjectStore keeps one directory per bucket under a root directory.
type FSObjectStore struct {
	root string
}

var _ ObjectStore = (*FSObjectStore)(nil)

func NewFSObjectStore(root string) *FSObjectStore {
	return &FSObjectStore{root: root}
}

func (s *FSObjectStore) path(bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", fmt.Errorf("%w: %q/%q", ErrInvalidKey, bucket, key)
	}
	base := filepath.Join(s.root, filepath.Clean("/"+bucket))
	p := filepath.Join(base, filepath.Clean("/"+key))
	if !strings.HasPrefix(p, base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q/%q", ErrInvalidKey, bucket, key)
	}
	return p, nil
}

// FetchRawObject returns the body at bucket/key. The body must be valid JSON.
func (s *FSObjectStore) FetchRawObject(ctx context.Context, bucket, key string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{Entity: "object", ID: bucket + "/" + key}
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("object %s/%s: invalid JSON body", bucket, key)
	}
	return data, nil
}

// PutObject writes body to bucket/key, creating directories as needed.
func (s *FSObjectStore) PutObject(ctx context.Context, bucket, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(body) {
		return fmt.Errorf("object %s/%s: invalid JSON body", bucket, key)
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("create bucket dir: %w", err)
	}
	return os.WriteFile(p, body, 0644)
}
