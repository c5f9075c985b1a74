// Package blobstore publishes seed files to object storage. It defines the
// Store interface, an in-memory implementation for tests and the sandbox,
// and an S3 implementation.
package blobstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/screenseed/internal/platform/seedio"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrMissingKey   = errors.New("object key is required")
)

// Content types of published files.
const (
	ContentTypeCSV  = "text/csv"
	ContentTypeJSON = "application/json"
)

// Object describes a stored object.
type Object struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Hash        string `json:"hash"`
}

// Store defines the contract for object storage backends.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (*Object, error)
	Get(ctx context.Context, key string) ([]byte, *Object, error)
	List(ctx context.Context, prefix string) ([]Object, error)
}

func describe(key, contentType string, data []byte) Object {
	return Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        fmt.Sprintf("%x", sha256.Sum256(data)),
	}
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	object  Object
	content []byte
}

// InMemoryStore is a thread-safe, in-memory Store.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

// NewInMemoryStore returns a ready-to-use InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string]*storedBlob)}
}

// Put stores a copy of data under key, replacing any previous object.
func (s *InMemoryStore) Put(_ context.Context, key, contentType string, data []byte) (*Object, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	obj := describe(key, contentType, data)

	s.mu.Lock()
	s.blobs[key] = &storedBlob{object: obj, content: append([]byte(nil), data...)}
	s.mu.Unlock()

	return &obj, nil
}

// Get returns the content and description of the object at key.
func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, *Object, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	obj := blob.object // copy
	return append([]byte(nil), blob.content...), &obj, nil
}

// List returns the objects whose key starts with prefix, in key order.
func (s *InMemoryStore) List(_ context.Context, prefix string) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Object
	for key, b := range s.blobs {
		if strings.HasPrefix(key, prefix) {
			out = append(out, b.object)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ---------------------------------------------------------------------------
// Publishing
// ---------------------------------------------------------------------------

// Publish uploads every seed table in dir plus the run manifest, if present,
// to store under prefix. Files are uploaded in name order.
func Publish(ctx context.Context, store Store, dir, prefix string, logger zerolog.Logger) ([]Object, error) {
	paths, err := seedio.ListTables(dir)
	if err != nil {
		return nil, err
	}
	manifest := filepath.Join(dir, seedio.ManifestFile)
	if _, err := os.Stat(manifest); err == nil {
		paths = append(paths, manifest)
	}

	published := make([]Object, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return published, fmt.Errorf("read %s: %w", p, err)
		}
		key := prefix + filepath.Base(p)
		obj, err := store.Put(ctx, key, contentTypeFor(p), data)
		if err != nil {
			return published, fmt.Errorf("upload %s: %w", key, err)
		}
		logger.Info().Str("key", key).Int64("bytes", obj.Size).Msg("published seed file")
		published = append(published, *obj)
	}
	return published, nil
}

func contentTypeFor(path string) string {
	if filepath.Ext(path) == ".json" {
		return ContentTypeJSON
	}
	return ContentTypeCSV
}
