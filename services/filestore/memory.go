package filestore

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"sync"

	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
)

// MemoryStore keeps the files in memory; used in development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

var _ media.FileStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key string, content io.Reader, _ int64, _ string) error {
	b, err := ioutil.ReadAll(content)
	if err != nil {
		return errors.Wrap(err, "reading "+key)
	}
	s.mu.Lock()
	s.files[key] = b
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	b, ok := s.files[key]
	s.mu.RUnlock()
	if !ok {
		return nil, media.ErrNotFound
	}
	return ioutil.NopCloser(bytes.NewReader(b)), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.files, key)
	s.mu.Unlock()
	return nil
}

// Has reports whether a file is stored under key.
func (s *MemoryStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[key]
	return ok
}

// New returns the store selected by conf.Driver.
func New(conf core.StorageConfig) (media.FileStore, error) {
	switch conf.Driver {
	case "s3":
		return NewS3Store(conf)
	case "", "memory":
		return NewMemoryStore(), nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", conf.Driver)
	}
}
