package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const maxAssetSize = 100 * 1024

type Storer[T ValidatingSpec] interface {
	Get(string) *Asset[T]
	GetAll() map[string]*Asset[T]
}

// FileStore loads every asset of one kind found under path. Files may be
// JSON or YAML.
type FileStore[T ValidatingSpec] struct {
	path    string
	kind    string
	records map[string]*Asset[T]

	mu sync.RWMutex
}

func NewFileStore[T ValidatingSpec](path, kind string) (*FileStore[T], error) {
	s := &FileStore[T]{
		path:    path,
		kind:    kind,
		records: map[string]*Asset[T]{},
	}

	err := s.Reload()
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Reload re-reads the directory. On failure the previously loaded records
// are kept.
func (s *FileStore[T]) Reload() error {
	records, err := s.load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	slog.Info("loaded assets", "kind", s.kind, "path", s.path, "count", len(records))
	return nil
}

func (s *FileStore[T]) Path() string {
	return s.path
}

func (s *FileStore[T]) load() (map[string]*Asset[T], error) {
	records := map[string]*Asset[T]{}

	err := filepath.Walk(s.path, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if info.IsDir() || !IsAssetFile(path) {
			return nil
		}

		asset, err := s.loadAsset(path)
		if err != nil {
			return fmt.Errorf("loading %s: %w", filepath.Base(path), err)
		}

		if asset.Kind != s.kind {
			slog.Debug("skipping asset of other kind", "path", path, "kind", asset.Kind)
			return nil
		}

		err = asset.Validate()
		if err != nil {
			return fmt.Errorf("validating %s: %w", filepath.Base(path), err)
		}

		// Error if the key is already in use
		_, ok := records[asset.Id()]
		if ok {
			return fmt.Errorf("duplicate key detected: %s", asset.Id())
		}

		records[asset.Id()] = asset
		return nil
	})

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (s *FileStore[T]) Get(id string) *Asset[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.records[id]
}

func (s *FileStore[T]) GetAll() map[string]*Asset[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vals := make(map[string]*Asset[T], len(s.records))
	for id, v := range s.records {
		vals[id] = v
	}

	return vals
}

func (s *FileStore[T]) loadAsset(path string) (*Asset[T], error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	// Ignoring close error - file is read-only, error is not actionable
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxAssetSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if len(data) > maxAssetSize {
		return nil, fmt.Errorf("file exceeds %d bytes", maxAssetSize)
	}

	asset := &Asset[T]{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, asset)
	default:
		err = yaml.Unmarshal(data, asset)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshalling asset: %w", err)
	}

	return asset, nil
}

// IsAssetFile reports whether path has an extension the store reads.
func IsAssetFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
