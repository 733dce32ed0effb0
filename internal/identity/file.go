package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps records in a small JSON document of key → record, the
// way a browser keeps local storage. Writes replace the file atomically.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (fs *FileStore) Path() string { return fs.path }

// Load implements Store.
func (fs *FileStore) Load(context.Context) (User, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	doc, err := fs.read()
	if err != nil {
		return User{}, err
	}
	raw, ok := doc[Key]
	if !ok {
		return User{}, ErrNotFound
	}
	return decode(raw)
}

// Save implements Store.
func (fs *FileStore) Save(_ context.Context, u User) error {
	data, err := encode(u)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	doc, err := fs.read()
	if errors.Is(err, ErrCorrupt) {
		doc = nil
	} else if err != nil {
		return err
	}
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}
	doc[Key] = data
	return fs.write(doc)
}

// Clear implements Store. The file is removed when no keys remain.
func (fs *FileStore) Clear(context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	doc, err := fs.read()
	if errors.Is(err, ErrCorrupt) {
		doc = nil
	} else if err != nil {
		return err
	}
	delete(doc, Key)
	if len(doc) == 0 {
		if err := os.Remove(fs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("identity: remove %q: %w", fs.path, err)
		}
		return nil
	}
	return fs.write(doc)
}

// Check reports whether the directory holding the file is usable.
func (fs *FileStore) Check(context.Context) error {
	dir := filepath.Dir(fs.path)
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("identity: stat %q: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("identity: %q is not a directory", dir)
	}
	return nil
}

// read returns the whole document. A missing file is an empty document; an
// undecodable one is ErrCorrupt.
func (fs *FileStore) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: read %q: %w", fs.path, err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return doc, nil
}

func (fs *FileStore) write(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return fmt.Errorf("identity: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".identity-*")
	if err != nil {
		return fmt.Errorf("identity: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("identity: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("identity: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return fmt.Errorf("identity: replace %q: %w", fs.path, err)
	}
	return nil
}
