// Package journal keeps the learner's closing reflections as append-only
// JSON lines in a local file.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry is one reflection written at the end of a lesson.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Learner    string    `json:"learner"`
	LessonID   int       `json:"lesson_id"`
	Lesson     string    `json:"lesson"`
	Reflection string    `json:"reflection"`
}

// Journal records reflections.
type Journal interface {
	Append(e Entry) error
}

// Nop discards every entry. Used when no journal path is configured.
type Nop struct{}

// Append implements Journal.
func (Nop) Append(Entry) error { return nil }

// FileStore persists entries as JSON lines. Safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

var (
	_ Journal = (*FileStore)(nil)
	_ Journal = Nop{}
)

// NewFileStore returns a store appending to path. The file and its parent
// directory are created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the journal file location.
func (fs *FileStore) Path() string { return fs.path }

// Append writes e as one line. Blank reflections are skipped. A zero
// Timestamp is set to the current UTC time.
func (fs *FileStore) Append(e Entry) error {
	e.Reflection = strings.TrimSpace(e.Reflection)
	if e.Reflection == "" {
		return nil
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = fs.now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	data = append(data, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("journal: create dir: %w", err)
	}
	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return nil
}

// Entries reads every entry back in file order. A missing file yields no
// entries. Malformed lines are reported together after the whole file is
// read.
func (fs *FileStore) Entries() ([]Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: open file: %w", err)
	}
	defer f.Close()

	var (
		out  []Entry
		errs []error
	)
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		if len(strings.TrimSpace(sc.Text())) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			errs = append(errs, fmt.Errorf("journal: line %d: %w", line, err))
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, fmt.Errorf("journal: read: %w", err))
	}
	return out, errors.Join(errs...)
}
