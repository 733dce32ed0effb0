// Package identity persists who is learning: a display name and the time
// they signed in. One record lives under [Key]; a record that cannot be
// decoded is reported as [ErrCorrupt] so callers can discard it.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Key names the persisted record.
const Key = "wisdom_user"

var (
	// ErrNotFound is returned by Load when nobody is signed in.
	ErrNotFound = errors.New("identity: not found")

	// ErrCorrupt is returned by Load when the stored record is unreadable.
	ErrCorrupt = errors.New("identity: corrupt record")

	// ErrNameRequired is returned when a name is blank after trimming.
	ErrNameRequired = errors.New("identity: name is required")
)

// User is the persisted identity.
type User struct {
	Name      string    `json:"name"`
	LoginTime time.Time `json:"loginTime"`
}

// NewUser trims name and stamps the login time.
func NewUser(name string, now time.Time) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, ErrNameRequired
	}
	return User{Name: name, LoginTime: now}, nil
}

// Store reads and writes the identity record.
type Store interface {
	// Load returns the stored user, ErrNotFound, or ErrCorrupt.
	Load(ctx context.Context) (User, error)

	// Save replaces the stored user.
	Save(ctx context.Context, u User) error

	// Clear removes the stored user. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

func encode(u User) ([]byte, error) {
	if strings.TrimSpace(u.Name) == "" {
		return nil, ErrNameRequired
	}
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal: %w", err)
	}
	return data, nil
}

func decode(data []byte) (User, error) {
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return User{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if strings.TrimSpace(u.Name) == "" {
		return User{}, fmt.Errorf("%w: empty name", ErrCorrupt)
	}
	return u, nil
}

// ─── Memory ──────────────────────────────────────────────────────────────────

// Memory keeps the record in process memory. The zero value is empty and
// ready to use.
type Memory struct {
	mu   sync.Mutex
	data []byte
}

var _ Store = (*Memory)(nil)

// Load implements Store.
func (m *Memory) Load(context.Context) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return User{}, ErrNotFound
	}
	return decode(m.data)
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, u User) error {
	data, err := encode(u)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

// Clear implements Store.
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

// SetRaw stores data verbatim, bypassing validation.
func (m *Memory) SetRaw(data []byte) {
	m.mu.Lock()
	m.data = append([]byte(nil), data...)
	m.mu.Unlock()
}
