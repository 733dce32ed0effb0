// Package shell owns the state shared by every screen: who is signed in,
// which lesson is open, and which lessons were completed in this run.
//
// A [Controller] switches between three screens. Login is shown until a
// name is captured; Catalog lists the lessons; Wizard walks one lesson.
// Identity is read once by Start, written by Login and removed by Logout.
// The completed set lives only as long as the controller.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/wisdomtrail/internal/catalog"
	"github.com/MrWong99/wisdomtrail/internal/identity"
	"github.com/MrWong99/wisdomtrail/internal/journal"
	"github.com/MrWong99/wisdomtrail/internal/wizard"
)

// Screen is the top-level view.
type Screen int

const (
	Login Screen = iota
	Catalog
	Wizard
)

// String implements fmt.Stringer.
func (s Screen) String() string {
	switch s {
	case Login:
		return "login"
	case Catalog:
		return "catalog"
	case Wizard:
		return "wizard"
	}
	return fmt.Sprintf("Screen(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Screen) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	ErrNotLoggedIn   = errors.New("shell: not logged in")
	ErrUnknownLesson = errors.New("shell: unknown lesson")
	ErrNoLesson      = errors.New("shell: no lesson open")
)

// Controller is the single owner of process-wide learner state. It is safe
// for concurrent use.
type Controller struct {
	catalog    *catalog.Catalog
	identity   identity.Store
	journal    journal.Journal
	wizardOpts []wizard.Option
	onScreen   func(Screen)
	now        func() time.Time
	log        *slog.Logger

	mu        sync.Mutex
	user      *identity.User
	screen    Screen
	session   *wizard.Session
	completed map[int]bool
}

// Option configures a [Controller].
type Option func(*Controller)

// WithJournal sets where closing reflections are written.
func WithJournal(j journal.Journal) Option {
	return func(c *Controller) { c.journal = j }
}

// WithWizardOptions is applied to every lesson session the controller opens.
func WithWizardOptions(opts ...wizard.Option) Option {
	return func(c *Controller) { c.wizardOpts = append(c.wizardOpts, opts...) }
}

// OnScreenChange is called after every screen switch, including switches
// to a different lesson. Front ends use it to scroll to the top.
func OnScreenChange(fn func(Screen)) Option {
	return func(c *Controller) { c.onScreen = fn }
}

// WithClock overrides time.Now for login stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New returns a controller on the Login screen. Call Start to restore a
// persisted identity.
func New(cat *catalog.Catalog, store identity.Store, opts ...Option) *Controller {
	c := &Controller{
		catalog:   cat,
		identity:  store,
		journal:   journal.Nop{},
		now:       time.Now,
		log:       slog.Default(),
		completed: make(map[int]bool),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start reads the persisted identity. A corrupt record is logged, removed
// and treated as nobody signed in; only storage failures are returned.
func (c *Controller) Start(ctx context.Context) error {
	u, err := c.identity.Load(ctx)
	switch {
	case err == nil:
		c.mu.Lock()
		c.user = &u
		c.mu.Unlock()
		c.switchTo(Catalog)
		return nil
	case errors.Is(err, identity.ErrNotFound):
		c.switchTo(Login)
		return nil
	case errors.Is(err, identity.ErrCorrupt):
		c.log.Warn("shell: discarding unreadable identity", "err", err)
		if err := c.identity.Clear(ctx); err != nil {
			return fmt.Errorf("shell: clear identity: %w", err)
		}
		c.switchTo(Login)
		return nil
	default:
		return fmt.Errorf("shell: load identity: %w", err)
	}
}

// Screen returns the current view.
func (c *Controller) Screen() Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// User returns the signed-in learner.
func (c *Controller) User() (identity.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return identity.User{}, false
	}
	return *c.user, true
}

// Login persists name with the current time and shows the catalog.
func (c *Controller) Login(ctx context.Context, name string) (identity.User, error) {
	u, err := identity.NewUser(name, c.now())
	if err != nil {
		return identity.User{}, err
	}
	if err := c.identity.Save(ctx, u); err != nil {
		return identity.User{}, fmt.Errorf("shell: save identity: %w", err)
	}
	c.mu.Lock()
	c.user = &u
	c.mu.Unlock()
	c.log.Info("shell: logged in", "name", u.Name)
	c.switchTo(Catalog)
	return u, nil
}

// Logout removes the persisted identity, abandons any open lesson and
// shows the login screen.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.identity.Clear(ctx); err != nil {
		return fmt.Errorf("shell: clear identity: %w", err)
	}
	c.mu.Lock()
	c.user = nil
	c.discardLocked()
	c.mu.Unlock()
	c.switchTo(Login)
	return nil
}

// Select opens a fresh session for lessonID, replacing any open one.
func (c *Controller) Select(lessonID int) (*wizard.Session, error) {
	lesson, ok := c.catalog.Lesson(lessonID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLesson, lessonID)
	}

	c.mu.Lock()
	if c.user == nil {
		c.mu.Unlock()
		return nil, ErrNotLoggedIn
	}
	opts := slices.Clone(c.wizardOpts)
	opts = append(opts, wizard.WithJournal(c.journal, c.user.Name))
	c.discardLocked()
	c.session = wizard.New(lesson, opts...)
	s := c.session
	c.mu.Unlock()

	c.log.Debug("shell: lesson selected", "lesson", lessonID)
	c.switchTo(Wizard)
	return s, nil
}

// Session returns the open lesson session, if any.
func (c *Controller) Session() (*wizard.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.session != nil
}

// Complete finishes the open lesson, marks it completed and returns to the
// catalog. The session must be on its last step.
func (c *Controller) Complete(ctx context.Context) (int, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return 0, ErrNoLesson
	}

	id, err := s.Complete(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.completed[id] = true
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
	c.switchTo(Catalog)
	return id, nil
}

// Home abandons the open lesson and shows the catalog.
func (c *Controller) Home() {
	c.mu.Lock()
	c.discardLocked()
	loggedIn := c.user != nil
	c.mu.Unlock()
	if loggedIn {
		c.switchTo(Catalog)
	}
}

// Completed returns the completed lesson ids in ascending order.
func (c *Controller) Completed() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.completed))
}

// IsCompleted reports whether lessonID was completed in this run.
func (c *Controller) IsCompleted(lessonID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed[lessonID]
}

// Catalog returns the curriculum the controller serves.
func (c *Controller) Catalog() *catalog.Catalog { return c.catalog }

func (c *Controller) discardLocked() {
	if c.session != nil {
		c.session.Discard()
		c.session = nil
	}
}

func (c *Controller) switchTo(s Screen) {
	c.mu.Lock()
	c.screen = s
	c.mu.Unlock()
	if c.onScreen != nil {
		c.onScreen(s)
	}
}
