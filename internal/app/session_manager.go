package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/wisdomtrail/internal/identity"
	"github.com/MrWong99/wisdomtrail/internal/narration"
	"github.com/MrWong99/wisdomtrail/internal/shell"
)

// ErrInvalidSessionID is returned by Open for ids that are not UUIDs.
var ErrInvalidSessionID = errors.New("app: invalid session id")

// SessionInfo holds metadata about one learner session.
type SessionInfo struct {
	// SessionID is the UUID the client presents on every request.
	SessionID string

	// StartedAt is when the session was opened.
	StartedAt time.Time

	// LastSeen is when the session was last used.
	LastSeen time.Time
}

// LearnerSession is one server-side learner: a shell controller plus a
// narration renderer whose cache follows the learner's current step.
type LearnerSession struct {
	Controller *shell.Controller
	Narrator   *narration.Engine

	mu   sync.Mutex
	info SessionInfo
}

// Info returns the session metadata.
func (ls *LearnerSession) Info() SessionInfo {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.info
}

func (ls *LearnerSession) touch(now time.Time) {
	ls.mu.Lock()
	ls.info.LastSeen = now
	ls.mu.Unlock()
}

func (ls *LearnerSession) close() {
	ls.Controller.Home()
	_ = ls.Narrator.Close()
}

// SessionManager keeps the learner sessions of the HTTP server. Sessions
// idle for longer than the TTL are dropped; their persisted identity
// survives, so reopening the same id restores the learner.
// All exported methods are safe for concurrent use. mu guards the map only:
// identity I/O and engine teardown run outside it.
type SessionManager struct {
	app      *App
	ttl      time.Duration
	now      func() time.Time
	identity func(id string) identity.Store

	mu       sync.Mutex
	sessions map[string]*LearnerSession
}

// NewSessionManager returns an empty manager. A zero ttl keeps sessions
// until Stop.
func NewSessionManager(a *App, ttl time.Duration) *SessionManager {
	return &SessionManager{
		app:      a,
		ttl:      ttl,
		now:      time.Now,
		identity: a.LearnerIdentity,
		sessions: make(map[string]*LearnerSession),
	}
}

// Open returns the session for id, creating it when needed. An empty id
// starts a new session under a fresh UUID.
func (sm *SessionManager) Open(ctx context.Context, id string) (*LearnerSession, error) {
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	if ls, ok := sm.Get(id); ok {
		return ls, nil
	}

	ctrl := sm.app.NewController(sm.identity(id))
	if err := ctrl.Start(ctx); err != nil {
		return nil, fmt.Errorf("app: start session %s: %w", id, err)
	}
	now := sm.now()
	ls := &LearnerSession{
		Controller: ctrl,
		Narrator:   sm.app.NewRenderer(),
		info:       SessionInfo{SessionID: id, StartedAt: now, LastSeen: now},
	}

	sm.mu.Lock()
	if other, ok := sm.sessions[id]; ok && !sm.expired(other, now) {
		// A concurrent Open for the same id won.
		other.touch(now)
		sm.mu.Unlock()
		ls.close()
		return other, nil
	}
	stale := sm.sessions[id]
	sm.sessions[id] = ls
	sm.mu.Unlock()

	if stale != nil {
		sm.closeSession(id, stale)
	}
	sm.app.log.Info("session opened", "session_id", id, "screen", ctrl.Screen())
	return ls, nil
}

// Get returns a live session and marks it as used.
func (sm *SessionManager) Get(id string) (*LearnerSession, bool) {
	sm.mu.Lock()
	ls, ok := sm.sessions[id]
	if !ok {
		sm.mu.Unlock()
		return nil, false
	}
	now := sm.now()
	if sm.expired(ls, now) {
		delete(sm.sessions, id)
		sm.mu.Unlock()
		sm.closeSession(id, ls)
		return nil, false
	}
	ls.touch(now)
	sm.mu.Unlock()
	return ls, true
}

// Stop ends a session. The persisted identity is left alone; use the
// controller's Logout to remove it.
func (sm *SessionManager) Stop(id string) error {
	sm.mu.Lock()
	ls, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if !ok {
		return fmt.Errorf("app: no session %q", id)
	}
	sm.closeSession(id, ls)
	return nil
}

// Len returns the number of live sessions.
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Sweep drops every expired session and returns how many were dropped.
func (sm *SessionManager) Sweep() int {
	sm.mu.Lock()
	now := sm.now()
	dropped := make(map[string]*LearnerSession)
	for id, ls := range sm.sessions {
		if sm.expired(ls, now) {
			dropped[id] = ls
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for id, ls := range dropped {
		sm.closeSession(id, ls)
	}
	return len(dropped)
}

// Run sweeps expired sessions every interval until ctx is done.
func (sm *SessionManager) Run(ctx context.Context, interval time.Duration) {
	if sm.ttl <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := sm.Sweep(); n > 0 {
				sm.app.log.Debug("expired sessions dropped", "count", n)
			}
		}
	}
}

// Close ends every session.
func (sm *SessionManager) Close() error {
	sm.mu.Lock()
	all := sm.sessions
	sm.sessions = make(map[string]*LearnerSession)
	sm.mu.Unlock()

	for id, ls := range all {
		sm.closeSession(id, ls)
	}
	return nil
}

func (sm *SessionManager) expired(ls *LearnerSession, now time.Time) bool {
	return sm.ttl > 0 && now.Sub(ls.Info().LastSeen) > sm.ttl
}

func (sm *SessionManager) closeSession(id string, ls *LearnerSession) {
	ls.close()
	sm.app.log.Info("session closed", "session_id", id)
}
