package shell

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/wisdomtrail/internal/catalog"
	"github.com/MrWong99/wisdomtrail/internal/identity"
	"github.com/MrWong99/wisdomtrail/internal/journal"
	"github.com/MrWong99/wisdomtrail/internal/wizard"
)

var loginTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newController(t *testing.T, store identity.Store, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return loginTime })}, opts...)
	c := New(catalog.MustLoad(), store, opts...)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return c
}

type failingStore struct {
	identity.Memory
	loadErr  error
	clearErr error
}

func (f *failingStore) Load(ctx context.Context) (identity.User, error) {
	if f.loadErr != nil {
		return identity.User{}, f.loadErr
	}
	return f.Memory.Load(ctx)
}

func (f *failingStore) Clear(ctx context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	return f.Memory.Clear(ctx)
}

type recordingJournal struct{ entries []journal.Entry }

func (r *recordingJournal) Append(e journal.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

// ── Start ────────────────────────────────────────────────────────────────────

func TestStart_NoIdentity(t *testing.T) {
	c := newController(t, &identity.Memory{})
	if got := c.Screen(); got != Login {
		t.Errorf("Screen = %v, want login", got)
	}
	if _, ok := c.User(); ok {
		t.Error("User() ok without identity")
	}
}

func TestStart_RestoresIdentity(t *testing.T) {
	store := &identity.Memory{}
	store.Save(context.Background(), identity.User{Name: "小明", LoginTime: loginTime})

	c := newController(t, store)
	if got := c.Screen(); got != Catalog {
		t.Errorf("Screen = %v, want catalog", got)
	}
	if u, _ := c.User(); u.Name != "小明" {
		t.Errorf("User = %+v", u)
	}
}

func TestStart_CorruptIdentityIsCleared(t *testing.T) {
	store := &identity.Memory{}
	store.SetRaw([]byte("{not json"))

	c := newController(t, store)
	if got := c.Screen(); got != Login {
		t.Errorf("Screen = %v, want login", got)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, identity.ErrNotFound) {
		t.Errorf("corrupt record kept: %v", err)
	}
}

func TestStart_StorageError(t *testing.T) {
	c := New(catalog.MustLoad(), &failingStore{loadErr: errors.New("permission denied")})
	if err := c.Start(context.Background()); err == nil {
		t.Error("Start succeeded despite storage failure")
	}
}

// ── Login / Logout ───────────────────────────────────────────────────────────

func TestLogin(t *testing.T) {
	store := &identity.Memory{}
	var screens []Screen
	c := newController(t, store, OnScreenChange(func(s Screen) { screens = append(screens, s) }))
	ctx := context.Background()

	if _, err := c.Login(ctx, "   "); !errors.Is(err, identity.ErrNameRequired) {
		t.Errorf("blank Login = %v", err)
	}
	u, err := c.Login(ctx, "  小華 ")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.Name != "小華" || !u.LoginTime.Equal(loginTime) {
		t.Errorf("user = %+v", u)
	}
	stored, err := store.Load(ctx)
	if err != nil || stored.Name != "小華" {
		t.Errorf("stored = %+v, %v", stored, err)
	}
	if len(screens) != 2 || screens[0] != Login || screens[1] != Catalog {
		t.Errorf("screens = %v", screens)
	}
}

func TestLogout(t *testing.T) {
	store := &identity.Memory{}
	c := newController(t, store)
	ctx := context.Background()
	c.Login(ctx, "小華")
	s, _ := c.Select(3)

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, identity.ErrNotFound) {
		t.Errorf("identity still stored: %v", err)
	}
	if c.Screen() != Login {
		t.Errorf("Screen = %v", c.Screen())
	}
	if !s.Discarded() {
		t.Error("open session not discarded")
	}

	// A fresh start sees nobody signed in.
	if again := newController(t, store); again.Screen() != Login {
		t.Errorf("restart Screen = %v", again.Screen())
	}
}

func TestLogout_ClearError(t *testing.T) {
	store := &failingStore{clearErr: errors.New("read-only")}
	c := newController(t, store)
	c.Login(context.Background(), "小華")
	if err := c.Logout(context.Background()); err == nil {
		t.Error("Logout succeeded despite storage failure")
	}
	if c.Screen() != Catalog {
		t.Errorf("Screen = %v, want catalog unchanged", c.Screen())
	}
}

// ── Lessons ──────────────────────────────────────────────────────────────────

func TestSelect(t *testing.T) {
	c := newController(t, &identity.Memory{})

	if _, err := c.Select(1); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Select logged out = %v", err)
	}
	c.Login(context.Background(), "小華")
	if _, err := c.Select(99); !errors.Is(err, ErrUnknownLesson) {
		t.Errorf("Select(99) = %v", err)
	}

	first, err := c.Select(2)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if c.Screen() != Wizard || first.Lesson().ID != 2 {
		t.Errorf("screen %v lesson %d", c.Screen(), first.Lesson().ID)
	}
	second, _ := c.Select(4)
	if !first.Discarded() {
		t.Error("previous session not discarded")
	}
	if cur, ok := c.Session(); !ok || cur != second {
		t.Error("Session() is not the latest selection")
	}
}

func TestHome(t *testing.T) {
	c := newController(t, &identity.Memory{})
	c.Login(context.Background(), "小華")
	s, _ := c.Select(5)

	c.Home()
	if c.Screen() != Catalog {
		t.Errorf("Screen = %v", c.Screen())
	}
	if !s.Discarded() {
		t.Error("session not discarded")
	}
	if _, ok := c.Session(); ok {
		t.Error("session still open")
	}
	if _, err := c.Complete(context.Background()); !errors.Is(err, ErrNoLesson) {
		t.Errorf("Complete = %v", err)
	}
}

func TestComplete_IntroductoryLesson(t *testing.T) {
	j := &recordingJournal{}
	c := newController(t, &identity.Memory{}, WithJournal(j))
	ctx := context.Background()
	c.Login(ctx, "小華")

	s, err := c.Select(1)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	s.SetInput(wizard.LifeQuestionKey(0), "懂得敬畏與等待")
	s.SetInput(wizard.LifeQuestionKey(1), "是")

	if _, err := c.Complete(ctx); !errors.Is(err, wizard.ErrWrongStep) {
		t.Errorf("early Complete = %v", err)
	}
	ins, err := s.SeekInsight(ctx)
	if err != nil {
		t.Fatalf("SeekInsight: %v", err)
	}
	if !ins.Skipped {
		t.Error("introductory lesson requested feedback")
	}
	for s.Step() != wizard.Summary {
		if _, err := s.Continue(ctx); err != nil {
			t.Fatalf("Continue: %v", err)
		}
	}
	s.SetInput(wizard.SummaryKey, "選擇誠實")

	id, err := c.Complete(ctx)
	if err != nil || id != 1 {
		t.Fatalf("Complete = %d, %v", id, err)
	}
	if c.Screen() != Catalog {
		t.Errorf("Screen = %v, want catalog", c.Screen())
	}
	if !c.IsCompleted(1) || c.IsCompleted(2) {
		t.Errorf("Completed = %v", c.Completed())
	}
	if len(j.entries) != 1 || j.entries[0].Learner != "小華" {
		t.Errorf("journal = %+v", j.entries)
	}
}

func TestCompleted_Sorted(t *testing.T) {
	c := newController(t, &identity.Memory{})
	c.mu.Lock()
	for _, id := range []int{7, 2, 19} {
		c.completed[id] = true
	}
	c.mu.Unlock()

	got := c.Completed()
	want := []int{2, 7, 19}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Completed = %v, want %v", got, want)
		}
	}
}

func TestScreen_String(t *testing.T) {
	for s, want := range map[Screen]string{Login: "login", Catalog: "catalog", Wizard: "wizard", Screen(7): "Screen(7)"} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}
