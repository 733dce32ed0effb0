// Package app wires every wisdomtrail subsystem into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, the front ends ask it for per-learner pieces (a shell
// controller, narration engines, a capture adapter), and Shutdown tears
// everything down in reverse order.
//
// For testing, inject doubles via functional options (WithPeers,
// WithIdentity, WithSink, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/wisdomtrail/internal/capture"
	"github.com/MrWong99/wisdomtrail/internal/catalog"
	"github.com/MrWong99/wisdomtrail/internal/config"
	"github.com/MrWong99/wisdomtrail/internal/feedback"
	"github.com/MrWong99/wisdomtrail/internal/health"
	"github.com/MrWong99/wisdomtrail/internal/identity"
	"github.com/MrWong99/wisdomtrail/internal/insight"
	"github.com/MrWong99/wisdomtrail/internal/journal"
	"github.com/MrWong99/wisdomtrail/internal/narration"
	"github.com/MrWong99/wisdomtrail/internal/observe"
	"github.com/MrWong99/wisdomtrail/internal/shell"
	"github.com/MrWong99/wisdomtrail/internal/wizard"
	"github.com/MrWong99/wisdomtrail/pkg/audio"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

// pinger is implemented by stores that can report readiness.
type pinger interface {
	Check(ctx context.Context) error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger

	// Subsystems, initialised in New and torn down in Shutdown.
	catalog  *catalog.Catalog
	metrics  *observe.Metrics
	feedback *feedback.Requester
	synth    *narration.Synthesizer
	peers    insight.Source
	journal  journal.Journal
	identity identity.Store
	badger   *identity.BadgerStore
	sink     audio.Sink
	source   audio.Source
	pgPing   func(context.Context) error

	mu     sync.RWMutex
	volume float32

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCatalog injects a curriculum instead of the embedded one.
func WithCatalog(c *catalog.Catalog) Option {
	return func(a *App) { a.catalog = c }
}

// WithMetrics injects the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithPeers injects a peer source instead of creating one from config.
func WithPeers(src insight.Source) Option {
	return func(a *App) { a.peers = src }
}

// WithJournal injects a reflection journal instead of creating one from config.
func WithJournal(j journal.Journal) Option {
	return func(a *App) { a.journal = j }
}

// WithIdentity injects an identity store instead of creating one from config.
func WithIdentity(s identity.Store) Option {
	return func(a *App) { a.identity = s }
}

// WithSink injects the narration playback device instead of detecting one.
func WithSink(s audio.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithSource injects the capture microphone instead of detecting one.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. providers comes from
// [BuildProviders]; nil fields leave the matching capability unavailable.
// If any step fails, everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
		volume:    float32(cfg.Narration.Volume),
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.init(ctx); err != nil {
		_ = a.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	// ── 1. Catalog ───────────────────────────────────────────────────────
	if a.catalog == nil {
		c, err := catalog.Load()
		if err != nil {
			return fmt.Errorf("app: load catalog: %w", err)
		}
		a.catalog = c
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 2. Remote capabilities ───────────────────────────────────────────
	a.feedback = feedback.New(a.providers.LLM,
		feedback.WithSettings(feedbackSettings(a.cfg.Feedback)),
		feedback.WithMetrics(a.metrics),
		feedback.WithLogger(a.log),
		feedback.WithProviderName(nameOr(a.providers.LLMName, "llm")),
	)
	a.synth = narration.NewSynthesizer(a.providers.TTS,
		narration.WithVoice(types.VoiceProfile{ID: a.cfg.Narration.Voice, Provider: a.providers.TTSName}),
		narration.WithTimeout(a.cfg.Narration.Timeout),
		narration.WithSynthMetrics(a.metrics),
		narration.WithSynthLogger(a.log),
		narration.WithProviderName(nameOr(a.providers.TTSName, "tts")),
	)

	// ── 3. Peer responses ────────────────────────────────────────────────
	if err := a.initPeers(ctx); err != nil {
		return fmt.Errorf("app: init peers: %w", err)
	}

	// ── 4. Identity and journal ──────────────────────────────────────────
	if err := a.initIdentity(); err != nil {
		return fmt.Errorf("app: init identity: %w", err)
	}
	if a.journal == nil {
		if path := a.cfg.Journal.Path; path != "" {
			a.journal = journal.NewFileStore(path)
		} else {
			a.journal = journal.Nop{}
		}
	}

	// ── 5. Local audio devices ───────────────────────────────────────────
	a.initDevices()

	a.log.Info("app: ready",
		"lessons", len(a.catalog.Lessons()),
		"feedback", a.feedback.Available(),
		"narration", a.synth.Available(),
		"playback", a.sink != nil,
		"capture", a.providers.STT != nil && a.source != nil,
	)
	return nil
}

func (a *App) initPeers(ctx context.Context) error {
	if a.peers != nil {
		return nil
	}
	dsn := a.cfg.Insight.PostgresDSN
	if dsn == "" {
		a.peers = insight.SeedSource{}
		return nil
	}
	src, closePool, err := insight.OpenPostgres(ctx, dsn)
	if err != nil {
		return err
	}
	a.peers = src
	a.pgPing = src.Ping
	a.closers = append(a.closers, func() error {
		closePool()
		return nil
	})
	a.log.Info("app: peer responses stored in postgres")
	return nil
}

func (a *App) initIdentity() error {
	if a.identity != nil {
		if b, ok := a.identity.(*identity.BadgerStore); ok {
			a.badger = b
		}
		return nil
	}
	switch a.cfg.Identity.Backend {
	case config.IdentityBadger:
		b, err := identity.OpenBadger(identity.BadgerOptions{Dir: a.cfg.Identity.Path, Logger: a.log})
		if err != nil {
			return err
		}
		a.identity, a.badger = b, b
		a.closers = append(a.closers, b.Close)
	default:
		a.identity = identity.NewFileStore(a.cfg.Identity.Path)
	}
	return nil
}

// initDevices resolves the playback and recording commands. A missing
// binary only disables the matching control.
func (a *App) initDevices() {
	if a.sink == nil && a.providers.TTS != nil {
		if cmd, err := resolveCommand(a.cfg.Narration.Player, a.cfg.Narration.PlayerArgs, audio.DetectPlayer); err == nil {
			a.sink = &audio.ExecSink{Cmd: cmd}
		} else {
			a.log.Info("app: no audio player found, local playback disabled", "err", err)
		}
	}
	if a.source == nil && a.providers.STT != nil {
		if cmd, err := resolveCommand(a.cfg.Capture.Recorder, a.cfg.Capture.RecorderArgs, audio.DetectRecorder); err == nil {
			a.source = &audio.ExecSource{Cmd: cmd}
		} else {
			a.log.Info("app: no audio recorder found, speech capture disabled", "err", err)
		}
	}
}

func resolveCommand(path string, args []string, detect func() (audio.Command, error)) (audio.Command, error) {
	if path == "" {
		return detect()
	}
	cmd := audio.Command{Path: path, Args: args}
	if !cmd.Available() {
		return audio.Command{}, fmt.Errorf("%w: %s", audio.ErrNoDevice, path)
	}
	return cmd, nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Catalog returns the curriculum.
func (a *App) Catalog() *catalog.Catalog { return a.catalog }

// Metrics returns the metric instruments.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// Feedback returns the shared feedback requester.
func (a *App) Feedback() *feedback.Requester { return a.feedback }

// Synthesizer returns the shared speech synthesizer.
func (a *App) Synthesizer() *narration.Synthesizer { return a.synth }

// Identity returns the process-wide identity store.
func (a *App) Identity() identity.Store { return a.identity }

// Volume returns the initial level for new narration controls.
func (a *App) Volume() float32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.volume
}

// ─── Per-learner pieces ──────────────────────────────────────────────────────

// WizardOptions returns the options every lesson session is created with.
func (a *App) WizardOptions() []wizard.Option {
	return []wizard.Option{
		wizard.WithFeedback(a.feedback),
		wizard.WithPeers(a.peers),
		wizard.WithMetrics(a.metrics),
		wizard.WithLogger(a.log),
	}
}

// NewController returns a shell controller on store. A nil store uses the
// process-wide identity store.
func (a *App) NewController(store identity.Store, opts ...shell.Option) *shell.Controller {
	if store == nil {
		store = a.identity
	}
	base := []shell.Option{
		shell.WithJournal(a.journal),
		shell.WithWizardOptions(a.WizardOptions()...),
		shell.WithLogger(a.log),
	}
	return shell.New(a.catalog, store, append(base, opts...)...)
}

// LearnerIdentity returns the identity store for one server-side learner.
// With the badger backend each learner gets a record of their own; other
// backends hold a single record, so learners are kept in memory instead.
func (a *App) LearnerIdentity(id string) identity.Store {
	if a.badger != nil {
		return a.badger.Scope(id)
	}
	return &identity.Memory{}
}

// NewEngine returns a narration control playing on the local device.
func (a *App) NewEngine(opts ...narration.EngineOption) *narration.Engine {
	return a.newEngine(a.sink, opts...)
}

// NewRenderer returns a narration control without a playback device, for
// exporting audio.
func (a *App) NewRenderer(opts ...narration.EngineOption) *narration.Engine {
	return a.newEngine(nil, opts...)
}

func (a *App) newEngine(sink audio.Sink, opts ...narration.EngineOption) *narration.Engine {
	base := []narration.EngineOption{
		narration.WithVolume(a.Volume()),
		narration.WithMetrics(a.metrics),
		narration.WithLogger(a.log),
	}
	return narration.NewEngine(a.synth, sink, append(base, opts...)...)
}

// NewCapture returns a speech capture adapter on the local microphone.
func (a *App) NewCapture() *capture.Adapter {
	return capture.New(a.providers.STT, a.source,
		capture.WithLanguage(a.cfg.Capture.Language),
		capture.WithMaxDuration(a.cfg.Capture.MaxDuration),
		capture.WithMetrics(a.metrics),
		capture.WithLogger(a.log),
		capture.WithProviderName(nameOr(a.providers.STTName, "stt")),
	)
}

// HealthCheckers returns the readiness probes for the server. Storage is
// required; remote capabilities are optional because the curriculum works
// with its fallbacks.
func (a *App) HealthCheckers() []health.Checker {
	var cs []health.Checker
	if p, ok := a.identity.(pinger); ok {
		cs = append(cs, health.Checker{Name: "identity", Check: p.Check})
	}
	if a.pgPing != nil {
		cs = append(cs, health.Checker{Name: "postgres", Check: a.pgPing})
	}
	cs = append(cs,
		health.Checker{Name: "feedback", Optional: true, Check: available(a.feedback.Available(), "no llm provider configured")},
		health.Checker{Name: "narration", Optional: true, Check: available(a.synth.Available(), "no tts provider configured")},
	)
	return cs
}

func available(ok bool, reason string) func(context.Context) error {
	err := errors.New(reason)
	return func(context.Context) error {
		if ok {
			return nil
		}
		return err
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig hot-applies the parts of d that do not need a restart:
// feedback tuning and the initial narration volume. Everything else is
// logged as pending a restart.
func (a *App) ApplyConfig(d config.ConfigDiff, next *config.Config) {
	if d.FeedbackChanged {
		a.feedback.Configure(feedbackSettings(d.NewFeedback))
		a.log.Info("app: feedback settings updated",
			"temperature", d.NewFeedback.Temperature,
			"max_tokens", d.NewFeedback.MaxTokens,
		)
	}
	if d.NarrationChanged {
		a.mu.Lock()
		a.volume = float32(next.Narration.Volume)
		a.mu.Unlock()
		a.log.Info("app: narration volume updated", "volume", next.Narration.Volume)
	}
	for _, section := range d.RestartRequired {
		a.log.Warn("app: config change requires restart", "section", section)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func feedbackSettings(c config.FeedbackConfig) feedback.Settings {
	return feedback.Settings{
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
	}
}

func nameOr(name, def string) string {
	if name == "" {
		return def
	}
	return name
}
