// Command wisdomtrail plays the wisdom-literature curriculum in the terminal
// and serves it to browser front ends over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/wisdomtrail/internal/app"
	"github.com/MrWong99/wisdomtrail/internal/config"
	"github.com/MrWong99/wisdomtrail/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, in io.Reader, out, errOut io.Writer) int {
	root := newRootCmd(in, out, errOut)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(errOut, "wisdomtrail: %v\n", err)
		return 1
	}
	return 0
}

// cli carries the state shared by every subcommand.
type cli struct {
	configPath string

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg   *config.Config
	log   *slog.Logger
	level *slog.LevelVar
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	c := &cli{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "wisdomtrail",
		Short: "智慧文學生命課程：箴言、傳道書與約伯記的交錯對話",
		Long: `wisdomtrail walks a learner through 24 lessons on the wisdom literature.
Each lesson moves through five steps: a life question with tutor feedback,
three scriptural perspectives, their tension, a discussion and a summary.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("WISDOMTRAIL_CONFIG"),
		"path to the YAML configuration file (defaults apply when empty)")

	root.AddCommand(
		newPlayCmd(c),
		newServeCmd(c),
		newLessonsCmd(c),
		newNarrateCmd(c),
	)
	return root
}

// load reads the configuration and installs the process logger.
func (c *cli) load() error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.log, c.level = newLogger(cfg.Server.LogLevel, c.errOut)
	slog.SetDefault(c.log)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromReader(strings.NewReader(""))
	}
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found; omit --config to run on the defaults", path)
	}
	return cfg, err
}

// newApp builds the providers named in the config and wires the
// application around them.
func (c *cli) newApp(ctx context.Context, m *observe.Metrics) (*app.App, error) {
	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)

	providers, err := app.BuildProviders(c.cfg, reg, m)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	a, err := app.New(ctx, c.cfg, providers, app.WithMetrics(m), app.WithLogger(c.log))
	if err != nil {
		return nil, fmt.Errorf("initialise application: %w", err)
	}
	return a, nil
}

// ── Startup summary ──────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║      wisdomtrail  startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider(w, "TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider(w, "STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	fmt.Fprintf(w, "║  Fallbacks       : %-19s ║\n",
		fmt.Sprintf("%d llm, %d tts", len(cfg.Providers.LLMFallbacks), len(cfg.Providers.TTSFallbacks)))
	fmt.Fprintf(w, "║  Identity        : %-19s ║\n", cfg.Identity.Backend)
	peers := "seed"
	if cfg.Insight.PostgresDSN != "" {
		peers = "postgres"
	}
	fmt.Fprintf(w, "║  Peer responses  : %-19s ║\n", peers)
	if cfg.Server.ListenAddr != "" {
		fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ───────────────────────────────────────────────────────────────────

// newLogger returns a text logger on w. The level can be changed later
// through the returned variable.
func newLogger(level config.LogLevel, w io.Writer) (*slog.Logger, *slog.LevelVar) {
	lv := &slog.LevelVar{}
	lv.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})), lv
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
