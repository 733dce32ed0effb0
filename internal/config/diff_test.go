package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/wisdomtrail/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged || d.FeedbackChanged || d.NarrationChanged {
		t.Errorf("expected no changes, got %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
}

func TestDiff_LiveSections(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug
	new.Feedback.Temperature = 0.2
	new.Narration.PlayerArgs = []string{"-q"}

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %v / %q", d.LogLevelChanged, d.NewLogLevel)
	}
	if !d.FeedbackChanged || d.NewFeedback.Temperature != 0.2 {
		t.Errorf("feedback diff = %v / %+v", d.FeedbackChanged, d.NewFeedback)
	}
	if !d.NarrationChanged {
		t.Error("expected NarrationChanged=true")
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
}

func TestDiff_RestartSections(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Providers.LLM.Name = "openai"
	new.Insight.PostgresDSN = "postgres://x"
	new.Identity.Backend = config.IdentityBadger

	d := config.Diff(old, new)
	for _, want := range []string{"providers", "insight", "identity"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired = %v, missing %q", d.RestartRequired, want)
		}
	}
}
