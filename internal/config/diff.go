package config

import "reflect"

// ConfigDiff describes what changed between two configs. Log level and
// feedback tuning apply live; everything under Providers, Identity and
// Insight needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	FeedbackChanged bool
	NewFeedback     FeedbackConfig

	NarrationChanged bool

	// RestartRequired lists sections whose changes are not hot-applied.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Feedback != new.Feedback {
		d.FeedbackChanged = true
		d.NewFeedback = new.Feedback
	}
	if !reflect.DeepEqual(old.Narration, new.Narration) {
		d.NarrationChanged = true
	}

	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Identity != new.Identity {
		d.RestartRequired = append(d.RestartRequired, "identity")
	}
	if old.Insight != new.Insight {
		d.RestartRequired = append(d.RestartRequired, "insight")
	}
	if old.Server.ListenAddr != new.Server.ListenAddr || !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	return d
}
