package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// identity-store changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GuardChanged is true when any policy tuning changed (command
	// threshold, smoothing, cooldowns, interrogation thresholds).
	GuardChanged bool

	// ListeningChanged is true when per-mode speech tuning changed; the
	// capture session is restarted with the new tuning on the next mode
	// switch.
	ListeningChanged bool
}

// Any reports whether the diff contains any change at all.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.GuardChanged || d.ListeningChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Guard.Listening != new.Guard.Listening {
		d.ListeningChanged = true
	}

	// Everything else under guard is policy tuning.
	oldG, newG := old.Guard, new.Guard
	oldG.Listening = ListeningConfig{}
	newG.Listening = ListeningConfig{}
	if oldG != newG {
		d.GuardChanged = true
	}

	return d
}
