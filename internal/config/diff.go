package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. The Changed flags
// cover fields that are applied without restart; RestartRequired names the
// top-level sections whose changes only take effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged covers latency_budget, batch_parallelism and
	// auto_start_sessions.
	PipelineChanged bool
	FusionChanged   bool
	CrisisChanged   bool
	VoiceChanged    bool
	LexicalChanged  bool

	RestartRequired []string
}

// HotReload reports whether any hot-reloadable tunable of the pipeline
// changed.
func (d ConfigDiff) HotReload() bool {
	return d.PipelineChanged || d.FusionChanged || d.CrisisChanged || d.VoiceChanged || d.LexicalChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	op, np := old.Pipeline, new.Pipeline
	d.PipelineChanged = op.LatencyBudget != np.LatencyBudget ||
		op.BatchParallelism != np.BatchParallelism ||
		op.AutoStartSessions != np.AutoStartSessions
	d.FusionChanged = old.Fusion != new.Fusion
	d.CrisisChanged = old.Crisis != new.Crisis
	d.VoiceChanged = !voiceEqual(old, new)
	d.LexicalChanged = !reflect.DeepEqual(old.Lexical, new.Lexical)

	if op.ChunkSize != np.ChunkSize || op.SampleRate != np.SampleRate {
		d.RestartRequired = append(d.RestartRequired, "pipeline")
	}
	restart := []struct {
		name string
		same bool
	}{
		{"server", old.Server.ListenAddr == new.Server.ListenAddr &&
			old.Server.ShutdownTimeout == new.Server.ShutdownTimeout &&
			reflect.DeepEqual(old.Server.TLS, new.Server.TLS)},
		{"memory", old.Memory == new.Memory},
		{"alerts", reflect.DeepEqual(old.Alerts, new.Alerts)},
		{"archive", old.Archive == new.Archive},
		{"operator", reflect.DeepEqual(old.Operator, new.Operator)},
		{"telemetry", old.Telemetry == new.Telemetry},
	}
	for _, r := range restart {
		if !r.same {
			d.RestartRequired = append(d.RestartRequired, r.name)
		}
	}
	return d
}

func voiceEqual(old, new *Config) bool {
	o, n := old.Voice, new.Voice
	return o.VoiceID == n.VoiceID &&
		o.SpeedFactor == n.SpeedFactor &&
		o.PitchFactor == n.PitchFactor &&
		maps.Equal(o.Styles, n.Styles)
}

// Sections returns the sorted names of every top-level section that differs,
// hot-reloadable or not. Used for logging.
func (d ConfigDiff) Sections() []string {
	out := slices.Clone(d.RestartRequired)
	for name, changed := range map[string]bool{
		"server.log_level": d.LogLevelChanged,
		"pipeline":         d.PipelineChanged,
		"fusion":           d.FusionChanged,
		"crisis":           d.CrisisChanged,
		"voice":            d.VoiceChanged,
		"lexical":          d.LexicalChanged,
	} {
		if changed && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
