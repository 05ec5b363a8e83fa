package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/MrWong99/attune/internal/crisis"
	"github.com/MrWong99/attune/pkg/affect"
	"gopkg.in/yaml.v3"
)

// Publisher type names with built-in factories.
const (
	PublisherLog      = "log"
	PublisherPostgres = "postgres"
	PublisherOperator = "operator"
)

// ValidPublisherTypes lists the publisher types shipped with attune. Used by
// [Validate] to warn about unrecognised names.
var ValidPublisherTypes = []string{PublisherLog, PublisherPostgres, PublisherOperator}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. Zero values are
// accepted wherever [ApplyDefaults] would fill them. It returns a joined error
// listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %v must not be negative", cfg.Server.ShutdownTimeout))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Pipeline
	if cfg.Pipeline.LatencyBudget < 0 {
		errs = append(errs, fmt.Errorf("pipeline.latency_budget %v must not be negative", cfg.Pipeline.LatencyBudget))
	}
	if cfg.Pipeline.BatchParallelism < 0 {
		errs = append(errs, fmt.Errorf("pipeline.batch_parallelism %d must not be negative", cfg.Pipeline.BatchParallelism))
	}
	if cfg.Pipeline.ChunkSize != 0 && cfg.Pipeline.ChunkSize < 2 {
		errs = append(errs, fmt.Errorf("pipeline.chunk_size %d must be at least 2", cfg.Pipeline.ChunkSize))
	}
	if cfg.Pipeline.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("pipeline.sample_rate %d must not be negative", cfg.Pipeline.SampleRate))
	}

	// Fusion
	if cfg.Fusion.Voice != 0 || cfg.Fusion.Text != 0 {
		if err := cfg.Fusion.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("fusion: %w", err))
		}
	}

	// Memory
	if cfg.Memory.Retention < 0 {
		errs = append(errs, fmt.Errorf("memory.retention %v must not be negative", cfg.Memory.Retention))
	}
	if cfg.Memory.PurgeInterval < 0 {
		errs = append(errs, fmt.Errorf("memory.purge_interval %v must not be negative", cfg.Memory.PurgeInterval))
	}
	for name, v := range map[string]int{
		"memory.stability_window": cfg.Memory.StabilityWindow,
		"memory.trend_window":     cfg.Memory.TrendWindow,
		"memory.max_entries":      cfg.Memory.MaxEntries,
		"crisis.hysteresis":       cfg.Crisis.Hysteresis,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s %d must not be negative", name, v))
		}
	}

	// Crisis
	if cfg.Crisis.Thresholds != (crisis.Thresholds{}) {
		if err := cfg.Crisis.Thresholds.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("crisis.thresholds: %w", err))
		}
	}

	// Voice
	if err := cfg.Voice.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("voice: %w", err))
	}

	// Lexical
	for name, v := range map[string]float64{
		"lexical.fuzzy_threshold":    cfg.Lexical.FuzzyThreshold,
		"lexical.phonetic_threshold": cfg.Lexical.PhoneticThreshold,
	} {
		if v > 1 {
			errs = append(errs, fmt.Errorf("%s %v must not exceed 1", name, v))
		}
	}
	for name := range cfg.Lexical.ExtraKeywords {
		e, err := affect.ParseEmotion(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("lexical.extra_keywords: %w", err))
			continue
		}
		if e == affect.EmotionCrisis || e == affect.EmotionNeutral {
			errs = append(errs, fmt.Errorf("lexical.extra_keywords: %q cannot carry keywords; use extra_crisis_phrases", name))
		}
	}

	// Alerts
	errs = append(errs, validateAlerts(cfg)...)

	// Archive
	if cfg.Archive.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("archive.max_conns %d must not be negative", cfg.Archive.MaxConns))
	}

	return errors.Join(errs...)
}

func validateAlerts(cfg *Config) []error {
	var errs []error
	a := cfg.Alerts
	if a.InitialBackoff < 0 || a.MaxBackoff < 0 {
		errs = append(errs, errors.New("alerts backoff durations must not be negative"))
	}
	if a.InitialBackoff > 0 && a.MaxBackoff > 0 && a.InitialBackoff > a.MaxBackoff {
		errs = append(errs, fmt.Errorf("alerts.initial_backoff %v exceeds alerts.max_backoff %v", a.InitialBackoff, a.MaxBackoff))
	}
	if a.MaxBacklog < 0 {
		errs = append(errs, fmt.Errorf("alerts.max_backlog %d must not be negative", a.MaxBacklog))
	}

	seen := make(map[string]int, len(a.Targets))
	for i, t := range a.Targets {
		prefix := fmt.Sprintf("alerts.targets[%d]", i)
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[t.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of alerts.targets[%d]", prefix, t.Name, prev))
			}
			seen[t.Name] = i
		}
		if len(t.Publishers) == 0 {
			errs = append(errs, fmt.Errorf("%s.publishers must not be empty", prefix))
		}
		for j, p := range t.Publishers {
			pp := fmt.Sprintf("%s.publishers[%d]", prefix, j)
			switch p.Type {
			case "":
				errs = append(errs, fmt.Errorf("%s.type is required", pp))
			case PublisherPostgres:
				if cfg.Archive.PostgresDSN == "" {
					errs = append(errs, fmt.Errorf("%s: type %q requires archive.postgres_dsn", pp, p.Type))
				}
			case PublisherOperator:
				if !cfg.Operator.Enabled {
					errs = append(errs, fmt.Errorf("%s: type %q requires operator.enabled", pp, p.Type))
				}
			default:
				validatePublisherType(p.Type)
			}
		}
	}
	return errs
}

// validatePublisherType logs a warning if name is not a built-in type. Third
// parties may register their own factories, so this is not an error.
func validatePublisherType(name string) {
	if slices.Contains(ValidPublisherTypes, name) {
		return
	}
	slog.Warn("unknown publisher type; may be a typo or third-party publisher",
		"type", name,
		"known", ValidPublisherTypes,
	)
}
