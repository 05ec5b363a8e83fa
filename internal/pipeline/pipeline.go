// Package pipeline is the per-turn orchestrator. It runs the voice branch
// (prosody extraction, crisis scoring, voice classification) and the text
// branch (lexical classification) concurrently, fuses whatever finished within
// the latency budget, commits the fused state to the session's emotional
// memory and crisis tracker, and derives voice rendering parameters and a
// response style from the result.
//
// Sessions are opened explicitly with [Pipeline.StartSession] unless
// auto-start is enabled. Turns of one session are serialised; turns of
// different sessions never contend.
package pipeline

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrWong99/attune/internal/crisis"
	"github.com/MrWong99/attune/internal/fusion"
	"github.com/MrWong99/attune/internal/lexical"
	"github.com/MrWong99/attune/internal/observe"
	"github.com/MrWong99/attune/internal/prosody"
	"github.com/MrWong99/attune/internal/render"
	"github.com/MrWong99/attune/internal/session"
	"github.com/MrWong99/attune/pkg/affect"
	"github.com/MrWong99/attune/pkg/audio"
)

// Defaults.
const (
	DefaultLatencyBudget    = 300 * time.Millisecond
	DefaultBatchParallelism = 8
)

// Tunables are the settings that can be swapped while the pipeline is
// serving. See [Pipeline.Reconfigure].
type Tunables struct {
	// LatencyBudget is the soft per-turn deadline for the modality branches.
	LatencyBudget time.Duration

	// BatchParallelism caps the sessions processed concurrently by
	// [Pipeline.ProcessBatch].
	BatchParallelism int

	// AutoStartSessions opens unknown sessions on their first turn.
	AutoStartSessions bool

	Weights    fusion.Weights
	Thresholds crisis.Thresholds
	Hysteresis int
	Voice      render.Config

	// Lexical replaces the text classifier. Nil keeps the current one.
	Lexical *lexical.Classifier
}

// DefaultTunables returns the built-in settings.
func DefaultTunables() Tunables {
	return Tunables{
		LatencyBudget:    DefaultLatencyBudget,
		BatchParallelism: DefaultBatchParallelism,
		Weights:          fusion.DefaultWeights(),
		Thresholds:       crisis.DefaultThresholds(),
		Hysteresis:       crisis.DefaultHysteresis,
		Voice:            render.Config{VoiceID: "default"},
	}
}

// Validate checks every field and returns all problems joined.
func (t Tunables) Validate() error {
	var errs []error
	if t.LatencyBudget <= 0 {
		errs = append(errs, fmt.Errorf("latency budget %v must be positive", t.LatencyBudget))
	}
	if t.BatchParallelism < 1 {
		errs = append(errs, fmt.Errorf("batch parallelism %d must be at least 1", t.BatchParallelism))
	}
	if t.Hysteresis < 1 {
		errs = append(errs, fmt.Errorf("hysteresis %d must be at least 1", t.Hysteresis))
	}
	if err := t.Weights.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("fusion: %w", err))
	}
	if err := t.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("crisis thresholds: %w", err))
	}
	if err := t.Voice.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("voice: %w", err))
	}
	return errors.Join(errs...)
}

// Option configures a [Pipeline].
type Option func(*options)

type options struct {
	tunables   Tunables
	sink       affect.EventSink
	metrics    *observe.Metrics
	classifier fusion.VoiceClassifier
	chunkSize  int
	sampleRate int
	memoryOpts []session.Option
	trackOpts  []crisis.Option
}

// WithTunables sets the initial tunables. Defaults: [DefaultTunables].
func WithTunables(t Tunables) Option {
	return func(o *options) { o.tunables = t }
}

// WithSink receives crisis transitions and per-turn telemetry. Default:
// events are discarded.
func WithSink(s affect.EventSink) Option {
	return func(o *options) { o.sink = s }
}

// WithMetrics records turn metrics. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithVoiceClassifier replaces the heuristic [fusion.VoiceEstimator].
func WithVoiceClassifier(c fusion.VoiceClassifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithChunkSize sets the prosody analysis chunk length in samples.
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithSampleRate sets the rate raw PCM turns are resampled to before
// analysis. Zero keeps the source rate.
func WithSampleRate(hz int) Option {
	return func(o *options) { o.sampleRate = hz }
}

// WithMemoryOptions passes options to the session memory.
func WithMemoryOptions(opts ...session.Option) Option {
	return func(o *options) { o.memoryOpts = append(o.memoryOpts, opts...) }
}

// WithTrackerOptions passes options to the crisis tracker. Hysteresis is
// taken from the tunables.
func WithTrackerOptions(opts ...crisis.Option) Option {
	return func(o *options) { o.trackOpts = append(o.trackOpts, opts...) }
}

// Pipeline orchestrates turns. All methods are safe for concurrent use.
type Pipeline struct {
	extractor  *prosody.Extractor
	normalizer *audio.Normalizer
	classifier fusion.VoiceClassifier
	engine     *fusion.Engine
	mapper     *render.Mapper
	memory     *session.Memory
	tracker    *crisis.Tracker
	sink       affect.EventSink
	metrics    *observe.Metrics

	scorer      atomic.Pointer[crisis.Scorer]
	lexical     atomic.Pointer[lexical.Classifier]
	budget      atomic.Int64 // time.Duration
	parallelism atomic.Int64
	autoStart   atomic.Bool

	sessions sessionLocks
}

// New builds a pipeline. It fails when the tunables are invalid.
func New(opts ...Option) (*Pipeline, error) {
	o := options{
		tunables:   DefaultTunables(),
		classifier: fusion.VoiceEstimator{},
	}
	for _, fn := range opts {
		fn(&o)
	}
	if err := o.tunables.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if o.sink == nil {
		o.sink = affect.NopSink{}
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}

	var popts []prosody.Option
	if o.chunkSize > 0 {
		popts = append(popts, prosody.WithChunkSize(o.chunkSize))
	}

	p := &Pipeline{
		extractor:  prosody.New(popts...),
		normalizer: &audio.Normalizer{SampleRate: o.sampleRate},
		classifier: o.classifier,
		sink:       o.sink,
		metrics:    o.metrics,
	}
	p.sessions.init()

	var err error
	if p.engine, err = fusion.NewEngine(o.tunables.Weights); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if p.mapper, err = render.NewMapper(o.tunables.Voice); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	scorer, err := crisis.NewScorer(o.tunables.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p.scorer.Store(scorer)

	lex := o.tunables.Lexical
	if lex == nil {
		if lex, err = lexical.New(); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
	}
	p.lexical.Store(lex)

	trackOpts := append([]crisis.Option{crisis.WithHysteresis(o.tunables.Hysteresis)}, o.trackOpts...)
	p.tracker = crisis.NewTracker(&observedSink{next: o.sink, metrics: o.metrics}, trackOpts...)

	// Sessions waiting for an operator acknowledgement survive purges.
	memOpts := append([]session.Option{session.WithRetainIf(p.tracker.NeedsAttention)}, o.memoryOpts...)
	p.memory = session.NewMemory(memOpts...)

	p.budget.Store(int64(o.tunables.LatencyBudget))
	p.parallelism.Store(int64(o.tunables.BatchParallelism))
	p.autoStart.Store(o.tunables.AutoStartSessions)
	return p, nil
}

// Reconfigure validates t and swaps it in. Turns already running finish with
// the settings they started with. On error nothing changes.
func (p *Pipeline) Reconfigure(t Tunables) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("pipeline: reconfigure: %w", err)
	}
	scorer, err := crisis.NewScorer(t.Thresholds)
	if err != nil {
		return fmt.Errorf("pipeline: reconfigure: %w", err)
	}
	// Both were validated above.
	_ = p.engine.SetWeights(t.Weights)
	_ = p.mapper.SetConfig(t.Voice)

	p.scorer.Store(scorer)
	if t.Lexical != nil {
		p.lexical.Store(t.Lexical)
	}
	p.tracker.SetHysteresis(t.Hysteresis)
	p.budget.Store(int64(t.LatencyBudget))
	p.parallelism.Store(int64(t.BatchParallelism))
	p.autoStart.Store(t.AutoStartSessions)
	return nil
}

// LatencyBudget returns the current soft per-turn budget.
func (p *Pipeline) LatencyBudget() time.Duration {
	return time.Duration(p.budget.Load())
}

// Weights returns the current fusion weights.
func (p *Pipeline) Weights() fusion.Weights { return p.engine.Weights() }
