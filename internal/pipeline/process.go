package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/attune/internal/advisor"
	"github.com/MrWong99/attune/internal/crisis"
	"github.com/MrWong99/attune/internal/fusion"
	"github.com/MrWong99/attune/internal/lexical"
	"github.com/MrWong99/attune/internal/observe"
	"github.com/MrWong99/attune/internal/render"
	"github.com/MrWong99/attune/pkg/affect"
	"github.com/MrWong99/attune/pkg/audio"
)

// Turn is the input of one conversational turn. At least one of Audio, PCM
// and Text must be present. When both Audio and PCM are set, Audio wins.
type Turn struct {
	SessionID string

	// Audio is an already normalised frame.
	Audio *audio.Frame

	// PCM is raw little-endian int16 audio, normalised inside the voice
	// branch.
	PCM *audio.PCM

	// Text is the transcript. Blank text counts as absent.
	Text string
}

func (t Turn) hasAudio() bool { return t.Audio != nil || t.PCM != nil }
func (t Turn) hasText() bool  { return strings.TrimSpace(t.Text) != "" }

// branchResult is what one modality branch hands back to Process.
type branchResult struct {
	modality   affect.Modality
	state      affect.EmotionalState
	prosody    *affect.ProsodyFeatures
	assessment *crisis.Assessment
	took       time.Duration
	err        error
}

// Process runs one turn. On success the fused state has been committed to the
// session's memory and crisis tracker exactly once. On error nothing was
// committed and callers should answer with [affect.FallbackResult].
//
// Errors: [affect.InputError] for a turn without usable input,
// [affect.StateError] for an unknown session, [affect.TimeoutError] when no
// branch finished within the latency budget, and the context's error when ctx
// ended before the commit.
func (p *Pipeline) Process(ctx context.Context, t Turn) (*affect.InteractionResult, error) {
	start := time.Now()
	ctx, span := observe.SessionSpan(ctx, "pipeline.process", t.SessionID)
	defer span.End()

	res, err := p.process(ctx, t, start)
	status := turnStatus(res, err)
	p.metrics.RecordTurn(ctx, status, time.Since(start))
	span.SetAttributes(attribute.String("status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observe.SessionLogger(ctx, t.SessionID).Warn("pipeline: turn failed", "status", status, "err", err)
	}
	return res, err
}

func turnStatus(res *affect.InteractionResult, err error) string {
	switch {
	case err == nil && len(res.Degraded) > 0:
		return observe.StatusDegraded
	case err == nil:
		return observe.StatusOK
	case errors.Is(err, affect.ErrTimeout):
		return observe.StatusTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return observe.StatusAborted
	default:
		return observe.StatusError
	}
}

func (p *Pipeline) process(ctx context.Context, t Turn, start time.Time) (*affect.InteractionResult, error) {
	if t.SessionID == "" {
		return nil, &affect.InputError{Op: "pipeline: process", Reason: "empty session id"}
	}
	if !t.hasAudio() && !t.hasText() {
		return nil, &affect.InputError{Op: "pipeline: process", Reason: "turn carries neither audio nor text"}
	}
	if !p.memory.Has(t.SessionID) {
		if !p.autoStart.Load() {
			return nil, affect.UnknownSession("pipeline: process", t.SessionID)
		}
		if _, err := p.StartSession(ctx, t.SessionID); err != nil {
			return nil, err
		}
	}

	voice, text, degraded, err := p.runBranches(ctx, t)
	if err != nil {
		return nil, err
	}

	var vs, ts *affect.EmotionalState
	if voice != nil {
		vs = &voice.state
	}
	if text != nil {
		ts = &text.state
	}
	fused, err := p.engine.Fuse(vs, ts)
	if err != nil {
		return nil, err
	}

	c, err := p.commit(ctx, t.SessionID, fused)
	if err != nil {
		return nil, err
	}

	voiceParams := p.mapper.MapAt(fused, c.level)
	observe.SessionLogger(ctx, t.SessionID).Debug("pipeline: voice mapped",
		"rule", render.RuleName(fused, c.level), "style", voiceParams.Style, "level", c.level)
	style := advisor.Advise(fused, c.level)
	res := &affect.InteractionResult{
		SessionID:   t.SessionID,
		Turn:        c.turn,
		State:       fused,
		CrisisLevel: c.level,
		Voice:       voiceParams,
		Response:    style,
		PromptHints: advisor.PromptHints(style, fused, &c.context),
		Degraded:    degraded,
		Committed:   true,
	}
	if voice != nil {
		res.Prosody = voice.prosody
		res.Indicators = &voice.assessment.Indicators
		res.CrisisScore = voice.assessment.Score
	}
	res.Latency = time.Since(start)

	p.sink.EmitTurn(ctx, affect.TurnTelemetry{
		SessionID: t.SessionID,
		Turn:      c.turn,
		State:     fused,
		Level:     c.level,
		Degraded:  degraded,
		Latency:   res.Latency,
		Timestamp: time.Now(),
	})
	return res, nil
}

// runBranches starts the branches the turn has input for and collects them
// until both reported or the latency budget elapsed. Branches still running
// at that point are abandoned; their results go to a buffered channel and are
// dropped.
func (p *Pipeline) runBranches(ctx context.Context, t Turn) (voice, text *branchResult, degraded []affect.Modality, err error) {
	budget := p.LatencyBudget()
	scorer := p.scorer.Load()
	lex := p.lexical.Load()

	results := make(chan branchResult, 2)
	pending := map[affect.Modality]bool{}
	if t.hasAudio() {
		pending[affect.ModalityVoice] = true
		go p.runBranch(ctx, t.SessionID, affect.ModalityVoice, results, func() branchResult {
			return p.voiceBranch(t, scorer)
		})
	}
	if t.hasText() {
		pending[affect.ModalityText] = true
		go p.runBranch(ctx, t.SessionID, affect.ModalityText, results, func() branchResult {
			return textBranch(t.Text, lex)
		})
	}

	timer := time.NewTimer(budget)
	defer timer.Stop()

	var errs []error
	log := observe.SessionLogger(ctx, t.SessionID)
collect:
	for len(pending) > 0 {
		select {
		case r := <-results:
			delete(pending, r.modality)
			p.metrics.RecordBranch(ctx, string(r.modality), r.took)
			if r.err != nil {
				log.Warn("pipeline: branch failed, degrading to remaining modality",
					"modality", r.modality, "err", r.err)
				p.metrics.RecordDegraded(ctx, string(r.modality))
				degraded = append(degraded, r.modality)
				errs = append(errs, r.err)
				continue
			}
			if r.modality == affect.ModalityVoice {
				voice = &r
			} else {
				text = &r
			}
		case <-timer.C:
			for m := range pending {
				log.Warn("pipeline: branch exceeded latency budget", "modality", m, "budget", budget)
				p.metrics.RecordDegraded(ctx, string(m))
				degraded = append(degraded, m)
			}
			break collect
		case <-ctx.Done():
			return nil, nil, nil, ctx.Err()
		}
	}
	sortModalities(degraded)

	if voice != nil || text != nil {
		return voice, text, degraded, nil
	}
	if len(pending) > 0 {
		return nil, nil, nil, &affect.TimeoutError{Op: "pipeline: process", Budget: budget}
	}
	return nil, nil, nil, &affect.InputError{Op: "pipeline: process", Reason: "no modality produced a result", Err: errors.Join(errs...)}
}

// runBranch runs fn and delivers its result, converting a panic into a branch
// error.
func (p *Pipeline) runBranch(ctx context.Context, sessionID string, m affect.Modality, out chan<- branchResult, fn func() branchResult) {
	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			observe.SessionLogger(ctx, sessionID).Error("pipeline: branch panicked",
				"modality", m, "panic", v, "stack", string(debug.Stack()))
			out <- branchResult{modality: m, took: time.Since(start), err: fmt.Errorf("pipeline: %s branch panicked: %v", m, v)}
		}
	}()
	r := fn()
	r.modality = m
	r.took = time.Since(start)
	out <- r
}

func (p *Pipeline) voiceBranch(t Turn, scorer *crisis.Scorer) branchResult {
	var frame audio.Frame
	if t.Audio != nil {
		frame = *t.Audio
	} else {
		f, err := p.normalizer.Normalize(*t.PCM)
		if err != nil {
			return branchResult{err: &affect.InputError{Op: "pipeline: voice", Reason: "malformed pcm", Err: err}}
		}
		frame = f
	}
	features, err := p.extractor.Extract(frame)
	if err != nil {
		return branchResult{err: err}
	}
	a := scorer.Assess(features)
	return branchResult{
		state:      p.classifier.Classify(features, a),
		prosody:    &features,
		assessment: &a,
	}
}

func textBranch(text string, lex *lexical.Classifier) branchResult {
	return branchResult{state: fusion.TextState(lex.Classify(text))}
}

// sortModalities puts voice before text so results are deterministic.
func sortModalities(ms []affect.Modality) {
	if len(ms) == 2 && ms[0] == affect.ModalityText {
		ms[0], ms[1] = ms[1], ms[0]
	}
}
