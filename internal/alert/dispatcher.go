// Package alert delivers crisis transitions and turn telemetry to external
// publishers without ever blocking the pipeline.
//
// A [Dispatcher] implements [affect.EventSink]. Every configured [Target] owns
// an unbounded FIFO queue and one worker goroutine. The worker hands each
// event to the target's publishers through a [resilience.FallbackGroup], so a
// failing primary is bypassed in favour of its fallbacks, and retries with
// exponential backoff until the event is delivered or the dispatcher closes.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/attune/internal/observe"
	"github.com/MrWong99/attune/internal/resilience"
	"github.com/MrWong99/attune/pkg/affect"
	"go.opentelemetry.io/otel/metric"
)

// Publisher is an outbound sink for events. Implementations must be safe for
// use by one goroutine per target; they are never called concurrently for
// the same target.
type Publisher interface {
	PublishTransition(ctx context.Context, ev affect.CrisisTransitionEvent) error
	PublishTurn(ctx context.Context, t affect.TurnTelemetry) error
}

// NamedPublisher labels a publisher for logs, metrics and breaker state.
type NamedPublisher struct {
	Name      string
	Publisher Publisher
}

// Target is one independent delivery queue.
type Target struct {
	Name string

	// Publishers are tried in order; the first is the primary.
	Publishers []NamedPublisher

	// Turns also forwards per-turn telemetry. Transitions are always sent.
	Turns bool
}

// ErrClosed is returned by [Dispatcher.Close] when called twice.
var ErrClosed = errors.New("alert: dispatcher closed")

// Defaults for [NewDispatcher].
const (
	DefaultInitialBackoff = 200 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	DefaultAttemptTimeout = 5 * time.Second
)

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithBackoff sets the first retry delay and its cap.
func WithBackoff(initial, max time.Duration) Option {
	return func(d *Dispatcher) {
		if initial > 0 {
			d.initialBackoff = initial
		}
		if max > 0 {
			d.maxBackoff = max
		}
	}
}

// WithAttemptTimeout bounds a single publish attempt.
func WithAttemptTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.attemptTimeout = t
		}
	}
}

// WithBreaker configures the per-publisher circuit breakers.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(d *Dispatcher) { d.breaker = cfg }
}

// WithMetrics records queue depth and delivery outcomes.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher fans events out to targets. All methods are safe for concurrent
// use.
type Dispatcher struct {
	initialBackoff time.Duration
	maxBackoff     time.Duration
	attemptTimeout time.Duration
	breaker        resilience.CircuitBreakerConfig
	metrics        *observe.Metrics

	workers []*worker

	// mu orders enqueues against Close: every push that saw closed == false
	// lands before closing is closed, so workers drain it.
	mu      sync.RWMutex
	closed  bool
	closing chan struct{} // closed by Close: finish the backlog, then exit
	abort   chan struct{} // closed when Close's ctx ends: exit now
	wg      sync.WaitGroup
}

var _ affect.EventSink = (*Dispatcher)(nil)

// NewDispatcher starts one worker per target. Every target needs a name and at
// least one publisher.
func NewDispatcher(targets []Target, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		attemptTimeout: DefaultAttemptTimeout,
		closing:        make(chan struct{}),
		abort:          make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	if d.initialBackoff > d.maxBackoff {
		d.initialBackoff = d.maxBackoff
	}

	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t.Name == "" {
			return nil, errors.New("alert: target without name")
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("alert: duplicate target %q", t.Name)
		}
		seen[t.Name] = true
		if len(t.Publishers) == 0 {
			return nil, fmt.Errorf("alert: target %q has no publishers", t.Name)
		}
		d.workers = append(d.workers, d.newWorker(t))
	}
	for _, w := range d.workers {
		d.wg.Add(1)
		go w.run()
	}
	return d, nil
}

func (d *Dispatcher) newWorker(t Target) *worker {
	cfg := resilience.FallbackConfig{CircuitBreaker: d.breaker}
	userHook := cfg.CircuitBreaker.OnStateChange
	cfg.CircuitBreaker.OnStateChange = func(name string, from, to resilience.State) {
		slog.Info("alert publisher breaker changed state",
			"target", t.Name, "publisher", name, "from", from.String(), "to", to.String())
		if userHook != nil {
			userHook(name, from, to)
		}
	}
	group := resilience.NewFallbackGroup(t.Publishers[0].Publisher, t.Publishers[0].Name, cfg)
	for _, p := range t.Publishers[1:] {
		group.AddFallback(p.Name, p.Publisher)
	}
	return &worker{
		d:     d,
		name:  t.Name,
		turns: t.Turns,
		group: group,
		wake:  make(chan struct{}, 1),
	}
}

// EmitTransition queues ev on every target. It never blocks on delivery.
func (d *Dispatcher) EmitTransition(ctx context.Context, ev affect.CrisisTransitionEvent) {
	d.enqueue(ctx, item{transition: &ev}, func(*worker) bool { return true })
}

// EmitTurn queues t on every target that forwards turn telemetry.
func (d *Dispatcher) EmitTurn(ctx context.Context, t affect.TurnTelemetry) {
	d.enqueue(ctx, item{turn: &t}, func(w *worker) bool { return w.turns })
}

func (d *Dispatcher) enqueue(ctx context.Context, it item, want func(*worker) bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		observe.Logger(ctx).Warn("alert: event after close not delivered",
			"session_id", it.sessionID(), "kind", it.kind())
		return
	}
	for _, w := range d.workers {
		if want(w) {
			w.push(ctx, it)
		}
	}
}

// Backlog returns the number of undelivered events per target.
func (d *Dispatcher) Backlog() map[string]int {
	out := make(map[string]int, len(d.workers))
	for _, w := range d.workers {
		out[w.name] = w.len()
	}
	return out
}

// TotalBacklog sums [Dispatcher.Backlog].
func (d *Dispatcher) TotalBacklog() int {
	n := 0
	for _, w := range d.workers {
		n += w.len()
	}
	return n
}

// Close stops accepting events and lets workers drain their queues until ctx
// ends. Events still queued at that point are logged with their count and
// dropped.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	close(d.closing)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		close(d.abort)
		<-done
	}

	var errs []error
	for _, w := range d.workers {
		if n := w.len(); n > 0 {
			slog.Warn("alert: undelivered events at shutdown", "target", w.name, "count", n)
			errs = append(errs, fmt.Errorf("alert: target %q: %d events undelivered", w.name, n))
		}
	}
	return errors.Join(errs...)
}

// backoff returns the delay before retry number attempt (1-based).
func (d *Dispatcher) backoff(attempt int) time.Duration {
	b := d.initialBackoff
	for i := 1; i < attempt && b < d.maxBackoff; i++ {
		b *= 2
	}
	return min(b, d.maxBackoff)
}

// item is a queued event: exactly one of the pointers is set.
type item struct {
	transition *affect.CrisisTransitionEvent
	turn       *affect.TurnTelemetry
}

func (it item) sessionID() string {
	if it.transition != nil {
		return it.transition.SessionID
	}
	return it.turn.SessionID
}

func (it item) kind() string {
	if it.transition != nil {
		return "transition"
	}
	return "turn"
}

func (it item) publish(ctx context.Context, p Publisher) error {
	if it.transition != nil {
		return p.PublishTransition(ctx, *it.transition)
	}
	return p.PublishTurn(ctx, *it.turn)
}

type worker struct {
	d     *Dispatcher
	name  string
	turns bool
	group *resilience.FallbackGroup[Publisher]
	wake  chan struct{}

	mu    sync.Mutex
	queue []item
}

func (w *worker) push(ctx context.Context, it item) {
	w.mu.Lock()
	w.queue = append(w.queue, it)
	w.mu.Unlock()
	w.depth(ctx, 1)
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *worker) peek() (item, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return item{}, false
	}
	return w.queue[0], true
}

func (w *worker) pop() {
	w.mu.Lock()
	w.queue[0] = item{}
	w.queue = w.queue[1:]
	w.mu.Unlock()
	w.depth(context.Background(), -1)
}

func (w *worker) depth(ctx context.Context, delta int64) {
	if w.d.metrics != nil {
		w.d.metrics.AlertQueueDepth.Add(ctx, delta, metric.WithAttributes(observe.Attr("target", w.name)))
	}
}

func (w *worker) run() {
	defer w.d.wg.Done()
	for {
		it, ok := w.peek()
		if !ok {
			select {
			case <-w.wake:
				continue
			case <-w.d.closing:
				if w.len() == 0 {
					return
				}
				continue
			case <-w.d.abort:
				return
			}
		}
		if !w.deliver(it) {
			return
		}
		w.pop()
	}
}

// deliver retries it until a publisher accepts it. It returns false when the
// dispatcher aborts first.
func (w *worker) deliver(it item) bool {
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), w.d.attemptTimeout)
		via, err := w.group.Execute(ctx, func(ctx context.Context, p Publisher) error {
			return it.publish(ctx, p)
		})
		cancel()
		if err == nil {
			w.record(observe.StatusOK)
			if attempt > 1 {
				slog.Info("alert: delivered after retry",
					"target", w.name, "publisher", via, "attempt", attempt)
			}
			return true
		}
		w.record(observe.StatusError)

		wait := w.d.backoff(attempt)
		slog.Warn("alert: delivery failed, retrying",
			"target", w.name,
			"kind", it.kind(),
			"session_id", it.sessionID(),
			"attempt", attempt,
			"retry_in", wait,
			"err", err,
		)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-w.d.abort:
			timer.Stop()
			return false
		}
	}
}

func (w *worker) record(status string) {
	if w.d.metrics != nil {
		w.d.metrics.RecordAlertDelivery(context.Background(), w.name, status)
	}
}
