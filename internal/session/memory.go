// Package session keeps the short-term emotional memory of each conversation:
// a time-bounded history of fused states per session id and the aggregates
// derived from it (trend, dominant emotion, stability).
//
// Memory is an explicit store handed to the pipeline; there is no process-wide
// instance. Entries older than the retention window are ignored when reading
// and compacted away when writing. Idle sessions are removed only when the
// owner calls [Memory.PurgeExpired].
package session

import (
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/attune/pkg/affect"
)

const (
	DefaultRetention       = 30 * time.Minute
	DefaultStabilityWindow = 5
	DefaultTrendWindow     = 3
	DefaultMaxEntries      = 512

	// trendDeadBand is the minimum change in mean pleasure that counts as a
	// trend.
	trendDeadBand = 0.1

	shardCount = 32
)

// Trend is the direction of recent pleasure.
type Trend string

const (
	TrendPositive Trend = "positive"
	TrendNegative Trend = "negative"
	TrendNeutral  Trend = "neutral"
)

// Entry is one recorded state with its commit time.
type Entry struct {
	State affect.EmotionalState `json:"state"`
	At    time.Time             `json:"at"`
}

// Context is the aggregate view of a session's recent emotional history.
type Context struct {
	SessionID string         `json:"session_id"`
	Trend     Trend          `json:"trend"`
	Dominant  affect.Emotion `json:"dominant_emotion"`
	Stability float64        `json:"stability"`

	// Turns is the number of entries inside the retention window.
	Turns        int                `json:"turns"`
	MeanPleasure float64            `json:"mean_pleasure"`
	MeanStress   float64            `json:"mean_stress"`
	PeakCrisis   affect.CrisisLevel `json:"peak_crisis"`
	LastActivity time.Time          `json:"last_activity"`
}

type history struct {
	mu           sync.Mutex
	entries      []Entry
	lastActivity time.Time
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*history
}

// Memory is a sharded, session-keyed emotional history store. All exported
// methods are safe for concurrent use; operations on different sessions do
// not contend beyond a brief shard lookup.
type Memory struct {
	shards [shardCount]shard

	retention       time.Duration
	stabilityWindow int
	trendWindow     int
	maxEntries      int
	retainIf        func(id string) bool
	now             func() time.Time
}

// Option configures a [Memory].
type Option func(*Memory)

// WithRetention sets how long entries count towards aggregates and how long
// a session may stay idle before it can be purged.
func WithRetention(d time.Duration) Option {
	return func(m *Memory) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithStabilityWindow sets the number of most recent entries used for the
// stability score.
func WithStabilityWindow(n int) Option {
	return func(m *Memory) {
		if n >= 2 {
			m.stabilityWindow = n
		}
	}
}

// WithTrendWindow sets the number of entries in each half of the trend
// comparison.
func WithTrendWindow(n int) Option {
	return func(m *Memory) {
		if n >= 1 {
			m.trendWindow = n
		}
	}
}

// WithMaxEntries caps the entries kept per session regardless of age.
func WithMaxEntries(n int) Option {
	return func(m *Memory) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// WithRetainIf registers a predicate consulted by [Memory.PurgeExpired]:
// idle sessions for which it returns true are kept.
func WithRetainIf(fn func(id string) bool) Option {
	return func(m *Memory) { m.retainIf = fn }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// NewMemory returns an empty store.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		retention:       DefaultRetention,
		stabilityWindow: DefaultStabilityWindow,
		trendWindow:     DefaultTrendWindow,
		maxEntries:      DefaultMaxEntries,
		now:             time.Now,
	}
	for i := range m.shards {
		m.shards[i].sessions = make(map[string]*history)
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Retention returns the configured retention window.
func (m *Memory) Retention() time.Duration { return m.retention }

func (m *Memory) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &m.shards[h.Sum32()%shardCount]
}

func (m *Memory) lookup(op, id string) (*history, error) {
	sh := m.shardFor(id)
	sh.mu.RLock()
	h, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if !ok {
		return nil, affect.UnknownSession(op, id)
	}
	return h, nil
}

// Open registers a session. It reports whether the session was created;
// opening a known session only refreshes its activity time.
func (m *Memory) Open(id string) (bool, error) {
	if id == "" {
		return false, &affect.InputError{Op: "session: open", Reason: "empty session id"}
	}
	sh := m.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if h, ok := sh.sessions[id]; ok {
		h.mu.Lock()
		h.lastActivity = m.now()
		h.mu.Unlock()
		return false, nil
	}
	sh.sessions[id] = &history{lastActivity: m.now()}
	return true, nil
}

// Has reports whether the session is registered.
func (m *Memory) Has(id string) bool {
	_, err := m.lookup("session: has", id)
	return err == nil
}

// Record appends state to the session's history. The state is stored by
// value and never modified afterwards.
func (m *Memory) Record(id string, state affect.EmotionalState) error {
	h, err := m.lookup("session: record", id)
	if err != nil {
		return err
	}
	now := m.now()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, Entry{State: state, At: now})
	h.lastActivity = now

	// Compact the expired prefix and enforce the size cap.
	cut := firstLive(h.entries, now.Add(-m.retention))
	if over := len(h.entries) - cut - m.maxEntries; over > 0 {
		cut += over
	}
	if cut > 0 {
		h.entries = append(h.entries[:0:0], h.entries[cut:]...)
	}
	return nil
}

// History returns the entries inside the retention window, oldest first.
func (m *Memory) History(id string) ([]Entry, error) {
	h, err := m.lookup("session: history", id)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	live := h.entries[firstLive(h.entries, m.now().Add(-m.retention)):]
	return append([]Entry(nil), live...), nil
}

// Context computes the aggregates over the retention window.
func (m *Memory) Context(id string) (Context, error) {
	h, err := m.lookup("session: context", id)
	if err != nil {
		return Context{}, err
	}
	h.mu.Lock()
	live := h.entries[firstLive(h.entries, m.now().Add(-m.retention)):]
	entries := append([]Entry(nil), live...)
	last := h.lastActivity
	h.mu.Unlock()

	c := Context{
		SessionID:    id,
		Trend:        trend(entries, m.trendWindow),
		Dominant:     dominant(entries),
		Stability:    stability(entries, m.stabilityWindow),
		Turns:        len(entries),
		LastActivity: last,
	}
	if len(entries) > 0 {
		var p, s float64
		for _, e := range entries {
			p += e.State.Pleasure
			s += e.State.Stress
			c.PeakCrisis = affect.MaxLevel(c.PeakCrisis, e.State.CrisisLevel)
		}
		c.MeanPleasure = p / float64(len(entries))
		c.MeanStress = s / float64(len(entries))
	}
	return c, nil
}

// Close removes a session. It reports whether the session existed.
func (m *Memory) Close(id string) bool {
	sh := m.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.sessions[id]
	delete(sh.sessions, id)
	return ok
}

// PurgeExpired removes every session idle for longer than the retention
// window, except those the retain predicate protects, and returns their ids
// in sorted order.
func (m *Memory) PurgeExpired() []string {
	cutoff := m.now().Add(-m.retention)
	var purged []string
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		for id, h := range sh.sessions {
			h.mu.Lock()
			idle := h.lastActivity.Before(cutoff)
			h.mu.Unlock()
			if !idle {
				continue
			}
			if m.retainIf != nil && m.retainIf(id) {
				slog.Debug("session memory: retaining idle session", "session_id", id)
				continue
			}
			delete(sh.sessions, id)
			purged = append(purged, id)
		}
		sh.mu.Unlock()
	}
	sort.Strings(purged)
	return purged
}

// Len returns the number of registered sessions.
func (m *Memory) Len() int {
	n := 0
	for i := range m.shards {
		m.shards[i].mu.RLock()
		n += len(m.shards[i].sessions)
		m.shards[i].mu.RUnlock()
	}
	return n
}

// firstLive returns the index of the first entry at or after cutoff. Entries
// are appended in time order.
func firstLive(entries []Entry, cutoff time.Time) int {
	return sort.Search(len(entries), func(i int) bool { return !entries[i].At.Before(cutoff) })
}

func trend(entries []Entry, window int) Trend {
	n := len(entries)
	k := min(window, n/2)
	if k < 1 {
		return TrendNeutral
	}
	recent := meanPleasure(entries[n-k:])
	previous := meanPleasure(entries[n-2*k : n-k])
	switch d := recent - previous; {
	case d > trendDeadBand:
		return TrendPositive
	case d < -trendDeadBand:
		return TrendNegative
	}
	return TrendNeutral
}

func meanPleasure(entries []Entry) float64 {
	var sum float64
	for _, e := range entries {
		sum += e.State.Pleasure
	}
	return sum / float64(len(entries))
}

// dominant returns the most frequent primary emotion; ties go to the emotion
// seen most recently.
func dominant(entries []Entry) affect.Emotion {
	if len(entries) == 0 {
		return affect.EmotionNeutral
	}
	counts := make(map[affect.Emotion]int)
	lastSeen := make(map[affect.Emotion]int)
	for i, e := range entries {
		counts[e.State.PrimaryEmotion]++
		lastSeen[e.State.PrimaryEmotion] = i
	}
	best := entries[len(entries)-1].State.PrimaryEmotion
	for e, c := range counts {
		if c > counts[best] || (c == counts[best] && lastSeen[e] > lastSeen[best]) {
			best = e
		}
	}
	return best
}

// stability is 1 - mean(var(pleasure), var(arousal)) over the most recent
// window entries. Fewer than two entries are perfectly stable.
func stability(entries []Entry, window int) float64 {
	if len(entries) > window {
		entries = entries[len(entries)-window:]
	}
	if len(entries) < 2 {
		return 1
	}
	p := make([]float64, len(entries))
	a := make([]float64, len(entries))
	for i, e := range entries {
		p[i] = e.State.Pleasure
		a[i] = e.State.Arousal
	}
	return affect.Clamp01(1 - (stat.PopVariance(p, nil)+stat.PopVariance(a, nil))/2)
}
