package pipeline

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/attune/internal/crisis"
	"github.com/MrWong99/attune/internal/observe"
	"github.com/MrWong99/attune/internal/session"
	"github.com/MrWong99/attune/pkg/affect"
)

const lockShards = 32

// sessionLock serialises the commit phase of one session.
type sessionLock struct {
	mu     sync.Mutex
	turns  int
	closed bool
}

type lockShard struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLocks is a sharded map of per-session locks.
type sessionLocks struct {
	shards [lockShards]lockShard
}

func (l *sessionLocks) init() {
	for i := range l.shards {
		l.shards[i].locks = make(map[string]*sessionLock)
	}
}

func (l *sessionLocks) shard(id string) *lockShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &l.shards[h.Sum32()%lockShards]
}

// get returns the lock of id, creating it when create is set.
func (l *sessionLocks) get(id string, create bool) *sessionLock {
	sh := l.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sl, ok := sh.locks[id]
	if !ok && create {
		sl = &sessionLock{}
		sh.locks[id] = sl
	}
	return sl
}

// remove detaches the lock of id. Goroutines already holding or waiting for
// it see closed once they acquire it.
func (l *sessionLocks) remove(id string) *sessionLock {
	sh := l.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sl := sh.locks[id]
	delete(sh.locks, id)
	return sl
}

// Snapshot is the externally visible state of one session.
type Snapshot struct {
	SessionID string          `json:"session_id"`
	Turns     int             `json:"turns"`
	Memory    session.Context `json:"memory"`
	Crisis    crisis.State    `json:"crisis"`
}

// committed is what the commit phase hands back to Process.
type committed struct {
	turn    int
	level   affect.CrisisLevel
	context session.Context
}

// commit records the fused state and feeds the crisis tracker under the
// session lock. Nothing is written when ctx has already ended.
func (p *Pipeline) commit(ctx context.Context, id string, s affect.EmotionalState) (committed, error) {
	if err := ctx.Err(); err != nil {
		return committed{}, err
	}
	sl := p.sessions.get(id, false)
	if sl == nil {
		return committed{}, affect.UnknownSession("pipeline: commit", id)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.closed {
		return committed{}, affect.UnknownSession("pipeline: commit", id)
	}
	// The lock may have been contended; re-check before writing.
	if err := ctx.Err(); err != nil {
		return committed{}, err
	}
	if err := p.memory.Record(id, s); err != nil {
		return committed{}, err
	}
	level, err := p.tracker.Observe(ctx, id, s.CrisisLevel)
	if err != nil {
		return committed{}, err
	}
	sl.turns++

	c, err := p.memory.Context(id)
	if err != nil {
		return committed{}, err
	}
	return committed{turn: sl.turns, level: level, context: c}, nil
}

// StartSession opens a session and returns its id. An empty id gets a fresh
// UUID. Starting a session that is already open only refreshes its activity
// time.
func (p *Pipeline) StartSession(ctx context.Context, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	var sl *sessionLock
	for {
		sl = p.sessions.get(id, true)
		sl.mu.Lock()
		if !sl.closed {
			break
		}
		// Lost a race against EndSession; the id is free again.
		sl.mu.Unlock()
	}
	defer sl.mu.Unlock()

	created, err := p.memory.Open(id)
	if err != nil {
		return "", err
	}
	p.tracker.Open(id)
	if created {
		p.metrics.ActiveSessions.Add(ctx, 1)
		observe.SessionLogger(ctx, id).Info("pipeline: session started")
	}
	return id, nil
}

// EndSession closes a session and forgets its memory and crisis state.
func (p *Pipeline) EndSession(ctx context.Context, id string) error {
	if sl := p.sessions.remove(id); sl != nil {
		sl.mu.Lock()
		sl.closed = true
		defer sl.mu.Unlock()
	}
	existed := p.memory.Close(id)
	p.tracker.Close(id)
	if !existed {
		return affect.UnknownSession("pipeline: end session", id)
	}
	p.metrics.ActiveSessions.Add(ctx, -1)
	observe.SessionLogger(ctx, id).Info("pipeline: session ended")
	return nil
}

// Acknowledge forwards an operator acknowledgement to the crisis tracker.
func (p *Pipeline) Acknowledge(ctx context.Context, id string) error {
	return p.tracker.Acknowledge(ctx, id)
}

// Context returns the aggregated memory and crisis state of a session.
func (p *Pipeline) Context(id string) (Snapshot, error) {
	mc, err := p.memory.Context(id)
	if err != nil {
		return Snapshot{}, err
	}
	cs, err := p.tracker.State(id)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{SessionID: id, Memory: mc, Crisis: cs}
	if sl := p.sessions.get(id, false); sl != nil {
		sl.mu.Lock()
		snap.Turns = sl.turns
		sl.mu.Unlock()
	}
	return snap, nil
}

// Sessions returns the number of open sessions.
func (p *Pipeline) Sessions() int { return p.memory.Len() }

// PurgeExpired closes every session idle for longer than the memory
// retention window and returns their ids. Sessions whose critical crisis
// has not been acknowledged are kept. The pipeline does not schedule this
// itself.
func (p *Pipeline) PurgeExpired(ctx context.Context) []string {
	ids := p.memory.PurgeExpired()
	for _, id := range ids {
		if sl := p.sessions.remove(id); sl != nil {
			sl.mu.Lock()
			sl.closed = true
			sl.mu.Unlock()
		}
		p.tracker.Close(id)
		p.metrics.ActiveSessions.Add(ctx, -1)
	}
	if len(ids) > 0 {
		observe.Logger(ctx).Info("pipeline: purged idle sessions", "count", len(ids), "session_ids", ids)
	}
	return ids
}

// History returns the recorded states of a session inside the retention
// window, oldest first.
func (p *Pipeline) History(id string) ([]session.Entry, error) {
	return p.memory.History(id)
}
