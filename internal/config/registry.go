package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/attune/internal/alert"
)

// ErrPublisherNotRegistered is returned by [Registry.CreatePublisher] when no
// factory has been registered under the requested type.
var ErrPublisherNotRegistered = errors.New("config: publisher not registered")

// PublisherFactory builds an alert publisher from its config entry.
type PublisherFactory func(PublisherEntry) (alert.Publisher, error)

// Registry maps publisher type names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]PublisherFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{publishers: make(map[string]PublisherFactory)}
}

// RegisterPublisher registers a publisher factory under typ.
// Subsequent calls with the same type overwrite the previous registration.
func (r *Registry) RegisterPublisher(typ string, factory PublisherFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[typ] = factory
}

// CreatePublisher instantiates a publisher using the factory registered under
// entry.Type. Returns [ErrPublisherNotRegistered] if there is none.
func (r *Registry) CreatePublisher(entry PublisherEntry) (alert.Publisher, error) {
	r.mu.RLock()
	factory, ok := r.publishers[entry.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPublisherNotRegistered, entry.Type)
	}
	return factory(entry)
}

// PublisherTypes returns the registered type names, sorted.
func (r *Registry) PublisherTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.publishers))
	for k := range r.publishers {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// BuildTargets creates every publisher of every configured alert target, in
// config order. The first publisher of each target is its primary.
func (r *Registry) BuildTargets(targets []AlertTarget) ([]alert.Target, error) {
	out := make([]alert.Target, 0, len(targets))
	for _, t := range targets {
		at := alert.Target{Name: t.Name, Turns: t.Turns}
		for i, entry := range t.Publishers {
			p, err := r.CreatePublisher(entry)
			if err != nil {
				return nil, fmt.Errorf("config: alert target %q publisher %d: %w", t.Name, i, err)
			}
			at.Publishers = append(at.Publishers, alert.NamedPublisher{Name: entry.Type, Publisher: p})
		}
		out = append(out, at)
	}
	return out, nil
}
