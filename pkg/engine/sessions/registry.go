// Package sessions tracks every live session in the process. The registry is
// an explicit object handed to whoever needs it, never package-level state,
// so tests run any number of isolated engines side by side.
package sessions

import (
	"log/slog"
	"sync"
	"time"

	"github.com/paperwave/studio/pkg/engine/session"
)

// Factory builds a session for an id the registry has not seen.
type Factory func(id string) *session.Session

// Options tune the registry. Zero values fall back to production defaults;
// IdleTimeout < 0 disables the reaper entirely.
type Options struct {
	Logger       *slog.Logger
	IdleTimeout  time.Duration
	ReapInterval time.Duration
}

const (
	defaultIdleTimeout  = 5 * time.Minute
	defaultReapInterval = 30 * time.Second
)

// Registry maps conversation ids to sessions and reclaims the ones that go
// quiet. Sessions are fully independent; the registry only owns membership.
type Registry struct {
	logger  *slog.Logger
	factory Factory
	idle    time.Duration

	mu       sync.Mutex
	sessions map[string]*session.Session

	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry creates a registry and starts its idle reaper.
func NewRegistry(factory Factory, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = defaultReapInterval
	}

	r := &Registry{
		logger:   opts.Logger,
		factory:  factory,
		idle:     opts.IdleTimeout,
		sessions: make(map[string]*session.Session),
		done:     make(chan struct{}),
	}
	if r.idle > 0 {
		go r.reapLoop(opts.ReapInterval)
	}
	return r
}

// GetOrCreate returns the session for id, building one on first sight.
func (r *Registry) GetOrCreate(id string) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := r.factory(id)
	r.sessions[id] = s
	return s
}

// Get returns the session for id, if any.
func (r *Registry) Get(id string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove stops and forgets the session for id. Unknown ids are a no-op, so
// a delete racing a reap stays idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		_ = s.Stop()
	}
}

// Len reports how many sessions the registry currently tracks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the reaper and every tracked session. Used on shutdown to
// drain live conversations.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	all := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*session.Session)
	r.mu.Unlock()

	for _, s := range all {
		_ = s.Stop()
	}
}

func (r *Registry) reapLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.reapIdle()
		case <-r.done:
			return
		}
	}
}

func (r *Registry) reapIdle() {
	cutoff := time.Now().Add(-r.idle)

	r.mu.Lock()
	var stale []*session.Session
	for id, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		r.logger.Info("reaping idle session", "session", s.ID())
		_ = s.Stop()
	}
}
