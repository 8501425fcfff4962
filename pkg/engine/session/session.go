// Package session implements the per-conversation state machine: one
// upstream realtime connection, the audio-turn protocol, and fan-out to any
// number of independent subscribers.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/paperwave/studio/pkg/engine"
	"github.com/paperwave/studio/pkg/engine/events"
	"github.com/paperwave/studio/pkg/engine/upstream"
)

// State is the session lifecycle phase.
type State int

const (
	StateInactive State = iota
	StateStarting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// ProviderOpenAI is the only upstream provider currently spoken.
const ProviderOpenAI = "openai"

// Config is the caller-supplied session configuration. Configure validates
// and stores it; Start consumes it.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	Voice       string
	Temperature float64
	Paper       *PaperContext
}

// Transport is the upstream connection surface the session drives. The
// production implementation is *upstream.Conn; tests substitute fakes.
type Transport interface {
	Send(frame any) error
	Frames() <-chan upstream.RawFrame
	Close() error
	Err() error
}

// Dialer opens a Transport. Injected so tests never touch the network.
type Dialer func(ctx context.Context, cfg upstream.Config) (Transport, error)

func defaultDialer(ctx context.Context, cfg upstream.Config) (Transport, error) {
	return upstream.Dial(ctx, cfg)
}

// Options tune one session. Zero values fall back to production defaults.
type Options struct {
	Logger           *slog.Logger
	Dial             Dialer
	BaseURL          string
	StartTimeout     time.Duration
	SettleDelay      time.Duration
	SubscriberBuffer int
}

const (
	defaultStartTimeout     = 10 * time.Second
	defaultSettleDelay      = 250 * time.Millisecond
	defaultSubscriberBuffer = 256
)

// startAttempt is the shared outcome of one in-flight Start. Concurrent
// callers wait on done; a Stop racing the handshake flips aborted and the
// finishing goroutine discards the new connection.
type startAttempt struct {
	done    chan struct{}
	err     error
	aborted bool
}

// Session owns one conversation. All exported methods are safe for
// concurrent use; upstream frames are consumed by a single pump goroutine so
// subscribers observe events in arrival order.
type Session struct {
	id     string
	opts   Options
	logger *slog.Logger

	mu            sync.Mutex
	state         State
	stateChanged  chan struct{}
	cfg           Config
	conn          Transport
	pending       *startAttempt
	needsClear    bool
	pendingChunks int
	lastActivity  time.Time

	// Buffered depth 1; the pump signals, CommitTurn drains then waits.
	commitAck chan struct{}

	subsMu sync.Mutex
	subs   map[*Subscriber]struct{}
}

// New creates an inactive session.
func New(id string, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dial == nil {
		opts.Dial = defaultDialer
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = defaultStartTimeout
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}
	return &Session{
		id:           id,
		opts:         opts,
		logger:       opts.Logger.With("session", id),
		stateChanged: make(chan struct{}),
		commitAck:    make(chan struct{}, 1),
		subs:         make(map[*Subscriber]struct{}),
		lastActivity: time.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity reports the last time this session saw traffic in either
// direction. The registry reaper uses it.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// setStateLocked transitions the lifecycle phase and wakes every
// WaitUntilReady waiter. Callers hold mu.
func (s *Session) setStateLocked(st State) {
	s.state = st
	close(s.stateChanged)
	s.stateChanged = make(chan struct{})
}

// Configure validates and stores the configuration without touching the
// connection. It reports whether anything changed so callers can decide to
// push a live update. An active connection keeps running regardless.
func (s *Session) Configure(cfg Config) (changed bool, err error) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.Provider != ProviderOpenAI {
		return false, engine.Newf(engine.CodeUnsupportedProvider, "unsupported provider %q", cfg.Provider)
	}
	if cfg.Model == "" {
		cfg.Model = upstream.DefaultModel
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.APIKey == "" {
		cfg.APIKey = s.cfg.APIKey
	}
	changed = cfg.Provider != s.cfg.Provider ||
		cfg.APIKey != s.cfg.APIKey ||
		cfg.Model != s.cfg.Model ||
		cfg.Voice != s.cfg.Voice ||
		cfg.Temperature != s.cfg.Temperature ||
		!samePaper(cfg.Paper, s.cfg.Paper)
	s.cfg = cfg
	s.lastActivity = time.Now()
	return changed, nil
}

func samePaper(a, b *PaperContext) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Start brings the session to active: dial, wait for the server's session
// announcement, push the session configuration, emit session-ready. Only one
// attempt runs at a time; concurrent callers share its outcome. A failed
// start leaves the session inactive with nothing allocated.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateActive {
		s.mu.Unlock()
		return nil
	}
	if att := s.pending; att != nil {
		s.mu.Unlock()
		select {
		case <-att.done:
			return att.err
		case <-ctx.Done():
			return engine.ClassifyTransport(ctx.Err(), "")
		}
	}
	cfg := s.cfg
	if cfg.APIKey == "" {
		s.mu.Unlock()
		return engine.New(engine.CodeMissingCredential, "no api key configured")
	}
	att := &startAttempt{done: make(chan struct{})}
	s.pending = att
	s.setStateLocked(StateStarting)
	s.mu.Unlock()

	err := s.runStart(ctx, cfg, att)
	att.err = err
	close(att.done)
	return err
}

// runStart performs the dial and handshake for one attempt. It is the only
// writer of att.err and always settles the session back to a coherent state.
func (s *Session) runStart(ctx context.Context, cfg Config, att *startAttempt) error {
	fail := func(err error) error {
		s.mu.Lock()
		s.pending = nil
		s.setStateLocked(StateInactive)
		s.mu.Unlock()
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.StartTimeout)
	defer cancel()

	conn, err := s.opts.Dial(dialCtx, upstream.Config{
		BaseURL:        s.opts.BaseURL,
		Model:          cfg.Model,
		APIKey:         cfg.APIKey,
		ConnectTimeout: s.opts.StartTimeout,
	})
	if err != nil {
		return fail(err)
	}

	if err := s.awaitSessionCreated(dialCtx, conn); err != nil {
		conn.Close()
		return fail(err)
	}

	if err := conn.Send(upstream.NewSessionUpdate(sessionConfigFor(cfg))); err != nil {
		conn.Close()
		return fail(err)
	}

	s.mu.Lock()
	if att.aborted {
		s.pending = nil
		s.setStateLocked(StateInactive)
		s.cfg.APIKey = ""
		s.mu.Unlock()
		conn.Close()
		return engine.New(engine.CodeInvalidRequest, "session stopped before start completed")
	}
	s.pending = nil
	s.setStateLocked(StateActive)
	s.conn = conn
	s.needsClear = true
	s.pendingChunks = 0
	s.lastActivity = time.Now()
	s.mu.Unlock()

	// session-ready goes out before the pump starts so no buffered upstream
	// frame can beat it to subscribers.
	s.dispatch(events.SessionReady{Model: cfg.Model})
	go s.pump(conn)
	s.logger.Info("session active", "model", cfg.Model)
	return nil
}

// awaitSessionCreated consumes frames until the server announces the
// session. This runs before the pump exists, so reading here is safe. An
// in-band error frame fails the handshake with its classified cause rather
// than letting the attempt run out the dial timeout.
func (s *Session) awaitSessionCreated(ctx context.Context, conn Transport) error {
	for {
		select {
		case f, ok := <-conn.Frames():
			if !ok {
				if err := conn.Err(); err != nil {
					return engine.ClassifyTransport(err, "")
				}
				return engine.New(engine.CodeUpstreamFailure, "connection closed during handshake")
			}
			if f.Type == "session.created" {
				return nil
			}
			if ev, disp := upstream.Normalize(f); disp == upstream.Emit {
				if e, isErr := ev.(events.SessionError); isErr && e.Err != nil {
					return e.Err
				}
			}
		case <-ctx.Done():
			return engine.ClassifyTransport(ctx.Err(), "")
		}
	}
}

func sessionConfigFor(cfg Config) upstream.SessionConfig {
	voice := cfg.Voice
	if voice == "" {
		voice = "alloy"
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.8
	}
	return upstream.SessionConfig{
		Modalities:              []string{"text", "audio"},
		Instructions:            Instructions(cfg.Paper),
		Voice:                   voice,
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: &upstream.Transcription{Model: "whisper-1"},
		TurnDetection:           upstream.DefaultTurnDetection(),
		Temperature:             temperature,
	}
}

// UpdateLive pushes the current configuration over the active connection.
func (s *Session) UpdateLive() error {
	s.mu.Lock()
	if s.state != StateActive || s.conn == nil {
		s.mu.Unlock()
		return engine.NotReady()
	}
	conn := s.conn
	cfg := s.cfg
	s.mu.Unlock()
	return conn.Send(upstream.NewSessionUpdate(sessionConfigFor(cfg)))
}

// Stop tears the session down. Idempotent: stopping an inactive session is an
// accepted no-op. A stop racing an in-flight start marks the attempt aborted
// and the finishing handshake discards its connection.
func (s *Session) Stop() error {
	s.mu.Lock()
	if att := s.pending; att != nil {
		att.aborted = true
		s.mu.Unlock()
		return nil
	}
	if s.state != StateActive {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	s.conn = nil
	s.setStateLocked(StateInactive)
	s.cfg.APIKey = ""
	s.needsClear = false
	s.pendingChunks = 0
	s.lastActivity = time.Now()
	s.mu.Unlock()

	conn.Close()
	s.dispatch(events.SessionClosed{Reason: "stopped"})
	s.logger.Info("session stopped")
	return nil
}

// WaitUntilReady blocks until the session is active, settles inactive, or
// the context ends. A session that is neither active nor starting resolves
// immediately; callers never wait out their deadline against an already
// closed or failed session.
func (s *Session) WaitUntilReady(ctx context.Context) error {
	for {
		s.mu.Lock()
		state := s.state
		att := s.pending
		changed := s.stateChanged
		s.mu.Unlock()

		if state == StateActive {
			return nil
		}
		if state == StateInactive && att == nil {
			return engine.NotReady()
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return engine.ClassifyTransport(ctx.Err(), "")
		}
	}
}

// pump consumes upstream frames in arrival order, normalizes each one, and
// dispatches to subscribers. One pump per connection; frame order is event
// order.
func (s *Session) pump(conn Transport) {
	for f := range conn.Frames() {
		s.touch()
		if upstream.IsCommitAck(f.Type) {
			select {
			case s.commitAck <- struct{}{}:
			default:
			}
		}
		ev, disp := upstream.Normalize(f)
		switch disp {
		case upstream.Emit:
			s.dispatch(ev)
		case upstream.Unknown:
			s.logger.Debug("dropping unknown upstream frame", "type", f.Type)
		}
	}

	s.mu.Lock()
	if s.conn != conn {
		// Stop already detached this connection and emitted the close.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.setStateLocked(StateInactive)
	s.cfg.APIKey = ""
	s.mu.Unlock()

	reason := "upstream closed"
	if err := conn.Err(); err != nil {
		reason = "upstream error"
		s.dispatch(events.SessionError{Err: engine.ClassifyTransport(err, "")})
	}
	s.dispatch(events.SessionClosed{Reason: reason})
	s.logger.Info("session ended", "reason", reason)
}
