package handlers

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paperwave/studio/pkg/engine"
	"github.com/paperwave/studio/pkg/engine/events"
	"github.com/paperwave/studio/pkg/engine/sessions"
	"github.com/paperwave/studio/pkg/gateway/auth"
	"github.com/paperwave/studio/pkg/gateway/config"
	"github.com/paperwave/studio/pkg/gateway/ratelimit"
)

// SubscribeHandler upgrades to a WebSocket and streams one subscriber's view
// of a session's event feed. Any number of subscribers may watch one
// session; each gets an independent buffer.
type SubscribeHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *sessions.Registry
	Limiter  *ratelimit.Limiter

	Upgrader websocket.Upgrader
}

func (h SubscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	kinds, err := parseKinds(r.URL.Query().Get("kinds"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.Limiter != nil {
		caller := "anonymous"
		if c, ok := auth.CallerFrom(r.Context()); ok {
			caller = ratelimit.CallerKeyFromToken(c.Token)
		}
		dec := h.Limiter.AcquireFeed(caller, time.Now())
		if !dec.Allowed {
			writeError(w, r, engine.New(engine.CodeRateLimited, "too many open feeds"))
			return
		}
		defer dec.Permit.Release()
	}

	ws, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its own response.
		return
	}
	defer ws.Close()

	s := h.Registry.GetOrCreate(id)
	sub := s.Subscribe(kinds)
	defer sub.Close()

	// Reader goroutine: we never expect frames, but reading surfaces pings
	// and the peer's close.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.Config.WSPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(h.Config.WSWriteTimeout))
			if err := ws.WriteJSON(encodeEvent(ev)); err != nil {
				return
			}
		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.Config.WSWriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func parseKinds(raw string) ([]events.Kind, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var kinds []events.Kind
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, ok := events.ParseKind(part)
		if !ok {
			return nil, engine.Newf(engine.CodeInvalidRequest, "unknown event kind %q", part)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// wireEvent is the subscribe feed's frame shape. Exactly one payload field
// is set per kind.
type wireEvent struct {
	Type   string     `json:"type"`
	Audio  string     `json:"audio,omitempty"`
	Text   string     `json:"text,omitempty"`
	Model  string     `json:"model,omitempty"`
	Reason string     `json:"reason,omitempty"`
	Error  *wireError `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encodeEvent(ev events.Event) wireEvent {
	out := wireEvent{Type: string(ev.Kind())}
	switch e := ev.(type) {
	case events.AudioDelta:
		out.Audio = base64.StdEncoding.EncodeToString(e.Data)
	case events.AssistantTranscriptDelta:
		out.Text = e.Text
	case events.UserTranscriptDelta:
		out.Text = e.Text
	case events.UserTranscriptComplete:
		out.Text = e.Text
	case events.SessionReady:
		out.Model = e.Model
	case events.SessionClosed:
		out.Reason = e.Reason
	case events.SessionError:
		if e.Err != nil {
			out.Error = &wireError{Code: string(e.Err.Code), Message: e.Err.Message}
		}
	}
	return out
}
