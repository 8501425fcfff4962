package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/paperwave/studio/pkg/engine"
	"github.com/paperwave/studio/pkg/engine/audio"
	"github.com/paperwave/studio/pkg/engine/session"
	"github.com/paperwave/studio/pkg/engine/sessions"
	"github.com/paperwave/studio/pkg/gateway/config"
)

// SessionsHandler owns the HTTP ingestion surface of the session engine.
type SessionsHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *sessions.Registry
}

type paperContextBody struct {
	Title     string `json:"title"`
	Authors   string `json:"authors"`
	Published string `json:"published"`
	Summary   string `json:"summary"`
	URL       string `json:"arxiv_url"`
}

type startRequest struct {
	Provider     string            `json:"provider"`
	APIKey       string            `json:"api_key"`
	Model        string            `json:"model"`
	Voice        string            `json:"voice"`
	Temperature  float64           `json:"temperature"`
	PaperContext *paperContextBody `json:"paper_context"`
}

type startResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

type ackResponse struct {
	Status string `json:"status"`
}

func (h SessionsHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeError(w, r, engine.Newf(engine.CodeInvalidRequest, "malformed request body: %v", err))
		return false
	}
	return true
}

func sessionID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", engine.New(engine.CodeInvalidRequest, "missing session id")
	}
	return id, nil
}

// Start configures the session and brings it to active, reusing an already
// active connection when nothing changed.
func (h SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req startRequest
	if !h.decode(w, r, &req) {
		return
	}

	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = h.Config.OpenAIAPIKey
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = h.Config.DefaultModel
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = h.Config.DefaultVoice
	}

	cfg := session.Config{
		Provider:    req.Provider,
		APIKey:      apiKey,
		Model:       model,
		Voice:       voice,
		Temperature: req.Temperature,
	}
	if p := req.PaperContext; p != nil {
		cfg.Paper = &session.PaperContext{
			Title:     p.Title,
			Authors:   p.Authors,
			Published: p.Published,
			Summary:   p.Summary,
			URL:       p.URL,
		}
	}

	s := h.Registry.GetOrCreate(id)
	changed, err := s.Configure(cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if s.State() == session.StateActive {
		if changed {
			if err := s.UpdateLive(); err != nil {
				writeError(w, r, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, startResponse{Status: "active", Model: model})
		return
	}

	if err := s.Start(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{Status: "active", Model: model})
}

type audioRequest struct {
	Audio string `json:"audio"`
}

// Audio appends one base64 PCM16 chunk to the current turn.
func (h SessionsHandler) Audio(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req audioRequest
	if !h.decode(w, r, &req) {
		return
	}

	chunk, err := audio.DecodeChunk(req.Audio)
	if err != nil {
		writeError(w, r, engine.Newf(engine.CodeInvalidRequest, "bad audio chunk: %v", err))
		return
	}

	s, ok := h.Registry.Get(id)
	if !ok {
		writeError(w, r, engine.NotReady())
		return
	}
	if err := s.AppendAudio(chunk); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "ok"})
}

// Commit finalizes the accumulated turn and requests a response.
func (h SessionsHandler) Commit(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, ok := h.Registry.Get(id)
	if !ok {
		writeError(w, r, engine.NotReady())
		return
	}
	if err := s.CommitTurn(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "ok"})
}

type textRequest struct {
	Text string `json:"text"`
}

// Text injects a typed user message.
func (h SessionsHandler) Text(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req textRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, ok := h.Registry.Get(id)
	if !ok {
		writeError(w, r, engine.NotReady())
		return
	}
	if err := s.SendText(strings.TrimSpace(req.Text)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "ok"})
}

// Stop tears the session down. Stopping an unknown session is an accepted
// no-op so retried deletes stay clean.
func (h SessionsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Registry.Remove(id)
	writeJSON(w, http.StatusOK, ackResponse{Status: "stopped"})
}
