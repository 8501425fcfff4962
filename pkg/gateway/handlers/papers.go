package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/paperwave/studio/pkg/engine"
	"github.com/paperwave/studio/pkg/gateway/config"
	"github.com/paperwave/studio/pkg/papers"
)

// PapersHandler serves the catalog the briefing picker is built from.
type PapersHandler struct {
	Config config.Config
	Logger *slog.Logger
	Client *papers.Client
}

type papersRequest struct {
	Topics []string `json:"topics"`
}

type papersResponse struct {
	Papers []papers.Paper `json:"papers"`
}

func (h PapersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	var req papersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, engine.Newf(engine.CodeInvalidRequest, "malformed request body: %v", err))
		return
	}

	found, err := h.Client.Fetch(r.Context(), req.Topics)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if found == nil {
		found = []papers.Paper{}
	}
	writeJSON(w, http.StatusOK, papersResponse{Papers: found})
}
