package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/stream"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
	maxBodyBytes        = 1 << 16
)

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Streams     int    `json:"streams"`
	Subscribers int    `json:"subscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.cfg.Version,
		Streams: len(s.streams.List()),
	}
	if s.hub != nil {
		resp.Subscribers = s.hub.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListStreams(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.streams.List())
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.streams.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// debugRequest mirrors stream.DebugParameters. The delay is a Go duration
// string.
type debugRequest struct {
	ForceTransientBurst   bool   `json:"force_transient_burst"`
	ForceSynchronousDrain bool   `json:"force_synchronous_drain"`
	ForceDrainToDraining  bool   `json:"force_drain_to_draining"`
	TransientStateDelay   string `json:"transient_state_delay"`
}

func (d debugRequest) parameters() (stream.DebugParameters, error) {
	p := stream.DebugParameters{
		ForceTransientBurst:   d.ForceTransientBurst,
		ForceSynchronousDrain: d.ForceSynchronousDrain,
		ForceDrainToDraining:  d.ForceDrainToDraining,
	}
	if d.TransientStateDelay != "" {
		delay, err := time.ParseDuration(d.TransientStateDelay)
		if err != nil {
			return p, fmt.Errorf("transient_state_delay: %w", err)
		}
		if delay < 0 {
			return p, errors.New("transient_state_delay must not be negative")
		}
		p.TransientStateDelay = delay
	}
	return p, nil
}

func (s *Server) handleSetDebug(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req debugRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, fmt.Errorf("invalid body: %w", err))
		return
	}
	p, err := req.parameters()
	if err != nil {
		writeError(w, err)
		return
	}
	if !s.streams.SetDebug(id, p) {
		writeNotFound(w)
		return
	}
	logger := log.WithContext(r.Context(), s.logger)
	logger.Info().
		Str(log.FieldStreamID, id).
		Bool("force_transient_burst", p.ForceTransientBurst).
		Bool("force_synchronous_drain", p.ForceSynchronousDrain).
		Bool("force_drain_to_draining", p.ForceDrainToDraining).
		Dur("transient_state_delay", p.TransientStateDelay).
		Msg("debug parameters updated")
	snap, _ := s.streams.Get(id)
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeServiceUnavailable(w, errors.New("session history is disabled"))
		return
	}
	limit := defaultSessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSessionLimit {
			writeError(w, fmt.Errorf("limit must be between 1 and %d", maxSessionLimit))
			return
		}
		limit = n
	}
	reports, err := s.history.List(r.Context(), limit)
	if err != nil {
		logger := log.WithContext(r.Context(), s.logger)
		logger.Error().Err(err).Msg("failed to list sessions")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list sessions"})
		return
	}
	writeJSON(w, http.StatusOK, reports)
}
