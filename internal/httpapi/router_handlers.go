package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/lanternrouter/lantern/internal/facade"
)

type queryRequest struct {
	Input      string         `json:"input"`
	ForceModel string         `json:"force_model,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	HasImage   bool           `json:"has_image,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
}

type queryResponse struct {
	Success  bool           `json:"success"`
	Model    string         `json:"model,omitempty"`
	Response string         `json:"response,omitempty"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Input == "" {
		respondError(w, http.StatusBadRequest, "input is required")
		return
	}

	started := time.Now()
	outcome, err := s.facade.Handle(r.Context(), facade.RequestInput{
		Text:          req.Input,
		HasImage:      req.HasImage,
		SessionID:     req.SessionID,
		ForceModelRef: req.ForceModel,
	})
	if err != nil {
		s.stats.RecordError()
		if err == facade.ErrBusy {
			respondError(w, http.StatusServiceUnavailable, "router is at its concurrency limit")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metadata := map[string]any{
		"attempts":     len(outcome.Attempts),
		"cost_warning": outcome.CostWarning,
	}

	if !outcome.Succeeded() {
		s.stats.RecordError()
		respondJSON(w, http.StatusBadGateway, queryResponse{Success: false, Metadata: metadata})
		return
	}

	metadata["cost"] = outcome.Response.Cost
	metadata["saved_cost"] = outcome.Response.SavedCost
	metadata["tokens_in"] = outcome.Response.TokensIn
	metadata["tokens_out"] = outcome.Response.TokensOut

	s.stats.RecordRequest(outcome.Response.TokensIn+outcome.Response.TokensOut, time.Since(started))

	respondJSON(w, http.StatusOK, queryResponse{
		Success:  true,
		Model:    outcome.ModelRef,
		Response: outcome.Response.Text,
		Metadata: metadata,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.facade.Stats())
}

func (s *Server) handleCost(w http.ResponseWriter, r *http.Request) {
	daily, monthly := s.facade.CostReport()
	respondJSON(w, http.StatusOK, map[string]any{"daily": daily, "monthly": monthly})
}

func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	dbPath, dbSize := s.store.DBInfo()
	respondJSON(w, http.StatusOK, s.stats.Collect(dbSize, dbPath))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		respondError(w, http.StatusNotImplemented, "reload is not wired")
		return
	}
	if err := s.reload(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.registry.Refresh(ctx); err != nil {
			s.log.Warn().Err(err).Msg("background registry scan failed")
		}
	}()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "scan started"})
}

func (s *Server) handleDetected(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"models":      s.registry.ListAll(),
		"cache_valid": !s.registry.Stale(),
	})
}
