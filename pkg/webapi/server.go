// Package webapi exposes the polling HTTP surface: start a run, poll
// its status, answer a pending question. State never streams; clients
// poll get_status and render the log lines verbatim.
package webapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"devteam/pkg/driver"
	"devteam/pkg/logx"
	"devteam/pkg/metrics"
	"devteam/pkg/session"
	"devteam/pkg/version"
)

// Server wires the run driver to HTTP.
type Server struct {
	driver *driver.Driver
	usage  *metrics.QueryService
	logger *logx.Logger
}

// NewServer creates the API server.
func NewServer(d *driver.Driver) *Server {
	return &Server{
		driver: d,
		logger: logx.NewLogger("webapi"),
	}
}

// SetUsageService enables the /usage endpoint backed by a Prometheus
// query service. Without it the endpoint reports 404.
func (s *Server) SetUsageService(q *metrics.QueryService) {
	s.usage = q
}

// RegisterRoutes sets up HTTP routes for the API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/start_run", s.handleStartRun)
	mux.HandleFunc("/get_status/", s.handleGetStatus)
	mux.HandleFunc("/respond", s.handleRespond)
	mux.HandleFunc("/artifacts/", s.handleArtifacts)
	mux.HandleFunc("/usage/", s.handleUsage)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", metrics.Handler())
}

type startRunRequest struct {
	Prompt string `json:"prompt"`
}

type startRunResponse struct {
	SessionID string `json:"sessionId"`
}

type statusResponse struct {
	Status   string   `json:"status"`
	Log      []string `json:"log"`
	Question string   `json:"question,omitempty"`
}

type respondRequest struct {
	SessionID string `json:"sessionId"`
	Response  string `json:"response"`
}

type artifactsResponse struct {
	Files map[string]string `json:"files"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := s.driver.StartRun(r.Context(), req.Prompt)
	if err != nil {
		s.writeDriverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, startRunResponse{SessionID: id})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/get_status/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusBadRequest, "session id required")
		return
	}

	snap, err := s.driver.Status(id)
	if err != nil {
		s.writeDriverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		Status:   string(snap.Status),
		Log:      snap.Log,
		Question: snap.Question,
	})
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "sessionId required")
		return
	}

	if err := s.driver.Resume(r.Context(), req.SessionID, req.Response); err != nil {
		s.writeDriverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusBadRequest, "session id required")
		return
	}

	snap, err := s.driver.Status(id)
	if err != nil {
		s.writeDriverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, artifactsResponse{Files: snap.Artifacts})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.usage == nil {
		s.writeError(w, http.StatusNotFound, "usage metrics not configured")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/usage/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusBadRequest, "session id required")
		return
	}
	if _, err := s.driver.Status(id); err != nil {
		s.writeDriverError(w, err)
		return
	}

	var payload any
	var err error
	if r.URL.Query().Get("by") == "model" {
		payload, err = s.usage.GetSessionMetricsByModel(r.Context(), id)
	} else {
		payload, err = s.usage.GetSessionMetrics(r.Context(), id)
	}
	if err != nil {
		s.logger.Error("usage query failed for session %s: %v", id, err)
		s.writeError(w, http.StatusBadGateway, "usage query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// writeDriverError maps driver and store errors to HTTP codes:
// validation 400, unknown session 404, busy or wrong-state 409.
func (s *Server) writeDriverError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyPrompt), errors.Is(err, session.ErrEmptyResponse):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrInvalidState):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("internal error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response: %v", err)
	}
}
