package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/store"
)

const (
	defaultCycleLimit = 50
	maxCycleLimit     = 500
	enqueueTimeout    = 5 * time.Second
)

type cycleRequest struct {
	Start    string   `json:"start"`
	End      string   `json:"end"`
	MinValue *float64 `json:"min_value"`
}

// submitCycle handles POST /v1/cycles. An empty body requests the default
// lookback window.
func (s *Server) submitCycle(w http.ResponseWriter, r *http.Request) {
	if s.deps.Submitter == nil || s.deps.Clock == nil {
		writeError(w, http.StatusServiceUnavailable, "cycle queue unavailable", "")
		return
	}
	var body cycleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON", "")
		return
	}
	window, err := s.cycleWindow(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	ctx, cancel := contextWithTimeout(r, enqueueTimeout)
	defer cancel()
	req, err := s.deps.Submitter.Submit(ctx, window, "api")
	if err != nil {
		s.logger.Error("submit cycle failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "cycle could not be queued", "A cycle may already be running; try again shortly.")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"cycle_id": req.ID,
		"window":   req.Window,
	})
}

func (s *Server) cycleWindow(body cycleRequest) (award.Window, error) {
	minValue := s.opts.MinValue
	if body.MinValue != nil {
		minValue = *body.MinValue
	}
	if body.Start == "" && body.End == "" {
		return award.DefaultWindow(s.deps.Clock.Now(), s.opts.LookbackDays, minValue)
	}
	if body.Start == "" || body.End == "" {
		return award.Window{}, errors.New("start and end must be given together")
	}
	start, err := award.ParseDate(body.Start)
	if err != nil {
		return award.Window{}, err
	}
	end, err := award.ParseDate(body.End)
	if err != nil {
		return award.Window{}, err
	}
	return award.NewWindow(start, end, minValue)
}

// listCycles handles GET /v1/cycles?status=&limit=&offset=.
func (s *Server) listCycles(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable", "")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultCycleLimit, maxCycleLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	var status *store.RunStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		st := store.RunStatus(strings.ToLower(raw))
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status", "Use running, success, degraded or failed.")
			return
		}
		status = &st
	}

	ctx, cancel := contextWithTimeout(r, 3*time.Second)
	defer cancel()
	runs, err := s.deps.Runs.ListRuns(ctx, status, limit, offset)
	if err != nil {
		s.logger.Error("list cycles failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list cycles", "")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": runs})
}

// getCycle handles GET /v1/cycles/{cycle_id}.
func (s *Server) getCycle(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable", "")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "cycle_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cycle_id", "")
		return
	}

	ctx, cancel := contextWithTimeout(r, 3*time.Second)
	defer cancel()
	run, err := s.deps.Runs.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "cycle not found", "")
			return
		}
		s.logger.Error("get cycle failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load cycle", "")
		return
	}
	endpoints, err := s.deps.Runs.ListRunEndpoints(ctx, id)
	if err != nil {
		s.logger.Error("list cycle endpoints failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load cycle endpoints", "")
		return
	}
	if endpoints == nil {
		endpoints = []store.EndpointStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycle": run, "endpoints": endpoints})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
