package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/qrun/internal/pool"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Backlog:       s.config.Backlog,
	}
	if snap, ok := s.latest(); ok {
		resp.Capacity = snap.Capacity
		resp.Busy = snap.Busy
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) latest() (pool.Snapshot, bool) {
	if s.slots == nil {
		return pool.Snapshot{}, false
	}
	return s.slots.Latest()
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.latest()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "no snapshot yet")
		return
	}

	fresh, succeeded, failed := snap.Totals()
	resp := SlotsResponse{
		Capacity:  snap.Capacity,
		Busy:      snap.Busy,
		Fresh:     fresh,
		Succeeded: succeeded,
		Failed:    failed,
		Slots:     make([]SlotResponse, 0, len(snap.Slots)),
	}
	for _, sl := range snap.Slots {
		item := SlotResponse{
			ID:        sl.ID,
			State:     sl.State.String(),
			Task:      sl.Task,
			Succeeded: sl.Succeeded,
			Failed:    sl.Failed,
			Fresh:     sl.Fresh,
		}
		if !sl.StartedAt.IsZero() {
			started := sl.StartedAt.UTC()
			item.StartedAt = &started
		}
		resp.Slots = append(resp.Slots, item)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusNotFound, "run ledger is not enabled")
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	counts, err := s.runs.CountByStatus(r.Context())
	if err != nil {
		s.logger.Error("failed to count runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to count runs")
		return
	}

	resp := RunsResponse{
		Runs:   make([]RunResponse, 0, len(runs)),
		Counts: make(map[string]int, len(counts)),
	}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, RunResponse{
			ID:           run.ID,
			SessionID:    run.SessionID,
			Backlog:      run.Backlog,
			Task:         run.Task,
			Slot:         run.Slot,
			Status:       string(run.Status),
			ExitCode:     run.ExitCode,
			DispatchedAt: run.DispatchedAt,
			CompletedAt:  run.CompletedAt,
			LastError:    run.LastError,
		})
	}
	for status, n := range counts {
		resp.Counts[string(status)] = n
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
