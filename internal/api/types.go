package api

import "time"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Backlog       string `json:"backlog"`
	Capacity      int    `json:"capacity"`
	Busy          int    `json:"busy"`
}

// SlotResponse describes one worker slot.
type SlotResponse struct {
	ID        int        `json:"id"`
	State     string     `json:"state"`
	Task      string     `json:"task,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Succeeded uint64     `json:"succeeded"`
	Failed    uint64     `json:"failed"`
	Fresh     bool       `json:"fresh"`
}

// SlotsResponse is returned by GET /slots.
type SlotsResponse struct {
	Capacity  int            `json:"capacity"`
	Busy      int            `json:"busy"`
	Fresh     int            `json:"fresh"`
	Succeeded uint64         `json:"succeeded"`
	Failed    uint64         `json:"failed"`
	Slots     []SlotResponse `json:"slots"`
}

// RunResponse is one ledger row.
type RunResponse struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id"`
	Backlog      string     `json:"backlog"`
	Task         string     `json:"task"`
	Slot         int        `json:"slot"`
	Status       string     `json:"status"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	DispatchedAt time.Time  `json:"dispatched_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
}

// RunsResponse is returned by GET /runs.
type RunsResponse struct {
	Runs   []RunResponse  `json:"runs"`
	Counts map[string]int `json:"counts"`
}
