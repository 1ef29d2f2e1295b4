// Package control exposes a running monitor over HTTP on a Unix socket so
// other processes can query state, pulse activity and wait for quiet.
package control

import (
	"time"

	"github.com/Veraticus/quiesce/pkg/activity"
)

// HealthResponse is returned by GET /v1/health.
type HealthResponse struct {
	Status    string `json:"status"`
	PID       int    `json:"pid"`
	StartedAt string `json:"started_at"`
}

// StateResponse is returned by GET /v1/state. RemainingMs and Deadline are
// present only while active.
type StateResponse struct {
	Active              bool   `json:"active"`
	RemainingMs         *int64 `json:"remaining_ms,omitempty"`
	Deadline            string `json:"deadline,omitempty"`
	InactivityTimeoutMs int64  `json:"inactivity_timeout_ms"`
}

// WaitRequest is the body of POST /v1/wait.
type WaitRequest struct {
	TimeoutMs int64 `json:"timeout_ms"`
}

// WaitResponse is returned by POST /v1/wait.
type WaitResponse struct {
	Outcome activity.Outcome `json:"outcome"`
}

// TimeoutRequest is the body of PUT /v1/inactivity-timeout.
type TimeoutRequest struct {
	TimeoutMs int64 `json:"timeout_ms"`
}

// ErrorResponse carries a failure message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewStateResponse converts a snapshot to its wire form.
func NewStateResponse(st activity.State, timeout time.Duration) StateResponse {
	resp := StateResponse{
		Active:              st.Active,
		InactivityTimeoutMs: timeout.Milliseconds(),
	}
	if ms, ok := st.RemainingMs(); ok {
		resp.RemainingMs = &ms
		resp.Deadline = st.Deadline.Format(time.RFC3339Nano)
	}
	return resp
}

// State converts the wire form back to a snapshot.
func (r StateResponse) State() activity.State {
	st := activity.State{Active: r.Active}
	if r.RemainingMs != nil {
		st.Remaining = time.Duration(*r.RemainingMs) * time.Millisecond
	}
	if r.Deadline != "" {
		if t, err := time.Parse(time.RFC3339Nano, r.Deadline); err == nil {
			st.Deadline = t
		}
	}
	return st
}

// InactivityTimeout returns the configured timeout.
func (r StateResponse) InactivityTimeout() time.Duration {
	return time.Duration(r.InactivityTimeoutMs) * time.Millisecond
}
