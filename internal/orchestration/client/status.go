package client

// RunState is the lifecycle state of an AgentLoop's current run.
type RunState int

const (
	// StateIdle means no run has been started.
	StateIdle RunState = iota
	// StateStarting means a session is being created or continued.
	StateStarting
	// StatePolling means the agent is working and status is being polled.
	StatePolling
	// StateCompleted means the last run finished with output.
	StateCompleted
	// StateFailed means the last run failed.
	StateFailed
	// StateCanceled means the last run was canceled.
	StateCanceled
)

// String returns a human-readable string representation of the state.
func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if this is a terminal state (completed, failed, or canceled).
func (s RunState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCanceled
}

// SessionStatus is the status a remote service reports for a session.
// Values other than the constants below are passed through unchanged.
type SessionStatus string

const (
	SessionCreated   SessionStatus = "created"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// IsTerminal reports whether the status ends a run. Everything except
// completed and failed counts as still running.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// SessionInfo is the locally cached view of a remote session.
type SessionInfo struct {
	ID     string        `json:"id"`
	Status SessionStatus `json:"status"`
	Title  string        `json:"title"`
}
