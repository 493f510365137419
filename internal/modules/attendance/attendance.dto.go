package attendance

import "time"

// AgentState is where an agent sits in its per-tick state machine.
type AgentState string

const (
	StateUnauthenticated AgentState = "unauthenticated"
	StateWaiting         AgentState = "waiting"
	StateDue             AgentState = "due"
	StatePostAction      AgentState = "post_action"
)

// Action names what a single tick did.
type Action string

const (
	ActionNone            Action = "none"
	ActionLogin           Action = "login"
	ActionLoginFailed     Action = "login_failed"
	ActionBackoff         Action = "backoff"
	ActionClockOut        Action = "clock_out"
	ActionClockOutFailed  Action = "clock_out_failed"
	ActionAlreadyOut      Action = "already_timed_out"
	ActionAwaitingTimeIn  Action = "awaiting_time_in"
	ActionDashboardFailed Action = "dashboard_failed"
	ActionPanicked        Action = "panicked"
	ActionCanceled        Action = "canceled"
)

// TickResult reports the outcome of one agent tick.
type TickResult struct {
	EmployeeNumber string
	State          AgentState
	Action         Action
	Target         *time.Time
	Err            error
}

// AgentSnapshot is a point-in-time copy of an agent's status, safe to read
// while a tick is in flight.
type AgentSnapshot struct {
	EmployeeNumber string     `json:"employee_number"`
	State          AgentState `json:"state"`
	Authenticated  bool       `json:"authenticated"`
	TargetOut      *time.Time `json:"target_out,omitempty"`
	LastOut        *time.Time `json:"last_out,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	LastAction     Action     `json:"last_action,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	LastTickAt     *time.Time `json:"last_tick_at,omitempty"`
	NextLoginAt    *time.Time `json:"next_login_at,omitempty"`
}
