package models

import (
	"time"

	"github.com/fgeck/tapwake/internal/secret"
)

// LoginPath is the branch the orchestrator took.
type LoginPath string

// Login paths.
const (
	PathNone  LoginPath = ""
	PathQuick LoginPath = "quick"
	PathWake  LoginPath = "wake"
)

// LoginOutcome is the final result of one orchestrated login.
type LoginOutcome string

// Login outcomes.
const (
	OutcomeCompleted    LoginOutcome = "completed"
	OutcomeRejected     LoginOutcome = "rejected"
	OutcomeLinkDown     LoginOutcome = "link_down"
	OutcomeWakeFailed   LoginOutcome = "wake_failed"
	OutcomeTypingFailed LoginOutcome = "typing_failed"
	OutcomeCancelled    LoginOutcome = "cancelled"
)

// LoginConfig holds the orchestrator's timing budget and credential.
type LoginConfig struct {
	Host     string
	MAC      string
	Password *secret.Buffer

	QuickProbeTimeout time.Duration // first "already on?" probe
	WakeBudget        time.Duration // wall-clock bound of the wake loop
	ProbesPerWake     int           // probes after each wake broadcast
	ProbeTimeout      time.Duration // per probe inside the wake loop
	FinalProbeTimeout time.Duration // last check after the wake loop
	QuickSettle       time.Duration // wait before typing on an already running host
	BootSettle        time.Duration // wait before typing on a freshly woken host
	FocusSettle       time.Duration // wait between the focus Enter and the password
	KeyDelay          time.Duration // inter-key delay while typing
	AlwaysWake        bool          // send a wake broadcast before the first probe
}

// LoginResult is the record of one login attempt.
type LoginResult struct {
	Authorized    bool
	LinkOK        bool
	HostAlreadyOn bool
	Path          LoginPath
	WakeAttempts  int
	Typing        *TypingResult
	Outcome       LoginOutcome
	Elapsed       time.Duration
	Error         error
}

// Succeeded reports whether the password was typed and submitted.
func (r *LoginResult) Succeeded() bool {
	return r != nil && r.Outcome == OutcomeCompleted
}
