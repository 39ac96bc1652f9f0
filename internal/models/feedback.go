package models

import "time"

// FeedbackKind is an operator-visible status of a tap.
type FeedbackKind string

// Feedback kinds, one per distinguishable situation.
const (
	FeedbackReady          FeedbackKind = "ready"
	FeedbackReadFailed     FeedbackKind = "read_failed"
	FeedbackRejected       FeedbackKind = "rejected"
	FeedbackAccepted       FeedbackKind = "accepted"
	FeedbackHostOnline     FeedbackKind = "host_online"
	FeedbackWakeFailed     FeedbackKind = "wake_failed"
	FeedbackLoginCompleted FeedbackKind = "login_completed"
	FeedbackLoginFailed    FeedbackKind = "login_failed"
)

// FeedbackEvent is delivered to feedback sinks.
type FeedbackEvent struct {
	Kind    FeedbackKind
	Host    string
	Time    time.Time
	Elapsed time.Duration
	Detail  string
}
