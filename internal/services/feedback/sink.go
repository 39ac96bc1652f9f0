// Package feedback reports the status of each tap to the operator.
package feedback

import (
	"context"

	"github.com/fgeck/tapwake/internal/models"
	"github.com/rs/zerolog"
)

// Sink receives feedback events. Notify must not block the caller for long
// and never fails the login flow.
type Sink interface {
	Notify(ctx context.Context, event models.FeedbackEvent)
}

// LogSink writes every event to the logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink logging through logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify logs the event. Failures are logged at warn level.
func (s *LogSink) Notify(_ context.Context, event models.FeedbackEvent) {
	e := s.logger.Info()
	if IsFailure(event.Kind) {
		e = s.logger.Warn()
	}
	if event.Host != "" {
		e = e.Str("host", event.Host)
	}
	if event.Elapsed > 0 {
		e = e.Dur("elapsed", event.Elapsed)
	}
	if event.Detail != "" {
		e = e.Str("detail", event.Detail)
	}
	e.Str("feedback", string(event.Kind)).Msg(describe(event.Kind))
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Notify forwards the event to every sink.
func (m Multi) Notify(ctx context.Context, event models.FeedbackEvent) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, event)
		}
	}
}

// Discard drops every event.
type Discard struct{}

// Notify does nothing.
func (Discard) Notify(context.Context, models.FeedbackEvent) {}

// IsFailure reports whether kind describes a failed or refused tap.
func IsFailure(kind models.FeedbackKind) bool {
	switch kind {
	case models.FeedbackReadFailed, models.FeedbackRejected,
		models.FeedbackWakeFailed, models.FeedbackLoginFailed:
		return true
	default:
		return false
	}
}

func describe(kind models.FeedbackKind) string {
	switch kind {
	case models.FeedbackReady:
		return "ready for tags"
	case models.FeedbackReadFailed:
		return "no card or read failed"
	case models.FeedbackRejected:
		return "tag rejected"
	case models.FeedbackAccepted:
		return "tag accepted"
	case models.FeedbackHostOnline:
		return "host online"
	case models.FeedbackWakeFailed:
		return "host did not wake"
	case models.FeedbackLoginCompleted:
		return "login completed"
	case models.FeedbackLoginFailed:
		return "login failed"
	default:
		return string(kind)
	}
}
