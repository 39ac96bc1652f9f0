package feedback

import (
	"context"
	"slices"
	"time"

	"github.com/fgeck/tapwake/internal/models"
	"github.com/fgeck/tapwake/internal/services/telegram"
	"github.com/rs/zerolog"
)

// TelegramSendTimeout bounds one Bot API call.
const TelegramSendTimeout = 15 * time.Second

// DefaultTelegramKinds are sent when the config names none.
var DefaultTelegramKinds = []models.FeedbackKind{
	models.FeedbackRejected,
	models.FeedbackWakeFailed,
	models.FeedbackLoginCompleted,
	models.FeedbackLoginFailed,
}

// TelegramSink queues events and sends them to a chat from its own goroutine
// so a slow Bot API never delays typing.
type TelegramSink struct {
	svc    telegram.Service
	cfg    models.TelegramConfig
	kinds  []models.FeedbackKind
	queue  chan models.FeedbackEvent
	logger zerolog.Logger
}

// NewTelegramSink creates a sink sending through svc. Call Run to deliver.
func NewTelegramSink(logger zerolog.Logger, svc telegram.Service, cfg models.TelegramConfig) *TelegramSink {
	kinds := cfg.Notify
	if len(kinds) == 0 {
		kinds = DefaultTelegramKinds
	}
	return &TelegramSink{
		svc:    svc,
		cfg:    cfg,
		kinds:  kinds,
		queue:  make(chan models.FeedbackEvent, 32),
		logger: logger,
	}
}

// Notify queues the event if its kind is enabled. Events are dropped when
// the queue is full.
func (s *TelegramSink) Notify(_ context.Context, event models.FeedbackEvent) {
	if !slices.Contains(s.kinds, event.Kind) {
		return
	}
	select {
	case s.queue <- event:
	default:
		s.logger.Warn().Str("feedback", string(event.Kind)).Msg("telegram queue full, dropping event")
	}
}

// Run sends queued events until ctx is done, then flushes what is left.
func (s *TelegramSink) Run(ctx context.Context) {
	for {
		select {
		case event := <-s.queue:
			s.send(ctx, event)
		case <-ctx.Done():
			s.flush()
			return
		}
	}
}

func (s *TelegramSink) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), TelegramSendTimeout)
	defer cancel()
	for {
		select {
		case event := <-s.queue:
			s.send(ctx, event)
		default:
			return
		}
	}
}

func (s *TelegramSink) send(ctx context.Context, event models.FeedbackEvent) {
	sctx, cancel := context.WithTimeout(ctx, TelegramSendTimeout)
	defer cancel()

	result, err := s.svc.SendNotification(sctx, s.cfg, event)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
	}
}
