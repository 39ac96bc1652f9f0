// Package login orchestrates one tap: it checks the link, wakes the target
// host if needed and types the login password.
package login

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/fgeck/tapwake/internal/clock"
	"github.com/fgeck/tapwake/internal/models"
	"github.com/fgeck/tapwake/internal/services/feedback"
	"github.com/fgeck/tapwake/internal/services/keyboard"
	"github.com/fgeck/tapwake/internal/services/probe"
	"github.com/fgeck/tapwake/internal/services/wol"
	"github.com/rs/zerolog"
)

// Default timings.
const (
	DefaultQuickProbeTimeout = 600 * time.Millisecond
	DefaultWakeBudget        = 30 * time.Second
	DefaultProbesPerWake     = 3
	DefaultProbeTimeout      = time.Second
	DefaultFinalProbeTimeout = 3 * time.Second
	DefaultBootSettle        = 7 * time.Second
	DefaultFocusSettle       = 500 * time.Millisecond
	DefaultKeyDelay          = 50 * time.Millisecond
)

// Service defines the interface for the login orchestrator.
type Service interface {
	Login(ctx context.Context, cfg models.LoginConfig, authorized bool) (*models.LoginResult, error)
}

// Link reports whether the network link is usable.
type Link interface {
	CheckConnection() bool
}

// Impl implements the login Service interface.
type Impl struct {
	link     Link
	prober   probe.Service
	wolSvc   wol.Service
	keyboard keyboard.Service
	sink     feedback.Sink
	clock    clock.Clock
	logger   zerolog.Logger
}

// New creates a login orchestrator.
func New(
	logger zerolog.Logger,
	link Link,
	prober probe.Service,
	wolSvc wol.Service,
	kbd keyboard.Service,
	sink feedback.Sink,
) *Impl {
	return NewWithClock(logger, link, prober, wolSvc, kbd, sink, clock.Real())
}

// NewWithClock creates a login orchestrator with a custom clock (for testing).
func NewWithClock(
	logger zerolog.Logger,
	link Link,
	prober probe.Service,
	wolSvc wol.Service,
	kbd keyboard.Service,
	sink feedback.Sink,
	clk clock.Clock,
) *Impl {
	if sink == nil {
		sink = feedback.Discard{}
	}
	return &Impl{
		link:     link,
		prober:   prober,
		wolSvc:   wolSvc,
		keyboard: kbd,
		sink:     sink,
		clock:    clk,
		logger:   logger,
	}
}

// WithDefaults fills zero timings of cfg with the defaults.
func WithDefaults(cfg models.LoginConfig) models.LoginConfig {
	if cfg.QuickProbeTimeout <= 0 {
		cfg.QuickProbeTimeout = DefaultQuickProbeTimeout
	}
	if cfg.WakeBudget <= 0 {
		cfg.WakeBudget = DefaultWakeBudget
	}
	if cfg.ProbesPerWake <= 0 {
		cfg.ProbesPerWake = DefaultProbesPerWake
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.FinalProbeTimeout <= 0 {
		cfg.FinalProbeTimeout = DefaultFinalProbeTimeout
	}
	if cfg.BootSettle <= 0 {
		cfg.BootSettle = DefaultBootSettle
	}
	if cfg.FocusSettle <= 0 {
		cfg.FocusSettle = DefaultFocusSettle
	}
	if cfg.KeyDelay <= 0 {
		cfg.KeyDelay = DefaultKeyDelay
	}
	return cfg
}

// Validate checks the parts of cfg the orchestrator cannot run without.
func Validate(cfg models.LoginConfig) error {
	if ip := net.ParseIP(cfg.Host); ip == nil || ip.To4() == nil {
		return fmt.Errorf("%w: target host %q is not an IPv4 address", models.ErrInvalidArgument, cfg.Host)
	}
	if _, err := wol.ParseMAC(cfg.MAC); err != nil {
		return err
	}
	if cfg.Password == nil || cfg.Password.Len() == 0 {
		return fmt.Errorf("%w: login password is empty", models.ErrInvalidArgument)
	}
	return nil
}

// Login runs one tap to completion. Domain failures are reported through
// the result's Outcome and Error; the returned error is reserved for an
// invalid configuration.
//
// ctx is only consulted before the link check and before the wake loop.
// Once waking or typing has started it runs to completion.
func (s *Impl) Login(ctx context.Context, cfg models.LoginConfig, authorized bool) (*models.LoginResult, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cfg = WithDefaults(cfg)

	start := s.clock.Now()
	result := &models.LoginResult{Authorized: authorized}
	defer func() { result.Elapsed = s.clock.Since(start) }()

	if !authorized {
		s.logger.Info().Msg("tag not authorized")
		result.Outcome = models.OutcomeRejected
		s.emit(ctx, start, models.FeedbackRejected, cfg.Host, "")
		return result, nil
	}

	s.logger.Info().Str("host", cfg.Host).Msg("starting login")
	s.emit(ctx, start, models.FeedbackAccepted, cfg.Host, "")

	if err := ctx.Err(); err != nil {
		return s.cancelled(result, err), nil
	}

	// Step 1: link check, no network I/O
	if !s.link.CheckConnection() {
		s.logger.Warn().Msg("link down, skipping login")
		result.Outcome = models.OutcomeLinkDown
		result.Error = fmt.Errorf("%w: no connection to the network", models.ErrLinkDown)
		s.emit(ctx, start, models.FeedbackLoginFailed, cfg.Host, result.Error.Error())
		return result, nil
	}
	result.LinkOK = true

	if cfg.AlwaysWake {
		s.wake(ctx, cfg, result)
	}

	// Step 2: already on?
	if s.prober.IsReachable(ctx, cfg.Host, cfg.QuickProbeTimeout) {
		s.logger.Info().Str("host", cfg.Host).Msg("host already online")
		result.HostAlreadyOn = true
		result.Path = models.PathQuick
		s.emit(ctx, start, models.FeedbackHostOnline, cfg.Host, "")
		s.clock.Sleep(cfg.QuickSettle)
	} else {
		if err := ctx.Err(); err != nil {
			return s.cancelled(result, err), nil
		}

		// Step 3: wake loop
		result.Path = models.PathWake
		if !s.wakeLoop(context.WithoutCancel(ctx), cfg, result) {
			result.Outcome = models.OutcomeWakeFailed
			result.Error = fmt.Errorf("%w: %s did not answer within %s", models.ErrUnreachable, cfg.Host, cfg.WakeBudget)
			s.logger.Warn().
				Str("host", cfg.Host).
				Int("wake_attempts", result.WakeAttempts).
				Msg("host did not wake")
			s.emit(ctx, start, models.FeedbackWakeFailed, cfg.Host, result.Error.Error())
			return result, nil
		}

		s.logger.Info().
			Str("host", cfg.Host).
			Int("wake_attempts", result.WakeAttempts).
			Dur("boot_settle", cfg.BootSettle).
			Msg("host woke up")
		s.emit(ctx, start, models.FeedbackHostOnline, cfg.Host, "")
		s.clock.Sleep(cfg.BootSettle)
	}

	// Step 4: typing
	if err := s.typePassword(context.WithoutCancel(ctx), cfg, result); err != nil {
		result.Outcome = models.OutcomeTypingFailed
		result.Error = err
		s.logger.Error().Err(err).Msg("typing failed")
		s.emit(ctx, start, models.FeedbackLoginFailed, cfg.Host, err.Error())
		return result, nil
	}

	result.Outcome = models.OutcomeCompleted
	s.logger.Info().
		Str("path", string(result.Path)).
		Dur("duration", s.clock.Since(start)).
		Msg("login completed")
	s.emit(ctx, start, models.FeedbackLoginCompleted, cfg.Host, "")

	return result, nil
}

// wakeLoop broadcasts wake packets and probes until the host answers or
// the budget is spent, then probes one last time.
func (s *Impl) wakeLoop(ctx context.Context, cfg models.LoginConfig, result *models.LoginResult) bool {
	loopStart := s.clock.Now()

	for s.clock.Since(loopStart) < cfg.WakeBudget {
		s.wake(ctx, cfg, result)

		for i := 0; i < cfg.ProbesPerWake; i++ {
			if s.prober.IsReachable(ctx, cfg.Host, cfg.ProbeTimeout) {
				return true
			}
		}
		s.logger.Debug().
			Int("wake_attempts", result.WakeAttempts).
			Dur("elapsed", s.clock.Since(loopStart)).
			Msg("host still down")
	}

	return s.prober.IsReachable(ctx, cfg.Host, cfg.FinalProbeTimeout)
}

func (s *Impl) wake(ctx context.Context, cfg models.LoginConfig, result *models.LoginResult) {
	result.WakeAttempts++

	wakeResult, err := s.wolSvc.SendAll(ctx, cfg.MAC, cfg.Host)
	if err != nil {
		s.logger.Warn().Err(err).Msg("wake broadcast failed")
		return
	}
	if wakeResult.Error != nil {
		s.logger.Warn().Err(wakeResult.Error).Int("failed", len(wakeResult.Failed)).Msg("wake broadcast failed")
		return
	}
	s.logger.Debug().Int("sent", len(wakeResult.Sent)).Int("failed", len(wakeResult.Failed)).Msg("wake broadcast sent")
}

func (s *Impl) typePassword(ctx context.Context, cfg models.LoginConfig, result *models.LoginResult) error {
	// Enter dismisses the lock screen and focuses the password field.
	if err := s.keyboard.PressEnter(ctx); err != nil {
		return fmt.Errorf("focus: %w", err)
	}
	s.clock.Sleep(cfg.FocusSettle)

	typing, err := s.keyboard.TypeString(ctx, cfg.Password.String(), cfg.KeyDelay)
	result.Typing = typing
	if err != nil {
		return fmt.Errorf("password: %w", err)
	}

	if err := s.keyboard.PressEnter(ctx); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

func (s *Impl) cancelled(result *models.LoginResult, err error) *models.LoginResult {
	s.logger.Info().Err(err).Msg("login cancelled")
	result.Outcome = models.OutcomeCancelled
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", models.ErrTimeout, err)
	}
	result.Error = err
	return result
}

func (s *Impl) emit(ctx context.Context, start time.Time, kind models.FeedbackKind, host, detail string) {
	s.sink.Notify(ctx, models.FeedbackEvent{
		Kind:    kind,
		Host:    host,
		Time:    s.clock.Now(),
		Elapsed: s.clock.Since(start),
		Detail:  detail,
	})
}
