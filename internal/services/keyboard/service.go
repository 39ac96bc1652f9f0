// Package keyboard types text into the attached computer through an emulated
// USB HID boot keyboard.
package keyboard

import (
	"context"
	"fmt"
	"time"

	"github.com/fgeck/tapwake/internal/clock"
	"github.com/fgeck/tapwake/internal/models"
	"github.com/fgeck/tapwake/internal/poll"
	"github.com/rs/zerolog"
)

// ReadyPollInterval is how often the readiness predicate is re-evaluated.
const ReadyPollInterval = time.Millisecond

// Default timings.
const (
	DefaultReadyTimeout    = 4 * time.Second
	DefaultKeyReadyTimeout = 2 * time.Second
	DefaultPressHold       = 50 * time.Millisecond
	DefaultTypeHold        = 30 * time.Millisecond
)

// Service defines the interface for keyboard injection.
type Service interface {
	WaitReady(ctx context.Context, timeout time.Duration) bool
	PressKey(ctx context.Context, code byte) error
	PressEnter(ctx context.Context) error
	PressTab(ctx context.Context) error
	PressEscape(ctx context.Context) error
	TypeString(ctx context.Context, text string, interKeyDelay time.Duration) (*models.TypingResult, error)
}

// Transport is the HID device the reports are written to.
type Transport interface {
	// Mounted reports whether the host has enumerated the device.
	Mounted() bool
	// EndpointReady reports whether the interrupt endpoint accepts a report now.
	EndpointReady() bool
	SendReport(report models.KeyboardReport) error
}

// Impl implements the keyboard Service interface.
type Impl struct {
	transport Transport
	clock     clock.Clock
	cfg       models.KeyboardConfig
	logger    zerolog.Logger
}

// New creates a keyboard service writing to the USB gadget described by cfg.
func New(logger zerolog.Logger, cfg models.KeyboardConfig) *Impl {
	return NewWithTransport(logger, NewGadget(cfg.Device, cfg.UDC), clock.Real(), cfg)
}

// NewWithTransport creates a keyboard service with a custom transport and clock (for testing).
func NewWithTransport(logger zerolog.Logger, transport Transport, clk clock.Clock, cfg models.KeyboardConfig) *Impl {
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.KeyReadyTimeout == 0 {
		cfg.KeyReadyTimeout = DefaultKeyReadyTimeout
	}
	if cfg.PressHold == 0 {
		cfg.PressHold = DefaultPressHold
	}
	if cfg.TypeHold == 0 {
		cfg.TypeHold = DefaultTypeHold
	}
	return &Impl{
		transport: transport,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
	}
}

// WaitReady waits until the device is enumerated and its endpoint accepts a
// report, or timeout elapses.
func (s *Impl) WaitReady(ctx context.Context, timeout time.Duration) bool {
	return poll.Until(ctx, s.clock, ReadyPollInterval, timeout, func() bool {
		return s.transport.Mounted() && s.transport.EndpointReady()
	})
}

// PressKey presses and releases a single key without modifiers.
func (s *Impl) PressKey(ctx context.Context, code byte) error {
	s.logger.Debug().Str("code", fmt.Sprintf("0x%02X", code)).Msg("pressing key")

	if !s.WaitReady(ctx, s.cfg.KeyReadyTimeout) {
		s.logger.Warn().Dur("timeout", s.cfg.KeyReadyTimeout).Msg("HID not ready")
		return fmt.Errorf("%w: HID not ready after %s", models.ErrTimeout, s.cfg.KeyReadyTimeout)
	}

	return s.stroke(0, code, s.cfg.PressHold)
}

// PressEnter presses the Enter key.
func (s *Impl) PressEnter(ctx context.Context) error {
	s.logger.Info().Msg("pressing Enter")
	return s.PressKey(ctx, models.KeyEnter)
}

// PressTab presses the Tab key.
func (s *Impl) PressTab(ctx context.Context) error {
	s.logger.Info().Msg("pressing Tab")
	return s.PressKey(ctx, models.KeyTab)
}

// PressEscape presses the Escape key.
func (s *Impl) PressEscape(ctx context.Context) error {
	s.logger.Info().Msg("pressing Escape")
	return s.PressKey(ctx, models.KeyEscape)
}

// TypeString types text one key at a time. Characters without a key mapping
// are skipped with a warning. A readiness timeout aborts typing and returns
// models.ErrTimeout; the text may then be partially typed.
func (s *Impl) TypeString(ctx context.Context, text string, interKeyDelay time.Duration) (*models.TypingResult, error) {
	result := &models.TypingResult{}
	for range text {
		result.Length++
	}

	s.logger.Info().Int("length", result.Length).Msg("typing text")

	if !s.WaitReady(ctx, s.cfg.ReadyTimeout) {
		s.logger.Warn().Dur("timeout", s.cfg.ReadyTimeout).Msg("HID not ready before typing")
		return result, fmt.Errorf("%w: HID not ready before typing", models.ErrTimeout)
	}

	position := 0
	for _, r := range text {
		position++

		entry, ok := Lookup(r)
		if !ok {
			result.Skipped++
			s.logger.Warn().Int("position", position).Msg("unsupported character skipped")
			continue
		}

		if !s.WaitReady(ctx, s.cfg.KeyReadyTimeout) {
			s.logger.Warn().Int("position", position).Int("typed", result.Typed).Msg("HID not ready while typing")
			return result, fmt.Errorf("%w: HID not ready at character %d of %d", models.ErrTimeout, position, result.Length)
		}

		if err := s.stroke(entry.Modifier, entry.Code, s.cfg.TypeHold); err != nil {
			return result, err
		}
		result.Typed++
		result.Delay += s.cfg.TypeHold

		if interKeyDelay > 0 {
			s.clock.Sleep(interKeyDelay)
			result.Delay += interKeyDelay
		}
	}

	s.logger.Info().
		Int("typed", result.Typed).
		Int("skipped", result.Skipped).
		Msg("finished typing")

	return result, nil
}

func (s *Impl) stroke(modifier, code byte, hold time.Duration) error {
	if err := s.transport.SendReport(models.NewKeyReport(modifier, code)); err != nil {
		return fmt.Errorf("%w: key press: %w", models.ErrTransportFailure, err)
	}
	s.clock.Sleep(hold)
	if err := s.transport.SendReport(models.ReleaseReport); err != nil {
		return fmt.Errorf("%w: key release: %w", models.ErrTransportFailure, err)
	}
	return nil
}
