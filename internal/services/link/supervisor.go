// Package link keeps the Wi-Fi station link up: it connects, retries on
// disconnects, and sends a heartbeat to the gateway while connected.
package link

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fgeck/tapwake/internal/clock"
	"github.com/fgeck/tapwake/internal/models"
	"github.com/fgeck/tapwake/internal/secret"
	"github.com/rs/zerolog"
)

// Defaults applied to a zero LinkConfig.
const (
	DefaultMaxRetry          = 5
	DefaultKeepaliveInterval = 2 * time.Second
	DefaultConnectTimeout    = 30 * time.Second
	DefaultWatchInterval     = time.Second
)

// Service defines the link operations used by the rest of tapwake.
type Service interface {
	Connect(ctx context.Context, ssid string, password *secret.Buffer) error
	Disconnect(ctx context.Context) error
	CheckConnection() bool
	Snapshot() models.LinkSnapshot
}

// Events receives link notifications from a Station.
type Events interface {
	HandleAddressAcquired(info models.IPInfo)
	HandleDisconnected(reason string)
}

// Station drives the radio. Connect only starts an attempt; the outcome is
// reported later through Events.
type Station interface {
	Connect(ctx context.Context, ssid string, password *secret.Buffer) error
	Disconnect(ctx context.Context) error
}

// Heartbeat sends one keepalive datagram to the gateway.
type Heartbeat interface {
	Beat(ctx context.Context, gateway net.IP) error
}

type messageKind int

const (
	msgConnect messageKind = iota
	msgDisconnect
	msgAddressAcquired
	msgDisconnected
)

type message struct {
	kind     messageKind
	ssid     string
	password *secret.Buffer
	info     models.IPInfo
	reason   string
	reply    chan error
}

// Supervisor is an actor: a single goroutine started by Run owns the link
// state and the retry counter. Everyone else talks to it through messages
// and reads the published snapshot.
type Supervisor struct {
	station   Station
	heartbeat Heartbeat
	clock     clock.Clock
	cfg       models.LinkConfig
	logger    zerolog.Logger

	msgs     chan message
	done     chan struct{}
	snapshot atomic.Pointer[models.LinkSnapshot]
	runOnce  sync.Once

	// Owned by the Run goroutine.
	state            models.LinkState
	retries          int
	info             models.IPInfo
	reason           string
	ssid             string
	password         *secret.Buffer
	waiters          []chan error
	keepaliveStarted bool
	keepaliveRunning atomic.Bool
}

// New creates a supervisor using the given station and a UDP heartbeat.
func New(logger zerolog.Logger, cfg models.LinkConfig, station Station) *Supervisor {
	return NewWithHeartbeat(logger, cfg, station, NewUDPHeartbeat(), clock.Real())
}

// NewWithHeartbeat creates a supervisor with a custom heartbeat and clock (for testing).
func NewWithHeartbeat(logger zerolog.Logger, cfg models.LinkConfig, station Station, heartbeat Heartbeat, clk clock.Clock) *Supervisor {
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = DefaultMaxRetry
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = DefaultKeepaliveInterval
	}

	s := &Supervisor{
		station:   station,
		heartbeat: heartbeat,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
		msgs:      make(chan message, 16),
		done:      make(chan struct{}),
	}
	s.publish()
	return s
}

// Start runs the actor in a new goroutine.
func (s *Supervisor) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Run processes messages until ctx is done. Only the first call has any effect.
func (s *Supervisor) Run(ctx context.Context) {
	s.runOnce.Do(func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-s.msgs:
				s.handle(ctx, m)
				s.publish()
			}
		}
	})
}

// Connect starts connecting to ssid and blocks until the link is connected,
// has failed (models.ErrLinkFailed), or ctx is done (models.ErrTimeout).
func (s *Supervisor) Connect(ctx context.Context, ssid string, password *secret.Buffer) error {
	if ssid == "" {
		return fmt.Errorf("%w: empty SSID", models.ErrInvalidArgument)
	}
	if s.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
	}

	reply := make(chan error, 1)
	if err := s.send(ctx, message{kind: msgConnect, ssid: ssid, password: password, reply: reply}); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: connecting to %q", models.ErrTimeout, ssid)
	case <-s.done:
		return fmt.Errorf("%w: supervisor stopped", models.ErrLinkDown)
	}
}

// Disconnect drops the link and leaves it in the disconnected state.
func (s *Supervisor) Disconnect(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, message{kind: msgDisconnect, reply: reply}); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: disconnecting", models.ErrTimeout)
	case <-s.done:
		return fmt.Errorf("%w: supervisor stopped", models.ErrLinkDown)
	}
}

// HandleAddressAcquired reports that the station obtained an IPv4 address.
func (s *Supervisor) HandleAddressAcquired(info models.IPInfo) {
	_ = s.send(context.Background(), message{kind: msgAddressAcquired, info: info})
}

// HandleDisconnected reports that the station lost the link.
func (s *Supervisor) HandleDisconnected(reason string) {
	_ = s.send(context.Background(), message{kind: msgDisconnected, reason: reason})
}

// CheckConnection reports whether the link is connected with a known
// gateway. It reads the last snapshot and never blocks.
func (s *Supervisor) CheckConnection() bool {
	snap := s.snapshot.Load()
	return snap.State == models.LinkConnected && snap.IPInfo.Gateway != nil
}

// Snapshot returns a copy of the current link state.
func (s *Supervisor) Snapshot() models.LinkSnapshot {
	snap := *s.snapshot.Load()
	snap.KeepaliveRunning = s.keepaliveRunning.Load()
	return snap
}

func (s *Supervisor) send(ctx context.Context, m message) error {
	select {
	case s.msgs <- m:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: supervisor busy", models.ErrTimeout)
	case <-s.done:
		return fmt.Errorf("%w: supervisor stopped", models.ErrLinkDown)
	}
}

func (s *Supervisor) handle(ctx context.Context, m message) {
	switch m.kind {
	case msgConnect:
		s.logger.Info().Str("ssid", m.ssid).Msg("connecting")
		s.ssid = m.ssid
		s.password = m.password
		s.retries = 0
		s.reason = ""
		s.state = models.LinkConnecting
		s.waiters = append(s.waiters, m.reply)
		s.attempt(ctx)

	case msgDisconnect:
		s.logger.Info().Msg("disconnecting")
		s.state = models.LinkDisconnected
		s.info = models.IPInfo{}
		s.reason = "disconnect requested"
		err := s.station.Disconnect(ctx)
		s.publish()
		m.reply <- err

	case msgAddressAcquired:
		if s.state == models.LinkFailed {
			s.logger.Debug().Str("ip", m.info.IP.String()).Msg("ignoring address while link failed")
			return
		}
		s.logger.Info().
			Str("ip", m.info.IP.String()).
			Str("gateway", m.info.Gateway.String()).
			Msg("link connected")
		s.state = models.LinkConnected
		s.retries = 0
		s.info = m.info
		s.reason = ""
		s.startKeepalive(ctx)
		s.signal(nil)

	case msgDisconnected:
		if s.state == models.LinkDisconnected || s.state == models.LinkFailed {
			s.logger.Debug().Str("reason", m.reason).Str("state", s.state.String()).Msg("ignoring disconnect")
			return
		}
		s.info = models.IPInfo{}
		s.reason = m.reason
		s.lost(ctx, m.reason)
	}
}

// attempt asks the station to connect. A synchronous station error counts
// as a disconnect.
func (s *Supervisor) attempt(ctx context.Context) {
	for s.state == models.LinkConnecting {
		err := s.station.Connect(ctx, s.ssid, s.password)
		if err == nil {
			return
		}
		s.reason = err.Error()
		s.retries++
		s.logger.Warn().Err(err).Int("retry", s.retries).Msg("connect attempt failed")
		if s.retries >= s.cfg.MaxRetry {
			s.fail()
		}
	}
}

func (s *Supervisor) lost(ctx context.Context, reason string) {
	s.retries++
	s.logger.Warn().
		Str("reason", reason).
		Int("retry", s.retries).
		Int("max_retry", s.cfg.MaxRetry).
		Msg("link disconnected")

	if s.retries >= s.cfg.MaxRetry {
		s.fail()
		return
	}
	s.state = models.LinkConnecting
	s.attempt(ctx)
}

func (s *Supervisor) fail() {
	s.state = models.LinkFailed
	s.logger.Error().
		Str("ssid", s.ssid).
		Int("retries", s.retries).
		Str("reason", s.reason).
		Msg("link failed")
	s.signal(fmt.Errorf("%w: %d attempts to %q: %s", models.ErrLinkFailed, s.retries, s.ssid, s.reason))
}

// signal publishes the new state and then wakes every pending Connect.
func (s *Supervisor) signal(err error) {
	s.publish()
	for _, w := range s.waiters {
		w <- err
	}
	s.waiters = nil
}

func (s *Supervisor) publish() {
	s.snapshot.Store(&models.LinkSnapshot{
		State:            s.state,
		Retries:          s.retries,
		IPInfo:           s.info,
		KeepaliveRunning: s.keepaliveRunning.Load(),
		LastReason:       s.reason,
		UpdatedAt:        s.clock.Now(),
	})
}
