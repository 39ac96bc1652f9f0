package link

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/fgeck/tapwake/internal/models"
)

// KeepalivePort is the gateway port the heartbeat datagram is sent to.
const KeepalivePort = 53

// KeepalivePayload is the heartbeat datagram.
var KeepalivePayload = []byte("keepalive")

// UDPHeartbeat sends the keepalive datagram over UDP.
type UDPHeartbeat struct {
	dialer *net.Dialer
	port   int
}

// NewUDPHeartbeat creates a heartbeat sending to port 53 of the gateway.
func NewUDPHeartbeat() *UDPHeartbeat {
	return NewUDPHeartbeatWithPort(KeepalivePort)
}

// NewUDPHeartbeatWithPort creates a heartbeat sending to a custom port (for testing).
func NewUDPHeartbeatWithPort(port int) *UDPHeartbeat {
	return &UDPHeartbeat{dialer: &net.Dialer{Timeout: time.Second}, port: port}
}

// Beat sends one datagram. Delivery is not confirmed.
func (h *UDPHeartbeat) Beat(ctx context.Context, gateway net.IP) error {
	addr := net.JoinHostPort(gateway.String(), strconv.Itoa(h.port))
	conn, err := h.dialer.DialContext(ctx, "udp4", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(KeepalivePayload); err != nil {
		return fmt.Errorf("write %s: %w", addr, err)
	}
	return nil
}

// startKeepalive launches the heartbeat task the first time the link comes up.
// Later reconnects reuse the running task.
func (s *Supervisor) startKeepalive(ctx context.Context) {
	if s.keepaliveStarted {
		return
	}
	s.keepaliveStarted = true
	s.keepaliveRunning.Store(true)
	go s.keepalive(ctx)
}

func (s *Supervisor) keepalive(ctx context.Context) {
	defer s.keepaliveRunning.Store(false)

	s.logger.Debug().Dur("interval", s.cfg.KeepaliveInterval).Msg("keepalive started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Msg("keepalive stopped")
			return
		case <-s.clock.After(s.cfg.KeepaliveInterval):
		}
		s.beat(ctx)
	}
}

// beat sends one heartbeat if the snapshot says the link is up. It reports
// whether a datagram was attempted.
func (s *Supervisor) beat(ctx context.Context) bool {
	snap := s.snapshot.Load()
	if snap.State != models.LinkConnected || snap.IPInfo.Gateway == nil {
		return false
	}

	bctx, cancel := context.WithTimeout(ctx, s.cfg.KeepaliveInterval)
	defer cancel()

	if err := s.heartbeat.Beat(bctx, snap.IPInfo.Gateway); err != nil {
		s.logger.Debug().Err(err).Str("gateway", snap.IPInfo.Gateway.String()).Msg("keepalive failed")
	}
	return true
}
