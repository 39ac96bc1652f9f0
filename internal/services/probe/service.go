// Package probe infers whether a remote host's operating system is running by
// attempting TCP handshakes on ports a powered-on desktop usually exposes.
package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/fgeck/tapwake/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// MinPortTimeout is the floor of the per-port time slice.
const MinPortTimeout = 150 * time.Millisecond

// DefaultPorts are probed in priority order: remote desktop, RPC endpoint
// mapper, file sharing.
var DefaultPorts = []int{3389, 135, 445}

// Service defines the interface for reachability probing.
type Service interface {
	IsReachable(ctx context.Context, host string, timeout time.Duration) bool
}

// Dialer allows mocking net.Dialer in tests.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Impl implements the probe Service interface.
type Impl struct {
	dialer Dialer
	ports  []int
	logger zerolog.Logger
}

// New creates a new probe service. An empty ports list selects DefaultPorts.
func New(logger zerolog.Logger, ports []int) *Impl {
	return NewWithDialer(logger, &net.Dialer{}, ports)
}

// NewWithDialer creates a new probe service with a custom dialer (for testing).
func NewWithDialer(logger zerolog.Logger, dialer Dialer, ports []int) *Impl {
	if len(ports) == 0 {
		ports = DefaultPorts
	}
	return &Impl{
		dialer: dialer,
		ports:  append([]int(nil), ports...),
		logger: logger,
	}
}

// PortTimeout splits a total budget across count ports, floored at MinPortTimeout.
func PortTimeout(total time.Duration, count int) time.Duration {
	if count < 1 {
		count = 1
	}
	slice := total / time.Duration(count)
	if slice < MinPortTimeout {
		slice = MinPortTimeout
	}
	return slice
}

// IsReachable reports whether host answered on any of the configured ports
// within timeout.
func (s *Impl) IsReachable(ctx context.Context, host string, timeout time.Duration) bool {
	return s.Probe(ctx, models.ReachabilityProbe{Host: host, Ports: s.ports, Timeout: timeout}).Reachable
}

// Probe runs a single reachability check. A completed handshake and an active
// refusal both prove the host's network stack is up. Anything else moves on to
// the next port.
func (s *Impl) Probe(ctx context.Context, p models.ReachabilityProbe) models.ProbeResult {
	start := time.Now()
	result := models.ProbeResult{}

	ports := p.Ports
	if len(ports) == 0 {
		ports = s.ports
	}
	slice := PortTimeout(p.Timeout, len(ports))

	for _, port := range ports {
		if ctx.Err() != nil {
			break
		}

		evidence, err := s.attempt(ctx, p.Host, port, slice)
		if err != nil {
			s.logger.Debug().Err(err).Str("host", p.Host).Int("port", port).Dur("slice", slice).Msg("probe attempt failed")
			continue
		}

		result.Reachable = true
		result.Port = port
		result.Evidence = evidence
		result.Duration = time.Since(start)

		s.logger.Info().Str("host", p.Host).Int("port", port).Str("evidence", evidence).Msg("host is reachable")
		return result
	}

	result.Duration = time.Since(start)
	s.logger.Info().Str("host", p.Host).Dur("duration", result.Duration).Msg("host is not reachable on any probed port")
	return result
}

func (s *Impl) attempt(ctx context.Context, host string, port int, slice time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, slice)
	defer cancel()

	conn, err := s.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err == nil {
		_ = conn.Close()
		return "connected", nil
	}
	if IsRefused(err) {
		return "refused", nil
	}
	return "", err
}

// IsRefused reports whether err is an active connection refusal (RST).
func IsRefused(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED)
}
