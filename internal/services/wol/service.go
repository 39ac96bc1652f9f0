// Package wol builds and broadcasts Wake-on-LAN magic packets.
package wol

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/tapwake/internal/models"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

// PacketSize is the length of a magic packet without a SecureOn password.
const PacketSize = 6 + 16*6

// limitedBroadcast is the link-local broadcast address.
var limitedBroadcast = net.IPv4bcast

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	SendAll(ctx context.Context, mac, host string) (*models.WakeResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(addr string, mac net.HardwareAddr) error
}

// AddressSource exposes the station's current IPv4 configuration.
type AddressSource interface {
	Snapshot() models.LinkSnapshot
}

// DefaultClient is the default implementation using mdlayher/wol.
type DefaultClient struct{}

// Wake sends a magic packet to addr (host:port).
func (c *DefaultClient) Wake(addr string, mac net.HardwareAddr) error {
	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Wake(addr, mac); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}

	return nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	wolClient Client
	addrs     AddressSource
	logger    zerolog.Logger
}

// New creates a new WOL service. addrs may be nil, in which case no subnet
// broadcast is attempted.
func New(logger zerolog.Logger, addrs AddressSource) *Impl {
	return &Impl{
		wolClient: &DefaultClient{},
		addrs:     addrs,
		logger:    logger,
	}
}

// NewWithClient creates a new WOL service with a custom client (for testing).
func NewWithClient(logger zerolog.Logger, wolClient Client, addrs AddressSource) *Impl {
	return &Impl{
		wolClient: wolClient,
		addrs:     addrs,
		logger:    logger,
	}
}

// ParseMAC parses a colon-separated EUI-48 address such as "aa:bb:cc:dd:ee:ff".
// Other notations accepted by net.ParseMAC are rejected.
func ParseMAC(s string) (net.HardwareAddr, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 6 {
		return nil, fmt.Errorf("%w: MAC address %q must have 6 colon-separated octets", models.ErrInvalidArgument, s)
	}

	mac := make(net.HardwareAddr, 6)
	for i, part := range parts {
		if len(part) != 2 {
			return nil, fmt.Errorf("%w: MAC address %q has malformed octet %q", models.ErrInvalidArgument, s, part)
		}
		b, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: MAC address %q has non-hex octet %q", models.ErrInvalidArgument, s, part)
		}
		mac[i] = byte(b)
	}

	return mac, nil
}

// BuildPacket returns the 102-byte magic packet for mac: six 0xFF bytes
// followed by sixteen copies of the address.
func BuildPacket(mac string) ([]byte, error) {
	hw, err := ParseMAC(mac)
	if err != nil {
		return nil, err
	}

	packet := &wol.MagicPacket{Target: hw}
	b, err := packet.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}

	return b, nil
}

// Targets derives the destination list for one wake broadcast: the directed
// host, the subnet broadcast and the limited broadcast, each on ports 9 and 7.
// Entries whose address is unknown are omitted.
func Targets(mac net.HardwareAddr, host net.IP, info models.IPInfo) models.WakeTarget {
	target := models.WakeTarget{MAC: mac, Host: host}

	add := func(kind string, ip net.IP) {
		for _, port := range []int{models.WakePortDiscard, models.WakePortEcho} {
			target.Destinations = append(target.Destinations, models.WakeDestination{Kind: kind, IP: ip, Port: port})
		}
	}

	if host != nil {
		add("directed", host)
	}
	if bcast := info.Broadcast(); bcast != nil {
		add("subnet", bcast)
	}
	add("limited", limitedBroadcast)

	return target
}

// Send transmits a single magic packet. Failures are returned wrapped in
// models.ErrTransportFailure and are never fatal to the caller.
func (s *Impl) Send(ctx context.Context, mac net.HardwareAddr, dest models.WakeDestination) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.wolClient.Wake(dest.Addr(), mac); err != nil {
		return fmt.Errorf("%w: %s: %w", models.ErrTransportFailure, dest.Addr(), err)
	}

	return nil
}

// SendAll sends the magic packet to every destination of the wake target.
// The broadcast succeeds if at least one send succeeded.
func (s *Impl) SendAll(ctx context.Context, mac, host string) (*models.WakeResult, error) {
	result := &models.WakeResult{}
	start := time.Now()

	hw, err := ParseMAC(mac)
	if err != nil {
		result.Error = err
		return result, nil
	}

	var hostIP net.IP
	if host != "" {
		hostIP = net.ParseIP(host).To4()
		if hostIP == nil {
			result.Error = fmt.Errorf("%w: invalid host IPv4 address %q", models.ErrInvalidArgument, host)
			return result, nil
		}
	}

	var info models.IPInfo
	if s.addrs != nil {
		info = s.addrs.Snapshot().IPInfo
	}

	target := Targets(hw, hostIP, info)

	s.logger.Info().
		Str("mac", hw.String()).
		Str("host", host).
		Int("destinations", len(target.Destinations)).
		Msg("sending WOL packets")

	for _, dest := range target.Destinations {
		result.Attempted++
		if err := s.Send(ctx, hw, dest); err != nil {
			s.logger.Debug().Err(err).Str("kind", dest.Kind).Str("addr", dest.Addr()).Msg("WOL send failed")
			result.Failed = append(result.Failed, dest)
			continue
		}
		s.logger.Debug().Str("kind", dest.Kind).Str("addr", dest.Addr()).Msg("WOL packet sent")
		result.Sent = append(result.Sent, dest)
	}

	result.Duration = time.Since(start)

	if !result.Delivered() {
		result.Error = fmt.Errorf("%w: no WOL destination accepted the packet", models.ErrTransportFailure)
		return result, nil
	}

	s.logger.Info().
		Int("sent", len(result.Sent)).
		Int("failed", len(result.Failed)).
		Msg("WOL packets sent")

	return result, nil
}
