package link

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fgeck/tapwake/internal/clock"
	"github.com/fgeck/tapwake/internal/models"
	"github.com/fgeck/tapwake/internal/secret"
	"github.com/rs/zerolog"
)

// DefaultRoutePath is the kernel IPv4 routing table.
const DefaultRoutePath = "/proc/net/route"

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its output.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// AddressReader reads the current IPv4 configuration of an interface.
type AddressReader interface {
	Read(iface string) (models.IPInfo, bool)
}

// SysAddressReader reads addresses from the kernel.
type SysAddressReader struct {
	RoutePath string
}

// Read returns the first IPv4 address of iface and its default gateway.
// ok is false when the interface has no IPv4 address.
func (r SysAddressReader) Read(iface string) (models.IPInfo, bool) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return models.IPInfo{}, false
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return models.IPInfo{}, false
	}

	var info models.IPInfo
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			info.IP = ip4
			info.Mask = ipnet.Mask[len(ipnet.Mask)-net.IPv4len:]
			break
		}
	}
	if info.IP == nil {
		return models.IPInfo{}, false
	}

	path := r.RoutePath
	if path == "" {
		path = DefaultRoutePath
	}
	if f, err := os.Open(path); err == nil {
		info.Gateway, _ = ParseDefaultGateway(f, iface)
		_ = f.Close()
	}
	return info, true
}

// ParseDefaultGateway returns the gateway of the default route through iface
// from a /proc/net/route listing.
func ParseDefaultGateway(r io.Reader, iface string) (net.IP, error) {
	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] != iface || fields[1] != "00000000" {
			continue
		}
		flags, err := strconv.ParseUint(fields[3], 16, 32)
		if err != nil || flags&0x2 == 0 { // RTF_GATEWAY
			continue
		}
		raw, err := hex.DecodeString(fields[2])
		if err != nil || len(raw) != net.IPv4len {
			continue
		}
		// The kernel prints the address in host byte order.
		gw := make(net.IP, net.IPv4len)
		binary.BigEndian.PutUint32(gw, binary.LittleEndian.Uint32(raw))
		return gw, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no default route via %s", iface)
}

// NMStation drives a Wi-Fi interface through NetworkManager's nmcli and
// watches the interface address to report link changes.
type NMStation struct {
	executor CommandExecutor
	addrs    AddressReader
	clock    clock.Clock
	cfg      models.LinkConfig
	logger   zerolog.Logger

	mu     sync.Mutex
	events Events
	last   models.IPInfo
	up     bool
}

// NewNMStation creates a station for cfg.Interface.
func NewNMStation(logger zerolog.Logger, cfg models.LinkConfig) *NMStation {
	return NewNMStationWithExecutor(logger, cfg, &DefaultExecutor{}, SysAddressReader{}, clock.Real())
}

// NewNMStationWithExecutor creates a station with custom dependencies (for testing).
func NewNMStationWithExecutor(logger zerolog.Logger, cfg models.LinkConfig, executor CommandExecutor, addrs AddressReader, clk clock.Clock) *NMStation {
	if cfg.Interface == "" {
		cfg.Interface = "wlan0"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = DefaultWatchInterval
	}
	return &NMStation{
		executor: executor,
		addrs:    addrs,
		clock:    clk,
		cfg:      cfg,
		logger:   logger,
	}
}

// Attach sets the receiver of link notifications.
func (s *NMStation) Attach(events Events) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
}

// Connect starts a connection attempt in the background. A failed attempt
// is reported as a disconnect.
func (s *NMStation) Connect(ctx context.Context, ssid string, password *secret.Buffer) error {
	args := []string{"--wait", strconv.Itoa(int(s.cfg.ConnectTimeout / time.Second)),
		"device", "wifi", "connect", ssid}
	if password != nil && password.Len() > 0 {
		args = append(args, "password", password.String())
	}
	args = append(args, "ifname", s.cfg.Interface)

	go func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ConnectTimeout+5*time.Second)
		defer cancel()

		s.logger.Debug().Str("ssid", ssid).Str("interface", s.cfg.Interface).Msg("running nmcli connect")
		output, err := s.executor.Execute(cctx, "nmcli", args...)
		if err != nil {
			s.notifyDisconnected(fmt.Sprintf("nmcli connect: %s", summarize(output, err)))
			return
		}
		// nmcli returns once the address is configured. Report it even when
		// the watcher has already seen it so the pending connect completes.
		s.poll(true)
	}()
	return nil
}

// Disconnect drops the link.
func (s *NMStation) Disconnect(ctx context.Context) error {
	output, err := s.executor.Execute(ctx, "nmcli", "device", "disconnect", s.cfg.Interface)
	if err != nil {
		return fmt.Errorf("%w: nmcli disconnect: %s", models.ErrTransportFailure, summarize(output, err))
	}
	s.mu.Lock()
	s.up = false
	s.last = models.IPInfo{}
	s.mu.Unlock()
	return nil
}

// Watch polls the interface address every WatchInterval until ctx is done.
func (s *NMStation) Watch(ctx context.Context) {
	for {
		s.Poll()
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.cfg.WatchInterval):
		}
	}
}

// Poll reads the interface address once and reports gains, changes and losses.
func (s *NMStation) Poll() {
	s.poll(false)
}

func (s *NMStation) poll(force bool) {
	info, ok := s.addrs.Read(s.cfg.Interface)

	s.mu.Lock()
	events := s.events
	wasUp, last := s.up, s.last
	s.up, s.last = ok, info
	s.mu.Unlock()

	if events == nil {
		return
	}
	switch {
	case ok && (force || !wasUp || !sameInfo(info, last)):
		events.HandleAddressAcquired(info)
	case !ok && wasUp:
		events.HandleDisconnected("address lost on " + s.cfg.Interface)
	}
}

func (s *NMStation) notifyDisconnected(reason string) {
	s.mu.Lock()
	events := s.events
	s.mu.Unlock()
	if events != nil {
		events.HandleDisconnected(reason)
	}
}

func sameInfo(a, b models.IPInfo) bool {
	return a.IP.Equal(b.IP) && a.Gateway.Equal(b.Gateway) && a.Mask.String() == b.Mask.String()
}

func summarize(output []byte, err error) string {
	msg := strings.TrimSpace(string(output))
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if msg == "" {
		return err.Error()
	}
	return msg
}
