package models

import (
	"net"
	"time"

	"github.com/fgeck/tapwake/internal/secret"
)

// LinkState is the state of the Wi-Fi station link.
type LinkState int

// Link states. Failed is terminal until the next explicit connect.
const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnected
	LinkFailed
)

func (s LinkState) String() string {
	switch s {
	case LinkDisconnected:
		return "disconnected"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IPInfo describes the station's IPv4 configuration.
type IPInfo struct {
	IP      net.IP
	Mask    net.IPMask
	Gateway net.IP
}

// Broadcast returns the directed subnet broadcast address, or nil when the
// address or mask is unknown.
func (i IPInfo) Broadcast() net.IP {
	ip := i.IP.To4()
	if ip == nil || len(i.Mask) != net.IPv4len {
		return nil
	}
	bcast := make(net.IP, net.IPv4len)
	for k := range ip {
		bcast[k] = ip[k] | ^i.Mask[k]
	}
	return bcast
}

// LinkSnapshot is a read-only copy of the link supervisor's state.
type LinkSnapshot struct {
	State            LinkState
	Retries          int
	IPInfo           IPInfo
	KeepaliveRunning bool
	LastReason       string
	UpdatedAt        time.Time
}

// LinkConfig holds Wi-Fi station configuration.
type LinkConfig struct {
	SSID              string
	Password          *secret.Buffer
	Interface         string
	ConnectTimeout    time.Duration // bound on the blocking connect call
	KeepaliveInterval time.Duration // heartbeat period while connected
	MaxRetry          int           // disconnects tolerated before the link fails
	WatchInterval     time.Duration // address watcher poll period
}
