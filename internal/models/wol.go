package models

import (
	"net"
	"strconv"
	"time"
)

// Wake-on-LAN UDP ports. Port 9 (discard) is the common default; some NICs
// and routers only forward port 7 (echo).
const (
	WakePortDiscard = 9
	WakePortEcho    = 7
)

// WakeDestination is a single (address, port) pair a magic packet is sent to.
type WakeDestination struct {
	Kind string // "directed", "subnet", "limited"
	IP   net.IP
	Port int
}

// Addr returns the destination in host:port form.
func (d WakeDestination) Addr() string {
	return net.JoinHostPort(d.IP.String(), strconv.Itoa(d.Port))
}

// WakeTarget is the immutable set of destinations for one wake broadcast.
type WakeTarget struct {
	MAC          net.HardwareAddr
	Host         net.IP // nil if no directed address is configured
	Destinations []WakeDestination
}

// WakeResult holds the result of a wake broadcast.
type WakeResult struct {
	Attempted int
	Sent      []WakeDestination
	Failed    []WakeDestination
	Duration  time.Duration
	Error     error
}

// Delivered reports whether at least one destination accepted the packet.
func (r *WakeResult) Delivered() bool {
	return r != nil && len(r.Sent) > 0
}

// ReachabilityProbe describes a single reachability check.
type ReachabilityProbe struct {
	Host    string
	Ports   []int         // priority order
	Timeout time.Duration // total budget across all ports
}

// ProbeResult holds the outcome of a ReachabilityProbe.
type ProbeResult struct {
	Reachable bool
	Port      int    // port that answered, 0 if none
	Evidence  string // "connected" or "refused"
	Duration  time.Duration
}

// TargetConfig describes the single remote computer to wake and log into.
type TargetConfig struct {
	MACAddress string
	Host       string
	ProbePorts []int
}
