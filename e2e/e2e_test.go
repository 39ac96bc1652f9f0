//go:build e2e

package e2e

import (
	"io"
	"net"
	"testing"

	"github.com/fgeck/tapwake/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// loopbackAddrs reports a connected station on 127.0.0.1/8.
type loopbackAddrs struct{}

func (loopbackAddrs) Snapshot() models.LinkSnapshot {
	return models.LinkSnapshot{
		State: models.LinkConnected,
		IPInfo: models.IPInfo{
			IP:      net.IPv4(127, 0, 0, 1).To4(),
			Mask:    net.CIDRMask(8, 32),
			Gateway: net.IPv4(127, 0, 0, 1).To4(),
		},
	}
}

// tcpTarget listens on a random loopback port and returns the port.
func tcpTarget(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

// closedPort returns a loopback port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}
