//go:build e2e

package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/fgeck/tapwake/internal/models"
	"github.com/fgeck/tapwake/internal/services/probe"
	"github.com/stretchr/testify/assert"
)

func TestProbe_ListeningPort_E2E(t *testing.T) {
	port := tcpTarget(t)
	svc := probe.New(testLogger(), []int{port})

	result := svc.Probe(context.Background(), models.ReachabilityProbe{
		Host:    "127.0.0.1",
		Timeout: 2 * time.Second,
	})

	assert.True(t, result.Reachable)
	assert.Equal(t, port, result.Port)
	assert.Equal(t, "connected", result.Evidence)
}

func TestProbe_RefusedPortCountsAsUp_E2E(t *testing.T) {
	port := closedPort(t)
	svc := probe.New(testLogger(), []int{port})

	assert.True(t, svc.IsReachable(context.Background(), "127.0.0.1", 2*time.Second))
}

func TestProbe_UnroutableHostTimesOut_E2E(t *testing.T) {
	// TEST-NET-1 is never routed.
	svc := probe.New(testLogger(), []int{3389})

	start := time.Now()
	up := svc.IsReachable(context.Background(), "192.0.2.1", 300*time.Millisecond)

	assert.False(t, up)
	assert.Less(t, time.Since(start), 2*time.Second)
}
