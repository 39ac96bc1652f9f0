package link

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fgeck/tapwake/internal/clock"
	"github.com/fgeck/tapwake/internal/models"
	"github.com/fgeck/tapwake/internal/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const routeTable = `Iface	Destination	Gateway 	Flags	RefCnt	Use	Metric	Mask		MTU	Window	IRTT
eth0	00000000	FE01A8C0	0003	0	0	100	00000000	0	0	0
wlan0	0001A8C0	00000000	0001	0	0	600	00FFFFFF	0	0	0
wlan0	00000000	0101A8C0	0003	0	0	600	00000000	0	0	0
`

type mockExecutor struct {
	executeFunc func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func (m *mockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	if m.executeFunc != nil {
		return m.executeFunc(ctx, name, args...)
	}
	return nil, nil
}

type mockAddressReader struct {
	mu   sync.Mutex
	info models.IPInfo
	ok   bool
}

func (m *mockAddressReader) Read(iface string) (models.IPInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info, m.ok
}

func (m *mockAddressReader) set(info models.IPInfo, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info, m.ok = info, ok
}

type recordedEvents struct {
	mu       sync.Mutex
	acquired []models.IPInfo
	reasons  []string
}

func (r *recordedEvents) HandleAddressAcquired(info models.IPInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acquired = append(r.acquired, info)
}

func (r *recordedEvents) HandleDisconnected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *recordedEvents) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.acquired), len(r.reasons)
}

func newTestStation(executor CommandExecutor, addrs AddressReader) *NMStation {
	cfg := models.LinkConfig{Interface: "wlan0", ConnectTimeout: 20 * time.Second}
	return NewNMStationWithExecutor(testLogger(), cfg, executor, addrs, clock.Fake(time.Now()))
}

func TestParseDefaultGateway(t *testing.T) {
	gw, err := ParseDefaultGateway(strings.NewReader(routeTable), "wlan0")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.1", gw.String())

	gw, err = ParseDefaultGateway(strings.NewReader(routeTable), "eth0")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.254", gw.String())
}

func TestParseDefaultGateway_NoRoute(t *testing.T) {
	_, err := ParseDefaultGateway(strings.NewReader(routeTable), "usb0")
	assert.Error(t, err)

	noGatewayFlag := "Iface\tDestination\tGateway\tFlags\nwlan0\t00000000\t00000000\t0001\n"
	_, err = ParseDefaultGateway(strings.NewReader(noGatewayFlag), "wlan0")
	assert.Error(t, err)
}

func TestPoll_ReportsTransitions(t *testing.T) {
	addrs := &mockAddressReader{}
	events := &recordedEvents{}
	station := newTestStation(&mockExecutor{}, addrs)
	station.Attach(events)

	station.Poll()
	acquired, lost := events.counts()
	assert.Equal(t, 0, acquired)
	assert.Equal(t, 0, lost, "no loss reported before the first address")

	addrs.set(testInfo(), true)
	station.Poll()
	station.Poll()
	acquired, _ = events.counts()
	assert.Equal(t, 1, acquired, "unchanged address reported once")

	changed := testInfo()
	changed.IP = net.IPv4(192, 168, 1, 77).To4()
	addrs.set(changed, true)
	station.Poll()
	acquired, _ = events.counts()
	assert.Equal(t, 2, acquired)

	addrs.set(models.IPInfo{}, false)
	station.Poll()
	station.Poll()
	_, lost = events.counts()
	assert.Equal(t, 1, lost)
	assert.Equal(t, "address lost on wlan0", events.reasons[0])
}

func TestNMStationConnect_Args(t *testing.T) {
	called := make(chan []string, 1)
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			assert.Equal(t, "nmcli", name)
			called <- args
			return []byte("Device 'wlan0' successfully activated"), nil
		},
	}
	addrs := &mockAddressReader{}
	addrs.set(testInfo(), true)
	events := &recordedEvents{}
	station := newTestStation(executor, addrs)
	station.Attach(events)

	pw, err := secret.NewFromString("hunter22")
	require.NoError(t, err)
	defer func() { _ = pw.Close() }()
	require.NoError(t, station.Connect(context.Background(), "homelab", pw))

	select {
	case args := <-called:
		assert.Equal(t, []string{"--wait", "20", "device", "wifi", "connect", "homelab",
			"password", "hunter22", "ifname", "wlan0"}, args)
	case <-time.After(2 * time.Second):
		t.Fatal("nmcli was not run")
	}

	require.Eventually(t, func() bool {
		acquired, _ := events.counts()
		return acquired == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNMStationConnect_ReportsAddressAlreadyKnown(t *testing.T) {
	addrs := &mockAddressReader{}
	addrs.set(testInfo(), true)
	events := &recordedEvents{}
	station := newTestStation(&mockExecutor{}, addrs)
	station.Attach(events)

	station.Poll()
	require.NoError(t, station.Connect(context.Background(), "homelab", nil))

	require.Eventually(t, func() bool {
		acquired, _ := events.counts()
		return acquired == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNMStationConnect_FailureReportedAsDisconnect(t *testing.T) {
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("Error: Connection activation failed: Secrets were required, but not provided.\n"),
				errors.New("exit status 4")
		},
	}
	events := &recordedEvents{}
	station := newTestStation(executor, &mockAddressReader{})
	station.Attach(events)

	require.NoError(t, station.Connect(context.Background(), "homelab", nil))

	require.Eventually(t, func() bool {
		_, lost := events.counts()
		return lost == 1
	}, 2*time.Second, 5*time.Millisecond)

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, "nmcli connect: Error: Connection activation failed: Secrets were required, but not provided.", events.reasons[0])
}

func TestNMStationDisconnect(t *testing.T) {
	var got []string
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			got = args
			return nil, nil
		},
	}
	station := newTestStation(executor, &mockAddressReader{})

	require.NoError(t, station.Disconnect(context.Background()))
	assert.Equal(t, []string{"device", "disconnect", "wlan0"}, got)
}

func TestNMStationDisconnect_Error(t *testing.T) {
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("Error: Device 'wlan0' not found."), errors.New("exit status 10")
		},
	}
	station := newTestStation(executor, &mockAddressReader{})

	err := station.Disconnect(context.Background())
	assert.ErrorIs(t, err, models.ErrTransportFailure)
	assert.Contains(t, err.Error(), "not found")
}

func TestSupervisorWithNMStation(t *testing.T) {
	addrs := &mockAddressReader{}
	var runs atomic.Int32
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			runs.Add(1)
			addrs.set(testInfo(), true)
			return nil, nil
		},
	}
	station := newTestStation(executor, addrs)
	sup := newTestSupervisor(t, station, 0)
	station.Attach(sup)

	require.NoError(t, sup.Connect(connectCtx(t), "homelab", nil))
	assert.True(t, sup.CheckConnection())

	// Losing the address triggers a reconnect through nmcli.
	addrs.set(models.IPInfo{}, false)
	station.Poll()
	require.Eventually(t, func() bool {
		return runs.Load() == 2 && sup.CheckConnection()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, sup.Snapshot().Retries)
}
