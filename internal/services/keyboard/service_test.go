package keyboard

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fgeck/tapwake/internal/clock"
	"github.com/fgeck/tapwake/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	mu          sync.Mutex
	mountedFunc func() bool
	readyFunc   func() bool
	sendFunc    func(report models.KeyboardReport) error
	reports     []models.KeyboardReport
}

func (m *mockTransport) Mounted() bool {
	if m.mountedFunc != nil {
		return m.mountedFunc()
	}
	return true
}

func (m *mockTransport) EndpointReady() bool {
	if m.readyFunc != nil {
		return m.readyFunc()
	}
	return true
}

func (m *mockTransport) SendReport(report models.KeyboardReport) error {
	m.mu.Lock()
	m.reports = append(m.reports, report)
	m.mu.Unlock()
	if m.sendFunc != nil {
		return m.sendFunc(report)
	}
	return nil
}

// presses returns the key reports that are not releases.
func (m *mockTransport) presses() []models.KeyboardReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.KeyboardReport
	for _, r := range m.reports {
		if r != models.ReleaseReport {
			out = append(out, r)
		}
	}
	return out
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func fakeClock() *clock.FakeClock {
	return clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func newTestService(transport Transport, clk clock.Clock) *Impl {
	return NewWithTransport(testLogger(), transport, clk, models.KeyboardConfig{})
}

func TestLookup(t *testing.T) {
	tests := []struct {
		r        rune
		modifier byte
		code     byte
	}{
		{'a', 0, 0x04},
		{'z', 0, 0x1D},
		{'A', models.ModLeftShift, 0x04},
		{'Z', models.ModLeftShift, 0x1D},
		{'1', 0, 0x1E},
		{'9', 0, 0x26},
		{'0', 0, 0x27},
		{'!', models.ModLeftShift, 0x1E},
		{'@', models.ModLeftShift, 0x1F},
		{')', models.ModLeftShift, 0x27},
		{' ', 0, 0x2C},
		{'-', 0, 0x2D},
		{'_', models.ModLeftShift, 0x2D},
		{'/', 0, 0x38},
		{'?', models.ModLeftShift, 0x38},
		{'~', models.ModLeftShift, 0x35},
		{'\n', 0, models.KeyEnter},
		{'\t', 0, models.KeyTab},
	}

	for _, tt := range tests {
		entry, ok := Lookup(tt.r)
		require.True(t, ok, "rune %q", tt.r)
		assert.Equal(t, tt.modifier, entry.Modifier, "rune %q", tt.r)
		assert.Equal(t, tt.code, entry.Code, "rune %q", tt.r)
	}
}

func TestLookup_Unsupported(t *testing.T) {
	for _, r := range []rune{0, 0x01, 0x1F, 'é', '€', '�', -1} {
		_, ok := Lookup(r)
		assert.False(t, ok, "rune %q", r)
	}
}

func TestTypeString_Success(t *testing.T) {
	transport := &mockTransport{}
	clk := fakeClock()
	svc := newTestService(transport, clk)

	result, err := svc.TypeString(context.Background(), "aB1", 50*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Length)
	assert.Equal(t, 3, result.Typed)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 3*(DefaultTypeHold+50*time.Millisecond), result.Delay)

	assert.Equal(t, []models.KeyboardReport{
		models.NewKeyReport(0, 0x04),
		models.ReleaseReport,
		models.NewKeyReport(models.ModLeftShift, 0x05),
		models.ReleaseReport,
		models.NewKeyReport(0, 0x1E),
		models.ReleaseReport,
	}, transport.reports)
}

func TestTypeString_SkipsUnsupportedCharacter(t *testing.T) {
	transport := &mockTransport{}
	svc := newTestService(transport, fakeClock())

	result, err := svc.TypeString(context.Background(), "pä$s", 0)

	require.NoError(t, err)
	assert.Equal(t, 4, result.Length)
	assert.Equal(t, 3, result.Typed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []models.KeyboardReport{
		models.NewKeyReport(0, 0x13),
		models.NewKeyReport(models.ModLeftShift, 0x21),
		models.NewKeyReport(0, 0x16),
	}, transport.presses())
}

func TestTypeString_NotReadyBeforeTyping(t *testing.T) {
	transport := &mockTransport{mountedFunc: func() bool { return false }}
	clk := fakeClock()
	start := clk.Now()
	svc := newTestService(transport, clk)

	result, err := svc.TypeString(context.Background(), "secret", 0)

	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.Equal(t, 0, result.Typed)
	assert.Empty(t, transport.reports)
	assert.Equal(t, DefaultReadyTimeout, clk.Since(start))
}

func TestTypeString_TimeoutMidwayLeavesPartialText(t *testing.T) {
	transport := &mockTransport{}
	transport.readyFunc = func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		// Two characters (press + release each) go through, then the endpoint stalls.
		return len(transport.reports) < 4
	}
	svc := newTestService(transport, fakeClock())

	result, err := svc.TypeString(context.Background(), "abcd", 0)

	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.Equal(t, 2, result.Typed)
	assert.Len(t, transport.presses(), 2)
}

func TestTypeString_TransportFailure(t *testing.T) {
	transport := &mockTransport{
		sendFunc: func(report models.KeyboardReport) error {
			return errors.New("write /dev/hidg0: cannot send after transport endpoint shutdown")
		},
	}
	svc := newTestService(transport, fakeClock())

	result, err := svc.TypeString(context.Background(), "ab", 0)

	assert.ErrorIs(t, err, models.ErrTransportFailure)
	assert.Equal(t, 0, result.Typed)
}

func TestPressEnter(t *testing.T) {
	transport := &mockTransport{}
	clk := fakeClock()
	svc := newTestService(transport, clk)

	require.NoError(t, svc.PressEnter(context.Background()))

	assert.Equal(t, []models.KeyboardReport{
		models.NewKeyReport(0, models.KeyEnter),
		models.ReleaseReport,
	}, transport.reports)
	assert.Equal(t, []time.Duration{DefaultPressHold}, clk.Slept())
}

func TestPressTabAndEscape(t *testing.T) {
	transport := &mockTransport{}
	svc := newTestService(transport, fakeClock())

	require.NoError(t, svc.PressTab(context.Background()))
	require.NoError(t, svc.PressEscape(context.Background()))

	assert.Equal(t, []models.KeyboardReport{
		models.NewKeyReport(0, models.KeyTab),
		models.NewKeyReport(0, models.KeyEscape),
	}, transport.presses())
}

func TestPressKey_Timeout(t *testing.T) {
	transport := &mockTransport{readyFunc: func() bool { return false }}
	clk := fakeClock()
	start := clk.Now()
	svc := newTestService(transport, clk)

	err := svc.PressKey(context.Background(), models.KeyEnter)

	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.Empty(t, transport.reports)
	assert.Equal(t, DefaultKeyReadyTimeout, clk.Since(start))
}

func TestWaitReady_BecomesReady(t *testing.T) {
	polls := 0
	transport := &mockTransport{
		mountedFunc: func() bool {
			polls++
			return polls > 10
		},
	}
	svc := newTestService(transport, fakeClock())

	assert.True(t, svc.WaitReady(context.Background(), time.Second))
	assert.Equal(t, 11, polls)
}
