package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fgeck/tapwake/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []models.FeedbackEvent
}

func (r *recordingSink) Notify(_ context.Context, event models.FeedbackEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	sink.Notify(context.Background(), models.FeedbackEvent{
		Kind:    models.FeedbackWakeFailed,
		Host:    "192.168.1.20",
		Elapsed: 33 * time.Second,
		Detail:  "unreachable",
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "wake_failed", entry["feedback"])
	assert.Equal(t, "192.168.1.20", entry["host"])
	assert.Equal(t, "unreachable", entry["detail"])
	assert.Equal(t, "host did not wake", entry["message"])
}

func TestLogSink_InfoForSuccess(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	sink.Notify(context.Background(), models.FeedbackEvent{Kind: models.FeedbackLoginCompleted})

	assert.Contains(t, buf.String(), `"level":"info"`)
	assert.NotContains(t, buf.String(), "host")
}

func TestMulti(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	multi := Multi{a, nil, b}

	multi.Notify(context.Background(), models.FeedbackEvent{Kind: models.FeedbackRejected})

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestIsFailure(t *testing.T) {
	assert.True(t, IsFailure(models.FeedbackReadFailed))
	assert.True(t, IsFailure(models.FeedbackRejected))
	assert.True(t, IsFailure(models.FeedbackWakeFailed))
	assert.True(t, IsFailure(models.FeedbackLoginFailed))
	assert.False(t, IsFailure(models.FeedbackAccepted))
	assert.False(t, IsFailure(models.FeedbackHostOnline))
	assert.False(t, IsFailure(models.FeedbackLoginCompleted))
	assert.False(t, strings.Contains(describe(models.FeedbackReady), "_"))
}
