//go:build e2e

package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fgeck/tapwake/internal/models"
	"github.com/fgeck/tapwake/internal/services/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTelegramConfig(t *testing.T) models.TelegramConfig {
	t.Helper()

	botToken := os.Getenv("TEST_TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		t.Skip("TEST_TELEGRAM_BOT_TOKEN not set")
	}

	chatID := os.Getenv("TEST_TELEGRAM_CHAT_ID")
	if chatID == "" {
		t.Skip("TEST_TELEGRAM_CHAT_ID not set")
	}

	return models.TelegramConfig{
		BotToken: botToken,
		ChatID:   chatID,
	}
}

func TestTelegramLoginCompleted_E2E(t *testing.T) {
	cfg := getTelegramConfig(t)

	svc := telegram.New(testLogger())

	result, err := svc.SendNotification(context.Background(), cfg, models.FeedbackEvent{
		Kind:    models.FeedbackLoginCompleted,
		Host:    "e2e-test-host",
		Time:    time.Now(),
		Elapsed: 14*time.Second + 300*time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Nil(t, result.Error)
}

func TestTelegramWakeFailed_E2E(t *testing.T) {
	cfg := getTelegramConfig(t)

	svc := telegram.New(testLogger())

	result, err := svc.SendNotification(context.Background(), cfg, models.FeedbackEvent{
		Kind:    models.FeedbackWakeFailed,
		Host:    "e2e-test-host",
		Time:    time.Now(),
		Elapsed: 34 * time.Second,
		Detail:  "host did not answer on 3389, 135, 445",
	})

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
}

func TestTelegramInvalidToken_E2E(t *testing.T) {
	if os.Getenv("TEST_TELEGRAM_BOT_TOKEN") == "" {
		t.Skip("TEST_TELEGRAM_BOT_TOKEN not set")
	}

	svc := telegram.New(testLogger())

	result, err := svc.SendNotification(context.Background(), models.TelegramConfig{
		BotToken: "invalid-token",
		ChatID:   "123456789",
	}, models.FeedbackEvent{Kind: models.FeedbackLoginFailed, Time: time.Now()})

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
}
