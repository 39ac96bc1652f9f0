// Package telegram sends tap status messages through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fgeck/tapwake/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for Telegram notification operations.
type Service interface {
	SendNotification(ctx context.Context, cfg models.TelegramConfig, event models.FeedbackEvent) (*models.TelegramResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
}

// New creates a new Telegram service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		baseURL: "https://api.telegram.org",
	}
}

// NewWithClient creates a new Telegram service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
	}
}

// sendMessageRequest is the request body for Telegram sendMessage API.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendNotification sends a tap status message via Telegram.
func (s *Impl) SendNotification(ctx context.Context, cfg models.TelegramConfig, event models.FeedbackEvent) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}

	s.logger.Info().
		Str("chat_id", cfg.ChatID).
		Str("feedback", string(event.Kind)).
		Msg("sending Telegram notification")

	text := formatMessage(event)

	// Build request
	reqBody := sendMessageRequest{
		ChatID:    cfg.ChatID,
		Text:      text,
		ParseMode: "HTML",
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal request: %w", err)
		return result, nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		result.Error = fmt.Errorf("failed to create request: %w", err)
		return result, nil
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("failed to send request: %w", err)
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("telegram API returned status %d", resp.StatusCode)
		return result, nil
	}

	result.MessageSent = true
	s.logger.Info().Msg("Telegram notification sent successfully")

	return result, nil
}

func formatMessage(event models.FeedbackEvent) string {
	var b bytes.Buffer

	b.WriteString(headline(event.Kind))
	b.WriteString("\n\n")

	if event.Host != "" {
		b.WriteString(fmt.Sprintf("🖥 <b>Host:</b> %s\n", escapeHTML(event.Host)))
	}
	if !event.Time.IsZero() {
		b.WriteString(fmt.Sprintf("⏰ <b>Time:</b> %s\n", event.Time.Format("2006-01-02 15:04:05")))
	}
	if event.Elapsed > 0 {
		b.WriteString(fmt.Sprintf("⏱ <b>Elapsed:</b> %s\n", event.Elapsed.Round(100*time.Millisecond)))
	}
	if event.Detail != "" {
		b.WriteString(fmt.Sprintf("\n<code>%s</code>\n", escapeHTML(event.Detail)))
	}

	return b.String()
}

func headline(kind models.FeedbackKind) string {
	switch kind {
	case models.FeedbackReady:
		return "🟢 <b>tapwake ready</b>"
	case models.FeedbackReadFailed:
		return "⚪ <b>No card read</b>"
	case models.FeedbackRejected:
		return "⛔ <b>Tag rejected</b>"
	case models.FeedbackAccepted:
		return "🔑 <b>Tag accepted</b>"
	case models.FeedbackHostOnline:
		return "💻 <b>Host online</b>"
	case models.FeedbackWakeFailed:
		return "❌ <b>Host did not wake</b>"
	case models.FeedbackLoginCompleted:
		return "✅ <b>Login completed</b>"
	case models.FeedbackLoginFailed:
		return "❌ <b>Login failed</b>"
	default:
		return fmt.Sprintf("<b>%s</b>", escapeHTML(string(kind)))
	}
}

// escapeHTML escapes HTML special characters.
func escapeHTML(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
