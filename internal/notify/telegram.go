package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lmercier/dotatracker/internal/domain"
)

// TelegramSender delivers tracker notifications via the Telegram Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID. It uses a default HTTP client with a 10-second timeout.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send renders the notification as Telegram markdown and posts it to the
// configured chat via the sendMessage API.
func (t *TelegramSender) Send(ctx context.Context, n domain.Notification) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       renderTelegram(n),
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// renderTelegram builds the chat message: a bold scoreline headline plus
// event-specific detail lines.
func renderTelegram(n domain.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* (%s)\n", scoreline(n), formatLabel(n.Format))

	switch n.Event {
	case domain.EventMatchStarted:
		fmt.Fprintf(&b, "Game %d is live", n.GameNumber)
	case domain.EventSeriesConcluded:
		fmt.Fprintf(&b, "%s take the series", teamOrTBD(n.Winner))
	default:
		b.WriteString(n.Event)
	}

	if n.LeagueID != "" {
		fmt.Fprintf(&b, "\nLeague %s", n.LeagueID)
	}
	return b.String()
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
