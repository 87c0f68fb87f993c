package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lmercier/dotatracker/internal/domain"
)

// Embed colors per event type (Discord decimal RGB).
const (
	colorLive      = 0x3498db // blue
	colorConcluded = 0x2ecc71 // green
)

// DiscordSender delivers tracker notifications via a Discord webhook,
// rendered as embeds with series fields.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL. It uses
// a default HTTP client with a 10-second timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Send posts the notification to the Discord webhook as a single embed.
func (d *DiscordSender) Send(ctx context.Context, n domain.Notification) error {
	payload := map[string]any{
		"embeds": []discordEmbed{renderDiscord(n)},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// renderDiscord maps the notification onto a webhook embed. The scoreline is
// the title; series and game context land in inline fields.
func renderDiscord(n domain.Notification) discordEmbed {
	embed := discordEmbed{
		Title: fmt.Sprintf("%s (%s)", scoreline(n), formatLabel(n.Format)),
		Color: colorLive,
		Fields: []discordField{
			{Name: "Series", Value: n.SeriesID, Inline: true},
		},
	}

	switch n.Event {
	case domain.EventMatchStarted:
		embed.Description = fmt.Sprintf("Game %d is live", n.GameNumber)
		if n.MatchID != "" {
			embed.Fields = append(embed.Fields,
				discordField{Name: "Match", Value: n.MatchID, Inline: true})
		}
	case domain.EventSeriesConcluded:
		embed.Color = colorConcluded
		embed.Description = fmt.Sprintf("%s take the series", teamOrTBD(n.Winner))
	default:
		embed.Description = n.Event
	}

	if n.LeagueID != "" {
		embed.Fields = append(embed.Fields,
			discordField{Name: "League", Value: n.LeagueID, Inline: true})
	}
	return embed
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
