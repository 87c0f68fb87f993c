package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/lmercier/dotatracker/internal/domain"
)

type captureSender struct {
	name string
	sent []domain.Notification
	err  error
}

func (c *captureSender) Send(_ context.Context, n domain.Notification) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureSender) Name() string { return c.name }

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func concludedNote() domain.Notification {
	return domain.Notification{
		Event:    domain.EventSeriesConcluded,
		SeriesID: "s_111",
		LeagueID: "500",
		Format:   domain.FormatBestOf3,
		TeamOne:  "Alpha",
		TeamTwo:  "Beta",
		WinsOne:  2,
		WinsTwo:  1,
		Winner:   "Alpha",
	}
}

func TestNotifyFiltersByEvent(t *testing.T) {
	sender := &captureSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{domain.EventSeriesConcluded}, quiet())
	ctx := context.Background()

	if err := n.Notify(ctx, concludedNote()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	started := concludedNote()
	started.Event = domain.EventMatchStarted
	if err := n.Notify(ctx, started); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(sender.sent) != 1 || sender.sent[0].Event != domain.EventSeriesConcluded {
		t.Errorf("expected only the allowed event, got %v", sender.sent)
	}
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &captureSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, quiet())

	if err := n.Notify(context.Background(), domain.Notification{Event: "anything"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("expected delivery with empty filter, got %v", sender.sent)
	}
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	bad := &captureSender{name: "bad", err: errors.New("webhook down")}
	good := &captureSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quiet())

	err := n.NotifyAll(context.Background(), concludedNote())
	if err == nil {
		t.Error("expected combined error from failed sender")
	}
	if len(good.sent) != 1 {
		t.Errorf("healthy sender must still deliver, got %v", good.sent)
	}
}

func TestNotifyNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, quiet())
	if err := n.NotifyAll(context.Background(), concludedNote()); err != nil {
		t.Errorf("no senders should be a no-op, got %v", err)
	}
}

func TestRenderTelegramConcluded(t *testing.T) {
	text := renderTelegram(concludedNote())
	for _, want := range []string{"*Alpha 2-1 Beta*", "(Bo3)", "Alpha take the series", "League 500"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in message:\n%s", want, text)
		}
	}
}

func TestRenderTelegramMatchStarted(t *testing.T) {
	n := domain.Notification{
		Event:      domain.EventMatchStarted,
		SeriesID:   "s_111",
		Format:     domain.FormatBestOf3,
		TeamOne:    "Alpha",
		TeamTwo:    "Beta",
		GameNumber: 2,
		WinsOne:    1,
	}
	text := renderTelegram(n)
	for _, want := range []string{"*Alpha 1-0 Beta*", "Game 2 is live"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in message:\n%s", want, text)
		}
	}
}

func TestRenderTelegramUnnamedTeams(t *testing.T) {
	n := concludedNote()
	n.TeamTwo = ""
	if text := renderTelegram(n); !strings.Contains(text, "TBD") {
		t.Errorf("expected TBD placeholder, got:\n%s", text)
	}
}

func TestRenderDiscordEmbed(t *testing.T) {
	embed := renderDiscord(concludedNote())
	if embed.Title != "Alpha 2-1 Beta (Bo3)" {
		t.Errorf("unexpected title %q", embed.Title)
	}
	if embed.Color != colorConcluded {
		t.Errorf("expected concluded color, got %#x", embed.Color)
	}
	if !strings.Contains(embed.Description, "Alpha take the series") {
		t.Errorf("unexpected description %q", embed.Description)
	}
	var fields []string
	for _, f := range embed.Fields {
		fields = append(fields, f.Name+"="+f.Value)
	}
	joined := strings.Join(fields, ",")
	if !strings.Contains(joined, "Series=s_111") || !strings.Contains(joined, "League=500") {
		t.Errorf("expected series and league fields, got %v", fields)
	}
}

func TestRenderDiscordMatchStarted(t *testing.T) {
	embed := renderDiscord(domain.Notification{
		Event:      domain.EventMatchStarted,
		SeriesID:   "s_111",
		MatchID:    "222",
		Format:     domain.FormatBestOf3,
		TeamOne:    "Alpha",
		TeamTwo:    "Beta",
		GameNumber: 2,
	})
	if embed.Color != colorLive {
		t.Errorf("expected live color, got %#x", embed.Color)
	}
	if embed.Description != "Game 2 is live" {
		t.Errorf("unexpected description %q", embed.Description)
	}
	found := false
	for _, f := range embed.Fields {
		if f.Name == "Match" && f.Value == "222" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected match field, got %v", embed.Fields)
	}
}
