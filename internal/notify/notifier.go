// Package notify pushes tracker events to operator channels. Each sender
// renders the series context in whatever shape its medium wants (Telegram
// markdown, Discord embeds); the notifier filters by event type and fans
// out, so one failing channel never blocks the others.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lmercier/dotatracker/internal/domain"
)

// Sender is a single delivery channel for tracker notifications.
type Sender interface {
	// Send delivers the notification, rendering it for the channel.
	Send(ctx context.Context, n domain.Notification) error
	// Name identifies the channel in logs and combined errors.
	Name() string
}

// Notifier fans tracker notifications out to its senders. It holds the set
// of allowed event types; Notify drops events outside the set, NotifyAll
// bypasses the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only
// events whose type appears in events pass the filter; an empty list allows
// everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the notification to all senders if its event type passes
// the filter.
func (n *Notifier) Notify(ctx context.Context, note domain.Notification) error {
	if len(n.events) > 0 && !n.events[note.Event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", note.Event),
			slog.String("series_id", note.SeriesID),
		)
		return nil
	}
	return n.dispatch(ctx, note)
}

// NotifyAll delivers the notification to all senders regardless of event
// type.
func (n *Notifier) NotifyAll(ctx context.Context, note domain.Notification) error {
	return n.dispatch(ctx, note)
}

// dispatch sends to every channel, collecting failures into one combined
// error so a dead webhook does not hide a healthy bot.
func (n *Notifier) dispatch(ctx context.Context, note domain.Notification) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, note); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", note.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("event", note.Event),
				slog.String("series_id", note.SeriesID),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// scoreline renders the matchup with the current series score,
// e.g. "Alpha 2-1 Beta".
func scoreline(n domain.Notification) string {
	return fmt.Sprintf("%s %d-%d %s", teamOrTBD(n.TeamOne), n.WinsOne, n.WinsTwo, teamOrTBD(n.TeamTwo))
}

// formatLabel renders the best-of format, e.g. "Bo3".
func formatLabel(f domain.SeriesFormat) string {
	return fmt.Sprintf("Bo%d", f.MaxGames())
}

// teamOrTBD substitutes a placeholder for teams the feed has not named yet.
func teamOrTBD(name string) string {
	if name == "" {
		return "TBD"
	}
	return name
}
