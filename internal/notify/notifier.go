// Package notify fans engine events out to operator chat channels. Events can
// be filtered by name so operators receive only the alerts they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Event names accepted by the notify.events filter.
const (
	EventFatal     = "fatal"
	EventProfit    = "profit"
	EventExhausted = "exhausted"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender. Notify honours the event filter;
// NotifyAll bypasses it.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends to every sender if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends to every sender regardless of the filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// CycleCompleted reports a supervised cycle as a profit or an exhausted event.
func (n *Notifier) CycleCompleted(ctx context.Context, rec domain.CycleRecord) error {
	legs := fmt.Sprintf("buy %s %g @ %g (filled %g)\nsell %s %g @ %g (filled %g)",
		rec.Buy.Broker, rec.Buy.Size, rec.Buy.Price, rec.Buy.FilledSize,
		rec.Sell.Broker, rec.Sell.Size, rec.Sell.Price, rec.Sell.FilledSize,
	)
	if rec.Outcome == domain.CycleFilled {
		return n.Notify(ctx, EventProfit, "Arbitrage filled",
			fmt.Sprintf("profit %g after %d polls\n%s", rec.RealizedProfit, rec.Attempts, legs))
	}
	return n.Notify(ctx, EventExhausted, "Arbitrage legs unfilled",
		fmt.Sprintf("cancel requested after %d polls, check positions\n%s", rec.Attempts, legs))
}

// Fatal reports the failure that stopped the engine.
func (n *Notifier) Fatal(ctx context.Context, err error) error {
	return n.Notify(ctx, EventFatal, "Arbitrage engine stopped", err.Error())
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
