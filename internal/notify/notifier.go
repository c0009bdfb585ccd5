// Package notify delivers operational alerts to webhook channels. The
// lifecycle loops raise events like settle_failed and low_treasury; the
// notifier filters them against the configured allow-list and fans out to
// every registered sender.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to its senders. Only events in the allowed set
// are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		e = strings.TrimSpace(e)
		if e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With("component", "notifier"),
	}
}

// Alert formats and dispatches one operational event. Delivery failures are
// logged, never propagated: an unreachable webhook must not fail a settlement
// pass.
func (n *Notifier) Alert(ctx context.Context, event, message string, fields map[string]string) {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.Debug("alert filtered out", "event", event)
		return
	}
	if len(n.senders) == 0 {
		return
	}

	body := message
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteString(message)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("\n%s: %s", k, fields[k]))
		}
		body = sb.String()
	}

	title := "candled: " + event
	for _, s := range n.senders {
		if err := s.Send(ctx, title, body); err != nil {
			n.logger.Error("alert delivery failed",
				"sender", s.Name(), "event", event, "error", err)
		}
	}
}
