// Package notify sends a best-effort email when an event is
// classified dead. It never blocks or retries the state transition
// that triggered it: the processor fires the notification and moves
// on regardless of whether it succeeds.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender logs instead of sending — used in ENV=local and whenever
// no Resend API key is configured.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.logger.Info("dead event notification (local dev)", "to", to, "subject", subject, "body", body)
	return nil
}

// ResendSender sends via the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}
	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// NewSender returns a LogSender for ENV=local or when apiKey is
// empty, a ResendSender otherwise.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" || apiKey == "" {
		return &LogSender{logger: logger}
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// Notifier wraps a Sender with the fixed recipient/from address and
// the fire-and-forget contract the processor depends on: a panic in
// the send path never reaches the caller, and failures are only
// logged, never surfaced as an error the processor has to handle.
type Notifier struct {
	sender  Sender
	to      string
	logger  *slog.Logger
	enabled bool
}

func New(sender Sender, to string, enabled bool, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, to: to, enabled: enabled, logger: logger.With("component", "notify")}
}

// DeadEvent fires a notification for a terminally-dead event. Call it
// in a goroutine from the processor; it does not block the caller on
// network I/O beyond handing off to the sender.
func (n *Notifier) DeadEvent(ctx context.Context, class, triggerOrID string, eventID string, reason string) {
	if !n.enabled || n.to == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("dead event notification panicked", "event_id", eventID, "panic", r)
		}
	}()
	subject := fmt.Sprintf("triggerd: event %s marked dead", eventID)
	body := fmt.Sprintf(
		"<p>Event <code>%s</code> (%s, %s) was marked <b>dead</b>.</p><p>%s</p>",
		eventID, class, triggerOrID, reason,
	)
	if err := n.sender.Send(ctx, n.to, subject, body); err != nil {
		n.logger.Warn("dead event notification failed", "event_id", eventID, "error", err)
	}
}
