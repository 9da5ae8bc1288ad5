package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mariobeauty/salon-scheduling/internal/events"
	"github.com/mariobeauty/salon-scheduling/pkg/logging"
)

// Notifier is an outbox delivery handler that emails the operator a short
// notice for booking events. Content is deliberately fixed-form; templating
// and client-facing messaging live outside this engine.
type Notifier struct {
	sender   EmailSender
	operator string
	logger   *logging.Logger
}

// NewNotifier creates a notifier. A nil sender or empty operator address
// makes Handle a no-op so the deliverer still marks events delivered.
func NewNotifier(sender EmailSender, operatorEmail string, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{sender: sender, operator: operatorEmail, logger: logger.Component("notify")}
}

// Handle implements events.DeliveryHandler.
func (n *Notifier) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if n.sender == nil || n.operator == "" {
		return nil
	}
	var env events.Envelope
	if err := json.Unmarshal(entry.Payload, &env); err != nil {
		// malformed payloads would redeliver forever; log and accept
		n.logger.Error("dropping malformed event payload", "error", err, "event_id", entry.ID)
		return nil
	}

	subject, body := composeNotice(env)
	if subject == "" {
		return nil
	}
	return n.sender.Send(ctx, EmailMessage{
		To:      n.operator,
		Subject: subject,
		Body:    body,
	})
}

func composeNotice(env events.Envelope) (subject, body string) {
	appt := env.Appointment
	line := fmt.Sprintf("Appointment %s for client %s with staff %s, %s to %s (version %d).\nEvent %s.",
		appt.ID, appt.ClientID, appt.StaffID,
		appt.StartsAt.Format("Mon 2 Jan 15:04"), appt.EndsAt.Format("15:04"),
		appt.Version, env.ID)

	switch env.Type {
	case events.TypeBookingCreated:
		return "New booking", line
	case events.TypeBookingStateChanged:
		return fmt.Sprintf("Booking %s", env.To),
			fmt.Sprintf("Status changed from %s to %s.\n%s", env.From, env.To, line)
	case events.TypeBookingRescheduled:
		return "Booking rescheduled", line
	}
	return "", ""
}
