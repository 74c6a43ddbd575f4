package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Rolii95/neurotype-planner/internal/models"
)

// MessageSender delivers a short text to a recipient. Both the Twilio SMS
// client and the WhatsApp client satisfy it.
type MessageSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Messenger renders intents as short reminder texts delivered through a
// MessageSender, so a step alert can reach the user away from the screen.
// It is registered as a dispatcher mirror.
type Messenger struct {
	sender MessageSender
	to     string
}

// NewMessenger creates a messenger effector delivering to the given recipient.
func NewMessenger(sender MessageSender, to string) *Messenger {
	slog.Debug("Creating messenger effector", "to_set", to != "")
	return &Messenger{sender: sender, to: to}
}

// body composes the reminder text for an intent. Prominent intensity adds an
// attention prefix; subtle intensity drops step-complete chatter entirely.
func (m *Messenger) body(intent Intent, intensity models.NotificationIntensity) string {
	var text string
	switch intent {
	case IntentWarning:
		text = "Heads up: the current step is almost out of time."
	case IntentStepComplete:
		if intensity == models.IntensitySubtle {
			return ""
		}
		text = "Step done. On to the next one."
	case IntentExecutionComplete:
		text = "Board complete. Nice work!"
	default:
		text = fmt.Sprintf("Board update: %s", intent)
	}
	if intensity == models.IntensityProminent {
		text = "⚠️ " + text
	}
	return text
}

// Render sends the reminder text. An empty recipient or a suppressed body is
// a successful no-op; delivery failures surface as ordinary (soft) errors.
func (m *Messenger) Render(ctx context.Context, intent Intent, intensity models.NotificationIntensity, hints map[string]string) error {
	if m.to == "" {
		return nil
	}
	body := m.body(intent, effectiveIntensity(intensity, hints))
	if body == "" {
		return nil
	}
	if err := m.sender.SendMessage(ctx, m.to, body); err != nil {
		return fmt.Errorf("messenger delivery failed: %w", err)
	}
	slog.Debug("Messenger reminder sent", "intent", intent)
	return nil
}
