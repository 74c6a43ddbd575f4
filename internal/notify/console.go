// Package notify console effectors render intents on a terminal host.
package notify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/Rolii95/neurotype-planner/internal/models"
)

// Neurotype adaptation hints the console effectors understand. Unknown keys
// are ignored.
const (
	// HintReducedStimulation caps any effect at subtle strength.
	HintReducedStimulation = "reduced_stimulation"
	// HintHighContrast switches the visual palette to high-contrast colors.
	HintHighContrast = "high_contrast"
)

// effectiveIntensity applies per-user adaptation hints to the configured
// intensity.
func effectiveIntensity(intensity models.NotificationIntensity, hints map[string]string) models.NotificationIntensity {
	if hints[HintReducedStimulation] == "true" {
		return models.IntensitySubtle
	}
	return intensity
}

// ConsoleVisual renders visual intents as colored terminal banners whose
// strength scales with intensity.
type ConsoleVisual struct {
	out io.Writer
}

// NewConsoleVisual creates a visual effector writing banners to out.
func NewConsoleVisual(out io.Writer) *ConsoleVisual {
	return &ConsoleVisual{out: out}
}

func (v *ConsoleVisual) banner(intent Intent) string {
	switch intent {
	case IntentWarning:
		return "time running out"
	case IntentStepComplete:
		return "step complete"
	case IntentExecutionComplete:
		return "board complete"
	default:
		return string(intent)
	}
}

// Render writes an intensity-scaled banner. It honors the high-contrast and
// reduced-stimulation hints.
func (v *ConsoleVisual) Render(ctx context.Context, intent Intent, intensity models.NotificationIntensity, hints map[string]string) error {
	text := v.banner(intent)

	var c *color.Color
	switch intent {
	case IntentWarning:
		c = color.New(color.FgYellow)
	case IntentExecutionComplete:
		c = color.New(color.FgGreen)
	default:
		c = color.New(color.FgCyan)
	}
	if hints[HintHighContrast] == "true" {
		c = color.New(color.FgWhite, color.BgBlack)
	}

	switch effectiveIntensity(intensity, hints) {
	case models.IntensitySubtle:
		// brief: a single plain line
		_, err := fmt.Fprintf(v.out, "· %s\n", text)
		return err
	case models.IntensityProminent:
		// sustained: bold framed banner
		c = c.Add(color.Bold)
		frame := strings.Repeat("=", len(text)+4)
		if _, err := c.Fprintln(v.out, frame); err != nil {
			return err
		}
		if _, err := c.Fprintf(v.out, "| %s |\n", strings.ToUpper(text)); err != nil {
			return err
		}
		_, err := c.Fprintln(v.out, frame)
		return err
	default:
		_, err := c.Fprintf(v.out, ">> %s\n", text)
		return err
	}
}

// TerminalBell renders audio intents as BEL characters; most terminals map
// them to the system alert sound. Tone count scales with intensity.
type TerminalBell struct {
	out io.Writer
}

// NewTerminalBell creates an audio effector writing to out.
func NewTerminalBell(out io.Writer) *TerminalBell {
	return &TerminalBell{out: out}
}

// Render emits one to three bells depending on intensity.
func (b *TerminalBell) Render(ctx context.Context, intent Intent, intensity models.NotificationIntensity, hints map[string]string) error {
	bells := 2
	switch effectiveIntensity(intensity, hints) {
	case models.IntensitySubtle:
		bells = 1
	case models.IntensityProminent:
		bells = 3
	}
	_, err := b.out.Write([]byte(strings.Repeat("\a", bells)))
	return err
}

// Noop is an effector that does nothing and always succeeds. Hosts without a
// haptic capability register it for the vibration channel.
type Noop struct{}

// Render is a no-op.
func (Noop) Render(ctx context.Context, intent Intent, intensity models.NotificationIntensity, hints map[string]string) error {
	return nil
}
