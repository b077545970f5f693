package ui

import (
	"fmt"
	"strings"

	"github.com/SiphoYawe/mina-cli/internal/bridge"
	"github.com/SiphoYawe/mina-cli/internal/gateway"
)

// spinnerFrames animate the active phase glyph. FrameAt picks one from a
// monotonic tick counter.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func FrameAt(tick int) string {
	if tick < 0 {
		tick = -tick
	}
	return spinnerFrames[tick%len(spinnerFrames)]
}

var phaseLabels = map[bridge.Phase]string{
	bridge.PhaseLoading:  "Load chains and tokens",
	bridge.PhaseQuote:    "Fetch quote",
	bridge.PhaseApproval: "Approve token",
	bridge.PhaseBridge:   "Bridge funds",
	bridge.PhaseConfirm:  "Confirm on HyperEVM",
}

// StepLines returns the number of lines RenderSteps emits, for Rewind.
func StepLines() int { return len(phaseLabels) }

// RenderSteps draws the five-phase checklist, one line per phase. Completed
// and failed phases show their glyph; the active phase spins with tick and
// carries its transaction hash once known.
func RenderSteps(theme Theme, steps bridge.StepState, tick int) string {
	var b strings.Builder
	for _, ph := range steps.Phases() {
		b.WriteString("  ")
		b.WriteString(glyphFor(theme, ph.Status, tick))
		b.WriteString(" ")
		b.WriteString(styleLabel(theme, ph.Status, phaseLabels[ph.Phase]))
		if ph.TxHash != "" {
			b.WriteString(" ")
			b.WriteString(theme.Dim(ShortHash(ph.TxHash)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func glyphFor(theme Theme, status string, tick int) string {
	switch status {
	case gateway.StepStatusCompleted:
		return theme.Success("✔")
	case gateway.StepStatusFailed:
		return theme.Error("✖")
	case gateway.StepStatusActive:
		return theme.Accent(FrameAt(tick))
	default:
		return theme.Dim("◌")
	}
}

func styleLabel(theme Theme, status, label string) string {
	switch status {
	case gateway.StepStatusActive:
		return theme.Bold(label)
	case gateway.StepStatusPending:
		return theme.Dim(label)
	default:
		return label
	}
}

// ShortHash elides the middle of a transaction hash to keep checklist lines
// inside a narrow terminal.
func ShortHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:8] + "…" + hash[len(hash)-6:]
}

// FormatRoute is the one-line summary shown above the checklist, e.g.
// "1.5 USDC  arbitrum → hyperevm".
func FormatRoute(theme Theme, amount, token, from, to string) string {
	return fmt.Sprintf("%s %s  %s → %s",
		theme.Bold(amount), theme.Bold(token), theme.Accent(from), theme.Accent(to))
}
