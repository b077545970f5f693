// Package ui renders the interactive transfer flow: a small ANSI theme, the
// phase checklist, and line-oriented prompts. Machine output never passes
// through here; the envelope renderer owns that surface.
package ui

import (
	"fmt"
	"io"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

// Theme wraps strings in ANSI color codes. A disabled theme returns its
// input unchanged, which keeps piped and plain-mode output clean.
type Theme struct {
	enabled bool
}

func NewTheme(enabled bool) Theme { return Theme{enabled: enabled} }

func (t Theme) Enabled() bool { return t.enabled }

func (t Theme) wrap(code, s string) string {
	if !t.enabled || s == "" {
		return s
	}
	return code + s + ansiReset
}

func (t Theme) Accent(s string) string  { return t.wrap(ansiCyan, s) }
func (t Theme) Dim(s string) string     { return t.wrap(ansiDim, s) }
func (t Theme) Success(s string) string { return t.wrap(ansiGreen, s) }
func (t Theme) Error(s string) string   { return t.wrap(ansiRed, s) }
func (t Theme) Warn(s string) string    { return t.wrap(ansiYellow, s) }
func (t Theme) Bold(s string) string    { return t.wrap(ansiBold, s) }

// Rewind moves the cursor up n lines and clears to the end of the screen,
// so the next checklist render overwrites the previous one in place. A
// disabled theme prints nothing and renders append instead.
func (t Theme) Rewind(w io.Writer, lines int) {
	if !t.enabled || lines <= 0 {
		return
	}
	fmt.Fprintf(w, "\033[%dA\033[J", lines)
}
