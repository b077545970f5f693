package ui

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
)

// Prompter asks line-oriented questions on the interactive streams. One
// buffered reader lives across questions so type-ahead is not lost.
type Prompter struct {
	in    *bufio.Reader
	out   io.Writer
	theme Theme
}

func NewPrompter(in io.Reader, out io.Writer, theme Theme) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out, theme: theme}
}

// Reader exposes the shared buffered reader so one-off prompts outside the
// Prompter (key entry in particular) do not drop buffered input.
func (p *Prompter) Reader() io.Reader { return p.in }

// Ask prints the label and reads one trimmed line. A final line without a
// trailing newline still counts as an answer.
func (p *Prompter) Ask(label string) (string, error) {
	fmt.Fprintf(p.out, "%s ", p.theme.Bold(label))
	line, err := p.in.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", clierr.Wrap(clierr.CodeUsage, "read input", err)
	}
	return strings.TrimSpace(line), nil
}

// AskDefault returns fallback when the user just presses enter.
func (p *Prompter) AskDefault(label, fallback string) (string, error) {
	answer, err := p.Ask(fmt.Sprintf("%s %s", label, p.theme.Dim("["+fallback+"]")))
	if err != nil {
		return "", err
	}
	if answer == "" {
		return fallback, nil
	}
	return answer, nil
}

// Confirm asks a yes/no question. Enter means yes; anything that is not a
// recognizable yes is no.
func (p *Prompter) Confirm(label string) (bool, error) {
	answer, err := p.Ask(label + " [Y/n]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Choose prints a numbered option list and reads one answer. When the user
// typed a list number it returns the zero-based index; otherwise it returns
// -1 and the raw answer for the caller to match itself.
func (p *Prompter) Choose(label string, options []string) (int, string, error) {
	for i, opt := range options {
		fmt.Fprintf(p.out, "  %s %s\n", p.theme.Dim(fmt.Sprintf("%d.", i+1)), opt)
	}
	answer, err := p.Ask(label)
	if err != nil {
		return -1, "", err
	}
	if idx, convErr := strconv.Atoi(answer); convErr == nil && idx >= 1 && idx <= len(options) {
		return idx - 1, answer, nil
	}
	return -1, answer, nil
}
