package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/aictl/itaccess/internal/tools"
)

// PlainIO implements IO on a plain line-oriented terminal.
type PlainIO struct {
	in          *bufio.Scanner
	out         io.Writer
	errOut      io.Writer
	interactive bool
	tokens      int
}

// NewPlainIO creates a PlainIO on stdin/stdout/stderr.
func NewPlainIO() *PlainIO {
	return NewPlainIOWith(os.Stdin, os.Stdout, os.Stderr)
}

// NewPlainIOWith creates a PlainIO on the given streams. Confirmation
// prompts are only shown when in is a terminal; otherwise every mutating
// call is declined.
func NewPlainIOWith(in io.Reader, out, errOut io.Writer) *PlainIO {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return &PlainIO{in: s, out: out, errOut: errOut, interactive: interactive}
}

func (p *PlainIO) ReadInput() (string, error) {
	fmt.Fprint(p.out, "\n> ")
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func (p *PlainIO) UserMessage(_ string) {
	// The user already sees what they typed.
}

func (p *PlainIO) ThinkingStart() {
	fmt.Fprintln(p.out)
}

func (p *PlainIO) TextDelta(delta string) {
	fmt.Fprint(p.out, delta)
}

func (p *PlainIO) TextDone(_ string) {}

func (p *PlainIO) ToolStart(id, name, params string) {
	marker := "Executing"
	if strings.HasPrefix(id, "verify_") {
		marker = "Verifying"
	}
	fmt.Fprintf(p.out, "\n%s\n  %s %s %s\n", strings.Repeat("-", 30), marker, name, truncate(params, 80))
}

func (p *PlainIO) ToolDone(_, _, result string, isErr bool) {
	if isErr {
		fmt.Fprintf(p.out, "    Error: %s\n", truncate(result, 120))
		return
	}
	fmt.Fprintf(p.out, "    Result: %s\n", truncate(strings.ReplaceAll(result, "\n", " "), 120))
}

func (p *PlainIO) Confirm(name, params string, kind tools.Kind) bool {
	if !p.interactive {
		fmt.Fprintf(p.errOut, "declining %s: confirmation needs an interactive terminal\n", name)
		return false
	}
	fmt.Fprintf(p.out, "\n--- %s tool: %s ---\n%s\n[y/N] ", kind, name, truncate(params, 200))
	if !p.in.Scan() {
		return false
	}
	return strings.ToLower(strings.TrimSpace(p.in.Text())) == "y"
}

func (p *PlainIO) SystemMessage(text string) {
	fmt.Fprintln(p.out, text)
}

func (p *PlainIO) Error(msg string) {
	fmt.Fprintf(p.errOut, "error: %s\n", msg)
}

func (p *PlainIO) SetTokens(n int) {
	p.tokens = n
}

// truncate shortens s to maxLen bytes, appending "..." if cut.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
