package credential

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// Prompter reads operator input.
type Prompter interface {
	// Secret reads one line without echo.
	Secret(prompt string) (string, error)
	// Line reads one line with echo.
	Line(prompt string) (string, error)
}

// ErrAborted is returned when the operator aborts a prompt (Ctrl-C) or input ends.
var ErrAborted = errors.New("input aborted")

// TerminalPrompter prompts on out (stderr) so stdout stays clean for output.
// Secrets are read with echo off when in is a terminal. Questions use liner
// line editing only when stdout is a terminal too; otherwise, and for pipes,
// they are read as plain lines.
type TerminalPrompter struct {
	in     *os.File
	out    io.Writer
	inTTY  bool
	outTTY bool
	reader *bufio.Reader
}

// NewTerminalPrompter prompts on out and reads from in.
func NewTerminalPrompter(in *os.File, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{
		in:     in,
		out:    out,
		inTTY:  term.IsTerminal(int(in.Fd())),
		outTTY: term.IsTerminal(int(os.Stdout.Fd())),
		reader: bufio.NewReader(in),
	}
}

func (p *TerminalPrompter) Secret(prompt string) (string, error) {
	if !p.inTTY {
		return p.readLine(prompt)
	}
	_, _ = fmt.Fprint(p.out, prompt)
	b, err := term.ReadPassword(int(p.in.Fd()))
	_, _ = fmt.Fprintln(p.out)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", ErrAborted
		}
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func (p *TerminalPrompter) Line(prompt string) (string, error) {
	if !p.inTTY || !p.outTTY {
		s, err := p.readLine(prompt)
		return strings.TrimSpace(s), err
	}
	line := liner.NewLiner()
	defer func() { _ = line.Close() }()
	line.SetCtrlCAborts(true)
	s, err := line.Prompt(prompt)
	return strings.TrimSpace(s), linerErr(err)
}

func (p *TerminalPrompter) readLine(prompt string) (string, error) {
	_, _ = fmt.Fprint(p.out, prompt)
	s, err := p.reader.ReadString('\n')
	if err != nil && (s == "" || !errors.Is(err, io.EOF)) {
		if errors.Is(err, io.EOF) {
			return "", ErrAborted
		}
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(s, "\r\n"), nil
}

func linerErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
		return ErrAborted
	}
	return fmt.Errorf("read input: %w", err)
}
