package app

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"kv-go/internal/kv"
)

// consolePrompter reads secrets without echo from a terminal, or line by line
// when input is piped. Prompts go to out so stdout stays clean for command output.
type consolePrompter struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

var _ kv.Prompter = (*consolePrompter)(nil)

func newConsolePrompter(in io.Reader, out io.Writer) *consolePrompter {
	return &consolePrompter{in: in, out: out}
}

func (p *consolePrompter) Prompt(message string) (string, error) {
	fmt.Fprint(p.out, message+" ")

	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("reading from terminal: %w", err)
		}
		return string(secret), nil
	}

	if p.reader == nil {
		p.reader = bufio.NewReader(p.in)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading from input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
