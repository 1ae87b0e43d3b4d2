package testutil

import (
	"fmt"
	"strings"
	"sync"
)

// StubPrompter answers prompts from a fixed list and records every message shown.
type StubPrompter struct {
	Answers  []string
	Messages []string
}

func NewStubPrompter(answers ...string) *StubPrompter {
	return &StubPrompter{Answers: answers}
}

func (p *StubPrompter) Prompt(message string) (string, error) {
	p.Messages = append(p.Messages, message)
	if len(p.Answers) == 0 {
		return "", fmt.Errorf("unexpected prompt: %s", message)
	}
	answer := p.Answers[0]
	p.Answers = p.Answers[1:]
	return answer, nil
}

// StubPasswords generates a fixed password and scores passwords by length:
// anything shorter than 12 characters rates 1, longer ones 4.
type StubPasswords struct {
	Password string
}

func (p StubPasswords) Generate() (string, error) {
	if p.Password == "" {
		return "generated-Passw0rd-for-tests", nil
	}
	return p.Password, nil
}

func (StubPasswords) Score(password string) int {
	if len(password) < 12 {
		return 1
	}
	return 4
}

// LogEntry is one message captured by RecordingLogger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []any
}

// RecordingLogger keeps every log call so tests can assert on warnings.
type RecordingLogger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

func (l *RecordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *RecordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }
func (l *RecordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *RecordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *RecordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

// Messages returns the messages logged at level, in order.
func (l *RecordingLogger) Messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for _, e := range l.Entries {
		if strings.EqualFold(e.Level, level) {
			out = append(out, e.Msg)
		}
	}
	return out
}
