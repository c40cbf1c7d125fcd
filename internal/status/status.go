// Package status defines the diagnostics sink that providers and the pass
// driver report to.
//
// The sink is always constructed by the caller and passed down; providers
// never create one. Backends:
//   - Terminal: human output with optional color, supersedes errs.Dump
//   - Logger: forwards into log/slog
//   - Collector: keeps messages in memory (JSON output, tests)
//   - Discard: drops everything
package status

import (
	"fmt"
	"sync"
)

// Kind is the severity of a status message.
type Kind int

const (
	KindNote Kind = iota
	KindWarning
	KindError
)

// String returns the lowercase severity name.
func (k Kind) String() string {
	switch k {
	case KindNote:
		return "note"
	case KindWarning:
		return "warning"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Backend accepts severity-tagged messages. err is optional and, when set,
// is rendered with its cause chain.
type Backend interface {
	Report(kind Kind, msg string, err error)
}

// Notef reports a note.
func Notef(b Backend, format string, args ...any) {
	b.Report(KindNote, fmt.Sprintf(format, args...), nil)
}

// Warnf reports a warning.
func Warnf(b Backend, format string, args ...any) {
	b.Report(KindWarning, fmt.Sprintf(format, args...), nil)
}

// Errorf reports an error message with an optional cause.
func Errorf(b Backend, err error, format string, args ...any) {
	b.Report(KindError, fmt.Sprintf(format, args...), err)
}

type discard struct{}

func (discard) Report(Kind, string, error) {}

// Discard is a Backend that drops every message.
var Discard Backend = discard{}

// Message is one report captured by a Collector.
type Message struct {
	Kind  Kind   `json:"-"`
	Level string `json:"level"`
	Text  string `json:"text"`
	Cause string `json:"cause,omitempty"`
}

// Collector is a Backend that keeps every message in memory.
//
// Thread-safety: safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	messages []Message
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Report implements Backend.
func (c *Collector) Report(kind Kind, msg string, err error) {
	m := Message{Kind: kind, Level: kind.String(), Text: msg}
	if err != nil {
		m.Cause = err.Error()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
}

// Messages returns a copy of the collected messages in report order.
func (c *Collector) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Count returns how many messages of the given kind were reported.
func (c *Collector) Count(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, m := range c.messages {
		if m.Kind == kind {
			n++
		}
	}
	return n
}
