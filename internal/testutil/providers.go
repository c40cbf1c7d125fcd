package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
)

// StubProvider answers from fixed tables and records every call it gets.
//
// Lookup order per name: Errors (Failed), then Files / Formats (Success),
// otherwise NotAvailable. Outputs are captured in Written when Writable.
type StubProvider struct {
	Label    string
	Files    map[string]string
	Formats  map[string]string
	Errors   map[string]error
	Primary  string
	Writable bool
	Stdout   *bytes.Buffer

	mu      sync.Mutex
	Calls   []string
	Written map[string]*bytes.Buffer
}

// Describe implements provider.Describer.
func (s *StubProvider) Describe() string {
	if s.Label == "" {
		return "stub"
	}
	return s.Label
}

func (s *StubProvider) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, call)
}

func (s *StubProvider) input(name, content string) *provider.InputHandle {
	return provider.NewInputHandle(name, strings.NewReader(content), provider.WithOrigin(s.Describe()))
}

// OutputOpenName implements provider.Provider.
func (s *StubProvider) OutputOpenName(name string) provider.OpenResult[*provider.OutputHandle] {
	s.record("output:" + name)
	if err, ok := s.Errors[name]; ok {
		return provider.Failed[*provider.OutputHandle](err)
	}
	if !s.Writable {
		return provider.NotAvailable[*provider.OutputHandle]()
	}

	s.mu.Lock()
	if s.Written == nil {
		s.Written = make(map[string]*bytes.Buffer)
	}
	buf := &bytes.Buffer{}
	s.Written[name] = buf
	s.mu.Unlock()

	return provider.Success(provider.NewOutputHandle(name, buf, provider.WithOrigin(s.Describe())))
}

// OutputOpenStdout implements provider.Provider.
func (s *StubProvider) OutputOpenStdout() provider.OpenResult[*provider.OutputHandle] {
	s.record("stdout")
	if s.Stdout == nil {
		return provider.NotAvailable[*provider.OutputHandle]()
	}
	return provider.Success(provider.NewOutputHandle("", s.Stdout, provider.WithOrigin(s.Describe())))
}

// InputOpenName implements provider.Provider.
func (s *StubProvider) InputOpenName(name string, _ status.Backend) provider.OpenResult[*provider.InputHandle] {
	s.record("input:" + name)
	if err, ok := s.Errors[name]; ok {
		return provider.Failed[*provider.InputHandle](err)
	}
	if content, ok := s.Files[name]; ok {
		return provider.Success(s.input(name, content))
	}
	return provider.NotAvailable[*provider.InputHandle]()
}

// InputOpenPrimary implements provider.Provider.
func (s *StubProvider) InputOpenPrimary(_ status.Backend) provider.OpenResult[*provider.InputHandle] {
	s.record("primary")
	if s.Primary == "" {
		return provider.NotAvailable[*provider.InputHandle]()
	}
	content, ok := s.Files[s.Primary]
	if !ok {
		return provider.NotAvailable[*provider.InputHandle]()
	}
	return provider.Success(s.input(s.Primary, content))
}

// InputOpenFormat implements provider.Provider.
func (s *StubProvider) InputOpenFormat(name string, _ status.Backend) provider.OpenResult[*provider.InputHandle] {
	s.record("format:" + name)
	if content, ok := s.Formats[name]; ok {
		return provider.Success(s.input(name, content))
	}
	return provider.NotAvailable[*provider.InputHandle]()
}

// CallLog returns a copy of the recorded calls.
func (s *StubProvider) CallLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Calls))
	copy(out, s.Calls)
	return out
}

// WrittenString returns what was written to name, or "" if nothing was.
func (s *StubProvider) WrittenString(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.Written[name]; ok {
		return buf.String()
	}
	return ""
}

// Unreachable fails the test if any of its operations is invoked. Place it
// after a provider that must answer definitively to prove that dispatch
// stopped.
type Unreachable struct {
	T testing.TB
}

func (u Unreachable) fail(op string) {
	u.T.Helper()
	u.T.Fatalf("provider must not be consulted (%s)", op)
}

// OutputOpenName implements provider.Provider.
func (u Unreachable) OutputOpenName(name string) provider.OpenResult[*provider.OutputHandle] {
	u.fail("output " + name)
	return provider.NotAvailable[*provider.OutputHandle]()
}

// OutputOpenStdout implements provider.Provider.
func (u Unreachable) OutputOpenStdout() provider.OpenResult[*provider.OutputHandle] {
	u.fail("stdout")
	return provider.NotAvailable[*provider.OutputHandle]()
}

// InputOpenName implements provider.Provider.
func (u Unreachable) InputOpenName(name string, _ status.Backend) provider.OpenResult[*provider.InputHandle] {
	u.fail("input " + name)
	return provider.NotAvailable[*provider.InputHandle]()
}

// InputOpenPrimary implements provider.Provider.
func (u Unreachable) InputOpenPrimary(_ status.Backend) provider.OpenResult[*provider.InputHandle] {
	u.fail("primary")
	return provider.NotAvailable[*provider.InputHandle]()
}

// InputOpenFormat implements provider.Provider.
func (u Unreachable) InputOpenFormat(name string, _ status.Backend) provider.OpenResult[*provider.InputHandle] {
	u.fail("format " + name)
	return provider.NotAvailable[*provider.InputHandle]()
}
