package provider

import (
	"github.com/roach88/texstack/internal/status"
)

// Stack is a Provider that delegates to an ordered list of providers.
//
// Dispatch is identical for all five operations: providers are consulted
// strictly in order; NotAvailable moves on to the next one; the first
// Success or Error is returned unchanged and later providers are never
// consulted. When every provider declines, the stack declines too.
//
// INVARIANTS:
//   - order is fixed at construction and never changes
//   - an Error from an earlier provider is never overridden by a later
//     provider's Success
//   - results are neither wrapped nor retried
//
// The stack references its providers without owning them: closing or
// otherwise releasing them is the caller's job, and the caller must keep
// them alive for as long as it uses the stack.
type Stack struct {
	items []Provider
}

// NewStack creates a stack consulting items in the given order, highest
// priority first. The slice is copied so later changes by the caller cannot
// reorder it. An empty stack is legal and declines everything.
func NewStack(items ...Provider) *Stack {
	itemsCopy := make([]Provider, len(items))
	copy(itemsCopy, items)
	return &Stack{items: itemsCopy}
}

// Len returns the number of providers.
func (s *Stack) Len() int {
	return len(s.items)
}

// At returns the provider at priority index i.
func (s *Stack) At(i int) Provider {
	return s.items[i]
}

// Describe implements Describer.
func (s *Stack) Describe() string {
	return "stack"
}

// dispatch walks items in order and returns the first definitive result
// together with the index of the provider that produced it, or
// NotAvailable and -1.
func dispatch[H any](items []Provider, op func(Provider) OpenResult[H]) (OpenResult[H], int) {
	for i, item := range items {
		r := op(item)
		if r.IsNotAvailable() {
			continue
		}
		return r, i
	}
	return NotAvailable[H](), -1
}

// OutputOpenName implements Provider.
func (s *Stack) OutputOpenName(name string) OpenResult[*OutputHandle] {
	r, _ := s.ResolveOutputName(name)
	return r
}

// OutputOpenStdout implements Provider.
func (s *Stack) OutputOpenStdout() OpenResult[*OutputHandle] {
	r, _ := s.ResolveOutputStdout()
	return r
}

// InputOpenName implements Provider.
func (s *Stack) InputOpenName(name string, sink status.Backend) OpenResult[*InputHandle] {
	r, _ := s.ResolveInputName(name, sink)
	return r
}

// InputOpenPrimary implements Provider.
func (s *Stack) InputOpenPrimary(sink status.Backend) OpenResult[*InputHandle] {
	r, _ := s.ResolveInputPrimary(sink)
	return r
}

// InputOpenFormat implements Provider.
func (s *Stack) InputOpenFormat(name string, sink status.Backend) OpenResult[*InputHandle] {
	r, _ := s.ResolveInputFormat(name, sink)
	return r
}

// ResolveOutputName is OutputOpenName that also reports which provider
// answered (-1 when none did).
func (s *Stack) ResolveOutputName(name string) (OpenResult[*OutputHandle], int) {
	return dispatch(s.items, func(p Provider) OpenResult[*OutputHandle] {
		return p.OutputOpenName(name)
	})
}

// ResolveOutputStdout is OutputOpenStdout that also reports which provider
// answered.
func (s *Stack) ResolveOutputStdout() (OpenResult[*OutputHandle], int) {
	return dispatch(s.items, func(p Provider) OpenResult[*OutputHandle] {
		return p.OutputOpenStdout()
	})
}

// ResolveInputName is InputOpenName that also reports which provider
// answered.
func (s *Stack) ResolveInputName(name string, sink status.Backend) (OpenResult[*InputHandle], int) {
	return dispatch(s.items, func(p Provider) OpenResult[*InputHandle] {
		return p.InputOpenName(name, sink)
	})
}

// ResolveInputPrimary is InputOpenPrimary that also reports which provider
// answered.
func (s *Stack) ResolveInputPrimary(sink status.Backend) (OpenResult[*InputHandle], int) {
	return dispatch(s.items, func(p Provider) OpenResult[*InputHandle] {
		return p.InputOpenPrimary(sink)
	})
}

// ResolveInputFormat is InputOpenFormat that also reports which provider
// answered.
func (s *Stack) ResolveInputFormat(name string, sink status.Backend) (OpenResult[*InputHandle], int) {
	return dispatch(s.items, func(p Provider) OpenResult[*InputHandle] {
		return p.InputOpenFormat(name, sink)
	})
}
