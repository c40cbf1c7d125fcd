package provider

import (
	"errors"
	"io"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/status"
)

// ErrNotFound is the root cause used by the caller-side helpers below when
// every provider declined.
var ErrNotFound = errors.New("no provider can supply this file")

// unpack turns a result into Go's (value, error) form, attaching ctx.
func unpack[H any](r OpenResult[H], ctx string) (H, error) {
	var zero H
	switch {
	case r.IsSuccess():
		return r.Handle(), nil
	case r.IsError():
		return zero, errs.Wrap(r.Err(), "%s", ctx)
	default:
		return zero, errs.Wrap(ErrNotFound, "%s", ctx)
	}
}

// OpenInput opens a named input through p, treating NotAvailable as a
// not-found error. Errors carry "while opening input NAME" context.
func OpenInput(p Provider, name string, sink status.Backend) (*InputHandle, error) {
	return unpack(p.InputOpenName(name, sink), "while opening input "+name)
}

// OpenPrimary opens the primary input through p.
func OpenPrimary(p Provider, sink status.Backend) (*InputHandle, error) {
	return unpack(p.InputOpenPrimary(sink), "while opening the primary input")
}

// OpenFormat opens a format resource through p.
func OpenFormat(p Provider, name string, sink status.Backend) (*InputHandle, error) {
	return unpack(p.InputOpenFormat(name, sink), "while opening format "+name)
}

// CreateOutput opens a named output through p.
func CreateOutput(p Provider, name string) (*OutputHandle, error) {
	return unpack(p.OutputOpenName(name), "while opening output "+name)
}

// ReadInput reads a whole named input and releases the handle.
func ReadInput(p Provider, name string, sink status.Backend) ([]byte, error) {
	h, err := OpenInput(p, name, sink)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(h)
	closeErr := h.Close()
	if err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindIO, err), "while reading input %s", name)
	}
	if closeErr != nil {
		return nil, errs.Wrap(closeErr, "while closing input %s", name)
	}
	return data, nil
}

// WriteOutput writes data to a named output and releases the handle.
func WriteOutput(p Provider, name string, data []byte) error {
	h, err := CreateOutput(p, name)
	if err != nil {
		return err
	}
	_, err = h.Write(data)
	closeErr := h.Close()
	if err != nil {
		return errs.Wrap(errs.Foreign(errs.KindIO, err), "while writing output %s", name)
	}
	return errs.Wrap(closeErr, "while closing output %s", name)
}
