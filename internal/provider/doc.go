// Package provider defines the I/O capability every backing store
// implements and the Stack that composes an ordered list of stores into a
// single logical file system.
//
// # Open results
//
// Every open returns an OpenResult: Success with a handle, NotAvailable
// ("not mine, ask the next provider") or Failed with a definitive error.
// Returning an error for an unrecognized file breaks dispatch for every
// provider after it, so stores must reserve Failed for requests they
// recognize but cannot serve.
//
// # Shadowing
//
// A Stack built from [local, bundle] lets a user's local a.tex shadow the
// bundled default deterministically: the local store is always consulted
// first and the bundle is never asked once the local store answered.
//
// # Handles
//
// InputHandle and OutputHandle are exclusively owned by the caller and
// must be closed on every path. Both fingerprint their content (BLAKE3)
// and report it to close observers, which is how the pass detector learns
// what was read and written without knowing anything about the engine.
package provider
