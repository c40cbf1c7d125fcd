// Package errs is the error contract shared by every texstack component.
//
// Errors carry a Kind, an optional chained cause and, when
// TEXSTACK_BACKTRACE=1, a captured backtrace. Context is attached with
// Wrap at each call site that can fail:
//
//	h, err := provider.OpenInput(stack, name, sink)
//	if err != nil {
//	    return errs.Wrap(err, "while loading %s", name)
//	}
//
// Chain iterates the messages from the outermost context to the root cause,
// and Dump renders that chain to stderr with "error:" and "caused by:"
// prefixes. Dump is only the fallback used before a status backend exists.
//
// DefinitelySame provides the weak equivalence used by tests to assert that
// a call failed with a message-equivalent error.
package errs
