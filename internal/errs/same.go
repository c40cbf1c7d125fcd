package errs

// DefinitelySame is a weak equivalence test for errors, which do not
// support structural equality. It returns true only when both values are
// message-style errors with identical messages. Causes and backtraces are
// ignored. A false result means "different" or "can't tell".
func DefinitelySame(a, b error) bool {
	ea, ok := a.(*Error)
	if !ok {
		return false
	}
	eb, ok := b.(*Error)
	if !ok {
		return false
	}
	if ea.kind != KindMsg || eb.kind != KindMsg {
		return false
	}
	return ea.msg == eb.msg
}

// SameOutcome applies DefinitelySame to two (value, error) outcomes.
// Two successes are the same when their values are equal; two failures
// when their errors are definitely the same. A success and a failure are
// never the same.
func SameOutcome[T comparable](av T, aerr error, bv T, berr error) bool {
	switch {
	case aerr == nil && berr == nil:
		return av == bv
	case aerr != nil && berr != nil:
		return DefinitelySame(aerr, berr)
	default:
		return false
	}
}
