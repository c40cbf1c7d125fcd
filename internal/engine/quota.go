package engine

import "fmt"

// DefaultMaxDepth bounds input nesting.
const DefaultMaxDepth = 64

// depthQuota tracks input nesting and enforces a maximum depth.
//
// Recursive inputs (a.tex inputs b.tex inputs a.tex) are not detected as
// such; they run into the depth limit instead, which also catches
// pathologically deep but acyclic documents.
type depthQuota struct {
	max     int
	current int
	stack   []string
}

func newDepthQuota(max int) *depthQuota {
	return &depthQuota{max: max}
}

// enter records that name is being read. It fails once the limit is hit.
func (q *depthQuota) enter(name string) error {
	if q.current >= q.max {
		return &Error{
			Code:    ErrCodeDepthExceeded,
			Message: fmt.Sprintf("inputs nested deeper than %d (%s)", q.max, q.trail()),
		}
	}
	q.current++
	q.stack = append(q.stack, name)
	return nil
}

// leave undoes the matching enter.
func (q *depthQuota) leave() {
	q.current--
	q.stack = q.stack[:len(q.stack)-1]
}

// trail names the outermost files of the current nesting.
func (q *depthQuota) trail() string {
	const shown = 3
	if len(q.stack) <= shown {
		return fmt.Sprint(q.stack)
	}
	return fmt.Sprintf("%v ...", q.stack[:shown])
}
