package testutil

// FixedRunIDs generates the same run id every time.
//
// This keeps persisted run records and golden output byte-identical between
// test runs.
//
// Thread-safety: FixedRunIDs is stateless and safe for concurrent use.
type FixedRunIDs struct {
	id string
}

// NewFixedRunIDs creates a generator returning id.
// If id is empty, Generate() returns "test-run-default".
func NewFixedRunIDs(id string) *FixedRunIDs {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDs{id: id}
}

// Generate returns the fixed run id.
//
// Implements passes.RunIDGenerator.
func (g *FixedRunIDs) Generate() string {
	return g.id
}
