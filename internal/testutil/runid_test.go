package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedRunIDs_ReturnsSameID(t *testing.T) {
	gen := NewFixedRunIDs("run-123")

	assert.Equal(t, "run-123", gen.Generate())
	assert.Equal(t, "run-123", gen.Generate())
}

func TestFixedRunIDs_EmptyDefault(t *testing.T) {
	assert.Equal(t, "test-run-default", NewFixedRunIDs("").Generate())
}
