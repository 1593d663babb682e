package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

var referenceCategories = []CategorySpec{
	{Name: "Cost", Priority: 0.95},
	{Name: "Revenue", Priority: 1.25},
	{Name: "Overhead", Priority: 0.80},
	{Name: "Growth", Priority: 1.10},
}

// newReferenceEngine builds the 4x8 reference topology at angle 0.
func newReferenceEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := New(referenceCategories, 8, opts...)
	require.NoError(t, err)
	return e
}

// fill submits count unit items named <category>-<i> via shortest-lane.
func fill(t *testing.T, e *Engine, category string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		require.NoError(t, e.Submit(category, NewWorkItem(fmt.Sprintf("%s-%d", category, i))))
	}
}
