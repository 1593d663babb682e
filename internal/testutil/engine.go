package testutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/quadlane/internal/engine"
)

// ReferenceLoad is the item count per category in the backpressure scenario.
var ReferenceLoad = map[string]int{
	"Cost":     40,
	"Revenue":  30,
	"Overhead": 18,
	"Growth":   26,
}

// ReferenceCategories returns the four reference categories in order.
func ReferenceCategories() []engine.CategorySpec {
	return []engine.CategorySpec{
		{Name: "Cost", Priority: 0.95},
		{Name: "Revenue", Priority: 1.25},
		{Name: "Overhead", Priority: 0.80},
		{Name: "Growth", Priority: 1.10},
	}
}

// NewReferenceEngine builds the 4x8 reference engine at angle 0.
func NewReferenceEngine(t testing.TB, opts ...engine.EngineOption) *engine.Engine {
	t.Helper()
	e, err := engine.New(ReferenceCategories(), 8, opts...)
	require.NoError(t, err)
	return e
}

// Submitter is satisfied by both *engine.Engine and *engine.Host.
type Submitter interface {
	Submit(category string, item engine.WorkItem) error
}

// Fill submits n unit-weight items named "<category>-<i>".
func Fill(t testing.TB, s Submitter, category string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.Submit(category, engine.NewWorkItem(fmt.Sprintf("%s-%d", category, i))))
	}
}

// FillReference loads the backpressure scenario's items.
func FillReference(t testing.TB, s Submitter) {
	t.Helper()
	for _, c := range ReferenceCategories() {
		Fill(t, s, c.Name, ReferenceLoad[c.Name])
	}
}

// Stepper is satisfied by both *engine.Engine and *engine.Host.
type Stepper interface {
	Step(rawMass float64) (*engine.TickResult, error)
}

// StepN runs n ticks at a constant mass and returns every result.
func StepN(t testing.TB, s Stepper, n int, mass float64) []*engine.TickResult {
	t.Helper()
	out := make([]*engine.TickResult, 0, n)
	for i := 0; i < n; i++ {
		r, err := s.Step(mass)
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}
