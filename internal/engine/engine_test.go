package engine

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quadlane/internal/alloc"
	"github.com/roach88/quadlane/internal/oscillator"
)

func TestEngine_New(t *testing.T) {
	e := newReferenceEngine(t)

	assert.Equal(t, []string{"Cost", "Revenue", "Overhead", "Growth"}, e.CategoryNames())
	assert.Equal(t, 8, e.LanesPerCategory())
	assert.Equal(t, int64(0), e.Tick())
	assert.Equal(t, 0.0, e.Angle())
	assert.InDelta(t, 1.0, alloc.Sum(e.Weights()), alloc.WeightTolerance)

	backlog, err := e.LaneBacklog("Cost")
	require.NoError(t, err)
	assert.Equal(t, make([]int, 8), backlog)
}

func TestEngine_New_CopiesCategories(t *testing.T) {
	specs := []CategorySpec{{Name: "A", Priority: 1}, {Name: "B", Priority: 1}}
	e, err := New(specs, 2)
	require.NoError(t, err)

	specs[0].Name = "Z"
	assert.Equal(t, []string{"A", "B"}, e.CategoryNames())
}

func TestEngine_New_LaneIDs(t *testing.T) {
	e := newReferenceEngine(t)
	assert.Equal(t, "C0", e.categories[0].Lanes[0].ID)
	assert.Equal(t, "R7", e.categories[1].Lanes[7].ID)
	assert.Equal(t, "G3", e.categories[3].Lanes[3].ID)
}

func TestEngine_New_Validation(t *testing.T) {
	badOsc := oscillator.DefaultParams()
	badOsc.MicroThrottle = 1

	tests := []struct {
		name  string
		specs []CategorySpec
		lanes int
		opts  []EngineOption
		code  ConfigErrorCode
	}{
		{"no categories", nil, 8, nil, ErrCodeInvalidTopology},
		{"zero lanes", referenceCategories, 0, nil, ErrCodeInvalidTopology},
		{"empty name", []CategorySpec{{Name: "", Priority: 1}}, 1, nil, ErrCodeInvalidTopology},
		{"duplicate name", []CategorySpec{{Name: "A", Priority: 1}, {Name: "A", Priority: 1}}, 1, nil, ErrCodeInvalidTopology},
		{"negative priority", []CategorySpec{{Name: "A", Priority: -1}}, 1, nil, ErrCodeInvalidParameter},
		{"nan priority", []CategorySpec{{Name: "A", Priority: math.NaN()}}, 1, nil, ErrCodeInvalidParameter},
		{"bias length", referenceCategories, 8, []EngineOption{WithBias([]float64{1, 1, 1})}, ErrCodeBiasLength},
		{"bias negative", referenceCategories, 8, []EngineOption{WithBias([]float64{1, -1, 1, 1})}, ErrCodeInvalidBias},
		{"matrix shape", referenceCategories, 8, []EngineOption{WithRedistribution([][]float64{{1}})}, ErrCodeInvalidMatrix},
		{"matrix row", referenceCategories, 8, []EngineOption{WithRedistribution([][]float64{
			{0.5, 0.4, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1},
		})}, ErrCodeInvalidMatrix},
		{"ratio zero", referenceCategories, 8, []EngineOption{WithRatio(0)}, ErrCodeInvalidRatio},
		{"floor zero", referenceCategories, 8, []EngineOption{WithCapacityFloor(0)}, ErrCodeInvalidParameter},
		{"oscillator", referenceCategories, 8, []EngineOption{WithOscillator(badOsc)}, ErrCodeInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.specs, tt.lanes, tt.opts...)
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
			assert.Equal(t, tt.code, ConfigErrorCodeOf(err))
		})
	}
}

func TestEngine_BiasLengthWrapsAllocatorError(t *testing.T) {
	_, err := New(referenceCategories, 8, WithBias([]float64{1, 1}))
	assert.ErrorIs(t, err, alloc.ErrBiasLength)
}

func TestSubmit_UnknownCategory(t *testing.T) {
	e := newReferenceEngine(t)

	err := e.Submit("Marketing", NewWorkItem("x"))
	require.Error(t, err)
	assert.True(t, IsUnknownCategoryError(err))
	assert.False(t, IsConfigurationError(err))

	err = e.SubmitToLane("Marketing", 0, NewWorkItem("x"))
	assert.True(t, IsUnknownCategoryError(err))

	err = e.SetLaneActive("Marketing", 0, false)
	assert.True(t, IsUnknownCategoryError(err))
}

func TestSubmit_ShortestLane(t *testing.T) {
	e := newReferenceEngine(t)
	fill(t, e, "Cost", 11)

	backlog, err := e.LaneBacklog("Cost")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2, 1, 1, 1, 1, 1}, backlog)
}

func TestSubmit_ShortestLanePrefersActive(t *testing.T) {
	e := newReferenceEngine(t)
	require.NoError(t, e.SetLaneActive("Cost", 0, false))
	fill(t, e, "Cost", 7)

	backlog, err := e.LaneBacklog("Cost")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 1, 1, 1, 1, 1, 1}, backlog)
}

func TestSubmit_AllLanesInactive(t *testing.T) {
	e, err := New([]CategorySpec{{Name: "A", Priority: 1}}, 2)
	require.NoError(t, err)
	require.NoError(t, e.SetLaneActive("A", 0, false))
	require.NoError(t, e.SetLaneActive("A", 1, false))

	require.NoError(t, e.Submit("A", NewWorkItem("x")))
	backlog, err := e.LaneBacklog("A")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, backlog)
}

func TestSubmitToLane_HintWraps(t *testing.T) {
	e := newReferenceEngine(t)

	require.NoError(t, e.SubmitToLane("Growth", 10, NewWorkItem("a")))
	require.NoError(t, e.SubmitToLane("Growth", -1, NewWorkItem("b")))
	require.NoError(t, e.SubmitToLane("Growth", 0, NewWorkItem("c")))

	backlog, err := e.LaneBacklog("Growth")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 1, 0, 0, 0, 0, 1}, backlog)
}

func TestSubmit_InvalidWeight(t *testing.T) {
	e := newReferenceEngine(t)

	for _, w := range []float64{-1, math.NaN(), math.Inf(1)} {
		err := e.Submit("Cost", WorkItem{ID: "bad", Weight: w})
		require.Error(t, err)
		assert.Equal(t, ErrCodeInvalidItem, ConfigErrorCodeOf(err))
	}
	assert.Equal(t, 0, e.SnapshotBacklog()["Cost"])
}

func TestSetLaneActive_OutOfRange(t *testing.T) {
	e := newReferenceEngine(t)
	err := e.SetLaneActive("Cost", 8, false)
	assert.Equal(t, ErrCodeLaneIndex, ConfigErrorCodeOf(err))
	err = e.SetLaneActive("Cost", -1, false)
	assert.Equal(t, ErrCodeLaneIndex, ConfigErrorCodeOf(err))
}

func TestStep_BackpressureScenario(t *testing.T) {
	e := newReferenceEngine(t)
	fill(t, e, "Cost", 40)
	fill(t, e, "Revenue", 30)
	fill(t, e, "Overhead", 18)
	fill(t, e, "Growth", 26)
	before := e.SnapshotBacklog()

	result, err := e.Step(1000)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.TickIndex)
	assert.InDelta(t, 0.459, result.Angle, 1e-12)
	assert.InDelta(t, 0.99488, result.RotationModifier, 1e-5)

	wantCount := map[string]int{"Cost": 4, "Revenue": 0, "Overhead": 2, "Growth": 0}
	wantCapacity := map[string]float64{"Cost": 4.7921, "Revenue": 0.5, "Overhead": 2.0177, "Growth": 0.5}

	for _, ct := range result.Categories {
		assert.InDelta(t, wantCapacity[ct.Name], ct.Capacity, 1e-4, ct.Name)
		assert.Equal(t, int(math.Floor(ct.Capacity)), ct.Scheduled, ct.Name)
		assert.Equal(t, wantCount[ct.Name], ct.Scheduled, ct.Name)
		assert.Equal(t, before[ct.Name]-ct.Scheduled, ct.Backlog, ct.Name)
		assert.Len(t, result.ScheduledFor(ct.Name), ct.Scheduled, ct.Name)
	}
	assert.Equal(t, result.Backlog(), e.SnapshotBacklog())

	// Category-major, then lane-visit order.
	var lanes []string
	for _, s := range result.Scheduled {
		lanes = append(lanes, s.Lane)
	}
	assert.Equal(t, []string{"C0", "C1", "C2", "C3", "O0", "O1"}, lanes)
}

func TestStep_FIFO(t *testing.T) {
	e, err := New([]CategorySpec{{Name: "Solo", Priority: 1.2}}, 1)
	require.NoError(t, err)

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, e.SubmitToLane("Solo", 0, NewWorkItem(id)))
	}

	var order []string
	for range 3 {
		result, err := e.Step(1000)
		require.NoError(t, err)
		require.Len(t, result.Scheduled, 1)
		order = append(order, result.Scheduled[0].Item.ID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, order)
}

func TestStep_HeadOfLineBlocks(t *testing.T) {
	e, err := New([]CategorySpec{{Name: "Solo", Priority: 1.2}}, 1)
	require.NoError(t, err)
	require.NoError(t, e.SubmitToLane("Solo", 0, WorkItem{ID: "heavy", Weight: 5}))
	require.NoError(t, e.SubmitToLane("Solo", 0, WorkItem{ID: "light", Weight: 0.1}))

	result, err := e.Step(1000)
	require.NoError(t, err)
	assert.Empty(t, result.Scheduled)

	items, err := e.LaneItems("Solo", 0)
	require.NoError(t, err)
	assert.Equal(t, "heavy", items[0].ID)
	assert.Equal(t, "light", items[1].ID)
}

func TestStep_CapacityRespected(t *testing.T) {
	e := newReferenceEngine(t)
	rng := rand.New(rand.NewPCG(7, 11))
	names := e.CategoryNames()

	for tick := 0; tick < 400; tick++ {
		for range 12 {
			name := names[rng.IntN(len(names))]
			item := WorkItem{ID: "w", Weight: rng.Float64() * 3}
			require.NoError(t, e.Submit(name, item))
		}

		result, err := e.Step(rng.Float64() * 2000)
		require.NoError(t, err)

		for _, ct := range result.Categories {
			assert.GreaterOrEqual(t, ct.Capacity, DefaultCapacityFloor)
			assert.LessOrEqual(t, ct.Pulled, ct.Capacity)

			sum := 0.0
			for _, s := range result.ScheduledFor(ct.Name) {
				sum += s.Item.Weight
			}
			assert.InDelta(t, ct.Pulled, sum, 1e-9)
		}
		assert.GreaterOrEqual(t, result.Angle, 0.0)
		assert.Less(t, result.Angle, 360.0)
	}
}

func TestStep_Fairness(t *testing.T) {
	const lanes = 4
	e, err := New([]CategorySpec{{Name: "Pool", Priority: 1}}, lanes)
	require.NoError(t, err)
	for i := 0; i < lanes*50; i++ {
		require.NoError(t, e.SubmitToLane("Pool", i, NewWorkItem("x")))
	}

	starts := make(map[int]int)
	for tick := 0; tick < lanes; tick++ {
		cursor, err := e.Cursor("Pool")
		require.NoError(t, err)
		assert.Equal(t, tick%lanes, cursor)

		result, err := e.Step(1000)
		require.NoError(t, err)
		require.NotEmpty(t, result.Scheduled)
		starts[result.Scheduled[0].LaneIndex]++
	}
	for lane := 0; lane < lanes; lane++ {
		assert.Equal(t, 1, starts[lane], "lane %d", lane)
	}
}

func TestStep_CursorAdvancesWhenIdle(t *testing.T) {
	e := newReferenceEngine(t)
	for range 3 {
		_, err := e.Step(1000)
		require.NoError(t, err)
	}
	for _, name := range e.CategoryNames() {
		cursor, err := e.Cursor(name)
		require.NoError(t, err)
		assert.Equal(t, 3, cursor, name)
	}
}

func TestStep_Starvation(t *testing.T) {
	e := newReferenceEngine(t, WithCapacityFloor(0.5))
	for lane := 0; lane < 8; lane++ {
		require.NoError(t, e.SubmitToLane("Revenue", lane, WorkItem{ID: "big", Weight: 10}))
	}

	for range 50 {
		result, err := e.Step(1000)
		require.NoError(t, err)

		ct, ok := result.Category("Revenue")
		require.True(t, ok)
		require.Less(t, ct.Capacity, 10.0)
		assert.Equal(t, 0, ct.Scheduled)
		assert.Equal(t, 8, ct.Backlog)
	}
}

func TestStep_ZeroWeightAlwaysFits(t *testing.T) {
	e := newReferenceEngine(t)
	for lane := 0; lane < 8; lane++ {
		require.NoError(t, e.SubmitToLane("Growth", lane, WorkItem{ID: "free", Weight: 0}))
	}

	result, err := e.Step(0)
	require.NoError(t, err)
	assert.Len(t, result.ScheduledFor("Growth"), 8)
}

func TestStep_InactiveLaneSkipped(t *testing.T) {
	e, err := New([]CategorySpec{{Name: "Pool", Priority: 1}}, 2)
	require.NoError(t, err)
	require.NoError(t, e.SubmitToLane("Pool", 0, NewWorkItem("parked")))
	require.NoError(t, e.SubmitToLane("Pool", 1, NewWorkItem("live")))
	require.NoError(t, e.SetLaneActive("Pool", 0, false))

	result, err := e.Step(1000)
	require.NoError(t, err)
	require.Len(t, result.Scheduled, 1)
	assert.Equal(t, "live", result.Scheduled[0].Item.ID)
	assert.Equal(t, 1, result.Categories[0].Backlog)

	require.NoError(t, e.SetLaneActive("Pool", 0, true))
	result, err = e.Step(1000)
	require.NoError(t, err)
	require.Len(t, result.Scheduled, 1)
	assert.Equal(t, "parked", result.Scheduled[0].Item.ID)
}

func TestStep_InvalidMassIsAtomic(t *testing.T) {
	e := newReferenceEngine(t)
	fill(t, e, "Cost", 10)
	_, err := e.Step(1000)
	require.NoError(t, err)

	angle, tick := e.Angle(), e.Tick()
	cursor, err := e.Cursor("Cost")
	require.NoError(t, err)
	backlog := e.SnapshotBacklog()

	for _, m := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := e.Step(m)
		require.Error(t, err)
		assert.Equal(t, ErrCodeInvalidMass, ConfigErrorCodeOf(err))
	}

	assert.Equal(t, angle, e.Angle())
	assert.Equal(t, tick, e.Tick())
	got, err := e.Cursor("Cost")
	require.NoError(t, err)
	assert.Equal(t, cursor, got)
	assert.Equal(t, backlog, e.SnapshotBacklog())
}

func TestStep_Deterministic(t *testing.T) {
	run := func() []*TickResult {
		e := newReferenceEngine(t)
		fill(t, e, "Cost", 40)
		fill(t, e, "Revenue", 30)
		fill(t, e, "Overhead", 18)
		fill(t, e, "Growth", 26)

		var out []*TickResult
		for range 25 {
			r, err := e.Step(1000)
			require.NoError(t, err)
			out = append(out, r)
		}
		return out
	}

	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("tick traces differ (-first +second):\n%s", diff)
	}
}

func TestStep_ResidualPolicy(t *testing.T) {
	overflow := newReferenceEngine(t)
	r, err := overflow.Step(1000)
	require.NoError(t, err)
	assert.Len(t, r.Allocation.Overflow, alloc.DefaultOverflowSlots)

	redistribute := newReferenceEngine(t, WithRedistribution(nil))
	r, err = redistribute.Step(1000)
	require.NoError(t, err)
	assert.Nil(t, r.Allocation.Overflow)
	assert.InDelta(t, 1000, alloc.Sum(r.Allocation.PerCategory), 1e-9)
}

func TestStep_Efficacy(t *testing.T) {
	idle := newReferenceEngine(t)
	r, err := idle.Step(1000)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r.Efficacy.Score, 1e-6)

	busy := newReferenceEngine(t)
	fill(t, busy, "Cost", 40)
	fill(t, busy, "Revenue", 30)
	fill(t, busy, "Overhead", 18)
	fill(t, busy, "Growth", 26)
	r, err = busy.Step(1000)
	require.NoError(t, err)

	assert.Equal(t, []float64{4, 0, 2, 0}, r.PulledWeights())
	assert.Equal(t, alloc.Diagnose([]float64{4, 0, 2, 0}), r.Efficacy)
	assert.InDelta(t, 0.345109, r.Efficacy.Score, 1e-6)
	assert.Equal(t, 3451, r.Efficacy.Rating())
}

func TestStep_ZeroPriorityGetsFloor(t *testing.T) {
	e, err := New([]CategorySpec{{Name: "Solo", Priority: 0}}, 4, WithCapacityFloor(1))
	require.NoError(t, err)
	fill(t, e, "Solo", 8)

	r, err := e.Step(1000)
	require.NoError(t, err)
	ct, ok := r.Category("Solo")
	require.True(t, ok)
	assert.Equal(t, 1.0, ct.Capacity)
	assert.Equal(t, 1, ct.Scheduled)
}

func TestStep_StartTick(t *testing.T) {
	e := newReferenceEngine(t, WithStartTick(41))
	r, err := e.Step(1)
	require.NoError(t, err)
	assert.Equal(t, int64(42), r.TickIndex)
}

func TestCapacity(t *testing.T) {
	assert.Equal(t, 0.5, Capacity(8, 0, 1, 1, 0.5))
	assert.InDelta(t, 4.0, Capacity(8, 0.5, 1, 1, 0.5), 1e-12)
	assert.InDelta(t, 2.0, Capacity(8, 0.5, 1, 0.5, 0.5), 1e-12)
}
