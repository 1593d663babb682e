package engine

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/roach88/quadlane/internal/alloc"
	"github.com/roach88/quadlane/internal/oscillator"
)

// DefaultCapacityFloor is the lowest capacity any category gets in a tick.
const DefaultCapacityFloor = 0.5

// Engine is the tick scheduler.
//
// Thread-safety model:
//   - Not safe for concurrent use. Wrap it in a Host for multi-producer use.
//   - Step must be called sequentially by a single owner.
//
// INVARIANTS:
//   - Category order and lane counts NEVER change after construction
//   - Allocator weights sum to 1 within alloc.WeightTolerance
//   - Oscillator angle is always in [0,360)
//   - Each tick pulls at most capacity weight from each category
type Engine struct {
	categories []*Category
	index      map[string]int
	lanes      int

	allocator *alloc.Allocator
	osc       *oscillator.Oscillator
	clock     *TickClock
	floor     float64
	logger    *zap.Logger

	// Construction settings consumed by New.
	ratio     float64
	bias      []float64
	slots     int
	redistrib bool
	matrix    [][]float64
	oscParams oscillator.Params
	startTick int64
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithRatio sets the ratio constant the weights are derived from.
// Default: alloc.DefaultRatio.
func WithRatio(r float64) EngineOption {
	return func(e *Engine) {
		e.ratio = r
	}
}

// WithBias reshapes category weights by an elementwise bias vector.
// The vector length must equal the category count.
func WithBias(bias []float64) EngineOption {
	return func(e *Engine) {
		if bias != nil {
			e.bias = append([]float64(nil), bias...)
		}
	}
}

// WithOverflowSlots sets the number of residual overflow slots.
// Default: alloc.DefaultOverflowSlots.
func WithOverflowSlots(n int) EngineOption {
	return func(e *Engine) {
		e.slots = n
	}
}

// WithRedistribution routes the residual back into categories through a
// row-stochastic matrix instead of overflow slots. A nil matrix is the
// identity.
func WithRedistribution(matrix [][]float64) EngineOption {
	return func(e *Engine) {
		e.redistrib = true
		e.matrix = matrix
	}
}

// WithOscillator replaces all oscillator constants.
func WithOscillator(p oscillator.Params) EngineOption {
	return func(e *Engine) {
		e.oscParams = p
	}
}

// WithStartAngle sets the oscillator's initial angle in degrees.
func WithStartAngle(deg float64) EngineOption {
	return func(e *Engine) {
		e.oscParams.StartAngle = deg
	}
}

// WithCapacityFloor sets the minimum per-category capacity.
// Default: DefaultCapacityFloor.
func WithCapacityFloor(f float64) EngineOption {
	return func(e *Engine) {
		e.floor = f
	}
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithStartTick positions the tick clock so the first Step returns start+1.
func WithStartTick(start int64) EngineOption {
	return func(e *Engine) {
		e.startTick = start
	}
}

// New creates an Engine with the given categories, each holding
// lanesPerCategory lanes.
//
// The categories slice is copied; its order is the declaration order used
// for weights, capacities and scheduling. All parameters are validated here
// and returned as *ConfigurationError.
func New(categories []CategorySpec, lanesPerCategory int, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		ratio:     alloc.DefaultRatio,
		slots:     alloc.DefaultOverflowSlots,
		oscParams: oscillator.DefaultParams(),
		floor:     DefaultCapacityFloor,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := validateTopology(categories, lanesPerCategory); err != nil {
		return nil, err
	}
	if math.IsNaN(e.floor) || math.IsInf(e.floor, 0) || e.floor <= 0 {
		return nil, NewConfigurationError(ErrCodeInvalidParameter, "capacity_floor",
			"capacity floor must be positive and finite, got %v", e.floor)
	}

	allocOpts := []alloc.Option{
		alloc.WithBias(e.bias),
		alloc.WithOverflowSlots(e.slots),
	}
	if e.redistrib {
		allocOpts = append(allocOpts, alloc.WithRedistribution(e.matrix))
	}
	a, err := alloc.New(e.ratio, len(categories), allocOpts...)
	if err != nil {
		return nil, classify("allocator", err)
	}
	osc, err := oscillator.New(e.oscParams)
	if err != nil {
		return nil, classify("oscillator", err)
	}

	e.allocator = a
	e.osc = osc
	e.clock = NewTickClockAt(e.startTick)
	e.lanes = lanesPerCategory
	e.index = make(map[string]int, len(categories))
	e.categories = make([]*Category, len(categories))
	for i, spec := range categories {
		e.categories[i] = newCategory(spec, lanesPerCategory)
		e.index[spec.Name] = i
	}

	e.logger.Debug("engine constructed",
		zap.Int("categories", len(categories)),
		zap.Int("lanes_per_category", lanesPerCategory),
		zap.Float64("ratio", e.ratio),
		zap.Stringer("residual_policy", a.Policy()),
	)
	return e, nil
}

func validateTopology(categories []CategorySpec, lanes int) error {
	if len(categories) == 0 {
		return NewConfigurationError(ErrCodeInvalidTopology, "categories",
			"at least one category is required")
	}
	if lanes < 1 {
		return NewConfigurationError(ErrCodeInvalidTopology, "lanes_per_category",
			"lanes per category must be at least 1, got %d", lanes)
	}
	seen := make(map[string]bool, len(categories))
	for i, c := range categories {
		if c.Name == "" {
			return NewConfigurationError(ErrCodeInvalidTopology, fmt.Sprintf("categories[%d].name", i),
				"category name must not be empty")
		}
		if seen[c.Name] {
			return NewConfigurationError(ErrCodeInvalidTopology, fmt.Sprintf("categories[%d].name", i),
				"duplicate category %q", c.Name)
		}
		seen[c.Name] = true
		if math.IsNaN(c.Priority) || math.IsInf(c.Priority, 0) || c.Priority < 0 {
			return NewConfigurationError(ErrCodeInvalidParameter, fmt.Sprintf("categories[%d].priority", i),
				"priority must be finite and non-negative, got %v", c.Priority)
		}
	}
	return nil
}

// Submit enqueues item onto the shortest lane of the named category.
// Ties go to the lowest lane index. Inactive lanes are passed over unless
// every lane is inactive.
func (e *Engine) Submit(category string, item WorkItem) error {
	c, err := e.lookup(category)
	if err != nil {
		return err
	}
	if err := validateItem(item); err != nil {
		return err
	}
	c.Lanes[c.shortestLane()].queue.push(item)
	return nil
}

// SubmitToLane enqueues item onto lanes[hint mod laneCount] of the named
// category. Negative hints wrap the same way.
func (e *Engine) SubmitToLane(category string, hint int, item WorkItem) error {
	c, err := e.lookup(category)
	if err != nil {
		return err
	}
	if err := validateItem(item); err != nil {
		return err
	}
	n := len(c.Lanes)
	c.Lanes[((hint%n)+n)%n].queue.push(item)
	return nil
}

// SetLaneActive marks a lane active or inactive. Inactive lanes keep their
// items but are skipped by Step.
func (e *Engine) SetLaneActive(category string, lane int, active bool) error {
	c, err := e.lookup(category)
	if err != nil {
		return err
	}
	if lane < 0 || lane >= len(c.Lanes) {
		return NewConfigurationError(ErrCodeLaneIndex, "lane",
			"lane %d out of range [0,%d) for category %q", lane, len(c.Lanes), category)
	}
	c.Lanes[lane].Active = active
	return nil
}

// Step runs one tick.
//
// Raw mass is validated before anything is mutated; on error the engine
// state is unchanged.
func (e *Engine) Step(rawMass float64) (*TickResult, error) {
	allocation, err := e.allocator.Allocate(rawMass)
	if err != nil {
		return nil, classify("raw_mass", err)
	}

	angle := e.osc.Advance(1)
	modifier := e.osc.Modifier()
	weights := e.allocator.Weights()

	result := &TickResult{
		TickIndex:        e.clock.Next(),
		Angle:            angle,
		RotationModifier: modifier,
		Categories:       make([]CategoryTick, len(e.categories)),
		Allocation:       allocation,
	}

	budgets := make([]*capacityBudget, len(e.categories))
	for i, c := range e.categories {
		c.MassShare = weights[i]
		budgets[i] = newCapacityBudget(Capacity(len(c.Lanes), c.MassShare, c.Priority, modifier, e.floor))
	}

	for i, c := range e.categories {
		before := len(result.Scheduled)
		result.Scheduled = drain(c, budgets[i], result.Scheduled)
		result.Categories[i] = CategoryTick{
			Name:      c.Name,
			MassShare: c.MassShare,
			Capacity:  budgets[i].capacity,
			Pulled:    budgets[i].Pulled(),
			Scheduled: len(result.Scheduled) - before,
			Backlog:   c.backlog(),
		}
	}
	result.Efficacy = alloc.Diagnose(result.PulledWeights())

	e.logger.Debug("tick",
		zap.Int64("tick", result.TickIndex),
		zap.Float64("angle", angle),
		zap.Float64("modifier", modifier),
		zap.Int("scheduled", len(result.Scheduled)),
		zap.Int("backlog", result.TotalBacklog()),
		zap.Float64("efficacy", result.Efficacy.Score),
	)
	return result, nil
}

// drain visits each lane of c once, starting at the cursor, and appends
// every dequeued item to out. The cursor moves one position afterwards.
func drain(c *Category, budget *capacityBudget, out []ScheduledItem) []ScheduledItem {
	n := len(c.Lanes)
	start := c.Cursor
	for k := 0; k < n; k++ {
		if budget.exhausted() {
			break
		}
		idx := (start + k) % n
		lane := c.Lanes[idx]
		if !lane.Active {
			continue
		}
		head, ok := lane.queue.peek()
		if !ok || !budget.take(head.Weight) {
			continue
		}
		lane.queue.pop()
		out = append(out, ScheduledItem{
			Category:  c.Name,
			Lane:      lane.ID,
			LaneIndex: idx,
			Item:      head,
		})
	}
	c.Cursor = (start + 1) % n
	return out
}

// Capacity is max(floor, lanes * share * priority * modifier).
func Capacity(lanes int, share, priority, modifier, floor float64) float64 {
	return math.Max(floor, float64(lanes)*share*priority*modifier)
}

// SnapshotBacklog returns queued item counts by category, over all lanes.
func (e *Engine) SnapshotBacklog() map[string]int {
	out := make(map[string]int, len(e.categories))
	for _, c := range e.categories {
		out[c.Name] = c.backlog()
	}
	return out
}

// CategoryNames returns category names in declaration order.
func (e *Engine) CategoryNames() []string {
	out := make([]string, len(e.categories))
	for i, c := range e.categories {
		out[i] = c.Name
	}
	return out
}

// LanesPerCategory returns the fixed lane count.
func (e *Engine) LanesPerCategory() int {
	return e.lanes
}

// LaneBacklog returns per-lane queue lengths for one category.
func (e *Engine) LaneBacklog(category string) ([]int, error) {
	c, err := e.lookup(category)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(c.Lanes))
	for i, l := range c.Lanes {
		out[i] = l.Len()
	}
	return out, nil
}

// LaneItems returns a copy of one lane's queue, head first.
func (e *Engine) LaneItems(category string, lane int) ([]WorkItem, error) {
	c, err := e.lookup(category)
	if err != nil {
		return nil, err
	}
	if lane < 0 || lane >= len(c.Lanes) {
		return nil, NewConfigurationError(ErrCodeLaneIndex, "lane",
			"lane %d out of range [0,%d) for category %q", lane, len(c.Lanes), category)
	}
	return c.Lanes[lane].queue.snapshot(), nil
}

// Cursor returns the round-robin cursor of one category.
func (e *Engine) Cursor(category string) (int, error) {
	c, err := e.lookup(category)
	if err != nil {
		return 0, err
	}
	return c.Cursor, nil
}

// Weights returns the allocator's effective weights in declaration order.
func (e *Engine) Weights() []float64 {
	return e.allocator.Weights()
}

// Angle returns the current oscillator angle.
func (e *Engine) Angle() float64 {
	return e.osc.Angle()
}

// Tick returns the index of the last completed tick.
func (e *Engine) Tick() int64 {
	return e.clock.Current()
}

func (e *Engine) lookup(name string) (*Category, error) {
	i, ok := e.index[name]
	if !ok {
		return nil, &UnknownCategoryError{Category: name}
	}
	return e.categories[i], nil
}

func validateItem(item WorkItem) error {
	if math.IsNaN(item.Weight) || math.IsInf(item.Weight, 0) || item.Weight < 0 {
		return NewConfigurationError(ErrCodeInvalidItem, "weight",
			"item %q weight must be finite and non-negative, got %v", item.ID, item.Weight)
	}
	return nil
}
