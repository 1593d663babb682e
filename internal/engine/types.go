package engine

import (
	"fmt"

	"github.com/roach88/quadlane/internal/alloc"
)

// DefaultItemWeight is the weight of an item created with NewWorkItem.
const DefaultItemWeight = 1.0

// WorkItem is an opaque unit of work. Weight is its cost against capacity.
// The zero Weight is valid and always fits.
type WorkItem struct {
	ID     string
	Weight float64
}

// NewWorkItem returns an item with DefaultItemWeight.
func NewWorkItem(id string) WorkItem {
	return WorkItem{ID: id, Weight: DefaultItemWeight}
}

// CategorySpec declares one category at construction time.
type CategorySpec struct {
	Name     string
	Priority float64
}

// Lane is one FIFO queue inside a category.
type Lane struct {
	ID     string
	Active bool
	queue  *laneQueue
}

// Len returns the number of queued items.
func (l *Lane) Len() int {
	return l.queue.len()
}

// Category groups a fixed set of lanes under one name.
//
// MassShare is overwritten every tick. Cursor is advanced by exactly one
// position per tick, and only by Step.
type Category struct {
	Name      string
	Priority  float64
	MassShare float64
	Cursor    int
	Lanes     []*Lane
}

func newCategory(spec CategorySpec, lanes int) *Category {
	c := &Category{
		Name:     spec.Name,
		Priority: spec.Priority,
		Lanes:    make([]*Lane, lanes),
	}
	for i := range c.Lanes {
		c.Lanes[i] = &Lane{
			ID:     laneID(spec.Name, i),
			Active: true,
			queue:  newLaneQueue(),
		}
	}
	return c
}

// backlog sums queue lengths over every lane, active or not.
func (c *Category) backlog() int {
	n := 0
	for _, l := range c.Lanes {
		n += l.Len()
	}
	return n
}

// shortestLane returns the index of the shortest active lane, first on ties.
// With no active lane it falls back to the shortest lane overall.
func (c *Category) shortestLane() int {
	best, bestActive := -1, -1
	for i, l := range c.Lanes {
		if best < 0 || l.Len() < c.Lanes[best].Len() {
			best = i
		}
		if l.Active && (bestActive < 0 || l.Len() < c.Lanes[bestActive].Len()) {
			bestActive = i
		}
	}
	if bestActive >= 0 {
		return bestActive
	}
	return best
}

// laneID is the category's first letter followed by the lane index.
func laneID(category string, i int) string {
	r := []rune(category)
	return fmt.Sprintf("%c%d", r[0], i)
}

// ScheduledItem is one dequeued item.
type ScheduledItem struct {
	Category  string
	Lane      string
	LaneIndex int
	Item      WorkItem
}

// CategoryTick is one category's view of a tick.
type CategoryTick struct {
	Name      string
	MassShare float64
	Capacity  float64
	Pulled    float64
	Scheduled int
	Backlog   int
}

// TickResult is everything one Step produced. The engine does not retain it.
type TickResult struct {
	TickIndex        int64
	Angle            float64
	RotationModifier float64

	// Categories is in declaration order.
	Categories []CategoryTick

	// Scheduled is category-major, then lane-visit order.
	Scheduled []ScheduledItem

	// Allocation is the raw mass split for this tick.
	Allocation alloc.Allocation

	// Efficacy scores how evenly pulled weight spread over the categories.
	Efficacy alloc.Efficacy
}

// Capacities returns capacity by category name.
func (r *TickResult) Capacities() map[string]float64 {
	out := make(map[string]float64, len(r.Categories))
	for _, c := range r.Categories {
		out[c.Name] = c.Capacity
	}
	return out
}

// Backlog returns remaining queue length by category name.
func (r *TickResult) Backlog() map[string]int {
	out := make(map[string]int, len(r.Categories))
	for _, c := range r.Categories {
		out[c.Name] = c.Backlog
	}
	return out
}

// Category returns the named category's tick view.
func (r *TickResult) Category(name string) (CategoryTick, bool) {
	for _, c := range r.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return CategoryTick{}, false
}

// ScheduledFor returns the items dequeued from one category, in order.
func (r *TickResult) ScheduledFor(category string) []ScheduledItem {
	var out []ScheduledItem
	for _, s := range r.Scheduled {
		if s.Category == category {
			out = append(out, s)
		}
	}
	return out
}

// TotalBacklog sums the backlog over all categories.
func (r *TickResult) TotalBacklog() int {
	n := 0
	for _, c := range r.Categories {
		n += c.Backlog
	}
	return n
}

// PulledWeights returns pulled weight per category, in declaration order.
func (r *TickResult) PulledWeights() []float64 {
	out := make([]float64, len(r.Categories))
	for i, c := range r.Categories {
		out[i] = c.Pulled
	}
	return out
}

// TotalPulled sums pulled weight over all categories.
func (r *TickResult) TotalPulled() float64 {
	s := 0.0
	for _, c := range r.Categories {
		s += c.Pulled
	}
	return s
}
