// Package oscillator holds the rotating phase that gates per-tick
// throughput.
//
// The phase is an angle in degrees, always in [0,360). Each tick advances it
// by IncrementDegrees*TickMultiple. The gate is a raised cosine of the angle;
// the modifier is the gate scaled by a micro-throttle and clamped below by a
// positive floor so throughput never drops to zero.
package oscillator

import (
	"errors"
	"fmt"
	"math"
)

// Reference constants.
const (
	DefaultIncrementDegrees = 45.0
	DefaultTickMultiple     = 0.0102
	DefaultFloor            = 0.05
)

// DefaultMicroThrottle is 1 - TickMultiple/2.
const DefaultMicroThrottle = 1 - DefaultTickMultiple*0.5

// ErrInvalidParams is wrapped by every validation failure from New.
var ErrInvalidParams = errors.New("invalid oscillator parameters")

// Params are the oscillator's construction-time constants.
type Params struct {
	StartAngle       float64
	IncrementDegrees float64
	TickMultiple     float64
	MicroThrottle    float64
	Floor            float64
}

// DefaultParams returns the reference constants with a start angle of 0.
func DefaultParams() Params {
	return Params{
		IncrementDegrees: DefaultIncrementDegrees,
		TickMultiple:     DefaultTickMultiple,
		MicroThrottle:    DefaultMicroThrottle,
		Floor:            DefaultFloor,
	}
}

// Validate reports the first malformed parameter.
func (p Params) Validate() error {
	switch {
	case !finite(p.StartAngle):
		return fmt.Errorf("%w: start angle %v", ErrInvalidParams, p.StartAngle)
	case !finite(p.IncrementDegrees):
		return fmt.Errorf("%w: increment %v", ErrInvalidParams, p.IncrementDegrees)
	case !finite(p.TickMultiple) || p.TickMultiple < 0:
		return fmt.Errorf("%w: tick multiple %v", ErrInvalidParams, p.TickMultiple)
	case !finite(p.MicroThrottle) || p.MicroThrottle <= 0 || p.MicroThrottle >= 1:
		return fmt.Errorf("%w: micro-throttle %v must be in (0,1)", ErrInvalidParams, p.MicroThrottle)
	case !finite(p.Floor) || p.Floor <= 0 || p.Floor > 1:
		return fmt.Errorf("%w: floor %v must be in (0,1]", ErrInvalidParams, p.Floor)
	}
	return nil
}

// Oscillator is not safe for concurrent use; the engine owns it.
type Oscillator struct {
	params Params
	angle  float64
}

// New validates p and returns an oscillator at p.StartAngle (normalized).
func New(p Params) (*Oscillator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Oscillator{params: p, angle: normalize(p.StartAngle)}, nil
}

// Advance moves the phase forward by ticks and returns the new angle.
func (o *Oscillator) Advance(ticks int64) float64 {
	step := o.params.IncrementDegrees * float64(ticks) * o.params.TickMultiple
	o.angle = normalize(o.angle + step)
	return o.angle
}

// Angle returns the current phase in degrees.
func (o *Oscillator) Angle() float64 {
	return o.angle
}

// Modifier returns the rotation modifier for the current angle.
func (o *Oscillator) Modifier() float64 {
	return math.Max(o.params.Floor, Gate(o.angle)*o.params.MicroThrottle)
}

// Params returns the construction constants.
func (o *Oscillator) Params() Params {
	return o.params
}

// Gate is the raised cosine 0.5*(1+cos(angle)), in [0,1].
func Gate(angleDegrees float64) float64 {
	g := 0.5 * (1 + math.Cos(angleDegrees*math.Pi/180))
	return math.Min(1, math.Max(0, g))
}

// normalize maps any finite angle into [0,360).
func normalize(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	// math.Mod of a tiny negative can round back up to exactly 360.
	if a >= 360 {
		a = 0
	}
	return a
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
