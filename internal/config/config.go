// Package config loads scheduler construction parameters from CUE, YAML or
// TOML files.
//
// Every format goes through the same two checks. Structural: the decoded
// config is unified with the embedded CUE schema (#Config), which owns types,
// ranges and defaults. Semantic: the config is used to construct an engine,
// so duplicate names, bias length and matrix shape surface as
// engine.ConfigurationError exactly as they would at runtime.
package config

import (
	"fmt"

	"github.com/roach88/quadlane/internal/alloc"
	"github.com/roach88/quadlane/internal/engine"
	"github.com/roach88/quadlane/internal/fingerprint"
	"github.com/roach88/quadlane/internal/ir"
	"github.com/roach88/quadlane/internal/oscillator"
)

// Config carries every construction-time parameter.
type Config struct {
	Categories       []CategoryConfig  `json:"categories" yaml:"categories" toml:"categories"`
	LanesPerCategory int               `json:"lanes_per_category" yaml:"lanes_per_category" toml:"lanes_per_category"`
	Ratio            float64           `json:"ratio" yaml:"ratio" toml:"ratio"`
	CapacityFloor    float64           `json:"capacity_floor" yaml:"capacity_floor" toml:"capacity_floor"`
	Bias             []float64         `json:"bias,omitempty" yaml:"bias,omitempty" toml:"bias,omitempty"`
	Residual         ResidualConfig    `json:"residual" yaml:"residual" toml:"residual"`
	Oscillator       OscillatorConfig  `json:"oscillator" yaml:"oscillator" toml:"oscillator"`
	Fingerprint      FingerprintConfig `json:"fingerprint" yaml:"fingerprint" toml:"fingerprint"`
}

// CategoryConfig declares one category.
type CategoryConfig struct {
	Name     string  `json:"name" yaml:"name" toml:"name"`
	Priority float64 `json:"priority" yaml:"priority" toml:"priority"`
}

// ResidualConfig selects the residual policy. Under "redistribute" at most
// one of Matrix and Preset may be set; with neither the residual returns to
// each category in proportion to its weight.
type ResidualConfig struct {
	Policy string      `json:"policy" yaml:"policy" toml:"policy"`
	Slots  int         `json:"slots" yaml:"slots" toml:"slots"`
	Matrix [][]float64 `json:"matrix,omitempty" yaml:"matrix,omitempty" toml:"matrix,omitempty"`
	Preset string      `json:"preset,omitempty" yaml:"preset,omitempty" toml:"preset,omitempty"`
}

// OscillatorConfig holds the rotation constants.
type OscillatorConfig struct {
	StartAngle    float64 `json:"start_angle" yaml:"start_angle" toml:"start_angle"`
	Increment     float64 `json:"increment" yaml:"increment" toml:"increment"`
	TickMultiple  float64 `json:"tick_multiple" yaml:"tick_multiple" toml:"tick_multiple"`
	MicroThrottle float64 `json:"micro_throttle" yaml:"micro_throttle" toml:"micro_throttle"`
	Floor         float64 `json:"floor" yaml:"floor" toml:"floor"`
}

// FingerprintConfig selects salt and encoding for tick fingerprints.
type FingerprintConfig struct {
	Salt     string `json:"salt" yaml:"salt" toml:"salt"`
	Encoding string `json:"encoding" yaml:"encoding" toml:"encoding"`
}

// Default returns the 4x8 reference topology with the schema defaults.
func Default() *Config {
	return &Config{
		Categories: []CategoryConfig{
			{Name: "Cost", Priority: 0.95},
			{Name: "Revenue", Priority: 1.25},
			{Name: "Overhead", Priority: 0.80},
			{Name: "Growth", Priority: 1.10},
		},
		LanesPerCategory: 8,
		Ratio:            alloc.DefaultRatio,
		CapacityFloor:    engine.DefaultCapacityFloor,
		Residual: ResidualConfig{
			Policy: alloc.ResidualOverflow.String(),
			Slots:  alloc.DefaultOverflowSlots,
		},
		Oscillator: OscillatorConfig{
			Increment:     oscillator.DefaultIncrementDegrees,
			TickMultiple:  oscillator.DefaultTickMultiple,
			MicroThrottle: oscillator.DefaultMicroThrottle,
			Floor:         oscillator.DefaultFloor,
		},
		Fingerprint: FingerprintConfig{
			Salt:     fingerprint.DefaultSalt,
			Encoding: fingerprint.EncodingHex.String(),
		},
	}
}

// CategorySpecs returns the engine's category declarations.
func (c *Config) CategorySpecs() []engine.CategorySpec {
	out := make([]engine.CategorySpec, len(c.Categories))
	for i, cat := range c.Categories {
		out[i] = engine.CategorySpec{Name: cat.Name, Priority: cat.Priority}
	}
	return out
}

// OscillatorParams returns the oscillator constants.
func (c *Config) OscillatorParams() oscillator.Params {
	return oscillator.Params{
		StartAngle:       c.Oscillator.StartAngle,
		IncrementDegrees: c.Oscillator.Increment,
		TickMultiple:     c.Oscillator.TickMultiple,
		MicroThrottle:    c.Oscillator.MicroThrottle,
		Floor:            c.Oscillator.Floor,
	}
}

// EngineOptions translates the config into engine options.
func (c *Config) EngineOptions() ([]engine.EngineOption, error) {
	policy, err := alloc.ParseResidualPolicy(c.Residual.Policy)
	if err != nil {
		return nil, engine.NewConfigurationError(engine.ErrCodeInvalidParameter, "residual.policy", "%v", err)
	}

	opts := []engine.EngineOption{
		engine.WithRatio(c.Ratio),
		engine.WithCapacityFloor(c.CapacityFloor),
		engine.WithOverflowSlots(c.Residual.Slots),
		engine.WithOscillator(c.OscillatorParams()),
	}
	if c.Bias != nil {
		opts = append(opts, engine.WithBias(c.Bias))
	}
	matrix, err := c.redistributionMatrix()
	if err != nil {
		return nil, err
	}
	if policy == alloc.ResidualRedistribute {
		opts = append(opts, engine.WithRedistribution(matrix))
	} else if matrix != nil {
		return nil, engine.NewConfigurationError(engine.ErrCodeInvalidMatrix, "residual",
			"matrix and preset require policy %q", alloc.ResidualRedistribute)
	}
	return opts, nil
}

// redistributionMatrix resolves the explicit matrix or the named preset.
func (c *Config) redistributionMatrix() ([][]float64, error) {
	if c.Residual.Preset == "" {
		return c.Residual.Matrix, nil
	}
	if c.Residual.Matrix != nil {
		return nil, engine.NewConfigurationError(engine.ErrCodeInvalidMatrix, "residual.preset",
			"preset %q conflicts with an explicit matrix", c.Residual.Preset)
	}
	m, err := alloc.PresetMatrix(c.Residual.Preset, len(c.Categories))
	if err != nil {
		return nil, engine.NewConfigurationError(engine.ErrCodeInvalidMatrix, "residual.preset", "%v", err)
	}
	return m, nil
}

// NewEngine builds an engine from the config. Extra options are applied
// after the config's own, so callers can add a logger or a start tick.
func (c *Config) NewEngine(extra ...engine.EngineOption) (*engine.Engine, error) {
	opts, err := c.EngineOptions()
	if err != nil {
		return nil, err
	}
	return engine.New(c.CategorySpecs(), c.LanesPerCategory, append(opts, extra...)...)
}

// Sealer returns the configured fingerprinter.
func (c *Config) Sealer() (fingerprint.Sealer, error) {
	enc, err := fingerprint.ParseEncoding(c.Fingerprint.Encoding)
	if err != nil {
		return fingerprint.Sealer{}, engine.NewConfigurationError(engine.ErrCodeInvalidParameter,
			"fingerprint.encoding", "%v", err)
	}
	return fingerprint.Sealer{Salt: c.Fingerprint.Salt, Encoding: enc}, nil
}

// Validate runs the semantic checks by constructing a throwaway engine.
func (c *Config) Validate() error {
	if _, err := c.NewEngine(); err != nil {
		return err
	}
	if _, err := c.Sealer(); err != nil {
		return err
	}
	return nil
}

// Digest identifies a config by content. Two configs that build identical
// engines have the same digest regardless of source format.
func (c *Config) Digest() (string, error) {
	cats := make(ir.IRArray, len(c.Categories))
	for i, cat := range c.Categories {
		cats[i] = ir.IRObject{
			"name":     ir.IRString(cat.Name),
			"priority": ir.Micro(cat.Priority),
		}
	}
	// A preset digests as the matrix it expands to.
	rows, err := c.redistributionMatrix()
	if err != nil {
		return "", err
	}
	matrix := make(ir.IRArray, len(rows))
	for i, row := range rows {
		matrix[i] = ir.Reals(row...)
	}

	v := ir.IRObject{
		"categories":         cats,
		"lanes_per_category": ir.IRInt(c.LanesPerCategory),
		"ratio":              ir.Micro(c.Ratio),
		"capacity_floor":     ir.Micro(c.CapacityFloor),
		"bias":               ir.Reals(c.Bias...),
		"residual": ir.IRObject{
			"policy": ir.IRString(c.Residual.Policy),
			"slots":  ir.IRInt(c.Residual.Slots),
			"matrix": matrix,
		},
		"oscillator": ir.IRObject{
			"start_angle":    ir.Micro(c.Oscillator.StartAngle),
			"increment":      ir.Micro(c.Oscillator.Increment),
			"tick_multiple":  ir.Micro(c.Oscillator.TickMultiple),
			"micro_throttle": ir.Micro(c.Oscillator.MicroThrottle),
			"floor":          ir.Micro(c.Oscillator.Floor),
		},
		"fingerprint": ir.IRObject{
			"salt":     ir.IRString(c.Fingerprint.Salt),
			"encoding": ir.IRString(c.Fingerprint.Encoding),
		},
	}
	d, err := ir.HexDigest(ir.DomainConfig, "", v)
	if err != nil {
		return "", fmt.Errorf("config digest: %w", err)
	}
	return d, nil
}
