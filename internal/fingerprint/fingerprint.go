// Package fingerprint derives a short audit checksum from a tick result.
//
// The fingerprint is a boundary concern: the scheduler never reads it, and
// any Fingerprinter can be swapped in without changing scheduling. It is a
// checksum for traceability, not an authentication tag.
//
// A tick is projected onto an ir.IRObject with reals as integer micro-units,
// serialized as canonical JSON, and hashed with SHA-256 under the
// ir.DomainTick domain and a salt. The digest is rendered as lowercase hex or
// through the 16-letter QUMA alphabet.
package fingerprint

import (
	"fmt"
	"strings"

	"github.com/roach88/quadlane/internal/engine"
	"github.com/roach88/quadlane/internal/ir"
)

// DefaultSalt is mixed into every digest unless overridden.
const DefaultSalt = "OCTUPQ"

// qumaAlphabet maps hex digit i to qumaAlphabet[i].
const qumaAlphabet = "QXMHAVERSOLIGTUN"

// Fingerprinter turns a tick result into a deterministic string.
type Fingerprinter interface {
	Fingerprint(r *engine.TickResult) (string, error)
}

// Encoding selects how the digest is rendered.
type Encoding int

const (
	// EncodingHex renders the digest as 64 lowercase hex characters.
	EncodingHex Encoding = iota
	// EncodingQuma renders each hex digit through the QUMA alphabet.
	EncodingQuma
)

// String returns the name used on the command line and in configs.
func (e Encoding) String() string {
	switch e {
	case EncodingHex:
		return "hex"
	case EncodingQuma:
		return "quma"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// ParseEncoding maps a name to an Encoding. The empty string is hex.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(s) {
	case "", "hex":
		return EncodingHex, nil
	case "quma":
		return EncodingQuma, nil
	default:
		return 0, fmt.Errorf("unknown fingerprint encoding %q (want hex or quma)", s)
	}
}

// Sealer is the default Fingerprinter.
type Sealer struct {
	Salt     string
	Encoding Encoding
}

// DefaultSealer returns a hex Sealer with DefaultSalt.
func DefaultSealer() Sealer {
	return Sealer{Salt: DefaultSalt, Encoding: EncodingHex}
}

// Fingerprint implements Fingerprinter.
func (s Sealer) Fingerprint(r *engine.TickResult) (string, error) {
	hex, err := ir.HexDigest(ir.DomainTick, s.Salt, TickValue(r))
	if err != nil {
		return "", fmt.Errorf("fingerprint tick %d: %w", r.TickIndex, err)
	}
	if s.Encoding == EncodingQuma {
		return Quma(hex), nil
	}
	return hex, nil
}

// Quma remaps a lowercase hex string through the QUMA alphabet.
// Characters outside [0-9a-f] pass through unchanged.
func Quma(hex string) string {
	var b strings.Builder
	b.Grow(len(hex))
	for _, c := range hex {
		switch {
		case c >= '0' && c <= '9':
			b.WriteByte(qumaAlphabet[c-'0'])
		case c >= 'a' && c <= 'f':
			b.WriteByte(qumaAlphabet[c-'a'+10])
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// TickValue is the canonical projection of a tick result.
//
// Every field that influences or reports a scheduling decision is included.
// Reals become integer micro-units so the canonical form stays float-free.
func TickValue(r *engine.TickResult) ir.IRObject {
	cats := make(ir.IRArray, len(r.Categories))
	for i, c := range r.Categories {
		cats[i] = ir.IRObject{
			"name":      ir.IRString(c.Name),
			"share":     ir.Micro(c.MassShare),
			"capacity":  ir.Micro(c.Capacity),
			"pulled":    ir.Micro(c.Pulled),
			"scheduled": ir.IRInt(c.Scheduled),
			"backlog":   ir.IRInt(c.Backlog),
		}
	}

	sched := make(ir.IRArray, len(r.Scheduled))
	for i, s := range r.Scheduled {
		sched[i] = ir.IRObject{
			"category": ir.IRString(s.Category),
			"lane":     ir.IRString(s.Lane),
			"item":     ir.IRString(s.Item.ID),
			"weight":   ir.Micro(s.Item.Weight),
		}
	}

	overflow := ir.IRArray{}
	if r.Allocation.Overflow != nil {
		overflow = ir.Reals(r.Allocation.Overflow...)
	}

	return ir.IRObject{
		"tick":       ir.IRInt(r.TickIndex),
		"angle":      ir.Micro(r.Angle),
		"modifier":   ir.Micro(r.RotationModifier),
		"categories": cats,
		"scheduled":  sched,
		"mass":       ir.Reals(r.Allocation.PerCategory...),
		"residual":   ir.Micro(r.Allocation.Residual),
		"overflow":   overflow,
	}
}
