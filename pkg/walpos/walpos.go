// Package walpos implements parsing and comparison of PostgreSQL-style
// write-ahead-log positions, printed as two hex segments separated by a
// slash (e.g. "0/16B3748").
package walpos

import (
	"fmt"
	"regexp"
	"strconv"
)

var validForm = regexp.MustCompile(`^[0-9A-Fa-f]+/[0-9A-Fa-f]+$`)

// Position is an opaque, totally-ordered WAL location. The zero value
// represents "no position observed yet" and must never be treated as a
// valid baseline.
type Position struct {
	hi, lo uint32
	valid  bool
}

// Parse decodes a "<hex>/<hex>" string into a Position. It rejects any
// value that doesn't match the fixed grammar, including the unparsed
// forms a malfunctioning peer might publish.
func Parse(s string) (Position, error) {
	if !validForm.MatchString(s) {
		return Position{}, fmt.Errorf("walpos: malformed position %q", s)
	}
	var hiStr, loStr string
	for i, r := range s {
		if r == '/' {
			hiStr, loStr = s[:i], s[i+1:]
			break
		}
	}
	hi, err := strconv.ParseUint(hiStr, 16, 32)
	if err != nil {
		return Position{}, fmt.Errorf("walpos: bad high segment %q: %w", hiStr, err)
	}
	lo, err := strconv.ParseUint(loStr, 16, 32)
	if err != nil {
		return Position{}, fmt.Errorf("walpos: bad low segment %q: %w", loStr, err)
	}
	return Position{hi: uint32(hi), lo: uint32(lo), valid: true}, nil
}

// Valid reports whether this Position was ever successfully parsed.
func (p Position) Valid() bool { return p.valid }

// String reproduces the unpadded "<hex>/<hex>" form.
func (p Position) String() string {
	return fmt.Sprintf("%X/%X", p.hi, p.lo)
}

// value collapses the two segments into a single 64-bit ordinal for
// comparison and subtraction (hi<<32 | lo), mirroring how pg_lsn values
// are ordered internally.
func (p Position) value() uint64 {
	return uint64(p.hi)<<32 | uint64(p.lo)
}

// Diff returns the non-negative byte distance between two positions,
// regardless of which one is larger.
func (p Position) Diff(other Position) uint64 {
	a, b := p.value(), other.value()
	if a > b {
		return a - b
	}
	return b - a
}

// Max returns whichever of p and other is the larger position. An invalid
// Position always loses to a valid one.
func Max(p, other Position) Position {
	if !p.valid {
		return other
	}
	if !other.valid {
		return p
	}
	if other.value() > p.value() {
		return other
	}
	return p
}
