// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package stamp implements the abstract value descriptions
// ("stamps") attached to values in the SSA graph.
//
// A stamp describes the set of runtime values a graph value
// may take. Stamps form a lattice: Meet computes the greatest
// lower bound in precision across control-flow paths, and Join
// narrows a stamp against path-sensitive knowledge. Meeting two
// stamps of incompatible kinds yields the Illegal marker, which
// graph verification reports as an error; the lattice itself
// never fails.
package stamp

import (
	"fmt"
	"math"
)

// Stamp describes the possible runtime values of a graph value.
//
// Implementations are immutable; every operation returns a new
// (or shared) stamp.
type Stamp interface {
	// Meet returns the most precise stamp compatible with
	// both stamps. If the two describe incompatible kinds,
	// Meet returns Illegal.
	Meet(other Stamp) Stamp

	// Join narrows the stamp using the information in other.
	// The result is never less precise than the receiver.
	// Calling Join on incompatible stamps is a caller
	// contract violation and returns Illegal.
	Join(other Stamp) Stamp

	// IsCompatible reports whether both stamps describe the
	// same kind family.
	IsCompatible(other Stamp) bool

	String() string
}

// Illegal is the lattice's bottom marker. It is produced when
// incompatible stamps meet and is consumed by graph verification.
var Illegal Stamp = illegal{}

type illegal struct{}

func (illegal) Meet(Stamp) Stamp          { return Illegal }
func (illegal) Join(Stamp) Stamp          { return Illegal }
func (illegal) IsCompatible(o Stamp) bool { return false }
func (illegal) String() string            { return "illegal" }

// IsIllegal reports whether s is the bottom marker.
func IsIllegal(s Stamp) bool {
	_, ok := s.(illegal)
	return ok
}

// Int describes a fixed-width two's-complement integer with a
// known inclusive value range.
type Int struct {
	Bits   uint8 // 8, 16, 32, or 64.
	Lo, Hi int64
}

// IntOf returns the unrestricted stamp for an integer of the
// given width.
func IntOf(bits uint8) Int {
	switch bits {
	case 8, 16, 32, 64:
	default:
		panic(fmt.Sprintf("stamp: invalid integer width %d", bits))
	}

	var lo, hi int64
	if bits == 64 {
		lo, hi = math.MinInt64, math.MaxInt64
	} else {
		hi = int64(1)<<(bits-1) - 1
		lo = -hi - 1
	}

	return Int{Bits: bits, Lo: lo, Hi: hi}
}

// IntConst returns the stamp of a constant integer of the given
// width.
func IntConst(bits uint8, v int64) Int {
	s := IntOf(bits)
	s.Lo = v
	s.Hi = v
	return s
}

func (s Int) Meet(other Stamp) Stamp {
	o, ok := other.(Int)
	if !ok || o.Bits != s.Bits {
		return Illegal
	}

	return Int{Bits: s.Bits, Lo: min64(s.Lo, o.Lo), Hi: max64(s.Hi, o.Hi)}
}

func (s Int) Join(other Stamp) Stamp {
	o, ok := other.(Int)
	if !ok || o.Bits != s.Bits {
		return Illegal
	}

	return Int{Bits: s.Bits, Lo: max64(s.Lo, o.Lo), Hi: min64(s.Hi, o.Hi)}
}

func (s Int) IsCompatible(other Stamp) bool {
	o, ok := other.(Int)
	return ok && o.Bits == s.Bits
}

// Empty reports whether no value satisfies the stamp, which
// arises when joining disjoint ranges on mutually exclusive
// paths.
func (s Int) Empty() bool { return s.Lo > s.Hi }

func (s Int) String() string {
	if s.Empty() {
		return fmt.Sprintf("i%d empty", s.Bits)
	}

	full := IntOf(s.Bits)
	if s.Lo == full.Lo && s.Hi == full.Hi {
		return fmt.Sprintf("i%d", s.Bits)
	}

	return fmt.Sprintf("i%d [%d, %d]", s.Bits, s.Lo, s.Hi)
}

// Nullability is the three-element sub-lattice tracked for
// pointer stamps. AlwaysNull and NonNull are both more precise
// than MaybeNull and mutually incompatible except through Meet,
// which yields MaybeNull when they disagree.
type Nullability uint8

const (
	MaybeNull Nullability = iota
	NonNull
	AlwaysNull
)

var nullabilityString = [...]string{
	MaybeNull:  "maybe-null",
	NonNull:    "non-null",
	AlwaysNull: "always-null",
}

func (n Nullability) String() string { return nullabilityString[n] }

// meet returns the greatest lower bound in precision.
func (n Nullability) meet(o Nullability) Nullability {
	if n == o {
		return n
	}

	return MaybeNull
}

// join narrows. Joining AlwaysNull with NonNull is a
// contradiction and is reported by the caller.
func (n Nullability) join(o Nullability) (Nullability, bool) {
	switch {
	case n == o:
		return n, true
	case n == MaybeNull:
		return o, true
	case o == MaybeNull:
		return n, true
	default:
		return MaybeNull, false
	}
}

// Pointer describes a pointer-like value, tracking whether it
// can be null.
type Pointer struct {
	Null Nullability
}

// PointerOf returns a pointer stamp with the given nullability.
func PointerOf(null Nullability) Pointer { return Pointer{Null: null} }

func (s Pointer) Meet(other Stamp) Stamp {
	o, ok := other.(Pointer)
	if !ok {
		return Illegal
	}

	return Pointer{Null: s.Null.meet(o.Null)}
}

func (s Pointer) Join(other Stamp) Stamp {
	o, ok := other.(Pointer)
	if !ok {
		return Illegal
	}

	null, ok := s.Null.join(o.Null)
	if !ok {
		// Contradictory nullability on mutually exclusive
		// paths: no value satisfies the result.
		return Illegal
	}

	return Pointer{Null: null}
}

func (s Pointer) IsCompatible(other Stamp) bool {
	_, ok := other.(Pointer)
	return ok
}

// AsNonNull returns the non-null variant of the stamp.
func (s Pointer) AsNonNull() Pointer { return Pointer{Null: NonNull} }

// NonNull reports whether the stamp proves the value is never
// null.
func (s Pointer) IsNonNull() bool { return s.Null == NonNull }

// IsAlwaysNull reports whether the stamp proves the value is
// always null.
func (s Pointer) IsAlwaysNull() bool { return s.Null == AlwaysNull }

func (s Pointer) String() string {
	return "ptr " + s.Null.String()
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
