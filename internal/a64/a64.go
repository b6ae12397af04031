// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package a64 contains structured metadata about the AArch64
// architecture: its registers and condition codes, with their
// instruction encodings.
package a64

import (
	"fmt"
)

// Condition is an AArch64 condition code, as
// used by conditional branches, CSEL, CSET and
// friends.
type Condition uint8

const (
	EQ Condition = 0b0000 // Equal.
	NE Condition = 0b0001 // Not equal.
	HS Condition = 0b0010 // Unsigned higher or same.
	LO Condition = 0b0011 // Unsigned lower.
	MI Condition = 0b0100 // Negative.
	PL Condition = 0b0101 // Positive or zero.
	VS Condition = 0b0110 // Overflow set.
	VC Condition = 0b0111 // Overflow clear.
	HI Condition = 0b1000 // Unsigned higher.
	LS Condition = 0b1001 // Unsigned lower or same.
	GE Condition = 0b1010 // Signed greater than or equal.
	LT Condition = 0b1011 // Signed less than.
	GT Condition = 0b1100 // Signed greater than.
	LE Condition = 0b1101 // Signed less than or equal.
	AL Condition = 0b1110 // Always.
)

// Invert returns the logical negation of the
// condition.
func (c Condition) Invert() Condition {
	if c == AL {
		panic("condition AL cannot be inverted")
	}

	// Conditions come in adjacent true/false pairs
	// that differ only in the lowest bit.
	return c ^ 1
}

func (c Condition) String() string {
	switch c {
	case EQ:
		return "eq"
	case NE:
		return "ne"
	case HS:
		return "hs"
	case LO:
		return "lo"
	case MI:
		return "mi"
	case PL:
		return "pl"
	case VS:
		return "vs"
	case VC:
		return "vc"
	case HI:
		return "hi"
	case LS:
		return "ls"
	case GE:
		return "ge"
	case LT:
		return "lt"
	case GT:
		return "gt"
	case LE:
		return "le"
	case AL:
		return "al"
	default:
		return fmt.Sprintf("Condition(%d)", c)
	}
}
