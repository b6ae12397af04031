// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package lir

import (
	"fmt"
)

// Kind is the element kind of an array operand.
type Kind uint8

const (
	_ Kind = iota
	KindByte
	KindChar
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
)

// Size returns the element size in bytes.
func (k Kind) Size() int {
	switch k {
	case KindByte:
		return 1
	case KindChar, KindShort:
		return 2
	case KindInt, KindFloat:
		return 4
	case KindLong, KindDouble:
		return 8
	default:
		panic(fmt.Sprintf("unknown element kind %s", k))
	}
}

// Log2Size returns log2 of the element size in bytes.
func (k Kind) Log2Size() int {
	switch s := k.Size(); s {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	default:
		panic(fmt.Sprintf("element kind %s has unexpected size %d", k, s))
	}
}

// IsFloat reports whether the kind is a floating-point
// kind. Bitwise equality over floating-point elements
// disagrees with numeric equality (NaN, signed zero), so
// the array comparisons reject these kinds.
func (k Kind) IsFloat() bool {
	return k == KindFloat || k == KindDouble
}

func (k Kind) String() string {
	switch k {
	case KindByte:
		return "byte"
	case KindChar:
		return "char"
	case KindShort:
		return "short"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}
