// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package lir

import (
	"fmt"

	"github.com/lewurm/opal/internal/a64"
)

// ArrayEquals describes a bulk equality comparison of two
// arrays with a shared element kind. The base addresses and
// the element count are register operands; the constant base
// offsets place the first element relative to each base. The
// optional offset operands add a further per-call byte offset
// to each base.
//
// The arrays are Alive: the emitted code re-reads from them
// throughout, so they must not be clobbered. The result is a
// boolean (0 or 1) in a fresh Def register.
type ArrayEquals struct {
	Kind        Kind
	BaseOffset1 int64
	BaseOffset2 int64
	HasOffsets  bool

	operands []OperandSpec

	// Slot indices into the operand schema.
	iResult  int
	iArray1  int
	iOffset1 int
	iArray2  int
	iOffset2 int
	iLength  int
	iTemp    int // First of 4 consecutive GP temps.
	iVec     int // First of 4 consecutive vector temps.
}

var _ Descriptor = (*ArrayEquals)(nil)

// NewArrayEquals builds an array-equals descriptor.
//
// Floating-point element kinds are rejected: bitwise equality
// disagrees with numeric equality for NaN and signed zero, so
// requesting one is a defect in the caller.
func NewArrayEquals(kind Kind, baseOffset1, baseOffset2 int64, withOffsets bool) (*ArrayEquals, error) {
	switch kind {
	case KindByte, KindChar, KindShort, KindInt, KindLong:
	case KindFloat, KindDouble:
		return nil, fmt.Errorf("array equals: floating-point element kind %s is not supported", kind)
	default:
		return nil, fmt.Errorf("array equals: unknown element kind %s", kind)
	}

	op := &ArrayEquals{
		Kind:        kind,
		BaseOffset1: baseOffset1,
		BaseOffset2: baseOffset2,
		HasOffsets:  withOffsets,
	}

	add := func(name string, role Role, class RegClass) int {
		op.operands = append(op.operands, OperandSpec{Name: name, Role: role, Class: class})
		return len(op.operands) - 1
	}

	op.iResult = add("result", Def, ClassGP)
	op.iArray1 = add("array1", Alive, ClassGP)
	if withOffsets {
		op.iOffset1 = add("offset1", Alive, ClassGP)
	} else {
		op.iOffset1 = -1
	}
	op.iArray2 = add("array2", Alive, ClassGP)
	if withOffsets {
		op.iOffset2 = add("offset2", Alive, ClassGP)
	} else {
		op.iOffset2 = -1
	}
	op.iLength = add("length", Alive, ClassGP)

	op.iTemp = len(op.operands)
	for i := 1; i <= 4; i++ {
		add(fmt.Sprintf("tmp%d", i), Temp, ClassGP)
	}

	op.iVec = len(op.operands)
	for i := 1; i <= 4; i++ {
		add(fmt.Sprintf("vtmp%d", i), Temp, ClassVector)
	}

	return op, nil
}

func (op *ArrayEquals) Name() string            { return "array.equals." + op.Kind.String() }
func (op *ArrayEquals) Operands() []OperandSpec { return op.operands }

func (op *ArrayEquals) Result(a Allocation) *a64.Register { return a.Register(op.iResult) }
func (op *ArrayEquals) Array1(a Allocation) *a64.Register { return a.Register(op.iArray1) }
func (op *ArrayEquals) Array2(a Allocation) *a64.Register { return a.Register(op.iArray2) }
func (op *ArrayEquals) Length(a Allocation) *a64.Register { return a.Register(op.iLength) }

// Offset1 returns the first per-call offset register, if the
// descriptor carries offsets.
func (op *ArrayEquals) Offset1(a Allocation) (*a64.Register, bool) {
	if op.iOffset1 < 0 {
		return nil, false
	}
	return a.Register(op.iOffset1), true
}

// Offset2 returns the second per-call offset register, if the
// descriptor carries offsets.
func (op *ArrayEquals) Offset2(a Allocation) (*a64.Register, bool) {
	if op.iOffset2 < 0 {
		return nil, false
	}
	return a.Register(op.iOffset2), true
}

// Temps returns the four general-purpose scratch registers.
func (op *ArrayEquals) Temps(a Allocation) [4]*a64.Register {
	var regs [4]*a64.Register
	for i := range regs {
		regs[i] = a.Register(op.iTemp + i)
	}
	return regs
}

// VectorTemps returns the four vector scratch registers.
func (op *ArrayEquals) VectorTemps(a Allocation) [4]*a64.Register {
	var regs [4]*a64.Register
	for i := range regs {
		regs[i] = a.Register(op.iVec + i)
	}
	return regs
}

// ArrayCompare describes a lexicographic comparison of two
// arrays whose element kinds may differ between a narrow
// 1-byte and a wide 2-byte encoding. Lengths are given in
// bytes, one per array. The result is the signed difference
// of the first mismatching elements, or of the element counts
// when one array is a prefix of the other.
//
// The canonical operand order is narrow-before-wide: when the
// natural argument order is wide-then-narrow, the constructor
// swaps the inputs and records that the emitted result must
// be negated.
type ArrayCompare struct {
	Kind1       Kind // Element kind of (post-swap) array 1.
	Kind2       Kind // Element kind of (post-swap) array 2.
	BaseOffset1 int64
	BaseOffset2 int64
	Swapped     bool

	operands []OperandSpec

	iResult  int
	iArray1  int
	iArray2  int
	iLength1 int
	iLength2 int
	iTemp    int // First of 6 consecutive GP temps.
	iVec     int // First of 5 consecutive vector temps.
}

var _ Descriptor = (*ArrayCompare)(nil)

// NewArrayCompare builds an array-compare descriptor for the
// given element kinds, in the caller's natural argument
// order. Only the byte/char kind pair is supported.
func NewArrayCompare(kind1, kind2 Kind, baseOffset1, baseOffset2 int64) (*ArrayCompare, error) {
	valid := func(k Kind) bool { return k == KindByte || k == KindChar }
	if !valid(kind1) || !valid(kind2) {
		return nil, fmt.Errorf("array compare: unsupported element kind pair %s/%s", kind1, kind2)
	}

	op := &ArrayCompare{
		Kind1:       kind1,
		Kind2:       kind2,
		BaseOffset1: baseOffset1,
		BaseOffset2: baseOffset2,
	}

	// Canonicalize to narrow-before-wide.
	if kind1 == KindChar && kind2 == KindByte {
		op.Kind1, op.Kind2 = kind2, kind1
		op.BaseOffset1, op.BaseOffset2 = baseOffset2, baseOffset1
		op.Swapped = true
	}

	add := func(name string, role Role, class RegClass) int {
		op.operands = append(op.operands, OperandSpec{Name: name, Role: role, Class: class})
		return len(op.operands) - 1
	}

	op.iResult = add("result", Def, ClassGP)
	op.iArray1 = add("array1", Use, ClassGP)
	op.iArray2 = add("array2", Use, ClassGP)
	op.iLength1 = add("length1", Use, ClassGP)
	op.iLength2 = add("length2", Use, ClassGP)

	op.iTemp = len(op.operands)
	for i := 1; i <= 6; i++ {
		add(fmt.Sprintf("tmp%d", i), Temp, ClassGP)
	}

	op.iVec = len(op.operands)
	for i := 1; i <= 5; i++ {
		add(fmt.Sprintf("vtmp%d", i), Temp, ClassVector)
	}

	return op, nil
}

func (op *ArrayCompare) Name() string {
	return fmt.Sprintf("array.compare.%s.%s", op.Kind1, op.Kind2)
}

func (op *ArrayCompare) Operands() []OperandSpec { return op.operands }

func (op *ArrayCompare) Result(a Allocation) *a64.Register { return a.Register(op.iResult) }

// Array1 returns the base register holding the (post-swap)
// first array. The callers of a swapped descriptor must pass
// their natural second array in this slot.
func (op *ArrayCompare) Array1(a Allocation) *a64.Register  { return a.Register(op.iArray1) }
func (op *ArrayCompare) Array2(a Allocation) *a64.Register  { return a.Register(op.iArray2) }
func (op *ArrayCompare) Length1(a Allocation) *a64.Register { return a.Register(op.iLength1) }
func (op *ArrayCompare) Length2(a Allocation) *a64.Register { return a.Register(op.iLength2) }

// Temps returns the six general-purpose scratch registers.
func (op *ArrayCompare) Temps(a Allocation) [6]*a64.Register {
	var regs [6]*a64.Register
	for i := range regs {
		regs[i] = a.Register(op.iTemp + i)
	}
	return regs
}

// VectorTemps returns the five vector scratch registers.
func (op *ArrayCompare) VectorTemps(a Allocation) [5]*a64.Register {
	var regs [5]*a64.Register
	for i := range regs {
		regs[i] = a.Register(op.iVec + i)
	}
	return regs
}
