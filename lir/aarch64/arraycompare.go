// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package aarch64

import (
	"github.com/lewurm/opal/internal/a64"
	"github.com/lewurm/opal/lir"
)

// LowerArrayCompare appends code to s that compares two
// arrays lexicographically, writing a negative, zero or
// positive value to the result register. Lengths are given in
// bytes; for a char array the element count is half its byte
// length. When the constructor swapped a char/byte comparison
// into canonical byte-first order, the emitted code negates
// the result to preserve the caller's comparison order.
//
// If the arrays are equal up to the shorter length, the
// result is the difference of their element counts.
func LowerArrayCompare(s *Stream, op *lir.ArrayCompare, alloc lir.Allocation, tuning Tuning) error {
	if err := lir.CheckAllocation(op, alloc); err != nil {
		return err
	}
	if err := tuning.Validate(); err != nil {
		return err
	}

	c := &compareLowering{
		Stream: s,
		op:     op,
		alloc:  alloc,
	}

	result := op.Result(alloc)
	length1 := op.Length1(alloc)
	length2 := op.Length2(alloc)

	temps := op.Temps(alloc)
	array1 := temps[0]
	array2 := temps[1]
	length := temps[2]

	breakLabel := s.Label("break")
	equalUpToLength := s.Label("equal_up_to_length")
	simdImpl := s.Label("simd_impl")

	s.AddImm(64, array1, op.Array1(alloc), op.BaseOffset1)
	s.AddImm(64, array2, op.Array2(alloc), op.BaseOffset2)
	s.Prfm(array1)
	s.Prfm(array2)

	// Lengths arrive in bytes; reduce char lengths to element
	// counts before taking the minimum.
	if op.Kind2 == lir.KindChar {
		s.Lsr(64, length2, length2, 1)
	}
	if op.Kind1 == lir.KindChar {
		s.Lsr(64, length1, length1, 1)
	}

	s.Cmp(32, length1, length2)
	s.Csel(32, length, length1, length2, a64.LT)

	// One of the arrays is empty.
	s.Cbz(64, length, equalUpToLength)

	// Back to the shared byte length, measured in the wider
	// array's encoding.
	if op.Kind2 == lir.KindChar {
		s.Lsl(64, length, length, 1)
	}

	threshold := tuning.SIMDThreshold
	if threshold < minSIMDThreshold {
		threshold = minSIMDThreshold
	}
	if tuning.UseSIMD {
		// temps[3] is dead until either path assigns it.
		s.CmpValue(64, length, temps[3], threshold)
		s.BCond(a64.GE, simdImpl)
	}

	c.scalarCompare(equalUpToLength, breakLabel)
	s.B(breakLabel)

	s.Bind(simdImpl)
	if tuning.UseSIMD {
		c.simdCompare(equalUpToLength)
		s.B(breakLabel)
	}

	// Equal up to the shorter length: the difference of the
	// element counts decides.
	s.Bind(equalUpToLength)
	if op.Swapped {
		s.Sub(32, result, length2, length1)
	} else {
		s.Sub(32, result, length1, length2)
	}

	s.Bind(breakLabel)

	if names := s.Unbound(); len(names) != 0 {
		panic("unbound labels: " + names[0])
	}

	return nil
}

type compareLowering struct {
	*Stream
	op    *lir.ArrayCompare
	alloc lir.Allocation
}

func (c *compareLowering) mixed() bool { return c.op.Kind1 != c.op.Kind2 }

// elementBits is the element size of the wider array, which
// sets the granularity both paths compare at.
func (c *compareLowering) elementBits() int {
	if c.op.Kind1 == lir.KindByte && c.op.Kind2 == lir.KindByte {
		return 8
	}
	return 16
}

// scalarCompare emits the element-at-a-time loop. Mixed
// encodings load one byte from the first array and compare it
// against a halfword from the second, widening implicitly via
// the zero-extending loads.
func (c *compareLowering) scalarCompare(equalUpToLength, breakLabel *Label) {
	result := c.op.Result(c.alloc)
	temps := c.op.Temps(c.alloc)
	array1 := temps[0]
	array2 := temps[1]
	byteLength := temps[2]
	temp := temps[3]
	remainingBytes := temps[4]

	searchLoop := c.Label("search_loop")

	elementBits := c.elementBits()
	elementBytes := int64(elementBits / 8)

	c.Mov(64, remainingBytes, byteLength)

	c.Align(4)
	c.Bind(searchLoop)
	if c.mixed() {
		c.LdrPost(8, temp, array1, 1)
	} else {
		c.LdrPost(elementBits, temp, array1, elementBytes)
	}
	c.LdrPost(elementBits, result, array2, elementBytes)
	if c.op.Swapped {
		c.Subs(32, result, result, temp)
	} else {
		c.Subs(32, result, temp, result)
	}
	c.BCond(a64.NE, breakLabel)
	c.SubsImm(64, remainingBytes, remainingBytes, elementBytes)
	c.BCond(a64.EQ, equalUpToLength)
	c.B(searchLoop)
}

// simdCompare emits the chunked vector loop and the mismatch
// recovery sequence.
//
// Each iteration compares 32 bytes of the wider encoding. For
// mixed encodings only 16 bytes are read from the byte array
// and widened to halfwords with uxtl/uxtl2. A lane-wise cmeq,
// an AND of the two halves and an unsigned minimum reduction
// detect a mismatch: the minimum is zero iff some lane
// differed. The final, possibly overlapping chunk is handled
// by rewinding both addresses to the last full chunk.
//
// On mismatch the position is recovered without a second
// loop: the comparison masks are inverted, reduced to two
// bits per byte against the magic constant 0xc0300c03, and
// collapsed to one 64-bit word by two pairwise additions.
// Bit-reversing and counting leading zeros then yields twice
// the byte index of the first difference, biased by the
// post-incremented chunk.
func (c *compareLowering) simdCompare(equalUpToLength *Label) {
	result := c.op.Result(c.alloc)
	temps := c.op.Temps(c.alloc)
	array1 := temps[0]
	array2 := temps[1]
	byteLength := temps[2]
	endOfComparison := temps[3]
	lastChunkAddress1 := temps[4]
	lastChunkAddress2 := temps[5]

	vtemps := c.op.VectorTemps(c.alloc)
	array1Low := vtemps[0]
	array1High := vtemps[1]
	array2Low := vtemps[2]
	array2High := vtemps[3]
	vtemp := vtemps[4]

	simdLoop := c.Label("simd_loop")
	mismatchInChunk := c.Label("mismatch_in_chunk")

	elementBits := c.elementBits()

	// byteLength counts bytes of the second array's encoding;
	// for mixed encodings the first array covers the same
	// elements in half the bytes.
	if c.mixed() {
		c.AddShifted(64, endOfComparison, array1, byteLength, ShiftLSR, 1)
		c.SubImm(64, byteLength, byteLength, chunkSize)
		c.AddShifted(64, lastChunkAddress1, array1, byteLength, ShiftLSR, 1)
		c.Add(64, lastChunkAddress2, array2, byteLength)
	} else {
		c.Add(64, endOfComparison, array1, byteLength)
		c.SubImm(64, byteLength, byteLength, chunkSize)
		c.Add(64, lastChunkAddress1, array1, byteLength)
		c.Add(64, lastChunkAddress2, array2, byteLength)
	}

	c.Align(4)
	c.Bind(simdLoop)
	if c.mixed() {
		c.FldrPost(array1Low, array1, chunkSize/2)
		c.Uxtl2(array1High, array1Low)
		c.Uxtl(array1Low, array1Low)
	} else {
		c.FldpPost(array1Low, array1High, array1, chunkSize)
	}
	c.FldpPost(array2Low, array2High, array2, chunkSize)

	c.Cmeq(elementBits, array1Low, array1Low, array2Low)
	c.Cmeq(elementBits, array1High, array1High, array2High)
	c.VAnd(vtemp, array1Low, array1High)
	c.Uminv(elementBits, vtemp, vtemp)
	c.FcmpZero(vtemp)
	c.BCond(a64.EQ, mismatchInChunk)
	c.Cmp(64, array1, lastChunkAddress1)
	c.BCond(a64.LO, simdLoop)

	c.Cmp(64, array1, endOfComparison)
	c.BCond(a64.HS, equalUpToLength)
	c.Mov(64, array1, lastChunkAddress1)
	c.Mov(64, array2, lastChunkAddress2)
	c.B(simdLoop)

	c.Bind(mismatchInChunk)
	func() {
		magic, release := c.Scratch()
		defer release()
		c.MovImm(32, magic, 0xc0300c03)
		c.Dup(32, vtemp, magic)
	}()
	c.VBic(array1Low, vtemp, array1Low)
	c.VBic(array1High, vtemp, array1High)
	// Reduce 256 bits to 128, then 128 to 64.
	c.Addp(8, array1Low, array1Low, array1High)
	c.Addp(8, array1Low, array1Low, array1High)
	c.Umov(result, array1Low, 64, 0)
	c.Rbit(64, result, result)
	c.Clz(64, result, result)
	c.Asr(64, result, result, 1)
	// Undo the post-index of the mismatching chunk.
	c.SubImm(64, result, result, chunkSize)

	// result now holds the byte index of the first mismatch
	// relative to the walked addresses. Reload the differing
	// elements and subtract.
	if c.mixed() {
		// The byte array's index is in widened bytes.
		halved, release := c.Scratch()
		c.Asr(64, halved, result, 1)
		c.LdrReg(8, lastChunkAddress1, array1, halved)
		release()
	} else {
		c.LdrReg(elementBits, lastChunkAddress1, array1, result)
	}
	c.LdrReg(elementBits, lastChunkAddress2, array2, result)
	if c.op.Swapped {
		c.Sub(32, result, lastChunkAddress2, lastChunkAddress1)
	} else {
		c.Sub(32, result, lastChunkAddress1, lastChunkAddress2)
	}
}
