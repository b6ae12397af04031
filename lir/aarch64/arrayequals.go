// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package aarch64

import (
	"github.com/lewurm/opal/internal/a64"
	"github.com/lewurm/opal/lir"
)

// Minimum array size in bytes for the vector path. The vector
// loop reads whole 32-byte chunks, so anything smaller must
// take the scalar loop regardless of tuning.
const minSIMDThreshold = 32

// LowerArrayEquals appends code to s that compares two arrays
// of the same length element-wise, writing 1 to the result
// register if they are equal and 0 otherwise. The allocation
// assigns a register to each of the descriptor's operands.
//
// The emitted code leaves the arrays in place and clobbers
// only the descriptor's temporaries, the reserved scratch
// registers and the result.
func LowerArrayEquals(s *Stream, op *lir.ArrayEquals, alloc lir.Allocation, tuning Tuning) error {
	if err := lir.CheckAllocation(op, alloc); err != nil {
		return err
	}
	if err := tuning.Validate(); err != nil {
		return err
	}

	e := &equalsLowering{
		Stream: s,
		op:     op,
		alloc:  alloc,
		scale:  int64(op.Kind.Size()),
	}

	hasMismatch, release1 := s.Scratch()
	defer release1()
	scratch, release2 := s.Scratch()
	defer release2()

	breakLabel := s.Label("break")
	scalarCompare := s.Label("scalar_compare")

	temps := op.Temps(alloc)
	byteLength := temps[0]

	threshold := tuning.SIMDThreshold
	if threshold < minSIMDThreshold {
		threshold = minSIMDThreshold
	}

	// Array length in bytes.
	s.Lsl(64, byteLength, op.Length(alloc), int64(op.Kind.Log2Size()))

	if tuning.UseSIMD {
		// temps[1] is dead until either path assigns it.
		s.CmpValue(32, op.Length(alloc), temps[1], threshold/e.scale)
		s.BCond(a64.LE, scalarCompare)

		e.simdCompare(byteLength, hasMismatch, scratch, breakLabel)
	}

	s.Bind(scalarCompare)
	e.scalarCompare(byteLength, hasMismatch, scratch, breakLabel)

	// hasMismatch is non-zero iff the arrays differ.
	s.Bind(breakLabel)
	s.Cmp(64, hasMismatch, a64.XZR)
	s.Cset(32, op.Result(alloc), a64.EQ)

	if names := s.Unbound(); len(names) != 0 {
		panic("unbound labels: " + names[0])
	}

	return nil
}

type equalsLowering struct {
	*Stream
	op    *lir.ArrayEquals
	alloc lir.Allocation
	scale int64
}

// loadArrayStart computes the addresses of the first elements
// of both arrays into array1 and array2.
func (e *equalsLowering) loadArrayStart(array1, array2 *a64.Register) {
	if offset1, ok := e.op.Offset1(e.alloc); ok {
		e.Add(64, array1, e.op.Array1(e.alloc), offset1)
		e.AddImm(64, array1, array1, e.op.BaseOffset1)
	} else {
		e.AddImm(64, array1, e.op.Array1(e.alloc), e.op.BaseOffset1)
	}
	if offset2, ok := e.op.Offset2(e.alloc); ok {
		e.Add(64, array2, e.op.Array2(e.alloc), offset2)
		e.AddImm(64, array2, array2, e.op.BaseOffset2)
	} else {
		e.AddImm(64, array2, e.op.Array2(e.alloc), e.op.BaseOffset2)
	}
}

func (e *equalsLowering) scalarCompare(byteLength, hasMismatch, scratch *a64.Register, breakLabel *Label) {
	temps := e.op.Temps(e.alloc)
	array1 := temps[1]
	array2 := temps[2]

	e.loadArrayStart(array1, array2)
	e.Mov(64, scratch, byteLength)

	e.wordCompare(scratch, array1, array2, byteLength, breakLabel, hasMismatch)
	e.tailCompares(scratch, array1, array2, breakLabel, hasMismatch)
}

// Word size used by the scalar loop and chunk size used by
// the vector loop, in bytes.
const (
	wordSize  = 8
	chunkSize = 32
)

// wordCompare emits the 8-bytes-at-a-time scalar loop. On
// entry tailCount holds the byte length; on exit it holds the
// residual byte count for tailCompares. The loop walks both
// arrays with a negative index counting up towards zero, so
// the index register doubles as the termination check.
func (e *equalsLowering) wordCompare(tailCount, array1, array2, length *a64.Register, breakLabel *Label, hasMismatch *a64.Register) {
	loop := e.Label("word_loop")
	compareTail := e.Label("compare_tail")

	temp := e.op.Temps(e.alloc)[3]

	e.And(64, tailCount, tailCount, wordSize-1)    // Tail count, in bytes.
	e.Ands(64, length, length, ^int64(wordSize-1)) // Word count, in bytes.
	e.BCond(a64.EQ, compareTail)

	e.Add(64, array1, array1, length)
	e.Add(64, array2, array2, length)
	e.Sub(64, length, a64.XZR, length)

	e.Align(4)
	e.Bind(loop)
	e.LdrReg(64, temp, array1, length)
	e.LdrReg(64, hasMismatch, array2, length)
	e.Eor(64, hasMismatch, temp, hasMismatch)
	e.Cbnz(64, hasMismatch, breakLabel)
	e.AddImm(64, length, length, wordSize)
	e.Cbnz(64, length, loop)

	e.Cbz(64, tailCount, breakLabel)

	// Compare the remaining bytes with an unaligned load
	// flush against the end of each array.
	e.AddImm(64, array1, array1, -wordSize)
	e.AddImm(64, array2, array2, -wordSize)
	e.LdrReg(64, temp, array1, tailCount)
	e.LdrReg(64, hasMismatch, array2, tailCount)
	e.Eor(64, hasMismatch, temp, hasMismatch)
	e.B(breakLabel)

	e.Bind(compareTail)
}

// tailCompares emits the 4/2/1-byte cascade for the up to
// seven bytes left over by wordCompare. Wider element kinds
// skip the steps their alignment rules out.
func (e *equalsLowering) tailCompares(tailCount, array1, array2 *a64.Register, breakLabel *Label, hasMismatch *a64.Register) {
	compare2Bytes := e.Label("compare_2_bytes")
	compare1Byte := e.Label("compare_1_byte")
	end := e.Label("tail_end")

	temp := e.op.Temps(e.alloc)[3]

	if e.scale <= 4 {
		e.Tst(32, tailCount, 4)
		e.BCond(a64.EQ, compare2Bytes)
		e.LdrPost(32, temp, array1, 4)
		e.LdrPost(32, hasMismatch, array2, 4)
		e.Eor(32, hasMismatch, temp, hasMismatch)
		e.Cbnz(32, hasMismatch, breakLabel)

		if e.scale <= 2 {
			e.Bind(compare2Bytes)
			e.Tst(32, tailCount, 2)
			e.BCond(a64.EQ, compare1Byte)
			e.LdrPost(16, temp, array1, 2)
			e.LdrPost(16, hasMismatch, array2, 2)
			e.Eor(32, hasMismatch, temp, hasMismatch)
			e.Cbnz(32, hasMismatch, breakLabel)

			if e.scale <= 1 {
				e.Bind(compare1Byte)
				e.Tst(32, tailCount, 1)
				e.BCond(a64.EQ, end)
				e.Ldr(8, temp, array1, 0)
				e.Ldr(8, hasMismatch, array2, 0)
				e.Eor(32, hasMismatch, temp, hasMismatch)
				e.Cbnz(32, hasMismatch, breakLabel)
			} else {
				e.Bind(compare1Byte)
			}
		} else {
			e.Bind(compare2Bytes)
			e.Bind(compare1Byte)
		}
	} else {
		e.Bind(compare2Bytes)
		e.Bind(compare1Byte)
	}
	e.Bind(end)
	e.Mov(64, hasMismatch, a64.XZR)
}

// simdCompare emits the vector path. It walks both arrays in
// 32-byte chunks, aligning reads of the first array to 32
// bytes after the first iteration, and finishes with one
// overlapping chunk flush against the end of the arrays. A
// mismatch anywhere leaves hasMismatch non-zero and branches
// to endLabel.
//
// Per-chunk mismatch detection compares lane-wise, ANDs the
// two comparison results, takes the unsigned minimum across
// the lanes and sign extends it: the chunks are identical iff
// that minimum is all ones, so adding 1 yields zero.
func (e *equalsLowering) simdCompare(byteLength, hasMismatch, scratch *a64.Register, endLabel *Label) {
	temps := e.op.Temps(e.alloc)
	array1Address := temps[1]
	array2Address := temps[2]
	refAddress1 := temps[3]
	endOfArray1 := scratch

	vtemps := e.op.VectorTemps(e.alloc)
	array1Part1 := vtemps[0]
	array1Part2 := vtemps[1]
	array2Part1 := vtemps[2]
	array2Part2 := vtemps[3]

	chunkHead := e.Label("chunk_head")
	chunkTail := e.Label("chunk_tail")
	processTail := e.Label("process_tail")

	e.loadArrayStart(array1Address, array2Address)

	// endOfArray1 points one past the last valid byte of the
	// first array; refAddress1 to the start of its last chunk.
	e.Add(64, endOfArray1, array1Address, byteLength)
	e.SubImm(64, refAddress1, endOfArray1, chunkSize)

	e.Align(4)
	e.Bind(chunkHead)
	e.Cmp(64, refAddress1, array1Address)
	e.BCond(a64.LS, processTail)
	e.Bind(chunkTail)

	e.FldpPost(array1Part1, array1Part2, array1Address, chunkSize)
	e.FldpPost(array2Part1, array2Part2, array2Address, chunkSize)
	e.Cmeq(64, array1Part1, array1Part1, array2Part1)
	e.Cmeq(64, array1Part2, array1Part2, array2Part2)
	e.VAnd(array1Part1, array1Part1, array1Part2)
	e.Uminv(32, array1Part1, array1Part1)
	e.Smov(hasMismatch, array1Part1, 32, 0)
	e.AddImm(64, hasMismatch, hasMismatch, 1)
	e.Cbnz(64, hasMismatch, endLabel)

	// Align reads of the first array to a 32-byte boundary,
	// stepping the second array back by the same amount. The
	// result register is dead until the epilogue and serves as
	// a third temporary here.
	array1Alignment := e.op.Result(e.alloc)
	e.And(64, array1Alignment, array1Address, chunkSize-1)
	e.Sub(64, array2Address, array2Address, array1Alignment)
	e.Bic(64, array1Address, array1Address, chunkSize-1)
	e.B(chunkHead)

	e.Align(4)
	e.Bind(processTail)
	e.Cmp(64, array1Address, endOfArray1)
	e.BCond(a64.HS, endLabel)

	// Adjust both addresses to compare the last 32 bytes. The
	// second array's address is rebuilt from its operand
	// because the loop above may have walked it out of step.
	e.SubImm(64, array1Address, endOfArray1, chunkSize)
	if offset2, ok := e.op.Offset2(e.alloc); ok {
		e.Add(64, array2Address, e.op.Array2(e.alloc), offset2)
		e.AddImm(64, array2Address, array2Address, e.op.BaseOffset2-chunkSize)
	} else {
		e.AddImm(64, array2Address, e.op.Array2(e.alloc), e.op.BaseOffset2-chunkSize)
	}
	e.Add(64, array2Address, array2Address, byteLength)

	// Keep the loop from rounding the final chunk's address
	// back down to a 32-byte boundary.
	e.Mov(64, endOfArray1, array1Address)
	e.B(chunkTail)
}
