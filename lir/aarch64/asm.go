// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package aarch64

import (
	"fmt"
	"math"

	"github.com/lewurm/opal/internal/a64"
)

// The emitter methods append one instruction each, checking
// the operand forms the encoder can represent. Size is the
// operand size in bits and must be 32 or 64 for integer
// operations.

func checkSize(size int) {
	if size != 32 && size != 64 {
		panic(fmt.Sprintf("unexpected operand size %d", size))
	}
}

func checkGP(regs ...*a64.Register) {
	for _, reg := range regs {
		if reg.Type != a64.TypeGeneralPurpose && reg.Type != a64.TypeZero {
			panic(fmt.Sprintf("register %s is not general purpose", reg))
		}
	}
}

func checkVec(regs ...*a64.Register) {
	for _, reg := range regs {
		if reg.Type != a64.TypeVector {
			panic(fmt.Sprintf("register %s is not a vector register", reg))
		}
	}
}

// Add emits rd = rn + rm.
func (s *Stream) Add(size int, rd, rn, rm *a64.Register) {
	checkSize(size)
	checkGP(rd, rn, rm)
	s.append(Inst{Op: OpAddReg, Size: size, Rd: rd, Rn: rn, Rm: rm})
}

// AddImm emits rd = rn + imm. A negative immediate is encoded
// as a subtraction.
func (s *Stream) AddImm(size int, rd, rn *a64.Register, imm int64) {
	checkSize(size)
	checkGP(rd, rn)
	mag := imm
	if mag < 0 {
		mag = -mag
	}
	if mag >= 1<<12 {
		panic(fmt.Sprintf("immediate %d does not fit in an add", imm))
	}
	s.append(Inst{Op: OpAddImm, Size: size, Rd: rd, Rn: rn, Imm: imm})
}

// AddShifted emits rd = rn + (rm SHIFT amount).
func (s *Stream) AddShifted(size int, rd, rn, rm *a64.Register, shift ShiftType, amount int64) {
	checkSize(size)
	checkGP(rd, rn, rm)
	s.append(Inst{Op: OpAddShift, Size: size, Rd: rd, Rn: rn, Rm: rm, Shift: shift, Imm: amount})
}

// Sub emits rd = rn - rm.
func (s *Stream) Sub(size int, rd, rn, rm *a64.Register) {
	checkSize(size)
	checkGP(rd, rn, rm)
	s.append(Inst{Op: OpSubReg, Size: size, Rd: rd, Rn: rn, Rm: rm})
}

// SubImm emits rd = rn - imm.
func (s *Stream) SubImm(size int, rd, rn *a64.Register, imm int64) {
	s.AddImm(size, rd, rn, -imm)
}

// Subs emits rd = rn - rm, setting the condition flags.
func (s *Stream) Subs(size int, rd, rn, rm *a64.Register) {
	checkSize(size)
	checkGP(rd, rn, rm)
	s.append(Inst{Op: OpSubsReg, Size: size, Rd: rd, Rn: rn, Rm: rm})
}

// SubsImm emits rd = rn - imm, setting the condition flags.
func (s *Stream) SubsImm(size int, rd, rn *a64.Register, imm int64) {
	checkSize(size)
	checkGP(rd, rn)
	if imm < 0 || imm >= 1<<12 {
		panic(fmt.Sprintf("immediate %d does not fit in a subs", imm))
	}
	s.append(Inst{Op: OpSubsImm, Size: size, Rd: rd, Rn: rn, Imm: imm})
}

// Cmp emits a register comparison, setting the condition
// flags.
func (s *Stream) Cmp(size int, rn, rm *a64.Register) {
	s.Subs(size, a64.XZR, rn, rm)
}

// CmpImm emits an immediate comparison, setting the condition
// flags.
func (s *Stream) CmpImm(size int, rn *a64.Register, imm int64) {
	s.SubsImm(size, a64.XZR, rn, imm)
}

// CmpValue emits a comparison of rn against an arbitrary
// non-negative value. Values that fit a compare immediate use
// one instruction; larger values are materialized in tmp
// first. A value beyond the range of a size-bit comparison is
// clamped to the largest signed value of that width, which
// orders the same against every representable rn.
func (s *Stream) CmpValue(size int, rn, tmp *a64.Register, value int64) {
	checkSize(size)
	if value < 0 {
		panic(fmt.Sprintf("cannot compare against negative value %d", value))
	}
	if size == 32 && value > math.MaxInt32 {
		value = math.MaxInt32
	}

	if value < 1<<12 {
		s.CmpImm(size, rn, value)
		return
	}

	s.MovImm(size, tmp, uint64(value))
	s.Cmp(size, rn, tmp)
}

// And emits rd = rn & imm. The immediate must be encodable as
// a bitmask immediate.
func (s *Stream) And(size int, rd, rn *a64.Register, imm int64) {
	checkSize(size)
	checkGP(rd, rn)
	if _, ok := encodeBitmask(uint64(imm), size); !ok {
		panic(fmt.Sprintf("immediate %#x is not a valid bitmask", imm))
	}
	s.append(Inst{Op: OpAndImm, Size: size, Rd: rd, Rn: rn, Imm: imm})
}

// Ands emits rd = rn & imm, setting the condition flags.
func (s *Stream) Ands(size int, rd, rn *a64.Register, imm int64) {
	checkSize(size)
	checkGP(rd, rn)
	if _, ok := encodeBitmask(uint64(imm), size); !ok {
		panic(fmt.Sprintf("immediate %#x is not a valid bitmask", imm))
	}
	s.append(Inst{Op: OpAndsImm, Size: size, Rd: rd, Rn: rn, Imm: imm})
}

// Tst emits a bit test against an immediate, setting the
// condition flags.
func (s *Stream) Tst(size int, rn *a64.Register, imm int64) {
	s.Ands(size, a64.XZR, rn, imm)
}

// Bic emits rd = rn &^ imm.
func (s *Stream) Bic(size int, rd, rn *a64.Register, imm int64) {
	mask := int64(sizeMask(size))
	s.And(size, rd, rn, ^imm&mask)
}

// Eor emits rd = rn ^ rm.
func (s *Stream) Eor(size int, rd, rn, rm *a64.Register) {
	checkSize(size)
	checkGP(rd, rn, rm)
	s.append(Inst{Op: OpEorReg, Size: size, Rd: rd, Rn: rn, Rm: rm})
}

// Orr emits rd = rn | rm.
func (s *Stream) Orr(size int, rd, rn, rm *a64.Register) {
	checkSize(size)
	checkGP(rd, rn, rm)
	s.append(Inst{Op: OpOrrReg, Size: size, Rd: rd, Rn: rn, Rm: rm})
}

// Mov emits a register move.
func (s *Stream) Mov(size int, rd, rm *a64.Register) {
	s.Orr(size, rd, a64.XZR, rm)
}

// MovImm materialises a constant, using one movz and as many
// movk instructions as the constant needs.
func (s *Stream) MovImm(size int, rd *a64.Register, imm uint64) {
	checkSize(size)
	checkGP(rd)
	imm &= sizeMask(size)

	first := true
	for hw := 0; hw < size/16; hw++ {
		chunk := (imm >> (16 * hw)) & 0xffff
		if chunk == 0 {
			continue
		}
		op := OpMovk
		if first {
			op = OpMovz
			first = false
		}
		s.append(Inst{Op: op, Size: size, Rd: rd, Imm: int64(hw)<<16 | int64(chunk)})
	}
	if first {
		s.append(Inst{Op: OpMovz, Size: size, Rd: rd, Imm: 0})
	}
}

// Lsl emits rd = rn << amount.
func (s *Stream) Lsl(size int, rd, rn *a64.Register, amount int64) {
	checkSize(size)
	checkGP(rd, rn)
	s.append(Inst{Op: OpLslImm, Size: size, Rd: rd, Rn: rn, Imm: amount})
}

// Lsr emits rd = rn >> amount, unsigned.
func (s *Stream) Lsr(size int, rd, rn *a64.Register, amount int64) {
	checkSize(size)
	checkGP(rd, rn)
	s.append(Inst{Op: OpLsrImm, Size: size, Rd: rd, Rn: rn, Imm: amount})
}

// Asr emits rd = rn >> amount, signed.
func (s *Stream) Asr(size int, rd, rn *a64.Register, amount int64) {
	checkSize(size)
	checkGP(rd, rn)
	s.append(Inst{Op: OpAsrImm, Size: size, Rd: rd, Rn: rn, Imm: amount})
}

// Csel emits rd = cond ? rn : rm.
func (s *Stream) Csel(size int, rd, rn, rm *a64.Register, cond a64.Condition) {
	checkSize(size)
	checkGP(rd, rn, rm)
	s.append(Inst{Op: OpCsel, Size: size, Rd: rd, Rn: rn, Rm: rm, Cond: cond})
}

// Cset emits rd = cond ? 1 : 0.
func (s *Stream) Cset(size int, rd *a64.Register, cond a64.Condition) {
	checkSize(size)
	checkGP(rd)
	s.append(Inst{Op: OpCset, Size: size, Rd: rd, Cond: cond})
}

// Clz emits rd = leading-zero count of rn.
func (s *Stream) Clz(size int, rd, rn *a64.Register) {
	checkSize(size)
	checkGP(rd, rn)
	s.append(Inst{Op: OpClz, Size: size, Rd: rd, Rn: rn})
}

// Rbit emits rd = bit-reversed rn.
func (s *Stream) Rbit(size int, rd, rn *a64.Register) {
	checkSize(size)
	checkGP(rd, rn)
	s.append(Inst{Op: OpRbit, Size: size, Rd: rd, Rn: rn})
}

// Ldr emits a load of size bits from [rn + imm], zero
// extending into rt.
func (s *Stream) Ldr(size int, rt, rn *a64.Register, imm int64) {
	checkGP(rt, rn)
	s.append(Inst{Op: OpLdrImm, Size: size, Rd: rt, Rn: rn, Imm: imm})
}

// LdrPost emits a post-indexed load of size bits from [rn],
// then rn += imm.
func (s *Stream) LdrPost(size int, rt, rn *a64.Register, imm int64) {
	checkGP(rt, rn)
	s.append(Inst{Op: OpLdrPost, Size: size, Rd: rt, Rn: rn, Imm: imm})
}

// LdrReg emits a load of size bits from [rn + rm].
func (s *Stream) LdrReg(size int, rt, rn, rm *a64.Register) {
	checkGP(rt, rn, rm)
	s.append(Inst{Op: OpLdrReg, Size: size, Rd: rt, Rn: rn, Rm: rm})
}

// Prfm emits a streaming prefetch of [rn].
func (s *Stream) Prfm(rn *a64.Register) {
	checkGP(rn)
	s.append(Inst{Op: OpPrfm, Rn: rn})
}

// B emits an unconditional branch.
func (s *Stream) B(label *Label) {
	s.append(Inst{Op: OpB, Label: label})
}

// BCond emits a conditional branch.
func (s *Stream) BCond(cond a64.Condition, label *Label) {
	s.append(Inst{Op: OpBCond, Cond: cond, Label: label})
}

// Cbz emits a branch taken if rt is zero.
func (s *Stream) Cbz(size int, rt *a64.Register, label *Label) {
	checkSize(size)
	checkGP(rt)
	s.append(Inst{Op: OpCbz, Size: size, Rd: rt, Label: label})
}

// Cbnz emits a branch taken if rt is not zero.
func (s *Stream) Cbnz(size int, rt *a64.Register, label *Label) {
	checkSize(size)
	checkGP(rt)
	s.append(Inst{Op: OpCbnz, Size: size, Rd: rt, Label: label})
}

// Align pads the stream to a 1<<pow2 byte boundary. Loop
// heads are aligned to 16 bytes.
func (s *Stream) Align(pow2 int64) {
	s.append(Inst{Op: OpAlign, Imm: pow2})
}

// FldrPost emits a 16-byte load into vt from [rn], then
// rn += imm.
func (s *Stream) FldrPost(vt, rn *a64.Register, imm int64) {
	checkVec(vt)
	checkGP(rn)
	s.append(Inst{Op: OpFldrPost, Size: 128, Rd: vt, Rn: rn, Imm: imm})
}

// FldpPost emits a 32-byte load into vt and vt2 from [rn],
// then rn += imm.
func (s *Stream) FldpPost(vt, vt2, rn *a64.Register, imm int64) {
	checkVec(vt, vt2)
	checkGP(rn)
	s.append(Inst{Op: OpFldpPost, Size: 128, Rd: vt, Rd2: vt2, Rn: rn, Imm: imm})
}

// Cmeq emits a per-lane equality comparison at the given
// element size in bits.
func (s *Stream) Cmeq(esize int, vd, vn, vm *a64.Register) {
	checkVec(vd, vn, vm)
	s.append(Inst{Op: OpCmeq, ESize: esize, Rd: vd, Rn: vn, Rm: vm})
}

// VAnd emits vd = vn & vm.
func (s *Stream) VAnd(vd, vn, vm *a64.Register) {
	checkVec(vd, vn, vm)
	s.append(Inst{Op: OpVAnd, ESize: 8, Rd: vd, Rn: vn, Rm: vm})
}

// VBic emits vd = vn &^ vm.
func (s *Stream) VBic(vd, vn, vm *a64.Register) {
	checkVec(vd, vn, vm)
	s.append(Inst{Op: OpVBic, ESize: 8, Rd: vd, Rn: vn, Rm: vm})
}

// Uminv emits an unsigned minimum reduction across the lanes
// of vn into lane 0 of vd.
func (s *Stream) Uminv(esize int, vd, vn *a64.Register) {
	checkVec(vd, vn)
	s.append(Inst{Op: OpUminv, ESize: esize, Rd: vd, Rn: vn})
}

// Addp emits a pairwise addition over the concatenated lanes
// of vn and vm.
func (s *Stream) Addp(esize int, vd, vn, vm *a64.Register) {
	checkVec(vd, vn, vm)
	s.append(Inst{Op: OpAddp, ESize: esize, Rd: vd, Rn: vn, Rm: vm})
}

// Dup emits a broadcast of rn into every lane of vd.
func (s *Stream) Dup(esize int, vd, rn *a64.Register) {
	checkVec(vd)
	checkGP(rn)
	s.append(Inst{Op: OpDupG, ESize: esize, Rd: vd, Rn: rn})
}

// Uxtl emits a zero extension of the low eight byte lanes of
// vn into halfword lanes of vd.
func (s *Stream) Uxtl(vd, vn *a64.Register) {
	checkVec(vd, vn)
	s.append(Inst{Op: OpUxtl, ESize: 8, Rd: vd, Rn: vn})
}

// Uxtl2 emits a zero extension of the high eight byte lanes
// of vn into halfword lanes of vd.
func (s *Stream) Uxtl2(vd, vn *a64.Register) {
	checkVec(vd, vn)
	s.append(Inst{Op: OpUxtl2, ESize: 8, Rd: vd, Rn: vn})
}

// Smov emits a sign-extending move from a lane of vn to rd.
func (s *Stream) Smov(rd, vn *a64.Register, esize, index int) {
	checkGP(rd)
	checkVec(vn)
	s.append(Inst{Op: OpSmov, ESize: esize, Rd: rd, Rn: vn, Index: index})
}

// Umov emits a move from a lane of vn to rd.
func (s *Stream) Umov(rd, vn *a64.Register, esize, index int) {
	checkGP(rd)
	checkVec(vn)
	s.append(Inst{Op: OpUmov, ESize: esize, Rd: rd, Rn: vn, Index: index})
}

// FcmpZero emits a comparison of the low 64 bits of vn, taken
// as a double, against +0.0.
func (s *Stream) FcmpZero(vn *a64.Register) {
	checkVec(vn)
	s.append(Inst{Op: OpFcmpZero, Rn: vn})
}
