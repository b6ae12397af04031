// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package aarch64

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/lewurm/opal/internal/a64"
)

const nop = 0xd503201f

// Encode assembles the stream into little-endian A64
// instruction words. All labels must be bound.
func Encode(s *Stream) ([]byte, error) {
	insts := s.Insts()

	// First pass: byte offset of each instruction, with
	// alignment pseudos resolved to padding.
	offsets := make([]int, len(insts)+1)
	pos := 0
	for i, inst := range insts {
		if inst.Op == OpAlign {
			align := 1 << inst.Imm
			pos = (pos + align - 1) &^ (align - 1)
			offsets[i] = pos
			continue
		}
		offsets[i] = pos
		pos += 4
	}
	offsets[len(insts)] = pos

	target := func(l *Label) (int, error) {
		if !l.Bound() {
			return 0, fmt.Errorf("label %s is unbound", l.name)
		}
		return offsets[l.index], nil
	}

	code := make([]byte, 0, pos)
	word := func(w uint32) {
		code = binary.LittleEndian.AppendUint32(code, w)
	}

	for i, inst := range insts {
		if inst.Op == OpAlign {
			for len(code) < offsets[i] {
				word(nop)
			}
			continue
		}

		w, err := encodeInst(inst, offsets[i], target)
		if err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, inst, err)
		}

		word(w)
	}

	return code, nil
}

// sf returns the width bit that selects between the 32 and
// 64-bit forms of a data processing instruction.
func sf(size int) uint32 {
	if size == 64 {
		return 1 << 31
	}
	return 0
}

func rd(r *a64.Register) uint32 { return uint32(r.GP()) }
func rn(r *a64.Register) uint32 { return uint32(r.GP()) << 5 }
func rm(r *a64.Register) uint32 { return uint32(r.GP()) << 16 }
func vd(r *a64.Register) uint32 { return uint32(r.Vec()) }
func vn(r *a64.Register) uint32 { return uint32(r.Vec()) << 5 }
func vm(r *a64.Register) uint32 { return uint32(r.Vec()) << 16 }

// esizeBits encodes a vector element size as the two-bit size
// field used throughout the SIMD instruction space.
func esizeBits(esize int) (uint32, error) {
	switch esize {
	case 8:
		return 0b00 << 22, nil
	case 16:
		return 0b01 << 22, nil
	case 32:
		return 0b10 << 22, nil
	case 64:
		return 0b11 << 22, nil
	default:
		return 0, fmt.Errorf("invalid element size %d", esize)
	}
}

// ldrSizeBits encodes a load size as the size field of the
// load/store instruction space.
func ldrSizeBits(size int) (uint32, error) {
	switch size {
	case 8:
		return 0b00 << 30, nil
	case 16:
		return 0b01 << 30, nil
	case 32:
		return 0b10 << 30, nil
	case 64:
		return 0b11 << 30, nil
	default:
		return 0, fmt.Errorf("invalid load size %d", size)
	}
}

func branchOffset(inst Inst, offset int, target func(*Label) (int, error), bitWidth int) (uint32, error) {
	to, err := target(inst.Label)
	if err != nil {
		return 0, err
	}

	delta := to - offset
	if delta%4 != 0 {
		return 0, fmt.Errorf("misaligned branch target %s", inst.Label)
	}

	words := int64(delta / 4)
	limit := int64(1) << (bitWidth - 1)
	if words < -limit || words >= limit {
		return 0, fmt.Errorf("branch target %s out of range", inst.Label)
	}

	return uint32(words) & (1<<bitWidth - 1), nil
}

func encodeInst(inst Inst, offset int, target func(*Label) (int, error)) (uint32, error) {
	switch inst.Op {
	case OpAddImm:
		imm := inst.Imm
		base := uint32(0x11000000) // add
		if imm < 0 {
			base = 0x51000000 // sub
			imm = -imm
		}
		if imm >= 1<<12 {
			return 0, fmt.Errorf("immediate %d out of range", inst.Imm)
		}
		return sf(inst.Size) | base | uint32(imm)<<10 | rn(inst.Rn) | rd(inst.Rd), nil
	case OpSubsImm:
		if inst.Imm < 0 || inst.Imm >= 1<<12 {
			return 0, fmt.Errorf("immediate %d out of range", inst.Imm)
		}
		return sf(inst.Size) | 0x71000000 | uint32(inst.Imm)<<10 | rn(inst.Rn) | rd(inst.Rd), nil
	case OpAddReg:
		return sf(inst.Size) | 0x0b000000 | rm(inst.Rm) | rn(inst.Rn) | rd(inst.Rd), nil
	case OpAddShift:
		return sf(inst.Size) | 0x0b000000 | uint32(inst.Shift)<<22 | rm(inst.Rm) | uint32(inst.Imm)<<10 | rn(inst.Rn) | rd(inst.Rd), nil
	case OpSubReg:
		return sf(inst.Size) | 0x4b000000 | rm(inst.Rm) | rn(inst.Rn) | rd(inst.Rd), nil
	case OpSubsReg:
		return sf(inst.Size) | 0x6b000000 | rm(inst.Rm) | rn(inst.Rn) | rd(inst.Rd), nil
	case OpAndImm, OpAndsImm:
		bitmask, ok := encodeBitmask(uint64(inst.Imm), inst.Size)
		if !ok {
			return 0, fmt.Errorf("immediate %#x is not a valid bitmask", inst.Imm)
		}
		base := uint32(0x12000000) // and
		if inst.Op == OpAndsImm {
			base = 0x72000000 // ands
		}
		return sf(inst.Size) | base | bitmask<<10 | rn(inst.Rn) | rd(inst.Rd), nil
	case OpEorReg:
		return sf(inst.Size) | 0x4a000000 | rm(inst.Rm) | rn(inst.Rn) | rd(inst.Rd), nil
	case OpOrrReg:
		return sf(inst.Size) | 0x2a000000 | rm(inst.Rm) | rn(inst.Rn) | rd(inst.Rd), nil
	case OpLslImm:
		// ubfm rd, rn, #-shift mod size, #size-1-shift
		regSize := uint32(inst.Size)
		shift := uint32(inst.Imm)
		immr := (regSize - shift) % regSize
		imms := regSize - 1 - shift
		return ubfm(inst.Size, immr, imms) | rn(inst.Rn) | rd(inst.Rd), nil
	case OpLsrImm:
		// ubfm rd, rn, #shift, #size-1
		return ubfm(inst.Size, uint32(inst.Imm), uint32(inst.Size)-1) | rn(inst.Rn) | rd(inst.Rd), nil
	case OpAsrImm:
		// sbfm rd, rn, #shift, #size-1
		w := ubfm(inst.Size, uint32(inst.Imm), uint32(inst.Size)-1) | rn(inst.Rn) | rd(inst.Rd)
		return w &^ (1 << 30), nil // opc 00 selects sbfm
	case OpCsel:
		return sf(inst.Size) | 0x1a800000 | rm(inst.Rm) | uint32(inst.Cond)<<12 | rn(inst.Rn) | rd(inst.Rd), nil
	case OpCset:
		// csinc rd, zr, zr, inverted cond
		return sf(inst.Size) | 0x1a800400 | rm(a64.XZR) | uint32(inst.Cond.Invert())<<12 | rn(a64.XZR) | rd(inst.Rd), nil
	case OpClz:
		return sf(inst.Size) | 0x5ac01000 | rn(inst.Rn) | rd(inst.Rd), nil
	case OpRbit:
		return sf(inst.Size) | 0x5ac00000 | rn(inst.Rn) | rd(inst.Rd), nil
	case OpMovz, OpMovk:
		base := uint32(0x52800000) // movz
		if inst.Op == OpMovk {
			base = 0x72800000
		}
		hw := uint32(inst.Imm >> 16)
		imm16 := uint32(inst.Imm & 0xffff)
		return sf(inst.Size) | base | hw<<21 | imm16<<5 | rd(inst.Rd), nil
	case OpLdrImm:
		size, err := ldrSizeBits(inst.Size)
		if err != nil {
			return 0, err
		}
		scale := int64(inst.Size / 8)
		if inst.Imm%scale != 0 || inst.Imm < 0 || inst.Imm/scale >= 1<<12 {
			return 0, fmt.Errorf("offset %d out of range", inst.Imm)
		}
		return size | 0x39400000 | uint32(inst.Imm/scale)<<10 | rn(inst.Rn) | rd(inst.Rd), nil
	case OpLdrPost:
		size, err := ldrSizeBits(inst.Size)
		if err != nil {
			return 0, err
		}
		if inst.Imm < -256 || inst.Imm >= 256 {
			return 0, fmt.Errorf("offset %d out of range", inst.Imm)
		}
		imm9 := uint32(inst.Imm) & 0x1ff
		return size | 0x38400400 | imm9<<12 | rn(inst.Rn) | rd(inst.Rd), nil
	case OpLdrReg:
		size, err := ldrSizeBits(inst.Size)
		if err != nil {
			return 0, err
		}
		// Option 011 is an unextended, unshifted register offset.
		return size | 0x38600800 | rm(inst.Rm) | 0b011<<13 | rn(inst.Rn) | rd(inst.Rd), nil
	case OpPrfm:
		// prfm pldl1strm, [rn]
		return 0xf9800000 | rn(inst.Rn) | 0b00001, nil
	case OpB:
		imm26, err := branchOffset(inst, offset, target, 26)
		if err != nil {
			return 0, err
		}
		return 0x14000000 | imm26, nil
	case OpBCond:
		imm19, err := branchOffset(inst, offset, target, 19)
		if err != nil {
			return 0, err
		}
		return 0x54000000 | imm19<<5 | uint32(inst.Cond), nil
	case OpCbz, OpCbnz:
		imm19, err := branchOffset(inst, offset, target, 19)
		if err != nil {
			return 0, err
		}
		base := uint32(0x34000000) // cbz
		if inst.Op == OpCbnz {
			base = 0x35000000
		}
		return sf(inst.Size) | base | imm19<<5 | rd(inst.Rd), nil
	case OpFldrPost:
		if inst.Imm < -256 || inst.Imm >= 256 {
			return 0, fmt.Errorf("offset %d out of range", inst.Imm)
		}
		imm9 := uint32(inst.Imm) & 0x1ff
		return 0x3cc00400 | imm9<<12 | rn(inst.Rn) | vd(inst.Rd), nil
	case OpFldpPost:
		if inst.Imm%16 != 0 || inst.Imm < -1024 || inst.Imm >= 1024 {
			return 0, fmt.Errorf("offset %d out of range", inst.Imm)
		}
		imm7 := uint32(inst.Imm/16) & 0x7f
		return 0xacc00000 | imm7<<15 | uint32(inst.Rd2.Vec())<<10 | rn(inst.Rn) | vd(inst.Rd), nil
	case OpCmeq:
		size, err := esizeBits(inst.ESize)
		if err != nil {
			return 0, err
		}
		return 0x6e208c00 | size | vm(inst.Rm) | vn(inst.Rn) | vd(inst.Rd), nil
	case OpVAnd:
		return 0x4e201c00 | vm(inst.Rm) | vn(inst.Rn) | vd(inst.Rd), nil
	case OpVBic:
		return 0x4e601c00 | vm(inst.Rm) | vn(inst.Rn) | vd(inst.Rd), nil
	case OpUminv:
		size, err := esizeBits(inst.ESize)
		if err != nil {
			return 0, err
		}
		return 0x6e31a800 | size | vn(inst.Rn) | vd(inst.Rd), nil
	case OpAddp:
		size, err := esizeBits(inst.ESize)
		if err != nil {
			return 0, err
		}
		return 0x4e20bc00 | size | vm(inst.Rm) | vn(inst.Rn) | vd(inst.Rd), nil
	case OpDupG:
		imm5, err := laneImm5(inst.ESize, 0)
		if err != nil {
			return 0, err
		}
		return 0x4e000c00 | imm5<<16 | rn(inst.Rn) | vd(inst.Rd), nil
	case OpUxtl, OpUxtl2:
		// ushll{2} vd.8h, vn.{8b,16b}, #0
		base := uint32(0x2f08a400)
		if inst.Op == OpUxtl2 {
			base = 0x6f08a400
		}
		return base | vn(inst.Rn) | vd(inst.Rd), nil
	case OpSmov:
		imm5, err := laneImm5(inst.ESize, inst.Index)
		if err != nil {
			return 0, err
		}
		return 0x4e002c00 | imm5<<16 | vn(inst.Rn) | rd(inst.Rd), nil
	case OpUmov:
		imm5, err := laneImm5(inst.ESize, inst.Index)
		if err != nil {
			return 0, err
		}
		return 0x4e003c00 | imm5<<16 | vn(inst.Rn) | rd(inst.Rd), nil
	case OpFcmpZero:
		return 0x1e602008 | vn(inst.Rn), nil
	default:
		return 0, fmt.Errorf("unsupported op %d", inst.Op)
	}
}

// ubfm builds the base word for an unsigned bitfield move,
// which underlies the immediate shifts.
func ubfm(size int, immr, imms uint32) uint32 {
	w := uint32(0x53000000) | immr<<16 | imms<<10
	if size == 64 {
		w |= 1<<31 | 1<<22 // sf and N
	}
	return w
}

// laneImm5 builds the imm5 field that selects an element size
// and lane index in the SIMD copy instruction space.
func laneImm5(esize, index int) (uint32, error) {
	switch esize {
	case 8:
		return uint32(index)<<1 | 0b00001, nil
	case 16:
		return uint32(index)<<2 | 0b00010, nil
	case 32:
		return uint32(index)<<3 | 0b00100, nil
	case 64:
		return uint32(index)<<4 | 0b01000, nil
	default:
		return 0, fmt.Errorf("invalid element size %d", esize)
	}
}

// encodeBitmask encodes a logical bitmask immediate as the
// packed N:immr:imms field, reporting whether the value is
// representable. A bitmask immediate is a run of ones,
// rotated, then replicated across the register in power of
// two sized elements.
func encodeBitmask(value uint64, size int) (uint32, bool) {
	if size == 32 {
		value &= 1<<32 - 1
		value |= value << 32
	}
	if value == 0 || value == ^uint64(0) {
		return 0, false
	}

	// Smallest element size the value replicates at.
	esize := 64
	for esize > 2 {
		half := esize / 2
		mask := uint64(1)<<half - 1
		if value&mask != value>>half&mask {
			break
		}
		esize = half
	}

	var mask uint64 = ^uint64(0)
	if esize < 64 {
		mask = uint64(1)<<esize - 1
	}
	elem := value & mask
	if esize < 64 {
		// The value must be a clean replication of the element.
		for shift := esize; shift < 64; shift += esize {
			if value>>shift&mask != elem {
				return 0, false
			}
		}
	}

	ones := bits.OnesCount64(elem)
	if ones == 0 || ones == esize {
		return 0, false
	}

	// Find the rotation that turns a low run of ones into the
	// element.
	run := uint64(1)<<ones - 1
	for r := 0; r < esize; r++ {
		rotated := (run>>r | run<<(esize-r)) & mask
		if rotated == elem {
			immr := uint32(r)
			imms := uint32(^(2*esize-1)&0x3f) | uint32(ones-1)
			var n uint32
			if esize == 64 {
				n = 1
				imms = uint32(ones - 1)
			}
			return n<<12 | immr<<6 | imms, true
		}
	}

	return 0, false
}
