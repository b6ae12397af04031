// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package aarch64

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/lewurm/opal/internal/a64"
)

// machine interprets the instruction subset the lowerings
// emit, so their control flow and memory access patterns can
// be exercised without AArch64 hardware. Register values hold
// offsets into mem rather than real addresses.
type machine struct {
	x          [32]uint64
	v          [32][16]byte
	n, z, c, o bool
	mem        []byte
}

func (m *machine) rx(reg *a64.Register, size int) uint64 {
	if reg.Reg == 31 {
		return 0
	}
	return m.x[reg.Reg] & sizeMask(size)
}

func (m *machine) wx(reg *a64.Register, size int, val uint64) {
	if reg.Reg == 31 {
		return
	}
	m.x[reg.Reg] = val & sizeMask(size)
}

func (m *machine) load(addr int64, bytes int) (uint64, error) {
	if addr < 0 || addr+int64(bytes) > int64(len(m.mem)) {
		return 0, fmt.Errorf("out of bounds read of %d bytes at %#x", bytes, addr)
	}

	var val uint64
	for i := bytes - 1; i >= 0; i-- {
		val = val<<8 | uint64(m.mem[addr+int64(i)])
	}

	return val, nil
}

func (m *machine) loadVec(reg *a64.Register, addr int64) error {
	if addr < 0 || addr+16 > int64(len(m.mem)) {
		return fmt.Errorf("out of bounds read of 16 bytes at %#x", addr)
	}

	copy(m.v[reg.Reg][:], m.mem[addr:addr+16])

	return nil
}

// subFlags performs a subtraction at the given size and sets
// the condition flags.
func (m *machine) subFlags(size int, a, b uint64) uint64 {
	mask := sizeMask(size)
	a &= mask
	b &= mask
	result := (a - b) & mask
	sign := uint64(1) << (size - 1)

	m.n = result&sign != 0
	m.z = result == 0
	m.c = a >= b
	m.o = (a^b)&(a^result)&sign != 0

	return result
}

func (m *machine) cond(c a64.Condition) bool {
	switch c {
	case a64.EQ:
		return m.z
	case a64.NE:
		return !m.z
	case a64.HS:
		return m.c
	case a64.LO:
		return !m.c
	case a64.MI:
		return m.n
	case a64.PL:
		return !m.n
	case a64.HI:
		return m.c && !m.z
	case a64.LS:
		return !m.c || m.z
	case a64.GE:
		return m.n == m.o
	case a64.LT:
		return m.n != m.o
	case a64.GT:
		return !m.z && m.n == m.o
	case a64.LE:
		return m.z || m.n != m.o
	default:
		panic(fmt.Sprintf("unexpected condition %s", c))
	}
}

func shiftVal(size int, val uint64, shift ShiftType, amount int64) uint64 {
	val &= sizeMask(size)
	switch shift {
	case ShiftLSL:
		return val << amount
	case ShiftLSR:
		return val >> amount
	case ShiftASR:
		if size == 32 {
			return uint64(int32(val) >> amount)
		}
		return uint64(int64(val) >> amount)
	default:
		panic(fmt.Sprintf("unexpected shift %s", shift))
	}
}

// lanes splits a vector register into its unsigned lane
// values at the given element size.
func lanes(v [16]byte, esize int) []uint64 {
	n := 16 / (esize / 8)
	out := make([]uint64, n)
	for i := range out {
		var lane uint64
		for b := esize/8 - 1; b >= 0; b-- {
			lane = lane<<8 | uint64(v[i*(esize/8)+b])
		}
		out[i] = lane
	}
	return out
}

func storeLanes(v *[16]byte, esize int, vals []uint64) {
	for i, lane := range vals {
		for b := 0; b < esize/8; b++ {
			v[i*(esize/8)+b] = byte(lane >> (8 * b))
		}
	}
}

// run interprets the stream until it falls off the end,
// applying a step limit so a wrong branch cannot hang the
// tests.
func (m *machine) run(s *Stream) error {
	insts := s.Insts()

	resolve := func(l *Label) (int, error) {
		if !l.Bound() {
			return 0, fmt.Errorf("label %s is unbound", l.name)
		}
		return l.index, nil
	}

	const maxSteps = 1 << 24
	pc := 0
	for steps := 0; pc < len(insts); steps++ {
		if steps == maxSteps {
			return fmt.Errorf("step limit reached at instruction %d (%s)", pc, insts[pc])
		}

		inst := insts[pc]
		next := pc + 1

		switch inst.Op {
		case OpAddImm:
			m.wx(inst.Rd, inst.Size, m.rx(inst.Rn, inst.Size)+uint64(inst.Imm))
		case OpAddReg:
			m.wx(inst.Rd, inst.Size, m.rx(inst.Rn, inst.Size)+m.rx(inst.Rm, inst.Size))
		case OpAddShift:
			m.wx(inst.Rd, inst.Size, m.rx(inst.Rn, inst.Size)+shiftVal(inst.Size, m.rx(inst.Rm, inst.Size), inst.Shift, inst.Imm))
		case OpSubReg:
			m.wx(inst.Rd, inst.Size, m.rx(inst.Rn, inst.Size)-m.rx(inst.Rm, inst.Size))
		case OpSubsReg:
			m.wx(inst.Rd, inst.Size, m.subFlags(inst.Size, m.rx(inst.Rn, inst.Size), m.rx(inst.Rm, inst.Size)))
		case OpSubsImm:
			m.wx(inst.Rd, inst.Size, m.subFlags(inst.Size, m.rx(inst.Rn, inst.Size), uint64(inst.Imm)))
		case OpAndImm:
			m.wx(inst.Rd, inst.Size, m.rx(inst.Rn, inst.Size)&uint64(inst.Imm))
		case OpAndsImm:
			result := m.rx(inst.Rn, inst.Size) & uint64(inst.Imm) & sizeMask(inst.Size)
			m.n = result&(1<<(inst.Size-1)) != 0
			m.z = result == 0
			m.c, m.o = false, false
			m.wx(inst.Rd, inst.Size, result)
		case OpEorReg:
			m.wx(inst.Rd, inst.Size, m.rx(inst.Rn, inst.Size)^m.rx(inst.Rm, inst.Size))
		case OpOrrReg:
			m.wx(inst.Rd, inst.Size, m.rx(inst.Rn, inst.Size)|m.rx(inst.Rm, inst.Size))
		case OpLslImm:
			m.wx(inst.Rd, inst.Size, shiftVal(inst.Size, m.rx(inst.Rn, inst.Size), ShiftLSL, inst.Imm))
		case OpLsrImm:
			m.wx(inst.Rd, inst.Size, shiftVal(inst.Size, m.rx(inst.Rn, inst.Size), ShiftLSR, inst.Imm))
		case OpAsrImm:
			m.wx(inst.Rd, inst.Size, shiftVal(inst.Size, m.rx(inst.Rn, inst.Size), ShiftASR, inst.Imm))
		case OpCsel:
			if m.cond(inst.Cond) {
				m.wx(inst.Rd, inst.Size, m.rx(inst.Rn, inst.Size))
			} else {
				m.wx(inst.Rd, inst.Size, m.rx(inst.Rm, inst.Size))
			}
		case OpCset:
			if m.cond(inst.Cond) {
				m.wx(inst.Rd, inst.Size, 1)
			} else {
				m.wx(inst.Rd, inst.Size, 0)
			}
		case OpClz:
			if inst.Size == 32 {
				m.wx(inst.Rd, 32, uint64(bits.LeadingZeros32(uint32(m.rx(inst.Rn, 32)))))
			} else {
				m.wx(inst.Rd, 64, uint64(bits.LeadingZeros64(m.rx(inst.Rn, 64))))
			}
		case OpRbit:
			if inst.Size == 32 {
				m.wx(inst.Rd, 32, uint64(bits.Reverse32(uint32(m.rx(inst.Rn, 32)))))
			} else {
				m.wx(inst.Rd, 64, bits.Reverse64(m.rx(inst.Rn, 64)))
			}
		case OpMovz:
			hw := inst.Imm >> 16
			m.wx(inst.Rd, inst.Size, uint64(inst.Imm&0xffff)<<(16*hw))
		case OpMovk:
			hw := inst.Imm >> 16
			old := m.rx(inst.Rd, inst.Size)
			old &^= 0xffff << (16 * hw)
			m.wx(inst.Rd, inst.Size, old|uint64(inst.Imm&0xffff)<<(16*hw))
		case OpLdrImm:
			val, err := m.load(int64(m.rx(inst.Rn, 64))+inst.Imm, inst.Size/8)
			if err != nil {
				return err
			}
			m.wx(inst.Rd, 64, val)
		case OpLdrPost:
			val, err := m.load(int64(m.rx(inst.Rn, 64)), inst.Size/8)
			if err != nil {
				return err
			}
			m.wx(inst.Rd, 64, val)
			m.wx(inst.Rn, 64, m.rx(inst.Rn, 64)+uint64(inst.Imm))
		case OpLdrReg:
			val, err := m.load(int64(m.rx(inst.Rn, 64)+m.rx(inst.Rm, 64)), inst.Size/8)
			if err != nil {
				return err
			}
			m.wx(inst.Rd, 64, val)
		case OpPrfm, OpAlign:
			// No effect.
		case OpB:
			to, err := resolve(inst.Label)
			if err != nil {
				return err
			}
			next = to
		case OpBCond:
			if m.cond(inst.Cond) {
				to, err := resolve(inst.Label)
				if err != nil {
					return err
				}
				next = to
			}
		case OpCbz, OpCbnz:
			taken := m.rx(inst.Rd, inst.Size) == 0
			if inst.Op == OpCbnz {
				taken = !taken
			}
			if taken {
				to, err := resolve(inst.Label)
				if err != nil {
					return err
				}
				next = to
			}
		case OpFldrPost:
			if err := m.loadVec(inst.Rd, int64(m.rx(inst.Rn, 64))); err != nil {
				return err
			}
			m.wx(inst.Rn, 64, m.rx(inst.Rn, 64)+uint64(inst.Imm))
		case OpFldpPost:
			addr := int64(m.rx(inst.Rn, 64))
			if err := m.loadVec(inst.Rd, addr); err != nil {
				return err
			}
			if err := m.loadVec(inst.Rd2, addr+16); err != nil {
				return err
			}
			m.wx(inst.Rn, 64, m.rx(inst.Rn, 64)+uint64(inst.Imm))
		case OpCmeq:
			a := lanes(m.v[inst.Rn.Reg], inst.ESize)
			b := lanes(m.v[inst.Rm.Reg], inst.ESize)
			out := make([]uint64, len(a))
			for i := range a {
				if a[i] == b[i] {
					out[i] = ^uint64(0)
				}
			}
			storeLanes(&m.v[inst.Rd.Reg], inst.ESize, out)
		case OpVAnd:
			for i := range m.v[inst.Rd.Reg] {
				m.v[inst.Rd.Reg][i] = m.v[inst.Rn.Reg][i] & m.v[inst.Rm.Reg][i]
			}
		case OpVBic:
			for i := range m.v[inst.Rd.Reg] {
				m.v[inst.Rd.Reg][i] = m.v[inst.Rn.Reg][i] &^ m.v[inst.Rm.Reg][i]
			}
		case OpUminv:
			min := ^uint64(0)
			for _, lane := range lanes(m.v[inst.Rn.Reg], inst.ESize) {
				if lane < min {
					min = lane
				}
			}
			m.v[inst.Rd.Reg] = [16]byte{}
			storeLanes(&m.v[inst.Rd.Reg], inst.ESize, append([]uint64{min}, make([]uint64, 16/(inst.ESize/8)-1)...))
		case OpAddp:
			a := lanes(m.v[inst.Rn.Reg], inst.ESize)
			b := lanes(m.v[inst.Rm.Reg], inst.ESize)
			all := append(a, b...)
			out := make([]uint64, len(a))
			for i := range out {
				out[i] = (all[2*i] + all[2*i+1]) & (sizeMask(inst.ESize))
			}
			storeLanes(&m.v[inst.Rd.Reg], inst.ESize, out)
		case OpDupG:
			val := m.rx(inst.Rn, 64) & sizeMask(inst.ESize)
			vals := make([]uint64, 16/(inst.ESize/8))
			for i := range vals {
				vals[i] = val
			}
			storeLanes(&m.v[inst.Rd.Reg], inst.ESize, vals)
		case OpUxtl, OpUxtl2:
			src := m.v[inst.Rn.Reg]
			base := 0
			if inst.Op == OpUxtl2 {
				base = 8
			}
			out := make([]uint64, 8)
			for i := range out {
				out[i] = uint64(src[base+i])
			}
			storeLanes(&m.v[inst.Rd.Reg], 16, out)
		case OpSmov:
			lane := lanes(m.v[inst.Rn.Reg], inst.ESize)[inst.Index]
			shift := 64 - inst.ESize
			m.wx(inst.Rd, 64, uint64(int64(lane<<shift)>>shift))
		case OpUmov:
			m.wx(inst.Rd, 64, lanes(m.v[inst.Rn.Reg], inst.ESize)[inst.Index])
		case OpFcmpZero:
			f := math.Float64frombits(lanes(m.v[inst.Rn.Reg], 64)[0])
			switch {
			case math.IsNaN(f):
				m.n, m.z, m.c, m.o = false, false, true, true
			case f == 0:
				m.n, m.z, m.c, m.o = false, true, true, false
			case f > 0:
				m.n, m.z, m.c, m.o = false, false, true, false
			default:
				m.n, m.z, m.c, m.o = true, false, false, false
			}
		default:
			return fmt.Errorf("unsupported op in instruction %d (%s)", pc, inst)
		}

		pc = next
	}

	return nil
}
