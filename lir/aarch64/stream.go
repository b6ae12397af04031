// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package aarch64 lowers comparison descriptors to AArch64
// machine code. Lowering records instructions into a Stream;
// the encoder turns a finished stream into instruction words
// and a listing can be rendered for diagnostics.
package aarch64

import (
	"fmt"
	"strings"

	"github.com/lewurm/opal/internal/a64"
)

// Op identifies an instruction form. Each op corresponds to
// exactly one machine instruction encoding.
type Op uint8

const (
	OpInvalid Op = iota

	// General-purpose data processing.
	OpAddImm   // rd = rn + imm (negative imm encodes as sub)
	OpAddReg   // rd = rn + rm
	OpAddShift // rd = rn + (rm SHIFT amount)
	OpSubReg   // rd = rn - rm
	OpSubsReg  // rd = rn - rm, setting flags
	OpSubsImm  // rd = rn - imm, setting flags
	OpAndImm   // rd = rn & imm (bitmask immediate)
	OpAndsImm  // rd = rn & imm, setting flags
	OpEorReg   // rd = rn ^ rm
	OpOrrReg   // rd = rn | rm
	OpLslImm
	OpLsrImm
	OpAsrImm
	OpCsel // rd = cond ? rn : rm
	OpCset // rd = cond ? 1 : 0
	OpClz
	OpRbit
	OpMovz // rd = imm16 << hw
	OpMovk // rd[imm16 at hw] = imm16

	// Loads and prefetch.
	OpLdrImm  // rt = mem[rn + imm], unsigned scaled offset
	OpLdrPost // rt = mem[rn], rn += imm
	OpLdrReg  // rt = mem[rn + rm]
	OpPrfm    // prefetch mem[rn + imm]

	// Branches.
	OpB
	OpBCond
	OpCbz
	OpCbnz

	// Pseudo.
	OpAlign // pad to an Imm-byte boundary with nops

	// SIMD.
	OpFldrPost // vt = mem[rn] (16 bytes), rn += imm
	OpFldpPost // vt, vt2 = mem[rn] (32 bytes), rn += imm
	OpCmeq     // per-lane vd = (vn == vm) ? ~0 : 0
	OpVAnd     // vd = vn & vm
	OpVBic     // vd = vn &^ vm
	OpUminv    // vd[0] = unsigned min lane of vn
	OpAddp     // vd = pairwise byte sums of vn:vm
	OpDupG     // vd = broadcast rn into each lane
	OpUxtl     // vd = zero-extend low 8 lanes of vn
	OpUxtl2    // vd = zero-extend high 8 lanes of vn
	OpSmov     // rd = sign-extended vn lane
	OpUmov     // rd = vn lane
	OpFcmpZero // compare vn's low 64 bits to +0.0, setting flags
)

// ShiftType is the shift applied to the second operand of
// OpAddShift.
type ShiftType uint8

const (
	ShiftLSL ShiftType = 0
	ShiftLSR ShiftType = 1
	ShiftASR ShiftType = 2
)

func (s ShiftType) String() string {
	switch s {
	case ShiftLSL:
		return "lsl"
	case ShiftLSR:
		return "lsr"
	case ShiftASR:
		return "asr"
	default:
		return fmt.Sprintf("ShiftType(%d)", s)
	}
}

// Label marks a position in a stream. A label is unbound
// until Bind attaches it to the next emitted instruction.
type Label struct {
	name  string
	index int // Instruction index, or -1 while unbound.
}

func (l *Label) String() string { return l.name }

// Bound reports whether the label has been bound.
func (l *Label) Bound() bool { return l.index >= 0 }

// Inst is one recorded instruction. Which fields are
// meaningful depends on the op; unused fields are zero.
type Inst struct {
	Op    Op
	Size  int // Operand size in bits: 8/16/32/64, or 128 for SIMD loads.
	ESize int // Vector element size in bits.
	Rd    *a64.Register
	Rd2   *a64.Register // Second destination for paired loads.
	Rn    *a64.Register
	Rm    *a64.Register
	Imm   int64
	Shift ShiftType
	Cond  a64.Condition
	Index int // Lane index for SIMD moves.
	Label *Label
}

// Stream is a recorded sequence of instructions under
// construction. It also provides the two reserved scratch
// registers that macro emitters may acquire for the lexical
// duration of an emission routine.
type Stream struct {
	insts  []Inst
	labels []*Label

	scratch     [2]*a64.Register
	scratchUsed [2]bool
}

// NewStream returns an empty stream.
func NewStream() *Stream {
	s := &Stream{}
	s.scratch[0] = a64.X16
	s.scratch[1] = a64.X17
	return s
}

// Insts returns the recorded instructions.
func (s *Stream) Insts() []Inst { return s.insts }

// Label creates a new, unbound label.
func (s *Stream) Label(name string) *Label {
	l := &Label{name: name, index: -1}
	s.labels = append(s.labels, l)
	return l
}

// Bind attaches the label to the next instruction emitted.
func (s *Stream) Bind(l *Label) {
	if l.Bound() {
		panic(fmt.Sprintf("label %s bound twice", l.name))
	}

	l.index = len(s.insts)
}

// Scratch acquires one of the stream's reserved scratch
// registers. The release function returns it to the pool and
// must be called when the emission routine that acquired it
// returns.
func (s *Stream) Scratch() (reg *a64.Register, release func()) {
	for i := range s.scratch {
		if !s.scratchUsed[i] {
			i := i
			s.scratchUsed[i] = true
			return s.scratch[i], func() { s.scratchUsed[i] = false }
		}
	}

	panic("no scratch register available")
}

// Unbound returns the names of any labels that were created
// but never bound. A finished stream must have none.
func (s *Stream) Unbound() []string {
	var names []string
	for _, l := range s.labels {
		if !l.Bound() {
			names = append(names, l.name)
		}
	}
	return names
}

func (s *Stream) append(inst Inst) {
	s.insts = append(s.insts, inst)
}

// gpName renders a general-purpose register at the given
// operand size.
func gpName(reg *a64.Register, size int) string {
	if reg.Type == a64.TypeZero {
		if size == 32 {
			return "wzr"
		}
		return "xzr"
	}
	if size == 32 {
		return "w" + strings.TrimPrefix(reg.Name, "x")
	}
	return reg.Name
}

// vecName renders a vector register with the lane arrangement
// for the given element size in bits.
func vecName(reg *a64.Register, esize int) string {
	switch esize {
	case 8:
		return reg.Name + ".16b"
	case 16:
		return reg.Name + ".8h"
	case 32:
		return reg.Name + ".4s"
	case 64:
		return reg.Name + ".2d"
	default:
		panic(fmt.Sprintf("unexpected element size %d", esize))
	}
}

// laneName renders one lane of a vector register.
func laneName(reg *a64.Register, esize, index int) string {
	switch esize {
	case 8:
		return fmt.Sprintf("%s.b[%d]", reg.Name, index)
	case 16:
		return fmt.Sprintf("%s.h[%d]", reg.Name, index)
	case 32:
		return fmt.Sprintf("%s.s[%d]", reg.Name, index)
	case 64:
		return fmt.Sprintf("%s.d[%d]", reg.Name, index)
	default:
		panic(fmt.Sprintf("unexpected element size %d", esize))
	}
}

func qName(reg *a64.Register) string { return "q" + strings.TrimPrefix(reg.Name, "v") }
func dName(reg *a64.Register) string { return "d" + strings.TrimPrefix(reg.Name, "v") }

// String renders the instruction as assembly text.
func (inst Inst) String() string {
	gp := func(r *a64.Register) string { return gpName(r, inst.Size) }
	vec := func(r *a64.Register) string { return vecName(r, inst.ESize) }

	switch inst.Op {
	case OpAddImm:
		if inst.Imm < 0 {
			return fmt.Sprintf("sub %s, %s, #%d", gp(inst.Rd), gp(inst.Rn), -inst.Imm)
		}
		return fmt.Sprintf("add %s, %s, #%d", gp(inst.Rd), gp(inst.Rn), inst.Imm)
	case OpAddReg:
		return fmt.Sprintf("add %s, %s, %s", gp(inst.Rd), gp(inst.Rn), gp(inst.Rm))
	case OpAddShift:
		return fmt.Sprintf("add %s, %s, %s, %s #%d", gp(inst.Rd), gp(inst.Rn), gp(inst.Rm), inst.Shift, inst.Imm)
	case OpSubReg:
		return fmt.Sprintf("sub %s, %s, %s", gp(inst.Rd), gp(inst.Rn), gp(inst.Rm))
	case OpSubsReg:
		if inst.Rd.Type == a64.TypeZero {
			return fmt.Sprintf("cmp %s, %s", gp(inst.Rn), gp(inst.Rm))
		}
		return fmt.Sprintf("subs %s, %s, %s", gp(inst.Rd), gp(inst.Rn), gp(inst.Rm))
	case OpSubsImm:
		if inst.Rd.Type == a64.TypeZero {
			return fmt.Sprintf("cmp %s, #%d", gp(inst.Rn), inst.Imm)
		}
		return fmt.Sprintf("subs %s, %s, #%d", gp(inst.Rd), gp(inst.Rn), inst.Imm)
	case OpAndImm:
		return fmt.Sprintf("and %s, %s, #%#x", gp(inst.Rd), gp(inst.Rn), uint64(inst.Imm)&sizeMask(inst.Size))
	case OpAndsImm:
		if inst.Rd.Type == a64.TypeZero {
			return fmt.Sprintf("tst %s, #%#x", gp(inst.Rn), uint64(inst.Imm)&sizeMask(inst.Size))
		}
		return fmt.Sprintf("ands %s, %s, #%#x", gp(inst.Rd), gp(inst.Rn), uint64(inst.Imm)&sizeMask(inst.Size))
	case OpEorReg:
		return fmt.Sprintf("eor %s, %s, %s", gp(inst.Rd), gp(inst.Rn), gp(inst.Rm))
	case OpOrrReg:
		if inst.Rn.Type == a64.TypeZero {
			return fmt.Sprintf("mov %s, %s", gp(inst.Rd), gp(inst.Rm))
		}
		return fmt.Sprintf("orr %s, %s, %s", gp(inst.Rd), gp(inst.Rn), gp(inst.Rm))
	case OpLslImm:
		return fmt.Sprintf("lsl %s, %s, #%d", gp(inst.Rd), gp(inst.Rn), inst.Imm)
	case OpLsrImm:
		return fmt.Sprintf("lsr %s, %s, #%d", gp(inst.Rd), gp(inst.Rn), inst.Imm)
	case OpAsrImm:
		return fmt.Sprintf("asr %s, %s, #%d", gp(inst.Rd), gp(inst.Rn), inst.Imm)
	case OpCsel:
		return fmt.Sprintf("csel %s, %s, %s, %s", gp(inst.Rd), gp(inst.Rn), gp(inst.Rm), inst.Cond)
	case OpCset:
		return fmt.Sprintf("cset %s, %s", gp(inst.Rd), inst.Cond)
	case OpClz:
		return fmt.Sprintf("clz %s, %s", gp(inst.Rd), gp(inst.Rn))
	case OpRbit:
		return fmt.Sprintf("rbit %s, %s", gp(inst.Rd), gp(inst.Rn))
	case OpMovz:
		if inst.Imm>>16 == 0 {
			return fmt.Sprintf("movz %s, #%#x", gp(inst.Rd), inst.Imm)
		}
		return fmt.Sprintf("movz %s, #%#x, lsl #%d", gp(inst.Rd), inst.Imm&0xffff, (inst.Imm>>16)*16)
	case OpMovk:
		if inst.Imm>>16 == 0 {
			return fmt.Sprintf("movk %s, #%#x", gp(inst.Rd), inst.Imm)
		}
		return fmt.Sprintf("movk %s, #%#x, lsl #%d", gp(inst.Rd), inst.Imm&0xffff, (inst.Imm>>16)*16)
	case OpLdrImm:
		if inst.Imm == 0 {
			return fmt.Sprintf("%s %s, [%s]", ldrMnemonic(inst.Size), ldTarget(inst), inst.Rn)
		}
		return fmt.Sprintf("%s %s, [%s, #%d]", ldrMnemonic(inst.Size), ldTarget(inst), inst.Rn, inst.Imm)
	case OpLdrPost:
		return fmt.Sprintf("%s %s, [%s], #%d", ldrMnemonic(inst.Size), ldTarget(inst), inst.Rn, inst.Imm)
	case OpLdrReg:
		return fmt.Sprintf("%s %s, [%s, %s]", ldrMnemonic(inst.Size), ldTarget(inst), inst.Rn, inst.Rm)
	case OpPrfm:
		return fmt.Sprintf("prfm pldl1strm, [%s]", inst.Rn)
	case OpB:
		return fmt.Sprintf("b %s", inst.Label)
	case OpBCond:
		return fmt.Sprintf("b.%s %s", inst.Cond, inst.Label)
	case OpCbz:
		return fmt.Sprintf("cbz %s, %s", gp(inst.Rd), inst.Label)
	case OpCbnz:
		return fmt.Sprintf("cbnz %s, %s", gp(inst.Rd), inst.Label)
	case OpAlign:
		return fmt.Sprintf(".p2align %d", inst.Imm)
	case OpFldrPost:
		return fmt.Sprintf("ldr %s, [%s], #%d", qName(inst.Rd), inst.Rn, inst.Imm)
	case OpFldpPost:
		return fmt.Sprintf("ldp %s, %s, [%s], #%d", qName(inst.Rd), qName(inst.Rd2), inst.Rn, inst.Imm)
	case OpCmeq:
		return fmt.Sprintf("cmeq %s, %s, %s", vec(inst.Rd), vec(inst.Rn), vec(inst.Rm))
	case OpVAnd:
		return fmt.Sprintf("and %s, %s, %s", vecName(inst.Rd, 8), vecName(inst.Rn, 8), vecName(inst.Rm, 8))
	case OpVBic:
		return fmt.Sprintf("bic %s, %s, %s", vecName(inst.Rd, 8), vecName(inst.Rn, 8), vecName(inst.Rm, 8))
	case OpUminv:
		return fmt.Sprintf("uminv %s, %s", laneScalar(inst.Rd, inst.ESize), vec(inst.Rn))
	case OpAddp:
		return fmt.Sprintf("addp %s, %s, %s", vec(inst.Rd), vec(inst.Rn), vec(inst.Rm))
	case OpDupG:
		return fmt.Sprintf("dup %s, %s", vec(inst.Rd), gpName(inst.Rn, 32))
	case OpUxtl:
		return fmt.Sprintf("uxtl %s, %s.8b", vecName(inst.Rd, inst.ESize*2), inst.Rn)
	case OpUxtl2:
		return fmt.Sprintf("uxtl2 %s, %s", vecName(inst.Rd, inst.ESize*2), vecName(inst.Rn, inst.ESize))
	case OpSmov:
		return fmt.Sprintf("smov %s, %s", gpName(inst.Rd, 64), laneName(inst.Rn, inst.ESize, inst.Index))
	case OpUmov:
		return fmt.Sprintf("umov %s, %s", gpName(inst.Rd, 64), laneName(inst.Rn, inst.ESize, inst.Index))
	case OpFcmpZero:
		return fmt.Sprintf("fcmp %s, #0.0", dName(inst.Rn))
	default:
		return fmt.Sprintf("Inst(%d)", inst.Op)
	}
}

func ldTarget(inst Inst) string {
	if inst.Size == 128 {
		return qName(inst.Rd)
	}
	return gpName(inst.Rd, loadRegSize(inst.Size))
}

// loadRegSize is the register size used to render the target
// of a load of the given memory size.
func loadRegSize(bits int) int {
	if bits == 64 {
		return 64
	}
	return 32
}

func ldrMnemonic(bits int) string {
	switch bits {
	case 8:
		return "ldrb"
	case 16:
		return "ldrh"
	case 32, 64, 128:
		return "ldr"
	default:
		panic(fmt.Sprintf("unexpected load size %d", bits))
	}
}

// laneScalar renders the scalar destination of a horizontal
// reduction at the given element size.
func laneScalar(reg *a64.Register, esize int) string {
	n := strings.TrimPrefix(reg.Name, "v")
	switch esize {
	case 8:
		return "b" + n
	case 16:
		return "h" + n
	case 32:
		return "s" + n
	case 64:
		return "d" + n
	default:
		panic(fmt.Sprintf("unexpected element size %d", esize))
	}
}

func sizeMask(bits int) uint64 {
	if bits == 32 {
		return 1<<32 - 1
	}
	return ^uint64(0)
}

// String renders the stream as an assembly listing, with
// bound labels interleaved at their positions.
func (s *Stream) String() string {
	byIndex := make(map[int][]*Label)
	for _, l := range s.labels {
		if l.Bound() {
			byIndex[l.index] = append(byIndex[l.index], l)
		}
	}

	var b strings.Builder
	for i, inst := range s.insts {
		for _, l := range byIndex[i] {
			fmt.Fprintf(&b, "%s:\n", l.name)
		}
		fmt.Fprintf(&b, "\t%s\n", inst)
	}
	for _, l := range byIndex[len(s.insts)] {
		fmt.Fprintf(&b, "%s:\n", l.name)
	}

	return b.String()
}
