// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package a64

import (
	"fmt"
)

// Register contains information about
// an AArch64 register, including its
// size in bits and its 5-bit encoding.
type Register struct {
	Name    string
	Type    RegisterType
	Bits    int
	Reg     byte // The 5-bit encoding of the register.
	Aliases []string
}

func (r *Register) IsRegister() bool { return true }
func (r *Register) String() string   { return r.Name }

// GP returns the 5-bit identifier for the
// register in a general-purpose register
// field (Rd, Rn, Rm, Rt).
func (r *Register) GP() byte {
	if r.Type != TypeGeneralPurpose && r.Type != TypeZero && r.Type != TypeStackPointer {
		panic(fmt.Sprintf("register %s is a %s, not a general purpose register", r.Name, r.Type))
	}

	return r.Reg & 0b11111
}

// Vec returns the 5-bit identifier for the
// register in a vector register field.
func (r *Register) Vec() byte {
	if r.Type != TypeVector {
		panic(fmt.Sprintf("register %s is a %s, not a vector register", r.Name, r.Type))
	}

	return r.Reg & 0b11111
}

var (
	// 64-bit general purpose registers.
	X0  = &Register{Name: "x0", Type: TypeGeneralPurpose, Reg: 0, Bits: 64}
	X1  = &Register{Name: "x1", Type: TypeGeneralPurpose, Reg: 1, Bits: 64}
	X2  = &Register{Name: "x2", Type: TypeGeneralPurpose, Reg: 2, Bits: 64}
	X3  = &Register{Name: "x3", Type: TypeGeneralPurpose, Reg: 3, Bits: 64}
	X4  = &Register{Name: "x4", Type: TypeGeneralPurpose, Reg: 4, Bits: 64}
	X5  = &Register{Name: "x5", Type: TypeGeneralPurpose, Reg: 5, Bits: 64}
	X6  = &Register{Name: "x6", Type: TypeGeneralPurpose, Reg: 6, Bits: 64}
	X7  = &Register{Name: "x7", Type: TypeGeneralPurpose, Reg: 7, Bits: 64}
	X8  = &Register{Name: "x8", Type: TypeGeneralPurpose, Reg: 8, Bits: 64}
	X9  = &Register{Name: "x9", Type: TypeGeneralPurpose, Reg: 9, Bits: 64}
	X10 = &Register{Name: "x10", Type: TypeGeneralPurpose, Reg: 10, Bits: 64}
	X11 = &Register{Name: "x11", Type: TypeGeneralPurpose, Reg: 11, Bits: 64}
	X12 = &Register{Name: "x12", Type: TypeGeneralPurpose, Reg: 12, Bits: 64}
	X13 = &Register{Name: "x13", Type: TypeGeneralPurpose, Reg: 13, Bits: 64}
	X14 = &Register{Name: "x14", Type: TypeGeneralPurpose, Reg: 14, Bits: 64}
	X15 = &Register{Name: "x15", Type: TypeGeneralPurpose, Reg: 15, Bits: 64}
	X16 = &Register{Name: "x16", Type: TypeGeneralPurpose, Reg: 16, Bits: 64, Aliases: []string{"ip0"}}
	X17 = &Register{Name: "x17", Type: TypeGeneralPurpose, Reg: 17, Bits: 64, Aliases: []string{"ip1"}}
	X18 = &Register{Name: "x18", Type: TypeGeneralPurpose, Reg: 18, Bits: 64}
	X19 = &Register{Name: "x19", Type: TypeGeneralPurpose, Reg: 19, Bits: 64}
	X20 = &Register{Name: "x20", Type: TypeGeneralPurpose, Reg: 20, Bits: 64}
	X21 = &Register{Name: "x21", Type: TypeGeneralPurpose, Reg: 21, Bits: 64}
	X22 = &Register{Name: "x22", Type: TypeGeneralPurpose, Reg: 22, Bits: 64}
	X23 = &Register{Name: "x23", Type: TypeGeneralPurpose, Reg: 23, Bits: 64}
	X24 = &Register{Name: "x24", Type: TypeGeneralPurpose, Reg: 24, Bits: 64}
	X25 = &Register{Name: "x25", Type: TypeGeneralPurpose, Reg: 25, Bits: 64}
	X26 = &Register{Name: "x26", Type: TypeGeneralPurpose, Reg: 26, Bits: 64}
	X27 = &Register{Name: "x27", Type: TypeGeneralPurpose, Reg: 27, Bits: 64}
	X28 = &Register{Name: "x28", Type: TypeGeneralPurpose, Reg: 28, Bits: 64}
	X29 = &Register{Name: "x29", Type: TypeGeneralPurpose, Reg: 29, Bits: 64, Aliases: []string{"fp"}}
	X30 = &Register{Name: "x30", Type: TypeGeneralPurpose, Reg: 30, Bits: 64, Aliases: []string{"lr"}}

	// Encoding 31 is either the zero register or the
	// stack pointer, depending on the instruction.
	XZR = &Register{Name: "xzr", Type: TypeZero, Reg: 31, Bits: 64}
	SP  = &Register{Name: "sp", Type: TypeStackPointer, Reg: 31, Bits: 64}

	// 128-bit vector registers.
	V0  = &Register{Name: "v0", Type: TypeVector, Reg: 0, Bits: 128}
	V1  = &Register{Name: "v1", Type: TypeVector, Reg: 1, Bits: 128}
	V2  = &Register{Name: "v2", Type: TypeVector, Reg: 2, Bits: 128}
	V3  = &Register{Name: "v3", Type: TypeVector, Reg: 3, Bits: 128}
	V4  = &Register{Name: "v4", Type: TypeVector, Reg: 4, Bits: 128}
	V5  = &Register{Name: "v5", Type: TypeVector, Reg: 5, Bits: 128}
	V6  = &Register{Name: "v6", Type: TypeVector, Reg: 6, Bits: 128}
	V7  = &Register{Name: "v7", Type: TypeVector, Reg: 7, Bits: 128}
	V8  = &Register{Name: "v8", Type: TypeVector, Reg: 8, Bits: 128}
	V9  = &Register{Name: "v9", Type: TypeVector, Reg: 9, Bits: 128}
	V10 = &Register{Name: "v10", Type: TypeVector, Reg: 10, Bits: 128}
	V11 = &Register{Name: "v11", Type: TypeVector, Reg: 11, Bits: 128}
	V12 = &Register{Name: "v12", Type: TypeVector, Reg: 12, Bits: 128}
	V13 = &Register{Name: "v13", Type: TypeVector, Reg: 13, Bits: 128}
	V14 = &Register{Name: "v14", Type: TypeVector, Reg: 14, Bits: 128}
	V15 = &Register{Name: "v15", Type: TypeVector, Reg: 15, Bits: 128}
	V16 = &Register{Name: "v16", Type: TypeVector, Reg: 16, Bits: 128}
	V17 = &Register{Name: "v17", Type: TypeVector, Reg: 17, Bits: 128}
	V18 = &Register{Name: "v18", Type: TypeVector, Reg: 18, Bits: 128}
	V19 = &Register{Name: "v19", Type: TypeVector, Reg: 19, Bits: 128}
	V20 = &Register{Name: "v20", Type: TypeVector, Reg: 20, Bits: 128}
	V21 = &Register{Name: "v21", Type: TypeVector, Reg: 21, Bits: 128}
	V22 = &Register{Name: "v22", Type: TypeVector, Reg: 22, Bits: 128}
	V23 = &Register{Name: "v23", Type: TypeVector, Reg: 23, Bits: 128}
	V24 = &Register{Name: "v24", Type: TypeVector, Reg: 24, Bits: 128}
	V25 = &Register{Name: "v25", Type: TypeVector, Reg: 25, Bits: 128}
	V26 = &Register{Name: "v26", Type: TypeVector, Reg: 26, Bits: 128}
	V27 = &Register{Name: "v27", Type: TypeVector, Reg: 27, Bits: 128}
	V28 = &Register{Name: "v28", Type: TypeVector, Reg: 28, Bits: 128}
	V29 = &Register{Name: "v29", Type: TypeVector, Reg: 29, Bits: 128}
	V30 = &Register{Name: "v30", Type: TypeVector, Reg: 30, Bits: 128}
	V31 = &Register{Name: "v31", Type: TypeVector, Reg: 31, Bits: 128}
)

// GeneralPurpose lists the general purpose
// registers in encoding order, not including
// the zero register or the stack pointer.
var GeneralPurpose = []*Register{
	X0, X1, X2, X3, X4, X5, X6, X7,
	X8, X9, X10, X11, X12, X13, X14, X15,
	X16, X17, X18, X19, X20, X21, X22, X23,
	X24, X25, X26, X27, X28, X29, X30,
}

// Vector lists the vector registers in
// encoding order.
var Vector = []*Register{
	V0, V1, V2, V3, V4, V5, V6, V7,
	V8, V9, V10, V11, V12, V13, V14, V15,
	V16, V17, V18, V19, V20, V21, V22, V23,
	V24, V25, V26, V27, V28, V29, V30, V31,
}

// Registers lists all registers defined
// above.
var Registers = make([]*Register, 0, len(GeneralPurpose)+len(Vector)+2)

// RegistersByName maps the name (or alias)
// of each register to its structured data.
var RegistersByName = make(map[string]*Register)

func init() {
	Registers = append(Registers, GeneralPurpose...)
	Registers = append(Registers, XZR, SP)
	Registers = append(Registers, Vector...)

	for _, reg := range Registers {
		RegistersByName[reg.Name] = reg
		for _, alias := range reg.Aliases {
			RegistersByName[alias] = reg
		}
	}
}

// RegisterType categorises an AArch64
// register.
type RegisterType uint8

const (
	_ RegisterType = iota
	TypeGeneralPurpose
	TypeZero
	TypeStackPointer
	TypeVector
)

func (t RegisterType) String() string {
	switch t {
	case TypeGeneralPurpose:
		return "general purpose register"
	case TypeZero:
		return "zero register"
	case TypeStackPointer:
		return "stack pointer"
	case TypeVector:
		return "vector register"
	default:
		return fmt.Sprintf("RegisterType(%d)", t)
	}
}
