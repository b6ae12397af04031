// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package sys defines the characteristics of machine architectures.
package sys

import (
	"encoding/binary"
	"fmt"

	"github.com/lewurm/opal/internal/a64"
)

// Arch defines the characteristics of a machine architecture.
//
// An architecture with no Arch data is not implemented by
// this backend.
type Arch struct {
	Name   string
	Family ArchFamily

	PointerSize  int // The size of a memory address in bytes.
	RegisterSize int // The capacity of a general-purpose register in bytes.
	VectorSize   int // The capacity of a vector register in bytes.
	ByteOrder    binary.ByteOrder

	// ABI details.

	// Contains the full set of registers in
	// this architecture. The order of these
	// registers is arbitrary and may change.
	Registers []Location

	// Maps register names to their structured
	// data.
	RegisterNames map[string]Location

	// The set of all general-purpose registers
	// available to the ABI, not including the
	// stack pointer, frame pointer or link
	// register.
	ABIRegisters []Location

	// Internal cache of the ABI registers.
	abiRegisters map[Location]bool

	// The architecture's stack register.
	StackPointer Location

	// Whether the stack grows downward. If
	// true, successive stack locations will
	// have smaller addresses.
	StackGrowsDown bool

	// The alignment of the stack at the point
	// of a function call in bytes.
	StackAlignment int

	// The ABI to use if none is specified.
	DefaultABI ABI
}

// IsABIRegister reports whether the given location is
// one of the architecture's ABI registers.
func (a *Arch) IsABIRegister(loc Location) bool {
	return a.abiRegisters[loc]
}

// ReadPointer returns a pointer from the given machine
// code, according to the architecture's pointer size and
// byte order.
func (a *Arch) ReadPointer(b []byte) uintptr {
	switch a.PointerSize {
	case 4:
		return uintptr(a.ByteOrder.Uint32(b))
	case 8:
		return uintptr(a.ByteOrder.Uint64(b))
	default:
		panic(fmt.Sprintf("architecture %s has unexpected pointer size %d", a.Name, a.PointerSize))
	}
}

// WritePointer writes a pointer to the given machine code,
// according to the architecture's pointer size and byte
// order.
func (a *Arch) WritePointer(b []byte, ptr uintptr) {
	switch a.PointerSize {
	case 4:
		a.ByteOrder.PutUint32(b, uint32(ptr))
	case 8:
		a.ByteOrder.PutUint64(b, uint64(ptr))
	default:
		panic(fmt.Sprintf("architecture %s has unexpected pointer size %d", a.Name, a.PointerSize))
	}
}

var AArch64 = &Arch{
	Name:         "aarch64",
	Family:       FamilyAArch64,
	PointerSize:  8,
	RegisterSize: 8,
	VectorSize:   16,
	ByteOrder:    binary.LittleEndian,
	Registers: []Location{
		a64.X0, a64.X1, a64.X2, a64.X3, a64.X4, a64.X5, a64.X6, a64.X7,
		a64.X8, a64.X9, a64.X10, a64.X11, a64.X12, a64.X13, a64.X14, a64.X15,
		a64.X16, a64.X17, a64.X18, a64.X19, a64.X20, a64.X21, a64.X22, a64.X23,
		a64.X24, a64.X25, a64.X26, a64.X27, a64.X28, a64.X29, a64.X30,
		a64.XZR, a64.SP,
		a64.V0, a64.V1, a64.V2, a64.V3, a64.V4, a64.V5, a64.V6, a64.V7,
		a64.V8, a64.V9, a64.V10, a64.V11, a64.V12, a64.V13, a64.V14, a64.V15,
		a64.V16, a64.V17, a64.V18, a64.V19, a64.V20, a64.V21, a64.V22, a64.V23,
		a64.V24, a64.V25, a64.V26, a64.V27, a64.V28, a64.V29, a64.V30, a64.V31,
	},
	// x16 and x17 are reserved for the macro assembler's
	// scoped scratch registers and are never allocatable.
	ABIRegisters: []Location{
		a64.X0, a64.X1, a64.X2, a64.X3, a64.X4, a64.X5, a64.X6, a64.X7,
		a64.X8, a64.X9, a64.X10, a64.X11, a64.X12, a64.X13, a64.X14, a64.X15,
		a64.X19, a64.X20, a64.X21, a64.X22, a64.X23,
		a64.X24, a64.X25, a64.X26, a64.X27, a64.X28,
	},
	StackPointer:   a64.SP,
	StackGrowsDown: true,
	StackAlignment: 16,
	DefaultABI: ABI{
		ParamRegisters:  []Location{a64.X0, a64.X1, a64.X2, a64.X3, a64.X4, a64.X5, a64.X6, a64.X7},
		ResultRegisters: []Location{a64.X0, a64.X1},
		ScratchRegisters: []Location{
			a64.X0, a64.X1, a64.X2, a64.X3, a64.X4, a64.X5, a64.X6, a64.X7,
			a64.X8, a64.X9, a64.X10, a64.X11, a64.X12, a64.X13, a64.X14, a64.X15,
		},
		UnusedRegisters: []Location{
			a64.X16, a64.X17,
			a64.X18, a64.X19, a64.X20, a64.X21, a64.X22, a64.X23,
			a64.X24, a64.X25, a64.X26, a64.X27, a64.X28, a64.X29, a64.X30,
			a64.SP,
		},
		ScratchVectors: []Location{
			a64.V0, a64.V1, a64.V2, a64.V3, a64.V4, a64.V5, a64.V6, a64.V7,
			a64.V16, a64.V17, a64.V18, a64.V19, a64.V20, a64.V21, a64.V22, a64.V23,
			a64.V24, a64.V25, a64.V26, a64.V27, a64.V28, a64.V29, a64.V30, a64.V31,
		},
	},
}

// All is a list of all supported architectures.
var All = [...]*Arch{
	AArch64,
}

func init() {
	// Populate arch.abiRegisters and arch.RegisterNames.
	for _, arch := range All {
		arch.abiRegisters = make(map[Location]bool)
		for _, reg := range arch.ABIRegisters {
			arch.abiRegisters[reg] = true
		}

		arch.RegisterNames = make(map[string]Location)
		for _, reg := range arch.Registers {
			arch.RegisterNames[reg.String()] = reg
		}
	}
}

// ArchByName maps architecture names to their
// metadata.
var ArchByName = map[string]*Arch{
	AArch64.Name: AArch64,
}

// ArchFamily represents a group of related machine
// architectures.
type ArchFamily uint8

const (
	FamilyNone ArchFamily = iota
	FamilyAArch64
)
