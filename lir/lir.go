// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package lir describes machine instructions abstractly: each
// instruction is a descriptor with a fixed set of operand slots,
// every slot tagged with a role that a generic register
// allocator can consume without knowing the instruction.
package lir

import (
	"fmt"

	"github.com/lewurm/opal/internal/a64"
	"github.com/lewurm/opal/sys"
)

// Role describes how an instruction treats one of its
// operands.
type Role uint8

const (
	_ Role = iota

	// Def operands are written by the instruction. A Def
	// location must be fresh: it may not alias any location
	// the instruction still reads.
	Def

	// Use operands are read by the instruction. Their value
	// is consumed when the instruction starts.
	Use

	// Alive operands are read by the instruction and must
	// remain valid for its whole duration: the instruction
	// refers to them repeatedly while it runs.
	Alive

	// Temp operands carry no input value. The instruction
	// clobbers them as scratch space.
	Temp
)

func (r Role) String() string {
	switch r {
	case Def:
		return "def"
	case Use:
		return "use"
	case Alive:
		return "alive"
	case Temp:
		return "temp"
	default:
		return fmt.Sprintf("Role(%d)", r)
	}
}

// RegClass is the register class an operand slot must be
// allocated in.
type RegClass uint8

const (
	_ RegClass = iota
	ClassGP
	ClassVector
)

func (c RegClass) String() string {
	switch c {
	case ClassGP:
		return "general purpose"
	case ClassVector:
		return "vector"
	default:
		return fmt.Sprintf("RegClass(%d)", c)
	}
}

// OperandSpec describes one operand slot of a descriptor.
type OperandSpec struct {
	Name  string
	Role  Role
	Class RegClass
}

// Descriptor is a machine instruction with a fixed operand
// schema. Descriptors are immutable after construction.
type Descriptor interface {
	// Name identifies the instruction in listings and
	// diagnostics.
	Name() string

	// Operands returns the instruction's operand schema.
	// The returned slice must not be modified.
	Operands() []OperandSpec
}

// Allocation assigns a physical location to each operand
// slot of a descriptor, in schema order.
type Allocation []sys.Location

// Register returns the allocated register for slot i.
func (a Allocation) Register(i int) *a64.Register {
	reg, ok := a[i].(*a64.Register)
	if !ok {
		panic(fmt.Sprintf("operand %d is allocated to %s, not a register", i, a[i]))
	}

	return reg
}

// CheckAllocation checks an allocation against a descriptor's
// operand schema. The roles promise the instruction certain
// non-aliasing guarantees; an allocation that breaks them
// would emit silently wrong code, so a violation is an error
// that aborts the compilation unit.
func CheckAllocation(desc Descriptor, alloc Allocation) error {
	specs := desc.Operands()
	if len(alloc) != len(specs) {
		return fmt.Errorf("%s: allocation has %d locations for %d operands", desc.Name(), len(alloc), len(specs))
	}

	for i, spec := range specs {
		loc := alloc[i]
		if loc == nil {
			return fmt.Errorf("%s: operand %s has no location", desc.Name(), spec.Name)
		}

		reg, ok := loc.(*a64.Register)
		if !ok {
			return fmt.Errorf("%s: operand %s is allocated to %s, which is not a register", desc.Name(), spec.Name, loc)
		}

		switch spec.Class {
		case ClassGP:
			if reg.Type != a64.TypeGeneralPurpose {
				return fmt.Errorf("%s: operand %s needs a %s register, got %s", desc.Name(), spec.Name, spec.Class, reg)
			}
		case ClassVector:
			if reg.Type != a64.TypeVector {
				return fmt.Errorf("%s: operand %s needs a %s register, got %s", desc.Name(), spec.Name, spec.Class, reg)
			}
		}
	}

	// Written locations (Def and Temp) must not alias any
	// location the instruction reads while it runs, and
	// must be pairwise distinct.
	written := make(map[sys.Location]string)
	for i, spec := range specs {
		if spec.Role != Def && spec.Role != Temp {
			continue
		}

		if prev, ok := written[alloc[i]]; ok {
			return fmt.Errorf("%s: operands %s and %s share location %s", desc.Name(), prev, spec.Name, alloc[i])
		}
		written[alloc[i]] = spec.Name
	}

	for i, spec := range specs {
		if spec.Role != Use && spec.Role != Alive {
			continue
		}

		if writer, ok := written[alloc[i]]; ok {
			return fmt.Errorf("%s: %s operand %s shares location %s with %s", desc.Name(), spec.Role, spec.Name, alloc[i], writer)
		}
	}

	return nil
}
