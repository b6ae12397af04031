// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package sys

import (
	"fmt"

	"github.com/lewurm/opal/internal/a64"
)

// Location represents a single location in memory.
// This is used to describe aspects of a function's
// calling convention. A location will typically be
// either a CPU register or an offset into the call
// stack.
type Location interface {
	IsRegister() bool
	String() string
}

var (
	_ Location = (*a64.Register)(nil)
)

// Stack represents a location on the stack, which
// is a common Location.
type Stack struct {
	Pointer Location // The stack pointer.
	Offset  int      // An offset from the stack pointer.
}

var _ Location = Stack{}

func (s Stack) IsRegister() bool { return false }
func (s Stack) String() string   { return fmt.Sprintf("%s%+d", s.Pointer, s.Offset) }

// ABI describes the calling convention used by a
// function.
type ABI struct {
	// The sequence of registers available to be
	// used to carry parameters. If the ABI passes
	// all parameters on the stack, ParamRegisters
	// will be empty.
	ParamRegisters []Location

	// The sequence of registers available to be
	// used to carry results.
	ResultRegisters []Location

	// The set of general-purpose registers that a
	// function may overwrite at will and thus must
	// be preserved by the caller if needed after
	// the function call.
	ScratchRegisters []Location

	// The set of registers that a function must
	// preserve or leave unused.
	UnusedRegisters []Location

	// The set of vector registers that a function
	// may overwrite at will.
	ScratchVectors []Location
}

// Validate checks that the ABI's register sets are
// mutually consistent: no register appears in both
// the scratch and unused sets.
func (abi *ABI) Validate(arch *Arch) error {
	unused := make(map[Location]bool, len(abi.UnusedRegisters))
	for _, reg := range abi.UnusedRegisters {
		unused[reg] = true
	}

	for _, reg := range abi.ScratchRegisters {
		if unused[reg] {
			return fmt.Errorf("invalid ABI for %s: register %s is both scratch and unused", arch.Name, reg)
		}
	}

	return nil
}
