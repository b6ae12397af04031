// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package lir

import (
	"fmt"

	"github.com/lewurm/opal/sys"
)

// Allocate assigns a distinct register to every operand slot
// of the descriptor, drawing from the architecture's scratch
// sets. Assigning pairwise-distinct registers trivially
// satisfies the role contract; CheckAllocation still runs so
// a future, cleverer allocator inherits the same guard.
//
// We take a fairly straightforward approach here: a single
// pass over the schema, handing out caller-preserved
// registers in ABI order. This could definitely be optimised
// to share registers between Use and Def slots.
func Allocate(arch *sys.Arch, desc Descriptor) (Allocation, error) {
	gp := arch.DefaultABI.ScratchRegisters
	vec := arch.DefaultABI.ScratchVectors

	var nextGP, nextVec int
	alloc := make(Allocation, 0, len(desc.Operands()))
	for _, spec := range desc.Operands() {
		switch spec.Class {
		case ClassGP:
			if nextGP >= len(gp) {
				return nil, fmt.Errorf("%s: out of %s registers at operand %s", desc.Name(), spec.Class, spec.Name)
			}
			alloc = append(alloc, gp[nextGP])
			nextGP++
		case ClassVector:
			if nextVec >= len(vec) {
				return nil, fmt.Errorf("%s: out of %s registers at operand %s", desc.Name(), spec.Class, spec.Name)
			}
			alloc = append(alloc, vec[nextVec])
			nextVec++
		default:
			return nil, fmt.Errorf("%s: operand %s has unknown register class %s", desc.Name(), spec.Name, spec.Class)
		}
	}

	if err := CheckAllocation(desc, alloc); err != nil {
		return nil, err
	}

	return alloc, nil
}
