// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package compiler drives a compilation unit from its SSA graph
// to encoded machine code.
//
// Compilation is a straight pipeline: the graph is verified,
// stamps are inferred to a fixed point, each builtin comparison
// node is lowered to an instruction descriptor, registers are
// allocated against the descriptor's operand schema, and the
// architecture backend emits and encodes the instruction stream.
// Each stage is a pure function of its inputs; independent
// graphs may be compiled concurrently.
package compiler

import (
	"fmt"

	"github.com/lewurm/opal/lir"
	"github.com/lewurm/opal/lir/aarch64"
	"github.com/lewurm/opal/obj"
	"github.com/lewurm/opal/ssair"
	"github.com/lewurm/opal/sys"
)

// Package contains the set of functions compiled from one
// graph.
type Package struct {
	Name  string
	Arch  *sys.Arch
	Funcs []*Func
}

// Func is one compiled comparison routine.
type Func struct {
	Name   string
	Kind   string   // The descriptor name, such as "array.equals.byte".
	Node   ssair.ID // The graph node the routine was lowered from.
	Desc   lir.Descriptor
	Alloc  lir.Allocation
	Stream *aarch64.Stream
	Code   []byte
}

// Compile lowers every builtin comparison node in the graph to
// machine code for the given architecture.
//
// The graph is verified and its stamps are inferred first, so
// the lowering preconditions see each value's most precise
// stamp. Any defect aborts the whole unit; Compile never emits
// code for a graph it cannot prove well-formed.
func Compile(arch *sys.Arch, name string, g *ssair.Graph, tuning aarch64.Tuning) (*Package, error) {
	if arch != sys.AArch64 {
		return nil, fmt.Errorf("compiler: unsupported architecture %s", arch.Name)
	}

	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("compiler: %v", err)
	}

	if err := g.Verify(); err != nil {
		return nil, fmt.Errorf("compiler: invalid graph: %v", err)
	}

	g.InferStamps()

	p := &Package{Name: name, Arch: arch}
	for _, n := range g.Nodes() {
		switch n.Op() {
		case ssair.OpArrayEquals, ssair.OpArrayCompare:
		default:
			continue
		}

		fn, err := lowerNode(arch, g, n, tuning)
		if err != nil {
			return nil, err
		}

		p.Funcs = append(p.Funcs, fn)
	}

	return p, nil
}

// Unit packages the compiled functions for serialization.
func (p *Package) Unit() *obj.Unit {
	u := &obj.Unit{Name: p.Name, Arch: p.Arch}
	for _, fn := range p.Funcs {
		u.Funcs = append(u.Funcs, obj.Function{
			Name: fn.Name,
			Kind: fn.Kind,
			Code: fn.Code,
		})
	}

	return u
}
