// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package compiler

import (
	"fmt"

	"github.com/lewurm/opal/lir"
	"github.com/lewurm/opal/lir/aarch64"
	"github.com/lewurm/opal/ssair"
	"github.com/lewurm/opal/stamp"
	"github.com/lewurm/opal/sys"
)

// ArrayEqualsParams configures an ArrayEquals node. It is
// attached to the node through its Extra field. The node's
// inputs follow the descriptor's operand order: array1,
// offset1 (if WithOffsets), array2, offset2 (if WithOffsets),
// length.
type ArrayEqualsParams struct {
	Name        string // Routine name. Defaults to the descriptor name.
	Kind        lir.Kind
	BaseOffset1 int64
	BaseOffset2 int64
	WithOffsets bool
}

// ArrayCompareParams configures an ArrayCompare node, in the
// caller's natural argument order. The node's inputs are
// array1, array2, length1, length2, in the same order.
type ArrayCompareParams struct {
	Name        string // Routine name. Defaults to the descriptor name.
	Kind1       lir.Kind
	Kind2       lir.Kind
	BaseOffset1 int64
	BaseOffset2 int64
}

// lowerNode turns one comparison node into machine code. The
// node's stamps are preconditions: the emitted routine performs
// no null or bounds checks of its own, so the graph must prove
// the arrays non-null and the lengths non-negative before the
// node is reachable.
func lowerNode(arch *sys.Arch, g *ssair.Graph, n *ssair.Node, tuning aarch64.Tuning) (*Func, error) {
	var (
		name string
		desc lir.Descriptor
		err  error
	)

	switch n.Op() {
	case ssair.OpArrayEquals:
		params, ok := n.Extra.(ArrayEqualsParams)
		if !ok {
			return nil, fmt.Errorf("compiler: %s node %s carries no parameters", n.Op(), n)
		}

		inputs := 3
		if params.WithOffsets {
			inputs = 5
		}
		if err := checkInputCount(n, inputs); err != nil {
			return nil, err
		}

		if params.WithOffsets {
			err = checkInputs(g, n,
				pointerInput, intInput, pointerInput, intInput, lengthInput)
		} else {
			err = checkInputs(g, n,
				pointerInput, pointerInput, lengthInput)
		}
		if err != nil {
			return nil, err
		}

		name = params.Name
		desc, err = lir.NewArrayEquals(params.Kind, params.BaseOffset1, params.BaseOffset2, params.WithOffsets)

	case ssair.OpArrayCompare:
		params, ok := n.Extra.(ArrayCompareParams)
		if !ok {
			return nil, fmt.Errorf("compiler: %s node %s carries no parameters", n.Op(), n)
		}

		if err := checkInputCount(n, 4); err != nil {
			return nil, err
		}
		if err := checkInputs(g, n,
			pointerInput, pointerInput, lengthInput, lengthInput); err != nil {
			return nil, err
		}

		name = params.Name
		desc, err = lir.NewArrayCompare(params.Kind1, params.Kind2, params.BaseOffset1, params.BaseOffset2)

	default:
		return nil, fmt.Errorf("compiler: cannot lower %s node %s", n.Op(), n)
	}
	if err != nil {
		return nil, fmt.Errorf("compiler: node %s: %v", n, err)
	}

	alloc, err := lir.Allocate(arch, desc)
	if err != nil {
		return nil, fmt.Errorf("compiler: node %s: %v", n, err)
	}

	s := aarch64.NewStream()
	switch op := desc.(type) {
	case *lir.ArrayEquals:
		err = aarch64.LowerArrayEquals(s, op, alloc, tuning)
	case *lir.ArrayCompare:
		err = aarch64.LowerArrayCompare(s, op, alloc, tuning)
	}
	if err != nil {
		return nil, fmt.Errorf("compiler: node %s: %v", n, err)
	}

	code, err := aarch64.Encode(s)
	if err != nil {
		return nil, fmt.Errorf("compiler: node %s: %v", n, err)
	}

	if name == "" {
		name = desc.Name()
	}

	return &Func{
		Name:   name,
		Kind:   desc.Name(),
		Node:   n.ID(),
		Desc:   desc,
		Alloc:  alloc,
		Stream: s,
		Code:   code,
	}, nil
}

func checkInputCount(n *ssair.Node, want int) error {
	if got := len(n.Inputs()); got != want {
		return fmt.Errorf("compiler: %s node %s has %d inputs, want %d", n.Op(), n, got, want)
	}

	return nil
}

// checkInputs applies one stamp precondition per input, in
// input order.
func checkInputs(g *ssair.Graph, n *ssair.Node, checks ...func(stamp.Stamp) error) error {
	for i, id := range n.Inputs() {
		input := g.Node(id)
		if input == nil {
			return fmt.Errorf("compiler: %s node %s: input %s does not exist", n.Op(), n, id)
		}

		if err := checks[i](input.Stamp()); err != nil {
			return fmt.Errorf("compiler: %s node %s: input %s: %v", n.Op(), n, id, err)
		}
	}

	return nil
}

// pointerInput requires a provably non-null pointer. The graph
// builder inserts the guard that establishes this; lowering an
// unproven pointer is a defect there, not a condition the
// routine can recover from at runtime.
func pointerInput(s stamp.Stamp) error {
	p, ok := s.(stamp.Pointer)
	if !ok {
		return fmt.Errorf("have stamp %s, want a pointer", s)
	}

	if !p.IsNonNull() {
		return fmt.Errorf("pointer is not provably non-null (%s)", s)
	}

	return nil
}

// intInput requires an integer of at most 64 bits.
func intInput(s stamp.Stamp) error {
	if _, ok := s.(stamp.Int); !ok {
		return fmt.Errorf("have stamp %s, want an integer", s)
	}

	return nil
}

// lengthInput requires an integer whose range excludes negative
// values.
func lengthInput(s stamp.Stamp) error {
	z, ok := s.(stamp.Int)
	if !ok {
		return fmt.Errorf("have stamp %s, want an integer", s)
	}

	if z.Lo < 0 {
		return fmt.Errorf("length is not provably non-negative (%s)", s)
	}

	return nil
}
