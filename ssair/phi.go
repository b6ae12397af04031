// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package ssair

import (
	"fmt"
	"strings"

	"github.com/lewurm/opal/stamp"
)

// NewPhi creates a phi node owned by the given merge. The
// inputs, one per incoming control-flow edge, must be given in
// the merge's predecessor order. Fewer inputs than predecessors
// may be supplied during construction (the back edge of a loop
// phi does not exist until the loop body has been built) and
// appended later with AddInput.
func (g *Graph) NewPhi(merge *Node, s stamp.Stamp, inputs ...*Node) *Node {
	if merge.op != OpMerge && merge.op != OpLoopBegin {
		panic(fmt.Sprintf("NewPhi: %s is a %s, not a merge", merge, merge.op))
	}
	if len(inputs) > merge.predCount() {
		panic(fmt.Sprintf("NewPhi: %d inputs for a merge with %d predecessors", len(inputs), merge.predCount()))
	}

	n := g.newNode(OpPhi, s)
	n.merge = merge.id
	for _, in := range inputs {
		n.inputs = append(n.inputs, in.id)
		in.uses = append(in.uses, n.id)
	}

	return n
}

// AddInput appends an input to a phi, preserving predecessor
// order. Adding an input does not trigger inference; inference
// is a separate, explicit pass.
func (g *Graph) AddInput(phi, input *Node) {
	if phi.op != OpPhi {
		panic(fmt.Sprintf("AddInput: %s is a %s, not a phi", phi, phi.op))
	}

	merge := g.Node(phi.merge)
	if len(phi.inputs) >= merge.predCount() {
		panic(fmt.Sprintf("AddInput: phi %s already has %d inputs", phi, len(phi.inputs)))
	}

	phi.inputs = append(phi.inputs, input.id)
	input.uses = append(input.uses, phi.id)
}

// SetInput replaces the input at the given predecessor index.
func (g *Graph) SetInput(phi *Node, i int, input *Node) {
	if phi.op != OpPhi {
		panic(fmt.Sprintf("SetInput: %s is a %s, not a phi", phi, phi.op))
	}

	if old := g.Node(phi.inputs[i]); old != nil {
		old.removeUse(phi.id)
	}

	phi.inputs[i] = input.id
	input.uses = append(input.uses, phi.id)
}

// DuplicateOn re-creates the phi at a different merge point
// with the same input list. The copy's inputs preserve the
// original order, and no inference is run.
func (g *Graph) DuplicateOn(phi *Node, merge *Node) *Node {
	return g.duplicate(phi, merge, phi.inputs)
}

// DuplicateWithInputs re-creates the phi at a different merge
// point with a substituted input list, preserving the given
// order. No inference is run.
func (g *Graph) DuplicateWithInputs(phi *Node, merge *Node, inputs ...*Node) *Node {
	ids := make([]ID, len(inputs))
	for i, in := range inputs {
		ids[i] = in.id
	}

	return g.duplicate(phi, merge, ids)
}

func (g *Graph) duplicate(phi *Node, merge *Node, inputs []ID) *Node {
	if phi.op != OpPhi {
		panic(fmt.Sprintf("duplicate: %s is a %s, not a phi", phi, phi.op))
	}
	if merge.op != OpMerge && merge.op != OpLoopBegin {
		panic(fmt.Sprintf("duplicate: %s is a %s, not a merge", merge, merge.op))
	}

	n := g.newNode(OpPhi, phi.stamp)
	n.merge = merge.id
	n.inputs = append(n.inputs, inputs...)
	for _, in := range inputs {
		if input := g.Node(in); input != nil {
			input.uses = append(input.uses, n.id)
		}
	}

	return n
}

// inferStamp runs one stamp inference pass over the phi and
// reports whether its stamp changed.
//
// The new stamp is the meet of all input stamps (the phi's own
// previous stamp is excluded: it is what is being computed),
// narrowed by a join against the previous stamp when compatible,
// and finally sharpened to non-null for loop phis whose inputs
// are transitively proven non-null.
func (g *Graph) inferStamp(phi *Node) bool {
	var valuesStamp stamp.Stamp
	for _, in := range phi.inputs {
		input := g.Node(in)
		if input == nil || input.id == phi.id {
			continue
		}

		if valuesStamp == nil {
			valuesStamp = input.stamp
		} else {
			valuesStamp = valuesStamp.Meet(input.stamp)
		}
	}

	if valuesStamp == nil {
		// No inputs yet: no information, keep the current
		// stamp.
		return false
	} else if phi.stamp != nil && phi.stamp.IsCompatible(valuesStamp) {
		valuesStamp = phi.stamp.Join(valuesStamp)
	}

	valuesStamp = g.tryInferNonNull(phi, valuesStamp)

	// All stamp implementations are comparable value types,
	// so interface equality is exact.
	if valuesStamp == phi.stamp {
		return false
	}

	phi.stamp = valuesStamp
	return true
}

// tryInferNonNull checks whether the phi is part of a set of
// mutually recursive loop phis whose only other inputs are
// proven non-null. In that case the pointer stamp can be
// sharpened to its non-null variant.
//
// The search is a forward worklist traversal over node IDs,
// seeded with the phi inputs of this phi: a non-phi input that
// is not proven non-null disproves the sharpening immediately;
// phi inputs are added to the frontier for recursive checking
// rather than being checked directly.
func (g *Graph) tryInferNonNull(phi *Node, valuesStamp stamp.Stamp) stamp.Stamp {
	ptr, ok := valuesStamp.(stamp.Pointer)
	if !ok || ptr.IsNonNull() || ptr.IsAlwaysNull() {
		return valuesStamp
	}

	merge := g.Node(phi.merge)
	if merge == nil || !merge.isLoopBegin() {
		return valuesStamp
	}

	if len(phi.inputs) == 0 || !g.isPointerNonNull(phi.inputs[0]) {
		return valuesStamp
	}

	// Fail early if this phi already has possibly-null
	// non-phi inputs.
	var frontier []ID
	for _, in := range phi.inputs {
		input := g.Node(in)
		if input == nil {
			continue
		}
		if input.id == phi.id {
			continue
		}
		if input.op == OpPhi {
			frontier = append(frontier, input.id)
			continue
		}
		if !g.isPointerNonNull(in) {
			return valuesStamp
		}
	}

	// Check input phis recursively.
	visited := map[ID]bool{phi.id: true}
	for len(frontier) > 0 {
		id := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if visited[id] {
			continue
		}
		visited[id] = true

		other := g.Node(id)
		if other == nil || other.op != OpPhi {
			continue
		}

		for _, in := range other.inputs {
			input := g.Node(in)
			if input == nil {
				continue
			}
			if input.id == phi.id || input.op == OpPhi {
				frontier = append(frontier, input.id)
			} else if !g.isPointerNonNull(in) {
				return valuesStamp
			}
		}
	}

	// All transitive inputs are non-null.
	return ptr.AsNonNull()
}

// isPointerNonNull reports whether the node's stamp proves it
// is a non-null pointer. A phi consulted mid-inference uses its
// previous stamp, which is sound: the fixed point only ever
// narrows it further.
func (g *Graph) isPointerNonNull(id ID) bool {
	n := g.Node(id)
	if n == nil {
		return false
	}

	ptr, ok := n.stamp.(stamp.Pointer)
	return ok && ptr.IsNonNull()
}

// InferStamps propagates stamps through the graph until no
// stamp changes: the classic dataflow fixed point. Phi stamp
// sequences are non-increasing in generality, so the pass
// terminates for any finite graph.
func (g *Graph) InferStamps() {
	var work []ID
	inWork := make(map[ID]bool)
	push := func(id ID) {
		if !inWork[id] {
			inWork[id] = true
			work = append(work, id)
		}
	}

	for _, n := range g.nodes {
		if n != nil && !n.dead && n.op == OpPhi {
			push(n.id)
		}
	}

	for len(work) > 0 {
		id := work[0]
		work = work[1:]
		inWork[id] = false

		n := g.Node(id)
		if n == nil || n.op != OpPhi {
			continue
		}

		if g.inferStamp(n) {
			for _, use := range n.uses {
				if dep := g.Node(use); dep != nil && dep.op == OpPhi {
					push(dep.id)
				}
			}
		}
	}
}

// Verify checks every phi in the graph: all inputs of a phi
// must report mutually compatible stamps. A violation is a
// defect in the graph builder, reported with the offending phi
// identity and a per-input stamp dump, and aborts compilation
// of the unit; it is never a runtime fault.
func (g *Graph) Verify() error {
	for _, n := range g.nodes {
		if n == nil || n.dead || n.op != OpPhi {
			continue
		}

		var first stamp.Stamp
		for _, in := range n.inputs {
			input := g.Node(in)
			if input == nil {
				return fmt.Errorf("phi %s: input %s does not exist", n, in)
			}

			if first == nil {
				first = input.stamp
				continue
			}

			if !first.IsCompatible(input.stamp) {
				return fmt.Errorf("phi %s: input stamps are not compatible: %s", n, g.describeInputs(n))
			}
		}

		merge := g.Node(n.merge)
		if merge == nil {
			return fmt.Errorf("phi %s: merge %s does not exist", n, n.merge)
		}
		if len(n.inputs) > merge.predCount() {
			return fmt.Errorf("phi %s: %d inputs for merge %s with %d predecessors", n, len(n.inputs), merge, merge.predCount())
		}
	}

	return nil
}

// describeInputs renders each input with its stamp for
// verification failures.
func (g *Graph) describeInputs(phi *Node) string {
	parts := make([]string, 0, len(phi.inputs))
	for _, in := range phi.inputs {
		input := g.Node(in)
		if input == nil {
			parts = append(parts, fmt.Sprintf("%s:removed", in))
			continue
		}

		parts = append(parts, fmt.Sprintf("%s:%s", input, input.stamp))
	}

	return strings.Join(parts, ", ")
}
