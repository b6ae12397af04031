// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package ssair implements a single static assignment (SSA) form
// intermediate representation for one compilation unit.
//
// Nodes live in an arena owned by their Graph and are addressed
// by stable integer identifiers. Edges between nodes are stored
// as identifier lists rather than pointers, so the cycles formed
// by loop phis (which refer to themselves and to each other
// through loop back edges) do not create ownership cycles. A
// graph is owned exclusively by the compilation performing it;
// nothing in this package blocks or shares mutable state across
// compilations.
package ssair

import (
	"fmt"
	"math"
	"strings"

	"github.com/lewurm/opal/stamp"
)

// ID uniquely identifies a node within a single graph. IDs are
// stable for the life of the graph: removing a node never
// renumbers the others.
type ID int32

// None is the zero ID. No node ever has it.
const None ID = 0

func (id ID) String() string { return fmt.Sprintf("v%d", id) }

// idAllocator returns monotonically increasing positive ID
// values.
type idAllocator struct {
	last ID
}

func (a *idAllocator) Next() ID {
	next := a.last + 1
	if next >= math.MaxInt32 {
		panic("graph has too many nodes")
	}

	a.last = next
	return next
}

// Op describes what a node computes.
type Op int

const (
	OpInvalid Op = iota
	OpParam
	OpConst
	OpMerge
	OpLoopBegin
	OpPhi
	OpArrayEquals
	OpArrayCompare
)

var opString = [...]string{
	OpInvalid:      "Invalid",
	OpParam:        "Param",
	OpConst:        "Const",
	OpMerge:        "Merge",
	OpLoopBegin:    "LoopBegin",
	OpPhi:          "Phi",
	OpArrayEquals:  "ArrayEquals",
	OpArrayCompare: "ArrayCompare",
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opString) {
		return fmt.Sprintf("Op(%d)", int(op))
	}

	return opString[op]
}

// Node is a single entry in the graph arena. Value-producing
// nodes carry a stamp; control nodes (merges) carry none.
//
// Once a node has been created its ID and Op must not change.
// Its stamp is mutated only through stamp inference.
type Node struct {
	id    ID
	op    Op
	stamp stamp.Stamp

	// Data inputs, in order. For phis the order matches the
	// owning merge's predecessor order and is semantically
	// load-bearing.
	inputs []ID

	// Nodes that list this node among their inputs. Used to
	// schedule dependents during stamp inference. May contain
	// stale entries for removed nodes; consumers skip them.
	uses []ID

	// The owning merge, for phis.
	merge ID

	// Extra op-specific payload: the constant's value, or the
	// comparison parameters attached by the lowering driver.
	Extra any

	dead bool
}

// ID returns the node's identifier.
func (n *Node) ID() ID { return n.id }

// Op returns the node's operation.
func (n *Node) Op() Op { return n.op }

// Stamp returns the node's current stamp.
func (n *Node) Stamp() stamp.Stamp { return n.stamp }

// Inputs returns the node's data inputs in order. The returned
// slice must not be modified.
func (n *Node) Inputs() []ID { return n.inputs }

// Merge returns the owning merge for phi nodes, or None.
func (n *Node) Merge() ID { return n.merge }

func (n *Node) String() string { return n.id.String() }

// Graph owns the node arena for one compilation unit.
type Graph struct {
	nodes []*Node // Indexed by ID; nodes[0] is nil.
	ids   idAllocator
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: []*Node{nil}}
}

func (g *Graph) newNode(op Op, s stamp.Stamp) *Node {
	n := &Node{
		id:    g.ids.Next(),
		op:    op,
		stamp: s,
	}

	g.nodes = append(g.nodes, n)
	return n
}

// Node returns the node with the given ID, or nil if the ID is
// out of range or the node has been removed.
func (g *Graph) Node(id ID) *Node {
	if id <= None || int(id) >= len(g.nodes) {
		return nil
	}

	n := g.nodes[id]
	if n != nil && n.dead {
		return nil
	}

	return n
}

// NewParam creates a parameter node with the given stamp.
func (g *Graph) NewParam(s stamp.Stamp) *Node {
	return g.newNode(OpParam, s)
}

// NewConst creates a constant node with the given stamp and
// payload.
func (g *Graph) NewConst(s stamp.Stamp, value any) *Node {
	n := g.newNode(OpConst, s)
	n.Extra = value
	return n
}

// NewMerge creates a control-flow merge point with the given
// number of predecessors.
func (g *Graph) NewMerge(preds int) *Node {
	n := g.newNode(OpMerge, nil)
	n.Extra = preds
	return n
}

// NewLoopBegin creates a loop-header merge point. Its first
// predecessor is the forward entry edge; the remainder are loop
// back edges.
func (g *Graph) NewLoopBegin(preds int) *Node {
	n := g.newNode(OpLoopBegin, nil)
	n.Extra = preds
	return n
}

// NewValue creates a value node of the given op, stamp, and
// inputs. It is used for the builtin operations that the
// lowering driver turns into instruction descriptors.
func (g *Graph) NewValue(op Op, s stamp.Stamp, inputs ...*Node) *Node {
	n := g.newNode(op, s)
	for _, in := range inputs {
		n.inputs = append(n.inputs, in.id)
		in.uses = append(in.uses, n.id)
	}

	return n
}

// Remove marks a node as removed. Edges into the node from
// other (live) nodes must already be gone; stale use entries
// pointing at the removed node are skipped during inference.
func (g *Graph) Remove(n *Node) {
	for _, in := range n.inputs {
		if input := g.Node(in); input != nil {
			input.removeUse(n.id)
		}
	}

	n.dead = true
	n.inputs = nil
}

func (n *Node) removeUse(id ID) {
	for i, use := range n.uses {
		if use == id {
			n.uses = append(n.uses[:i], n.uses[i+1:]...)
			return
		}
	}
}

// predCount returns the number of predecessors of a merge.
func (n *Node) predCount() int {
	preds, _ := n.Extra.(int)
	return preds
}

// isLoopBegin reports whether the node is a loop-header merge.
func (n *Node) isLoopBegin() bool { return n.op == OpLoopBegin }

// Nodes returns the live nodes in creation order. The returned
// slice is freshly allocated on every call.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		if n == nil || n.dead {
			continue
		}

		nodes = append(nodes, n)
	}

	return nodes
}

// Print returns a textual representation of the graph, one node
// per line in creation order.
func (g *Graph) Print() string {
	var buf strings.Builder
	for _, n := range g.nodes {
		if n == nil || n.dead {
			continue
		}

		fmt.Fprintf(&buf, "%s := (%s", n.id, n.op)
		for _, in := range n.inputs {
			fmt.Fprintf(&buf, " %s", in)
		}

		buf.WriteByte(')')
		if n.stamp != nil {
			fmt.Fprintf(&buf, " %s", n.stamp)
		}

		if n.op == OpPhi {
			fmt.Fprintf(&buf, " (merge %s)", n.merge)
		}

		buf.WriteByte('\n')
	}

	return buf.String()
}
