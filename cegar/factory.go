// Package cegar implements spec §4.8's counter-example-guided
// abstraction-refinement loop: an abstract PDS factory that substitutes
// concrete interfaces and labels by coarser abstract ids, a post*/pre*
// solve step reusing the automaton package, concrete replay of any
// abstract witness found, and partition refinement when replay fails.
// Grounded on `_examples/original_source/src/aalwines/model/CegarNetworkPdaFactory.h`.
package cegar

import (
	"aalwines.dev/label"
	"aalwines.dev/pds"
	"aalwines.dev/routing"
	"aalwines.dev/topology"

	"github.com/google/uuid"
)

// Abstraction holds the two surjections CEGAR refines: one on concrete
// network interfaces, one on concrete labels. Both start maximally
// coarse (a single class each), so the first abstract PDS is the
// smallest possible over-approximation.
type Abstraction struct {
	// ID is opaque and stable for the lifetime of one Abstraction value;
	// Refine mutates the partitions in place rather than replacing them,
	// so ID lets a caller's log lines correlate refinement rounds against
	// the same abstraction across a Solve run.
	ID     uuid.UUID
	Ifaces *Partition[topology.InterfaceID]
	Labels *Partition[label.Label]
}

// NewAbstraction returns the coarsest abstraction of net: every
// interface in class 0, every label in class 0.
func NewAbstraction(net *topology.Network) *Abstraction {
	return &Abstraction{
		ID:     uuid.New(),
		Ifaces: NewCoarsePartition(net.Interfaces()),
		Labels: NewCoarsePartition(label.BuildUniverse(net.AllLabelOccurrences()).Labels()),
	}
}

// Witness records one concrete (interface, label, routing rule) triple
// that realizes an abstract PDS rule, so that Solve's replay step can
// check the abstract witness against the real network.
type Witness struct {
	Iface topology.InterfaceID
	Label label.Label
	Rule  routing.Rule
}

// Result bundles the abstract PDS together with per-rule witness lists
// and the abstract-interface<->state mapping trace/replay needs.
type Result struct {
	PDS     *pds.PDS
	Final   pds.StateID
	StateOf map[int]pds.StateID

	// Witnesses maps every abstract rule back to the concrete triples
	// that produced it. A multi-op routing rule's chain links each get
	// their own entry, keyed on the per-link pds.Rule, pointing at the
	// same underlying concrete witness — see cegar's DESIGN.md entry for
	// why replay only re-validates the chain's first link.
	Witnesses map[pds.Rule][]Witness
}

type abstractBuilder struct {
	net     *topology.Network
	abs     *Abstraction
	p       *pds.PDS
	stateOf map[int]pds.StateID
	nextAux pds.StateID
	wit     map[pds.Rule][]Witness
}

// Build constructs the abstract PDS for net under abs: control states
// are abstract interface classes (plus the distinguished final state),
// and a rule's pre-label/op-arg are substituted by their abstract
// class, using a reserved wildcard class (wildcardLabelClass) for a
// table's default ("ignores label") entry, per spec §4.8 ("wildcard
// labels use a reserved abstract ID").
func Build(net *topology.Network, abs *Abstraction) *Result {
	numClasses := abs.Ifaces.NumClasses()
	b := &abstractBuilder{
		net:     net,
		abs:     abs,
		p:       pds.New(1 + numClasses),
		stateOf: make(map[int]pds.StateID, numClasses),
		nextAux: pds.StateID(1 + numClasses),
		wit:     map[pds.Rule][]Witness{},
	}
	for class := 0; class < numClasses; class++ {
		b.stateOf[class] = pds.StateID(1 + class)
	}

	for _, id := range net.Interfaces() {
		b.buildInterface(id)
	}

	return &Result{
		PDS:       b.p,
		Final:     pds.FinalState,
		StateOf:   b.stateOf,
		Witnesses: b.wit,
	}
}

// wildcardLabelClass is the reserved abstract label id for a routing
// table's default ("ignores label") entry. It lies far outside any real
// class id (which starts at 0 and grows by one per Refine call), so it
// never collides with a genuine class.
const wildcardLabelClass uint64 = 1 << 48

func (b *abstractBuilder) allocAux() pds.StateID {
	s := b.nextAux
	b.nextAux++
	b.p.EnsureState(s)
	return s
}

func (b *abstractBuilder) buildInterface(id topology.InterfaceID) {
	iface := b.net.Interface(id)
	fromClass := b.abs.Ifaces.Abstract(id)
	from := b.stateOf[fromClass]

	for _, e := range iface.Table().Entries() {
		abstractLabel := label.MPLSLabel(wildcardLabelClass)
		if !e.IsDefault {
			abstractLabel = label.MPLSLabel(uint64(b.abs.Labels.Abstract(e.TopLabel)))
		}
		concreteLabel := e.TopLabel

		for _, rule := range e.Rules {
			b.emitRule(id, from, abstractLabel, concreteLabel, rule)
		}
	}
}

func (b *abstractBuilder) emitRule(iface topology.InterfaceID, from pds.StateID, abstractLabel, concreteLabel label.Label, rule routing.Rule) {
	var dest pds.StateID
	switch rule.Type {
	case routing.TypeDiscard, routing.TypeReceive:
		dest = pds.FinalState
	default:
		dest = b.stateOf[b.abs.Ifaces.Abstract(topology.InterfaceID(rule.Via))]
	}

	w := Witness{Iface: iface, Label: concreteLabel, Rule: rule}
	b.emitChain(from, abstractLabel, rule.Ops, dest, w)
}

func (b *abstractBuilder) emitChain(from pds.StateID, top label.Label, ops []routing.Op, to pds.StateID, w Witness) {
	if len(ops) == 0 {
		r := pds.Rule{From: from, PreLabel: top, To: to, Op: pds.Op{Kind: pds.Noop}}
		b.p.AddConcreteRule(r)
		b.wit[r] = append(b.wit[r], w)
		return
	}

	cur := from
	curLabel := top
	for i, op := range ops {
		var pdsOp pds.Op
		switch op.Kind {
		case routing.Push:
			pdsOp = pds.Op{Kind: pds.Push, Arg: label.MPLSLabel(uint64(b.abs.Labels.Abstract(op.Arg)))}
		case routing.Pop:
			pdsOp = pds.Op{Kind: pds.Pop}
		case routing.Swap:
			pdsOp = pds.Op{Kind: pds.Swap, Arg: label.MPLSLabel(uint64(b.abs.Labels.Abstract(op.Arg)))}
		}

		last := i == len(ops)-1
		dest := to
		if !last {
			dest = b.allocAux()
		}
		r := pds.Rule{From: cur, PreLabel: curLabel, To: dest, Op: pdsOp}
		b.p.AddConcreteRule(r)
		b.wit[r] = append(b.wit[r], w)

		cur = dest
		switch op.Kind {
		case routing.Push, routing.Swap:
			curLabel = pdsOp.Arg
		default:
			curLabel = label.MPLSLabel(wildcardLabelClass)
		}
	}
}
