package cegar

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"aalwines.dev/label"
	"aalwines.dev/routing"
	"aalwines.dev/topology"
)

// popNetwork builds a two-router network where r1's only interface pops a
// single label and discards straight to the final state.
func popNetwork(c *qt.C) (*topology.Network, topology.InterfaceID) {
	n := topology.New("net")
	r1, err := n.AddRouter("r1")
	c.Assert(err, qt.IsNil)
	r2, err := n.AddRouter("r2")
	c.Assert(err, qt.IsNil)

	a := n.GetOrCreateInterface(r1, "eth0")
	b := n.GetOrCreateInterface(r2, "eth0")
	c.Assert(n.Link(a.GlobalID(), b.GlobalID()), qt.IsNil)

	a.Table().AddRule(label.MPLSLabel(5), routing.Rule{
		Priority: 0,
		Type:     routing.TypeDiscard,
		Via:      routing.InterfaceRef(b.GlobalID()),
		Ops:      []routing.Op{{Kind: routing.Pop}},
	})
	return n, a.GlobalID()
}

func TestSolveSatSingleHop(t *testing.T) {
	c := qt.New(t)
	n, a := popNetwork(c)

	verdict, replay, _ := Solve(n, a, []label.Label{label.MPLSLabel(5)}, 4, FirstSeparating)
	c.Assert(verdict, qt.Equals, Sat)
	c.Assert(len(replay), qt.Equals, 1)
	c.Assert(replay[0].Witness.Iface, qt.Equals, a)
	c.Assert(replay[0].Witness.Label, qt.Equals, label.MPLSLabel(5))
}

func TestSolveUnsatUnknownLabel(t *testing.T) {
	c := qt.New(t)
	n, a := popNetwork(c)

	verdict, replay, _ := Solve(n, a, []label.Label{label.MPLSLabel(99)}, 4, FirstSeparating)
	c.Assert(verdict, qt.Equals, Unsat)
	c.Assert(replay, qt.IsNil)
}

// crossNetwork builds a network where two disjoint entry interfaces (ifX,
// ifY) each pop the same label and land on two disjoint next-hop
// interfaces (ifM, ifN); only ifM carries a further rule for a second
// label. Under the coarsest abstraction every interface starts in the
// same class, so the abstract automaton offers a path through either
// entry, but only the one through ifX -> ifM replays concretely.
func crossNetwork(c *qt.C) (*topology.Network, topology.InterfaceID) {
	n := topology.New("net")
	r1, err := n.AddRouter("r1")
	c.Assert(err, qt.IsNil)
	r2, err := n.AddRouter("r2")
	c.Assert(err, qt.IsNil)
	r3, err := n.AddRouter("r3")
	c.Assert(err, qt.IsNil)
	r4, err := n.AddRouter("r4")
	c.Assert(err, qt.IsNil)

	ifX := n.GetOrCreateInterface(r1, "toM")
	ifM := n.GetOrCreateInterface(r2, "fromX")
	c.Assert(n.Link(ifX.GlobalID(), ifM.GlobalID()), qt.IsNil)

	ifY := n.GetOrCreateInterface(r3, "toN")
	ifN := n.GetOrCreateInterface(r4, "fromY")
	c.Assert(n.Link(ifY.GlobalID(), ifN.GlobalID()), qt.IsNil)

	ifMOut := n.GetOrCreateInterface(r2, "sink")
	ifMOutPeer := n.GetOrCreateInterface(r1, "sinkPeer")
	c.Assert(n.Link(ifMOut.GlobalID(), ifMOutPeer.GlobalID()), qt.IsNil)

	ifX.Table().AddRule(label.MPLSLabel(1), routing.Rule{
		Type: routing.TypeMPLS,
		Via:  routing.InterfaceRef(ifM.GlobalID()),
		Ops:  []routing.Op{{Kind: routing.Pop}},
	})
	ifY.Table().AddRule(label.MPLSLabel(1), routing.Rule{
		Type: routing.TypeMPLS,
		Via:  routing.InterfaceRef(ifN.GlobalID()),
		Ops:  []routing.Op{{Kind: routing.Pop}},
	})
	ifM.Table().AddRule(label.MPLSLabel(2), routing.Rule{
		Type: routing.TypeDiscard,
		Via:  routing.InterfaceRef(ifMOut.GlobalID()),
		Ops:  []routing.Op{{Kind: routing.Pop}},
	})
	return n, ifX.GlobalID()
}

func TestSolveReplaysCorrectBranchAmongAmbiguousEntries(t *testing.T) {
	c := qt.New(t)
	n, ifX := crossNetwork(c)

	verdict, replay, _ := Solve(n, ifX, []label.Label{label.MPLSLabel(1), label.MPLSLabel(2)}, 6, FirstSeparating)
	c.Assert(verdict, qt.Equals, Sat)
	c.Assert(len(replay), qt.Equals, 2)
	c.Assert(replay[0].Witness.Iface, qt.Equals, ifX)
	c.Assert(replay[1].Witness.Label, qt.Equals, label.MPLSLabel(2))
}

// disjointNetwork builds a network where ifX pops label1 towards ifM (which
// has no further rule), while a wholly unrelated interface ifP pops label2
// straight to discard. Under the coarsest abstraction ifX, ifM and ifP all
// share one class, so the first abstract round finds a spurious two-hop
// path that does not correspond to any real route; replay must catch the
// inconsistency and refine should separate ifP out before the second round
// correctly reports Unsat.
func disjointNetwork(c *qt.C) (*topology.Network, topology.InterfaceID) {
	n := topology.New("net")
	r1, err := n.AddRouter("r1")
	c.Assert(err, qt.IsNil)
	r2, err := n.AddRouter("r2")
	c.Assert(err, qt.IsNil)
	r3, err := n.AddRouter("r3")
	c.Assert(err, qt.IsNil)
	r4, err := n.AddRouter("r4")
	c.Assert(err, qt.IsNil)

	ifX := n.GetOrCreateInterface(r1, "eth0")
	ifM := n.GetOrCreateInterface(r2, "eth0")
	c.Assert(n.Link(ifX.GlobalID(), ifM.GlobalID()), qt.IsNil)

	ifP := n.GetOrCreateInterface(r3, "eth0")
	ifQ := n.GetOrCreateInterface(r4, "eth0")
	c.Assert(n.Link(ifP.GlobalID(), ifQ.GlobalID()), qt.IsNil)

	ifX.Table().AddRule(label.MPLSLabel(1), routing.Rule{
		Type: routing.TypeMPLS,
		Via:  routing.InterfaceRef(ifM.GlobalID()),
		Ops:  []routing.Op{{Kind: routing.Pop}},
	})
	ifP.Table().AddRule(label.MPLSLabel(2), routing.Rule{
		Type: routing.TypeDiscard,
		Via:  routing.InterfaceRef(ifQ.GlobalID()),
		Ops:  []routing.Op{{Kind: routing.Pop}},
	})
	return n, ifX.GlobalID()
}

func TestSolveRefinesAwaySpuriousAbstractPath(t *testing.T) {
	c := qt.New(t)
	n, ifX := disjointNetwork(c)

	verdict, replay, abs := Solve(n, ifX, []label.Label{label.MPLSLabel(1), label.MPLSLabel(2)}, 4, FirstSeparating)
	c.Assert(verdict, qt.Equals, Unsat)
	c.Assert(replay, qt.IsNil)
	c.Assert(abs.Ifaces.NumClasses() > 1, qt.IsTrue)
}

func TestNewAbstractionStartsCoarse(t *testing.T) {
	c := qt.New(t)
	n, a := popNetwork(c)
	abs := NewAbstraction(n)
	c.Assert(abs.Ifaces.NumClasses(), qt.Equals, 1)
	c.Assert(abs.Ifaces.Abstract(a), qt.Equals, 0)
}

func TestBuildProducesWitnessedRule(t *testing.T) {
	c := qt.New(t)
	n, a := popNetwork(c)
	abs := NewAbstraction(n)

	res := Build(n, abs)
	c.Assert(len(res.Witnesses) > 0, qt.IsTrue)

	found := false
	for _, ws := range res.Witnesses {
		for _, w := range ws {
			if w.Iface == a {
				found = true
			}
		}
	}
	c.Assert(found, qt.IsTrue)
}
