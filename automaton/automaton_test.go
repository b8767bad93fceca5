package automaton

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"aalwines.dev/label"
	"aalwines.dev/pds"
)

func TestPreStarPop(t *testing.T) {
	c := qt.New(t)
	p := pds.New(2)
	l1 := label.MPLSLabel(1)
	p.AddConcreteRule(pds.Rule{From: 0, PreLabel: l1, To: 1, Op: pds.Op{Kind: pds.Pop}})

	target := New(2)
	target.MarkAccepting(1)

	PreStar(p, target)
	c.Assert(target.Accepts(0, []label.Label{l1}), qt.IsTrue)
	c.Assert(target.Accepts(0, []label.Label{label.MPLSLabel(2)}), qt.IsFalse)
}

func TestPreStarSwapChains(t *testing.T) {
	c := qt.New(t)
	l1, l2, l3 := label.MPLSLabel(1), label.MPLSLabel(2), label.MPLSLabel(3)
	p := pds.New(3)
	// state 0 --swap(l2)--> state 1, then state 1 --pop--> state 2.
	p.AddConcreteRule(pds.Rule{From: 0, PreLabel: l1, To: 1, Op: pds.Op{Kind: pds.Swap, Arg: l2}})
	p.AddConcreteRule(pds.Rule{From: 1, PreLabel: l2, To: 2, Op: pds.Op{Kind: pds.Pop}})

	target := New(3)
	target.MarkAccepting(2)

	PreStar(p, target)
	// <1, [l2]> -> <2, []> accepted (pop), so <0, [l1]> -> <1, [l2]> should
	// be accepted too via the swap rule.
	c.Assert(target.Accepts(1, []label.Label{l2}), qt.IsTrue)
	c.Assert(target.Accepts(0, []label.Label{l1}), qt.IsTrue)
	c.Assert(target.Accepts(0, []label.Label{l3}), qt.IsFalse)
}

func TestPreStarPush(t *testing.T) {
	c := qt.New(t)
	l1, l2 := label.MPLSLabel(1), label.MPLSLabel(2)
	p := pds.New(2)
	// <0,[l1,...]> -> <1,[l2,l1,...]>.
	p.AddConcreteRule(pds.Rule{From: 0, PreLabel: l1, To: 1, Op: pds.Op{Kind: pds.Push, Arg: l2}})

	target := New(2)
	final := target.NewState()
	target.AddEdge(0, l1, final) // seed: <0,[l1]> already accepted.
	target.MarkAccepting(final)

	PreStar(p, target)
	// state 1 reading l2 lands back on state 0, so <1,[l2,l1]> is
	// accepted iff <0,[l1]> is.
	c.Assert(target.Accepts(1, []label.Label{l2, l1}), qt.IsTrue)
	c.Assert(target.Accepts(1, []label.Label{l2}), qt.IsFalse)
}

func TestPostStarPop(t *testing.T) {
	c := qt.New(t)
	l1 := label.MPLSLabel(1)
	p := pds.New(2)
	p.AddConcreteRule(pds.Rule{From: 0, PreLabel: l1, To: 1, Op: pds.Op{Kind: pds.Pop}})

	source := New(2)
	final := source.NewState()
	source.AddEdge(0, l1, final)
	source.MarkAccepting(final)

	PostStar(p, source)
	// state 1 should now accept the empty word (via the epsilon edge to final).
	c.Assert(source.Accepts(1, nil), qt.IsTrue)
}

func TestPostStarSwap(t *testing.T) {
	c := qt.New(t)
	l1, l2 := label.MPLSLabel(1), label.MPLSLabel(2)
	p := pds.New(2)
	p.AddConcreteRule(pds.Rule{From: 0, PreLabel: l1, To: 1, Op: pds.Op{Kind: pds.Swap, Arg: l2}})

	source := New(2)
	final := source.NewState()
	source.AddEdge(0, l1, final)
	source.MarkAccepting(final)

	PostStar(p, source)
	c.Assert(source.Accepts(1, []label.Label{l2}), qt.IsTrue)
}

func TestPostStarPush(t *testing.T) {
	c := qt.New(t)
	l1, l2 := label.MPLSLabel(1), label.MPLSLabel(2)
	p := pds.New(2)
	p.AddConcreteRule(pds.Rule{From: 0, PreLabel: l1, To: 1, Op: pds.Op{Kind: pds.Push, Arg: l2}})

	source := New(2)
	final := source.NewState()
	source.AddEdge(0, l1, final)
	source.MarkAccepting(final)

	PostStar(p, source)
	c.Assert(source.Accepts(1, []label.Label{l2, l1}), qt.IsTrue)
}
