package routing

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"aalwines.dev/label"
)

func TestAppendOpNormalization(t *testing.T) {
	c := qt.New(t)
	r := &Rule{}
	r.AppendOp(Op{Kind: Pop})
	r.AppendOp(Op{Kind: Push, Arg: label.MPLSLabel(5)})
	c.Assert(r.Ops, qt.DeepEquals, []Op{{Kind: Swap, Arg: label.MPLSLabel(5)}})

	r2 := &Rule{}
	r2.AppendOp(Op{Kind: Swap, Arg: label.MPLSLabel(1)})
	r2.AppendOp(Op{Kind: Pop})
	c.Assert(r2.Ops, qt.DeepEquals, []Op{{Kind: Pop}})

	r3 := &Rule{}
	r3.AppendOp(Op{Kind: Swap, Arg: label.MPLSLabel(1)})
	r3.AppendOp(Op{Kind: Swap, Arg: label.MPLSLabel(2)})
	c.Assert(r3.Ops, qt.DeepEquals, []Op{{Kind: Swap, Arg: label.MPLSLabel(2)}})
}

func TestEntriesSortedDefaultLast(t *testing.T) {
	c := qt.New(t)
	tb := &Table{}
	tb.InsertEntry(label.MPLSLabel(5))
	tb.InsertDefaultEntry()
	tb.InsertEntry(label.MPLSLabel(1))
	entries := tb.Entries()
	c.Assert(len(entries), qt.Equals, 3)
	c.Assert(entries[0].TopLabel, qt.Equals, label.MPLSLabel(1))
	c.Assert(entries[1].TopLabel, qt.Equals, label.MPLSLabel(5))
	c.Assert(entries[2].IsDefault, qt.IsTrue)
}

func TestAddFailoverEntries(t *testing.T) {
	c := qt.New(t)
	tb := &Table{}
	tb.AddRule(label.MPLSLabel(1), Rule{Priority: 0, Via: InterfaceRef(1)})
	tb.AddFailoverEntries(InterfaceRef(1), InterfaceRef(2), label.MPLSLabel(42))
	rules := tb.InsertEntry(label.MPLSLabel(1)).Rules
	c.Assert(len(rules), qt.Equals, 2)
	c.Assert(rules[1].Priority, qt.Equals, uint32(1))
	c.Assert(rules[1].Via, qt.Equals, InterfaceRef(2))
	c.Assert(rules[1].Ops, qt.DeepEquals, []Op{{Kind: Push, Arg: label.MPLSLabel(42)}})
}

func TestCheckNondetDetectsConflict(t *testing.T) {
	c := qt.New(t)
	tb := &Table{}
	tb.AddRule(label.MPLSLabel(1), Rule{Priority: 0, Via: InterfaceRef(1), Ops: []Op{{Kind: Pop}}})
	tb.AddRule(label.MPLSLabel(1), Rule{Priority: 0, Via: InterfaceRef(1), Ops: []Op{{Kind: Swap, Arg: label.MPLSLabel(9)}}})
	warnings := tb.CheckNondet()
	c.Assert(len(warnings), qt.Equals, 1)
}

func TestMergeConcatenatesAndWarns(t *testing.T) {
	c := qt.New(t)
	a := &Table{}
	a.AddRule(label.MPLSLabel(1), Rule{Priority: 0, Via: InterfaceRef(1), Ops: []Op{{Kind: Pop}}})
	b := &Table{}
	b.AddRule(label.MPLSLabel(1), Rule{Priority: 0, Via: InterfaceRef(1), Ops: []Op{{Kind: Swap, Arg: label.MPLSLabel(2)}}})

	var warnings []NondetWarning
	a.Merge(b, func(w NondetWarning) { warnings = append(warnings, w) })

	c.Assert(len(a.InsertEntry(label.MPLSLabel(1)).Rules), qt.Equals, 2)
	c.Assert(len(warnings), qt.Equals, 1)
}

func TestSimpleMergeRejectsConflict(t *testing.T) {
	c := qt.New(t)
	a := &Table{}
	a.AddRule(label.MPLSLabel(1), Rule{Priority: 0, Via: InterfaceRef(1), Ops: []Op{{Kind: Pop}}})
	b := &Table{}
	b.AddRule(label.MPLSLabel(1), Rule{Priority: 0, Via: InterfaceRef(1), Ops: []Op{{Kind: Swap, Arg: label.MPLSLabel(2)}}})

	ok := a.SimpleMerge(b)
	c.Assert(ok, qt.IsFalse)
}
