package verify

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"aalwines.dev/label"
	"aalwines.dev/nfa"
	"aalwines.dev/query"
	"aalwines.dev/routing"
	"aalwines.dev/topology"
)

func nilAcceptingNFA(accepting bool) *nfa.NFA { return nfa.New(accepting) }

// fakeSink records every warning and refinement report it receives.
type fakeSink struct {
	warnings []routing.NondetWarning
	rounds   []int
}

func (s *fakeSink) Warn(w routing.NondetWarning) { s.warnings = append(s.warnings, w) }
func (s *fakeSink) Refining(round, numClasses int) {
	s.rounds = append(s.rounds, numClasses)
}

// linearChain builds spec scenario 1's R0-R1-R2 chain: R0's ingress PUSHes
// l10 towards R1, R1 SWAPs l10 towards R2, R2 POPs and discards. Every rule's
// Via names the router's own egress interface (o01/o12), matching
// route.go's same-router-egress convention; emitRule folds the Match() hop
// to the peer (see DESIGN.md's route/pdafactory Via note).
func linearChain(c *qt.C) (n *topology.Network, ingress topology.InterfaceID) {
	n = topology.New("net")
	r0, err := n.AddRouter("R0")
	c.Assert(err, qt.IsNil)
	r1, err := n.AddRouter("R1")
	c.Assert(err, qt.IsNil)
	r2, err := n.AddRouter("R2")
	c.Assert(err, qt.IsNil)

	extIn := n.GetOrCreateInterface(r0, "ext-in")
	n.MakeExternal(extIn.GlobalID())

	o01 := n.GetOrCreateInterface(r0, "to-R1")
	i10 := n.GetOrCreateInterface(r1, "to-R0")
	c.Assert(n.Link(o01.GlobalID(), i10.GlobalID()), qt.IsNil)

	o12 := n.GetOrCreateInterface(r1, "to-R2")
	i21 := n.GetOrCreateInterface(r2, "to-R1")
	c.Assert(n.Link(o12.GlobalID(), i21.GlobalID()), qt.IsNil)

	l10 := label.MPLSLabel(10)
	extIn.Table().AddRule(label.AnyIP(), routing.Rule{
		Type: routing.TypeRoute,
		Via:  routing.InterfaceRef(o01.GlobalID()),
		Ops:  []routing.Op{{Kind: routing.Push, Arg: l10}},
	})
	i10.Table().AddRule(l10, routing.Rule{
		Type: routing.TypeMPLS,
		Via:  routing.InterfaceRef(o12.GlobalID()),
		Ops:  []routing.Op{{Kind: routing.Swap, Arg: l10}},
	})
	i21.Table().AddRule(l10, routing.Rule{
		Type: routing.TypeDiscard,
		Ops:  []routing.Op{{Kind: routing.Pop}},
	})

	return n, extIn.GlobalID()
}

func TestVerifyLinearChainOverZeroBoundYes(t *testing.T) {
	c := qt.New(t)
	n, start := linearChain(c)
	q := query.New(nil, nil, nil, 0, query.Over)

	res, err := Verify(n, q, start, []label.Label{label.AnyIP()}, nil, Options{})
	c.Assert(err, qt.IsNil)
	c.Assert(res.Answer, qt.Equals, Yes)
	c.Assert(res.Mode, qt.Equals, query.Over)
	c.Assert(len(res.Trace) > 0, qt.IsTrue)
}

func TestVerifyOverNegativeIsNo(t *testing.T) {
	c := qt.New(t)
	n, start := linearChain(c)
	q := query.New(nil, nil, nil, 0, query.Over)

	res, err := Verify(n, q, start, []label.Label{label.MPLSLabel(999)}, nil, Options{})
	c.Assert(err, qt.IsNil)
	c.Assert(res.Answer, qt.Equals, No)
}

func TestVerifyDualConfirmsOverPositiveZeroBound(t *testing.T) {
	c := qt.New(t)
	n, start := linearChain(c)
	q := query.New(nil, nil, nil, 0, query.Dual)

	res, err := Verify(n, q, start, []label.Label{label.AnyIP()}, nil, Options{})
	c.Assert(err, qt.IsNil)
	c.Assert(res.Answer, qt.Equals, Yes)
	c.Assert(res.Mode, qt.Equals, query.Over)
}

// singleFailoverPath builds a network reachable to discard through one
// link carrying a non-zero rule weight: the weight gates whether UNDER's
// failure-budget layering admits it, exercising spec scenario 2's
// bound-dependent reachability through the field pdafactory.Build's
// UNDER layering gates on (Weight). Under OVER, Build filters on
// Priority instead (routing.Table.AddFailoverEntries bumps Priority but
// never Weight).
func singleFailoverPath(c *qt.C) (n *topology.Network, start topology.InterfaceID) {
	n = topology.New("net")
	r0, err := n.AddRouter("R0")
	c.Assert(err, qt.IsNil)
	r3, err := n.AddRouter("R3")
	c.Assert(err, qt.IsNil)

	extIn := n.GetOrCreateInterface(r0, "ext-in")
	n.MakeExternal(extIn.GlobalID())

	o03 := n.GetOrCreateInterface(r0, "to-R3")
	i30 := n.GetOrCreateInterface(r3, "to-R0")
	c.Assert(n.Link(o03.GlobalID(), i30.GlobalID()), qt.IsNil)

	l7 := label.MPLSLabel(7)
	extIn.Table().AddRule(l7, routing.Rule{
		Weight: 1,
		Type:   routing.TypeRoute,
		Via:    routing.InterfaceRef(o03.GlobalID()),
	})
	i30.Table().AddRule(l7, routing.Rule{
		Type: routing.TypeDiscard,
		Ops:  []routing.Op{{Kind: routing.Pop}},
	})

	return n, extIn.GlobalID()
}

func TestVerifyFailureBoundZeroBlocksWeightedRule(t *testing.T) {
	c := qt.New(t)
	n, start := singleFailoverPath(c)
	q := query.New(nil, nil, nil, 0, query.Under)

	res, err := Verify(n, q, start, []label.Label{label.MPLSLabel(7)}, nil, Options{})
	c.Assert(err, qt.IsNil)
	c.Assert(res.Answer, qt.Equals, Maybe)
}

func TestVerifyFailureBoundOneAdmitsWeightedRule(t *testing.T) {
	c := qt.New(t)
	n, start := singleFailoverPath(c)
	q := query.New(nil, nil, nil, 1, query.Under)

	res, err := Verify(n, q, start, []label.Label{label.MPLSLabel(7)}, nil, Options{})
	c.Assert(err, qt.IsNil)
	c.Assert(res.Answer, qt.Equals, Yes)
}

func TestVerifyReportsNondetWarningsWithoutBlockingAnswer(t *testing.T) {
	c := qt.New(t)
	n, start := linearChain(c)

	// A second, conflicting rule at the same priority over the same
	// top-label/via pair as the ingress rule, differing only in its op
	// list, trips routing.Table.CheckNondet.
	extIface := n.Interface(start)
	extIface.Table().AddRule(label.AnyIP(), routing.Rule{
		Type: routing.TypeRoute,
		Via:  routing.InterfaceRef(findR0Egress(c, n)),
		Ops:  []routing.Op{{Kind: routing.Push, Arg: label.MPLSLabel(99)}},
	})

	q := query.New(nil, nil, nil, 0, query.Over)
	sink := &fakeSink{}

	res, err := Verify(n, q, start, []label.Label{label.AnyIP()}, sink, Options{})
	c.Assert(err, qt.IsNil)
	c.Assert(res.Answer, qt.Equals, Yes)
	c.Assert(len(sink.warnings) > 0, qt.IsTrue)
}

// findR0Egress returns R0's own egress interface towards R1 (to-R1), the
// interface linearChain's ingress rule names as Via.
func findR0Egress(c *qt.C, n *topology.Network) topology.InterfaceID {
	r0, ok := n.Lookup("R0")
	c.Assert(ok, qt.IsTrue)
	for _, id := range n.Router(r0).Interfaces() {
		if n.Interface(id).Name() == "to-R1" {
			return id
		}
	}
	c.Fatal("to-R1 interface not found on R0")
	return 0
}

func TestEmptyStackAcceptedRequiresBothNFAsAcceptingInitially(t *testing.T) {
	c := qt.New(t)
	q := query.New(nilAcceptingNFA(true), nilAcceptingNFA(true), nil, 0, query.Over)
	c.Assert(EmptyStackAccepted(q, 0), qt.IsTrue)

	q2 := query.New(nilAcceptingNFA(false), nilAcceptingNFA(true), nil, 0, query.Over)
	c.Assert(EmptyStackAccepted(q2, 0), qt.IsFalse)
}
