package route

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"aalwines.dev/label"
	"aalwines.dev/routing"
	"aalwines.dev/topology"
)

// labelQueue returns a NextLabel that yields the given labels in order and
// fails the test if called more times than provided.
func labelQueue(c *qt.C, labels ...label.Label) NextLabel {
	i := 0
	return func() label.Label {
		c.Assert(i < len(labels), qt.IsTrue, qt.Commentf("next_label called more times than expected"))
		l := labels[i]
		i++
		return l
	}
}

// chainWithDetour builds an R0-R1-R2 chain carrying label l10 (PUSH on
// R1's ingress from R0, SWAP on R2's ingress from R1) plus a detour
// R1-R3-R2 around the R1->R2 interface, for scenario 3's reroute
// synthesis.
func chainWithDetour(c *qt.C) (n *topology.Network, r1r2 topology.InterfaceID) {
	n = topology.New("net")
	r0, err := n.AddRouter("R0")
	c.Assert(err, qt.IsNil)
	r1, err := n.AddRouter("R1")
	c.Assert(err, qt.IsNil)
	r2, err := n.AddRouter("R2")
	c.Assert(err, qt.IsNil)
	r3, err := n.AddRouter("R3")
	c.Assert(err, qt.IsNil)

	i01 := n.GetOrCreateInterface(r0, "to-R1")
	i10 := n.GetOrCreateInterface(r1, "to-R0")
	c.Assert(n.Link(i01.GlobalID(), i10.GlobalID()), qt.IsNil)

	i12 := n.GetOrCreateInterface(r1, "to-R2")
	i21 := n.GetOrCreateInterface(r2, "to-R1")
	c.Assert(n.Link(i12.GlobalID(), i21.GlobalID()), qt.IsNil)

	i13 := n.GetOrCreateInterface(r1, "to-R3")
	i31 := n.GetOrCreateInterface(r3, "to-R1")
	c.Assert(n.Link(i13.GlobalID(), i31.GlobalID()), qt.IsNil)

	i32 := n.GetOrCreateInterface(r3, "to-R2")
	i23 := n.GetOrCreateInterface(r2, "to-R3")
	c.Assert(n.Link(i32.GlobalID(), i23.GlobalID()), qt.IsNil)

	l10 := label.MPLSLabel(10)
	i10.Table().AddRule(label.AnyIP(), routing.Rule{Type: routing.TypeRoute, Via: routing.InterfaceRef(i12.GlobalID()), Ops: []routing.Op{{Kind: routing.Push, Arg: l10}}})
	i21.Table().AddRule(l10, routing.Rule{Type: routing.TypeMPLS, Via: routing.InterfaceRef(i23.GlobalID()), Ops: []routing.Op{{Kind: routing.Swap, Arg: l10}}})

	return n, i12.GlobalID()
}

func TestMakeRerouteInstallsDetour(t *testing.T) {
	c := qt.New(t)
	n, failed := chainWithDetour(c)
	l42 := label.MPLSLabel(42)

	ok := MakeReroute(n, failed, labelQueue(c, l42), UnitCost)
	c.Assert(ok, qt.IsTrue)

	failedIface := n.Interface(failed)
	r1 := failedIface.Source()

	// The PUSH/failover rule lands on R1's ingress-from-R0 interface,
	// the one whose table originally routed only via the failed
	// interface.
	var ingress *topology.Interface
	for _, id := range n.Router(r1).Interfaces() {
		if ifc := n.Interface(id); ifc.Name() == "to-R0" {
			ingress = ifc
		}
	}
	c.Assert(ingress, qt.Not(qt.IsNil))

	var sawFailover bool
	for _, e := range ingress.Table().Entries() {
		for _, r := range e.Rules {
			if r.Via == routing.InterfaceRef(failed) {
				continue
			}
			for _, op := range r.Ops {
				if op.Kind == routing.Push && label.Equal(op.Arg, l42) {
					sawFailover = true
				}
			}
		}
	}
	c.Assert(sawFailover, qt.IsTrue)

	// R3 is the hop before R2 in the detour; its ingress-from-R1
	// interface carries the POP.
	r3, ok2 := n.Lookup("R3")
	c.Assert(ok2, qt.IsTrue)
	var r3FromR1 *topology.Interface
	for _, id := range n.Router(r3).Interfaces() {
		if n.Interface(id).Name() == "to-R1" {
			r3FromR1 = n.Interface(id)
		}
	}
	c.Assert(r3FromR1, qt.Not(qt.IsNil))

	var popSeen bool
	for _, e := range r3FromR1.Table().Entries() {
		if !label.Equal(e.TopLabel, l42) {
			continue
		}
		for _, r := range e.Rules {
			for _, op := range r.Ops {
				if op.Kind == routing.Pop {
					popSeen = true
				}
			}
		}
	}
	c.Assert(popSeen, qt.IsTrue)
}

func TestMakeRerouteFailsWithoutDetour(t *testing.T) {
	c := qt.New(t)
	n := topology.New("net")
	r0, err := n.AddRouter("R0")
	c.Assert(err, qt.IsNil)
	r1, err := n.AddRouter("R1")
	c.Assert(err, qt.IsNil)

	a := n.GetOrCreateInterface(r0, "eth0")
	b := n.GetOrCreateInterface(r1, "eth0")
	c.Assert(n.Link(a.GlobalID(), b.GlobalID()), qt.IsNil)

	ok := MakeReroute(n, a.GlobalID(), labelQueue(c), UnitCost)
	c.Assert(ok, qt.IsFalse)
}

func TestMakeDataFlowPathSameRouter(t *testing.T) {
	c := qt.New(t)
	n := topology.New("net")
	r0, err := n.AddRouter("R0")
	c.Assert(err, qt.IsNil)

	from := n.GetOrCreateInterface(r0, "in")
	to := n.GetOrCreateInterface(r0, "out")
	n.MakeExternal(from.GlobalID())
	n.MakeExternal(to.GlobalID())

	l := label.MPLSLabel(7)
	ok := MakeDataFlow(n, from.GlobalID(), to.GlobalID(), labelQueue(c, l), UnitCost)
	c.Assert(ok, qt.IsTrue)

	entries := from.Table().Entries()
	c.Assert(len(entries), qt.Equals, 1)
	c.Assert(entries[0].Rules[0].Ops[0].Kind, qt.Equals, routing.Push)
	c.Assert(label.Equal(entries[0].Rules[0].Ops[0].Arg, l), qt.IsTrue)
}

func TestMakeDataFlowMultiHop(t *testing.T) {
	c := qt.New(t)
	n := topology.New("net")
	r0, err := n.AddRouter("R0")
	c.Assert(err, qt.IsNil)
	r1, err := n.AddRouter("R1")
	c.Assert(err, qt.IsNil)
	r2, err := n.AddRouter("R2")
	c.Assert(err, qt.IsNil)

	i01 := n.GetOrCreateInterface(r0, "to-R1")
	i10 := n.GetOrCreateInterface(r1, "to-R0")
	c.Assert(n.Link(i01.GlobalID(), i10.GlobalID()), qt.IsNil)
	i12 := n.GetOrCreateInterface(r1, "to-R2")
	i21 := n.GetOrCreateInterface(r2, "to-R1")
	c.Assert(n.Link(i12.GlobalID(), i21.GlobalID()), qt.IsNil)

	entry := n.GetOrCreateInterface(r0, "ext-in")
	n.MakeExternal(entry.GlobalID())
	exit := n.GetOrCreateInterface(r2, "ext-out")
	n.MakeExternal(exit.GlobalID())

	// Path is entry -> i01 -> i12 -> exit: one PUSH and two SWAPs.
	ok := MakeDataFlow(n, entry.GlobalID(), exit.GlobalID(),
		labelQueue(c, label.MPLSLabel(100), label.MPLSLabel(101), label.MPLSLabel(102)), UnitCost)
	c.Assert(ok, qt.IsTrue)

	entries := entry.Table().Entries()
	c.Assert(len(entries), qt.Equals, 1)
	c.Assert(entries[0].Rules[0].Ops[0].Kind, qt.Equals, routing.Push)
}
