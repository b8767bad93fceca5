// Package pdafactory translates a topology.Network and a query.Query
// into a pds.PDS, per spec §4.5 (Network→PDS factory). Every routing-table
// rule becomes one or more PDS rules; control states are a product of
// (interface, path-NFA state, failures-used-so-far budget) so that a run
// of the resulting PDS tracks, simultaneously, the packet's physical
// location, its progress through the query's path regex, and (under
// UNDER/EXACT) whether it still fits the failure bound.
package pdafactory

import (
	"aalwines.dev/label"
	"aalwines.dev/nfa"
	"aalwines.dev/pds"
	"aalwines.dev/query"
	"aalwines.dev/routing"
	"aalwines.dev/topology"
)

// Result bundles the built PDS together with the bookkeeping the
// automaton/trace layers need to relate PDS control states back to
// network interfaces.
type Result struct {
	PDS *pds.PDS

	// Path is the query's path NFA (or nfa.Universal() if the query left
	// it unspecified), used to seed initial configurations.
	Path *nfa.NFA

	// Layers is 1 under OVER/EXACT (no budget dimension needed: OVER
	// never consults budget, and EXACT only ever occupies budget 0) and
	// FailureBound+1 under UNDER.
	Layers int

	// Final is the distinguished accepting/sink state reached by discard
	// and receive rules.
	Final pds.StateID

	// Universe is the network's full label universe, used to resolve
	// wildcard top-labels and query atoms.
	Universe []label.Label

	ifaceOf       map[pds.StateID]topology.InterfaceID
	numIfaces     int
	numPathStates int
}

// StateOf returns the PDS control state modeling interface id, path-NFA
// state pathState, having used exactly budget failures so far (budget is
// always 0 under OVER/EXACT).
func (res *Result) StateOf(id topology.InterfaceID, pathState nfa.StateID, budget int) pds.StateID {
	return pds.StateID(1 + (budget*res.numIfaces+int(id))*res.numPathStates + int(pathState))
}

// InterfaceOf reports the network interface a (non-auxiliary,
// non-final) control state corresponds to.
func (res *Result) InterfaceOf(s pds.StateID) (topology.InterfaceID, bool) {
	id, ok := res.ifaceOf[s]
	return id, ok
}

// InitialStates returns the PDS control states modeling "packet about to
// enter start with some top-of-stack label", one per path-NFA state
// reached by consuming start's interface identity from the path NFA's
// initial states (spec §4.5's Initial configurations paragraph).
func (res *Result) InitialStates(start topology.InterfaceID) []pds.StateID {
	var out []pds.StateID
	for _, ps := range res.Path.Follow(res.Path.Initial(), label.InterfaceLabel(uint64(start))) {
		out = append(out, res.StateOf(start, ps, 0))
	}
	return out
}

type builder struct {
	net           *topology.Network
	p             *pds.PDS
	path          *nfa.NFA
	numIfaces     int
	numPathStates int
	layers        int
	nextAux       pds.StateID
	ifaceOf       map[pds.StateID]topology.InterfaceID
}

// Build constructs the PDS for net under query q and approximation mode
// mode (which must already be a concrete member of q.Schedule(), i.e.
// never query.Dual — the verify package dispatches DUAL into two Build
// calls, spec §4.9).
func Build(net *topology.Network, q *query.Query, mode query.Mode) *Result {
	universe := label.BuildUniverse(net.AllLabelOccurrences()).Labels()

	path := q.Path
	if path == nil {
		path = nfa.Universal()
	}

	bound := int(q.FailureBound)
	layers := 1
	if mode == query.Under {
		layers = bound + 1
	}

	ifaceIDs := net.Interfaces()
	numIfaces := len(ifaceIDs)
	numPathStates := path.NumStates()
	total := numIfaces * numPathStates * layers

	b := &builder{
		net:           net,
		p:             pds.New(1 + total),
		path:          path,
		numIfaces:     numIfaces,
		numPathStates: numPathStates,
		layers:        layers,
		nextAux:       pds.StateID(1 + total),
		ifaceOf:       map[pds.StateID]topology.InterfaceID{},
	}
	for _, id := range ifaceIDs {
		for ps := 0; ps < numPathStates; ps++ {
			for budget := 0; budget < layers; budget++ {
				b.ifaceOf[b.stateOf(id, nfa.StateID(ps), budget)] = id
			}
		}
	}

	for _, id := range ifaceIDs {
		for ps := 0; ps < numPathStates; ps++ {
			b.buildInterface(id, nfa.StateID(ps), mode, bound, universe)
		}
	}

	return &Result{
		PDS:           b.p,
		Path:          path,
		Layers:        layers,
		Final:         pds.FinalState,
		Universe:      universe,
		ifaceOf:       b.ifaceOf,
		numIfaces:     numIfaces,
		numPathStates: numPathStates,
	}
}

func (b *builder) stateOf(id topology.InterfaceID, pathState nfa.StateID, budget int) pds.StateID {
	return pds.StateID(1 + (budget*b.numIfaces+int(id))*b.numPathStates + int(pathState))
}

func (b *builder) allocAux() pds.StateID {
	s := b.nextAux
	b.nextAux++
	b.p.EnsureState(s)
	return s
}

// buildInterface emits, for every (budget layer, routing-table entry,
// rule) triple on interface id at path-NFA state pathState, the PDS rule
// chain that models sending a packet out along that rule, per spec
// §4.5's Rule expansion paragraph.
func (b *builder) buildInterface(id topology.InterfaceID, pathState nfa.StateID, mode query.Mode, bound int, universe []label.Label) {
	iface := b.net.Interface(id)
	table := iface.Table()

	explicit := map[label.Label]bool{}
	for _, e := range table.Entries() {
		if !e.IsDefault {
			explicit[e.TopLabel] = true
		}
	}

	edges := b.path.OutgoingEdges(pathState)
	accepting := b.path.IsAccepting(pathState)

	for budget := 0; budget < b.layers; budget++ {
		from := b.stateOf(id, pathState, budget)
		for _, e := range table.Entries() {
			var labels []label.Label
			if e.IsDefault {
				for _, l := range universe {
					if !explicit[l] {
						labels = append(labels, l)
					}
				}
			} else {
				labels = []label.Label{e.TopLabel}
			}
			for _, l := range labels {
				for _, rule := range e.Rules {
					b.emitRule(from, l, rule, edges, accepting, mode, bound, budget)
				}
			}
		}
	}
}

// budgetFor applies spec §4.5's approximation-mode effect on the budget:
// OVER filters on priority and leaves the budget untouched; UNDER
// accumulates weight and drops transitions that would exceed bound;
// EXACT only ever allows zero-weight rules under a zero bound.
func budgetFor(rule routing.Rule, mode query.Mode, bound, budget int) (nextBudget int, ok bool) {
	switch mode {
	case query.Over:
		if int(rule.Priority) > bound {
			return 0, false
		}
		return budget, true
	case query.Under:
		next := budget + int(rule.Weight)
		if next > bound {
			return 0, false
		}
		return next, true
	case query.Exact:
		if rule.Weight != 0 || bound != 0 {
			return 0, false
		}
		return 0, true
	default:
		return budget, true
	}
}

// emitRule lowers one routing-table rule reachable from a (interface,
// path-state, budget) control state. Terminal rules (discard/receive)
// have no outgoing interface to match against the path NFA, so they
// transition straight to Final, gated on the current path state already
// accepting. Every other rule must be matched against an outgoing path
// edge labeled by the rule's own outgoing interface (spec §4.5: "for
// every NFA edge (s → s′ on interface label ι) where ι matches ρ's
// outgoing interface"), and the destination control state is keyed by
// the resulting path state s′ and the interface paired with (i.e.
// reached by crossing) the rule's outgoing interface.
func (b *builder) emitRule(from pds.StateID, top label.Label, rule routing.Rule, edges []nfa.Edge, accepting bool, mode query.Mode, bound, budget int) {
	nextBudget, ok := budgetFor(rule, mode, bound, budget)
	if !ok {
		return
	}

	if rule.Type == routing.TypeDiscard || rule.Type == routing.TypeReceive {
		if !accepting {
			return
		}
		b.emitChain(from, top, rule.Ops, pds.FinalState, rule.Via, false)
		return
	}

	viaLabel := label.InterfaceLabel(uint64(rule.Via))
	peer, ok := b.net.Interface(topology.InterfaceID(rule.Via)).Match()
	if !ok {
		return // unmatched egress: no peer router to continue forwarding into
	}
	for _, edge := range edges {
		if !edge.Set.Contains(viaLabel) {
			continue
		}
		dest := b.stateOf(peer, edge.Dest, nextBudget)
		b.emitChain(from, top, rule.Ops, dest, rule.Via, rule.Type == routing.TypeRoute)
	}
}

// emitChain lowers a (possibly empty, possibly multi-step) stack-op
// sequence into one or more single-op PDS rules, threading auxiliary
// states between intermediate steps. The label known to be on top after
// a Push/Swap is exact (it is the operation's argument); after a Pop it
// is unknown until resolved by an enclosing entry, so later links in the
// same chain use a wildcard pre-label as an approximation.
//
// interfaceEntry marks an IP-lookup (interface-typed) entry: spec §4.5
// translates such an entry's leading PUSH into a PDS SWAP rather than a
// PDS PUSH, matching only the chain's first op (grounded on
// NetworkPDAFactory.cpp's exclusive look at ops[0]).
func (b *builder) emitChain(from pds.StateID, top label.Label, ops []routing.Op, to pds.StateID, via routing.InterfaceRef, interfaceEntry bool) {
	if len(ops) == 0 {
		b.p.AddConcreteRule(pds.Rule{From: from, PreLabel: top, To: to, Op: pds.Op{Kind: pds.Noop}, Via: via, HasVia: true})
		return
	}

	cur := from
	curLabel := top
	for i, op := range ops {
		var pdsOp pds.Op
		switch op.Kind {
		case routing.Push:
			if i == 0 && interfaceEntry {
				pdsOp = pds.Op{Kind: pds.Swap, Arg: op.Arg}
			} else {
				pdsOp = pds.Op{Kind: pds.Push, Arg: op.Arg}
			}
		case routing.Pop:
			pdsOp = pds.Op{Kind: pds.Pop}
		case routing.Swap:
			pdsOp = pds.Op{Kind: pds.Swap, Arg: op.Arg}
		}

		last := i == len(ops)-1
		dest := to
		if !last {
			dest = b.allocAux()
		}
		b.p.AddConcreteRule(pds.Rule{From: cur, PreLabel: curLabel, To: dest, Op: pdsOp, Via: via, HasVia: last})

		cur = dest
		switch pdsOp.Kind {
		case pds.Push, pds.Swap:
			curLabel = pdsOp.Arg
		default:
			curLabel = label.Any(label.MPLS)
		}
	}
}
