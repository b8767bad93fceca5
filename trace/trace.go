// Package trace implements spec §4.7: emptiness testing against a
// saturated P-automaton, accept-path search, and reconstruction of a
// concrete network trace from the path's provenance-tagged edges.
package trace

import (
	"fmt"

	"aalwines.dev/automaton"
	"aalwines.dev/label"
	"aalwines.dev/pdafactory"
	"aalwines.dev/pds"
	"aalwines.dev/topology"
)

// Empty reports whether the automaton accepts no run of start over word,
// i.e. whether the query is unsatisfiable from this configuration.
func Empty(a *automaton.Automaton, start automaton.State, word []label.Label) bool {
	return !a.Accepts(start, word)
}

// edgeStep is one hop of an accept path: either a labeled transition
// (consuming one stack symbol) or an epsilon transition (consuming
// none, taken during epsilon-closure).
type edgeStep struct {
	from, to automaton.State
	label    label.Label
	eps      bool
}

// AcceptPath runs a depth-first search from start consuming word symbol
// by symbol (closing over epsilon transitions before and after each
// step, matching Automaton.Accepts) and returns the sequence of edges
// used to reach an accepting state, or ok=false if no such run exists.
func AcceptPath(a *automaton.Automaton, start automaton.State, word []label.Label) (path []edgeStep, ok bool) {
	// closure computes the epsilon-closure of s, along with, for every
	// reached state, one shortest chain of edgeStep{eps:true} hops from
	// s to it (BFS so the chain is shortest, keeping traces small).
	closure := func(s automaton.State) map[automaton.State][]edgeStep {
		out := map[automaton.State][]edgeStep{s: nil}
		queue := []automaton.State{s}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, to := range a.EpsilonFrom(cur) {
				if _, seen := out[to]; seen {
					continue
				}
				chain := append(append([]edgeStep(nil), out[cur]...), edgeStep{from: cur, to: to, eps: true})
				out[to] = chain
				queue = append(queue, to)
			}
		}
		return out
	}

	var dfs func(states map[automaton.State][]edgeStep, rest []label.Label, acc []edgeStep) (path []edgeStep, ok bool)
	dfs = func(states map[automaton.State][]edgeStep, rest []label.Label, acc []edgeStep) ([]edgeStep, bool) {
		if len(rest) == 0 {
			for s, chain := range states {
				if a.IsAccepting(s) {
					return append(append([]edgeStep(nil), acc...), chain...), true
				}
			}
			return nil, false
		}
		l := rest[0]
		for s, chain := range states {
			for _, e := range a.EdgesFrom(s) {
				if e.Label != l {
					continue
				}
				nextAcc := append(append([]edgeStep(nil), acc...), chain...)
				nextAcc = append(nextAcc, edgeStep{from: s, to: e.To, label: l})
				nextClosure := closure(e.To)
				if p, ok := dfs(nextClosure, rest[1:], nextAcc); ok {
					return p, true
				}
			}
		}
		return nil, false
	}

	return dfs(closure(start), word, nil)
}

// Hop is one step of a reconstructed network trace: either a router/
// stack snapshot, or the forwarding rule fired to reach the next
// snapshot, per spec §6's Trace JSON shape.
type Hop struct {
	// Snapshot fields.
	IsSnapshot bool
	Router     string
	Stack      []label.Label

	// Rule-firing fields (IsSnapshot == false).
	Pre    label.Label
	Via    string
	Rule   pds.Rule
	HasVia bool
}

func (h Hop) String() string {
	if h.IsSnapshot {
		return fmt.Sprintf("%s %v", h.Router, h.Stack)
	}
	return fmt.Sprintf("pre=%v via=%s", h.Pre, h.Via)
}

// Reconstruct walks an accept path's edges left to right, querying each
// edge's provenance (automaton.OriginOf/EpsilonOriginOf/ClosureOriginOf)
// to recover the pds.Rule that produced it, and decodes the resulting
// edge sequence into a trace of (router, stack) snapshots interleaved
// with the forwarding rules fired between them, per spec §4.7. An edge
// produced by a swap or noop rule is followed on to the edge it was
// derived from, so the rules behind it are listed in firing order. The
// hops are returned in path order, without reversal.
func Reconstruct(a *automaton.Automaton, res *pdafactory.Result, net *topology.Network, path []edgeStep, initialStack []label.Label) []Hop {
	var hops []Hop
	stack := append([]label.Label(nil), initialStack...)

	snapshotAt := func(s automaton.State) Hop {
		router := "?"
		if id, ok := res.InterfaceOf(pds.StateID(s)); ok {
			ifc := net.Interface(id)
			router = net.Router(ifc.Source()).Name()
		}
		return Hop{IsSnapshot: true, Router: router, Stack: append([]label.Label(nil), stack...)}
	}

	if len(path) == 0 {
		return nil
	}
	hops = append(hops, snapshotAt(path[0].from))

	// expand resolves a labeled edge into the rule that produced it.
	// A closure-derived edge (materialized by epsilon-closure
	// propagation rather than a direct rule firing, per spec §4.7's
	// post*-epsilon-trace) decomposes into its epsilon hop followed by
	// the recursive resolution of the inner edge it was copied from.
	var expand func(from automaton.State, l label.Label, to automaton.State)
	expand = func(from automaton.State, l label.Label, to automaton.State) {
		if r, ok := a.OriginOf(from, l, to); ok {
			hops = append(hops, ruleHop(r))
			stack = applyOp(stack, r.Op)
			// A pre* swap/noop edge stands for the rule followed by the
			// run of the edge r.To --top--> to it was derived from.
			next := automaton.State(r.To)
			if (r.Op.Kind == pds.Swap || r.Op.Kind == pds.Noop) && next != from && len(stack) > 0 {
				expand(next, stack[0], to)
			}
			return
		}
		if mid, ok := a.ClosureOriginOf(from, l, to); ok {
			if r, ok := a.EpsilonOriginOf(from, mid); ok {
				hops = append(hops, ruleHop(r))
				if len(stack) > 0 {
					stack = stack[1:]
				}
			}
			expand(mid, l, to)
		}
	}

	for _, e := range path {
		if e.eps {
			if r, ok := a.EpsilonOriginOf(e.from, e.to); ok {
				hops = append(hops, ruleHop(r))
				if len(stack) > 0 {
					stack = stack[1:]
				}
			}
			continue
		}
		expand(e.from, e.label, e.to)
		hops = append(hops, snapshotAt(e.to))
	}

	return hops
}

func ruleHop(r pds.Rule) Hop {
	h := Hop{Pre: r.PreLabel, Rule: r, HasVia: r.HasVia}
	if r.HasVia {
		h.Via = fmt.Sprintf("if#%d", r.Via)
	}
	return h
}

func applyOp(stack []label.Label, op pds.Op) []label.Label {
	switch op.Kind {
	case pds.Pop:
		if len(stack) > 0 {
			return stack[1:]
		}
		return stack
	case pds.Swap:
		out := append([]label.Label(nil), stack...)
		if len(out) > 0 {
			out[0] = op.Arg
		}
		return out
	case pds.Push:
		return append([]label.Label{op.Arg}, stack...)
	default: // Noop
		return stack
	}
}

// Trace combines AcceptPath and Reconstruct: it reports whether word is
// accepted from start and, if so, the reconstructed network trace.
func Trace(a *automaton.Automaton, res *pdafactory.Result, net *topology.Network, start automaton.State, word []label.Label) ([]Hop, bool) {
	path, ok := AcceptPath(a, start, word)
	if !ok {
		return nil, false
	}
	return Reconstruct(a, res, net, path, word), true
}
