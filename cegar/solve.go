package cegar

import (
	"context"

	"golang.org/x/sync/errgroup"

	"aalwines.dev/automaton"
	"aalwines.dev/label"
	"aalwines.dev/pds"
	"aalwines.dev/topology"
)

// Verdict is the three-valued result of a CEGAR solve loop, per spec
// §4.8 ("Terminate when SAT, UNSAT, or when no further refinement
// exists (then report MAYBE)").
type Verdict int

const (
	Unsat Verdict = iota
	Sat
	Maybe
)

func (v Verdict) String() string {
	switch v {
	case Sat:
		return "SAT"
	case Unsat:
		return "UNSAT"
	default:
		return "MAYBE"
	}
}

// hop is one edge of an abstract accept path, with its originating
// abstract pds.Rule when the automaton recorded one (epsilon edges
// produced directly from the seed automaton, rather than by
// saturation, carry none).
type hop struct {
	from, to automaton.State
	lbl      label.Label
	eps      bool
	rule     pds.Rule
	hasRule  bool
	wordIdx  int // index into the original word this hop consumed; -1 for epsilon hops
}

// abstractPath is the same depth-first accept-path search as
// trace.AcceptPath, reimplemented locally: cegar needs the raw edge
// sequence together with its pds.Rule provenance to drive replay, and
// trace's path type is deliberately unexported (it is an accept-path
// search, not a general traversal primitive).
func abstractPath(a *automaton.Automaton, start automaton.State, word []label.Label) ([]hop, bool) {
	closure := func(s automaton.State) map[automaton.State][]hop {
		out := map[automaton.State][]hop{s: nil}
		queue := []automaton.State{s}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, to := range a.EpsilonFrom(cur) {
				if _, seen := out[to]; seen {
					continue
				}
				h := hop{from: cur, to: to, eps: true, wordIdx: -1}
				if r, ok := a.EpsilonOriginOf(cur, to); ok {
					h.rule, h.hasRule = r, true
				}
				out[to] = append(append([]hop(nil), out[cur]...), h)
				queue = append(queue, to)
			}
		}
		return out
	}

	var dfs func(states map[automaton.State][]hop, rest []label.Label, acc []hop) ([]hop, bool)
	dfs = func(states map[automaton.State][]hop, rest []label.Label, acc []hop) ([]hop, bool) {
		if len(rest) == 0 {
			for s, chain := range states {
				if a.IsAccepting(s) {
					return append(append([]hop(nil), acc...), chain...), true
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
				next := append(append([]hop(nil), acc...), chain...)
				h := hop{from: s, to: e.To, lbl: l, wordIdx: len(word) - len(rest)}
				if r, ok := a.OriginOf(s, l, e.To); ok {
					h.rule, h.hasRule = r, true
				}
				next = append(next, h)
				if p, ok := dfs(closure(e.To), rest[1:], next); ok {
					return p, true
				}
			}
		}
		return nil, false
	}

	return dfs(closure(start), word, nil)
}

// Replayed is one step of a concrete replay: the abstract rule that
// fired, and the concrete witness chosen to realize it.
type Replayed struct {
	Rule    pds.Rule
	Witness Witness
}

// concurrentFilter evaluates pred over every candidate concurrently
// (one errgroup goroutine per candidate, with no limit set, grounded on the teacher's concurrency
// convention per DESIGN.md) and returns the candidates that passed, in
// their original order.
func concurrentFilter(ctx context.Context, candidates []Witness, pred func(Witness) bool) []Witness {
	pass := make([]bool, len(candidates))
	g, _ := errgroup.WithContext(ctx)
	for i, w := range candidates {
		i, w := i, w
		g.Go(func() error {
			pass[i] = pred(w)
			return nil
		})
	}
	_ = g.Wait()

	var out []Witness
	for i, ok := range pass {
		if ok {
			out = append(out, candidates[i])
		}
	}
	return out
}

// replayPath walks the real-hop subsequence of path (abstract rules
// with provenance; aux chain links share their parent's witness set and
// so never independently constrain the search) and backtracks over
// concrete witnesses, requiring each hop's witness to physically arrive
// where the previous hop's witness departed — the cross-hop
// consistency check the interface/label abstraction can hide (spec
// §4.8's "replay each candidate step"). It reports the deepest step
// index reached on failure, for Refine to localize the spurious hop.
func replayPath(res *Result, path []hop, word []label.Label) (replay []Replayed, failedAt int, ok bool) {
	var steps []hop
	for _, h := range path {
		if h.hasRule {
			steps = append(steps, h)
		}
	}
	if len(steps) == 0 {
		return nil, 0, true
	}

	ctx := context.Background()
	deepest := 0

	var backtrack func(i int, prevVia *topology.InterfaceID) ([]Replayed, bool)
	backtrack = func(i int, prevVia *topology.InterfaceID) ([]Replayed, bool) {
		if i == len(steps) {
			return nil, true
		}
		if i > deepest {
			deepest = i
		}
		candidates := res.Witnesses[steps[i].rule]
		candidates = concurrentFilter(ctx, candidates, func(w Witness) bool {
			if prevVia != nil && w.Iface != *prevVia {
				return false
			}
			if idx := steps[i].wordIdx; idx >= 0 && idx < len(word) && w.Label != word[idx] {
				return false
			}
			return true
		})
		for _, w := range candidates {
			nextVia := topology.InterfaceID(w.Rule.Via)
			if rest, ok := backtrack(i+1, &nextVia); ok {
				return append([]Replayed{{Rule: steps[i].rule, Witness: w}}, rest...), true
			}
		}
		return nil, false
	}

	replay, ok = backtrack(0, nil)
	if ok {
		return replay, -1, true
	}
	return nil, deepest, false
}

// Solve runs the CEGAR loop of spec §4.8 from start, consuming word
// (already abstracted each round via abs.Labels) as the stack to reach
// pds.FinalState. It returns the verdict and, on SAT, the concrete
// witness trace; on reaching maxRefinements without converging it
// returns Maybe, matching the "no further refinement exists" exit.
func Solve(net *topology.Network, start topology.InterfaceID, word []label.Label, maxRefinements int, opt RefinementOption) (Verdict, []Replayed, *Abstraction) {
	abs := NewAbstraction(net)

	for iter := 0; iter < maxRefinements; iter++ {
		res := Build(net, abs)

		target := automaton.New(res.PDS.NumStates())
		target.MarkAccepting(automaton.State(res.Final))
		automaton.PreStar(res.PDS, target)

		abstractWord := make([]label.Label, len(word))
		for i, l := range word {
			if _, known := abs.Labels.class[l]; !known {
				// A label outside the network's label universe gets an id
				// that no abstract rule's pre-label carries.
				abstractWord[i] = label.MPLSLabel(wildcardLabelClass + 1)
				continue
			}
			abstractWord[i] = label.MPLSLabel(uint64(abs.Labels.Abstract(l)))
		}
		startState := automaton.State(res.StateOf[abs.Ifaces.Abstract(start)])

		if !target.Accepts(startState, abstractWord) {
			return Unsat, nil, abs
		}

		path, ok := abstractPath(target, startState, abstractWord)
		if !ok {
			return Unsat, nil, abs
		}

		replay, failedAt, ok := replayPath(res, path, word)
		if ok {
			return Sat, replay, abs
		}

		if !refine(abs, net, res, path, failedAt, opt) {
			return Maybe, nil, abs
		}
		_ = iter
	}

	return Maybe, nil, abs
}
