// Package pds implements the pushdown-system model of spec §3 (PDS rule)
// and §4.4 (add_rule, the four reduction levels). A PDS here is always a
// "single-symbol" system in the sense of spec's Non-goals: PUSH rules
// have the form <p,γ> -> <q, γ' γ>, so every right-hand side has length
// at most 2 and the original top is preserved underneath a push.
package pds

import (
	"aalwines.dev/label"
	"aalwines.dev/routing"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// StateID indexes a PDS control state.
type StateID int

// FinalState is the sentinel "outside" state 0, reachable only through
// acceptance (spec §4.5).
const FinalState StateID = 0

// OpKind tags a PDS rule's effect on the stack.
type OpKind uint8

const (
	Pop OpKind = iota
	Swap
	Noop
	Push
)

// Op is a PDS rule's right-hand-side operation. Arg is used by Swap and
// Push only.
type Op struct {
	Kind OpKind
	Arg  label.Label
}

// Rule is one expanded PDS rule: a single concrete pre-label (PreSets are
// resolved into one Rule per concrete label at AddRule time, per spec
// §4.4), a destination state, and an operation. Via names the routing
// rule's outgoing interface; HasVia is false for every link of a
// multi-op chain but the last (and for all rules the cegar factory
// builds). The trace package uses them to label rule hops; the query's
// Path regex is matched by the factory's control states, not through Via.
type Rule struct {
	From     StateID
	PreLabel label.Label
	To       StateID
	Op       Op
	Via      routing.InterfaceRef
	HasVia   bool
}

// PDS is the rule-indexed pushdown system. It is built by a factory
// (pdafactory or cegar) and consumed by automaton's pre*/post*.
type PDS struct {
	numStates int
	rules     []Rule
	byFrom    map[StateID][]int
}

// New returns an empty PDS with numStates control states (state ids
// 0..numStates-1 are valid).
func New(numStates int) *PDS {
	return &PDS{numStates: numStates, byFrom: map[StateID][]int{}}
}

// NumStates reports the PDS's control-state count.
func (p *PDS) NumStates() int { return p.numStates }

// EnsureState grows the PDS to include state s, if not already present.
func (p *PDS) EnsureState(s StateID) {
	if int(s) >= p.numStates {
		p.numStates = int(s) + 1
	}
}

// AddRule expands preSet against universe and inserts one concrete Rule
// per resulting label, per spec §4.4 add_rule.
func (p *PDS) AddRule(from StateID, preSet label.Set, to StateID, op Op, universe []label.Label) {
	p.EnsureState(from)
	p.EnsureState(to)
	for _, l := range preSet.Resolve(universe) {
		p.addConcreteRule(Rule{From: from, PreLabel: l, To: to, Op: op})
	}
}

// AddConcreteRule inserts a single already-concrete rule directly,
// bypassing set resolution (used by the CEGAR abstract factory, whose
// pre-labels are already abstract-id singletons).
func (p *PDS) AddConcreteRule(r Rule) {
	p.EnsureState(r.From)
	p.EnsureState(r.To)
	p.addConcreteRule(r)
}

func (p *PDS) addConcreteRule(r Rule) {
	idx := len(p.rules)
	p.rules = append(p.rules, r)
	p.byFrom[r.From] = append(p.byFrom[r.From], idx)
}

// Rules returns every rule in insertion order.
func (p *PDS) Rules() []Rule { return p.rules }

// RulesFrom returns the rules whose From state is s.
func (p *PDS) RulesFrom(s StateID) []Rule {
	idxs := p.byFrom[s]
	out := make([]Rule, len(idxs))
	for i, idx := range idxs {
		out[i] = p.rules[idx]
	}
	return out
}

// Size reports the number of rules (used for the before/after counts
// Reduce returns, spec §4.4/§6).
func (p *PDS) Size() int { return len(p.rules) }

func (p *PDS) rebuildIndex() {
	p.byFrom = map[StateID][]int{}
	for i, r := range p.rules {
		p.byFrom[r.From] = append(p.byFrom[r.From], i)
	}
}

// forwardReachable returns every state reachable from initial via rules,
// treating each rule as a directed from->to edge.
func (p *PDS) forwardReachable(initial []StateID) map[StateID]bool {
	seen := map[StateID]bool{}
	var stack []StateID
	for _, s := range initial {
		stack = append(stack, s)
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[s] {
			continue
		}
		seen[s] = true
		for _, r := range p.RulesFrom(s) {
			if !seen[r.To] {
				stack = append(stack, r.To)
			}
		}
	}
	return seen
}

// backwardReachable returns every state that can reach a state in target,
// via reversed rule edges.
func (p *PDS) backwardReachable(target []StateID) map[StateID]bool {
	rev := map[StateID][]StateID{}
	for _, r := range p.rules {
		rev[r.To] = append(rev[r.To], r.From)
	}
	seen := map[StateID]bool{}
	var stack []StateID
	stack = append(stack, target...)
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[s] {
			continue
		}
		seen[s] = true
		for _, from := range rev[s] {
			if !seen[from] {
				stack = append(stack, from)
			}
		}
	}
	return seen
}

// tosSummary maps a state to the set of top-of-stack labels it may be
// entered with (level >= 1) and, at level >= 2, the label immediately
// below the top as well.
type tosSummary struct {
	top   map[label.Label]bool
	below map[[2]label.Label]bool // [top, below] pairs, level 2 only
}

// Reduce applies the pruning/tightening pass selected by aggressiveness
// (0-3, spec §4.4) and returns (size_before, size_after). initial and
// accepting name the live region for forward/backward reachability
// (level 0); reduction never removes a rule a concrete execution still
// reachable from initial and co-reachable to accepting could have used,
// preserving trace-equivalence per spec §4.4's invariant. Level 3 is the
// exception: it treats FinalState as the only state a run may end in,
// whatever accepting says.
func (p *PDS) Reduce(aggressiveness int, initial, accepting []StateID, universe []label.Label) (before, after int) {
	before = p.Size()
	if aggressiveness <= 0 {
		aggressiveness = 0
	}

	fwd := p.forwardReachable(initial)
	bwd := p.backwardReachable(accepting)
	kept := make([]Rule, 0, len(p.rules))
	for _, r := range p.rules {
		if fwd[r.From] && bwd[r.To] {
			kept = append(kept, r)
		}
	}
	p.rules = kept
	p.rebuildIndex()

	if aggressiveness >= 1 {
		p.tightenWithTOS(initial, aggressiveness >= 2, universe)
	}
	if aggressiveness >= 3 {
		p.targetTOSPrune(universe)
	}

	after = p.Size()
	return before, after
}

// tightenWithTOS computes, per state, a fixed-point summary of reachable
// top-of-stack (and, at level 2, below-top) labels starting from initial,
// then intersects every rule's effective pre-set with the incoming
// summary at its From state, dropping rules whose pre-set becomes empty.
func (p *PDS) tightenWithTOS(initial []StateID, level2 bool, universe []label.Label) {
	summary := map[StateID]*tosSummary{}
	get := func(s StateID) *tosSummary {
		if s2, ok := summary[s]; ok {
			return s2
		}
		s2 := &tosSummary{top: map[label.Label]bool{}, below: map[[2]label.Label]bool{}}
		summary[s] = s2
		return s2
	}
	for _, s := range initial {
		get(s).top[label.Any(label.MPLS)] = true // initial TOS is query-dependent; treated as unconstrained
	}

	changed := true
	for changed {
		changed = false
		for _, r := range p.rules {
			from := get(r.From)
			to := get(r.To)
			for l := range from.top {
				var nl label.Label
				switch r.Op.Kind {
				case Pop:
					continue // below becomes new top; level-2 only, tracked via `below`
				case Swap:
					nl = r.Op.Arg
				case Noop:
					nl = l
				case Push:
					nl = r.Op.Arg
				}
				if !to.top[nl] {
					to.top[nl] = true
					changed = true
				}
				if level2 {
					key := [2]label.Label{nl, l}
					if !to.below[key] {
						to.below[key] = true
						changed = true
					}
				}
			}
			if level2 && r.Op.Kind == Pop {
				for key := range from.below {
					if key[0] != r.PreLabel && !r.PreLabel.IsAnyOfKind() {
						continue
					}
					if !to.top[key[1]] {
						to.top[key[1]] = true
						changed = true
					}
				}
			}
		}
	}

	kept := make([]Rule, 0, len(p.rules))
	for _, r := range p.rules {
		from, ok := summary[r.From]
		if !ok {
			kept = append(kept, r)
			continue
		}
		if len(from.top) == 0 {
			continue
		}
		if from.top[r.PreLabel] || from.top[label.Any(label.MPLS)] {
			kept = append(kept, r)
		}
	}
	p.rules = kept
	p.rebuildIndex()
}

// targetTOSPrune drops every rule whose destination state has no
// outgoing rule and is not FinalState (spec §4.4 level 3). Pre-labels of
// the remaining rules are left as they are.
func (p *PDS) targetTOSPrune(universe []label.Label) {
	hasOutgoing := map[StateID]bool{}
	for _, r := range p.rules {
		hasOutgoing[r.From] = true
	}
	kept := make([]Rule, 0, len(p.rules))
	for _, r := range p.rules {
		if r.To == FinalState || hasOutgoing[r.To] {
			kept = append(kept, r)
		}
	}
	p.rules = kept
	p.rebuildIndex()
}

// Labels returns every distinct pre-label used by any rule, sorted, for
// callers that need a compact per-PDS label set rather than the full
// network universe.
func (p *PDS) Labels() []label.Label {
	seen := map[label.Label]bool{}
	for _, r := range p.rules {
		seen[r.PreLabel] = true
	}
	out := maps.Keys(seen)
	slices.SortFunc(out, func(a, b label.Label) bool { return label.Less(a, b) })
	return out
}
