// Package automaton implements the P-automaton of spec §3 and the
// pre*/post* saturation procedures of spec §4.6: given a pds.PDS and a
// seed automaton representing a set of configurations, compute the
// automaton recognizing, respectively, every predecessor or successor
// configuration reachable via the PDS's rules. Grounded on the
// saturation algorithm of Bouajjani/Esparza/Maler as implemented in
// `_examples/original_source/src/pdaaal/`'s `PAutomaton`/`Saturation`
// sources. Both directions are worklist fixpoints: pop and push rules
// contribute a single fixed transition each and never need retriggering,
// but swap rules (pre*) and every rule kind (post*) only fire once a
// triggering transition exists, and can in turn produce transitions that
// trigger further rules.
package automaton

import (
	"aalwines.dev/label"
	"aalwines.dev/pds"
)

// State indexes a P-automaton state. States 0..numBase-1 coincide with
// the seed PDS's control states; states beyond that are saturation
// auxiliaries.
type State int

// Automaton is a (possibly non-deterministic) finite automaton over the
// label alphabet, with epsilon transitions (used by post* to represent
// a pop's "rest of the stack is whatever the target state already
// recognizes").
type Automaton struct {
	numBase int
	trans   map[State]map[label.Label]map[State]bool
	eps     map[State]map[State]bool
	accept  map[State]bool
	next    State

	// origin and epsOrigin record, for transitions added during
	// saturation, the pds.Rule whose firing produced them — nil for
	// transitions present in the original seed automaton. The trace
	// package walks these to reconstruct a human-readable run.
	origin    map[State]map[label.Label]map[State]*pds.Rule
	epsOrigin map[State]map[State]*pds.Rule

	// closureOrigin records, for a labeled edge materialized purely by
	// propagating an epsilon predecessor's edges (spec §4.6's "epsilon
	// edges are closed at lookup time"), the intermediate state q_* the
	// edge was copied from — distinct from origin, since no single rule
	// fired to produce it directly.
	closureOrigin map[State]map[label.Label]map[State]State
}

// New returns an automaton whose base states are exactly
// 0..numBaseStates-1 (normally a PDS's control states).
func New(numBaseStates int) *Automaton {
	return &Automaton{
		numBase:       numBaseStates,
		trans:         map[State]map[label.Label]map[State]bool{},
		eps:           map[State]map[State]bool{},
		accept:        map[State]bool{},
		next:          State(numBaseStates),
		origin:        map[State]map[label.Label]map[State]*pds.Rule{},
		epsOrigin:     map[State]map[State]*pds.Rule{},
		closureOrigin: map[State]map[label.Label]map[State]State{},
	}
}

// NewState allocates a fresh auxiliary state.
func (a *Automaton) NewState() State {
	s := a.next
	a.next++
	return s
}

// AddEdge adds a from--l-->to transition, reporting whether it was new.
func (a *Automaton) AddEdge(from State, l label.Label, to State) bool {
	m, ok := a.trans[from]
	if !ok {
		m = map[label.Label]map[State]bool{}
		a.trans[from] = m
	}
	set, ok := m[l]
	if !ok {
		set = map[State]bool{}
		m[l] = set
	}
	if set[to] {
		return false
	}
	set[to] = true
	return true
}

// AddEpsilon adds a from--ε-->to transition, reporting whether it was new.
func (a *Automaton) AddEpsilon(from, to State) bool {
	set, ok := a.eps[from]
	if !ok {
		set = map[State]bool{}
		a.eps[from] = set
	}
	if set[to] {
		return false
	}
	set[to] = true
	return true
}

// addEdgeWithOrigin is AddEdge plus provenance bookkeeping, used by
// PreStar/PostStar so the trace package can later walk back which PDS
// rule justified each transition.
func (a *Automaton) addEdgeWithOrigin(from State, l label.Label, to State, r pds.Rule) bool {
	if !a.AddEdge(from, l, to) {
		return false
	}
	m, ok := a.origin[from]
	if !ok {
		m = map[label.Label]map[State]*pds.Rule{}
		a.origin[from] = m
	}
	s, ok := m[l]
	if !ok {
		s = map[State]*pds.Rule{}
		m[l] = s
	}
	rc := r
	s[to] = &rc
	return true
}

func (a *Automaton) addEpsilonWithOrigin(from, to State, r pds.Rule) bool {
	if !a.AddEpsilon(from, to) {
		return false
	}
	m, ok := a.epsOrigin[from]
	if !ok {
		m = map[State]*pds.Rule{}
		a.epsOrigin[from] = m
	}
	rc := r
	m[to] = &rc
	return true
}

// OriginOf returns the rule that produced the from--l-->to transition,
// if any (seed-automaton transitions have no origin).
func (a *Automaton) OriginOf(from State, l label.Label, to State) (pds.Rule, bool) {
	r, ok := a.origin[from][l][to]
	if !ok {
		return pds.Rule{}, false
	}
	return *r, true
}

// EpsilonOriginOf returns the rule that produced the from--ε-->to
// transition, if any.
func (a *Automaton) EpsilonOriginOf(from, to State) (pds.Rule, bool) {
	r, ok := a.epsOrigin[from][to]
	if !ok {
		return pds.Rule{}, false
	}
	return *r, true
}

// addClosureEdge adds a from--l-->to transition attributed to epsilon-
// closure propagation through intermediate state mid (as opposed to a
// direct rule firing), reporting whether it was new.
func (a *Automaton) addClosureEdge(from State, l label.Label, to State, mid State) bool {
	if !a.AddEdge(from, l, to) {
		return false
	}
	m, ok := a.closureOrigin[from]
	if !ok {
		m = map[label.Label]map[State]State{}
		a.closureOrigin[from] = m
	}
	s, ok := m[l]
	if !ok {
		s = map[State]State{}
		m[l] = s
	}
	s[to] = mid
	return true
}

// ClosureOriginOf returns the intermediate state q_* that the
// from--l-->to transition was copied from during epsilon-closure
// propagation, if it was produced that way.
func (a *Automaton) ClosureOriginOf(from State, l label.Label, to State) (State, bool) {
	mid, ok := a.closureOrigin[from][l][to]
	return mid, ok
}

// MarkAccepting marks s as an accepting state.
func (a *Automaton) MarkAccepting(s State) { a.accept[s] = true }

// IsAccepting reports whether s is an accepting state.
func (a *Automaton) IsAccepting(s State) bool { return a.accept[s] }

// EdgesFrom returns the labeled transitions leaving s, as (label,
// destination) pairs.
func (a *Automaton) EdgesFrom(s State) []Edge {
	var out []Edge
	for l, tos := range a.trans[s] {
		for to := range tos {
			out = append(out, Edge{Label: l, To: to})
		}
	}
	return out
}

// Edge is one labeled transition, returned by EdgesFrom.
type Edge struct {
	Label label.Label
	To    State
}

// EpsilonFrom returns the states directly reachable from s via an
// epsilon transition.
func (a *Automaton) EpsilonFrom(s State) []State {
	var out []State
	for to := range a.eps[s] {
		out = append(out, to)
	}
	return out
}

// EpsilonClosure returns every state reachable from states via zero or
// more epsilon transitions, states included.
func (a *Automaton) EpsilonClosure(states []State) []State {
	seen := map[State]bool{}
	var stack []State
	stack = append(stack, states...)
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[s] {
			continue
		}
		seen[s] = true
		for to := range a.eps[s] {
			if !seen[to] {
				stack = append(stack, to)
			}
		}
	}
	out := make([]State, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	return out
}

// Follow returns the states reachable from any state in `from` by
// consuming exactly one symbol l (epsilon-closure is taken by the
// caller both before and after, matching the nfa package's convention).
func (a *Automaton) Follow(from []State, l label.Label) []State {
	seen := map[State]bool{}
	var out []State
	for _, s := range from {
		for to := range a.trans[s][l] {
			if !seen[to] {
				seen[to] = true
				out = append(out, to)
			}
		}
	}
	return out
}

// Accepts reports whether, starting at `start`, the automaton has an
// accepting run over word.
func (a *Automaton) Accepts(start State, word []label.Label) bool {
	cur := a.EpsilonClosure([]State{start})
	for _, l := range word {
		cur = a.EpsilonClosure(a.Follow(cur, l))
		if len(cur) == 0 {
			return false
		}
	}
	for _, s := range cur {
		if a.accept[s] {
			return true
		}
	}
	return false
}

// swapRuleKey indexes swap/noop rules by the (destination state, pushed
// label) pair that triggers them: such a rule only contributes an edge
// once its destination q is observed to already have an outgoing arg
// transition (to some q'), at which point the rule's source gets a
// same-label shortcut straight to q'.
type swapRuleKey struct {
	To  pds.StateID
	Arg label.Label
}

// PreStar saturates target in place with pre*'s transitions for pd and
// returns it, per spec §4.6. Pop and push rules contribute a fixed
// transition unconditionally:
//   - pop  (p,γ)->(q,ε):   add p --γ--> q
//   - push (p,γ)->(q,γ'γ): add q --γ'--> p
//
// Swap (and noop, treated as swap-to-self) rules need a genuine
// fixpoint: (p,γ)->(q,γ') only contributes p --γ--> q' once some
// q --γ'--> q' transition is found (seeded, or produced by an earlier
// saturation step) — that new transition can in turn trigger further
// swap rules whose destination is p, so a worklist is required.
func PreStar(pd *pds.PDS, target *Automaton) *Automaton {
	swapIdx := map[swapRuleKey][]pds.Rule{}
	var worklist []triggerEdge
	enqueue := func(e triggerEdge) { worklist = append(worklist, e) }

	for from, m := range target.trans {
		for l, tos := range m {
			for to := range tos {
				enqueue(triggerEdge{from, l, to})
			}
		}
	}

	for _, r := range pd.Rules() {
		from, to := State(r.From), State(r.To)
		switch r.Op.Kind {
		case pds.Pop:
			if target.addEdgeWithOrigin(from, r.PreLabel, to, r) {
				enqueue(triggerEdge{from, r.PreLabel, to})
			}
		case pds.Push:
			if target.addEdgeWithOrigin(to, r.Op.Arg, from, r) {
				enqueue(triggerEdge{to, r.Op.Arg, from})
			}
		case pds.Swap, pds.Noop:
			arg := r.Op.Arg
			if r.Op.Kind == pds.Noop {
				arg = r.PreLabel
			}
			key := swapRuleKey{To: r.To, Arg: arg}
			swapIdx[key] = append(swapIdx[key], r)
		}
	}

	for len(worklist) > 0 {
		e := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		for _, r := range swapIdx[swapRuleKey{To: pds.StateID(e.from), Arg: e.l}] {
			if target.addEdgeWithOrigin(State(r.From), r.PreLabel, e.to, r) {
				enqueue(triggerEdge{State(r.From), r.PreLabel, e.to})
			}
		}
	}

	return target
}

type ruleIndexKey struct {
	From  pds.StateID
	Label label.Label
}

// pushKey identifies the shared auxiliary state a post* push rule
// routes through for a given (destination control state, pushed label,
// continuation state) triple.
type pushKey struct {
	To  pds.StateID
	Arg label.Label
	Dst State
}

type triggerEdge struct {
	from State
	l    label.Label
	to   State
}

// PostStar saturates source in place with post*'s transitions for pd and
// returns it. Unlike PreStar, where only swap and noop rules wait on the
// worklist, every rule kind here only fires once a matching (from, label)
// edge exists in the automaton, and rule applications themselves add new
// edges that can make other rules fire, per spec §4.6:
//   - pop   (p,γ)->(q,ε):   for edge p--γ-->s, add q --ε--> s
//   - swap  (p,γ)->(q,γ'):  for edge p--γ-->s, add q --γ'--> s
//   - push  (p,γ)->(q,γ'γ): for edge p--γ-->s, add q --γ'--> mid(q,γ',s); mid(q,γ',s) --γ--> s
//
// Epsilon edges produced by pop rules must also be closed within the
// fixpoint, not just at lookup time: "when processing an epsilon edge
// (q, ε, q_*), for every outgoing edge (q_*, γ, q') add (q, γ, q')".
// Without this, a rule whose From state is reachable only via such an
// epsilon edge can never be triggered, since the worklist is keyed on
// concrete (state, label) pairs. epsPred indexes epsilon predecessors so
// that whenever a labeled edge lands on (or already exists at) a state
// mid, it gets copied onto every state with an epsilon edge into mid,
// transitively, enqueuing each newly materialized edge so rule-firing
// can trigger on it in turn.
func PostStar(pd *pds.PDS, source *Automaton) *Automaton {
	idx := map[ruleIndexKey][]pds.Rule{}
	for _, r := range pd.Rules() {
		k := ruleIndexKey{From: r.From, Label: r.PreLabel}
		idx[k] = append(idx[k], r)
	}

	var worklist []triggerEdge
	enqueue := func(e triggerEdge) { worklist = append(worklist, e) }

	epsPred := map[State][]State{}
	for from, tos := range source.eps {
		for to := range tos {
			epsPred[to] = append(epsPred[to], from)
		}
	}

	var propagate func(mid State, l label.Label, to State)
	propagate = func(mid State, l label.Label, to State) {
		for _, p := range epsPred[mid] {
			if source.addClosureEdge(p, l, to, mid) {
				enqueue(triggerEdge{p, l, to})
				propagate(p, l, to)
			}
		}
	}

	addEps := func(from, to State, r pds.Rule) {
		if !source.addEpsilonWithOrigin(from, to, r) {
			return
		}
		epsPred[to] = append(epsPred[to], from)
		for _, e := range source.EdgesFrom(to) {
			if source.addClosureEdge(from, e.Label, e.To, to) {
				enqueue(triggerEdge{from, e.Label, e.To})
				propagate(from, e.Label, e.To)
			}
		}
	}

	for from, m := range source.trans {
		for l, tos := range m {
			for to := range tos {
				enqueue(triggerEdge{from, l, to})
				propagate(from, l, to)
			}
		}
	}

	mids := map[pushKey]State{}

	for len(worklist) > 0 {
		e := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		rules := idx[ruleIndexKey{From: pds.StateID(e.from), Label: e.l}]
		for _, r := range rules {
			to := State(r.To)
			switch r.Op.Kind {
			case pds.Pop:
				addEps(to, e.to, r)
			case pds.Swap, pds.Noop:
				arg := r.Op.Arg
				if r.Op.Kind == pds.Noop {
					arg = r.PreLabel
				}
				if source.addEdgeWithOrigin(to, arg, e.to, r) {
					enqueue(triggerEdge{to, arg, e.to})
					propagate(to, arg, e.to)
				}
			case pds.Push:
				key := pushKey{To: r.To, Arg: r.Op.Arg, Dst: e.to}
				mid, ok := mids[key]
				if !ok {
					mid = source.NewState()
					mids[key] = mid
				}
				if source.addEdgeWithOrigin(to, r.Op.Arg, mid, r) {
					enqueue(triggerEdge{to, r.Op.Arg, mid})
					propagate(to, r.Op.Arg, mid)
				}
				if source.addEdgeWithOrigin(mid, r.PreLabel, e.to, r) {
					enqueue(triggerEdge{mid, r.PreLabel, e.to})
					propagate(mid, r.PreLabel, e.to)
				}
			}
		}
	}

	return source
}
