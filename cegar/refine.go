package cegar

import "aalwines.dev/topology"

// RefinementOption selects among partition-refinement strategies when a
// replay fails without localizing to a single spurious rule, per spec
// §4.8 ("the refinement_option parameter selects among strategies ...
// affecting only convergence speed, not correctness"). FirstSeparating
// is the default (see DESIGN.md's Open Question decision).
type RefinementOption int

const (
	// FirstSeparating splits the failing hop's source interface class
	// into exactly the concrete interfaces that produced the failing
	// abstract rule ("good", consistent with the path so far) versus
	// every other member of that class ("bad").
	FirstSeparating RefinementOption = iota

	// BestRefinement widens the good set to every interface producing a
	// rule with the same (destination class, operation kind) as the
	// failing rule — a coarser-grained notion of "consistent enough"
	// that can avoid re-splitting the same class again on a later,
	// merely-similar failure.
	BestRefinement
)

// refine computes the "good" (consistent with the accept path so far)
// and "bad" (producing the spurious hop) subsets of the failing hop's
// source interface class, per spec §4.8's Refine step, and splits the
// interface partition to separate them. It returns false when the class
// cannot be split any further (every member already behaves
// identically), signaling Solve to report Maybe.
func refine(abs *Abstraction, net *topology.Network, res *Result, path []hop, failedAt int, opt RefinementOption) bool {
	var steps []hop
	for _, h := range path {
		if h.hasRule {
			steps = append(steps, h)
		}
	}
	if failedAt < 0 || failedAt >= len(steps) {
		return false
	}
	failing := steps[failedAt].rule

	classOf := map[int]int{} // pds state id (as int) -> abstract interface class
	for class, s := range res.StateOf {
		classOf[int(s)] = class
	}
	fromClass, ok := classOf[int(failing.From)]
	if !ok {
		return false
	}

	universe := abs.Ifaces.Members(net.Interfaces(), fromClass)
	if len(universe) < 2 {
		return false
	}

	good := map[topology.InterfaceID]bool{}
	switch opt {
	case BestRefinement:
		for rule, witnesses := range res.Witnesses {
			if rule.To != failing.To || rule.Op.Kind != failing.Op.Kind {
				continue
			}
			for _, w := range witnesses {
				good[w.Iface] = true
			}
		}
	default:
		for _, w := range res.Witnesses[failing] {
			good[w.Iface] = true
		}
	}

	var goodList, badList []topology.InterfaceID
	for _, id := range universe {
		if good[id] {
			goodList = append(goodList, id)
		} else {
			badList = append(badList, id)
		}
	}
	if len(goodList) == 0 || len(badList) == 0 {
		return false
	}

	abs.Ifaces.Refine(badList)
	return true
}
