package label

import "golang.org/x/exp/slices"

// Set represents either an explicit set of labels or its complement
// (Negated), matching the NFA-edge and PDS-pre-set representations named
// in spec §3 ("an edge carries either an explicit label set or its
// complement") and §4.4 ("pre-sets are represented as {labels} or
// wildcard").
type Set struct {
	Labels  []Label
	Negated bool
}

// All returns the universal set (matches every label): the empty
// negated set.
func All() Set { return Set{Negated: true} }

// Exactly returns an explicit set containing ls.
func Exactly(ls ...Label) Set {
	out := append([]Label(nil), ls...)
	slices.SortFunc(out, func(a, b Label) bool { return Less(a, b) })
	out = slices.CompactFunc(out, Equal)
	return Set{Labels: out}
}

// Contains reports whether l is matched by s, honoring overlap (not bare
// equality) so that wildcard/sentinel members of s still match.
func (s Set) Contains(l Label) bool {
	found := false
	for _, m := range s.Labels {
		if Overlaps(m, l) {
			found = true
			break
		}
	}
	if s.Negated {
		return !found
	}
	return found
}

// Resolve expands s against universe into the concrete labels it matches:
// for a negated set, every universe label not overlapping a set member;
// for an explicit set, the set members themselves, unfolded against
// universe.
func (s Set) Resolve(universe []Label) []Label {
	if !s.Negated {
		out := make([]Label, 0, len(s.Labels))
		for _, l := range s.Labels {
			out = append(out, Unfold(l, universe)...)
		}
		slices.SortFunc(out, func(a, b Label) bool { return Less(a, b) })
		return slices.CompactFunc(out, Equal)
	}
	out := make([]Label, 0, len(universe))
	for _, u := range universe {
		if u.IsAnyOfKind() || u.Kind == AnyIP {
			continue
		}
		if !s.Contains(u) {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Intersect returns the conjunction of s and other (used when tightening
// a rule's pre-set during PDS reduction, spec §4.4).
func Intersect(s, other Set, universe []Label) Set {
	a := s.Resolve(universe)
	b := other.Resolve(universe)
	bSet := make(map[Label]bool, len(b))
	for _, l := range b {
		bSet[l] = true
	}
	out := make([]Label, 0)
	for _, l := range a {
		if bSet[l] {
			out = append(out, l)
		}
	}
	return Exactly(out...)
}

// Empty reports whether s resolves to no labels at all.
func (s Set) Empty(universe []Label) bool {
	return len(s.Resolve(universe)) == 0
}
