package label

import "golang.org/x/exp/slices"

// Universe is a cached, stable set of every label appearing in a network
// (entry top-labels and rule operation labels) plus the nine sentinels,
// per spec §4.1. It is built once per query and assumed stable for the
// query's duration; callers must rebuild it after mutating any routing
// table.
type Universe struct {
	labels []Label
}

// BuildUniverse computes the cached label set from the given label
// occurrences (collected by the caller, typically topology.Network).
func BuildUniverse(occurrences []Label) Universe {
	all := append([]Label(nil), occurrences...)
	all = append(all, Sentinels()...)
	slices.SortFunc(all, func(a, b Label) bool { return Less(a, b) })
	all = slices.CompactFunc(all, Equal)
	return Universe{labels: all}
}

// Labels returns the universe in sorted, deterministic order.
func (u Universe) Labels() []Label { return u.labels }

// Len reports the number of distinct labels in the universe.
func (u Universe) Len() int { return len(u.labels) }
