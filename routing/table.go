// Package routing implements the per-interface routing table of spec §3
// (Routing-table entry, Stack operation) and its operations (spec §4.2):
// ordered entries keyed by top-label, priority-ranked forwarding rules,
// failover synthesis, merge with non-determinism detection, and the
// stack-operation normalization law.
package routing

import (
	"fmt"
	"sort"

	"aalwines.dev/label"
)

// OpKind tags a stack operation.
type OpKind uint8

const (
	Push OpKind = iota
	Pop
	Swap
)

// Op is one stack operation. Arg is meaningless for Pop.
type Op struct {
	Kind OpKind
	Arg  label.Label
}

func (o Op) String() string {
	switch o.Kind {
	case Push:
		return fmt.Sprintf("push(%s)", o.Arg)
	case Pop:
		return "pop"
	case Swap:
		return fmt.Sprintf("swap(%s)", o.Arg)
	default:
		return "?"
	}
}

// RuleType tags what kind of forwarding decision a rule represents.
type RuleType uint8

const (
	TypeMPLS RuleType = iota
	TypeReceive
	TypeDiscard
	TypeRoute
)

// InterfaceRef identifies a rule's outgoing interface without this
// package depending on topology (which depends on routing); callers
// (topology, pdafactory) use a concrete numeric id consistently.
type InterfaceRef uint64

// Rule is one forwarding rule: a priority class, a weight (failure cost
// under UNDER/DUAL), a type, an outgoing interface, and an ordered list
// of stack operations, kept normalized per the law in spec §3.
type Rule struct {
	Priority uint32
	Weight   uint32
	Type     RuleType
	Via      InterfaceRef
	Ops      []Op
}

// AppendOp appends op to r.Ops, applying the normalization law: PUSH y
// immediately preceded by POP collapses to SWAP y; SWAP y followed by POP
// collapses to POP; consecutive SWAPs keep only the last label.
func (r *Rule) AppendOp(op Op) {
	r.Ops = appendNormalized(r.Ops, op)
}

func appendNormalized(ops []Op, op Op) []Op {
	if len(ops) == 0 {
		return append(ops, op)
	}
	last := ops[len(ops)-1]
	switch {
	case last.Kind == Pop && op.Kind == Push:
		ops[len(ops)-1] = Op{Kind: Swap, Arg: op.Arg}
		return ops
	case last.Kind == Swap && op.Kind == Pop:
		ops[len(ops)-1] = Op{Kind: Pop}
		return ops
	case last.Kind == Swap && op.Kind == Swap:
		ops[len(ops)-1] = op
		return ops
	default:
		return append(ops, op)
	}
}

// Entry is one routing-table entry: a top-label key and its
// priority-ordered rule list.
type Entry struct {
	TopLabel label.Label
	Rules    []Rule
	// IsDefault marks the "ignores-label" entry, which matches any label
	// not covered by a specific entry and must sort last.
	IsDefault bool
}

// Table is an ordered sequence of entries, sorted by top-label (the
// default entry, if present, always last), per spec §3/§4.2.
type Table struct {
	entries []Entry
}

// Entries returns the table's entries in sorted order.
func (t *Table) Entries() []Entry { return t.entries }

// Empty reports whether the table has no entries.
func (t *Table) Empty() bool { return len(t.entries) == 0 }

func (t *Table) sort() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		a, b := t.entries[i], t.entries[j]
		if a.IsDefault != b.IsDefault {
			return !a.IsDefault // non-default sorts before default
		}
		return label.Less(a.TopLabel, b.TopLabel)
	})
}

// InsertEntry returns the (possibly newly created) entry for top, keeping
// entries sorted. Idempotent: calling it twice for the same top returns
// the same entry.
func (t *Table) InsertEntry(top label.Label) *Entry {
	for i := range t.entries {
		if label.Equal(t.entries[i].TopLabel, top) && !t.entries[i].IsDefault {
			return &t.entries[i]
		}
	}
	t.entries = append(t.entries, Entry{TopLabel: top})
	t.sort()
	for i := range t.entries {
		if label.Equal(t.entries[i].TopLabel, top) && !t.entries[i].IsDefault {
			return &t.entries[i]
		}
	}
	panic("internal-invariant: inserted entry not found after sort")
}

// InsertDefaultEntry returns the table's default ("ignores-label") entry,
// creating it if absent. It always sorts last.
func (t *Table) InsertDefaultEntry() *Entry {
	for i := range t.entries {
		if t.entries[i].IsDefault {
			return &t.entries[i]
		}
	}
	t.entries = append(t.entries, Entry{IsDefault: true, TopLabel: label.Any(label.MPLS)})
	t.sort()
	return &t.entries[len(t.entries)-1]
}

// AddRule appends rule to the entry keyed by top, preserving input order
// (order is significant: it defines failover ranking by (priority, list
// position), spec §4.2).
func (t *Table) AddRule(top label.Label, rule Rule) {
	e := t.InsertEntry(top)
	e.Rules = append(e.Rules, rule)
}

// AddFailoverEntries implements spec §4.2 add_failover_entries: for every
// rule currently using `failed` as its outgoing interface, append a new
// rule using `backup` whose priority is one greater and whose ops end
// with PUSH(relabel).
func (t *Table) AddFailoverEntries(failed, backup InterfaceRef, relabel label.Label) {
	for ei := range t.entries {
		e := &t.entries[ei]
		var additions []Rule
		for _, r := range e.Rules {
			if r.Via != failed {
				continue
			}
			nr := Rule{Priority: r.Priority + 1, Weight: r.Weight, Type: r.Type, Via: backup}
			nr.Ops = append([]Op(nil), r.Ops...)
			nr.AppendOp(Op{Kind: Push, Arg: relabel})
			additions = append(additions, nr)
		}
		e.Rules = append(e.Rules, additions...)
	}
}

// AddToOutgoing implements spec §4.2 add_to_outgoing: append op to every
// rule whose outgoing interface equals `outgoing`, honoring the
// normalization law.
func (t *Table) AddToOutgoing(outgoing InterfaceRef, op Op) {
	for ei := range t.entries {
		e := &t.entries[ei]
		for ri := range e.Rules {
			if e.Rules[ri].Via == outgoing {
				e.Rules[ri].AppendOp(op)
			}
		}
	}
}

// NondetWarning records a non-determinism finding: two rules sharing
// (top-label, priority, outgoing) with different ops.
type NondetWarning struct {
	TopLabel label.Label
	Priority uint32
	Via      InterfaceRef
}

func (w NondetWarning) String() string {
	return fmt.Sprintf("Overlap on label %s: priority %d via interface %d has conflicting rules", w.TopLabel, w.Priority, w.Via)
}

func rulesEqual(a, b Rule) bool {
	if a.Priority != b.Priority || a.Via != b.Via || a.Type != b.Type || len(a.Ops) != len(b.Ops) {
		return false
	}
	for i := range a.Ops {
		if a.Ops[i].Kind != b.Ops[i].Kind || !label.Equal(a.Ops[i].Arg, b.Ops[i].Arg) {
			return false
		}
	}
	return true
}

// CheckNondet scans the table for entries whose rule list contains two
// rules sharing (priority, outgoing) with differing ops, per spec §4.2.
func (t *Table) CheckNondet() []NondetWarning {
	var out []NondetWarning
	for _, e := range t.entries {
		for i := 0; i < len(e.Rules); i++ {
			for j := i + 1; j < len(e.Rules); j++ {
				a, b := e.Rules[i], e.Rules[j]
				if a.Priority == b.Priority && a.Via == b.Via && !rulesEqual(a, b) {
					out = append(out, NondetWarning{TopLabel: e.TopLabel, Priority: a.Priority, Via: a.Via})
				}
			}
		}
	}
	return out
}

// Merge performs a sorted merge of other into t: for shared top-labels,
// rule lists are concatenated. Non-determinism introduced by the merge
// (two rules with the same (priority, outgoing) but different ops) is
// reported via warn, and the merge proceeds regardless — this
// implementation's Open Question decision is to keep both rules and warn
// (spec §9, option (a)).
func (t *Table) Merge(other *Table, warn func(NondetWarning)) {
	for _, oe := range other.entries {
		var e *Entry
		if oe.IsDefault {
			e = t.InsertDefaultEntry()
		} else {
			e = t.InsertEntry(oe.TopLabel)
		}
		e.Rules = append(e.Rules, oe.Rules...)
	}
	t.sort()
	if warn != nil {
		for _, w := range t.CheckNondet() {
			warn(w)
		}
	}
}

// SimpleMerge is the no-warning variant used by automatic reroute
// synthesis (spec §4.2 simple_merge): it rejects (returns false) rather
// than warn when the same priority class already owns a distinct rule
// for a shared top-label/outgoing pair.
func (t *Table) SimpleMerge(other *Table) bool {
	// Dry-run: detect conflicts before mutating t.
	snapshot := make(map[string][]Rule, len(t.entries))
	for _, e := range t.entries {
		snapshot[e.TopLabel.String()] = append(snapshot[e.TopLabel.String()], e.Rules...)
	}
	for _, oe := range other.entries {
		existing := snapshot[oe.TopLabel.String()]
		for _, nr := range oe.Rules {
			for _, er := range existing {
				if er.Priority == nr.Priority && er.Via == nr.Via && !rulesEqual(er, nr) {
					return false
				}
			}
		}
	}
	t.Merge(other, nil)
	return true
}

// LabelOccurrences returns every label appearing in the table (top-labels
// and rule operation arguments), for the network's label universe.
func (t *Table) LabelOccurrences() []label.Label {
	var out []label.Label
	for _, e := range t.entries {
		if !e.IsDefault {
			out = append(out, e.TopLabel)
		}
		for _, r := range e.Rules {
			for _, op := range r.Ops {
				if op.Kind == Push || op.Kind == Swap {
					out = append(out, op.Arg)
				}
			}
		}
	}
	return out
}

// UpdateInterfaces rewrites every rule's Via field through fn, the hook
// network composition (inject/concat) needs to keep interface references
// consistent after renumbering (spec §3 Network invariant (b)). No
// package in this module calls it.
func (t *Table) UpdateInterfaces(fn func(InterfaceRef) InterfaceRef) {
	for ei := range t.entries {
		for ri := range t.entries[ei].Rules {
			t.entries[ei].Rules[ri].Via = fn(t.entries[ei].Rules[ri].Via)
		}
	}
}
