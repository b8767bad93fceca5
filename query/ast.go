package query

import (
	"regexp"

	"aalwines.dev/label"
	"aalwines.dev/nfa"
)

// Atom is one leaf of a query regex: an interface filter, a label
// literal, an IP/IPv6 atom, a sticky-MPLS block, or the wildcard ".".
// Grounded on original_source's QueryBuilder atom taxonomy (spec §6).
type Atom struct {
	Kind AtomKind

	// Label literals (MPLS "<N>", sticky "s<N>", IP atoms) resolve
	// directly to a concrete label.
	Label label.Label

	// Interface filters match an interface by from/to router-name regex
	// or exact string; nil means "don't care".
	From, To *Filter

	// Negated applies to interface filters built with "!".
	Negated bool
}

// AtomKind tags which grammar production built an Atom.
type AtomKind uint8

const (
	AtomDot AtomKind = iota
	AtomLabel
	AtomInterfaceFilter
	AtomDiscard
	AtomRoute
)

// Filter matches a router or interface name, either as an exact string or
// an ECMA-style regex (spec §6: "Filters are ECMA-style regexes or exact
// strings").
type Filter struct {
	Exact string
	Regex *regexp.Regexp
}

// Match reports whether name satisfies the filter.
func (f *Filter) Match(name string) bool {
	if f == nil {
		return true
	}
	if f.Regex != nil {
		return f.Regex.MatchString(name)
	}
	return f.Exact == name
}

// Regex is the AST of a compiled-or-not query regex: atoms combined by
// concatenation (juxtaposition), union (|), intersection (&), and the
// quantifiers *, +, ?.
type Regex struct {
	op    regexOp
	atom  Atom
	left  *Regex
	right *Regex
}

type regexOp uint8

const (
	opAtom regexOp = iota
	opConcat
	opUnion
	opIntersect
	opStar
	opPlus
	opOptional
)

func AtomRegex(a Atom) *Regex { return &Regex{op: opAtom, atom: a} }
func Concat(a, b *Regex) *Regex { return &Regex{op: opConcat, left: a, right: b} }
func Union(a, b *Regex) *Regex { return &Regex{op: opUnion, left: a, right: b} }
func Intersect(a, b *Regex) *Regex { return &Regex{op: opIntersect, left: a, right: b} }
func Star(a *Regex) *Regex { return &Regex{op: opStar, left: a} }
func Plus(a *Regex) *Regex { return &Regex{op: opPlus, left: a} }
func Optional(a *Regex) *Regex { return &Regex{op: opOptional, left: a} }

// Build lowers the regex AST into an nfa.NFA over label symbols. For
// interface-filter atoms, `resolve` maps the atom's from/to filters to the
// set of interface labels they match in the concrete network the query
// will run against (the caller supplies this, since the AST itself has
// no notion of a network).
func (r *Regex) Build(resolve func(Atom) label.Set) *nfa.NFA {
	switch r.op {
	case opAtom:
		set := resolve(r.atom)
		return nfa.FromLabels(set.Labels, set.Negated)
	case opConcat:
		return nfa.Concat(r.left.Build(resolve), r.right.Build(resolve))
	case opUnion:
		return nfa.Union(r.left.Build(resolve), r.right.Build(resolve))
	case opIntersect:
		return nfa.And(r.left.Build(resolve), r.right.Build(resolve))
	case opStar:
		return nfa.Star(r.left.Build(resolve))
	case opPlus:
		return nfa.Plus(r.left.Build(resolve))
	case opOptional:
		return nfa.Optional(r.left.Build(resolve))
	default:
		panic("query: unknown regex op")
	}
}

// DefaultResolve resolves a simple label-literal or dot atom without any
// interface-filter network context; interface filters resolve to the
// universal set here since actual interface resolution needs the network
// (a network-aware resolver has to come from the caller; no package in
// this module provides one).
func DefaultResolve(a Atom) label.Set {
	switch a.Kind {
	case AtomDot:
		return label.All()
	case AtomLabel:
		if a.Negated {
			return label.Set{Labels: []label.Label{a.Label}, Negated: true}
		}
		return label.Exactly(a.Label)
	default:
		return label.All()
	}
}
