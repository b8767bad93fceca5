// Package label implements the MPLS/IP/interface label algebra that
// underlies every header, routing-table key, and PDS stack symbol in
// aalwines.dev: a small tagged-union value type with a total order, a
// mask-aware overlap test, and the sentinel values used to represent
// "no label" and "any label of this kind".
package label

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Kind tags the variant a Label belongs to. The enum order is the
// primary sort key of Compare, so it must never be reordered once labels
// have been persisted anywhere.
type Kind uint8

const (
	MPLS Kind = iota
	StickyMPLS
	IPv4
	IPv6
	AnyIP
	Interface
)

func (k Kind) String() string {
	switch k {
	case MPLS:
		return "mpls"
	case StickyMPLS:
		return "sticky-mpls"
	case IPv4:
		return "ip4"
	case IPv6:
		return "ip6"
	case AnyIP:
		return "any-ip"
	case Interface:
		return "interface"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// IsIP reports whether masks are meaningful for this kind.
func (k Kind) IsIP() bool {
	return k == IPv4 || k == IPv6 || k == AnyIP
}

// anyMask is the reserved mask value marking a kind-scoped wildcard
// sentinel (any_mpls, any_ip4, ...). It lies outside the valid 0..64
// mask range so it can never be confused with a real mask.
const anyMask uint8 = 255

// maxValue is the sentinel value used by unused_K labels. It lies above
// any value a real MPLS (20 bits), IPv4 (32 bits) or truncated-IPv6
// (64 bits) label can take on, so it never collides with real traffic.
const maxValue uint64 = ^uint64(0)

// Label is a single stack/header symbol: an MPLS or sticky-MPLS index, an
// IPv4/IPv6 prefix (truncated to the leading 64 bits for IPv6, since
// mask-aware comparison only ever needs a prefix, never the full
// address), an opaque any-IP marker, or an interface identifier.
//
// Value and Mask are only meaningful together for IP kinds; Mask is
// always 0 for MPLS/StickyMPLS/Interface labels.
type Label struct {
	Kind  Kind
	Value uint64
	Mask  uint8
}

// MPLSLabel returns a concrete MPLS label.
func MPLSLabel(v uint64) Label { return Label{Kind: MPLS, Value: v} }

// StickyLabel returns a concrete sticky-MPLS label.
func StickyLabel(v uint64) Label { return Label{Kind: StickyMPLS, Value: v} }

// InterfaceLabel returns a label naming an interface by its global-id.
func InterfaceLabel(globalID uint64) Label { return Label{Kind: Interface, Value: globalID} }

// IP4 returns an IPv4 label for value/mask (mask in 0..32).
func IP4(value uint32, mask uint8) Label {
	return Label{Kind: IPv4, Value: uint64(value), Mask: mask}
}

// IP6 returns an IPv6 label for the leading 64 bits of the address and a
// mask in 0..64 (prefixes longer than /64 are clamped to 64, since that
// is the finest granularity this value type can represent).
func IP6(high64 uint64, mask uint8) Label {
	if mask > 64 {
		mask = 64
	}
	return Label{Kind: IPv6, Value: high64, Mask: mask}
}

// Unused returns the sentinel "no label present" value for kind k.
func Unused(k Kind) Label {
	return Label{Kind: k, Value: maxValue, Mask: 0}
}

// Any returns the kind-scoped wildcard sentinel ("any_mpls", "any_ip4", ...).
func Any(k Kind) Label {
	return Label{Kind: k, Value: 0, Mask: anyMask}
}

// AnyIP returns the cross-version "any_ip" sentinel: it overlaps both
// IPv4 and IPv6 labels regardless of value.
func AnyIP() Label {
	return Label{Kind: AnyIP, Value: 0, Mask: anyMask}
}

// Sentinels returns the nine fixed sentinel values named by spec §4.1,
// in the fixed order the label universe always includes them.
func Sentinels() []Label {
	return []Label{
		Unused(IPv4), Unused(IPv6), Unused(MPLS), Unused(StickyMPLS),
		AnyIP(), Any(IPv4), Any(IPv6), Any(MPLS), Any(StickyMPLS),
	}
}

// IsUnused reports whether l is the "no label" sentinel of its kind.
func (l Label) IsUnused() bool { return l.Value == maxValue && l.Mask == 0 }

// IsAnyOfKind reports whether l is the kind-scoped wildcard sentinel.
func (l Label) IsAnyOfKind() bool { return l.Mask == anyMask }

// Compare implements a strict total order, purely lexicographic over
// (Kind, Mask, Value), per spec §3.
func Compare(a, b Label) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	if a.Mask != b.Mask {
		if a.Mask < b.Mask {
			return -1
		}
		return 1
	}
	if a.Value != b.Value {
		if a.Value < b.Value {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether a sorts before b under Compare.
func Less(a, b Label) bool { return Compare(a, b) < 0 }

// Equal reports value equality (not overlap).
func Equal(a, b Label) bool { return a == b }

// maskPrefix returns the top `mask` bits of v (out of width), zero-extended.
func maskPrefix(v uint64, mask, width uint8) uint64 {
	if mask == 0 {
		return 0
	}
	if mask >= width {
		return v
	}
	shift := width - mask
	return (v >> shift) << shift
}

// valueWidth is the number of value bits a mask counts from: 32 for IPv4
// (stored in the low 32 bits of Value), 64 otherwise.
func valueWidth(k Kind) uint8 {
	if k == IPv4 {
		return 32
	}
	return 64
}

// Overlaps reports whether a and b share a common concretization: for IP
// kinds, whether their mask-aligned value prefixes coincide (mask-aware);
// otherwise, whether they are equal. any_ip overlaps every IPv4/IPv6
// label and every other any_ip/any_K-of-IP-kind label; a kind-scoped
// any_K sentinel overlaps every label of kind K.
func Overlaps(a, b Label) bool {
	if a.Kind == AnyIP || b.Kind == AnyIP {
		if a.Kind == AnyIP && b.Kind == AnyIP {
			return true
		}
		ip, other := a, b
		if other.Kind == AnyIP {
			ip, other = b, a
		}
		_ = ip
		return other.Kind == IPv4 || other.Kind == IPv6 || other.Kind == AnyIP
	}
	if a.Kind != b.Kind {
		return false
	}
	if a.IsAnyOfKind() || b.IsAnyOfKind() {
		return true
	}
	if !a.Kind.IsIP() {
		return a.Value == b.Value
	}
	m := a.Mask
	if b.Mask < m {
		m = b.Mask
	}
	w := valueWidth(a.Kind)
	return maskPrefix(a.Value, m, w) == maskPrefix(b.Value, m, w)
}

// Fold attempts to merge two concrete, non-wildcard IP labels of the same
// kind and mask into the shortest common-prefix label that covers both,
// returning ok=false when they are not siblings under a single
// shorter-mask parent (e.g. differing kinds, differing starting masks, or
// not differing only in their single least-significant covered bit).
func Fold(a, b Label) (Label, bool) {
	if a.Kind != b.Kind || !a.Kind.IsIP() || a.Mask != b.Mask || a.Mask == 0 {
		return Label{}, false
	}
	if a.IsAnyOfKind() || b.IsAnyOfKind() {
		return Label{}, false
	}
	parentMask := a.Mask - 1
	w := valueWidth(a.Kind)
	if maskPrefix(a.Value, parentMask, w) != maskPrefix(b.Value, parentMask, w) {
		return Label{}, false
	}
	if maskPrefix(a.Value, a.Mask, w) == maskPrefix(b.Value, a.Mask, w) {
		return Label{}, false // not actually siblings, same value
	}
	return Label{Kind: a.Kind, Value: maskPrefix(a.Value, parentMask, w), Mask: parentMask}, true
}

// Unfold expands l against universe, returning every label in universe
// that overlaps l and is itself concrete (neither an any_K nor any_ip
// sentinel). Per spec §3, any_* labels must be unfolded this way before
// reaching the PDS factory. The result is sorted and de-duplicated.
func Unfold(l Label, universe []Label) []Label {
	if !l.IsAnyOfKind() && l.Kind != AnyIP {
		return []Label{l}
	}
	out := make([]Label, 0, len(universe))
	for _, u := range universe {
		if u.IsAnyOfKind() || u.Kind == AnyIP {
			continue
		}
		if Overlaps(l, u) {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(x, y Label) bool { return Less(x, y) })
	return slices.CompactFunc(out, Equal)
}

func (l Label) String() string {
	switch l.Kind {
	case MPLS:
		if l.IsUnused() {
			return "unused_mpls"
		}
		if l.IsAnyOfKind() {
			return "any_mpls"
		}
		return fmt.Sprintf("l%d", l.Value)
	case StickyMPLS:
		if l.IsUnused() {
			return "unused_sticky_mpls"
		}
		if l.IsAnyOfKind() {
			return "any_sticky_mpls"
		}
		return fmt.Sprintf("s%d", l.Value)
	case IPv4:
		if l.IsUnused() {
			return "unused_ip4"
		}
		if l.IsAnyOfKind() {
			return "any_ip4"
		}
		v := uint32(l.Value)
		return fmt.Sprintf("ip4:%d.%d.%d.%d/%d", v>>24, (v>>16)&0xff, (v>>8)&0xff, v&0xff, l.Mask)
	case IPv6:
		if l.IsUnused() {
			return "unused_ip6"
		}
		if l.IsAnyOfKind() {
			return "any_ip6"
		}
		return fmt.Sprintf("ip6:%016x/%d", l.Value, l.Mask)
	case AnyIP:
		return "any_ip"
	case Interface:
		return fmt.Sprintf("if%d", l.Value)
	default:
		return fmt.Sprintf("label(%v,%d,%d)", l.Kind, l.Value, l.Mask)
	}
}
