// Package topology implements the network data model of spec §3: Router,
// Interface and Network, with the arena+index back-reference pattern of
// spec §9 (interfaces hold a router index and a match global-id rather
// than raw pointers, and all lookups go through the Network's interface
// array).
package topology

import (
	"fmt"

	"aalwines.dev/label"
	"aalwines.dev/routing"
	"aalwines.dev/vizerror"
)

// RouterID indexes into Network.routers.
type RouterID int

// InterfaceID is an interface's global-id, indexing into
// Network.interfaces.
type InterfaceID int

// NullRouterID is reserved for the distinguished NULL router, created
// once per Network at construction time.
const NullRouterID RouterID = 0

// Coordinate is an optional geographic location.
type Coordinate struct {
	Latitude, Longitude float64
	Set                 bool
}

// Router owns a set of named interfaces. Aliases are the router's names;
// the primary name is the last one added.
type Router struct {
	id        RouterID
	aliases   []string
	ifaceByNm map[string]InterfaceID
	ifaceIDs  []InterfaceID
	coord     Coordinate
	isNull    bool
}

// ID returns the router's index.
func (r *Router) ID() RouterID { return r.id }

// Name returns the router's primary (most recently added) alias.
func (r *Router) Name() string {
	if len(r.aliases) == 0 {
		return ""
	}
	return r.aliases[len(r.aliases)-1]
}

// Aliases returns every name this router is known by.
func (r *Router) Aliases() []string { return append([]string(nil), r.aliases...) }

// IsNull reports whether this is the network's distinguished NULL router.
func (r *Router) IsNull() bool { return r.isNull }

// Interfaces returns the router's owned interface ids, in declaration order.
func (r *Router) Interfaces() []InterfaceID { return append([]InterfaceID(nil), r.ifaceIDs...) }

// Interface is a router's attachment point: a local name, a routing
// table, and (if paired) the interface on the adjacent router reached by
// sending traffic out.
type Interface struct {
	global InterfaceID
	name   string
	source RouterID
	target RouterID // NullRouterID if unpaired/external; equals source for a virtual (loopback) interface
	match  InterfaceID
	hasMatch bool
	table  routing.Table
}

// GlobalID returns this interface's network-wide id.
func (i *Interface) GlobalID() InterfaceID { return i.global }

// Name returns the interface's local name.
func (i *Interface) Name() string { return i.name }

// Source returns the owning router.
func (i *Interface) Source() RouterID { return i.source }

// Target returns the router reached by sending out this interface.
func (i *Interface) Target() RouterID { return i.target }

// IsVirtual reports whether this is a loopback interface (source == target,
// and it never connects outward), per spec §3 invariant (c).
func (i *Interface) IsVirtual() bool {
	return i.source == i.target && !i.hasMatch && i.target != NullRouterID
}

// Table returns the interface's routing table.
func (i *Interface) Table() *routing.Table { return &i.table }

// Match returns the paired interface's global-id and whether a pairing
// exists.
func (i *Interface) Match() (InterfaceID, bool) { return i.match, i.hasMatch }

// Network owns every Router and Interface, keeping the invariants of
// spec §3: every interface appears in exactly one router and at the
// global-interfaces index given by its global-id. This package has no
// composition (inject/concat) or renumbering operation.
type Network struct {
	Name string

	routers    []Router
	interfaces []*Interface
	aliasIdx   map[string]RouterID
}

// New returns an empty network, pre-populated with the distinguished NULL
// router at RouterID 0.
func New(name string) *Network {
	n := &Network{
		Name:     name,
		aliasIdx: map[string]RouterID{},
	}
	null := Router{id: NullRouterID, isNull: true, ifaceByNm: map[string]InterfaceID{}}
	n.routers = append(n.routers, null)
	return n
}

// AddRouter creates a router with the given primary name (and any
// additional aliases) and returns its id. Returns a vizerror if the name
// collides with an existing alias, per spec §3 invariant (aliases are
// globally unique).
func (n *Network) AddRouter(name string, extraAliases ...string) (RouterID, error) {
	if _, exists := n.aliasIdx[name]; exists {
		return 0, vizerror.Errorf("inconsistent-topology: duplicate router name %q", name)
	}
	for _, a := range extraAliases {
		if _, exists := n.aliasIdx[a]; exists {
			return 0, vizerror.Errorf("inconsistent-topology: duplicate router alias %q", a)
		}
	}
	id := RouterID(len(n.routers))
	r := Router{id: id, ifaceByNm: map[string]InterfaceID{}}
	r.aliases = append(r.aliases, extraAliases...)
	r.aliases = append(r.aliases, name)
	n.routers = append(n.routers, r)
	n.aliasIdx[name] = id
	for _, a := range extraAliases {
		n.aliasIdx[a] = id
	}
	return id, nil
}

// Router returns the router with the given id.
func (n *Network) Router(id RouterID) *Router { return &n.routers[id] }

// Lookup resolves a router by any of its aliases.
func (n *Network) Lookup(name string) (RouterID, bool) {
	id, ok := n.aliasIdx[name]
	return id, ok
}

// Routers returns every router id, NULL router included, in id order.
func (n *Network) Routers() []RouterID {
	ids := make([]RouterID, len(n.routers))
	for i := range n.routers {
		ids[i] = RouterID(i)
	}
	return ids
}

// GetOrCreateInterface returns the named interface on router r, creating
// it lazily (spec §3 lifecycle: "created lazily when named by the router
// or its neighbor").
func (n *Network) GetOrCreateInterface(r RouterID, name string) *Interface {
	router := &n.routers[r]
	if id, ok := router.ifaceByNm[name]; ok {
		return n.interfaces[id]
	}
	id := InterfaceID(len(n.interfaces))
	iface := &Interface{global: id, name: name, source: r, target: NullRouterID}
	n.interfaces = append(n.interfaces, iface)
	router.ifaceByNm[name] = id
	router.ifaceIDs = append(router.ifaceIDs, id)
	return iface
}

// Interface returns the interface with the given global id.
func (n *Network) Interface(id InterfaceID) *Interface { return n.interfaces[id] }

// Interfaces returns every interface's global id.
func (n *Network) Interfaces() []InterfaceID {
	ids := make([]InterfaceID, len(n.interfaces))
	for i := range n.interfaces {
		ids[i] = InterfaceID(i)
	}
	return ids
}

// Link pairs a.Match()==b and b.Match()==a, and sets each interface's
// target router to the other's source (spec §3 invariants (a)/(b)). It is
// an error to re-pair an interface that already has a different match.
func (n *Network) Link(a, b InterfaceID) error {
	ia, ib := n.interfaces[a], n.interfaces[b]
	if ia.hasMatch && ia.match != b {
		return vizerror.Errorf("inconsistent-topology: interface %s already paired", ia.name)
	}
	if ib.hasMatch && ib.match != a {
		return vizerror.Errorf("inconsistent-topology: interface %s already paired", ib.name)
	}
	ia.match, ia.hasMatch = b, true
	ib.match, ib.hasMatch = a, true
	ia.target = ib.source
	ib.target = ia.source
	return nil
}

// MakeVirtual marks iface as a loopback interface: source==target, no
// outward connection, per spec §3 invariant (c).
func (n *Network) MakeVirtual(id InterfaceID) {
	iface := n.interfaces[id]
	iface.target = iface.source
}

// MakeExternal marks iface as targeting the NULL router, an
// external/sink endpoint per spec §3 invariant (d).
func (n *Network) MakeExternal(id InterfaceID) {
	n.interfaces[id].target = NullRouterID
}

// Validate checks the structural invariants of spec §3/§8: pairing
// symmetry, source/target consistency, and NULL-router uniqueness.
func (n *Network) Validate() error {
	for _, iface := range n.interfaces {
		if iface.hasMatch {
			m := n.interfaces[iface.match]
			if !m.hasMatch || m.match != iface.global {
				return vizerror.Errorf("inconsistent-topology: asymmetric pairing on interface %s", iface.name)
			}
			if iface.source != m.target || m.source != iface.target {
				return vizerror.Errorf("inconsistent-topology: interface %s target mismatch", iface.name)
			}
		}
	}
	nullCount := 0
	for i := range n.routers {
		if n.routers[i].isNull {
			nullCount++
		}
	}
	if nullCount != 1 {
		return fmt.Errorf("internal-invariant: expected exactly one NULL router, found %d", nullCount)
	}
	return nil
}

// AllLabelOccurrences collects every label appearing anywhere in the
// network's routing tables (entry top-labels and rule operation labels),
// for use by label.BuildUniverse (spec §4.1).
func (n *Network) AllLabelOccurrences() []label.Label {
	var out []label.Label
	for _, iface := range n.interfaces {
		out = append(out, iface.table.LabelOccurrences()...)
	}
	return out
}
