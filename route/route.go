// Package route implements spec §2's route construction utility: Dijkstra
// shortest-detour failover synthesis (make_reroute) and explicit/automatic
// data-flow path installation (make_data_flow), both driven by a
// caller-supplied fresh-label generator. Grounded on
// `_examples/original_source/src/aalwines/synthesis/RouteConstruction.h`/`.cpp`.
package route

import (
	"aalwines.dev/label"
	"aalwines.dev/routing"
	"aalwines.dev/topology"
)

// NextLabel yields a fresh label on every call, never repeating one
// already in use. Callers typically close over a counter or a network's
// label universe.
type NextLabel func() label.Label

// UnitCost charges every interface a cost of 1, the original's default
// cost_fn.
func UnitCost(topology.InterfaceID) uint32 { return 1 }

func ifaceEdges(net *topology.Network) func(node int) []int {
	return func(node int) []int {
		ids := net.Router(topology.RouterID(node)).Interfaces()
		out := make([]int, len(ids))
		for i, id := range ids {
			out[i] = int(id)
		}
		return out
	}
}

func ifaceTarget(net *topology.Network) func(edge int) int {
	return func(edge int) int { return int(net.Interface(topology.InterfaceID(edge)).Target()) }
}

// MakeReroute implements spec §2 make_reroute: finds the cheapest detour
// from failed's source router to failed's target that avoids failed
// itself and the NULL router, then installs a PUSH/SWAP.../POP label
// stack along it — PUSH at every interface on failed's source router
// that is rerouted via the new path, SWAP at each intermediate router,
// POP at the router immediately before the destination — and merges the
// destination's routing table onto the detour's last hop so downstream
// behavior is unchanged. Reports false when no detour exists, or when the
// destination's table cannot be merged onto the new arrival point without
// introducing a non-determinism the original's simple_merge rejects.
func MakeReroute(net *topology.Network, failed topology.InterfaceID, next NextLabel, cost func(topology.InterfaceID) uint32) bool {
	fi := net.Interface(failed)
	target := fi.Target()

	rawCost := func(e int) uint32 { return cost(topology.InterfaceID(e)) }
	path, ok := dijkstra(int(fi.Source()), ifaceEdges(net), ifaceTarget(net),
		func(e int) bool { return net.Interface(topology.InterfaceID(e)).Target() == target },
		func(e int) bool {
			id := topology.InterfaceID(e)
			return id == failed || net.Router(net.Interface(id).Target()).IsNull()
		}, rawCost)
	if !ok || len(path) < 2 {
		// A single-hop detour has no intermediate router to carry a POP,
		// which the original's algorithm does not handle either (its
		// back-pointer is asserted non-nil); treat it like no detour.
		return false
	}

	ifaces := make([]topology.InterfaceID, len(path))
	for i, e := range path {
		ifaces[i] = topology.InterfaceID(e)
	}

	last := ifaces[len(ifaces)-1]
	lastMatch, ok := net.Interface(last).Match()
	if !ok {
		return false
	}
	failedMatch, ok := fi.Match()
	if !ok {
		return false
	}
	if !net.Interface(lastMatch).Table().SimpleMerge(net.Interface(failedMatch).Table()) {
		return false
	}

	popAt := ifaces[len(ifaces)-2]
	popMatch, ok := net.Interface(popAt).Match()
	if !ok {
		return false
	}
	lbl := next()
	net.Interface(popMatch).Table().AddRule(lbl, routing.Rule{
		Type: routing.TypeMPLS,
		Via:  routing.InterfaceRef(last),
		Ops:  []routing.Op{{Kind: routing.Pop}},
	})

	via := popAt
	for k := len(ifaces) - 3; k >= 0; k-- {
		swapMatch, ok := net.Interface(ifaces[k]).Match()
		if !ok {
			return false
		}
		old := lbl
		lbl = next()
		net.Interface(swapMatch).Table().AddRule(old, routing.Rule{
			Type: routing.TypeMPLS,
			Via:  routing.InterfaceRef(via),
			Ops:  []routing.Op{{Kind: routing.Swap, Arg: lbl}},
		})
		via = ifaces[k]
	}

	for _, i := range net.Router(fi.Source()).Interfaces() {
		if i == failed {
			continue
		}
		net.Interface(i).Table().AddFailoverEntries(routing.InterfaceRef(failed), routing.InterfaceRef(via), lbl)
	}
	return true
}

// MakeDataFlowPath implements spec §2 make_data_flow's explicit-path
// overload: installs a fresh MPLS label stack along path, entered at
// from. The first hop is keyed on an IP-classification entry (AnyIP, per
// spec §3's Label kinds) and PUSHes the stack's innermost label; every
// following hop SWAPs to a fresh label, requiring each successive
// interface to originate on the router the previous one's match lands on
// (a gap here means path is not actually contiguous). Reports false if
// path is empty or not contiguous.
func MakeDataFlowPath(net *topology.Network, from topology.InterfaceID, path []topology.InterfaceID, next NextLabel) bool {
	if len(path) == 0 {
		return false
	}

	cur := from
	preLabel := label.AnyIP()
	first := true
	for i, via := range path {
		if !first && net.Interface(cur).Source() != net.Interface(via).Source() {
			return false
		}
		if first {
			pushLabel := next()
			net.Interface(cur).Table().AddRule(preLabel, routing.Rule{
				Type: routing.TypeRoute,
				Via:  routing.InterfaceRef(via),
				Ops:  []routing.Op{{Kind: routing.Push, Arg: pushLabel}},
			})
			preLabel = pushLabel
			first = false
		} else {
			swapLabel := next()
			net.Interface(cur).Table().AddRule(preLabel, routing.Rule{
				Type: routing.TypeMPLS,
				Via:  routing.InterfaceRef(via),
				Ops:  []routing.Op{{Kind: routing.Swap, Arg: swapLabel}},
			})
			preLabel = swapLabel
		}
		if i == len(path)-1 {
			break
		}
		m, ok := net.Interface(via).Match()
		if !ok {
			return false
		}
		cur = m
	}
	return true
}

// MakeDataFlowRouterPath implements spec §2 make_data_flow's router-path
// overload: resolves the interfaces leaving from's router, connecting
// each consecutive pair of routers, and entering to's router, then
// delegates to MakeDataFlowPath.
func MakeDataFlowRouterPath(net *topology.Network, from, to topology.InterfaceID, routers []topology.RouterID, next NextLabel) bool {
	if len(routers) == 0 {
		return false
	}

	inIface, ok := findInterfaceOnRouter(net, routers[0], from)
	if !ok {
		return false
	}

	var path []topology.InterfaceID
	for i := 0; i < len(routers)-1; i++ {
		via, ok := findViaInterface(net, routers[i], routers[i+1])
		if !ok {
			return false
		}
		path = append(path, via)
	}

	outIface, ok := findInterfaceOnRouter(net, routers[len(routers)-1], to)
	if !ok {
		return false
	}
	path = append(path, outIface)

	return MakeDataFlowPath(net, inIface, path, next)
}

func findViaInterface(net *topology.Network, from, to topology.RouterID) (topology.InterfaceID, bool) {
	for _, id := range net.Router(from).Interfaces() {
		if net.Interface(id).Target() == to {
			return id, true
		}
	}
	return 0, false
}

func findInterfaceOnRouter(net *topology.Network, router topology.RouterID, iface topology.InterfaceID) (topology.InterfaceID, bool) {
	if net.Interface(iface).Source() != router {
		return 0, false
	}
	return iface, true
}

// MakeDataFlow implements spec §2 make_data_flow's automatic-pathfinding
// overload: if from and to already share a source router, installs a
// direct one-hop flow; otherwise finds the cheapest router path from
// from's source router to to's source router (avoiding the NULL router)
// and installs the flow along it.
func MakeDataFlow(net *topology.Network, from, to topology.InterfaceID, next NextLabel, cost func(topology.InterfaceID) uint32) bool {
	fromIface, toIface := net.Interface(from), net.Interface(to)
	if fromIface.Source() == toIface.Source() {
		return MakeDataFlowPath(net, from, []topology.InterfaceID{to}, next)
	}

	goal := toIface.Source()
	rawCost := func(e int) uint32 { return cost(topology.InterfaceID(e)) }
	path, ok := dijkstra(int(fromIface.Source()), ifaceEdges(net), ifaceTarget(net),
		func(e int) bool { return net.Interface(topology.InterfaceID(e)).Target() == goal },
		func(e int) bool { return net.Router(net.Interface(topology.InterfaceID(e)).Target()).IsNull() },
		rawCost)
	if !ok {
		return false
	}

	ifaces := make([]topology.InterfaceID, 0, len(path)+1)
	for _, e := range path {
		ifaces = append(ifaces, topology.InterfaceID(e))
	}
	ifaces = append(ifaces, to)

	return MakeDataFlowPath(net, from, ifaces, next)
}
