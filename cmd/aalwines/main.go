// The aalwines binary is a thin wiring demo, not a full CLI: it builds one
// small in-process network, a trivial reachability query, and runs it
// through verify.Verify, printing the resulting verdict and trace. A real
// front end (query-language parser, topology file loader, spec §5/§6 report
// formatting) is a collaborator's job.
package main

import (
	"flag"
	"fmt"
	"log"

	"aalwines.dev/config"
	"aalwines.dev/label"
	"aalwines.dev/logger"
	"aalwines.dev/query"
	"aalwines.dev/routing"
	"aalwines.dev/topology"
	"aalwines.dev/verify"
)

var (
	useCEGAR = flag.Bool("cegar", false, "run the OVER stage through the CEGAR engine instead of building the concrete PDS directly")
	mode     = flag.String("mode", "over", "approximation mode: over, under, dual, or exact")
)

func parseMode(s string) query.Mode {
	switch s {
	case "under":
		return query.Under
	case "dual":
		return query.Dual
	case "exact":
		return query.Exact
	default:
		return query.Over
	}
}

// demoNetwork builds the three-router PUSH/SWAP/POP chain spec scenario 1
// describes: an external ingress pushes a label towards an intermediate
// router, which swaps it towards an egress router that pops and discards.
func demoNetwork() (n *topology.Network, ingress topology.InterfaceID) {
	n = topology.New("demo")
	r0, err := n.AddRouter("R0")
	if err != nil {
		log.Fatalf("add R0: %v", err)
	}
	r1, err := n.AddRouter("R1")
	if err != nil {
		log.Fatalf("add R1: %v", err)
	}
	r2, err := n.AddRouter("R2")
	if err != nil {
		log.Fatalf("add R2: %v", err)
	}

	extIn := n.GetOrCreateInterface(r0, "ext-in")
	n.MakeExternal(extIn.GlobalID())

	o01 := n.GetOrCreateInterface(r0, "to-R1")
	i10 := n.GetOrCreateInterface(r1, "to-R0")
	if err := n.Link(o01.GlobalID(), i10.GlobalID()); err != nil {
		log.Fatalf("link R0-R1: %v", err)
	}

	o12 := n.GetOrCreateInterface(r1, "to-R2")
	i21 := n.GetOrCreateInterface(r2, "to-R1")
	if err := n.Link(o12.GlobalID(), i21.GlobalID()); err != nil {
		log.Fatalf("link R1-R2: %v", err)
	}

	l := label.MPLSLabel(10)
	extIn.Table().AddRule(label.AnyIP(), routing.Rule{
		Type: routing.TypeRoute,
		Via:  routing.InterfaceRef(o01.GlobalID()),
		Ops:  []routing.Op{{Kind: routing.Push, Arg: l}},
	})
	i10.Table().AddRule(l, routing.Rule{
		Type: routing.TypeMPLS,
		Via:  routing.InterfaceRef(o12.GlobalID()),
		Ops:  []routing.Op{{Kind: routing.Swap, Arg: l}},
	})
	i21.Table().AddRule(l, routing.Rule{
		Type: routing.TypeDiscard,
		Ops:  []routing.Op{{Kind: routing.Pop}},
	})

	return n, extIn.GlobalID()
}

type stderrSink struct{}

func (stderrSink) Warn(w routing.NondetWarning) { log.Printf("nondeterminism: %+v", w) }
func (stderrSink) Refining(round, numClasses int) {
	log.Printf("cegar: round %d, %d interface classes", round, numClasses)
}

func main() {
	flag.Parse()
	cfg := config.FromEnvironment()

	n, ingress := demoNetwork()
	q := query.New(nil, nil, nil, 0, parseMode(*mode))

	opts := verify.DefaultOptions(cfg)
	opts.UseCEGAR = *useCEGAR
	opts.Logf = logger.WithPrefix(logger.Std, "aalwines: ")

	res, err := verify.Verify(n, q, ingress, []label.Label{label.AnyIP()}, stderrSink{}, opts)
	if err != nil {
		log.Fatalf("verify: %v", err)
	}

	fmt.Printf("verdict: %s (settled on %s)\n", res.Answer, res.Mode)
	for _, hop := range res.Trace {
		fmt.Printf("  %s\n", hop.Pre)
	}
}
