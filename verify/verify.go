// Package verify implements the top-level verifier of spec §4.9: given a
// network and a query, run each approximation mode of the query's
// schedule, build the corresponding PDS, saturate it, and fold the
// per-mode results into a single YES/NO/MAYBE answer.
package verify

import (
	"fmt"

	"aalwines.dev/automaton"
	"aalwines.dev/cegar"
	"aalwines.dev/config"
	"aalwines.dev/label"
	"aalwines.dev/logger"
	"aalwines.dev/nfa"
	"aalwines.dev/pdafactory"
	"aalwines.dev/query"
	"aalwines.dev/routing"
	"aalwines.dev/topology"
	"aalwines.dev/trace"
)

// Answer is the three-valued verdict of Verify.
type Answer int

const (
	No Answer = iota
	Yes
	Maybe
)

func (a Answer) String() string {
	switch a {
	case Yes:
		return "YES"
	case No:
		return "NO"
	default:
		return "MAYBE"
	}
}

// Sink is the collaborator-provided contract a verification run reports
// into: non-determinism findings, reported before any mode runs, and one
// CEGAR summary per CEGAR-backed OVER stage, reported after cegar.Solve
// returns (its round argument is Options.MaxRefinements, not the number
// of rounds run). A nil Sink is valid everywhere in this package; every call site
// checks before reporting.
type Sink interface {
	Warn(routing.NondetWarning)
	Refining(round, numClasses int)
}

// Result is the outcome of a single Verify call.
type Result struct {
	Answer Answer
	// Mode is the schedule entry that settled the answer (the last one
	// run).
	Mode query.Mode
	// Trace is the witness run behind a Yes answer. It is empty when the
	// Yes comes from a zero-length word, which is decided without a PDS.
	Trace []trace.Hop
}

// Options configures a Verify call.
type Options struct {
	// UseCEGAR runs the OVER stage of the schedule through the CEGAR
	// engine (spec §4.8) instead of building the concrete PDS directly.
	// cegar.Build has no failure-budget dimension, so UNDER and EXACT
	// stages always use pdafactory.Build regardless of this flag.
	UseCEGAR         bool
	MaxRefinements   int
	RefinementOption cegar.RefinementOption
	Logf             logger.Logf
}

// DefaultOptions seeds Options from a config.Config's RefinementOption
// knob.
func DefaultOptions(cfg config.Config) Options {
	opt := cegar.FirstSeparating
	if cfg.RefinementOption == "best-refinement" {
		opt = cegar.BestRefinement
	}
	return Options{MaxRefinements: 8, RefinementOption: opt, Logf: logger.Discard}
}

// Verify decides whether net has a concrete execution entering at start
// with initial stack word word, under q, per spec §4.9. Each mode of
// q.Schedule() is run in turn:
//
//   - OVER: negative is a definitive NO; positive with q.FailureBound
//     == 0 is a definitive YES; positive with a nonzero bound is
//     inconclusive on its own (DUAL proceeds to UNDER to confirm it;
//     OVER run standalone reports MAYBE).
//   - UNDER: positive is a definitive YES; negative is MAYBE (an
//     under-approximation finding no witness does not rule one out).
//   - EXACT: decisive either way, per the EXACT = UNDER-with-bound-
//     forced-to-0 choice pdafactory.Build already makes.
//
// Spec §4.9 names post* as the OVER-mode procedure and pre* as an
// optimization for UNDER/EXACT; both saturations decide the identical
// reachability question over the seed automaton this package builds, so
// Verify runs PreStar uniformly across every mode — the direction named
// in the spec is a performance note, not a difference in semantics, and
// every other saturation consumer in this module (trace.Trace,
// cegar.Solve) already exercises PreStar exclusively.
//
// Non-determinism findings across every interface's routing table are
// reported to sink before any mode runs, once per Verify call, whether
// or not a definitive answer is reached.
func Verify(net *topology.Network, q *query.Query, start topology.InterfaceID, word []label.Label, sink Sink, opts Options) (Result, error) {
	if opts.Logf == nil {
		opts.Logf = logger.Discard
	}
	if opts.MaxRefinements == 0 {
		opts.MaxRefinements = 8
	}

	reportNondet(net, sink)

	var lastMaybe Result
	for _, mode := range q.Schedule() {
		positive, hops := runMode(net, q, mode, start, word, sink, opts)
		opts.Logf("verify: mode %s positive=%v", mode, positive)

		switch mode {
		case query.Over:
			if !positive {
				return Result{Answer: No, Mode: mode}, nil
			}
			if q.FailureBound == 0 {
				return Result{Answer: Yes, Mode: mode, Trace: hops}, nil
			}
			lastMaybe = Result{Answer: Maybe, Mode: mode}
		case query.Under:
			if positive {
				return Result{Answer: Yes, Mode: mode, Trace: hops}, nil
			}
			return Result{Answer: Maybe, Mode: mode}, nil
		case query.Exact:
			if positive {
				return Result{Answer: Yes, Mode: mode, Trace: hops}, nil
			}
			return Result{Answer: No, Mode: mode}, nil
		}
	}
	return lastMaybe, nil
}

// runMode builds and saturates the PDS for a single schedule entry and
// reports whether start accepts word under q's full (Pre, Path, Post)
// triple: Pre gates the initial stack, Path seeds which path-NFA states
// start's initial configurations are built from (and gates acceptance
// inside pdafactory.Build itself), and Post gates the witness run's
// final stack. A nil Pre/Path/Post defaults to nfa.Universal(), matching
// an unconstrained regex.
func runMode(net *topology.Network, q *query.Query, mode query.Mode, start topology.InterfaceID, word []label.Label, sink Sink, opts Options) (bool, []trace.Hop) {
	if opts.UseCEGAR && mode == query.Over {
		verdict, replay, abs := cegar.Solve(net, start, word, opts.MaxRefinements, opts.RefinementOption)
		opts.Logf("verify: cegar abstraction %s settled with %d interface classes", abs.ID, abs.Ifaces.NumClasses())
		if sink != nil {
			sink.Refining(opts.MaxRefinements, abs.Ifaces.NumClasses())
		}
		return verdict == cegar.Sat, hopsFromReplay(replay)
	}

	pre := q.Pre
	if pre == nil {
		pre = nfa.Universal()
	}
	if !pre.Accepts(word) {
		return false, nil
	}

	if len(word) == 0 {
		path := q.Path
		if path == nil {
			path = nfa.Universal()
		}
		for _, s := range path.Initial() {
			if EmptyStackAccepted(q, s) {
				return true, nil
			}
		}
		return false, nil
	}

	post := q.Post
	if post == nil {
		post = nfa.Universal()
	}

	res := pdafactory.Build(net, q, mode)
	target := automaton.New(res.PDS.NumStates())
	target.MarkAccepting(automaton.State(res.Final))
	automaton.PreStar(res.PDS, target)

	for _, s := range res.InitialStates(start) {
		hops, ok := trace.Trace(target, res, net, automaton.State(s), word)
		if !ok {
			continue
		}
		if post.Accepts(finalStack(hops)) {
			return true, hops
		}
	}
	return false, nil
}

// finalStack returns the stack snapshot at the end of a reconstructed
// trace, the witness run's final header checked against q.Post.
func finalStack(hops []trace.Hop) []label.Label {
	for i := len(hops) - 1; i >= 0; i-- {
		if hops[i].IsSnapshot {
			return hops[i].Stack
		}
	}
	return nil
}

// hopsFromReplay summarizes a CEGAR replay (spec §4.8) as a rule-firing
// trace; unlike trace.Reconstruct it carries no router/stack snapshots,
// since a replay's concrete witnesses are themselves the evidence a
// caller needs.
func hopsFromReplay(replay []cegar.Replayed) []trace.Hop {
	if replay == nil {
		return nil
	}
	hops := make([]trace.Hop, len(replay))
	for i, r := range replay {
		hops[i] = trace.Hop{
			Pre:    r.Rule.PreLabel,
			Rule:   r.Rule,
			HasVia: r.Rule.HasVia,
			Via:    fmt.Sprintf("if#%d", r.Witness.Iface),
		}
	}
	return hops
}

func reportNondet(net *topology.Network, sink Sink) {
	if sink == nil {
		return
	}
	for _, id := range net.Interfaces() {
		for _, w := range net.Interface(id).Table().CheckNondet() {
			sink.Warn(w)
		}
	}
}

// EmptyStackAccepted implements spec §4.7's boundary case: an empty
// initial stack is accepted at path-NFA state pathState iff the
// pre-stack NFA accepts epsilon from some initial state and pathState
// itself accepts. runMode calls this directly for zero-length words; it
// is also exposed for a collaborator enumerating its own initial
// configurations against q.Pre/q.Path per spec §4.4. A nil q.Pre/q.Path
// defaults to nfa.Universal().
func EmptyStackAccepted(q *query.Query, pathState nfa.StateID) bool {
	pre := q.Pre
	if pre == nil {
		pre = nfa.Universal()
	}
	path := q.Path
	if path == nil {
		path = nfa.Universal()
	}
	preEmpty := false
	for _, s := range pre.Initial() {
		if pre.IsAccepting(s) {
			preEmpty = true
			break
		}
	}
	return preEmpty && path.IsAccepting(pathState)
}
