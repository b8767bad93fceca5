// Package config carries verifier-construction-time configuration. Nothing
// in aalwines.dev reads an environment variable lazily deep in a call
// stack; every external knob is threaded through a Config value instead.
package config

import "os"

// Config holds the knobs a Verifier (or CEGAR engine, or PDS dumper) is
// constructed with.
type Config struct {
	// MopedPath is the path to an external PDS decider binary (spec §6).
	// No package in this module reads it; there is no external-solver
	// dumper here.
	MopedPath string

	// ReductionAggressiveness names a pds.Reduce level (0-3). No package
	// in this module reads it: verify saturates without calling
	// pds.Reduce.
	ReductionAggressiveness int

	// RefinementOption selects the CEGAR refinement strategy.
	RefinementOption string
}

// FromEnvironment reads the MOPED_PATH environment variable once and
// returns a Config seeded from it. Call this exactly once, at process
// start or verifier construction; never call os.Getenv from inside the
// solving loop.
func FromEnvironment() Config {
	return Config{
		MopedPath:               os.Getenv("MOPED_PATH"),
		ReductionAggressiveness: 1,
		RefinementOption:        "first-separating",
	}
}
