// Package main implements the addrspace CLI tool.
//
// The addrspace tool drives the simulated address-space manager from the
// command line, mainly for debugging interpreter traces:
//
//  1. Replaying a recorded operation trace against a fresh manager
//  2. Inspecting how a trace lays allocations out in the address space
//  3. Diffing layouts across seeds or provenance modes
//
// Usage:
//
//	addrspace replay trace.json        # Replay a recorded trace
//	addrspace layout                   # Show the default geometry
//
// Traces are JSON files produced by an embedding interpreter (or written
// by hand); the replay reproduces the exact address assignments the
// recorded run saw, given the same seed.
//
// This is the CLI entry point for the standalone tool.
package main

import (
	"fmt"
	"os"

	"github.com/kolkov/addrspace/addr"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "replay":
		replayCommand(os.Args[2:])
	case "layout":
		layoutCommand(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("addrspace version %s\n", addr.Version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`addrspace - Simulated Address-Space Manager Tool

USAGE:
    addrspace <command> [arguments]

COMMANDS:
    replay     Replay a recorded operation trace
    layout     Show the address-space geometry
    version    Show version information
    help       Show this help message

EXAMPLES:
    # Replay a trace and print every assigned address
    addrspace replay trace.json

    # Replay with a different seed and dump the final state
    addrspace replay -seed 7 -snapshot trace.json

    # Replay under strict provenance to find wildcard dependencies
    addrspace replay -provenance strict trace.json

    # Verify the structural invariants after every operation
    addrspace replay -check trace.json

    # Show the default geometry as JSON
    addrspace layout -json

ABOUT:
    addrspace manages addresses for interpreters that identify
    allocations by opaque handles: lazy address assignment, reverse
    resolution with exposure gating, probabilistic address reuse, and
    use-after-free attribution.

    The replay command exists because address bugs are sequence bugs.
    An interpreter records the operations it performed; replaying them
    here reproduces the exact same addresses (same seed, same layout),
    which turns "pointer 0x4a30 resolved to the wrong allocation in a
    two-hour run" into a one-second repro.

TRACE FORMAT:
    {"ops": [
      {"op": "alloc",    "size": 16, "align": 8},
      {"op": "addr",     "ref": 1, "region": "heap", "thread": 0},
      {"op": "expose",   "ref": 1},
      {"op": "cast",     "value": 4104, "file": "prog", "line": 3},
      {"op": "resolve",  "addr": 4104, "access": 1, "thread": 0},
      {"op": "kill",     "ref": 1},
      {"op": "free",     "ref": 1, "region": "heap", "thread": 0}
    ]}

    Allocations are numbered by creation order starting at 1; later
    operations name them by that number in "ref".

`)
}
