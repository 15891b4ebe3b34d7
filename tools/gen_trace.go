//go:build ignore
// +build ignore

// This tool generates a random operation trace for 'addrspace replay'.
// Run with: go run tools/gen_trace.go [ops] > trace.json
//
// The generated trace is a plausible interpreter workload: allocations of
// mixed sizes, address requests, exposures, integer casts at the assigned
// addresses, probes around them, and kill/free pairs. Useful for soak
// testing the replay path and for producing fixtures by hand-editing the
// output.
package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

type op struct {
	Op     string `json:"op"`
	Size   uint64 `json:"size,omitempty"`
	Align  uint64 `json:"align,omitempty"`
	Ref    int    `json:"ref,omitempty"`
	Region string `json:"region,omitempty"`
	Thread uint32 `json:"thread,omitempty"`
	Addr   uint64 `json:"addr,omitempty"`
	Access int64  `json:"access,omitempty"`
	Value  uint64 `json:"value,omitempty"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
}

func main() {
	count := 64
	if len(os.Args) > 1 {
		n, err := strconv.Atoi(os.Args[1])
		if err != nil || n < 1 {
			fmt.Fprintf(os.Stderr, "Usage: go run tools/gen_trace.go [ops]\n")
			os.Exit(1)
		}
		count = n
	}

	sizes := []uint64{1, 8, 16, 24, 48, 64, 256}
	aligns := []uint64{1, 2, 4, 8, 16}

	var ops []op
	live := []int{} // refs that are allocated and not yet killed
	refs := 0

	for len(ops) < count {
		switch roll := rand.IntN(10); {
		case roll < 4 || len(live) == 0:
			ops = append(ops, op{
				Op:    "alloc",
				Size:  sizes[rand.IntN(len(sizes))],
				Align: aligns[rand.IntN(len(aligns))],
			})
			refs++
			ops = append(ops, op{Op: "addr", Ref: refs, Region: "heap"})
			live = append(live, refs)
		case roll < 6:
			ops = append(ops, op{Op: "expose", Ref: live[rand.IntN(len(live))]})
		case roll < 8:
			// Probe a low address; most such probes miss, which is the
			// common case in real runs too.
			ops = append(ops, op{Op: "resolve", Addr: uint64(rand.IntN(1 << 20)), Access: 1})
		default:
			idx := rand.IntN(len(live))
			ref := live[idx]
			live = append(live[:idx], live[idx+1:]...)
			ops = append(ops, op{Op: "kill", Ref: ref})
			ops = append(ops, op{Op: "free", Ref: ref, Region: "heap"})
		}
	}

	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string][]op{"ops": ops}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
