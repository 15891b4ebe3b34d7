// replay.go implements the 'addrspace replay' command.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/kolkov/addrspace/addr"
	"github.com/kolkov/addrspace/internal/addr/simstore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// replayCommand implements the 'addrspace replay' command.
//
// This command decodes a recorded operation trace and executes it against
// a fresh address space backed by an in-memory allocation store. Given the
// same seed and geometry as the recorded run, every assigned address comes
// out identical, so a failure buried in a long interpreter run becomes a
// standalone repro.
//
// Flow:
//  1. Parse arguments (flags + trace file)
//  2. Decode the JSON trace
//  3. Execute operations one by one, echoing each result
//  4. Print the activity summary (and the snapshot, with -snapshot)
//
// Example:
//
//	addrspace replay trace.json
//	addrspace replay -seed 7 -check trace.json
//	addrspace replay -provenance strict -snapshot trace.json
func replayCommand(args []string) {
	config, err := parseReplayArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	trace, err := loadTrace(config.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := runTrace(trace, config, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Replay failed: %v\n", err)
		os.Exit(1)
	}
}

// replayConfig carries the parsed replay flags.
type replayConfig struct {
	path       string
	seed       uint64
	provenance addr.ProvenanceMode
	snapshot   bool
	check      bool
}

// parseReplayArgs separates flags from the trace file path.
//
// Supported form:
//
//	addrspace replay [-seed N] [-provenance MODE] [-snapshot] [-check] <trace>
//
// A trace path of "-" reads the trace from standard input.
func parseReplayArgs(args []string) (*replayConfig, error) {
	config := &replayConfig{provenance: addr.ProvenanceDefault}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-seed":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("-seed requires a value")
			}
			i++
			seed, err := strconv.ParseUint(args[i], 0, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid seed %q: %w", args[i], err)
			}
			config.seed = seed
		case "-provenance":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("-provenance requires a value")
			}
			i++
			mode, err := parseProvenance(args[i])
			if err != nil {
				return nil, err
			}
			config.provenance = mode
		case "-snapshot":
			config.snapshot = true
		case "-check":
			config.check = true
		default:
			if strings.HasPrefix(arg, "-") && arg != "-" {
				return nil, fmt.Errorf("unknown flag: %s", arg)
			}
			if config.path != "" {
				return nil, fmt.Errorf("multiple trace files specified (%s, %s)", config.path, arg)
			}
			config.path = arg
		}
	}

	if config.path == "" {
		return nil, fmt.Errorf("no trace file specified")
	}

	return config, nil
}

// parseProvenance maps a flag value onto a provenance mode.
func parseProvenance(s string) (addr.ProvenanceMode, error) {
	switch s {
	case "default":
		return addr.ProvenanceDefault, nil
	case "permissive":
		return addr.ProvenancePermissive, nil
	case "strict":
		return addr.ProvenanceStrict, nil
	default:
		return 0, fmt.Errorf("unknown provenance mode %q (want default, permissive, or strict)", s)
	}
}

// traceFile is the decoded form of a recorded trace.
type traceFile struct {
	Ops []traceOp `json:"ops"`
}

// traceOp is one recorded operation. Op selects the operation; the other
// fields are read or ignored depending on it. Allocations are numbered by
// creation order starting at 1 and named by Ref afterwards.
type traceOp struct {
	Op     string `json:"op"`
	Size   uint64 `json:"size"`
	Align  uint64 `json:"align"`
	Kind   string `json:"kind"`
	Ref    int    `json:"ref"`
	Region string `json:"region"`
	Thread uint32 `json:"thread"`
	Addr   uint64 `json:"addr"`
	Access int64  `json:"access"`
	Value  uint64 `json:"value"`
	File   string `json:"file"`
	Line   int    `json:"line"`
}

// loadTrace reads and decodes a trace from path, or from standard input
// when path is "-".
func loadTrace(path string) (*traceFile, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return decodeTrace(r)
}

// decodeTrace parses a JSON trace.
func decodeTrace(r io.Reader) (*traceFile, error) {
	var trace traceFile
	if err := json.NewDecoder(r).Decode(&trace); err != nil {
		return nil, fmt.Errorf("failed to decode trace: %w", err)
	}
	if len(trace.Ops) == 0 {
		return nil, fmt.Errorf("trace contains no operations")
	}
	return &trace, nil
}

// replayRun holds the live state of one replay.
type replayRun struct {
	space   *addr.AddressSpace
	store   *simstore.Store
	handles []addr.Handle // ref-1 indexed
	layouts []addr.Layout
	out     io.Writer
}

// runTrace executes every operation in the trace against a fresh address
// space and writes the step-by-step results plus a summary to out.
//
// The first failing operation aborts the replay; manager panics (use after
// free, assignment to an unregistered thread, strict-mode resolution) are
// converted into errors carrying the operation index, since reproducing
// those is exactly what replays are for.
func runTrace(trace *traceFile, config *replayConfig, out io.Writer) error {
	store := simstore.New()
	space, err := addr.New(addr.Config{
		Seed:       config.seed,
		Provenance: config.provenance,
		Oracle:     store,
		Backing:    store,
		Clocks:     addr.ThreadClocks(),
		Warnings:   out,
	})
	if err != nil {
		return fmt.Errorf("failed to build address space: %w", err)
	}
	defer func() { _ = space.Close() }()

	if err := space.RegisterThread(0, addr.ThreadConfig{}); err != nil {
		return fmt.Errorf("failed to register thread 0: %w", err)
	}

	run := &replayRun{space: space, store: store, out: out}

	for i, op := range trace.Ops {
		if err := run.step(i, op); err != nil {
			return err
		}
		if config.check {
			if err := space.CheckInvariants(); err != nil {
				return fmt.Errorf("op %d (%s): invariant violated: %w", i+1, op.Op, err)
			}
		}
	}

	printSummary(out, len(trace.Ops), space.Stats())

	if config.snapshot {
		fmt.Fprintln(out)
		if err := space.Snapshot().WriteJSON(out); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
	}
	return nil
}

// step executes one trace operation, echoing its result.
func (r *replayRun) step(i int, op traceOp) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("op %d (%s): %v", i+1, op.Op, p)
		}
	}()

	switch op.Op {
	case "alloc":
		return r.opAlloc(i, op)
	case "addr":
		return r.opAddr(i, op)
	case "expose":
		return r.opExpose(i, op)
	case "cast":
		return r.opCast(i, op)
	case "resolve":
		return r.opResolve(i, op)
	case "register":
		return r.opRegister(i, op)
	case "cpu":
		return r.opCPU(i, op)
	case "kill":
		return r.opKill(i, op)
	case "free":
		return r.opFree(i, op)
	default:
		return fmt.Errorf("op %d: unknown operation %q", i+1, op.Op)
	}
}

// ref resolves an allocation number from the trace into its handle.
func (r *replayRun) ref(i int, op traceOp) (addr.Handle, addr.Layout, error) {
	if op.Ref < 1 || op.Ref > len(r.handles) {
		return addr.InvalidHandle, addr.Layout{}, fmt.Errorf("op %d (%s): no allocation #%d", i+1, op.Op, op.Ref)
	}
	return r.handles[op.Ref-1], r.layouts[op.Ref-1], nil
}

func (r *replayRun) opAlloc(i int, op traceOp) error {
	kind, err := parseKind(op.Kind)
	if err != nil {
		return fmt.Errorf("op %d: %w", i+1, err)
	}
	layout := addr.Layout{Size: op.Size, Align: op.Align}
	if layout.Align == 0 {
		layout.Align = 1
	}
	h := r.store.NewAllocation(layout, kind)
	r.handles = append(r.handles, h)
	r.layouts = append(r.layouts, layout)
	fmt.Fprintf(r.out, "[%3d] alloc     alloc#%d  %dB align %d\n", i+1, len(r.handles), layout.Size, layout.Align)
	return nil
}

func (r *replayRun) opAddr(i int, op traceOp) error {
	h, _, err := r.ref(i, op)
	if err != nil {
		return err
	}
	kind, err := parseRegion(op.Region)
	if err != nil {
		return fmt.Errorf("op %d: %w", i+1, err)
	}
	a, err := r.space.AddrOf(h, kind, addr.ThreadID(op.Thread))
	if err != nil {
		return fmt.Errorf("op %d (addr): alloc#%d: %w", i+1, op.Ref, err)
	}
	fmt.Fprintf(r.out, "[%3d] addr      alloc#%d -> %#x  (%s, thread %d)\n", i+1, op.Ref, a, kind, op.Thread)
	return nil
}

func (r *replayRun) opExpose(i int, op traceOp) error {
	h, _, err := r.ref(i, op)
	if err != nil {
		return err
	}
	r.space.Expose(h)
	fmt.Fprintf(r.out, "[%3d] expose    alloc#%d\n", i+1, op.Ref)
	return nil
}

func (r *replayRun) opCast(i int, op traceOp) error {
	p, err := r.space.IntToPtr(op.Value, addr.Site{File: op.File, Line: op.Line})
	if err != nil {
		return fmt.Errorf("op %d (cast): %w", i+1, err)
	}
	fmt.Fprintf(r.out, "[%3d] cast      %#x -> %s\n", i+1, op.Value, p)
	return nil
}

func (r *replayRun) opResolve(i int, op traceOp) error {
	// "access" is signed so traces can record below-boundary probes.
	size := op.Access
	if size == 0 {
		size = 1
	}
	h, ok := r.space.Resolve(op.Addr, size, addr.ThreadID(op.Thread))
	if !ok {
		fmt.Fprintf(r.out, "[%3d] resolve   %#x -> miss\n", i+1, op.Addr)
		return nil
	}
	fmt.Fprintf(r.out, "[%3d] resolve   %#x -> %s\n", i+1, op.Addr, describeHandle(r.handles, h))
	return nil
}

func (r *replayRun) opRegister(i int, op traceOp) error {
	err := r.space.RegisterThread(addr.ThreadID(op.Thread), addr.ThreadConfig{})
	if err != nil {
		return fmt.Errorf("op %d (register): thread %d: %w", i+1, op.Thread, err)
	}
	fmt.Fprintf(r.out, "[%3d] register  thread %d\n", i+1, op.Thread)
	return nil
}

func (r *replayRun) opCPU(i int, op traceOp) error {
	h, _, err := r.ref(i, op)
	if err != nil {
		return err
	}
	r.space.MarkCPULocal(h)
	fmt.Fprintf(r.out, "[%3d] cpu       alloc#%d\n", i+1, op.Ref)
	return nil
}

func (r *replayRun) opKill(i int, op traceOp) error {
	h, _, err := r.ref(i, op)
	if err != nil {
		return err
	}
	r.store.Kill(h)
	fmt.Fprintf(r.out, "[%3d] kill      alloc#%d\n", i+1, op.Ref)
	return nil
}

func (r *replayRun) opFree(i int, op traceOp) error {
	h, layout, err := r.ref(i, op)
	if err != nil {
		return err
	}
	kind, err := parseRegion(op.Region)
	if err != nil {
		return fmt.Errorf("op %d: %w", i+1, err)
	}
	r.space.Free(h, layout, kind, addr.ThreadID(op.Thread))
	fmt.Fprintf(r.out, "[%3d] free      alloc#%d\n", i+1, op.Ref)
	return nil
}

// parseRegion maps a trace region name onto a region kind. An empty name
// defaults to the heap.
func parseRegion(s string) (addr.Region, error) {
	switch s {
	case "", "heap":
		return addr.Heap, nil
	case "stack":
		return addr.Stack, nil
	case "cpu", "cpu-local":
		return addr.CPULocal, nil
	case "kernel":
		return addr.Kernel, nil
	default:
		return 0, fmt.Errorf("unknown region %q (want heap, stack, cpu-local, or kernel)", s)
	}
}

// parseKind maps a trace allocation kind onto a handle kind. An empty name
// defaults to a data allocation.
func parseKind(s string) (addr.AllocKind, error) {
	switch s {
	case "", "data":
		return addr.Data, nil
	case "function", "fn":
		return addr.Function, nil
	case "vtable":
		return addr.VTable, nil
	default:
		return 0, fmt.Errorf("unknown allocation kind %q (want data, function, or vtable)", s)
	}
}

// describeHandle names a resolved handle by its trace number when it was
// created by the trace, and by its raw handle otherwise (synthesized and
// materialized allocations have no trace number).
func describeHandle(handles []addr.Handle, h addr.Handle) string {
	for i, known := range handles {
		if known == h {
			return fmt.Sprintf("alloc#%d", i+1)
		}
	}
	return fmt.Sprintf("%v (synthesized)", h)
}

// printSummary writes the end-of-replay activity counters.
func printSummary(out io.Writer, ops int, stats addr.Stats) {
	fmt.Fprintf(out, "\nReplayed %d operations.\n", ops)
	fmt.Fprintf(out, "  assigned:     %d\n", stats.Assigned)
	fmt.Fprintf(out, "  reused:       %d\n", stats.Reused)
	fmt.Fprintf(out, "  freed:        %d\n", stats.Freed)
	fmt.Fprintf(out, "  resolves:     %d\n", stats.Resolves)
	fmt.Fprintf(out, "  synthesized:  %d\n", stats.Synthesized)
	fmt.Fprintf(out, "  warnings:     %d\n", stats.Warnings)
}
