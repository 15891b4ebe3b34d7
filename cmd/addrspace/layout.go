// layout.go implements the 'addrspace layout' command.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/kolkov/addrspace/addr"
)

// layoutCommand implements the 'addrspace layout' command.
//
// This command prints the default address-space geometry: the bounds of
// every region, the per-thread strip sizes, and the addressing constants.
// With -json, the geometry is printed as JSON instead, in the shape the
// replay tooling and embedders consume.
//
// Example:
//
//	addrspace layout
//	addrspace layout -json
func layoutCommand(args []string) {
	asJSON, err := parseLayoutArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	g := addr.DefaultGeometry()
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(g); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	fmt.Print(formatLayout(g))
}

// parseLayoutArgs parses the layout flags.
func parseLayoutArgs(args []string) (asJSON bool, err error) {
	for _, arg := range args {
		switch arg {
		case "-json":
			asJSON = true
		default:
			return false, fmt.Errorf("unknown flag: %s", arg)
		}
	}
	return asJSON, nil
}

// formatLayout renders a geometry as an aligned table.
func formatLayout(g addr.Geometry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Address-space geometry (%d-bit)\n\n", addressBits(g.AddrMax))
	fmt.Fprintf(&b, "  %-10s %-22s %-22s %s\n", "REGION", "BASE", "LIMIT", "SIZE")
	row := func(name string, base, limit uint64) {
		fmt.Fprintf(&b, "  %-10s %#-22x %#-22x %s\n", name, base, limit, byteCount(limit-base))
	}
	row("heap", g.HeapBase, g.HeapLimit)
	row("stack", g.StackBase, g.StackLimit)
	row("cpu-local", g.CPUBase, g.CPULimit)
	row("kernel", g.KernelBase, g.KernelLimit)

	fmt.Fprintf(&b, "\n  stack strip per thread:  %s\n", byteCount(g.StackSize))
	fmt.Fprintf(&b, "  window per thread:       %s\n", byteCount(g.WindowSize))
	fmt.Fprintf(&b, "  page size:               %s\n", byteCount(g.PageSize))
	if g.VirtBase != 0 {
		fmt.Fprintf(&b, "  virtual base:            %#x\n", g.VirtBase)
	}
	return b.String()
}

// addressBits reports how many address bits an AddrMax mask spans.
func addressBits(addrMax uint64) int {
	bits := 0
	for addrMax != 0 {
		bits++
		addrMax >>= 1
	}
	return bits
}

// byteCount renders a byte count in binary units.
func byteCount(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
