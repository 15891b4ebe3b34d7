package addr

// Version information for the address-space manager.
const (
	// Version is the current version of the manager.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides runtime information about the manager.
type Info struct {
	// Version is the version string.
	Version string

	// AddressBits is the width of the default address space.
	AddressBits int

	// Features lists the optional layers compiled in.
	Features []string
}

// GetInfo returns information about the manager build.
//
// Example:
//
//	info := addr.GetInfo()
//	fmt.Printf("addrspace %s (%d-bit)\n", info.Version, info.AddressBits)
func GetInfo() Info {
	return Info{
		Version:     Version,
		AddressBits: 48,
		Features:    []string{"reuse-pool", "page-table", "cpu-local", "native-mirror"},
	}
}
