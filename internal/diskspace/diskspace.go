// Package diskspace reports free space on the volume holding the output directory.
package diskspace

import (
	"fmt"

	"github.com/shirou/gopsutil/disk"
)

// Floor is the minimum free space a capture keeps available
const Floor = 64 << 20

// Checker returns the free bytes available at a path
type Checker func(path string) (uint64, error)

// Free returns the bytes available to unprivileged users at path
func Free(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("failed to query disk usage for %s: %w", path, err)
	}
	return usage.Free, nil
}
