//go:build !darwin && !linux

package tuner

import "runtime"

const defaultTotalRAM = 8 * 1024 * 1024 * 1024

// Detect reports the CPU count and assumes 8 GiB of memory.
func Detect() (SystemResources, error) {
	return SystemResources{
		CPUCores:     runtime.NumCPU(),
		TotalRAM:     defaultTotalRAM,
		AvailableRAM: defaultTotalRAM / 2,
	}, nil
}
