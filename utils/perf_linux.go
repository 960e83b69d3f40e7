//go:build linux

package utils

import (
	perf "github.com/hodgesds/perf-utils"
)

// CountInstructions runs f and returns the number of CPU instructions retired
// by the calling thread while it ran. It needs perf_event access, which is
// commonly restricted by kernel.perf_event_paranoid.
func CountInstructions(f func() error) (instructions uint64, err error) {
	var pv *perf.ProfileValue
	if pv, err = perf.CPUInstructions(f); err != nil {
		return
	}
	instructions = pv.Value
	return
}
