//go:build !linux

package utils

import "errors"

var errNoPerf = errors.New("hardware counters are only available on linux")

func CountInstructions(f func() error) (instructions uint64, err error) {
	if err = f(); err != nil {
		return
	}
	return 0, errNoPerf
}
