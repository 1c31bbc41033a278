//go:build linux

package cpu

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCore restricts the calling OS thread to one CPU and returns a func that
// puts back the thread's previous mask. The goroutine must already be locked
// to its thread.
func pinToCore(cpuID int) (restore func() error, err error) {
	numCPU := runtime.NumCPU()
	if cpuID < 0 || cpuID >= numCPU {
		cpuID = ((cpuID % numCPU) + numCPU) % numCPU
	}

	var original unix.CPUSet
	if err := unix.SchedGetaffinity(0, &original); err != nil {
		return nil, err
	}

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		return nil, err
	}

	return func() error {
		return unix.SchedSetaffinity(0, &original)
	}, nil
}
