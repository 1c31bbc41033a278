// Package cpu pins execution-context goroutines to dedicated OS threads and cores.
package cpu

import (
	"runtime"
)

// Pin locks the calling goroutine to its OS thread and, where supported, binds
// that thread to core slot%NumCPU. The returned release func must run on the
// same goroutine. It restores the thread's original affinity before unlocking;
// if that fails the thread stays locked and the runtime discards it when the
// goroutine exits.
func Pin(slot int) (release func(), err error) {
	runtime.LockOSThread()
	restore, err := pinToCore(slot)
	return func() {
		if restore != nil && restore() != nil {
			return
		}
		runtime.UnlockOSThread()
	}, err
}

// NumCPU returns the number of logical CPUs available
func NumCPU() int {
	return runtime.NumCPU()
}
