//go:build !linux

package cpu

// pinToCore is a no-op where thread affinity is unavailable
func pinToCore(int) (func() error, error) {
	return nil, nil
}
