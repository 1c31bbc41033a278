package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPin(t *testing.T) {
	assert.Positive(t, NumCPU())

	done := make(chan struct{})
	go func() {
		defer close(done)
		// the affinity call may be refused inside restricted cpusets; the
		// thread lock and release must work regardless
		release, _ := Pin(NumCPU() + 3)
		assert.NotNil(t, release)
		release()
	}()
	<-done
}
