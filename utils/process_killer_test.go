//go:build linux || darwin

package utils

import (
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProcessKillerKill(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	defer signal.Stop(sigChan)
	killer := NewProcessKiller()
	assert.Nil(t, killer.Kill(os.Getpid(), syscall.SIGUSR1))
	select {
	case received := <-sigChan:
		assert.Equal(t, syscall.SIGUSR1, received)
	case <-time.After(5 * time.Second):
		t.Error("signal not delivered")
	}
}
