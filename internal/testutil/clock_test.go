package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_StartsAtStart(t *testing.T) {
	clock := NewManualClock(1000)
	assert.Equal(t, uint64(1000), clock.Now())
}

func TestManualClock_Advance(t *testing.T) {
	clock := NewManualClock(0)

	assert.Equal(t, uint64(10), clock.Advance(10))
	assert.Equal(t, uint64(15), clock.Advance(5))
	assert.Equal(t, uint64(15), clock.Now())
}

func TestManualClock_Set(t *testing.T) {
	clock := NewManualClock(500)
	clock.Set(100)
	assert.Equal(t, uint64(100), clock.Now())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	clock := NewManualClock(0)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				clock.Advance(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(numGoroutines*callsPerGoroutine), clock.Now())
}

func TestSequentialTxIDs(t *testing.T) {
	gen := NewSequentialTxIDs("scenario")
	assert.Equal(t, "scenario-0001", gen.Generate())
	assert.Equal(t, "scenario-0002", gen.Generate())

	assert.Equal(t, "tx-0001", NewSequentialTxIDs("").Generate())
}
