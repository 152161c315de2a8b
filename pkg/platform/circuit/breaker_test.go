package circuit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBreakerIsClosed(t *testing.T) {
	b := New("lookup-api")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "lookup-api", b.Name())
}

func TestBreakerTransitions(t *testing.T) {
	t.Run("opens on the threshold failure only", func(t *testing.T) {
		b := New("lookup-api", WithFailureThreshold(2))

		fallback, change := b.RecordFailure()
		assert.False(t, fallback)
		assert.Equal(t, StateChange{}, change)

		fallback, change = b.RecordFailure()
		assert.True(t, fallback)
		assert.Equal(t, StateChange{Opened: true}, change)

		fallback, change = b.RecordFailure()
		assert.True(t, fallback)
		assert.Equal(t, StateChange{}, change, "an open breaker reports no new transition")
	})

	t.Run("closes after consecutive successes", func(t *testing.T) {
		b := New("lookup-api", WithFailureThreshold(1), WithSuccessThreshold(2))
		b.RecordFailure()

		primary, change := b.RecordSuccess()
		assert.False(t, primary)
		assert.True(t, b.IsOpen())

		primary, change = b.RecordSuccess()
		assert.True(t, primary)
		assert.Equal(t, StateChange{Closed: true}, change)
		assert.False(t, b.IsOpen())
	})

	t.Run("interleaved outcomes restart the counts", func(t *testing.T) {
		b := New("lookup-api", WithFailureThreshold(2), WithSuccessThreshold(2))

		b.RecordFailure()
		b.RecordSuccess()
		b.RecordFailure()
		assert.False(t, b.IsOpen(), "failures must be consecutive")

		b.RecordFailure()
		assert.True(t, b.IsOpen())

		b.RecordSuccess()
		b.RecordFailure()
		b.RecordSuccess()
		assert.True(t, b.IsOpen(), "successes must be consecutive")
	})

	t.Run("non-positive thresholds keep defaults", func(t *testing.T) {
		b := New("lookup-api", WithFailureThreshold(0), WithSuccessThreshold(-1))
		for range defaultFailureThreshold - 1 {
			b.RecordFailure()
		}
		assert.False(t, b.IsOpen())
		b.RecordFailure()
		assert.True(t, b.IsOpen())
	})
}

func TestBreakerReset(t *testing.T) {
	b := New("lookup-api", WithFailureThreshold(1))
	b.RecordFailure()

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerConcurrentUse(t *testing.T) {
	b := New("lookup-api", WithFailureThreshold(50))
	var wg sync.WaitGroup
	var mu sync.Mutex
	opened := 0
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, change := b.RecordFailure(); change.Opened {
				mu.Lock()
				opened++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.True(t, b.IsOpen())
	assert.Equal(t, 1, opened, "exactly one failure reports the transition")
}
