package repl

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixedClock(serverID uuid.UUID, at time.Time) *Clock {
	c := NewClockWithServerID(serverID)
	c.now = func() time.Time { return at }
	return c
}

func TestNewClock(t *testing.T) {
	clock := NewClock()

	require.NotNil(t, clock)
	assert.NotEqual(t, uuid.Nil, clock.ServerID(), "ServerID should not be nil")
}

func TestClock_Tick_Monotonicity(t *testing.T) {
	// Часы стоят на месте - Tick все равно должен расти
	clock := newFixedClock(uuid.New(), time.Unix(100, 0))

	previous := NewZero()
	for i := 0; i < 100; i++ {
		current := clock.Tick()
		assert.True(t, previous.Less(current), "Tick should always increase")
		assert.Equal(t, clock.ServerID(), current.ServerID)
		previous = current
	}
}

func TestClock_Update(t *testing.T) {
	clock := newFixedClock(uuid.New(), time.Unix(100, 0))
	first := clock.Tick()

	remote := NewCount(first.TS + time.Hour)
	updated := clock.Update(remote)

	assert.Equal(t, remote.TS+1, updated.TS)
	assert.True(t, remote.Less(clock.Tick()), "clock must stay ahead of observed cids")
}

func TestClock_Restore(t *testing.T) {
	clock := newFixedClock(uuid.New(), time.Unix(0, 0))
	clock.Restore(time.Hour)

	assert.Equal(t, time.Hour+1, clock.Tick().TS)
	assert.Equal(t, time.Hour+1, clock.Last())
}

func TestClock_ConcurrentTick(t *testing.T) {
	clock := NewClock()

	const workers = 10
	const perWorker = 100

	var mu sync.Mutex
	seen := make(map[Cid]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				c := clock.Tick()
				mu.Lock()
				seen[c] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker, "every tick must be unique")
}
