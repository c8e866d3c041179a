package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestStepClock_StartsAtStart(t *testing.T) {
	clock := NewStepClock(epoch, time.Hour)
	assert.Equal(t, epoch, clock.Peek())
	assert.Equal(t, epoch, clock.Now())
}

func TestStepClock_AdvancesByStep(t *testing.T) {
	clock := NewStepClock(epoch, time.Hour)

	assert.Equal(t, epoch, clock.Now())
	assert.Equal(t, epoch.Add(time.Hour), clock.Now())
	assert.Equal(t, epoch.Add(2*time.Hour), clock.Now())
	assert.Equal(t, epoch.Add(3*time.Hour), clock.Peek())
}

func TestStepClock_Reset(t *testing.T) {
	clock := NewStepClock(epoch, time.Minute)
	clock.Now()
	clock.Now()

	clock.Reset()
	assert.Equal(t, epoch, clock.Now())
}

func TestStepClock_ConvertsToUTC(t *testing.T) {
	local := time.Date(2024, 1, 1, 9, 0, 0, 0, time.FixedZone("JST", 9*3600))
	clock := NewStepClock(local, time.Second)

	now := clock.Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Equal(t, epoch, now)
}

func TestStepClock_ThreadSafe(t *testing.T) {
	clock := NewStepClock(epoch, time.Second)
	const n = 200

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[time.Time]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts := clock.Now()
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[ts], "duplicate timestamp %s", ts)
			seen[ts] = true
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	assert.Equal(t, epoch.Add(n*time.Second), clock.Peek())
}

func TestFixedClock(t *testing.T) {
	clock := FixedClock(epoch)
	assert.Equal(t, epoch, clock.Now())
	assert.Equal(t, epoch, clock.Now())
}

func TestMustParseTime(t *testing.T) {
	assert.Equal(t, epoch, MustParseTime("2024-01-01T09:00:00+09:00"))
	assert.Panics(t, func() { MustParseTime("yesterday") })
}
