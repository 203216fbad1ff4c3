package provision

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/miniforge/internal/model"
)

func TestGuard_AcquireRelease(t *testing.T) {
	var g Guard
	task, ok := g.Acquire()
	require.True(t, ok)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, model.StatusPending, task.Status)

	_, ok = g.Acquire()
	assert.False(t, ok, "second acquire must fail fast")

	g.Release(task.ID)
	next, ok := g.Acquire()
	require.True(t, ok)
	assert.NotEqual(t, task.ID, next.ID)
}

func TestGuard_ReleaseWithOtherIDIsNoop(t *testing.T) {
	var g Guard
	task, ok := g.Acquire()
	require.True(t, ok)

	g.Release("someone-else")
	cur, held := g.Current()
	require.True(t, held)
	assert.Equal(t, task.ID, cur.ID)

	g.Release(task.ID)
	g.Release(task.ID)
	_, held = g.Current()
	assert.False(t, held)
}

func TestGuard_StaleReleaseDoesNotFreeNewHolder(t *testing.T) {
	var g Guard
	first, _ := g.Acquire()
	g.Release(first.ID)
	second, ok := g.Acquire()
	require.True(t, ok)

	g.Release(first.ID)
	cur, held := g.Current()
	require.True(t, held)
	assert.Equal(t, second.ID, cur.ID)
}

func TestGuard_SetStatus(t *testing.T) {
	var g Guard
	task, _ := g.Acquire()
	g.SetStatus(task.ID, model.StatusRunning)
	g.SetStatus("other", model.StatusFailed)

	cur, _ := g.Current()
	assert.Equal(t, model.StatusRunning, cur.Status)
}

func TestGuard_ConcurrentAcquireSingleWinner(t *testing.T) {
	var g Guard
	const n = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := g.Acquire(); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, 1, winners)
}
