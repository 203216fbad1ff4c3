package tasklog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Entry) Entry {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for entry")
		return Entry{}
	}
}

func TestHub_DeliversInOrderToTaskSubscribers(t *testing.T) {
	h := NewHub(clock.WallClock)
	entries, stop := h.Channel("t1", 16)
	defer stop()
	other, stopOther := h.Channel("t2", 16)
	defer stopOther()

	task := h.Task("t1")
	task.Processing("starting")
	task.Info("line 1")
	task.Emit(Success, "done", map[string]string{"qr_path": "/p/preview-qrcode.png"})
	task.Finish("bye")

	got := []Entry{receive(t, entries), receive(t, entries), receive(t, entries), receive(t, entries)}
	assert.Equal(t, Processing, got[0].Type)
	assert.Equal(t, "line 1", got[1].Message)
	assert.Equal(t, "/p/preview-qrcode.png", got[2].Fields["qr_path"])
	assert.Equal(t, Finish, got[3].Type)
	for _, e := range got {
		assert.Equal(t, "t1", e.TaskID)
		assert.False(t, e.Time.IsZero())
	}

	select {
	case e := <-other:
		t.Fatalf("unexpected entry on other task: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_WaitSubscribedReleasedBySubscriber(t *testing.T) {
	h := NewHub(clock.WallClock)
	done := make(chan bool, 1)
	go func() {
		done <- h.WaitSubscribed(context.Background(), "t1", 5*time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	_, stop := h.Channel("t1", 1)
	defer stop()

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitSubscribed did not return")
	}
}

func TestHub_WaitSubscribedAfterSubscribeReturnsImmediately(t *testing.T) {
	h := NewHub(clock.WallClock)
	_, stop := h.Channel("t1", 1)
	defer stop()
	assert.True(t, h.WaitSubscribed(context.Background(), "t1", time.Hour))
}

func TestHub_WaitSubscribedTimesOut(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	h := NewHub(clk)
	done := make(chan bool, 1)
	go func() {
		done <- h.WaitSubscribed(context.Background(), "t1", 5*time.Second)
	}()

	require.NoError(t, clk.WaitAdvance(5*time.Second, time.Second, 1))
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitSubscribed did not time out")
	}
}

func TestHub_WaitSubscribedHonoursContext(t *testing.T) {
	h := NewHub(clock.WallClock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, h.WaitSubscribed(ctx, "t1", time.Hour))
}

func TestHub_ChannelStopReleasesBlockedDelivery(t *testing.T) {
	h := NewHub(clock.WallClock)
	_, stop := h.Channel("t1", 0)
	// nobody reads; publishing must not block
	for i := 0; i < 10; i++ {
		h.Task("t1").Info("line")
	}
	stop()
	stop()
}

func TestHub_Forget(t *testing.T) {
	h := NewHub(clock.WallClock)
	_, stop := h.Channel("t1", 1)
	stop()
	h.Task("t1").Finish("done")

	h.mu.Lock()
	_, ok := h.waiters["t1"]
	h.mu.Unlock()
	assert.False(t, ok)
}

func TestHub_SubscribersDoNotAccumulateBookkeeping(t *testing.T) {
	h := NewHub(clock.WallClock)
	for i := 0; i < 100; i++ {
		_, stop := h.Channel(fmt.Sprintf("unknown-%d", i), 1)
		stop()
	}
	unsub := h.Subscribe("t1", func(Entry) {})
	unsub()
	unsub()

	h.mu.Lock()
	n := len(h.waiters)
	h.mu.Unlock()
	assert.Zero(t, n)
}

func TestHub_WaitSubscribedDropsBookkeepingOnTimeout(t *testing.T) {
	h := NewHub(clock.WallClock)
	assert.False(t, h.WaitSubscribed(context.Background(), "t1", 10*time.Millisecond))

	h.mu.Lock()
	n := len(h.waiters)
	h.mu.Unlock()
	assert.Zero(t, n)
}

func TestHub_WaitSubscribedSeesLiveSubscriber(t *testing.T) {
	h := NewHub(clock.WallClock)
	_, stop := h.Channel("t1", 1)
	defer stop()

	assert.True(t, h.WaitSubscribed(context.Background(), "t1", time.Second))
	h.mu.Lock()
	_, ok := h.waiters["t1"]
	h.mu.Unlock()
	assert.True(t, ok, "entry stays while subscribed")
}
