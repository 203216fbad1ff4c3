// Package tasklog carries the per-task log channel: one pubsub topic per
// task id on which pipelines publish typed entries and raw tool output.
package tasklog

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/pubsub/v2"
)

// EntryType marks what an entry reports.
type EntryType string

const (
	Processing EntryType = "processing"
	Info       EntryType = "info"
	Success    EntryType = "success"
	Error      EntryType = "error"
	Finish     EntryType = "finish"
)

// Entry is one message on a task topic.
type Entry struct {
	TaskID  string            `json:"task_id"`
	Type    EntryType         `json:"type"`
	Message string            `json:"message"`
	Time    time.Time         `json:"time"`
	Fields  map[string]string `json:"fields,omitempty"`
}

const topicPrefix = "task."

func topic(taskID string) string { return topicPrefix + taskID }

// Hub routes entries to subscribers of a task and lets a pipeline wait until
// someone is listening before it starts producing.
type Hub struct {
	hub   *pubsub.SimpleHub
	clock clock.Clock

	mu      sync.Mutex
	waiters map[string]*waiter
}

// waiter lives while the task has a subscriber or a WaitSubscribed caller.
type waiter struct {
	ch      chan struct{}
	closed  bool
	subs    int
	waiting int
}

// NewHub creates a Hub. Timeouts use clk.
func NewHub(clk clock.Clock) *Hub {
	return &Hub{
		hub:     pubsub.NewSimpleHub(nil),
		clock:   clk,
		waiters: make(map[string]*waiter),
	}
}

// Publish sends e to the subscribers of e.TaskID. It never blocks on slow
// subscribers; each one drains its own queue.
func (h *Hub) Publish(e Entry) {
	if e.Time.IsZero() {
		e.Time = h.clock.Now().UTC()
	}
	_ = h.hub.Publish(topic(e.TaskID), e)
}

// Subscribe delivers the entries of taskID to fn, in publish order, until
// the returned function is called. It releases any WaitSubscribed call for
// the task.
func (h *Hub) Subscribe(taskID string, fn func(Entry)) func() {
	unsub := h.hub.Subscribe(topic(taskID), func(_ string, data interface{}) {
		if e, ok := data.(Entry); ok {
			fn(e)
		}
	})
	w := h.markSubscribed(taskID)
	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			h.release(taskID, w, func() { w.subs-- })
		})
	}
}

// Channel subscribes to taskID and returns the entries on a channel. The
// channel is never closed; stop ends the subscription and releases a
// pending delivery.
func (h *Hub) Channel(taskID string, size int) (entries <-chan Entry, stop func()) {
	ch := make(chan Entry, size)
	done := make(chan struct{})
	unsub := h.Subscribe(taskID, func(e Entry) {
		select {
		case ch <- e:
		case <-done:
		}
	})
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			close(done)
			unsub()
		})
	}
}

// WaitSubscribed blocks until taskID has a subscriber, the timeout elapses
// or ctx ends. It reports whether a subscriber arrived.
func (h *Hub) WaitSubscribed(ctx context.Context, taskID string, timeout time.Duration) bool {
	h.mu.Lock()
	w := h.entry(taskID)
	w.waiting++
	h.mu.Unlock()
	defer h.release(taskID, w, func() { w.waiting-- })

	select {
	case <-w.ch:
		return true
	default:
	}
	select {
	case <-w.ch:
		return true
	case <-h.clock.After(timeout):
		return false
	case <-ctx.Done():
		return false
	}
}

// Forget drops the subscription bookkeeping of a finished task.
func (h *Hub) Forget(taskID string) {
	h.mu.Lock()
	delete(h.waiters, taskID)
	h.mu.Unlock()
}

// entry returns the waiter of taskID, creating it. h.mu must be held.
func (h *Hub) entry(taskID string) *waiter {
	w, ok := h.waiters[taskID]
	if !ok {
		w = &waiter{ch: make(chan struct{})}
		h.waiters[taskID] = w
	}
	return w
}

func (h *Hub) markSubscribed(taskID string) *waiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	w := h.entry(taskID)
	w.subs++
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	return w
}

// release applies dec to w and drops the entry once nothing holds it.
func (h *Hub) release(taskID string, w *waiter, dec func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	dec()
	if w.subs <= 0 && w.waiting <= 0 && h.waiters[taskID] == w {
		delete(h.waiters, taskID)
	}
}

// Task returns a writer bound to one task topic.
func (h *Hub) Task(taskID string) *Task {
	return &Task{hub: h, id: taskID}
}

// Task publishes typed entries for a single task.
type Task struct {
	hub *Hub
	id  string
}

// ID returns the task id.
func (t *Task) ID() string { return t.id }

// Emit publishes an entry of the given type.
func (t *Task) Emit(typ EntryType, msg string, fields map[string]string) {
	t.hub.Publish(Entry{TaskID: t.id, Type: typ, Message: msg, Fields: fields})
}

func (t *Task) Processing(msg string) { t.Emit(Processing, msg, nil) }
func (t *Task) Info(msg string)       { t.Emit(Info, msg, nil) }
func (t *Task) Success(msg string)    { t.Emit(Success, msg, nil) }
func (t *Task) Error(msg string)      { t.Emit(Error, msg, nil) }

// Finish publishes the terminal entry and forgets the task.
func (t *Task) Finish(msg string) {
	t.Emit(Finish, msg, nil)
	t.hub.Forget(t.id)
}
