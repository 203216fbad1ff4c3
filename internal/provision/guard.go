// Package provision runs provisioning sagas: one at a time, system-wide.
package provision

import (
	"sync/atomic"

	"github.com/edvin/miniforge/internal/ids"
	"github.com/edvin/miniforge/internal/model"
)

// Guard holds the single provisioning slot.
type Guard struct {
	slot atomic.Pointer[model.ProvisioningTask]
}

// Acquire claims the slot for a new task. It never blocks; ok is false when
// another task holds the slot.
func (g *Guard) Acquire() (task model.ProvisioningTask, ok bool) {
	t := &model.ProvisioningTask{ID: ids.New(), Status: model.StatusPending}
	if !g.slot.CompareAndSwap(nil, t) {
		return model.ProvisioningTask{}, false
	}
	return *t, true
}

// Release frees the slot if taskID holds it. Releasing with any other id,
// or twice, does nothing.
func (g *Guard) Release(taskID string) {
	cur := g.slot.Load()
	if cur == nil || cur.ID != taskID {
		return
	}
	g.slot.CompareAndSwap(cur, nil)
}

// SetStatus records the status of the holding task.
func (g *Guard) SetStatus(taskID, status string) {
	for {
		cur := g.slot.Load()
		if cur == nil || cur.ID != taskID {
			return
		}
		next := &model.ProvisioningTask{ID: cur.ID, Status: status}
		if g.slot.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Current returns the holding task, if any.
func (g *Guard) Current() (model.ProvisioningTask, bool) {
	cur := g.slot.Load()
	if cur == nil {
		return model.ProvisioningTask{}, false
	}
	return *cur, true
}
