// Package saga keeps the compensation ledger of a provisioning run and the
// backup discipline for files mutated in place.
package saga

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/edvin/miniforge/internal/metrics"
)

// Action reverses one side effect.
type Action func() error

type entry struct {
	name string
	fn   Action
}

// Rollback is an append-only list of compensating actions, run in reverse
// registration order when a stage fails.
type Rollback struct {
	logger zerolog.Logger

	mu      sync.Mutex
	actions []entry
}

// New returns an empty ledger that logs failing actions to logger.
func New(logger zerolog.Logger) *Rollback {
	return &Rollback{logger: logger}
}

// Add registers fn under a descriptive name.
func (r *Rollback) Add(name string, fn Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, entry{name: name, fn: fn})
}

// Len returns the number of pending actions.
func (r *Rollback) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actions)
}

// Names returns the pending action names in registration order.
func (r *Rollback) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.actions))
	for i, a := range r.actions {
		names[i] = a.name
	}
	return names
}

// Run executes every pending action, last registered first, and empties the
// ledger. A failing action is logged and the remaining actions still run; the
// returned error joins all failures.
func (r *Rollback) Run() error {
	r.mu.Lock()
	actions := r.actions
	r.actions = nil
	r.mu.Unlock()

	var errs []error
	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		if err := runAction(a); err != nil {
			metrics.RollbackActions.WithLabelValues("failed").Inc()
			r.logger.Error().Err(err).Str("action", a.name).Msg("rollback action failed")
			errs = append(errs, fmt.Errorf("%s: %w", a.name, err))
			continue
		}
		metrics.RollbackActions.WithLabelValues("ok").Inc()
		r.logger.Debug().Str("action", a.name).Msg("rollback action done")
	}
	return errors.Join(errs...)
}

// Discard forgets every pending action without running it.
func (r *Rollback) Discard() {
	r.mu.Lock()
	r.actions = nil
	r.mu.Unlock()
}

func runAction(a entry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return a.fn()
}
