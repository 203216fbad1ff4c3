package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/miniforge/internal/artifact"
	"github.com/edvin/miniforge/internal/core"
	"github.com/edvin/miniforge/internal/metrics"
	"github.com/edvin/miniforge/internal/model"
	"github.com/edvin/miniforge/internal/saga"
	"github.com/edvin/miniforge/internal/tasklog"
)

// ErrAlreadyRunning is returned by Start while another run holds the slot.
var ErrAlreadyRunning = errors.New("a provisioning task is already running")

// Store is the relational stage.
type Store interface {
	Provision(ctx context.Context, req *model.ProvisioningRequest) (*core.ProvisionResult, error)
	Discard(ctx context.Context, appID string) error
}

// Generator writes one configuration artifact.
type Generator interface {
	Generate(ctx context.Context, t artifact.Type, req *model.ProvisioningRequest, rb *saga.Rollback) error
}

// ResourceStage clones and recolors assets.
type ResourceStage interface {
	Apply(ctx context.Context, req *model.ProvisioningRequest, rb *saga.Rollback) error
}

// Orchestrator sequences the stages of a provisioning run in the background
// and reports progress on the run's log topic.
type Orchestrator struct {
	guard            Guard
	store            Store
	generator        Generator
	resources        ResourceStage
	hub              *tasklog.Hub
	logger           zerolog.Logger
	subscribeTimeout time.Duration

	ctx context.Context
	wg  sync.WaitGroup
}

// NewOrchestrator wires the stages together. A run waits up to
// subscribeTimeout for a log subscriber before doing any work.
func NewOrchestrator(store Store, gen Generator, res ResourceStage, hub *tasklog.Hub, logger zerolog.Logger, subscribeTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		store:            store,
		generator:        gen,
		resources:        res,
		hub:              hub,
		logger:           logger.With().Str("component", "provision").Logger(),
		subscribeTimeout: subscribeTimeout,
		ctx:              context.Background(),
	}
}

// Start claims the provisioning slot and runs req in the background. The
// task id is returned before any stage starts.
func (o *Orchestrator) Start(req *model.ProvisioningRequest) (string, error) {
	task, ok := o.guard.Acquire()
	if !ok {
		metrics.ProvisionRejected.Inc()
		return "", ErrAlreadyRunning
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(task, req)
	}()
	return task.ID, nil
}

// Wait blocks until the running pipeline, if any, has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(task model.ProvisioningTask, req *model.ProvisioningRequest) {
	ctx := o.ctx
	log := o.hub.Task(task.ID)
	logger := o.logger.With().
		Str("task_id", task.ID).
		Str("build", req.BuildCode).
		Str("platform", req.Platform.String()).
		Logger()

	defer log.Finish("provisioning finished")
	defer o.guard.Release(task.ID)

	if !o.hub.WaitSubscribed(ctx, task.ID, o.subscribeTimeout) {
		logger.Warn().Dur("timeout", o.subscribeTimeout).Msg("no log subscriber, starting anyway")
	}
	o.guard.SetStatus(task.ID, model.StatusRunning)
	log.Processing(fmt.Sprintf("provisioning %s for %s", req.BuildCode, req.Platform))

	res, err := o.store.Provision(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("database stage failed")
		log.Error(fmt.Sprintf("database stage failed: %v", err))
		o.guard.SetStatus(task.ID, model.StatusFailed)
		metrics.ProvisionRuns.WithLabelValues("db_failed").Inc()
		return
	}
	log.Info("database records written")

	rb := saga.New(logger)
	if err := o.fileStages(ctx, log, req, rb); err != nil {
		logger.Error().Err(err).Int("actions", rb.Len()).Msg("file stage failed, rolling back")
		log.Error(fmt.Sprintf("file stage failed: %v", err))
		o.compensate(ctx, log, logger, res, rb)
		o.guard.SetStatus(task.ID, model.StatusFailed)
		metrics.ProvisionRuns.WithLabelValues("rolled_back").Inc()
		return
	}
	rb.Discard()

	logger.Info().Bool("created", res.Created).Msg("provisioning succeeded")
	log.Success(fmt.Sprintf("%s provisioned for %s", req.BuildCode, req.Platform))
	o.guard.SetStatus(task.ID, model.StatusSucceeded)
	metrics.ProvisionRuns.WithLabelValues("succeeded").Inc()
}

// fileStages runs the artifact generator for every type and then the
// resource stage, strictly in order.
func (o *Orchestrator) fileStages(ctx context.Context, log *tasklog.Task, req *model.ProvisioningRequest, rb *saga.Rollback) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	for _, t := range artifact.Sequence {
		log.Processing(fmt.Sprintf("generating %s config", t))
		if err := o.generator.Generate(ctx, t, req, rb); err != nil {
			return err
		}
	}
	log.Processing("preparing resources")
	if err := o.resources.Apply(ctx, req, rb); err != nil {
		return err
	}
	return nil
}

// compensate reverts the file stages and, when this run created the app,
// its database rows. Failures are reported and swallowed.
func (o *Orchestrator) compensate(ctx context.Context, log *tasklog.Task, logger zerolog.Logger, res *core.ProvisionResult, rb *saga.Rollback) {
	if err := rb.Run(); err != nil {
		log.Error(fmt.Sprintf("rollback incomplete: %v", err))
	} else {
		log.Info("file changes rolled back")
	}

	if !res.Created {
		return
	}
	if err := o.store.Discard(ctx, res.AppID); err != nil {
		logger.Error().Err(err).Str("app_id", res.AppID).Msg("discarding database records failed")
		log.Error(fmt.Sprintf("discarding database records failed: %v", err))
		return
	}
	log.Info("database records discarded")
}
