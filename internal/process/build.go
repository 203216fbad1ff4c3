package process

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/miniforge/internal/ids"
	"github.com/edvin/miniforge/internal/metrics"
	"github.com/edvin/miniforge/internal/model"
	"github.com/edvin/miniforge/internal/tasklog"
)

// BuildRequest asks for one build of a build code for a platform.
type BuildRequest struct {
	BuildCode string         `json:"build_code"`
	Platform  model.Platform `json:"platform"`
}

// OutputDir is the directory a build writes to and a publish reads from,
// relative to the workspace.
func OutputDir(build string, p model.Platform) string {
	return filepath.Join("dist", build, p.Target())
}

type buildTask struct {
	Task
	proc    *Process
	stopped bool
}

// BuildManager runs build processes. Any number may run at once.
type BuildManager struct {
	runner           *Runner
	hub              *tasklog.Hub
	toolchain        *Toolchain
	workspace        string
	stopTimeout      time.Duration
	subscribeTimeout time.Duration
	clock            clock.Clock
	logger           zerolog.Logger

	mu    sync.Mutex
	tasks map[string]*buildTask
	wg    sync.WaitGroup
}

// NewBuildManager creates a BuildManager that runs builds in workspace.
func NewBuildManager(runner *Runner, hub *tasklog.Hub, tc *Toolchain, workspace string, opts Options, logger zerolog.Logger) *BuildManager {
	return &BuildManager{
		runner:           runner,
		hub:              hub,
		toolchain:        tc,
		workspace:        workspace,
		stopTimeout:      opts.StopTimeout,
		subscribeTimeout: opts.SubscribeTimeout,
		clock:            opts.clock(),
		logger:           logger.With().Str("component", "build-manager").Logger(),
		tasks:            make(map[string]*buildTask),
	}
}

// Create registers a new build task without a process.
func (m *BuildManager) Create() string {
	id := ids.New()
	m.mu.Lock()
	m.tasks[id] = &buildTask{Task: Task{ID: id, Kind: KindBuild, StartedAt: m.clock.Now()}}
	m.mu.Unlock()
	return id
}

// Attach hands the running process of a task to the manager, which reports
// its exit on the task's log topic. A task stopped before its process was
// attached gets the process killed right away.
func (m *BuildManager) Attach(id string, proc *Process) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("attach %s: %w", id, ErrTaskNotFound)
	}
	t.proc = proc
	stopped := t.stopped
	m.mu.Unlock()

	metrics.ProcessTasks.WithLabelValues(string(KindBuild)).Inc()
	m.wg.Add(1)
	go m.watch(id, proc)

	if stopped {
		proc.Kill()
	}
	return nil
}

// Start accepts a build and returns its task id before the process is
// spawned. The process starts once the task's log topic has a subscriber
// or the subscribe timeout passes.
func (m *BuildManager) Start(req BuildRequest) (string, error) {
	projectPath := filepath.Join(m.workspace, OutputDir(req.BuildCode, req.Platform))
	cmd, err := m.toolchain.Build.Command(m.workspace, StepData{
		BuildCode:   req.BuildCode,
		Target:      req.Platform.Target(),
		ProjectPath: projectPath,
		OutputDir:   OutputDir(req.BuildCode, req.Platform),
	})
	if err != nil {
		return "", fmt.Errorf("rendering build command: %w", err)
	}

	id := m.Create()
	m.mu.Lock()
	m.tasks[id].Platform = req.Platform
	m.tasks[id].ProjectPath = projectPath
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.spawn(id, cmd)
	}()
	return id, nil
}

func (m *BuildManager) spawn(id string, cmd Command) {
	log := m.hub.Task(id)
	if !m.hub.WaitSubscribed(context.Background(), id, m.subscribeTimeout) {
		m.logger.Warn().Str("task_id", id).Msg("no log subscriber, starting build anyway")
	}

	log.Processing("running " + cmd.String())
	proc, err := m.runner.Start(cmd, log.Info)
	if err != nil {
		m.forget(id)
		log.Error(fmt.Sprintf("build could not start: %v", err))
		log.Finish("build finished")
		return
	}
	if err := m.Attach(id, proc); err != nil {
		proc.Kill()
	}
}

// Stop terminates the build gracefully and kills it after the stop timeout.
func (m *BuildManager) Stop(id string) (TerminationState, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("stop %s: %w", id, ErrTaskNotFound)
	}
	t.stopped = true
	proc := t.proc
	m.mu.Unlock()

	if proc == nil {
		return Requested, nil
	}
	m.logger.Info().Str("task_id", id).Msg("stopping build")
	return proc.Stop(m.stopTimeout), nil
}

// Get returns the metadata of a running build.
func (m *BuildManager) Get(id string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return t.Task, nil
}

// RemoveAll kills every running build and waits for them to be reported.
func (m *BuildManager) RemoveAll() error {
	m.mu.Lock()
	procs := make([]*Process, 0, len(m.tasks))
	for _, t := range m.tasks {
		t.stopped = true
		if t.proc != nil {
			procs = append(procs, t.proc)
		}
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, p := range procs {
		g.Go(func() error {
			p.Kill()
			return nil
		})
	}
	err := g.Wait()
	m.wg.Wait()
	if len(procs) > 0 {
		m.logger.Info().Int("count", len(procs)).Msg("killed running builds")
	}
	return err
}

// Wait blocks until every attached build has been reported.
func (m *BuildManager) Wait() {
	m.wg.Wait()
}

func (m *BuildManager) watch(id string, proc *Process) {
	defer m.wg.Done()
	defer metrics.ProcessTasks.WithLabelValues(string(KindBuild)).Dec()

	res, _ := proc.Wait(context.Background())
	log := m.hub.Task(id)
	msg, ok := outcome("build", res)
	if ok {
		log.Success(msg)
	} else {
		log.Error(msg)
	}
	m.logger.Info().Str("task_id", id).Int("exit_code", res.ExitCode).Str("termination", string(res.Termination)).Msg(msg)
	m.forget(id)
	log.Finish("build finished")
}

func (m *BuildManager) forget(id string) {
	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()
}
