package process

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/miniforge/internal/ids"
	"github.com/edvin/miniforge/internal/metrics"
	"github.com/edvin/miniforge/internal/model"
	"github.com/edvin/miniforge/internal/tasklog"
)

var (
	// ErrPlatformBusy is returned while a publish for the same platform runs.
	ErrPlatformBusy = errors.New("a publish is already running for this platform")
	// ErrStepFailed marks a step that exited non-zero or printed a failure
	// marker.
	ErrStepFailed = errors.New("publish step failed")

	// ErrInvalidAppID is returned for app ids that cannot name a key file.
	ErrInvalidAppID = errors.New("invalid app id")

	errStopped = errors.New("publish stopped")
)

// PublishRequest asks for one upload and preview of a built project.
type PublishRequest struct {
	BuildCode   string         `json:"build_code"`
	Platform    model.Platform `json:"platform"`
	AppID       string         `json:"app_id"`
	PrivateKey  string         `json:"private_key"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
}

// PublishInfo is what stays retrievable about a publish.
type PublishInfo struct {
	Platform    model.Platform `json:"platform"`
	ProjectPath string         `json:"project_path"`
}

// KeyFile returns the credential file name for an app inside a project.
func KeyFile(appID string) string {
	return "private." + appID + ".key"
}

// keyPath joins the key file of appID onto dir and fails unless the result
// is a direct child of dir.
func keyPath(dir, appID string) (string, error) {
	dir = path.Clean(filepath.ToSlash(dir))
	name := KeyFile(appID)
	if appID == "" || strings.ContainsAny(appID, `/\`) || path.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidAppID, appID)
	}
	p := path.Join(dir, name)
	if path.Dir(p) != dir {
		return "", fmt.Errorf("%w: %q", ErrInvalidAppID, appID)
	}
	return p, nil
}

type publishTask struct {
	Task
	relPath   string
	proc      *Process
	running   bool
	stopped   bool
	expiresAt time.Time
}

// PublishManager runs publish pipelines, at most one per platform. Finished
// publishes stay retrievable for the grace period and are then swept.
type PublishManager struct {
	fs        billy.Filesystem
	runner    *Runner
	hub       *tasklog.Hub
	toolchain *Toolchain
	archiver  Archiver
	opts      Options
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	slots map[model.Platform]string
	tasks map[string]*publishTask
	wg    sync.WaitGroup
}

// NewPublishManager creates a PublishManager over the workspace fs. The
// archiver may be nil.
func NewPublishManager(fs billy.Filesystem, runner *Runner, hub *tasklog.Hub, tc *Toolchain, archiver Archiver, opts Options, logger zerolog.Logger) *PublishManager {
	ctx, cancel := context.WithCancel(context.Background())
	opts.Clock = opts.clock()
	return &PublishManager{
		fs:        fs,
		runner:    runner,
		hub:       hub,
		toolchain: tc,
		archiver:  archiver,
		opts:      opts,
		logger:    logger.With().Str("component", "publish-manager").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		slots:     make(map[model.Platform]string),
		tasks:     make(map[string]*publishTask),
	}
}

// Create claims the platform slot. It returns false when the platform is
// already publishing.
func (m *PublishManager) Create(p model.Platform) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.slots[p]; busy {
		return "", false
	}
	id := ids.New()
	m.slots[p] = id
	m.tasks[id] = &publishTask{
		Task:    Task{ID: id, Kind: KindPublish, Platform: p, StartedAt: m.opts.Clock.Now()},
		running: true,
	}
	return id, true
}

// Start claims the platform and runs the pipeline in the background.
func (m *PublishManager) Start(req PublishRequest) (string, error) {
	pl, ok := m.toolchain.Publish[req.Platform]
	if !ok {
		return "", fmt.Errorf("no publish pipeline for platform %s", req.Platform)
	}
	if _, err := keyPath(OutputDir(req.BuildCode, req.Platform), req.AppID); err != nil {
		return "", err
	}
	id, ok := m.Create(req.Platform)
	if !ok {
		metrics.PublishRejected.WithLabelValues(req.Platform.String()).Inc()
		return "", ErrPlatformBusy
	}

	rel := OutputDir(req.BuildCode, req.Platform)
	m.mu.Lock()
	t := m.tasks[id]
	t.relPath = rel
	t.ProjectPath = filepath.Join(m.fs.Root(), rel)
	m.mu.Unlock()

	metrics.ProcessTasks.WithLabelValues(string(KindPublish)).Inc()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer metrics.ProcessTasks.WithLabelValues(string(KindPublish)).Dec()
		m.run(t, req, pl)
	}()
	return id, nil
}

func (m *PublishManager) run(t *publishTask, req PublishRequest, pl Pipeline) {
	log := m.hub.Task(t.ID)
	logger := m.logger.With().Str("task_id", t.ID).Str("platform", req.Platform.String()).Logger()
	defer log.Finish("publish finished")
	defer m.finish(t)

	if !m.hub.WaitSubscribed(m.ctx, t.ID, m.opts.SubscribeTimeout) {
		logger.Warn().Msg("no log subscriber, starting publish anyway")
	}
	log.Processing(fmt.Sprintf("publishing %s to %s", req.BuildCode, req.Platform.Target()))

	data := StepData{
		BuildCode:   req.BuildCode,
		Target:      req.Platform.Target(),
		AppID:       req.AppID,
		Version:     req.Version,
		Description: req.Description,
		ProjectPath: t.ProjectPath,
		KeyFile:     filepath.Join(t.ProjectPath, KeyFile(req.AppID)),
		QRPath:      filepath.Join(t.ProjectPath, QRCodeFile),
		OutputDir:   t.relPath,
	}

	err := m.writeKey(t, req)
	if err == nil && pl.Credential.Run != "" {
		_, err = m.runStep(t, "credential", pl.Credential, data)
	}
	if err == nil {
		_, err = m.runStep(t, "upload", pl.Upload, data)
	}
	var sawSuccess bool
	if err == nil {
		sawSuccess, err = m.runStep(t, "preview", pl.Preview, data)
	}
	if err != nil {
		logger.Error().Err(err).Msg("publish failed")
		if errors.Is(err, context.Canceled) {
			log.Error("publish interrupted")
			return
		}
		log.Error(err.Error())
		return
	}

	qrRel := path.Join(filepath.ToSlash(t.relPath), QRCodeFile)
	_, statErr := m.fs.Stat(qrRel)
	if !sawSuccess && statErr != nil {
		log.Error("preview finished without a qr code")
		return
	}
	log.Emit(tasklog.Success, "qr code ready at "+data.QRPath, map[string]string{"qr_path": data.QRPath})
	logger.Info().Str("qr_path", data.QRPath).Msg("publish succeeded")

	if m.archiver != nil && statErr == nil {
		key := path.Join(req.BuildCode, req.Platform.String(), t.ID+".png")
		if err := m.archiver.Archive(m.ctx, key, data.QRPath); err != nil {
			logger.Warn().Err(err).Msg("archiving qr code failed")
			log.Info(fmt.Sprintf("qr code not archived: %v", err))
		} else {
			log.Emit(tasklog.Info, "qr code archived", map[string]string{"object_key": key})
		}
	}
}

// writeKey materializes the private key before any step runs.
func (m *PublishManager) writeKey(t *publishTask, req PublishRequest) error {
	name, err := keyPath(t.relPath, req.AppID)
	if err != nil {
		return fmt.Errorf("credential step: %w", err)
	}
	if err := m.fs.MkdirAll(filepath.ToSlash(t.relPath), 0o755); err != nil {
		return fmt.Errorf("credential step: creating project dir: %w", err)
	}
	if err := util.WriteFile(m.fs, name, []byte(req.PrivateKey), 0o600); err != nil {
		return fmt.Errorf("credential step: writing key file: %w", err)
	}
	return nil
}

// runStep runs one pipeline step to completion. It reports whether the
// step printed its success marker.
func (m *PublishManager) runStep(t *publishTask, name string, step Step, data StepData) (bool, error) {
	m.mu.Lock()
	stopped := t.stopped
	m.mu.Unlock()
	if stopped {
		return false, fmt.Errorf("%s step: %w", name, errStopped)
	}

	cmd, err := step.Command(m.fs.Root(), data)
	if err != nil {
		metrics.PipelineSteps.WithLabelValues(name, "failed").Inc()
		return false, fmt.Errorf("%w: %s: %v", ErrStepFailed, name, err)
	}

	log := m.hub.Task(t.ID)
	log.Processing(name + ": " + cmd.String())

	var marker string
	var success bool
	proc, err := m.runner.Start(cmd, func(line string) {
		log.Info(line)
		if marker == "" {
			if mk, ok := step.FailureIn(line); ok {
				marker = mk
			}
		}
		if step.SuccessMarker != "" && strings.Contains(line, step.SuccessMarker) {
			success = true
		}
	})
	if err != nil {
		metrics.PipelineSteps.WithLabelValues(name, "failed").Inc()
		return false, fmt.Errorf("%w: %s: %v", ErrStepFailed, name, err)
	}

	m.mu.Lock()
	t.proc = proc
	stopped = t.stopped
	m.mu.Unlock()
	if stopped {
		proc.Stop(m.opts.StopTimeout)
	}

	res, err := proc.Wait(m.ctx)
	if err != nil {
		proc.Kill()
		metrics.PipelineSteps.WithLabelValues(name, "interrupted").Inc()
		return false, fmt.Errorf("%s step: %w", name, err)
	}
	m.mu.Lock()
	t.proc = nil
	m.mu.Unlock()

	switch {
	case res.Termination != NotRequested:
		metrics.PipelineSteps.WithLabelValues(name, "stopped").Inc()
		return false, fmt.Errorf("%s step: %w (%s)", name, errStopped, res.Termination)
	case res.ExitCode != 0:
		metrics.PipelineSteps.WithLabelValues(name, "failed").Inc()
		return false, fmt.Errorf("%w: %s exited with code %d", ErrStepFailed, name, res.ExitCode)
	case marker != "":
		metrics.PipelineSteps.WithLabelValues(name, "failed").Inc()
		return false, fmt.Errorf("%w: %s reported %q", ErrStepFailed, name, marker)
	}
	metrics.PipelineSteps.WithLabelValues(name, "succeeded").Inc()
	return success, nil
}

// finish frees the platform and starts the grace period.
func (m *PublishManager) finish(t *publishTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.running = false
	t.proc = nil
	m.release(t)
	t.expiresAt = m.opts.Clock.Now().Add(m.opts.GracePeriod)
}

// release frees t's platform slot if t still owns it. Callers hold mu.
func (m *PublishManager) release(t *publishTask) {
	if m.slots[t.Platform] == t.ID {
		delete(m.slots, t.Platform)
	}
}

// Stop frees the platform right away and then terminates the running step,
// escalating to SIGKILL after the stop timeout.
func (m *PublishManager) Stop(id string) (TerminationState, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("stop %s: %w", id, ErrTaskNotFound)
	}
	if !t.running {
		m.mu.Unlock()
		return NotRequested, nil
	}
	t.stopped = true
	m.release(t)
	proc := t.proc
	m.mu.Unlock()

	m.logger.Info().Str("task_id", id).Msg("stopping publish")
	if proc == nil {
		return Requested, nil
	}
	return proc.Stop(m.opts.StopTimeout), nil
}

// Lookup returns the platform and project path of a running or retained
// publish.
func (m *PublishManager) Lookup(id string) (PublishInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return PublishInfo{}, ErrTaskNotFound
	}
	return PublishInfo{Platform: t.Platform, ProjectPath: t.ProjectPath}, nil
}

// QRCode returns the preview image of a running or retained publish.
func (m *PublishManager) QRCode(id string) ([]byte, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	var rel string
	if ok {
		rel = t.relPath
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrTaskNotFound
	}
	data, err := util.ReadFile(m.fs, path.Join(filepath.ToSlash(rel), QRCodeFile))
	if err != nil {
		return nil, fmt.Errorf("reading qr code: %w", err)
	}
	return data, nil
}

// Sweep evicts finished publishes whose grace period has passed and
// returns how many were removed.
func (m *PublishManager) Sweep() int {
	now := m.opts.Clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.tasks {
		if !t.running && !now.Before(t.expiresAt) {
			delete(m.tasks, id)
			n++
		}
	}
	return n
}

// Run sweeps expired records until ctx ends.
func (m *PublishManager) Run(ctx context.Context) error {
	interval := m.opts.GracePeriod
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.opts.Clock.After(interval):
			if n := m.Sweep(); n > 0 {
				m.logger.Debug().Int("evicted", n).Msg("swept finished publishes")
			}
		}
	}
}

// RemoveAll aborts every pipeline, kills running steps and waits for the
// pipelines to report.
func (m *PublishManager) RemoveAll() error {
	m.cancel()

	m.mu.Lock()
	var procs []*Process
	for _, t := range m.tasks {
		if t.running {
			t.stopped = true
		}
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
	return err
}

// Wait blocks until every running pipeline has finished.
func (m *PublishManager) Wait() {
	m.wg.Wait()
}
