package process

import (
	"testing"

	"github.com/juju/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/miniforge/internal/model"
	"github.com/edvin/miniforge/internal/tasklog"
)

func newBuildManager(t *testing.T, body string) (*BuildManager, *tasklog.Hub) {
	t.Helper()
	workspace := t.TempDir()
	run := script(t, t.TempDir(), "build.sh", body)
	tc := DefaultToolchain()
	tc.Build = Step{
		Run: run + " {{.Target}}",
		Env: []string{"UNI_OUTPUT_DIR={{.OutputDir}}", "UNI_BUILD_CODE={{.BuildCode}}"},
	}
	hub := tasklog.NewHub(clock.WallClock)
	return NewBuildManager(newRunner(), hub, tc, workspace, testOptions(), zerolog.Nop()), hub
}

func TestBuildManager_StreamsOutputAndFinishes(t *testing.T) {
	m, hub := newBuildManager(t, `echo "building $1 into $UNI_OUTPUT_DIR"; echo "code $UNI_BUILD_CODE" >&2`)

	id, err := m.Start(BuildRequest{BuildCode: "nova", Platform: model.PlatformWeixin})
	require.NoError(t, err)
	ch, stop := hub.Channel(id, 256)
	defer stop()
	entries := collect(t, ch)
	m.Wait()

	_, ok := find(entries, tasklog.Info, "building mp-weixin into dist/nova/mp-weixin")
	assert.True(t, ok, "%+v", entries)
	_, ok = find(entries, tasklog.Info, "code nova")
	assert.True(t, ok)
	_, ok = find(entries, tasklog.Success, "build finished")
	assert.True(t, ok)
	assert.Equal(t, tasklog.Finish, entries[len(entries)-1].Type)

	_, err = m.Get(id)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestBuildManager_ReportsExitCode(t *testing.T) {
	m, hub := newBuildManager(t, `echo "compile error"; exit 2`)

	id, err := m.Start(BuildRequest{BuildCode: "nova", Platform: model.PlatformToutiao})
	require.NoError(t, err)
	ch, stop := hub.Channel(id, 256)
	defer stop()
	entries := collect(t, ch)
	m.Wait()

	_, ok := find(entries, tasklog.Error, "build failed with exit code 2")
	assert.True(t, ok, "%+v", entries)
}

func TestBuildManager_Stop(t *testing.T) {
	m, hub := newBuildManager(t, `echo started; sleep 30`)

	id, err := m.Start(BuildRequest{BuildCode: "nova", Platform: model.PlatformBaidu})
	require.NoError(t, err)
	ch, stop := hub.Channel(id, 256)
	defer stop()
	waitFor(t, ch, tasklog.Info, "started")

	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.PlatformBaidu, task.Platform)
	assert.Equal(t, KindBuild, task.Kind)

	state, err := m.Stop(id)
	require.NoError(t, err)
	assert.Equal(t, Terminated, state)

	entries := collect(t, ch)
	m.Wait()
	_, ok := find(entries, tasklog.Error, "build stopped (terminated)")
	assert.True(t, ok, "%+v", entries)
}

func TestBuildManager_StopBeforeAttachKills(t *testing.T) {
	m, hub := newBuildManager(t, `sleep 30`)

	id := m.Create()
	ch, stop := hub.Channel(id, 16)
	defer stop()

	state, err := m.Stop(id)
	require.NoError(t, err)
	assert.Equal(t, Requested, state)

	proc, err := newRunner().Start(Command{Name: "sleep", Args: []string{"30"}}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Attach(id, proc))

	entries := collect(t, ch)
	m.Wait()
	assert.Equal(t, ForceKilled, proc.Termination())
	_, ok := find(entries, tasklog.Error, "build stopped (force_killed)")
	assert.True(t, ok, "%+v", entries)
}

func TestBuildManager_UnknownTask(t *testing.T) {
	m, _ := newBuildManager(t, `true`)

	_, err := m.Stop("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	proc, err := newRunner().Start(Command{Name: "true"}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Attach("missing", proc), ErrTaskNotFound)
	<-proc.Done()
}

func TestBuildManager_RemoveAllKillsEverything(t *testing.T) {
	m, hub := newBuildManager(t, `trap '' TERM; echo started; while :; do sleep 0.1; done`)

	var chans []<-chan tasklog.Entry
	for _, p := range []model.Platform{model.PlatformToutiao, model.PlatformKuaishou} {
		id, err := m.Start(BuildRequest{BuildCode: "nova", Platform: p})
		require.NoError(t, err)
		ch, stop := hub.Channel(id, 256)
		defer stop()
		waitFor(t, ch, tasklog.Info, "started")
		chans = append(chans, ch)
	}

	require.NoError(t, m.RemoveAll())
	for _, ch := range chans {
		entries := collect(t, ch)
		_, ok := find(entries, tasklog.Error, "force_killed")
		assert.True(t, ok, "%+v", entries)
	}
}
