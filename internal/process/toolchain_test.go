package process

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/miniforge/internal/model"
)

func TestStep_CommandExpandsWordsAfterSplitting(t *testing.T) {
	step := Step{
		Run: "tma upload -v {{.Version}} -c {{.Description}} '{{.ProjectPath}}'",
		Env: []string{"UNI_OUTPUT_DIR={{.OutputDir}}"},
	}
	cmd, err := step.Command("/work", StepData{
		Version:     "1.2.0",
		Description: "fix: episode list; new ads",
		ProjectPath: "/work/dist/nova/mp-toutiao",
		OutputDir:   "dist/nova/mp-toutiao",
	})
	require.NoError(t, err)

	assert.Equal(t, "tma", cmd.Name)
	assert.Equal(t, []string{"upload", "-v", "1.2.0", "-c", "fix: episode list; new ads", "/work/dist/nova/mp-toutiao"}, cmd.Args)
	assert.Equal(t, "/work", cmd.Dir)
	assert.Equal(t, []string{"UNI_OUTPUT_DIR=dist/nova/mp-toutiao"}, cmd.Env)
}

func TestStep_CommandErrors(t *testing.T) {
	_, err := Step{Run: ""}.Command("", StepData{})
	assert.Error(t, err)

	_, err = Step{Run: "tool 'unterminated"}.Command("", StepData{})
	assert.Error(t, err)

	_, err = Step{Run: "tool {{.Unknown}}"}.Command("", StepData{})
	assert.Error(t, err)
}

func TestStep_FailureIn(t *testing.T) {
	step := Step{FailureMarkers: []string{"上传失败", "Error:"}}

	m, ok := step.FailureIn("[tma] 上传失败, 请重试")
	assert.True(t, ok)
	assert.Equal(t, "上传失败", m)

	_, ok = step.FailureIn("upload complete")
	assert.False(t, ok)
}

func TestDefaultToolchain_CoversEveryPlatform(t *testing.T) {
	tc := DefaultToolchain()
	for _, p := range model.Platforms {
		pl, ok := tc.Publish[p]
		require.True(t, ok, p)
		assert.NotEmpty(t, pl.Upload.Run, p)
		assert.NotEmpty(t, pl.Preview.Run, p)
		_, err := pl.Preview.Command("/w", StepData{QRPath: "/w/qr.png"})
		assert.NoError(t, err, p)
	}
	assert.NotEmpty(t, tc.Build.Run)
}

func TestLoadToolchain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolchain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
build:
  run: pnpm build:{{.Target}}
publish:
  douyin:
    credential:
      run: ./login.sh {{.KeyFile}}
    upload:
      run: ./upload.sh {{.ProjectPath}}
      failure_markers: ["FAILED"]
    preview:
      run: ./preview.sh {{.QRPath}}
      success_marker: QR OK
`), 0o644))

	tc, err := LoadToolchain(path)
	require.NoError(t, err)
	assert.Equal(t, "pnpm build:{{.Target}}", tc.Build.Run)
	tt := tc.Publish[model.PlatformToutiao]
	assert.Equal(t, "./upload.sh {{.ProjectPath}}", tt.Upload.Run)
	assert.Equal(t, []string{"FAILED"}, tt.Upload.FailureMarkers)
	assert.Equal(t, "QR OK", tt.Preview.SuccessMarker)
	assert.Equal(t, DefaultToolchain().Publish[model.PlatformWeixin], tc.Publish[model.PlatformWeixin])
}

func TestLoadToolchain_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	_, err := LoadToolchain(write("unknown.yaml", "publish:\n  alipay:\n    upload: {run: x}\n    preview: {run: y}\n"))
	assert.ErrorContains(t, err, "unknown platform")

	_, err = LoadToolchain(write("partial.yaml", "publish:\n  wx:\n    upload: {run: x}\n"))
	assert.ErrorContains(t, err, "needs upload and preview")

	_, err = LoadToolchain(write("broken.yaml", "publish: [\n"))
	assert.Error(t, err)

	_, err = LoadToolchain(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	tc, err := LoadToolchain("")
	require.NoError(t, err)
	assert.Len(t, tc.Publish, len(model.Platforms))
}
