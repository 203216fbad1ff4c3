package resource

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/miniforge/internal/model"
	"github.com/edvin/miniforge/internal/saga"
	"github.com/edvin/miniforge/internal/saga/sagatest"
)

const homeIcon = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24">
  <path id="tab-home-fill" fill="#999999" d="M3 10l9-7 9 7v11H3z"/>
  <path id="tab-home-outline" fill="#999999" d="M0 0"/>
</svg>
`

func seedWorkspace(t *testing.T, fs billy.Filesystem) {
	t.Helper()
	require.NoError(t, util.WriteFile(fs, "static/template/images/logo.png", []byte("png"), 0o644))
	require.NoError(t, util.WriteFile(fs, "static/template/fonts/a/b.ttf", []byte("ttf"), 0o644))
	require.NoError(t, util.WriteFile(fs, "static/icons/tab-home-active.svg", []byte(homeIcon), 0o644))
}

func request(build, color string) *model.ProvisioningRequest {
	return &model.ProvisioningRequest{
		BuildCode: build,
		Platform:  model.PlatformToutiao,
		UI:        model.UISettings{ThemeColor: color},
	}
}

func TestApply_ClonesTemplateAndRecolors(t *testing.T) {
	fs := memfs.New()
	seedWorkspace(t, fs)
	s := NewStage(fs, "static/template", zerolog.Nop())

	rb := saga.New(zerolog.Nop())
	require.NoError(t, s.Apply(context.Background(), request("nova", "#ff6600"), rb))

	data, err := util.ReadFile(fs, "static/nova/images/logo.png")
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	data, err = util.ReadFile(fs, "static/nova/fonts/a/b.ttf")
	require.NoError(t, err)
	assert.Equal(t, "ttf", string(data))

	icon, err := util.ReadFile(fs, "static/icons/tab-home-active.svg")
	require.NoError(t, err)
	assert.Contains(t, string(icon), `<path id="tab-home-fill" fill="#ff6600"`)
	assert.Contains(t, string(icon), `<path id="tab-home-outline" fill="#999999"`)
}

func TestApply_FullReplaceOfExistingBuildDir(t *testing.T) {
	fs := memfs.New()
	seedWorkspace(t, fs)
	require.NoError(t, util.WriteFile(fs, "static/nova/stale.txt", []byte("old"), 0o644))

	s := NewStage(fs, "static/template", zerolog.Nop())
	require.NoError(t, s.Apply(context.Background(), request("nova", ""), saga.New(zerolog.Nop())))

	_, err := fs.Stat("static/nova/stale.txt")
	assert.Error(t, err)
	_, err = fs.Stat("static/nova/images/logo.png")
	assert.NoError(t, err)
}

func TestApply_RollbackRemovesTreeAndRestoresIcons(t *testing.T) {
	fs := memfs.New()
	seedWorkspace(t, fs)
	s := NewStage(fs, "static/template", zerolog.Nop())

	rb := saga.New(zerolog.Nop())
	require.NoError(t, s.Apply(context.Background(), request("nova", "#123456"), rb))
	require.NoError(t, rb.Run())

	_, err := fs.Stat("static/nova")
	assert.Error(t, err)
	icon, err := util.ReadFile(fs, "static/icons/tab-home-active.svg")
	require.NoError(t, err)
	assert.Equal(t, homeIcon, string(icon))
}

func TestApply_MissingTemplateFails(t *testing.T) {
	s := NewStage(memfs.New(), "static/template", zerolog.Nop())
	rb := saga.New(zerolog.Nop())
	err := s.Apply(context.Background(), request("nova", "#fff"), rb)
	assert.Error(t, err)
	assert.Equal(t, 0, rb.Len())
}

func TestApply_IconWriteFailureIsCompensated(t *testing.T) {
	base := memfs.New()
	seedWorkspace(t, base)
	fs := sagatest.New(base).FailWrite("static/icons/tab-home-active.svg")
	s := NewStage(fs, "static/template", zerolog.Nop())

	rb := saga.New(zerolog.Nop())
	err := s.Apply(context.Background(), request("nova", "#abcdef"), rb)
	require.ErrorIs(t, err, sagatest.ErrInjected)

	fs.Reset()
	require.NoError(t, rb.Run())
	_, err = base.Stat("static/nova")
	assert.Error(t, err)
	icon, err := util.ReadFile(base, "static/icons/tab-home-active.svg")
	require.NoError(t, err)
	assert.Equal(t, homeIcon, string(icon))
}

func TestRecolor(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "replace double quoted fill",
			in:   `<svg><circle id="c" r="4" fill="#000"/></svg>`,
			want: `<svg><circle id="c" r="4" fill="#f00"/></svg>`,
		},
		{
			name: "replace single quoted fill",
			in:   `<svg><rect fill='red' id='c'/></svg>`,
			want: `<svg><rect fill="#f00" id='c'/></svg>`,
		},
		{
			name: "add missing fill",
			in:   `<svg><path id="c" d="M0"/></svg>`,
			want: `<svg><path fill="#f00" id="c" d="M0"/></svg>`,
		},
		{
			name: "only the matching element",
			in:   `<svg><path id="a" fill="#1"/><path id="c" fill="#2"/></svg>`,
			want: `<svg><path id="a" fill="#1"/><path id="c" fill="#f00"/></svg>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Recolor([]byte(tt.in), "c", "#f00")
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestRecolor_ElementNotFound(t *testing.T) {
	_, err := Recolor([]byte(`<svg><path id="other"/></svg>`), "c", "#fff")
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestApply_RefusesBuildOverlappingSharedAssets(t *testing.T) {
	for _, build := range []string{"template", "icons"} {
		t.Run(build, func(t *testing.T) {
			fs := memfs.New()
			seedWorkspace(t, fs)
			s := NewStage(fs, "static/template", zerolog.Nop())

			rb := saga.New(zerolog.Nop())
			err := s.Apply(context.Background(), request(build, "#ff6600"), rb)
			assert.ErrorIs(t, err, ErrReservedDir)
			require.NoError(t, rb.Run())

			data, err := util.ReadFile(fs, "static/template/images/logo.png")
			require.NoError(t, err)
			assert.Equal(t, "png", string(data))
			icon, err := util.ReadFile(fs, "static/icons/tab-home-active.svg")
			require.NoError(t, err)
			assert.Equal(t, homeIcon, string(icon))
		})
	}
}

func TestApply_RefusesNestedTemplateDir(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "static/assets/template/logo.png", []byte("png"), 0o644))
	s := NewStage(fs, "static/assets/template", zerolog.Nop())

	err := s.Apply(context.Background(), request("assets", ""), saga.New(zerolog.Nop()))
	assert.ErrorIs(t, err, ErrReservedDir)
	_, err = fs.Stat("static/assets/template/logo.png")
	assert.NoError(t, err)
}

func TestReserved(t *testing.T) {
	assert.True(t, Reserved("template", DefaultTemplateDir))
	assert.True(t, Reserved("icons", DefaultTemplateDir))
	assert.True(t, Reserved("assets", "static/assets/template"))
	assert.False(t, Reserved("nova", DefaultTemplateDir))
	assert.False(t, Reserved("templates", DefaultTemplateDir))
}
