package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/rs/zerolog"

	"github.com/edvin/miniforge/internal/model"
	"github.com/edvin/miniforge/internal/patch"
	"github.com/edvin/miniforge/internal/saga"
)

// Generator writes artifacts into a workspace filesystem. Every write goes
// through a saga.FileGuard so a failed run can be compensated.
type Generator struct {
	fs     billy.Filesystem
	logger zerolog.Logger
}

// NewGenerator creates a Generator rooted at fs.
func NewGenerator(fs billy.Filesystem, logger zerolog.Logger) *Generator {
	return &Generator{
		fs:     fs,
		logger: logger.With().Str("component", "artifact").Logger(),
	}
}

// Generate writes artifact t for req, registering compensation on rb.
func (g *Generator) Generate(ctx context.Context, t Type, req *model.ProvisioningRequest, rb *saga.Rollback) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	switch t {
	case TypeBase, TypeAd, TypePay, TypeDelivery, TypeCommon:
		err = g.writeModule(t, req, rb)
	case TypeUI:
		if err = g.writeModule(t, req, rb); err == nil {
			err = g.writeStylesheet(req, rb)
		}
	case TypeManifest:
		err = g.writeManifest(req, rb)
	case TypeDispatcher:
		err = g.writeDispatcher(req, rb)
	default:
		err = fmt.Errorf("unknown artifact type %q", t)
	}
	if err != nil {
		return fmt.Errorf("generating %s artifact for %s: %w", t, req.BuildCode, err)
	}
	return nil
}

// writeModule merges the requesting platform's entry into the build's module.
func (g *Generator) writeModule(t Type, req *model.ProvisioningRequest, rb *saga.Rollback) error {
	name, err := ModulePath(t, req.BuildCode)
	if err != nil {
		return err
	}

	guard, err := saga.GuardFile(g.fs, name, rb)
	if err != nil {
		return err
	}
	out, err := patch.PatchModule(guard.Original(), req.Platform, entryFor(t, req))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	if err := guard.Write(out); err != nil {
		return err
	}
	if err := guard.Commit(); err != nil {
		return err
	}

	g.logger.Debug().
		Str("path", name).
		Str("platform", req.Platform.String()).
		Bool("created", !guard.Existed()).
		Msg("module written")
	return nil
}

var primaryColorRe = regexp.MustCompile(`(?m)^([ \t]*\$uni-color-primary[ \t]*:[ \t]*)[^;\n]*;`)

// writeStylesheet points the shared $uni-color-primary variable at the theme
// color. The variable is appended when the stylesheet does not declare it.
func (g *Generator) writeStylesheet(req *model.ProvisioningRequest, rb *saga.Rollback) error {
	color := req.UI.ThemeColor
	if color == "" {
		return nil
	}

	guard, err := saga.GuardFile(g.fs, StylesheetPath, rb)
	if err != nil {
		return err
	}
	src := guard.Original()
	var out []byte
	if primaryColorRe.Match(src) {
		out = primaryColorRe.ReplaceAll(src, []byte("${1}"+color+";"))
	} else {
		out = append([]byte(nil), src...)
		if len(out) > 0 && !bytes.HasSuffix(out, []byte("\n")) {
			out = append(out, '\n')
		}
		out = append(out, "$uni-color-primary: "+color+";\n"...)
	}
	if err := guard.Write(out); err != nil {
		return err
	}
	return guard.Commit()
}

// writeManifest updates the shared package manifest: the app name and
// version at the top level and the appid of the requesting platform's
// target section. Other sections are left alone.
func (g *Generator) writeManifest(req *model.ProvisioningRequest, rb *saga.Rollback) error {
	guard, err := saga.GuardFile(g.fs, ManifestPath, rb)
	if err != nil {
		return err
	}

	doc := patch.NewObject()
	if guard.Existed() {
		if doc, err = patch.Parse(guard.Original()); err != nil {
			return fmt.Errorf("parsing %s: %w", ManifestPath, err)
		}
	}

	doc.Set("name", patch.String(req.Base.AppName))
	doc.Set("versionName", patch.String(req.Base.Version))
	target := req.Platform.Target()
	section := doc.Object(target)
	if section == nil {
		section = patch.NewObject()
		doc.Set(target, section)
	}
	section.Set("appid", patch.String(req.Base.AppID))

	if err := guard.Write(patch.Render(doc, patch.JSONStyle)); err != nil {
		return err
	}
	return guard.Commit()
}

// loadDispatcher decodes the persisted dispatcher. Without one, an existing
// config/index.js is adopted so its routes survive the first render.
func (g *Generator) loadDispatcher(state, module []byte) (*patch.Dispatcher, error) {
	if len(bytes.TrimSpace(state)) > 0 || len(bytes.TrimSpace(module)) == 0 {
		return patch.LoadDispatcher(state)
	}
	d := patch.ParseDispatcherModule(module)
	g.logger.Info().Int("imports", len(d.Imports)).Msg("adopting existing dispatcher module")
	return d, nil
}

// writeDispatcher registers the build at every dispatch point and re-renders
// the dispatcher module. Nothing is touched when the build is already wired
// and the rendered module matches what is on disk.
func (g *Generator) writeDispatcher(req *model.ProvisioningRequest, rb *saga.Rollback) error {
	state, err := readOptional(g.fs, DispatcherState)
	if err != nil {
		return err
	}
	current, err := readOptional(g.fs, DispatcherPath)
	if err != nil {
		return err
	}
	d, err := g.loadDispatcher(state, current)
	if err != nil {
		return err
	}

	changed := false
	for _, point := range patch.DispatchPoints {
		ok, err := d.Register(point, req.BuildCode)
		if err != nil {
			return err
		}
		changed = changed || ok
	}
	rendered := d.Render()

	if !changed && bytes.Equal(current, rendered) {
		g.logger.Debug().Str("build", req.BuildCode).Msg("dispatcher already up to date")
		return nil
	}

	encoded, err := d.Marshal()
	if err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		data []byte
	}{
		{DispatcherState, encoded},
		{DispatcherPath, rendered},
	} {
		guard, err := saga.GuardFile(g.fs, f.name, rb)
		if err != nil {
			return err
		}
		if err := guard.Write(f.data); err != nil {
			return err
		}
		if err := guard.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func readOptional(fs billy.Filesystem, name string) ([]byte, error) {
	data, err := util.ReadFile(fs, name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}
