// Package resource clones the template asset tree for a build and recolors
// the shared vector icons to the build's theme color.
package resource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/rs/zerolog"

	"github.com/edvin/miniforge/internal/model"
	"github.com/edvin/miniforge/internal/saga"
)

// StaticDir holds per-build asset trees.
const StaticDir = "static"

// DefaultTemplateDir is where the template asset tree lives unless
// configured otherwise.
const DefaultTemplateDir = "static/template"

// ErrReservedDir is returned when a build's asset directory would overlap
// the template tree or the shared icon templates.
var ErrReservedDir = errors.New("build directory overlaps shared assets")

// Icon is a vector template whose element ElementID takes the theme color.
type Icon struct {
	Path      string
	ElementID string
}

// Icons are the recolored templates. Missing files are skipped.
var Icons = []Icon{
	{Path: "static/icons/tab-home-active.svg", ElementID: "tab-home-fill"},
	{Path: "static/icons/tab-theater-active.svg", ElementID: "tab-theater-fill"},
	{Path: "static/icons/tab-mine-active.svg", ElementID: "tab-mine-fill"},
	{Path: "static/icons/vip-badge.svg", ElementID: "vip-badge-bg"},
	{Path: "static/icons/play-button.svg", ElementID: "play-button-circle"},
}

// Stage applies the resource step of a provisioning run.
type Stage struct {
	fs          billy.Filesystem
	templateDir string
	icons       []Icon
	logger      zerolog.Logger
}

// NewStage creates a Stage that clones templateDir, a workspace-relative path.
func NewStage(fs billy.Filesystem, templateDir string, logger zerolog.Logger) *Stage {
	return &Stage{
		fs:          fs,
		templateDir: templateDir,
		icons:       Icons,
		logger:      logger.With().Str("component", "resource").Logger(),
	}
}

// BuildDir returns the asset directory of build.
func BuildDir(build string) string {
	return path.Join(StaticDir, build)
}

// Reserved reports whether build's asset directory would overlap
// templateDir or a directory holding icon templates.
func Reserved(build, templateDir string) bool {
	return reserved(BuildDir(build), templateDir, Icons)
}

func reserved(dest, templateDir string, icons []Icon) bool {
	if overlaps(dest, templateDir) {
		return true
	}
	for _, icon := range icons {
		if overlaps(dest, path.Dir(icon.Path)) {
			return true
		}
	}
	return false
}

// overlaps is true when a and b are the same directory or one contains the
// other.
func overlaps(a, b string) bool {
	a = path.Clean(filepath.ToSlash(a))
	b = path.Clean(filepath.ToSlash(b))
	return a == b || strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/") || a == "." || b == "."
}

// Apply clones the template tree into static/<build> and recolors the icons.
func (s *Stage) Apply(ctx context.Context, req *model.ProvisioningRequest, rb *saga.Rollback) error {
	dest := BuildDir(req.BuildCode)
	if err := s.clone(ctx, dest, rb); err != nil {
		return fmt.Errorf("cloning template into %s: %w", dest, err)
	}
	if req.UI.ThemeColor == "" {
		return nil
	}
	for _, icon := range s.icons {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.recolor(icon, req.UI.ThemeColor, rb); err != nil {
			return fmt.Errorf("recoloring %s: %w", icon.Path, err)
		}
	}
	return nil
}

// clone replaces dest with a copy of the template tree.
func (s *Stage) clone(ctx context.Context, dest string, rb *saga.Rollback) error {
	if reserved(dest, s.templateDir, s.icons) {
		return fmt.Errorf("%w: %s", ErrReservedDir, dest)
	}
	if _, err := s.fs.Stat(s.templateDir); err != nil {
		return fmt.Errorf("template directory %s: %w", s.templateDir, err)
	}
	if err := util.RemoveAll(s.fs, dest); err != nil {
		return fmt.Errorf("removing previous %s: %w", dest, err)
	}
	saga.RemoveTree(s.fs, dest, rb)

	files := 0
	err := util.Walk(s.fs, s.templateDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(s.templateDir, p)
		if err != nil {
			return err
		}
		target := path.Join(dest, filepath.ToSlash(rel))
		if info.IsDir() {
			return s.fs.MkdirAll(target, 0o755)
		}
		data, err := util.ReadFile(s.fs, p)
		if err != nil {
			return err
		}
		files++
		return util.WriteFile(s.fs, target, data, info.Mode().Perm())
	})
	if err != nil {
		return err
	}
	s.logger.Debug().Str("dest", dest).Int("files", files).Msg("template cloned")
	return nil
}

func (s *Stage) recolor(icon Icon, color string, rb *saga.Rollback) error {
	original, ok, err := saga.Snapshot(s.fs, icon.Path, rb)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug().Str("path", icon.Path).Msg("icon template missing, skipped")
		return nil
	}
	out, err := Recolor(original, icon.ElementID, color)
	if errors.Is(err, ErrElementNotFound) {
		s.logger.Warn().Str("path", icon.Path).Str("id", icon.ElementID).Msg("icon has no element with this id, left unchanged")
		return nil
	}
	if err != nil {
		return err
	}
	return util.WriteFile(s.fs, icon.Path, out, 0o644)
}

// ErrElementNotFound is returned when no element carries the requested id.
var ErrElementNotFound = errors.New("element not found")

var fillAttrRe = regexp.MustCompile(`\bfill\s*=\s*("[^"]*"|'[^']*')`)

// Recolor sets the fill attribute of the element whose id is id. The
// attribute is added when the element has none.
func Recolor(svg []byte, id, color string) ([]byte, error) {
	tagRe := regexp.MustCompile(`<[a-zA-Z][^<>]*\bid\s*=\s*["']` + regexp.QuoteMeta(id) + `["'][^<>]*>`)
	loc := tagRe.FindIndex(svg)
	if loc == nil {
		return nil, fmt.Errorf("%w: id %q", ErrElementNotFound, id)
	}
	tag := svg[loc[0]:loc[1]]

	var newTag []byte
	if fillAttrRe.Match(tag) {
		newTag = fillAttrRe.ReplaceAllLiteral(tag, []byte(`fill="`+color+`"`))
	} else {
		// insert after the element name
		nameEnd := 1
		for nameEnd < len(tag) && tag[nameEnd] != ' ' && tag[nameEnd] != '\t' && tag[nameEnd] != '\n' && tag[nameEnd] != '/' && tag[nameEnd] != '>' {
			nameEnd++
		}
		newTag = append(newTag, tag[:nameEnd]...)
		newTag = append(newTag, ` fill="`+color+`"`...)
		newTag = append(newTag, tag[nameEnd:]...)
	}

	out := make([]byte, 0, len(svg)+len(color))
	out = append(out, svg[:loc[0]]...)
	out = append(out, newTag...)
	out = append(out, svg[loc[1]:]...)
	return out, nil
}
