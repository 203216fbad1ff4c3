package process

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"github.com/edvin/miniforge/internal/model"
)

// QRCodeFile is the file name of the preview QR image inside a project.
const QRCodeFile = "preview-qrcode.png"

// Step is one toolchain invocation. Run is a shell-style command line whose
// words are expanded as templates over StepData after splitting, so values
// containing spaces stay a single argument.
type Step struct {
	Run            string   `yaml:"run"`
	Env            []string `yaml:"env,omitempty"`
	FailureMarkers []string `yaml:"failure_markers,omitempty"`
	SuccessMarker  string   `yaml:"success_marker,omitempty"`
}

// Pipeline is the publish sequence of one platform. Credential.Run may be
// empty: the key file is still written.
type Pipeline struct {
	Credential Step `yaml:"credential"`
	Upload     Step `yaml:"upload"`
	Preview    Step `yaml:"preview"`
}

// Toolchain holds the build command and the publish pipelines.
type Toolchain struct {
	Build   Step                        `yaml:"build"`
	Publish map[model.Platform]Pipeline `yaml:"publish"`
}

// StepData is what step templates can reference.
type StepData struct {
	BuildCode   string
	Target      string
	AppID       string
	Version     string
	Description string
	ProjectPath string
	KeyFile     string
	QRPath      string
	OutputDir   string
}

// DefaultToolchain returns the built-in commands for every platform.
func DefaultToolchain() *Toolchain {
	return &Toolchain{
		Build: Step{
			Run: "npm run build:{{.Target}}",
			Env: []string{"UNI_OUTPUT_DIR={{.OutputDir}}", "UNI_BUILD_CODE={{.BuildCode}}"},
		},
		Publish: map[model.Platform]Pipeline{
			model.PlatformToutiao: {
				Credential: Step{
					Run:            "tma login-e --app-id {{.AppID}} --key-file {{.KeyFile}}",
					FailureMarkers: []string{"登录失败", "login failed", "Error:"},
				},
				Upload: Step{
					Run:            "tma upload -v {{.Version}} -c {{.Description}} {{.ProjectPath}}",
					FailureMarkers: []string{"上传失败", "upload failed", "Error:"},
				},
				Preview: Step{
					Run:            "tma preview --qrcode-output {{.QRPath}} {{.ProjectPath}}",
					FailureMarkers: []string{"预览失败", "preview failed", "Error:"},
					SuccessMarker:  "预览成功",
				},
			},
			model.PlatformKuaishou: {
				Upload: Step{
					Run:            "ks-miniprogram-ci upload --pp {{.ProjectPath}} --pkp {{.KeyFile}} --appid {{.AppID}} --uv {{.Version}} --ud {{.Description}}",
					FailureMarkers: []string{"上传失败", "Error:", "errMsg"},
				},
				Preview: Step{
					Run:            "ks-miniprogram-ci preview --pp {{.ProjectPath}} --pkp {{.KeyFile}} --appid {{.AppID}} --qrcode-format image --qrcode-output-dest {{.QRPath}}",
					FailureMarkers: []string{"预览失败", "Error:", "errMsg"},
					SuccessMarker:  "preview success",
				},
			},
			model.PlatformWeixin: {
				Upload: Step{
					Run:            "miniprogram-ci upload --pp {{.ProjectPath}} --pkp {{.KeyFile}} --appid {{.AppID}} --uv {{.Version}} --ud {{.Description}} -r 1",
					FailureMarkers: []string{"Error:", "errCode", "invalid ip"},
				},
				Preview: Step{
					Run:            "miniprogram-ci preview --pp {{.ProjectPath}} --pkp {{.KeyFile}} --appid {{.AppID}} --qrcode-format image --qrcode-output-dest {{.QRPath}} -r 1",
					FailureMarkers: []string{"Error:", "errCode"},
					SuccessMarker:  "done",
				},
			},
			model.PlatformBaidu: {
				Credential: Step{
					Run:            "swan login --token-file {{.KeyFile}}",
					FailureMarkers: []string{"登录失败", "Error:"},
				},
				Upload: Step{
					Run:            "swan upload -p {{.ProjectPath}} --release-version {{.Version}} -d {{.Description}} --json",
					FailureMarkers: []string{"\"success\":false", "Error:"},
				},
				Preview: Step{
					Run:            "swan preview -p {{.ProjectPath}} --qrcode-path {{.QRPath}} --json",
					FailureMarkers: []string{"\"success\":false", "Error:"},
				},
			},
		},
	}
}

// LoadToolchain reads a YAML file and overlays it on the defaults. Pipelines
// are replaced per platform; an empty build step keeps the default. Platform
// keys may use any alias ParsePlatform accepts.
func LoadToolchain(path string) (*Toolchain, error) {
	tc := DefaultToolchain()
	if path == "" {
		return tc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading toolchain file: %w", err)
	}

	var file struct {
		Build   Step                `yaml:"build"`
		Publish map[string]Pipeline `yaml:"publish"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing toolchain file %s: %w", filepath.Base(path), err)
	}
	if file.Build.Run != "" {
		tc.Build = file.Build
	}
	for name, pl := range file.Publish {
		p, err := model.ParsePlatform(name)
		if err != nil {
			return nil, fmt.Errorf("toolchain file: %w", err)
		}
		if pl.Upload.Run == "" || pl.Preview.Run == "" {
			return nil, fmt.Errorf("toolchain file: %s pipeline needs upload and preview commands", p)
		}
		tc.Publish[p] = pl
	}
	return tc, nil
}

// Command renders s into a command run in dir.
func (s Step) Command(dir string, data StepData) (Command, error) {
	words, err := shellquote.Split(s.Run)
	if err != nil {
		return Command{}, fmt.Errorf("splitting %q: %w", s.Run, err)
	}
	if len(words) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	for i, w := range words {
		if words[i], err = expand(w, data); err != nil {
			return Command{}, err
		}
	}
	env := make([]string, len(s.Env))
	for i, e := range s.Env {
		if env[i], err = expand(e, data); err != nil {
			return Command{}, err
		}
	}
	return Command{Name: words[0], Args: words[1:], Dir: dir, Env: env}, nil
}

// FailureIn returns the first failure marker contained in line.
func (s Step) FailureIn(line string) (string, bool) {
	for _, m := range s.FailureMarkers {
		if m != "" && strings.Contains(line, m) {
			return m, true
		}
	}
	return "", false
}

func expand(word string, data StepData) (string, error) {
	if !strings.Contains(word, "{{") {
		return word, nil
	}
	tmpl, err := template.New("arg").Option("missingkey=error").Parse(word)
	if err != nil {
		return "", fmt.Errorf("parsing template %q: %w", word, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("expanding %q: %w", word, err)
	}
	return buf.String(), nil
}
