package patch

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// DispatchPoint names one lookup function of the shared dispatcher module.
type DispatchPoint string

const (
	PointBase     DispatchPoint = "base"
	PointAd       DispatchPoint = "ad"
	PointPay      DispatchPoint = "pay"
	PointDelivery DispatchPoint = "delivery"
	PointCommon   DispatchPoint = "common"
)

// DispatchPoints lists the points in render order.
var DispatchPoints = []DispatchPoint{PointBase, PointAd, PointPay, PointDelivery, PointCommon}

// Function returns the exported lookup function name, e.g. getBaseConfig.
func (p DispatchPoint) Function() string {
	return "get" + pascal(string(p)) + "Config"
}

// Binding returns the import binding for build's module at this point,
// e.g. baseNova for build "nova". Distinct build codes yield distinct
// bindings.
func (p DispatchPoint) Binding(build string) string {
	return string(p) + pascal(build)
}

// Module returns the path build's module is imported from at this point.
// Modules live next to the dispatcher in config/<point>/<build>.js.
func (p DispatchPoint) Module(build string) string {
	return fmt.Sprintf("./%s/%s.js", p, build)
}

// ImportLine returns the import statement for build's module at this point.
func (p DispatchPoint) ImportLine(build string) string {
	return fmt.Sprintf("import %s from '%s'", p.Binding(build), p.Module(build))
}

// ErrBindingConflict is returned when a binding is already imported from a
// different module.
var ErrBindingConflict = errors.New("dispatcher binding already imported from another module")

var importRegex = regexp.MustCompile(`^\s*import\s+([A-Za-z_$][\w$]*)\s+from\s+(['"])(.+?)['"]`)

// parseImport returns the binding and module of a default import line.
func parseImport(line string) (binding, module string, ok bool) {
	m := importRegex.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return m[1], m[3], true
}

// DispatchCase routes one build code to an imported binding.
type DispatchCase struct {
	Build   string `yaml:"build"`
	Binding string `yaml:"binding"`
}

// Dispatcher is the document model behind config/index.js. It is persisted
// as YAML next to the rendered module and is the only thing that is ever
// edited; the JavaScript is always rendered from it.
type Dispatcher struct {
	Imports []string                         `yaml:"imports"`
	Cases   map[DispatchPoint][]DispatchCase `yaml:"cases"`
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{Cases: make(map[DispatchPoint][]DispatchCase)}
}

// LoadDispatcher decodes a persisted dispatcher. Empty input yields an empty
// dispatcher.
func LoadDispatcher(data []byte) (*Dispatcher, error) {
	d := NewDispatcher()
	if len(bytes.TrimSpace(data)) == 0 {
		return d, nil
	}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("decoding dispatcher: %w", err)
	}
	if d.Cases == nil {
		d.Cases = make(map[DispatchPoint][]DispatchCase)
	}
	return d, nil
}

var (
	functionRegex = regexp.MustCompile(`^\s*export\s+function\s+(\w+)\s*\(`)
	caseRegex     = regexp.MustCompile(`^\s*case\s+['"]([^'"]+)['"]\s*:`)
	assignRegex   = regexp.MustCompile(`^\s*config\s*=\s*([A-Za-z_$][\w$]*)`)
)

// ParseDispatcherModule rebuilds a dispatcher from an existing rendered or
// hand-written config/index.js. Import lines are kept verbatim; cases are
// read from the switch of each known lookup function. Lines it does not
// recognise, default branches included, are ignored.
func ParseDispatcherModule(src []byte) *Dispatcher {
	points := make(map[string]DispatchPoint, len(DispatchPoints))
	for _, p := range DispatchPoints {
		points[p.Function()] = p
	}

	d := NewDispatcher()
	var (
		point   DispatchPoint
		inPoint bool
		pending []string
	)
	for _, line := range strings.Split(string(src), "\n") {
		if _, _, ok := parseImport(line); ok {
			d.AddImport(strings.TrimSpace(line))
			continue
		}
		if m := functionRegex.FindStringSubmatch(line); m != nil {
			point, inPoint = points[m[1]]
			pending = nil
			continue
		}
		if !inPoint {
			continue
		}
		if m := caseRegex.FindStringSubmatch(line); m != nil {
			pending = append(pending, m[1])
			line = line[len(m[0]):]
		}
		if m := assignRegex.FindStringSubmatch(line); m != nil {
			for _, build := range pending {
				d.AddCase(point, build, m[1])
			}
			pending = nil
		}
	}
	return d
}

// Marshal encodes the dispatcher for persistence.
func (d *Dispatcher) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding dispatcher: %w", err)
	}
	return out, nil
}

// AddImport appends line unless an identical line is already present.
func (d *Dispatcher) AddImport(line string) bool {
	for _, existing := range d.Imports {
		if existing == line {
			return false
		}
	}
	d.Imports = append(d.Imports, line)
	return true
}

// HasCase reports whether point already routes build.
func (d *Dispatcher) HasCase(point DispatchPoint, build string) bool {
	for _, c := range d.Cases[point] {
		if c.Build == build {
			return true
		}
	}
	return false
}

// AddCase appends a case for build to point unless one exists.
func (d *Dispatcher) AddCase(point DispatchPoint, build, binding string) bool {
	if d.HasCase(point, build) {
		return false
	}
	d.Cases[point] = append(d.Cases[point], DispatchCase{Build: build, Binding: binding})
	return true
}

// Register wires build's module into point. It reports whether anything
// changed; registering the same pair twice is a no-op. It fails without
// changing d when the binding is already taken by another module.
func (d *Dispatcher) Register(point DispatchPoint, build string) (bool, error) {
	binding, module := point.Binding(build), point.Module(build)
	for _, line := range d.Imports {
		b, m, ok := parseImport(line)
		if ok && b == binding && m != module {
			return false, fmt.Errorf("%w: %s from %s, wanted %s", ErrBindingConflict, binding, m, module)
		}
	}
	imported := d.AddImport(point.ImportLine(build))
	cased := d.AddCase(point, build, binding)
	return imported || cased, nil
}

// Render produces the dispatcher module. Output depends only on the
// dispatcher's content.
func (d *Dispatcher) Render() []byte {
	var b strings.Builder
	b.WriteString("// Code generated by miniforge. DO NOT EDIT.\n")
	for _, line := range d.Imports {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	for _, point := range DispatchPoints {
		b.WriteByte('\n')
		fmt.Fprintf(&b, "export function %s(buildCode, platform) {\n", point.Function())
		b.WriteString("  let config = {}\n")
		b.WriteString("  switch (buildCode) {\n")
		for _, c := range d.Cases[point] {
			fmt.Fprintf(&b, "    case '%s':\n", c.Build)
			fmt.Fprintf(&b, "      config = %s\n", c.Binding)
			b.WriteString("      break\n")
		}
		b.WriteString("  }\n")
		b.WriteString("  return config[platform] || {}\n")
		b.WriteString("}\n")
	}
	return []byte(b.String())
}

// pascal turns a build code into an identifier suffix: the first letter is
// upper-cased, '-' becomes '$' and underscores are kept, so "nova-2_cn"
// becomes "Nova$2_cn". Other runes become "$$" and are caught by Register's
// conflict check if they ever collide.
func pascal(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case i == 0 && unicode.IsLetter(r):
			b.WriteRune(unicode.ToUpper(r))
		case r == '-':
			b.WriteByte('$')
		case r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		default:
			b.WriteString("$$")
		}
	}
	return b.String()
}
