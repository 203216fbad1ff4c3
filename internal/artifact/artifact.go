// Package artifact generates the per-build configuration modules of the
// mini-app workspace and patches the shared files that reference them.
package artifact

import (
	"fmt"
	"path"
)

// Type identifies one generated artifact.
type Type string

const (
	TypeBase       Type = "base"
	TypeAd         Type = "ad"
	TypePay        Type = "pay"
	TypeDelivery   Type = "delivery"
	TypeCommon     Type = "common"
	TypeUI         Type = "ui"
	TypeManifest   Type = "manifest"
	TypeDispatcher Type = "dispatcher"
)

// Sequence is the order in which a provisioning run generates artifacts. The
// dispatcher comes last because it imports the modules written before it.
var Sequence = []Type{
	TypeBase,
	TypeAd,
	TypePay,
	TypeDelivery,
	TypeCommon,
	TypeUI,
	TypeManifest,
	TypeDispatcher,
}

// Workspace-relative locations of the shared files.
const (
	ConfigDir       = "config"
	DispatcherPath  = "config/index.js"
	DispatcherState = "config/dispatch.yaml"
	ManifestPath    = "manifest.json"
	StylesheetPath  = "uni.scss"
)

// ModulePath returns the generated module path for (t, build), e.g.
// config/base/nova.js.
func ModulePath(t Type, build string) (string, error) {
	switch t {
	case TypeBase, TypeAd, TypePay, TypeDelivery, TypeCommon, TypeUI:
		return path.Join(ConfigDir, string(t), build+".js"), nil
	}
	return "", fmt.Errorf("artifact type %q has no per-build module", t)
}
