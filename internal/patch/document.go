package patch

import (
	"bytes"

	"github.com/edvin/miniforge/internal/model"
)

// NewPlatformDocument returns a document with every platform key mapped to an
// empty object.
func NewPlatformDocument() *Object {
	doc := NewObject()
	for _, p := range model.Platforms {
		doc.Set(string(p), NewObject())
	}
	return doc
}

// MergePlatform replaces the entry for p with entry. Sibling entries are left
// untouched; platform keys missing from doc are added as empty objects so the
// document always carries all four.
func MergePlatform(doc *Object, p model.Platform, entry *Object) {
	for _, known := range model.Platforms {
		if _, ok := doc.Get(string(known)); !ok {
			doc.Set(string(known), NewObject())
		}
	}
	if entry == nil {
		entry = NewObject()
	}
	doc.Set(string(p), entry)
}

// PatchModule merges entry into the generated module src for platform p and
// returns the re-rendered module. An empty src yields a fresh skeleton.
func PatchModule(src []byte, p model.Platform, entry *Object) ([]byte, error) {
	doc := NewPlatformDocument()
	if len(bytes.TrimSpace(src)) > 0 {
		parsed, err := Parse(src)
		if err != nil {
			return nil, err
		}
		doc = parsed
	}
	MergePlatform(doc, p, entry)
	return Render(doc, ModuleStyle), nil
}
