// Package source loads schema revisions for the CLI. A revision can be a
// schema document (JSON, JSONC, or YAML) or a previously written manifest;
// either way the caller gets a manifest to compare or fingerprint.
package source

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jnsquire/zetro/compiler"
	"github.com/jnsquire/zetro/idl"
	"github.com/jnsquire/zetro/manifest"
)

// Load reads path as a manifest when it carries a formatVersion marker and
// compiles it as a schema document otherwise. Compiler options apply only
// to the schema path; manifests already carry their wire names.
func Load(path string, opts ...compiler.Option) (*manifest.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if isManifest(data) {
		m, err := manifest.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return m, nil
	}
	doc, err := idl.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	art, err := compiler.Compile(doc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return manifest.New(art.Table), nil
}

// isManifest sniffs for the formatVersion marker. Schema documents never
// define it, and manifests are plain JSON, so a clean unmarshal with a
// nonzero version is decisive.
func isManifest(data []byte) bool {
	var probe struct {
		FormatVersion int `json:"formatVersion"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.FormatVersion != 0
}
