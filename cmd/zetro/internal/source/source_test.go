package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jnsquire/zetro/compiler"
	"github.com/jnsquire/zetro/idl"
	"github.com/jnsquire/zetro/manifest"
)

const schemaSrc = `{
	// One route is enough to give the manifest a shape.
	"routes": {
		"Ping": {"kind": "query", "request": "u8", "response": "u8"},
	},
}`

func write(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSchema(t *testing.T) {
	path := write(t, "api.jsonc", []byte(schemaSrc))
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Routes) != 1 || m.Routes[0].Name != "Ping" {
		t.Errorf("routes = %+v, want [Ping]", m.Routes)
	}
}

func TestLoadManifest(t *testing.T) {
	doc, err := idl.Parse([]byte(schemaSrc))
	if err != nil {
		t.Fatal(err)
	}
	art, err := compiler.Compile(doc, compiler.WithMangledNames())
	if err != nil {
		t.Fatal(err)
	}
	want := manifest.New(art.Table)
	data, err := want.Encode()
	if err != nil {
		t.Fatal(err)
	}

	path := write(t, "api.manifest.json", data)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// The manifest path must preserve stored wire names rather than
	// recompile them away.
	if got.Routes[0].WireName != want.Routes[0].WireName {
		t.Errorf("wire name = %q, want %q", got.Routes[0].WireName, want.Routes[0].WireName)
	}
	if got.Fingerprint != want.Fingerprint {
		t.Errorf("fingerprint = %q, want %q", got.Fingerprint, want.Fingerprint)
	}
}

func TestLoadMangledSchema(t *testing.T) {
	path := write(t, "api.jsonc", []byte(schemaSrc))
	plain, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	mangled, err := Load(path, compiler.WithMangledNames())
	if err != nil {
		t.Fatal(err)
	}
	if plain.Routes[0].WireName == mangled.Routes[0].WireName {
		t.Error("mangle option had no effect on the schema path")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("Load(absent) succeeded, want error")
	}
	bad := write(t, "bad.jsonc", []byte(`{"structs": {"A": {"fields": {"x": "struct~Nope"}}}}`))
	if _, err := Load(bad); err == nil {
		t.Error("Load(unresolvable schema) succeeded, want error")
	}
	future := write(t, "future.manifest.json", []byte(`{"formatVersion": 99}`))
	if _, err := Load(future); err == nil {
		t.Error("Load(future manifest) succeeded, want error")
	}
}
