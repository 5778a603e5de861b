// Package manifest persists compiled schemas as versioned JSON artifacts
// and compares revisions for wire compatibility.
//
// A manifest is the canonical layout flattened to plain data: struct
// fields in wire order with mini-grammar type strings, enum variants in
// discriminant order, and routes with their wire names. Committing one
// next to the schema document gives reviewers a diffable record of the
// wire contract.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jnsquire/zetro"
	"github.com/jnsquire/zetro/idl"
)

// FormatVersion identifies the manifest JSON layout itself, not the schema
// it captures.
const FormatVersion = 1

// Manifest is a compiled schema snapshot. Slice order is wire order
// throughout.
type Manifest struct {
	FormatVersion int      `json:"formatVersion"`
	Fingerprint   string   `json:"fingerprint"`
	Structs       []Struct `json:"structs"`
	Enums         []Enum   `json:"enums,omitempty"`
	Routes        []Route  `json:"routes,omitempty"`
}

// Struct is one struct layout. The field at index i occupies wire
// position i.
type Struct struct {
	Name   string  `json:"name"`
	Doc    string  `json:"doc,omitempty"`
	Fields []Field `json:"fields"`
}

// Field is one positional slot. Type uses the schema mini-grammar,
// e.g. "?[]struct~Message".
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Doc  string `json:"doc,omitempty"`
}

// Enum is one enum layout. The variant at index i has discriminant i.
type Enum struct {
	Name     string   `json:"name"`
	Doc      string   `json:"doc,omitempty"`
	Variants []string `json:"variants"`
}

// Route is one compiled route binding.
type Route struct {
	Name     string `json:"name"`
	Doc      string `json:"doc,omitempty"`
	Kind     string `json:"kind"`
	WireName string `json:"wireName"`
	Request  string `json:"request"`
	Response string `json:"response"`
}

// New snapshots a compiled route table.
func New(table *zetro.RouteTable) *Manifest {
	m := &Manifest{
		FormatVersion: FormatVersion,
		Fingerprint:   table.Fingerprint().String(),
	}
	for _, s := range table.Layout.Structs {
		ms := Struct{Name: s.Name, Doc: s.Doc, Fields: make([]Field, 0, len(s.Fields))}
		for _, f := range s.Fields {
			ms.Fields = append(ms.Fields, Field{Name: f.Name, Type: f.Type.String(), Doc: f.Doc})
		}
		m.Structs = append(m.Structs, ms)
	}
	for _, e := range table.Layout.Enums {
		m.Enums = append(m.Enums, Enum{
			Name:     e.Name,
			Doc:      e.Doc,
			Variants: append([]string(nil), e.Variants...),
		})
	}
	for _, r := range table.Routes {
		m.Routes = append(m.Routes, Route{
			Name:     r.Name,
			Doc:      r.Doc,
			Kind:     r.Kind.String(),
			WireName: r.WireName,
			Request:  r.Request.String(),
			Response: r.Response.String(),
		})
	}
	return m
}

// Encode renders stable, indented JSON ending in a newline. Equal
// manifests encode to equal bytes, so the output diffs cleanly under
// version control.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "\t")
	if err != nil {
		return nil, fmt.Errorf("manifest: encode: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses manifest JSON produced by Encode.
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("manifest: unsupported format version %d", m.FormatVersion)
	}
	return &m, nil
}

// WriteFile encodes m to path.
func WriteFile(path string, m *Manifest) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("manifest: write %s: %w", path, err)
	}
	return nil
}

// ReadFile reads and decodes the manifest at path.
func ReadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Decode(data)
}

// Document reconstructs a schema document from the snapshot. Compiling it
// reproduces the captured layout; wire names are the compiler's to
// reassign, so a mangled manifest needs the same compiler option to match
// fingerprints.
func (m *Manifest) Document() (*idl.Document, error) {
	doc := &idl.Document{}
	for _, s := range m.Structs {
		decl := idl.StructDecl{Name: s.Name, Doc: s.Doc}
		for _, f := range s.Fields {
			expr, err := idl.ParseType(f.Type)
			if err != nil {
				return nil, fmt.Errorf("manifest: struct %s field %s: %w", s.Name, f.Name, err)
			}
			decl.Fields = append(decl.Fields, idl.FieldDecl{Name: f.Name, Doc: f.Doc, Type: expr})
		}
		doc.Structs = append(doc.Structs, decl)
	}
	for _, e := range m.Enums {
		doc.Enums = append(doc.Enums, idl.EnumDecl{
			Name:     e.Name,
			Doc:      e.Doc,
			Variants: append([]string(nil), e.Variants...),
		})
	}
	for _, r := range m.Routes {
		req, err := idl.ParseType(r.Request)
		if err != nil {
			return nil, fmt.Errorf("manifest: route %s request: %w", r.Name, err)
		}
		res, err := idl.ParseType(r.Response)
		if err != nil {
			return nil, fmt.Errorf("manifest: route %s response: %w", r.Name, err)
		}
		doc.Routes = append(doc.Routes, idl.RouteDecl{
			Name:     r.Name,
			Doc:      r.Doc,
			Kind:     idl.RouteKind(r.Kind),
			Request:  req,
			Response: res,
		})
	}
	return doc, nil
}
