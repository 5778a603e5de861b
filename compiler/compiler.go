// Package compiler lowers parsed schema documents into canonical layouts
// and dispatch tables.
//
// Compilation runs in three phases. Resolve links every type reference to
// its declaration, Canonicalize freezes declaration order into a
// zetro.Layout, and CompileRoutes assigns wire identifiers and builds the
// zetro.RouteTable. Compile runs all three and bundles the results.
package compiler

import (
	"fmt"

	"github.com/jnsquire/zetro"
	"github.com/jnsquire/zetro/idl"
)

// Option configures a compilation.
type Option func(*config)

type config struct {
	mangle bool
}

func newConfig(opts []Option) config {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithMangledNames replaces declared route names with keyed digests on the
// wire. Dispatch, logs, and errors keep the declared names.
func WithMangledNames() Option {
	return func(c *config) { c.mangle = true }
}

// Artifact bundles everything one compilation produces.
type Artifact struct {
	Schema *Schema
	Layout *zetro.Layout
	Table  *zetro.RouteTable
}

// Fingerprint returns the route table fingerprint, the value exchanged in
// the schema handshake.
func (a *Artifact) Fingerprint() zetro.Fingerprint {
	return a.Table.Fingerprint()
}

// Compile lowers a parsed document end to end.
func Compile(doc *idl.Document, opts ...Option) (*Artifact, error) {
	schema, err := Resolve(doc)
	if err != nil {
		return nil, err
	}
	layout := Canonicalize(schema)
	table, err := CompileRoutes(schema, layout, opts...)
	if err != nil {
		return nil, err
	}
	return &Artifact{Schema: schema, Layout: layout, Table: table}, nil
}

// CompileFile parses and compiles the schema document at path.
func CompileFile(path string, opts ...Option) (*Artifact, error) {
	doc, err := idl.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	return Compile(doc, opts...)
}
