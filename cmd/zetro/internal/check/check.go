// Package check implements the zetro check command: validate that a schema
// document compiles, and optionally that it stays wire-compatible with a
// deployed revision.
package check

import (
	"fmt"

	"github.com/jnsquire/zetro/cmd/zetro/internal/source"
	"github.com/jnsquire/zetro/compiler"
	"github.com/jnsquire/zetro/manifest"
)

type Cmd struct {
	Schema  string `arg:"" help:"Schema document to validate." type:"existingfile"`
	Against string `help:"Deployed revision (schema or manifest) to compare with." type:"existingfile"`
	Mangle  bool   `help:"Replace route names with keyed digests on the wire."`
}

func (c *Cmd) Run() error {
	var opts []compiler.Option
	if c.Mangle {
		opts = append(opts, compiler.WithMangledNames())
	}
	art, err := compiler.CompileFile(c.Schema, opts...)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s compiles: %d structs, %d enums, %d routes\n",
		c.Schema, len(art.Layout.Structs), len(art.Layout.Enums), len(art.Table.Routes))
	fmt.Printf("  fingerprint %s\n", art.Fingerprint())

	if c.Against == "" {
		return nil
	}
	prev, err := source.Load(c.Against, opts...)
	if err != nil {
		return err
	}
	diff := manifest.Compare(prev, manifest.New(art.Table))
	if diff.Empty() {
		fmt.Println("✓ wire contract unchanged")
		return nil
	}
	fmt.Println(diff)
	if breaking := diff.Breaking(); len(breaking) > 0 {
		return fmt.Errorf("%d breaking change(s) against %s", len(breaking), c.Against)
	}
	fmt.Println("✓ changes are wire-compatible")
	return nil
}
