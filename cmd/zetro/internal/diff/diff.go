// Package diff implements the zetro diff command: compare two schema
// revisions and report wire-compatibility.
package diff

import (
	"fmt"

	"github.com/jnsquire/zetro/cmd/zetro/internal/source"
	"github.com/jnsquire/zetro/compiler"
	"github.com/jnsquire/zetro/manifest"
)

type Cmd struct {
	Prev   string `arg:"" help:"Previous revision (schema or manifest)." type:"existingfile"`
	Next   string `arg:"" help:"Next revision (schema or manifest)." type:"existingfile"`
	Mangle bool   `help:"Mangle route names when compiling schema inputs."`
}

func (c *Cmd) Run() error {
	var opts []compiler.Option
	if c.Mangle {
		opts = append(opts, compiler.WithMangledNames())
	}
	prev, err := source.Load(c.Prev, opts...)
	if err != nil {
		return err
	}
	next, err := source.Load(c.Next, opts...)
	if err != nil {
		return err
	}
	d := manifest.Compare(prev, next)
	if d.Empty() {
		fmt.Println("✓ no wire changes")
		return nil
	}
	fmt.Println(d)
	if breaking := d.Breaking(); len(breaking) > 0 {
		return fmt.Errorf("%d breaking change(s)", len(breaking))
	}
	fmt.Println("✓ changes are wire-compatible")
	return nil
}
