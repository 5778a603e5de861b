package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/jnsquire/zetro/cmd/zetro/internal/check"
	"github.com/jnsquire/zetro/cmd/zetro/internal/compile"
	"github.com/jnsquire/zetro/cmd/zetro/internal/diff"
	"github.com/jnsquire/zetro/cmd/zetro/internal/source"
	"github.com/jnsquire/zetro/compiler"
)

type CLI struct {
	Version     VersionCmd     `cmd:"" help:"Print version information."`
	Compile     compile.Cmd    `cmd:"" help:"Compile a schema document into a manifest."`
	Check       check.Cmd      `cmd:"" help:"Validate a schema, optionally against a deployed revision."`
	Diff        diff.Cmd       `cmd:"" help:"Compare two schema revisions for wire compatibility."`
	Fingerprint FingerprintCmd `cmd:"" help:"Print the fingerprint of a schema or manifest."`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(Version())
	return nil
}

type FingerprintCmd struct {
	Input  string `arg:"" help:"Schema or manifest file." type:"existingfile"`
	Mangle bool   `help:"Mangle route names when compiling a schema input."`
}

func (c *FingerprintCmd) Run() error {
	var opts []compiler.Option
	if c.Mangle {
		opts = append(opts, compiler.WithMangledNames())
	}
	m, err := source.Load(c.Input, opts...)
	if err != nil {
		return err
	}
	fmt.Println(m.Fingerprint)
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("zetro"),
		kong.Description("Zetro schema compiler and wire-compatibility tools."),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
