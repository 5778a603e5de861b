// Package compile implements the zetro compile command: schema document in,
// manifest out, optionally watching the document for changes.
package compile

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/jnsquire/zetro/compiler"
	"github.com/jnsquire/zetro/manifest"
)

type Cmd struct {
	Schema string `arg:"" help:"Schema document (JSON, JSONC, or YAML)." type:"existingfile"`
	Out    string `help:"Manifest output path (default: <schema>.manifest.json)." short:"o"`
	Mangle bool   `help:"Replace route names with keyed digests on the wire."`
	Watch  bool   `help:"Recompile whenever the schema changes." short:"w"`
}

func (c *Cmd) Run() error {
	out := c.Out
	if out == "" {
		out = strings.TrimSuffix(c.Schema, filepath.Ext(c.Schema)) + ".manifest.json"
	}
	err := c.compileOnce(out)
	if !c.Watch {
		return err
	}
	if err != nil {
		// In watch mode a broken schema is a state to recover from, not a
		// reason to exit.
		slog.Error("compile failed", "schema", c.Schema, "error", err)
	}
	return c.watch(out)
}

func (c *Cmd) options() []compiler.Option {
	var opts []compiler.Option
	if c.Mangle {
		opts = append(opts, compiler.WithMangledNames())
	}
	return opts
}

func (c *Cmd) compileOnce(out string) error {
	art, err := compiler.CompileFile(c.Schema, c.options()...)
	if err != nil {
		return err
	}
	if err := manifest.WriteFile(out, manifest.New(art.Table)); err != nil {
		return err
	}
	fmt.Printf("✓ %s: %d structs, %d enums, %d routes -> %s\n",
		c.Schema, len(art.Layout.Structs), len(art.Layout.Enums), len(art.Table.Routes), out)
	fmt.Printf("  fingerprint %s\n", art.Fingerprint())
	return nil
}

// watch recompiles on every write to the schema file. The parent directory
// is watched rather than the file itself so editors that replace the file
// (write to temp, rename over) keep triggering events.
func (c *Cmd) watch(out string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(c.Schema)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	slog.Info("watching schema", "path", c.Schema)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	base := filepath.Base(c.Schema)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.compileOnce(out); err != nil {
				slog.Error("compile failed", "schema", c.Schema, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watcher error", "error", err)
		case <-sig:
			slog.Info("stopping watch")
			return nil
		}
	}
}
