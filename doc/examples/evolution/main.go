// Package evolution provides example code for schema evolution documentation.
package evolution

import (
	"fmt"
	"log"

	"github.com/jnsquire/zetro/compiler"
	"github.com/jnsquire/zetro/manifest"
)

func exampleSnapshot() {
	art, _ := compiler.CompileFile("schema.jsonc")
	// [snippet:snapshot]
	if err := manifest.WriteFile("schema.manifest.json", manifest.New(art.Table)); err != nil {
		log.Fatal(err)
	}
	// [/snippet:snapshot]
}

func exampleDiff() {
	art, _ := compiler.CompileFile("schema.jsonc")
	// [snippet:diff]
	prev, err := manifest.ReadFile("schema.manifest.json")
	if err != nil {
		log.Fatal(err)
	}

	diff := manifest.Compare(prev, manifest.New(art.Table))
	if breaking := diff.Breaking(); len(breaking) > 0 {
		for _, c := range breaking {
			fmt.Println(c)
		}
		log.Fatal("schema change breaks the wire contract")
	}
	// [/snippet:diff]
}

func exampleFingerprint() {
	// [snippet:fingerprint]
	art, err := compiler.CompileFile("schema.jsonc")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(art.Fingerprint())
	// [/snippet:fingerprint]
}

// Keep imports used.
var (
	_ = exampleSnapshot
	_ = exampleDiff
	_ = exampleFingerprint
)
