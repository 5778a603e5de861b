package compiler

import "github.com/jnsquire/zetro"

// Canonicalize freezes a resolved schema into its canonical layout. It is
// total: every schema that resolves has exactly one layout, determined by
// declaration order alone. No sorting, no renumbering; the document is
// the order.
//
// Two invocations over schemas compiled from byte-identical documents
// yield layouts with equal fingerprints.
func Canonicalize(s *Schema) *zetro.Layout {
	return zetro.NewLayout(s.Structs, s.Enums)
}
