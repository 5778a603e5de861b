package manifest

import (
	"fmt"
	"strings"
)

// ChangeKind classifies one difference between two manifests.
type ChangeKind uint8

const (
	ChangeAdded ChangeKind = iota + 1
	ChangeRemoved
	ChangeModified
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeModified:
		return "modified"
	default:
		return "unknown"
	}
}

// Change is one difference between two manifests. Breaking means a peer
// compiled against one side cannot safely exchange payloads with a peer
// compiled against the other: positions shift, discriminants renumber, or
// a wire identifier disappears.
type Change struct {
	Kind     ChangeKind
	Breaking bool
	Path     string // e.g. "structs.Chatroom.fields[2]"
	Detail   string
}

func (c Change) String() string {
	mark := ' '
	if c.Breaking {
		mark = '!'
	}
	return fmt.Sprintf("%c %-8s %s: %s", mark, c.Kind, c.Path, c.Detail)
}

// Diff is the ordered set of differences between two manifests.
// Documentation-only edits never appear; they do not touch the wire.
type Diff struct {
	Changes []Change
}

// Empty reports whether the manifests describe the same wire contract,
// fingerprint inputs included.
func (d *Diff) Empty() bool { return len(d.Changes) == 0 }

// Breaking returns only the wire-breaking changes.
func (d *Diff) Breaking() []Change {
	var out []Change
	for _, c := range d.Changes {
		if c.Breaking {
			out = append(out, c)
		}
	}
	return out
}

func (d *Diff) String() string {
	lines := make([]string, 0, len(d.Changes))
	for _, c := range d.Changes {
		lines = append(lines, c.String())
	}
	return strings.Join(lines, "\n")
}

func (d *Diff) add(kind ChangeKind, breaking bool, path, format string, args ...any) {
	d.Changes = append(d.Changes, Change{
		Kind:     kind,
		Breaking: breaking,
		Path:     path,
		Detail:   fmt.Sprintf(format, args...),
	})
}

// Compare diffs the wire contract of next against prev. The comparison is
// structural and positional: a field is the same field only if it sits at
// the same position with the same type, and an enum may only grow by
// appending variants.
func Compare(prev, next *Manifest) *Diff {
	d := &Diff{}
	compareStructs(d, prev.Structs, next.Structs)
	compareEnums(d, prev.Enums, next.Enums)
	compareRoutes(d, prev.Routes, next.Routes)
	return d
}

func compareStructs(d *Diff, prev, next []Struct) {
	nextByName := make(map[string]*Struct, len(next))
	for i := range next {
		nextByName[next[i].Name] = &next[i]
	}
	prevNames := make(map[string]bool, len(prev))

	for _, p := range prev {
		prevNames[p.Name] = true
		path := "structs." + p.Name
		n, ok := nextByName[p.Name]
		if !ok {
			d.add(ChangeRemoved, true, path, "struct removed")
			continue
		}
		compareFields(d, path, p.Fields, n.Fields)
	}
	for _, n := range next {
		if !prevNames[n.Name] {
			d.add(ChangeAdded, false, "structs."+n.Name, "struct added")
		}
	}
	if orderChanged(structNames(prev), structNames(next)) {
		d.add(ChangeModified, false, "structs",
			"declaration order changed; fingerprints differ but payloads stay compatible")
	}
}

func compareFields(d *Diff, path string, prev, next []Field) {
	common := min(len(prev), len(next))
	for i := 0; i < common; i++ {
		p, n := prev[i], next[i]
		fpath := fmt.Sprintf("%s.fields[%d]", path, i)
		switch {
		case p.Type != n.Type:
			d.add(ChangeModified, true, fpath,
				"type changed from %s to %s at wire position %d", p.Type, n.Type, i)
		case p.Name != n.Name:
			d.add(ChangeModified, false, fpath,
				"renamed %s to %s; wire position and type unchanged", p.Name, n.Name)
		}
	}
	if len(prev) != len(next) {
		// Decoders check arity exactly, so growing or shrinking a struct
		// breaks both directions.
		d.add(ChangeModified, true, path,
			"field count changed from %d to %d", len(prev), len(next))
	}
}

func compareEnums(d *Diff, prev, next []Enum) {
	nextByName := make(map[string]*Enum, len(next))
	for i := range next {
		nextByName[next[i].Name] = &next[i]
	}
	prevNames := make(map[string]bool, len(prev))

	for _, p := range prev {
		prevNames[p.Name] = true
		path := "enums." + p.Name
		n, ok := nextByName[p.Name]
		if !ok {
			d.add(ChangeRemoved, true, path, "enum removed")
			continue
		}
		compareVariants(d, path, p.Variants, n.Variants)
	}
	for _, n := range next {
		if !prevNames[n.Name] {
			d.add(ChangeAdded, false, "enums."+n.Name, "enum added")
		}
	}
	if orderChanged(enumNames(prev), enumNames(next)) {
		d.add(ChangeModified, false, "enums",
			"declaration order changed; fingerprints differ but payloads stay compatible")
	}
}

func compareVariants(d *Diff, path string, prev, next []string) {
	// Appending is the only compatible growth: discriminants are indexes.
	if len(next) >= len(prev) {
		for i, v := range prev {
			if next[i] != v {
				d.add(ChangeModified, true, path,
					"variant %d changed from %s to %s; discriminants renumber", i, v, next[i])
				return
			}
		}
		if len(next) > len(prev) {
			d.add(ChangeModified, false, path,
				"appended variants %v", next[len(prev):])
		}
		return
	}
	d.add(ChangeModified, true, path,
		"variant count changed from %d to %d; removal renumbers discriminants", len(prev), len(next))
}

func compareRoutes(d *Diff, prev, next []Route) {
	nextByName := make(map[string]*Route, len(next))
	for i := range next {
		nextByName[next[i].Name] = &next[i]
	}
	prevNames := make(map[string]bool, len(prev))

	for _, p := range prev {
		prevNames[p.Name] = true
		path := "routes." + p.Name
		n, ok := nextByName[p.Name]
		if !ok {
			d.add(ChangeRemoved, true, path, "route removed")
			continue
		}
		if p.Kind != n.Kind {
			d.add(ChangeModified, true, path+".kind",
				"kind changed from %s to %s; method code and retry semantics differ", p.Kind, n.Kind)
		}
		if p.WireName != n.WireName {
			d.add(ChangeModified, true, path+".wireName",
				"wire name changed from %s to %s", p.WireName, n.WireName)
		}
		if p.Request != n.Request {
			d.add(ChangeModified, true, path+".request",
				"request type changed from %s to %s", p.Request, n.Request)
		}
		if p.Response != n.Response {
			d.add(ChangeModified, true, path+".response",
				"response type changed from %s to %s", p.Response, n.Response)
		}
	}
	for _, n := range next {
		if !prevNames[n.Name] {
			d.add(ChangeAdded, false, "routes."+n.Name, "route added")
		}
	}
}

func structNames(s []Struct) []string {
	names := make([]string, len(s))
	for i := range s {
		names[i] = s[i].Name
	}
	return names
}

func enumNames(e []Enum) []string {
	names := make([]string, len(e))
	for i := range e {
		names[i] = e[i].Name
	}
	return names
}

// orderChanged reports whether the names common to both sides appear in a
// different relative order.
func orderChanged(prev, next []string) bool {
	nextSet := make(map[string]bool, len(next))
	for _, n := range next {
		nextSet[n] = true
	}
	var kept []string
	for _, p := range prev {
		if nextSet[p] {
			kept = append(kept, p)
		}
	}
	prevSet := make(map[string]bool, len(prev))
	for _, p := range prev {
		prevSet[p] = true
	}
	i := 0
	for _, n := range next {
		if !prevSet[n] {
			continue
		}
		if kept[i] != n {
			return true
		}
		i++
	}
	return false
}
