// Package names holds identifier-case helpers shared by the codec and the
// schema compiler.
package names

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// LowerCamel converts an exported Go identifier to its lowerCamel wire form.
// Leading initialisms are lowered as a unit: "ID" -> "id", "URLPath" ->
// "urlPath", "RoomID" -> "roomID".
func LowerCamel(s string) string {
	if s == "" {
		return s
	}

	// Length in bytes of the leading uppercase run.
	run := 0
	for _, r := range s {
		if !unicode.IsUpper(r) {
			break
		}
		run += utf8.RuneLen(r)
	}
	if run == 0 {
		return s
	}

	// In "URLPath" the run is "URLP" but the final "P" starts the next word
	// and must stay upper. A run of one rune ("RoomID") is lowered whole.
	if run < len(s) {
		next, _ := utf8.DecodeRuneInString(s[run:])
		if unicode.IsLower(next) {
			_, last := utf8.DecodeLastRuneInString(s[:run])
			if run > last {
				run -= last
			}
		}
	}
	return strings.ToLower(s[:run]) + s[run:]
}

// Nested returns the synthetic name for a struct declared inline as a field
// value: the parent name and field name joined by an underscore.
func Nested(parent, field string) string {
	return parent + "_" + field
}
