package zetro

import (
	"encoding/json"
	"fmt"
)

// TypeKind discriminates a resolved type reference. Scalar kinds correspond
// one-to-one to the schema's scalar tokens.
type TypeKind uint8

const (
	TypeInvalid TypeKind = iota
	TypeU8
	TypeI8
	TypeU16
	TypeI16
	TypeU32
	TypeI32
	TypeU64
	TypeI64
	TypeF32
	TypeF64
	TypeBool
	TypeString
	TypeStruct
	TypeEnum
	TypeArray
	TypeOptional
)

var typeTokens = map[TypeKind]string{
	TypeU8:     "u8",
	TypeI8:     "i8",
	TypeU16:    "u16",
	TypeI16:    "i16",
	TypeU32:    "u32",
	TypeI32:    "i32",
	TypeU64:    "u64",
	TypeI64:    "i64",
	TypeF32:    "f32",
	TypeF64:    "f64",
	TypeBool:   "bool",
	TypeString: "string",
}

// IsScalar reports whether k is one of the scalar kinds.
func (k TypeKind) IsScalar() bool {
	_, ok := typeTokens[k]
	return ok
}

func (k TypeKind) String() string {
	if s, ok := typeTokens[k]; ok {
		return s
	}
	switch k {
	case TypeStruct:
		return "struct"
	case TypeEnum:
		return "enum"
	case TypeArray:
		return "array"
	case TypeOptional:
		return "optional"
	default:
		return "invalid"
	}
}

// TypeRef is a fully resolved type reference. Optional and Array kinds wrap
// an element reference; Struct and Enum kinds link directly to their layout,
// so a TypeRef is all a codec needs to bind against.
type TypeRef struct {
	Kind   TypeKind
	Elem   *TypeRef      // set for TypeArray and TypeOptional
	Struct *StructLayout // set for TypeStruct
	Enum   *EnumLayout   // set for TypeEnum
}

// String renders the reference in the schema mini-grammar, e.g.
// "?[]struct~Message".
func (t *TypeRef) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case TypeOptional:
		return "?" + t.Elem.String()
	case TypeArray:
		return "[]" + t.Elem.String()
	case TypeStruct:
		if t.Struct == nil {
			return "struct~?"
		}
		return "struct~" + t.Struct.Name
	case TypeEnum:
		if t.Enum == nil {
			return "enum~?"
		}
		return "enum~" + t.Enum.Name
	default:
		return t.Kind.String()
	}
}

// MarshalJSON emits the mini-grammar string form; layouts serialize with
// references by name, never by nesting, so recursive types stay finite.
func (t *TypeRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// FieldLayout is one positional slot of a struct layout. The slot's index in
// StructLayout.Fields is its wire position.
type FieldLayout struct {
	Name string   `json:"name"`
	Doc  string   `json:"doc,omitempty"`
	Type *TypeRef `json:"type"`
}

// StructLayout is the canonical, declaration-ordered field list for one
// struct. Field order is the single source of truth for the wire encoding;
// it always mirrors the schema document and is never sorted.
type StructLayout struct {
	Name   string        `json:"name"`
	Doc    string        `json:"doc,omitempty"`
	Fields []FieldLayout `json:"fields"`
}

// Field returns the layout of the named field and its position.
func (s *StructLayout) Field(name string) (FieldLayout, int, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return f, i, true
		}
	}
	return FieldLayout{}, -1, false
}

// EnumLayout is the canonical variant list for one enum. A variant's wire
// discriminant is its index; appending variants is the only wire-compatible
// way to grow an enum.
type EnumLayout struct {
	Name     string   `json:"name"`
	Doc      string   `json:"doc,omitempty"`
	Variants []string `json:"variants"`
}

// Discriminant returns the wire discriminant of the named variant.
func (e *EnumLayout) Discriminant(variant string) (int, bool) {
	for i, v := range e.Variants {
		if v == variant {
			return i, true
		}
	}
	return -1, false
}

// Layout is the compiled canonical layout of a schema document: every struct
// and enum in declaration order, annotated with resolved types. It is derived
// deterministically from the document and immutable afterwards; two layouts
// compiled from byte-identical documents are identical, fingerprints
// included.
type Layout struct {
	Structs []*StructLayout `json:"structs"`
	Enums   []*EnumLayout   `json:"enums"`

	structsByName map[string]*StructLayout
	enumsByName   map[string]*EnumLayout
}

// NewLayout assembles a Layout and its name indexes. Callers (normally the
// compiler) must not mutate the slices afterwards.
func NewLayout(structs []*StructLayout, enums []*EnumLayout) *Layout {
	l := &Layout{
		Structs:       structs,
		Enums:         enums,
		structsByName: make(map[string]*StructLayout, len(structs)),
		enumsByName:   make(map[string]*EnumLayout, len(enums)),
	}
	for _, s := range structs {
		l.structsByName[s.Name] = s
	}
	for _, e := range enums {
		l.enumsByName[e.Name] = e
	}
	return l
}

// Struct returns the named struct layout, or nil.
func (l *Layout) Struct(name string) *StructLayout {
	return l.structsByName[name]
}

// Enum returns the named enum layout, or nil.
func (l *Layout) Enum(name string) *EnumLayout {
	return l.enumsByName[name]
}

// StructRef returns a TypeRef for the named struct.
func (l *Layout) StructRef(name string) (*TypeRef, error) {
	s := l.Struct(name)
	if s == nil {
		return nil, fmt.Errorf("zetro: layout has no struct %q", name)
	}
	return &TypeRef{Kind: TypeStruct, Struct: s}, nil
}
