package idl

import (
	"fmt"
	"strings"
)

// BaseType is the unwrapped kind of a type expression.
type BaseType uint8

const (
	BaseInvalid BaseType = iota
	BaseU8
	BaseI8
	BaseU16
	BaseI16
	BaseU32
	BaseI32
	BaseU64
	BaseI64
	BaseF32
	BaseF64
	BaseBool
	BaseString
	BaseStruct
	BaseEnum
)

var baseTokens = map[string]BaseType{
	"u8":     BaseU8,
	"i8":     BaseI8,
	"u16":    BaseU16,
	"i16":    BaseI16,
	"u32":    BaseU32,
	"i32":    BaseI32,
	"u64":    BaseU64,
	"i64":    BaseI64,
	"f32":    BaseF32,
	"f64":    BaseF64,
	"bool":   BaseBool,
	"string": BaseString,
}

var baseNames = func() map[BaseType]string {
	m := make(map[BaseType]string, len(baseTokens))
	for tok, b := range baseTokens {
		m[b] = tok
	}
	return m
}()

// Token returns the schema token for a scalar base type, or "struct",
// "enum", "invalid" for the non-scalar kinds.
func (b BaseType) Token() string {
	if tok, ok := baseNames[b]; ok {
		return tok
	}
	switch b {
	case BaseStruct:
		return "struct"
	case BaseEnum:
		return "enum"
	}
	return "invalid"
}

// Scalar reports whether b is one of the primitive types.
func (b BaseType) Scalar() bool {
	_, ok := baseNames[b]
	return ok
}

// TypeExpr is a parsed type expression from the schema grammar
//
//	["?"]["[]"](scalar | "struct~"Name | "enum~"Name)
//
// The optional marker applies to the whole expression: ?[]T is an
// optional array of T, not an array of optional T.
type TypeExpr struct {
	Optional bool
	Multiple bool
	Base     BaseType
	Ref      string // referenced type name when Base is BaseStruct or BaseEnum
}

// ParseType parses a bare type expression. It does not accept a trailing
// field description; callers that allow one must split it off first.
func ParseType(s string) (TypeExpr, error) {
	var expr TypeExpr
	rest := s
	if after, ok := strings.CutPrefix(rest, "?"); ok {
		expr.Optional = true
		rest = after
	}
	if after, ok := strings.CutPrefix(rest, "[]"); ok {
		expr.Multiple = true
		rest = after
	}
	if b, ok := baseTokens[rest]; ok {
		expr.Base = b
		return expr, nil
	}
	if name, ok := strings.CutPrefix(rest, "struct~"); ok {
		if name == "" {
			return TypeExpr{}, fmt.Errorf("missing struct name after %q in %q", "struct~", s)
		}
		expr.Base = BaseStruct
		expr.Ref = name
		return expr, nil
	}
	if name, ok := strings.CutPrefix(rest, "enum~"); ok {
		if name == "" {
			return TypeExpr{}, fmt.Errorf("missing enum name after %q in %q", "enum~", s)
		}
		expr.Base = BaseEnum
		expr.Ref = name
		return expr, nil
	}
	return TypeExpr{}, fmt.Errorf("unknown type %q", s)
}

// String renders the expression back in schema grammar form.
func (e TypeExpr) String() string {
	var sb strings.Builder
	if e.Optional {
		sb.WriteByte('?')
	}
	if e.Multiple {
		sb.WriteString("[]")
	}
	switch e.Base {
	case BaseStruct:
		sb.WriteString("struct~")
		sb.WriteString(e.Ref)
	case BaseEnum:
		sb.WriteString("enum~")
		sb.WriteString(e.Ref)
	default:
		sb.WriteString(e.Base.Token())
	}
	return sb.String()
}
