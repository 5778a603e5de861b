// Package idl defines the schema document model and its parser.
//
// A schema document declares structs, enums, and routes. The parser is
// purely syntactic: it preserves declaration order, hoists inline object
// fields into synthetic structs, and validates shape, but it does not
// resolve type references. Resolution and layout derivation belong to the
// compiler package.
package idl

// Document is a parsed schema document. Declarations appear in the order
// they were written; that order is load-bearing because the wire format
// is positional.
type Document struct {
	Structs []StructDecl
	Enums   []EnumDecl
	Routes  []RouteDecl
}

// Struct returns the struct declared with the given name.
func (d *Document) Struct(name string) (StructDecl, bool) {
	for _, s := range d.Structs {
		if s.Name == name {
			return s, true
		}
	}
	return StructDecl{}, false
}

// Enum returns the enum declared with the given name.
func (d *Document) Enum(name string) (EnumDecl, bool) {
	for _, e := range d.Enums {
		if e.Name == name {
			return e, true
		}
	}
	return EnumDecl{}, false
}

// Route returns the route declared with the given name.
func (d *Document) Route(name string) (RouteDecl, bool) {
	for _, r := range d.Routes {
		if r.Name == name {
			return r, true
		}
	}
	return RouteDecl{}, false
}

// StructDecl is a named sequence of fields.
type StructDecl struct {
	Name   string
	Doc    string
	Fields []FieldDecl

	// Hoisted is set on synthetic structs created from inline object
	// fields. They behave like ordinary structs everywhere else.
	Hoisted bool
}

// FieldDecl is a single field of a struct. Position within the parent's
// Fields slice determines the field's wire position.
type FieldDecl struct {
	Name string
	Doc  string
	Type TypeExpr
}

// EnumDecl is a named, ordered list of variants. A variant's index is its
// wire discriminant.
type EnumDecl struct {
	Name     string
	Doc      string
	Variants []string
}

// RouteKind distinguishes queries from mutations.
type RouteKind string

const (
	KindQuery    RouteKind = "query"
	KindMutation RouteKind = "mutation"
)

// RouteDecl is a named operation with request and response types.
type RouteDecl struct {
	Name     string
	Doc      string
	Kind     RouteKind
	Request  TypeExpr
	Response TypeExpr
}
