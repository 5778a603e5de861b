package compiler

import (
	"fmt"

	"github.com/jnsquire/zetro"
	"github.com/jnsquire/zetro/idl"
)

// Schema is the resolved form of a document: declaration order preserved,
// every type reference linked to the layout object it names.
type Schema struct {
	Structs []*zetro.StructLayout
	Enums   []*zetro.EnumLayout
	Routes  []Route
}

// Route is a resolved route declaration, before wire-name assignment.
type Route struct {
	Name     string
	Doc      string
	Kind     zetro.RouteKind
	Request  *zetro.TypeRef
	Response *zetro.TypeRef
}

type resolver struct {
	structs map[string]*zetro.StructLayout
	enums   map[string]*zetro.EnumLayout
}

// Resolve links every type reference in doc to its declaration. Structs
// and enums are separate namespaces; resolution does not depend on
// declaration order, so forward references are fine. The failure modes
// are UnknownTypeError and CyclicTypeError.
func Resolve(doc *idl.Document) (*Schema, error) {
	r := &resolver{
		structs: make(map[string]*zetro.StructLayout, len(doc.Structs)),
		enums:   make(map[string]*zetro.EnumLayout, len(doc.Enums)),
	}
	s := &Schema{}

	// Shells first so fields can link in a single pass.
	for _, decl := range doc.Structs {
		if _, dup := r.structs[decl.Name]; dup {
			return nil, fmt.Errorf("compile: duplicate struct %q", decl.Name)
		}
		sl := &zetro.StructLayout{Name: decl.Name, Doc: decl.Doc}
		r.structs[decl.Name] = sl
		s.Structs = append(s.Structs, sl)
	}
	for _, decl := range doc.Enums {
		if _, dup := r.enums[decl.Name]; dup {
			return nil, fmt.Errorf("compile: duplicate enum %q", decl.Name)
		}
		el := &zetro.EnumLayout{
			Name:     decl.Name,
			Doc:      decl.Doc,
			Variants: append([]string(nil), decl.Variants...),
		}
		r.enums[decl.Name] = el
		s.Enums = append(s.Enums, el)
	}

	for i, decl := range doc.Structs {
		sl := s.Structs[i]
		sl.Fields = make([]zetro.FieldLayout, 0, len(decl.Fields))
		for _, f := range decl.Fields {
			ref, err := r.typeRef(decl.Name, f.Name, f.Type)
			if err != nil {
				return nil, err
			}
			sl.Fields = append(sl.Fields, zetro.FieldLayout{Name: f.Name, Doc: f.Doc, Type: ref})
		}
	}

	for _, decl := range doc.Routes {
		var kind zetro.RouteKind
		switch decl.Kind {
		case idl.KindQuery:
			kind = zetro.RouteQuery
		case idl.KindMutation:
			kind = zetro.RouteMutation
		default:
			return nil, fmt.Errorf("compile: route %q has invalid kind %q", decl.Name, decl.Kind)
		}
		req, err := r.typeRef(decl.Name, "request", decl.Request)
		if err != nil {
			return nil, err
		}
		res, err := r.typeRef(decl.Name, "response", decl.Response)
		if err != nil {
			return nil, err
		}
		s.Routes = append(s.Routes, Route{
			Name:     decl.Name,
			Doc:      decl.Doc,
			Kind:     kind,
			Request:  req,
			Response: res,
		})
	}

	if err := checkCycles(s.Structs); err != nil {
		return nil, err
	}
	return s, nil
}

var scalarKinds = map[idl.BaseType]zetro.TypeKind{
	idl.BaseU8:     zetro.TypeU8,
	idl.BaseI8:     zetro.TypeI8,
	idl.BaseU16:    zetro.TypeU16,
	idl.BaseI16:    zetro.TypeI16,
	idl.BaseU32:    zetro.TypeU32,
	idl.BaseI32:    zetro.TypeI32,
	idl.BaseU64:    zetro.TypeU64,
	idl.BaseI64:    zetro.TypeI64,
	idl.BaseF32:    zetro.TypeF32,
	idl.BaseF64:    zetro.TypeF64,
	idl.BaseBool:   zetro.TypeBool,
	idl.BaseString: zetro.TypeString,
}

// typeRef lowers a syntactic type expression to a linked reference.
// Wrappers nest outside in: ?[]T is an optional array of T.
func (r *resolver) typeRef(owner, field string, expr idl.TypeExpr) (*zetro.TypeRef, error) {
	ref, err := r.baseRef(owner, field, expr)
	if err != nil {
		return nil, err
	}
	if expr.Multiple {
		ref = &zetro.TypeRef{Kind: zetro.TypeArray, Elem: ref}
	}
	if expr.Optional {
		ref = &zetro.TypeRef{Kind: zetro.TypeOptional, Elem: ref}
	}
	return ref, nil
}

func (r *resolver) baseRef(owner, field string, expr idl.TypeExpr) (*zetro.TypeRef, error) {
	switch expr.Base {
	case idl.BaseStruct:
		sl, ok := r.structs[expr.Ref]
		if !ok {
			return nil, &UnknownTypeError{Name: expr.Ref, Kind: "struct", Owner: owner, Field: field}
		}
		return &zetro.TypeRef{Kind: zetro.TypeStruct, Struct: sl}, nil
	case idl.BaseEnum:
		el, ok := r.enums[expr.Ref]
		if !ok {
			return nil, &UnknownTypeError{Name: expr.Ref, Kind: "enum", Owner: owner, Field: field}
		}
		return &zetro.TypeRef{Kind: zetro.TypeEnum, Enum: el}, nil
	}
	if kind, ok := scalarKinds[expr.Base]; ok {
		return &zetro.TypeRef{Kind: kind}, nil
	}
	return nil, fmt.Errorf("compile: %s.%s has invalid base type %d", owner, field, expr.Base)
}

// checkCycles walks value-containment edges between structs. A struct held
// behind an optional or array wrapper is not contained by value, so those
// fields contribute no edge; the wrapped struct is still visited as its
// own root.
func checkCycles(structs []*zetro.StructLayout) error {
	const (
		inStack = 1
		done    = 2
	)
	state := make(map[*zetro.StructLayout]int, len(structs))
	var stack []string

	var visit func(s *zetro.StructLayout) *CyclicTypeError
	visit = func(s *zetro.StructLayout) *CyclicTypeError {
		switch state[s] {
		case inStack:
			for i, name := range stack {
				if name == s.Name {
					path := append(append([]string{}, stack[i:]...), s.Name)
					return &CyclicTypeError{Path: path}
				}
			}
			return &CyclicTypeError{Path: []string{s.Name, s.Name}}
		case done:
			return nil
		}
		state[s] = inStack
		stack = append(stack, s.Name)
		for _, f := range s.Fields {
			if next := bareStruct(f.Type); next != nil {
				if cyc := visit(next); cyc != nil {
					return cyc
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[s] = done
		return nil
	}

	for _, s := range structs {
		if cyc := visit(s); cyc != nil {
			return cyc
		}
	}
	return nil
}

// bareStruct returns the struct a field contains by value, if any.
func bareStruct(t *zetro.TypeRef) *zetro.StructLayout {
	if t != nil && t.Kind == zetro.TypeStruct {
		return t.Struct
	}
	return nil
}
