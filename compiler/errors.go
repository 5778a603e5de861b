package compiler

import (
	"fmt"
	"strings"
)

// UnknownTypeError reports a reference to a struct or enum that no
// declaration defines.
type UnknownTypeError struct {
	Name  string // the missing type
	Kind  string // "struct" or "enum"
	Owner string // declaration holding the reference
	Field string // field name, or "request"/"response" for routes
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("compile: unknown %s %q referenced by %s.%s", e.Kind, e.Name, e.Owner, e.Field)
}

// CyclicTypeError reports a struct that contains itself by value. Optional
// and array wrappers break containment, so only bare struct fields form
// the cycle.
type CyclicTypeError struct {
	Path []string // struct names along the cycle; first and last are equal
}

func (e *CyclicTypeError) Error() string {
	return fmt.Sprintf("compile: cyclic value containment: %s", strings.Join(e.Path, " -> "))
}

// DuplicateRouteError reports two routes compiled under one name.
type DuplicateRouteError struct {
	Name string
}

func (e *DuplicateRouteError) Error() string {
	return fmt.Sprintf("compile: duplicate route %q", e.Name)
}

// UnresolvedRouteTypeError reports a route whose request or response type
// was never linked. The resolver cannot produce one; it guards
// programmatically assembled schemas.
type UnresolvedRouteTypeError struct {
	Route string
	Which string // "request" or "response"
}

func (e *UnresolvedRouteTypeError) Error() string {
	return fmt.Sprintf("compile: route %q has an unresolved %s type", e.Route, e.Which)
}
