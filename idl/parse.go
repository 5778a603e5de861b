package idl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/jnsquire/zetro/internal/names"
)

// ParseError describes a schema document that failed validation. Path is
// the dotted location of the offending node, e.g. "structs.Room.fields.id".
type ParseError struct {
	Path   string
	Line   int // 1-based source line, 0 when unknown
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("schema: %s: %s (line %d)", e.Path, e.Reason, e.Line)
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Reason)
}

func parseErrf(node *yaml.Node, path, format string, args ...any) *ParseError {
	line := 0
	if node != nil {
		line = node.Line
	}
	return &ParseError{Path: path, Line: line, Reason: fmt.Sprintf(format, args...)}
}

// ParseFile reads and parses the schema document at path. Files named
// *.json or *.jsonc may carry // and /* */ comments and trailing commas;
// everything else is parsed as YAML.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	return Parse(data)
}

// Parse parses a schema document from src. Documents whose first
// significant byte is '{' (or a // comment) are treated as JSON with
// optional comments and trailing commas; everything else is YAML.
//
// Declaration order is preserved everywhere: struct order, field order
// within a struct, enum variant order, and route order all match the
// source text. Inline object fields are hoisted into synthetic structs
// named Parent_field, inserted directly after their parent.
func Parse(src []byte) (*Document, error) {
	if looksLikeJSON(src) {
		src = jsonc.ToJSON(src)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(src, &root); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, &ParseError{Path: "schema", Reason: "empty document"}
	}
	top := root.Content[0]
	pairs, err := mapPairs(top, "schema")
	if err != nil {
		return nil, err
	}

	p := &parser{
		doc:         &Document{},
		structNames: map[string]int{},
		enumNames:   map[string]int{},
		routeNames:  map[string]int{},
	}
	for _, kv := range pairs {
		switch kv.key {
		case "structs":
			err = p.structs(kv.val)
		case "enums":
			err = p.enums(kv.val)
		case "routes":
			err = p.routes(kv.val)
		default:
			err = parseErrf(kv.keyNode, "schema", "unknown key %q", kv.key)
		}
		if err != nil {
			return nil, err
		}
	}
	return p.doc, nil
}

// jsonc comments and trailing commas are stripped before the YAML parse;
// the converter replaces them with whitespace so line numbers survive.
func looksLikeJSON(src []byte) bool {
	for _, b := range src {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{', '/':
			return true
		default:
			return false
		}
	}
	return false
}

type parser struct {
	doc *Document

	// Declared names with the line that first declared them. Structs and
	// enums are separate namespaces; hoisted structs claim names too.
	structNames map[string]int
	enumNames   map[string]int
	routeNames  map[string]int
}

func (p *parser) structs(node *yaml.Node) error {
	pairs, err := mapPairs(node, "structs")
	if err != nil {
		return err
	}
	for _, kv := range pairs {
		path := "structs." + kv.key
		if err := checkName(kv.keyNode, path, kv.key); err != nil {
			return err
		}
		body, err := p.structBody(path, kv.key, kv.val)
		if err != nil {
			return err
		}
		// Wrappers never apply to top-level structs; they belong on the
		// fields that reference them.
		if body.nullable {
			return parseErrf(kv.val, path, "nullable must be false for top-level structs")
		}
		if body.multiple {
			return parseErrf(kv.val, path, "multiple must be false for top-level structs")
		}
		if err := p.addStruct(kv.keyNode, path, body.decl); err != nil {
			return err
		}
		for _, h := range body.hoisted {
			if err := p.addStruct(kv.keyNode, path, h); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *parser) addStruct(node *yaml.Node, path string, decl StructDecl) error {
	if line, dup := p.structNames[decl.Name]; dup {
		return parseErrf(node, path, "duplicate struct %q (first declared on line %d)", decl.Name, line)
	}
	p.structNames[decl.Name] = nodeLine(node)
	p.doc.Structs = append(p.doc.Structs, decl)
	return nil
}

type structBody struct {
	decl     StructDecl
	nullable bool
	multiple bool
	hoisted  []StructDecl
}

// structBody parses the mapping form shared by top-level structs and
// inline object fields: description, nullable, multiple, fields.
func (p *parser) structBody(path, name string, node *yaml.Node) (structBody, error) {
	var body structBody
	body.decl.Name = name

	pairs, err := mapPairs(node, path)
	if err != nil {
		return body, err
	}
	var fieldsNode *yaml.Node
	for _, kv := range pairs {
		switch kv.key {
		case "description":
			body.decl.Doc, err = strVal(kv.val, path+".description")
		case "nullable":
			body.nullable, err = boolVal(kv.val, path+".nullable")
		case "multiple":
			body.multiple, err = boolVal(kv.val, path+".multiple")
		case "fields":
			fieldsNode = kv.val
		default:
			err = parseErrf(kv.keyNode, path, "unknown key %q", kv.key)
		}
		if err != nil {
			return body, err
		}
	}
	if fieldsNode == nil {
		return body, parseErrf(node, path, "missing required key %q", "fields")
	}
	body.decl.Fields, body.hoisted, err = p.fields(path+".fields", name, fieldsNode)
	return body, err
}

func (p *parser) fields(path, owner string, node *yaml.Node) ([]FieldDecl, []StructDecl, error) {
	pairs, err := mapPairs(node, path)
	if err != nil {
		return nil, nil, err
	}
	var fields []FieldDecl
	var hoisted []StructDecl
	for _, kv := range pairs {
		fpath := path + "." + kv.key
		if err := checkName(kv.keyNode, fpath, kv.key); err != nil {
			return nil, nil, err
		}
		switch kv.val.Kind {
		case yaml.MappingNode:
			// Inline object: hoist to a synthetic struct and reference it.
			// The mapping's own nullable/multiple keys wrap the reference.
			hname := names.Nested(owner, kv.key)
			body, err := p.structBody(fpath, hname, kv.val)
			if err != nil {
				return nil, nil, err
			}
			body.decl.Hoisted = true
			fields = append(fields, FieldDecl{
				Name: kv.key,
				Doc:  body.decl.Doc,
				Type: TypeExpr{
					Optional: body.nullable,
					Multiple: body.multiple,
					Base:     BaseStruct,
					Ref:      hname,
				},
			})
			hoisted = append(hoisted, body.decl)
			hoisted = append(hoisted, body.hoisted...)
		case yaml.ScalarNode:
			raw, err := strVal(kv.val, fpath)
			if err != nil {
				return nil, nil, err
			}
			expr, doc, err := parseFieldType(kv.val, fpath, raw)
			if err != nil {
				return nil, nil, err
			}
			if err := checkSelfReference(kv.val, fpath, owner, expr); err != nil {
				return nil, nil, err
			}
			fields = append(fields, FieldDecl{Name: kv.key, Doc: doc, Type: expr})
		default:
			return nil, nil, parseErrf(kv.val, fpath, "expected a type expression or an object")
		}
	}
	return fields, hoisted, nil
}

// parseFieldType splits an optional "; description" suffix off a field
// value and parses the rest as a type expression.
func parseFieldType(node *yaml.Node, path, raw string) (TypeExpr, string, error) {
	spec, doc, _ := strings.Cut(raw, "; ")
	expr, err := ParseType(spec)
	if err != nil {
		return TypeExpr{}, "", parseErrf(node, path, "%v", err)
	}
	return expr, doc, nil
}

// A bare reference to the containing struct can never terminate; it must
// be optional or multiple. Indirect cycles are the resolver's job.
func checkSelfReference(node *yaml.Node, path, owner string, expr TypeExpr) error {
	if expr.Base == BaseStruct && expr.Ref == owner && !expr.Optional && !expr.Multiple {
		return parseErrf(node, path, "recursive reference to %q must be nullable and/or multiple to avoid an infinite loop", owner)
	}
	return nil
}

func (p *parser) enums(node *yaml.Node) error {
	pairs, err := mapPairs(node, "enums")
	if err != nil {
		return err
	}
	for _, kv := range pairs {
		path := "enums." + kv.key
		if err := checkName(kv.keyNode, path, kv.key); err != nil {
			return err
		}
		if line, dup := p.enumNames[kv.key]; dup {
			return parseErrf(kv.keyNode, path, "duplicate enum %q (first declared on line %d)", kv.key, line)
		}
		if kv.val.Kind != yaml.SequenceNode {
			return parseErrf(kv.val, path, "expected a list of variant names")
		}
		decl := EnumDecl{Name: kv.key}
		seen := make(map[string]bool, len(kv.val.Content))
		for i, vn := range kv.val.Content {
			vpath := fmt.Sprintf("%s[%d]", path, i)
			variant, err := strVal(vn, vpath)
			if err != nil {
				return err
			}
			if err := checkName(vn, vpath, variant); err != nil {
				return err
			}
			if seen[variant] {
				return parseErrf(vn, vpath, "duplicate variant %q", variant)
			}
			seen[variant] = true
			decl.Variants = append(decl.Variants, variant)
		}
		p.enumNames[kv.key] = nodeLine(kv.keyNode)
		p.doc.Enums = append(p.doc.Enums, decl)
	}
	return nil
}

func (p *parser) routes(node *yaml.Node) error {
	pairs, err := mapPairs(node, "routes")
	if err != nil {
		return err
	}
	for _, kv := range pairs {
		path := "routes." + kv.key
		if err := checkName(kv.keyNode, path, kv.key); err != nil {
			return err
		}
		if line, dup := p.routeNames[kv.key]; dup {
			return parseErrf(kv.keyNode, path, "duplicate route %q (first declared on line %d)", kv.key, line)
		}
		decl, err := p.route(path, kv.key, kv.val)
		if err != nil {
			return err
		}
		p.routeNames[kv.key] = nodeLine(kv.keyNode)
		p.doc.Routes = append(p.doc.Routes, decl)
	}
	return nil
}

func (p *parser) route(path, name string, node *yaml.Node) (RouteDecl, error) {
	decl := RouteDecl{Name: name}
	pairs, err := mapPairs(node, path)
	if err != nil {
		return decl, err
	}
	var kindNode, reqNode, resNode *yaml.Node
	for _, kv := range pairs {
		switch kv.key {
		case "kind":
			kindNode = kv.val
		case "description":
			decl.Doc, err = strVal(kv.val, path+".description")
		case "request":
			reqNode = kv.val
		case "response":
			resNode = kv.val
		default:
			err = parseErrf(kv.keyNode, path, "unknown key %q", kv.key)
		}
		if err != nil {
			return decl, err
		}
	}
	if kindNode == nil {
		return decl, parseErrf(node, path, "missing required key %q", "kind")
	}
	kind, err := strVal(kindNode, path+".kind")
	if err != nil {
		return decl, err
	}
	switch RouteKind(kind) {
	case KindQuery, KindMutation:
		decl.Kind = RouteKind(kind)
	default:
		return decl, parseErrf(kindNode, path+".kind", "expected one of %q or %q", KindQuery, KindMutation)
	}
	decl.Request, err = p.routeType(path+".request", reqNode, node)
	if err != nil {
		return decl, err
	}
	decl.Response, err = p.routeType(path+".response", resNode, node)
	return decl, err
}

// routeType parses a route's request or response type. Inline objects are
// not allowed here; the type must be named so both peers can bind to it.
func (p *parser) routeType(path string, node, route *yaml.Node) (TypeExpr, error) {
	if node == nil {
		return TypeExpr{}, parseErrf(route, path, "missing required key %q", path[strings.LastIndexByte(path, '.')+1:])
	}
	if node.Kind == yaml.MappingNode {
		return TypeExpr{}, parseErrf(node, path, "inline objects are not allowed here; declare a named struct")
	}
	raw, err := strVal(node, path)
	if err != nil {
		return TypeExpr{}, err
	}
	expr, _, err := parseFieldType(node, path, raw)
	return expr, err
}

// keyed value of a mapping node, in document order
type pair struct {
	key     string
	keyNode *yaml.Node
	val     *yaml.Node
}

func mapPairs(node *yaml.Node, path string) ([]pair, error) {
	node = deref(node)
	if node == nil || node.Kind != yaml.MappingNode {
		return nil, parseErrf(node, path, "expected an object")
	}
	pairs := make([]pair, 0, len(node.Content)/2)
	seen := make(map[string]int, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], deref(node.Content[i+1])
		if k.Kind != yaml.ScalarNode || k.Tag != "!!str" {
			return nil, parseErrf(k, path, "expected a string key")
		}
		if line, dup := seen[k.Value]; dup {
			return nil, parseErrf(k, path, "duplicate key %q (first used on line %d)", k.Value, line)
		}
		seen[k.Value] = k.Line
		pairs = append(pairs, pair{key: k.Value, keyNode: k, val: v})
	}
	return pairs, nil
}

// deref follows YAML aliases so anchors behave like inline values.
func deref(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	return node
}

func strVal(node *yaml.Node, path string) (string, error) {
	node = deref(node)
	if node == nil || node.Kind != yaml.ScalarNode || node.Tag != "!!str" {
		return "", parseErrf(node, path, "expected a string value")
	}
	return node.Value, nil
}

func boolVal(node *yaml.Node, path string) (bool, error) {
	node = deref(node)
	if node == nil || node.Kind != yaml.ScalarNode || node.Tag != "!!bool" {
		return false, parseErrf(node, path, "expected a boolean value")
	}
	return strings.EqualFold(node.Value, "true"), nil
}

func nodeLine(node *yaml.Node) int {
	if node == nil {
		return 0
	}
	return node.Line
}

func checkName(node *yaml.Node, path, name string) error {
	if !isIdent(name) {
		return parseErrf(node, path, "name %q must be a letter or underscore followed by letters, digits, or underscores", name)
	}
	return nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
