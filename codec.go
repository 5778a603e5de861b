package zetro

import (
	"fmt"
	"math"
	"reflect"

	"github.com/jnsquire/zetro/internal/names"
)

// Codec translates between values of one Go type and the positional wire
// form of one resolved schema type. All reflection happens at bind time: the
// codec matches Go struct fields to schema fields by name once, then encodes
// and decodes purely by integer position. A bound codec is immutable and safe
// for concurrent use.
type Codec struct {
	ref  *TypeRef
	rt   reflect.Type
	root string
	enc  encodeFn
	dec  decodeFn
}

type (
	encodeFn func(rv reflect.Value) (WireValue, error)
	decodeFn func(w WireValue, rv reflect.Value) error
)

// BindError reports a Go type that cannot satisfy a schema type. Binding
// failures are programmer errors surfaced at startup, not at request time.
type BindError struct {
	GoType reflect.Type
	Ref    string
	Reason string
}

func (e *BindError) Error() string {
	return fmt.Sprintf("zetro: cannot bind %v to %s: %s", e.GoType, e.Ref, e.Reason)
}

func bindErrf(rt reflect.Type, ref *TypeRef, format string, args ...any) *BindError {
	return &BindError{GoType: rt, Ref: ref.String(), Reason: fmt.Sprintf(format, args...)}
}

// Bind builds a codec from a prototype value of the Go type, e.g.
// Bind(ref, Chatroom{}).
func Bind(ref *TypeRef, prototype any) (*Codec, error) {
	rt := reflect.TypeOf(prototype)
	if rt == nil {
		return nil, &BindError{Ref: ref.String(), Reason: "prototype must not be nil"}
	}
	return BindType(ref, rt)
}

// BindType builds a codec for the given reflect type.
func BindType(ref *TypeRef, rt reflect.Type) (*Codec, error) {
	b := binder{structs: make(map[structKey]*structProg)}
	enc, dec, err := b.bind(ref, rt)
	if err != nil {
		return nil, err
	}
	root := ""
	if ref.Kind == TypeStruct {
		root = ref.Struct.Name
	}
	return &Codec{ref: ref, rt: rt, root: root, enc: enc, dec: dec}, nil
}

// GoType returns the Go type this codec binds.
func (c *Codec) GoType() reflect.Type { return c.rt }

// Type returns the schema type this codec binds.
func (c *Codec) Type() *TypeRef { return c.ref }

// Encode converts v to its positional wire form. v must be of the bound Go
// type (a pointer to it is dereferenced).
func (c *Codec) Encode(v any) (WireValue, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.Type().Elem() == c.rt {
		if rv.IsNil() {
			return Null(), encodeErrf("nil %v", rv.Type())
		}
		rv = rv.Elem()
	}
	if rv.Type() != c.rt {
		return Null(), encodeErrf("value is %v, codec binds %v", rv.Type(), c.rt)
	}
	w, err := c.enc(rv)
	if err != nil && c.root != "" {
		return Null(), prefixPath(err, c.root)
	}
	return w, err
}

// Decode reconstructs a value from its positional wire form into out, which
// must be a non-nil pointer to the bound Go type. A failed decode never
// partially succeeds from the caller's view: on error the contents of out
// are unspecified and must not be used.
func (c *Codec) Decode(w WireValue, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("zetro: decode target must be a non-nil pointer, got %T", out)
	}
	if rv.Type().Elem() != c.rt {
		return fmt.Errorf("zetro: decode target is %v, codec binds *%v", rv.Type(), c.rt)
	}
	if err := c.dec(w, rv.Elem()); err != nil {
		if c.root != "" {
			return prefixPath(err, c.root)
		}
		return err
	}
	return nil
}

// binder memoizes struct programs so self-referential types (a struct whose
// field optionally points back at itself) bind in one pass instead of
// recursing forever.
type binder struct {
	structs map[structKey]*structProg
}

type structKey struct {
	layout *StructLayout
	rt     reflect.Type
}

type structProg struct {
	layout *StructLayout
	fields []fieldProg
}

type fieldProg struct {
	name    string
	goIndex int
	enc     encodeFn
	dec     decodeFn
}

func (b *binder) bind(ref *TypeRef, rt reflect.Type) (encodeFn, decodeFn, error) {
	switch ref.Kind {
	case TypeOptional:
		return b.bindOptional(ref, rt)
	case TypeArray:
		return b.bindArray(ref, rt)
	case TypeStruct:
		if rt.Kind() != reflect.Struct {
			return nil, nil, bindErrf(rt, ref, "want a struct type")
		}
		return b.bindStruct(ref.Struct, rt)
	case TypeEnum:
		return bindEnum(ref, rt)
	default:
		return bindScalar(ref, rt)
	}
}

// bindOptional maps ?T to a pointer, except ?[]T which maps to a plain slice
// where nil means absent and an empty non-nil slice means present.
func (b *binder) bindOptional(ref *TypeRef, rt reflect.Type) (encodeFn, decodeFn, error) {
	elem := ref.Elem
	if elem.Kind == TypeArray {
		encElem, decElem, err := b.bindArray(elem, rt)
		if err != nil {
			return nil, nil, err
		}
		enc := func(rv reflect.Value) (WireValue, error) {
			if rv.IsNil() {
				return Null(), nil
			}
			return encElem(rv)
		}
		dec := func(w WireValue, rv reflect.Value) error {
			if w.IsNull() {
				rv.SetZero()
				return nil
			}
			return decElem(w, rv)
		}
		return enc, dec, nil
	}

	if rt.Kind() != reflect.Pointer {
		return nil, nil, bindErrf(rt, ref, "optional fields bind to pointers")
	}
	encElem, decElem, err := b.bind(elem, rt.Elem())
	if err != nil {
		return nil, nil, err
	}
	elemType := rt.Elem()
	enc := func(rv reflect.Value) (WireValue, error) {
		if rv.IsNil() {
			return Null(), nil
		}
		return encElem(rv.Elem())
	}
	dec := func(w WireValue, rv reflect.Value) error {
		if w.IsNull() {
			rv.SetZero()
			return nil
		}
		p := reflect.New(elemType)
		if err := decElem(w, p.Elem()); err != nil {
			return err
		}
		rv.Set(p)
		return nil
	}
	return enc, dec, nil
}

func (b *binder) bindArray(ref *TypeRef, rt reflect.Type) (encodeFn, decodeFn, error) {
	if rt.Kind() != reflect.Slice {
		return nil, nil, bindErrf(rt, ref, "want a slice type")
	}
	encElem, decElem, err := b.bind(ref.Elem, rt.Elem())
	if err != nil {
		return nil, nil, err
	}
	enc := func(rv reflect.Value) (WireValue, error) {
		n := rv.Len()
		seq := make([]WireValue, n)
		for i := 0; i < n; i++ {
			w, err := encElem(rv.Index(i))
			if err != nil {
				return Null(), prefixPath(err, fmt.Sprintf("[%d]", i))
			}
			seq[i] = w
		}
		return Seq(seq...), nil
	}
	dec := func(w WireValue, rv reflect.Value) error {
		switch w.Kind() {
		case WireSeq:
		case WireNull:
			return decodeErrf(UnexpectedNull, "null for non-optional %s", ref)
		default:
			return decodeErrf(TypeMismatch, "want sequence for %s, got %s", ref, w.Kind())
		}
		n := w.Len()
		out := reflect.MakeSlice(rt, n, n)
		for i := 0; i < n; i++ {
			if err := decElem(w.Index(i), out.Index(i)); err != nil {
				return prefixPath(err, fmt.Sprintf("[%d]", i))
			}
		}
		rv.Set(out)
		return nil
	}
	return enc, dec, nil
}

// bindStruct matches schema fields to Go fields by the zetro struct tag,
// falling back to the lowerCamel form of the Go field name. Every schema
// field must find a Go field; extra Go fields are ignored.
func (b *binder) bindStruct(layout *StructLayout, rt reflect.Type) (encodeFn, decodeFn, error) {
	key := structKey{layout: layout, rt: rt}
	if prog, ok := b.structs[key]; ok {
		return progEncode(prog, rt), progDecode(prog, rt), nil
	}
	prog := &structProg{layout: layout}
	b.structs[key] = prog

	byWireName := make(map[string]int, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("zetro")
		if name == "-" {
			continue
		}
		if name == "" {
			name = names.LowerCamel(f.Name)
		}
		if prev, dup := byWireName[name]; dup {
			ref := &TypeRef{Kind: TypeStruct, Struct: layout}
			return nil, nil, bindErrf(rt, ref, "fields %s and %s both bind schema field %q",
				rt.Field(prev).Name, f.Name, name)
		}
		byWireName[name] = i
	}

	prog.fields = make([]fieldProg, len(layout.Fields))
	for i, fl := range layout.Fields {
		goIndex, ok := byWireName[fl.Name]
		if !ok {
			ref := &TypeRef{Kind: TypeStruct, Struct: layout}
			return nil, nil, bindErrf(rt, ref, "no Go field for schema field %q (tag it with zetro:%q)", fl.Name, fl.Name)
		}
		enc, dec, err := b.bind(fl.Type, rt.Field(goIndex).Type)
		if err != nil {
			if be, ok := err.(*BindError); ok {
				be.Reason = fmt.Sprintf("field %s.%s: %s", layout.Name, fl.Name, be.Reason)
			}
			return nil, nil, err
		}
		prog.fields[i] = fieldProg{name: fl.Name, goIndex: goIndex, enc: enc, dec: dec}
	}
	return progEncode(prog, rt), progDecode(prog, rt), nil
}

// progEncode and progDecode close over the program pointer rather than its
// fields so self-referential binds observe the finished program.
func progEncode(prog *structProg, rt reflect.Type) encodeFn {
	return func(rv reflect.Value) (WireValue, error) {
		seq := make([]WireValue, len(prog.fields))
		for i := range prog.fields {
			f := &prog.fields[i]
			w, err := f.enc(rv.Field(f.goIndex))
			if err != nil {
				return Null(), prefixPath(err, f.name)
			}
			seq[i] = w
		}
		return Seq(seq...), nil
	}
}

func progDecode(prog *structProg, rt reflect.Type) decodeFn {
	return func(w WireValue, rv reflect.Value) error {
		switch w.Kind() {
		case WireSeq:
		case WireNull:
			return decodeErrf(UnexpectedNull, "null for non-optional struct %s", prog.layout.Name)
		default:
			return decodeErrf(TypeMismatch, "want sequence for struct %s, got %s", prog.layout.Name, w.Kind())
		}
		if w.Len() != len(prog.fields) {
			return decodeErrf(ArityMismatch, "struct %s has %d fields, sequence has %d elements",
				prog.layout.Name, len(prog.fields), w.Len())
		}
		for i := range prog.fields {
			f := &prog.fields[i]
			if err := f.dec(w.Index(i), rv.Field(f.goIndex)); err != nil {
				return prefixPath(err, f.name)
			}
		}
		return nil
	}
}

func bindEnum(ref *TypeRef, rt reflect.Type) (encodeFn, decodeFn, error) {
	layout := ref.Enum
	signed := false
	switch rt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		signed = true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return nil, nil, bindErrf(rt, ref, "enums bind to integer types")
	}
	n := int64(len(layout.Variants))

	enc := func(rv reflect.Value) (WireValue, error) {
		var ord int64
		if signed {
			ord = rv.Int()
		} else {
			u := rv.Uint()
			if u > maxInt64 {
				return Null(), encodeErrf("ordinal %d out of range for enum %s (%d variants)", u, layout.Name, n)
			}
			ord = int64(u)
		}
		if ord < 0 || ord >= n {
			return Null(), encodeErrf("ordinal %d out of range for enum %s (%d variants)", ord, layout.Name, n)
		}
		return Int(ord), nil
	}
	dec := func(w WireValue, rv reflect.Value) error {
		var ord int64
		switch w.Kind() {
		case WireInt:
			ord = w.IntVal()
		case WireUint:
			// Normalization puts anything representable in Int, so a
			// Uint here is always out of range.
			return decodeErrf(InvalidDiscriminant, "discriminant %d out of range for enum %s (%d variants)",
				w.UintVal(), layout.Name, n)
		case WireNull:
			return decodeErrf(UnexpectedNull, "null for non-optional enum %s", layout.Name)
		default:
			return decodeErrf(TypeMismatch, "enum %s discriminant must be an integer, got %s", layout.Name, w.Kind())
		}
		if ord < 0 || ord >= n {
			return decodeErrf(InvalidDiscriminant, "discriminant %d out of range for enum %s (%d variants)",
				ord, layout.Name, n)
		}
		if signed {
			rv.SetInt(ord)
		} else {
			rv.SetUint(uint64(ord))
		}
		return nil
	}
	return enc, dec, nil
}

// scalarGoKinds maps each scalar schema type to the exact Go kind it binds.
// Widths must match: a u8 field is a uint8, never an int.
var scalarGoKinds = map[TypeKind]reflect.Kind{
	TypeU8:     reflect.Uint8,
	TypeI8:     reflect.Int8,
	TypeU16:    reflect.Uint16,
	TypeI16:    reflect.Int16,
	TypeU32:    reflect.Uint32,
	TypeI32:    reflect.Int32,
	TypeU64:    reflect.Uint64,
	TypeI64:    reflect.Int64,
	TypeF32:    reflect.Float32,
	TypeF64:    reflect.Float64,
	TypeBool:   reflect.Bool,
	TypeString: reflect.String,
}

var scalarBits = map[TypeKind]int{
	TypeU8:  8,
	TypeI8:  8,
	TypeU16: 16,
	TypeI16: 16,
	TypeU32: 32,
	TypeI32: 32,
	TypeU64: 64,
	TypeI64: 64,
	TypeF32: 32,
	TypeF64: 64,
}

func bindScalar(ref *TypeRef, rt reflect.Type) (encodeFn, decodeFn, error) {
	want, ok := scalarGoKinds[ref.Kind]
	if !ok {
		return nil, nil, bindErrf(rt, ref, "unsupported schema type")
	}
	if rt.Kind() != want {
		return nil, nil, bindErrf(rt, ref, "want Go kind %s", want)
	}
	kind := ref.Kind
	bits := scalarBits[kind]

	switch want {
	case reflect.Bool:
		enc := func(rv reflect.Value) (WireValue, error) { return Bool(rv.Bool()), nil }
		dec := func(w WireValue, rv reflect.Value) error {
			switch w.Kind() {
			case WireBool:
				rv.SetBool(w.BoolVal())
				return nil
			case WireNull:
				return decodeErrf(UnexpectedNull, "null for non-optional bool")
			default:
				return decodeErrf(TypeMismatch, "want bool, got %s", w.Kind())
			}
		}
		return enc, dec, nil

	case reflect.String:
		enc := func(rv reflect.Value) (WireValue, error) { return String(rv.String()), nil }
		dec := func(w WireValue, rv reflect.Value) error {
			switch w.Kind() {
			case WireString:
				rv.SetString(w.StringVal())
				return nil
			case WireNull:
				return decodeErrf(UnexpectedNull, "null for non-optional string")
			default:
				return decodeErrf(TypeMismatch, "want string, got %s", w.Kind())
			}
		}
		return enc, dec, nil

	case reflect.Float32, reflect.Float64:
		enc := func(rv reflect.Value) (WireValue, error) { return Float(rv.Float()), nil }
		dec := func(w WireValue, rv reflect.Value) error {
			f, derr := wireToFloat(w, kind, bits)
			if derr != nil {
				return derr
			}
			rv.SetFloat(f)
			return nil
		}
		return enc, dec, nil

	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		enc := func(rv reflect.Value) (WireValue, error) { return Int(rv.Int()), nil }
		dec := func(w WireValue, rv reflect.Value) error {
			i, derr := wireToInt(w, kind, bits)
			if derr != nil {
				return derr
			}
			rv.SetInt(i)
			return nil
		}
		return enc, dec, nil

	default: // unsigned
		enc := func(rv reflect.Value) (WireValue, error) { return Uint(rv.Uint()), nil }
		dec := func(w WireValue, rv reflect.Value) error {
			u, derr := wireToUint(w, kind, bits)
			if derr != nil {
				return derr
			}
			rv.SetUint(u)
			return nil
		}
		return enc, dec, nil
	}
}

// wireToInt converts a numeric wire value to a signed integer of the given
// width. Conversions are lossless or they fail: overflow and fractional
// floats are type mismatches, never truncations.
func wireToInt(w WireValue, kind TypeKind, bits int) (int64, *DecodeError) {
	var i int64
	switch w.Kind() {
	case WireInt:
		i = w.IntVal()
	case WireUint:
		return 0, decodeErrf(TypeMismatch, "%d overflows %s", w.UintVal(), kind)
	case WireFloat:
		f := w.FloatVal()
		if f != math.Trunc(f) {
			return 0, decodeErrf(TypeMismatch, "%v has a fractional part, want %s", f, kind)
		}
		if f < -9223372036854775808.0 || f >= 9223372036854775808.0 {
			return 0, decodeErrf(TypeMismatch, "%v overflows %s", f, kind)
		}
		i = int64(f)
	case WireNull:
		return 0, decodeErrf(UnexpectedNull, "null for non-optional %s", kind)
	default:
		return 0, decodeErrf(TypeMismatch, "want %s, got %s", kind, w.Kind())
	}
	if bits < 64 {
		min, max := int64(-1)<<(bits-1), int64(1)<<(bits-1)-1
		if i < min || i > max {
			return 0, decodeErrf(TypeMismatch, "%d overflows %s", i, kind)
		}
	}
	return i, nil
}

// wireToUint is the unsigned counterpart of wireToInt.
func wireToUint(w WireValue, kind TypeKind, bits int) (uint64, *DecodeError) {
	var u uint64
	switch w.Kind() {
	case WireInt:
		i := w.IntVal()
		if i < 0 {
			return 0, decodeErrf(TypeMismatch, "%d is negative, want %s", i, kind)
		}
		u = uint64(i)
	case WireUint:
		u = w.UintVal()
	case WireFloat:
		f := w.FloatVal()
		if f != math.Trunc(f) {
			return 0, decodeErrf(TypeMismatch, "%v has a fractional part, want %s", f, kind)
		}
		if f < 0 || f >= 18446744073709551616.0 {
			return 0, decodeErrf(TypeMismatch, "%v overflows %s", f, kind)
		}
		u = uint64(f)
	case WireNull:
		return 0, decodeErrf(UnexpectedNull, "null for non-optional %s", kind)
	default:
		return 0, decodeErrf(TypeMismatch, "want %s, got %s", kind, w.Kind())
	}
	if bits < 64 && u > uint64(1)<<bits-1 {
		return 0, decodeErrf(TypeMismatch, "%d overflows %s", u, kind)
	}
	return u, nil
}

// wireToFloat accepts floats and losslessly-representable integers.
func wireToFloat(w WireValue, kind TypeKind, bits int) (float64, *DecodeError) {
	var f float64
	switch w.Kind() {
	case WireFloat:
		f = w.FloatVal()
	case WireInt:
		i := w.IntVal()
		if i > 1<<53 || i < -(1<<53) {
			return 0, decodeErrf(TypeMismatch, "%d cannot be represented exactly as %s", i, kind)
		}
		f = float64(i)
	case WireUint:
		return 0, decodeErrf(TypeMismatch, "%d cannot be represented exactly as %s", w.UintVal(), kind)
	case WireNull:
		return 0, decodeErrf(UnexpectedNull, "null for non-optional %s", kind)
	default:
		return 0, decodeErrf(TypeMismatch, "want %s, got %s", kind, w.Kind())
	}
	if bits == 32 {
		if ff := float32(f); float64(ff) != f {
			return 0, decodeErrf(TypeMismatch, "%v does not fit %s", f, kind)
		}
	}
	return f, nil
}
