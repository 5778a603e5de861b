package zetro

import (
	"fmt"
	"strconv"
	"strings"
)

// WireKind identifies the variant held by a WireValue.
type WireKind uint8

const (
	WireNull WireKind = iota
	WireBool
	WireInt
	WireUint
	WireFloat
	WireString
	WireSeq
)

func (k WireKind) String() string {
	switch k {
	case WireNull:
		return "null"
	case WireBool:
		return "bool"
	case WireInt, WireUint:
		return "integer"
	case WireFloat:
		return "float"
	case WireString:
		return "string"
	case WireSeq:
		return "sequence"
	default:
		return "invalid"
	}
}

// WireValue is the untyped value crossing the transport boundary: a scalar
// (number, string, bool), null, or an ordered sequence of WireValues. It is
// the only loosely-typed shape in the system; codecs are the sole code that
// should construct or destructure one, and a WireValue never carries field
// names: position is the meaning.
//
// Integers normalize on construction: Uint stores values above MaxInt64,
// everything else lands in Int, so equal numbers compare equal regardless of
// which frame produced them.
type WireValue struct {
	kind WireKind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	seq  []WireValue
}

// Null returns the null WireValue. The zero WireValue is also null.
func Null() WireValue { return WireValue{kind: WireNull} }

// Bool returns a boolean WireValue.
func Bool(b bool) WireValue { return WireValue{kind: WireBool, b: b} }

// Int returns an integer WireValue.
func Int(i int64) WireValue { return WireValue{kind: WireInt, i: i} }

// Uint returns an integer WireValue. Values representable as int64 normalize
// to the Int variant.
func Uint(u uint64) WireValue {
	if u <= maxInt64 {
		return WireValue{kind: WireInt, i: int64(u)}
	}
	return WireValue{kind: WireUint, u: u}
}

// Float returns a floating-point WireValue.
func Float(f float64) WireValue { return WireValue{kind: WireFloat, f: f} }

// String returns a string WireValue.
func String(s string) WireValue { return WireValue{kind: WireString, s: s} }

// Seq returns a sequence WireValue holding vs in order.
func Seq(vs ...WireValue) WireValue {
	if vs == nil {
		vs = []WireValue{}
	}
	return WireValue{kind: WireSeq, seq: vs}
}

const maxInt64 = uint64(1)<<63 - 1

// Kind reports the variant held by v.
func (v WireValue) Kind() WireKind { return v.kind }

// IsNull reports whether v is the null value.
func (v WireValue) IsNull() bool { return v.kind == WireNull }

// BoolVal returns the boolean payload, or false if v is not a bool.
func (v WireValue) BoolVal() bool { return v.b }

// IntVal returns the integer payload. It is zero unless Kind is WireInt.
func (v WireValue) IntVal() int64 { return v.i }

// UintVal returns the above-MaxInt64 integer payload. It is zero unless Kind
// is WireUint.
func (v WireValue) UintVal() uint64 { return v.u }

// FloatVal returns the float payload, or zero if v is not a float.
func (v WireValue) FloatVal() float64 { return v.f }

// StringVal returns the string payload, or "" if v is not a string.
func (v WireValue) StringVal() string { return v.s }

// Len returns the element count of a sequence, or zero for any other kind.
func (v WireValue) Len() int { return len(v.seq) }

// Index returns the i'th element of a sequence. It panics if v is not a
// sequence or i is out of range, mirroring slice indexing.
func (v WireValue) Index(i int) WireValue { return v.seq[i] }

// Values returns the backing elements of a sequence. Callers must not
// mutate the returned slice.
func (v WireValue) Values() []WireValue { return v.seq }

// Equal reports whether two wire values are structurally identical. Integer
// values compare numerically across the Int/Uint variants; floats compare
// only with floats.
func (v WireValue) Equal(w WireValue) bool {
	if v.kind != w.kind {
		return false
	}
	switch v.kind {
	case WireNull:
		return true
	case WireBool:
		return v.b == w.b
	case WireInt:
		return v.i == w.i
	case WireUint:
		return v.u == w.u
	case WireFloat:
		return v.f == w.f
	case WireString:
		return v.s == w.s
	case WireSeq:
		if len(v.seq) != len(w.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(w.seq[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders a debug representation resembling the JSON frame output.
func (v WireValue) String() string {
	var sb strings.Builder
	v.debug(&sb)
	return sb.String()
}

func (v WireValue) debug(sb *strings.Builder) {
	switch v.kind {
	case WireNull:
		sb.WriteString("null")
	case WireBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case WireInt:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case WireUint:
		sb.WriteString(strconv.FormatUint(v.u, 10))
	case WireFloat:
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case WireString:
		fmt.Fprintf(sb, "%q", v.s)
	case WireSeq:
		sb.WriteByte('[')
		for i, e := range v.seq {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.debug(sb)
		}
		sb.WriteByte(']')
	}
}
