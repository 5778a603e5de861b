package zetro

import (
	"math"
	"testing"
)

func TestWireConstructors(t *testing.T) {
	if k := Null().Kind(); k != WireNull {
		t.Errorf("expected WireNull, got %v", k)
	}
	if !Null().IsNull() {
		t.Error("expected Null to be null")
	}
	var zero WireValue
	if !zero.IsNull() {
		t.Error("expected zero WireValue to be null")
	}
	if v := Bool(true); v.Kind() != WireBool || !v.BoolVal() {
		t.Errorf("expected bool true, got %v %v", v.Kind(), v.BoolVal())
	}
	if v := Int(-42); v.Kind() != WireInt || v.IntVal() != -42 {
		t.Errorf("expected int -42, got %v %d", v.Kind(), v.IntVal())
	}
	if v := Float(2.5); v.Kind() != WireFloat || v.FloatVal() != 2.5 {
		t.Errorf("expected float 2.5, got %v %v", v.Kind(), v.FloatVal())
	}
	if v := String("hi"); v.Kind() != WireString || v.StringVal() != "hi" {
		t.Errorf("expected string hi, got %v %q", v.Kind(), v.StringVal())
	}
	seq := Seq(Int(1), String("two"))
	if seq.Kind() != WireSeq || seq.Len() != 2 {
		t.Fatalf("expected sequence of 2, got %v len %d", seq.Kind(), seq.Len())
	}
	if got := seq.Index(1).StringVal(); got != "two" {
		t.Errorf("expected two, got %q", got)
	}
	if got := len(seq.Values()); got != 2 {
		t.Errorf("expected 2 values, got %d", got)
	}
}

func TestWireUintNormalization(t *testing.T) {
	if v := Uint(0); v.Kind() != WireInt || v.IntVal() != 0 {
		t.Errorf("expected Uint(0) to normalize to Int, got %v", v.Kind())
	}
	if v := Uint(math.MaxInt64); v.Kind() != WireInt || v.IntVal() != math.MaxInt64 {
		t.Errorf("expected Uint(MaxInt64) to normalize to Int, got %v", v.Kind())
	}
	big := uint64(math.MaxInt64) + 1
	if v := Uint(big); v.Kind() != WireUint || v.UintVal() != big {
		t.Errorf("expected Uint(%d) to stay Uint, got %v", big, v.Kind())
	}
	// Normalization makes numerically equal values structurally equal.
	if !Int(7).Equal(Uint(7)) {
		t.Error("expected Int(7) to equal Uint(7)")
	}
}

func TestWireSeqNilBecomesEmpty(t *testing.T) {
	v := Seq()
	if v.Kind() != WireSeq {
		t.Fatalf("expected sequence, got %v", v.Kind())
	}
	if v.Len() != 0 {
		t.Errorf("expected empty sequence, got len %d", v.Len())
	}
	if v.Values() == nil {
		t.Error("expected non-nil backing slice")
	}
}

func TestWireIndexPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic indexing a non-sequence")
		}
	}()
	Int(1).Index(0)
}

func TestWireEqual(t *testing.T) {
	big := uint64(math.MaxInt64) + 5
	tests := []struct {
		name string
		a, b WireValue
		want bool
	}{
		{"null null", Null(), Null(), true},
		{"null int", Null(), Int(0), false},
		{"bool same", Bool(true), Bool(true), true},
		{"bool differ", Bool(true), Bool(false), false},
		{"int same", Int(1), Int(1), true},
		{"int differ", Int(1), Int(2), false},
		{"int vs float", Int(1), Float(1), false},
		{"uint same", Uint(big), Uint(big), true},
		{"uint vs int", Uint(big), Int(5), false},
		{"float same", Float(0.5), Float(0.5), true},
		{"string same", String("a"), String("a"), true},
		{"string differ", String("a"), String("b"), false},
		{"seq same", Seq(Int(1), String("x")), Seq(Int(1), String("x")), true},
		{"seq length", Seq(Int(1)), Seq(Int(1), Int(2)), false},
		{"seq element", Seq(Int(1)), Seq(Int(2)), false},
		{"seq nested", Seq(Seq(Null())), Seq(Seq(Null())), true},
		{"seq vs null", Seq(), Null(), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Equal(tc.b); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
			if got := tc.b.Equal(tc.a); got != tc.want {
				t.Errorf("expected %v symmetrically, got %v", tc.want, got)
			}
		})
	}
}

func TestWireString(t *testing.T) {
	tests := []struct {
		v    WireValue
		want string
	}{
		{Null(), "null"},
		{Bool(false), "false"},
		{Bool(true), "true"},
		{Int(-5), "-5"},
		{Uint(uint64(math.MaxInt64) + 1), "9223372036854775808"},
		{Float(1.5), "1.5"},
		{Float(1e21), "1e+21"},
		{String(`he"y`), `"he\"y"`},
		{Seq(), "[]"},
		{Seq(Int(1), String("Cats"), Int(0), Seq()), `[1,"Cats",0,[]]`},
		{Seq(Seq(Null(), Bool(true))), "[[null,true]]"},
	}
	for _, tc := range tests {
		if got := tc.v.String(); got != tc.want {
			t.Errorf("expected %s, got %s", tc.want, got)
		}
	}
}

func TestWireKindString(t *testing.T) {
	tests := []struct {
		kind WireKind
		want string
	}{
		{WireNull, "null"},
		{WireBool, "bool"},
		{WireInt, "integer"},
		{WireUint, "integer"},
		{WireFloat, "float"},
		{WireString, "string"},
		{WireSeq, "sequence"},
		{WireKind(99), "invalid"},
	}
	for _, tc := range tests {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("expected %s, got %s", tc.want, got)
		}
	}
}
