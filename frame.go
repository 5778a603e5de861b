package zetro

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Frame converts wire values to and from transport bytes. Frames carry no
// schema knowledge; they only preserve the scalar/null/sequence shape.
type Frame interface {
	// Name identifies the frame in logs and headers ("json", "cbor").
	Name() string
	// ContentType is the MIME type to send with framed payloads.
	ContentType() string
	Marshal(v WireValue) ([]byte, error)
	Unmarshal(data []byte) (WireValue, error)
}

// FrameJSON frames wire values as JSON text. It is the default frame and the
// one the generated TypeScript-era clients spoke. Integers round-trip
// losslessly across the full u64 range; NaN and infinities cannot be framed
// and fail at marshal time.
var FrameJSON Frame = jsonFrame{}

// FrameCBOR frames wire values as deterministic CBOR.
var FrameCBOR Frame = cborFrame{}

type jsonFrame struct{}

func (jsonFrame) Name() string        { return "json" }
func (jsonFrame) ContentType() string { return "application/json" }

func (jsonFrame) Marshal(v WireValue) ([]byte, error) {
	a, err := toFrameAny(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(a)
}

func (jsonFrame) Unmarshal(data []byte) (WireValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var a any
	if err := dec.Decode(&a); err != nil {
		return Null(), fmt.Errorf("frame: invalid json: %w", err)
	}
	if dec.More() {
		return Null(), fmt.Errorf("frame: trailing data after json value")
	}
	return fromJSONAny(a)
}

type cborFrame struct{}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("zetro: cbor encode mode: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("zetro: cbor decode mode: " + err.Error())
	}
}

func (cborFrame) Name() string        { return "cbor" }
func (cborFrame) ContentType() string { return "application/cbor" }

func (cborFrame) Marshal(v WireValue) ([]byte, error) {
	a, err := toFrameAny(v)
	if err != nil {
		return nil, err
	}
	return cborEnc.Marshal(a)
}

func (cborFrame) Unmarshal(data []byte) (WireValue, error) {
	var a any
	if err := cborDec.Unmarshal(data, &a); err != nil {
		return Null(), fmt.Errorf("frame: invalid cbor: %w", err)
	}
	return fromCBORAny(a)
}

// toFrameAny lowers a WireValue to the any-tree both encoders accept.
// Non-finite floats are rejected here so both frames fail the same way.
func toFrameAny(v WireValue) (any, error) {
	switch v.kind {
	case WireNull:
		return nil, nil
	case WireBool:
		return v.b, nil
	case WireInt:
		return v.i, nil
	case WireUint:
		return v.u, nil
	case WireFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("frame: cannot encode non-finite float %v", v.f)
		}
		return v.f, nil
	case WireString:
		return v.s, nil
	case WireSeq:
		out := make([]any, len(v.seq))
		for i, e := range v.seq {
			a, err := toFrameAny(e)
			if err != nil {
				return nil, err
			}
			out[i] = a
		}
		return out, nil
	default:
		return nil, fmt.Errorf("frame: invalid wire value kind %d", v.kind)
	}
}

func fromJSONAny(a any) (WireValue, error) {
	switch t := a.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return numberValue(t)
	case string:
		return String(t), nil
	case []any:
		seq := make([]WireValue, len(t))
		for i, e := range t {
			v, err := fromJSONAny(e)
			if err != nil {
				return Null(), err
			}
			seq[i] = v
		}
		return Seq(seq...), nil
	case map[string]any:
		return Null(), fmt.Errorf("frame: objects are not part of the wire format")
	default:
		return Null(), fmt.Errorf("frame: unsupported json value %T", a)
	}
}

// numberValue parses a json.Number, preferring exact integer representations
// so the full u64 range survives the text frame.
func numberValue(n json.Number) (WireValue, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return Uint(u), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return Null(), fmt.Errorf("frame: bad number %q: %w", s, err)
	}
	return Float(f), nil
}

func fromCBORAny(a any) (WireValue, error) {
	switch t := a.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case int64:
		return Int(t), nil
	case uint64:
		return Uint(t), nil
	case float64:
		return Float(t), nil
	case float32:
		return Float(float64(t)), nil
	case string:
		return String(t), nil
	case []any:
		seq := make([]WireValue, len(t))
		for i, e := range t {
			v, err := fromCBORAny(e)
			if err != nil {
				return Null(), err
			}
			seq[i] = v
		}
		return Seq(seq...), nil
	case map[any]any, map[string]any:
		return Null(), fmt.Errorf("frame: maps are not part of the wire format")
	default:
		return Null(), fmt.Errorf("frame: unsupported cbor value %T", a)
	}
}
