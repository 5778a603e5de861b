package zetro

// wireOp pairs a route's wire name with one encoded value. The same shape
// carries requests and responses.
type wireOp struct {
	Route string
	Value WireValue
}

// encodeRequestEnvelope builds [method, [[route, request], ...]]. The method
// code distinguishes query batches from mutation batches; a single envelope
// never mixes the two.
func encodeRequestEnvelope(kind RouteKind, ops []wireOp) WireValue {
	pairs := make([]WireValue, len(ops))
	for i, op := range ops {
		pairs[i] = Seq(String(op.Route), op.Value)
	}
	return Seq(Int(int64(kind)), Seq(pairs...))
}

// decodeRequestEnvelope validates and splits a request envelope.
func decodeRequestEnvelope(w WireValue) (RouteKind, []wireOp, error) {
	switch w.Kind() {
	case WireSeq:
	case WireNull:
		return 0, nil, decodeErrf(UnexpectedNull, "null request envelope")
	default:
		return 0, nil, decodeErrf(TypeMismatch, "request envelope must be a sequence, got %s", w.Kind())
	}
	if w.Len() != 2 {
		return 0, nil, decodeErrf(ArityMismatch, "request envelope has 2 elements, got %d", w.Len())
	}
	method := w.Index(0)
	if method.Kind() != WireInt {
		return 0, nil, decodeErrf(TypeMismatch, "method code must be an integer, got %s", method.Kind())
	}
	var kind RouteKind
	switch method.IntVal() {
	case int64(RouteQuery):
		kind = RouteQuery
	case int64(RouteMutation):
		kind = RouteMutation
	default:
		return 0, nil, decodeErrf(InvalidDiscriminant, "unknown method code %d", method.IntVal())
	}
	rawOps := w.Index(1)
	if rawOps.Kind() != WireSeq {
		return 0, nil, decodeErrf(TypeMismatch, "operation list must be a sequence, got %s", rawOps.Kind())
	}
	ops := make([]wireOp, rawOps.Len())
	for i := 0; i < rawOps.Len(); i++ {
		pair := rawOps.Index(i)
		if pair.Kind() != WireSeq {
			return 0, nil, decodeErrf(TypeMismatch, "operation %d must be a [route, request] pair", i)
		}
		if pair.Len() != 2 {
			return 0, nil, decodeErrf(ArityMismatch, "operation %d must be a [route, request] pair, got %d elements", i, pair.Len())
		}
		name := pair.Index(0)
		if name.Kind() != WireString {
			return 0, nil, decodeErrf(TypeMismatch, "operation %d route name must be a string, got %s", i, name.Kind())
		}
		ops[i] = wireOp{Route: name.StringVal(), Value: pair.Index(1)}
	}
	return kind, ops, nil
}

// encodeResponseEnvelope builds [[[route, response], ...], null] on success
// and [null, [code, message]] on failure. A failed batch carries no partial
// results; callers retry or report the whole envelope.
func encodeResponseEnvelope(ops []wireOp, topErr *Error) WireValue {
	if topErr != nil {
		return Seq(Null(), Seq(Int(topErr.Code.WireCode()), String(topErr.Message)))
	}
	pairs := make([]WireValue, len(ops))
	for i, op := range ops {
		pairs[i] = Seq(String(op.Route), op.Value)
	}
	return Seq(Seq(pairs...), Null())
}

// decodeResponseEnvelope splits a response envelope into per-route results,
// or the server-reported error when the second element is set.
func decodeResponseEnvelope(w WireValue) ([]wireOp, *Error, error) {
	switch w.Kind() {
	case WireSeq:
	case WireNull:
		return nil, nil, decodeErrf(UnexpectedNull, "null response envelope")
	default:
		return nil, nil, decodeErrf(TypeMismatch, "response envelope must be a sequence, got %s", w.Kind())
	}
	if w.Len() != 2 {
		return nil, nil, decodeErrf(ArityMismatch, "response envelope has 2 elements, got %d", w.Len())
	}
	if errV := w.Index(1); !errV.IsNull() {
		if errV.Kind() != WireSeq || errV.Len() != 2 {
			return nil, nil, decodeErrf(TypeMismatch, "response error must be a [code, message] pair")
		}
		code, msg := errV.Index(0), errV.Index(1)
		if code.Kind() != WireInt || msg.Kind() != WireString {
			return nil, nil, decodeErrf(TypeMismatch, "response error must be a [code, message] pair")
		}
		return nil, &Error{Code: codeFromWire(code.IntVal()), Message: msg.StringVal()}, nil
	}
	rawOps := w.Index(0)
	if rawOps.Kind() != WireSeq {
		return nil, nil, decodeErrf(TypeMismatch, "response payload must be a sequence, got %s", rawOps.Kind())
	}
	ops := make([]wireOp, rawOps.Len())
	for i := 0; i < rawOps.Len(); i++ {
		pair := rawOps.Index(i)
		if pair.Kind() != WireSeq {
			return nil, nil, decodeErrf(TypeMismatch, "response %d must be a [route, response] pair", i)
		}
		if pair.Len() != 2 {
			return nil, nil, decodeErrf(ArityMismatch, "response %d must be a [route, response] pair, got %d elements", i, pair.Len())
		}
		name := pair.Index(0)
		if name.Kind() != WireString {
			return nil, nil, decodeErrf(TypeMismatch, "response %d route name must be a string, got %s", i, name.Kind())
		}
		ops[i] = wireOp{Route: name.StringVal(), Value: pair.Index(1)}
	}
	return ops, nil, nil
}
