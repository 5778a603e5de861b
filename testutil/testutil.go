// Package testutil provides helpers for driving zetro apps over HTTP in
// tests: a fluent builder for positional request envelopes and a decoder for
// response envelopes. The package is import-cycle safe and can be used from
// any package.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// Envelope builds a positional request envelope without a bound client, so
// tests can send exactly the bytes they mean to, valid or not.
type Envelope struct {
	method  int64
	ops     []any
	path    string
	headers map[string]string
}

// Query starts a query envelope (method code 1).
func Query() *Envelope {
	return &Envelope{method: 1, path: "/", headers: make(map[string]string)}
}

// Mutation starts a mutation envelope (method code 2).
func Mutation() *Envelope {
	return &Envelope{method: 2, path: "/", headers: make(map[string]string)}
}

// Op appends one [route, payload] operation. The payload is marshaled with
// encoding/json, so positional values are written as []any trees.
func (e *Envelope) Op(route string, payload any) *Envelope {
	e.ops = append(e.ops, []any{route, payload})
	return e
}

// Path sets the request path. Default is "/".
func (e *Envelope) Path(p string) *Envelope {
	e.path = p
	return e
}

// WithHeader adds a header to the request.
func (e *Envelope) WithHeader(key, value string) *Envelope {
	e.headers[key] = value
	return e
}

// Body returns the envelope as JSON bytes.
func (e *Envelope) Body() []byte {
	ops := e.ops
	if ops == nil {
		ops = []any{}
	}
	data, err := json.Marshal([]any{e.method, ops})
	if err != nil {
		panic("testutil: marshal envelope: " + err.Error())
	}
	return data
}

// Request builds the POST request and a recorder for it.
func (e *Envelope) Request() (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, e.path, bytes.NewReader(e.Body()))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}
	return req, httptest.NewRecorder()
}

// Serve sends the envelope through the handler and returns the recorder.
func (e *Envelope) Serve(h http.Handler) *httptest.ResponseRecorder {
	req, w := e.Request()
	h.ServeHTTP(w, req)
	return w
}

// Reply is a decoded response envelope: either per-route results or one
// top-level error, never both.
type Reply struct {
	Results []OpResult
	Err     *ReplyError
}

// OpResult is one [route, value] pair from a successful reply. Value is the
// decoded JSON tree with numbers kept as json.Number.
type OpResult struct {
	Route string
	Value any
}

// ReplyError is the wire error descriptor of a failed reply.
type ReplyError struct {
	Code    int64
	Message string
}

// DecodeReply parses the recorded response body as a response envelope.
func DecodeReply(t *testing.T, w *httptest.ResponseRecorder) *Reply {
	t.Helper()

	dec := json.NewDecoder(bytes.NewReader(w.Body.Bytes()))
	dec.UseNumber()
	var env []any
	if err := dec.Decode(&env); err != nil {
		t.Fatalf("failed to decode envelope: %v\nBody: %s", err, w.Body.String())
	}
	if len(env) != 2 {
		t.Fatalf("expected a 2-element envelope, got %d\nBody: %s", len(env), w.Body.String())
	}

	r := &Reply{}
	if env[1] != nil {
		pair, ok := env[1].([]any)
		if !ok || len(pair) != 2 {
			t.Fatalf("malformed error descriptor: %v", env[1])
		}
		num, ok := pair[0].(json.Number)
		if !ok {
			t.Fatalf("error code is not a number: %v", pair[0])
		}
		code, err := num.Int64()
		if err != nil {
			t.Fatalf("error code %q: %v", num, err)
		}
		msg, ok := pair[1].(string)
		if !ok {
			t.Fatalf("error message is not a string: %v", pair[1])
		}
		r.Err = &ReplyError{Code: code, Message: msg}
		return r
	}

	results, ok := env[0].([]any)
	if !ok {
		t.Fatalf("result list is not a sequence: %v", env[0])
	}
	for i, raw := range results {
		pair, ok := raw.([]any)
		if !ok || len(pair) != 2 {
			t.Fatalf("result %d is not a [route, value] pair: %v", i, raw)
		}
		route, ok := pair[0].(string)
		if !ok {
			t.Fatalf("result %d route is not a string: %v", i, pair[0])
		}
		r.Results = append(r.Results, OpResult{Route: route, Value: pair[1]})
	}
	return r
}

// Result returns the value answered for the named route.
func (r *Reply) Result(route string) (any, bool) {
	for _, res := range r.Results {
		if res.Route == route {
			return res.Value, true
		}
	}
	return nil, false
}

// AssertOK fails the test when the reply carries an error.
func AssertOK(t *testing.T, r *Reply) {
	t.Helper()
	if r.Err != nil {
		t.Errorf("expected a successful reply, got error %d: %s", r.Err.Code, r.Err.Message)
	}
}

// AssertError checks that the reply failed with the expected wire code and
// returns the descriptor for further checks.
func AssertError(t *testing.T, r *Reply, wireCode int64) *ReplyError {
	t.Helper()
	if r.Err == nil {
		t.Fatalf("expected error %d, got a successful reply with %d results", wireCode, len(r.Results))
	}
	if r.Err.Code != wireCode {
		t.Errorf("expected error code %d, got %d (message: %s)", wireCode, r.Err.Code, r.Err.Message)
	}
	return r.Err
}

// AssertResult compares the value answered for route against expected JSON
// text, ignoring formatting differences.
func AssertResult(t *testing.T, r *Reply, route string, expectedJSON string) {
	t.Helper()

	got, ok := r.Result(route)
	if !ok {
		t.Fatalf("no result for route %q", route)
	}
	gotJSON, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}

	var expected any
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		t.Fatalf("bad expected JSON %q: %v", expectedJSON, err)
	}
	var actual any
	if err := json.Unmarshal(gotJSON, &actual); err != nil {
		t.Fatalf("reparse result: %v", err)
	}

	expectedStr, _ := json.MarshalIndent(expected, "", "  ")
	actualStr, _ := json.MarshalIndent(actual, "", "  ")
	if string(expectedStr) != string(actualStr) {
		t.Errorf("result mismatch for %s:\nExpected:\n%s\nActual:\n%s", route, expectedStr, actualStr)
	}
}

// AssertStatus checks that the response has the expected status code.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if w.Code != expectedStatus {
		t.Errorf("expected status %d, got %d\nBody: %s", expectedStatus, w.Code, w.Body.String())
	}
}

// AssertHeader checks that a response header has the expected value.
func AssertHeader(t *testing.T, w *httptest.ResponseRecorder, key, expectedValue string) {
	t.Helper()
	actual := w.Header().Get(key)
	if actual != expectedValue {
		t.Errorf("expected header %s=%s, got %s", key, expectedValue, actual)
	}
}
