package zetro

import (
	"context"
	"net/http"
)

type contextKey struct {
	name string
}

var (
	requestKey = &contextKey{"request"}
	writerKey  = &contextKey{"writer"}
	rpcInfoKey = &contextKey{"rpc_info"}
)

// RPCInfo describes the operation currently being served. Handlers and
// interceptors retrieve it with InfoFromContext.
type RPCInfo struct {
	// Route is the resolved route for this operation.
	Route *Route
	// RequestID identifies the enclosing HTTP request. Operations batched
	// in one envelope share it.
	RequestID string
	// BatchIndex is this operation's position in the envelope.
	BatchIndex int
	// BatchSize is the number of operations in the envelope.
	BatchSize int
}

// RequestFromContext returns the HTTP request that carried the current
// operation, or nil when the handler was invoked outside an App.
func RequestFromContext(ctx context.Context) *http.Request {
	if r, ok := ctx.Value(requestKey).(*http.Request); ok {
		return r
	}
	return nil
}

// SetHeader sets an HTTP response header. All operations in one envelope
// share a single HTTP response, so later operations overwrite earlier ones.
func SetHeader(ctx context.Context, key, value string) {
	if w, ok := ctx.Value(writerKey).(http.ResponseWriter); ok {
		w.Header().Set(key, value)
	}
}

// InfoFromContext returns metadata about the current operation.
func InfoFromContext(ctx context.Context) (*RPCInfo, bool) {
	info, ok := ctx.Value(rpcInfoKey).(*RPCInfo)
	return info, ok
}

// RouteFromContext returns the route of the current operation.
func RouteFromContext(ctx context.Context) (*Route, bool) {
	if info, ok := ctx.Value(rpcInfoKey).(*RPCInfo); ok {
		return info.Route, true
	}
	return nil, false
}

func newOpContext(ctx context.Context, w http.ResponseWriter, r *http.Request, info *RPCInfo) context.Context {
	ctx = context.WithValue(ctx, writerKey, w)
	ctx = context.WithValue(ctx, requestKey, r)
	ctx = context.WithValue(ctx, rpcInfoKey, info)
	return ctx
}
