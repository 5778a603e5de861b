package zetro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"reflect"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/klauspost/compress/gzhttp"
)

// SchemaHeader carries the route table fingerprint. The server stamps it on
// every response; a client that sends it pins the server to the schema it
// was built against.
const SchemaHeader = "Zetro-Schema"

// RequestIDHeader carries the request id. The server echoes a client-sent
// id and generates one otherwise.
const RequestIDHeader = "X-Request-Id"

var (
	validate        = validator.New()
	manifestDecoder = schema.NewDecoder()
)

func init() {
	manifestDecoder.IgnoreUnknownKeys(true)
}

// App serves the routes of one compiled table over HTTP. Every operation
// arrives as a POST envelope on a single endpoint, so the App handles all
// paths it is mounted on; GET <mount>/@manifest additionally serves the
// table as JSON. Use Handler() to get an http.Handler for use with
// http.ListenAndServe or a router.
type App struct {
	table       *RouteTable
	fingerprint Fingerprint

	mu     sync.RWMutex
	routes map[string]*boundRoute

	errorTransformer   ErrorTransformer
	maskInternalErrors bool
	interceptors       []UnaryInterceptor
	middlewares        []func(http.Handler) http.Handler
	logger             *slog.Logger
	metrics            *Metrics
	maxRequestBodySize int64
	skipSchemaCheck    bool
	compress           bool
}

type boundRoute struct {
	route    *Route
	reqCodec *Codec
	resCodec *Codec
	fn       HandlerFunc
}

// NewApp creates an App for the given route table.
func NewApp(table *RouteTable) *App {
	return &App{
		table:              table,
		fingerprint:        table.Fingerprint(),
		routes:             make(map[string]*boundRoute),
		maxRequestBodySize: 1 << 20, // 1MB default
	}
}

// Table returns the route table the app serves.
func (a *App) Table() *RouteTable { return a.table }

// Fingerprint returns the fingerprint of the served table.
func (a *App) Fingerprint() Fingerprint { return a.fingerprint }

// WithErrorTransformer adds a custom error transformer.
// It returns the app for chaining.
func (a *App) WithErrorTransformer(fn ErrorTransformer) *App {
	a.errorTransformer = fn
	return a
}

// WithMaskInternalErrors enables masking of internal error messages.
// This is useful in production to avoid leaking sensitive information.
// The original error is still available to interceptors and logging.
func (a *App) WithMaskInternalErrors() *App {
	a.maskInternalErrors = true
	return a
}

// WithUnaryInterceptor adds a global interceptor. Interceptors execute in
// the order they were added, once per operation in an envelope.
func (a *App) WithUnaryInterceptor(i UnaryInterceptor) *App {
	a.interceptors = append(a.interceptors, i)
	return a
}

// WithMiddleware adds an HTTP middleware to wrap the app.
// Middleware is applied in the order added (first added is outermost).
func (a *App) WithMiddleware(mw func(http.Handler) http.Handler) *App {
	a.middlewares = append(a.middlewares, mw)
	return a
}

// WithLogger sets a custom logger for the app.
// If not set, slog.Default() will be used.
func (a *App) WithLogger(logger *slog.Logger) *App {
	a.logger = logger
	return a
}

// WithMetrics attaches Prometheus instruments.
func (a *App) WithMetrics(m *Metrics) *App {
	a.metrics = m
	return a
}

// WithMaxRequestBodySize sets the maximum request body size.
// A value of 0 means no limit. Default is 1MB (1 << 20).
func (a *App) WithMaxRequestBodySize(size int64) *App {
	a.maxRequestBodySize = size
	return a
}

// WithCompression serves gzip-encoded responses to clients that accept
// them. Small responses stay uncompressed.
func (a *App) WithCompression() *App {
	a.compress = true
	return a
}

// WithoutSchemaCheck disables fingerprint pinning. Requests that carry a
// mismatched schema header are served anyway.
func (a *App) WithoutSchemaCheck() *App {
	a.skipSchemaCheck = true
	return a
}

// HandleQuery binds fn as the handler for the named query route. The
// request and response Go types must bind to the route's schema types;
// binding failures are reported here, at registration, not per request.
func HandleQuery[Req any, Res any](a *App, name string, fn func(ctx context.Context, req *Req) (*Res, error)) error {
	return a.handle(name, RouteQuery, reflect.TypeOf((*Req)(nil)).Elem(), reflect.TypeOf((*Res)(nil)).Elem(), func(ctx context.Context, req any) (any, error) {
		typed, ok := req.(*Req)
		if !ok {
			return nil, Errorf(CodeInternal, "interceptor replaced request with %T", req)
		}
		return fn(ctx, typed)
	})
}

// HandleMutation binds fn as the handler for the named mutation route.
func HandleMutation[Req any, Res any](a *App, name string, fn func(ctx context.Context, req *Req) (*Res, error)) error {
	return a.handle(name, RouteMutation, reflect.TypeOf((*Req)(nil)).Elem(), reflect.TypeOf((*Res)(nil)).Elem(), func(ctx context.Context, req any) (any, error) {
		typed, ok := req.(*Req)
		if !ok {
			return nil, Errorf(CodeInternal, "interceptor replaced request with %T", req)
		}
		return fn(ctx, typed)
	})
}

func (a *App) handle(name string, kind RouteKind, reqType, resType reflect.Type, fn HandlerFunc) error {
	route, ok := a.table.Route(name)
	if !ok {
		return fmt.Errorf("zetro: no route named %q", name)
	}
	if route.Kind != kind {
		return fmt.Errorf("zetro: route %q is a %s, registered as a %s", name, route.Kind, kind)
	}
	reqCodec, err := BindType(route.Request, reqType)
	if err != nil {
		return fmt.Errorf("zetro: route %q request: %w", name, err)
	}
	resCodec, err := BindType(route.Response, resType)
	if err != nil {
		return fmt.Errorf("zetro: route %q response: %w", name, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.routes[route.WireName]; exists {
		a.log().Warn("duplicate handler registration", slog.String("route", name))
	}
	a.routes[route.WireName] = &boundRoute{route: route, reqCodec: reqCodec, resCodec: resCodec, fn: fn}
	return nil
}

// Handler returns an http.Handler including all configured middleware.
// Routes without a registered handler are logged; calling one fails with
// not_implemented.
func (a *App) Handler() http.Handler {
	a.mu.RLock()
	for i := range a.table.Routes {
		r := &a.table.Routes[i]
		if _, ok := a.routes[r.WireName]; !ok {
			a.log().Warn("route has no handler", slog.String("route", r.Name))
		}
	}
	a.mu.RUnlock()

	var h http.Handler = http.HandlerFunc(a.serveHTTP)
	// Apply middleware in reverse order so first added is outermost.
	for i := len(a.middlewares) - 1; i >= 0; i-- {
		h = a.middlewares[i](h)
	}
	if a.compress {
		h = gzhttp.GzipHandler(h)
	}
	return h
}

func (a *App) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}

func (a *App) serveHTTP(w http.ResponseWriter, r *http.Request) {
	frame := frameFor(r.Header.Get("Content-Type"))
	a.metrics.incInflight()
	defer a.metrics.decInflight()
	defer func() {
		if rec := recover(); rec != nil {
			a.log().Error("PANIC recovered",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			rpcErr := Errorf(CodeInternal, "internal server error (panic): %v", rec)
			if a.maskInternalErrors {
				rpcErr = NewError(CodeInternal, "internal server error")
			}
			a.writeEnvelope(w, frame, encodeResponseEnvelope(nil, rpcErr))
		}
	}()

	if r.Method == http.MethodGet && path.Base(r.URL.Path) == "@manifest" {
		a.serveManifest(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if pin := r.Header.Get(SchemaHeader); pin != "" && !a.skipSchemaCheck {
		if pin != a.fingerprint.String() {
			a.writeEnvelope(w, frame, encodeResponseEnvelope(nil,
				Errorf(CodeSchemaMismatch, "client schema %s, server schema %s", pin, a.fingerprint)))
			return
		}
	}

	body := io.Reader(r.Body)
	if a.maxRequestBodySize > 0 {
		body = http.MaxBytesReader(w, r.Body, a.maxRequestBodySize)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			a.failEnvelope(w, frame, Errorf(CodeResourceExhausted, "request body exceeds %d bytes", mbe.Limit))
			return
		}
		a.failEnvelope(w, frame, Errorf(CodeInvalidArgument, "read request body: %v", err))
		return
	}

	env, err := frame.Unmarshal(raw)
	if err != nil {
		a.failEnvelope(w, frame, Errorf(CodeInvalidArgument, "unmarshal envelope: %v", err))
		return
	}
	kind, ops, err := decodeRequestEnvelope(env)
	if err != nil {
		a.failEnvelope(w, frame, err)
		return
	}
	a.metrics.observeBatch(len(ops))

	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)

	// Operations run in order. The first failure aborts the batch: earlier
	// results are discarded and the envelope carries only the error.
	results := make([]wireOp, 0, len(ops))
	for i, op := range ops {
		a.mu.RLock()
		br, ok := a.routes[op.Route]
		a.mu.RUnlock()
		if !ok {
			if _, known := a.table.RouteByWireName(op.Route); known {
				a.failEnvelope(w, frame, Errorf(CodeNotImplemented, "route %q has no handler", op.Route))
			} else {
				a.failEnvelope(w, frame, Errorf(CodeNotFound, "unknown route %q", op.Route))
			}
			return
		}
		if br.route.Kind != kind {
			a.failEnvelope(w, frame, Errorf(CodeInvalidArgument,
				"route %s is a %s, called as a %s", br.route.Name, br.route.Kind, kind))
			return
		}
		res, err := a.invoke(w, r, br, op.Value, requestID, i, len(ops))
		if err != nil {
			a.failEnvelope(w, frame, err)
			return
		}
		results = append(results, wireOp{Route: op.Route, Value: res})
	}
	a.writeEnvelope(w, frame, encodeResponseEnvelope(results, nil))
}

// invoke decodes, validates and runs a single operation.
func (a *App) invoke(w http.ResponseWriter, r *http.Request, br *boundRoute, reqWire WireValue, requestID string, idx, n int) (WireValue, error) {
	start := time.Now()
	info := &RPCInfo{Route: br.route, RequestID: requestID, BatchIndex: idx, BatchSize: n}
	ctx := newOpContext(r.Context(), w, r, info)

	req := reflect.New(br.reqCodec.GoType())
	if err := br.reqCodec.Decode(reqWire, req.Interface()); err != nil {
		var derr *DecodeError
		if errors.As(err, &derr) {
			a.metrics.observeDecodeFailure(derr.Kind)
		}
		a.metrics.observeOp(br.route.Name, br.route.Kind, CodeInvalidArgument, time.Since(start))
		return Null(), err
	}
	// Scalar and slice requests have nothing to validate; the validator
	// only accepts structs.
	if br.reqCodec.GoType().Kind() == reflect.Struct {
		if err := validate.Struct(req.Interface()); err != nil {
			a.metrics.observeOp(br.route.Name, br.route.Kind, CodeInvalidArgument, time.Since(start))
			return Null(), err
		}
	}

	var res any
	var err error
	if chain := chainInterceptors(a.interceptors); chain != nil {
		res, err = chain(ctx, info, req.Interface(), br.fn)
	} else {
		res, err = br.fn(ctx, req.Interface())
	}
	if err != nil {
		a.metrics.observeOp(br.route.Name, br.route.Kind, a.transformError(err).Code, time.Since(start))
		return Null(), err
	}

	wv, err := br.resCodec.Encode(res)
	if err != nil {
		a.metrics.observeOp(br.route.Name, br.route.Kind, CodeInternal, time.Since(start))
		return Null(), err
	}
	a.metrics.observeOp(br.route.Name, br.route.Kind, "", time.Since(start))
	return wv, nil
}

func (a *App) transformError(err error) *Error {
	var rpcErr *Error
	if a.errorTransformer != nil {
		rpcErr = a.errorTransformer(err)
	}
	if rpcErr == nil {
		rpcErr = DefaultErrorTransformer(err)
	}
	if a.maskInternalErrors && rpcErr.Code == CodeInternal {
		rpcErr = NewError(CodeInternal, "internal server error")
	}
	return rpcErr
}

// failEnvelope aborts the request with an error envelope. Transport keeps
// HTTP 200; the error travels in the envelope's second element.
func (a *App) failEnvelope(w http.ResponseWriter, f Frame, err error) {
	var derr *DecodeError
	if errors.As(err, &derr) {
		a.metrics.observeDecodeFailure(derr.Kind)
	}
	rpcErr := a.transformError(err)
	a.log().Warn("request failed",
		slog.String("code", string(rpcErr.Code)),
		slog.String("error", err.Error()))
	a.writeEnvelope(w, f, encodeResponseEnvelope(nil, rpcErr))
}

func (a *App) writeEnvelope(w http.ResponseWriter, f Frame, env WireValue) {
	data, err := f.Marshal(env)
	if err != nil {
		a.log().Error("marshal response envelope",
			slog.String("frame", f.Name()),
			slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", f.ContentType())
	h.Set(SchemaHeader, a.fingerprint.String())
	if _, err := w.Write(data); err != nil {
		a.log().Debug("write response", slog.Any("error", err))
	}
}

type manifestQuery struct {
	Pretty      bool `schema:"pretty"`
	Fingerprint bool `schema:"fingerprint"`
}

// serveManifest writes the route table as JSON so clients and tooling can
// inspect the schema a server was built against.
func (a *App) serveManifest(w http.ResponseWriter, r *http.Request) {
	var q manifestQuery
	if err := manifestDecoder.Decode(&q, r.URL.Query()); err != nil {
		http.Error(w, "bad query: "+err.Error(), http.StatusBadRequest)
		return
	}
	if q.Fingerprint {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set(SchemaHeader, a.fingerprint.String())
		fmt.Fprintln(w, a.fingerprint)
		return
	}
	var (
		data []byte
		err  error
	)
	if q.Pretty {
		data, err = json.MarshalIndent(a.table, "", "  ")
	} else {
		data, err = json.Marshal(a.table)
	}
	if err != nil {
		a.log().Error("marshal manifest", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(SchemaHeader, a.fingerprint.String())
	w.Write(data)
}

// frameFor picks the frame matching a Content-Type header. JSON is the
// default for absent or unrecognized types.
func frameFor(contentType string) Frame {
	ct := contentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == FrameCBOR.ContentType() {
		return FrameCBOR
	}
	return FrameJSON
}
