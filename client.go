package zetro

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
)

// Client calls the routes of one compiled table. Operations are queued on a
// Batch and sent together in a single envelope; Call is the one-shot
// convenience for a single operation.
//
// Codecs bind lazily on first use of a (route, Go type) pair and are cached,
// so a long-lived Client pays for reflection once per pair.
type Client struct {
	table       *RouteTable
	fingerprint Fingerprint
	endpoint    string
	httpClient  *http.Client
	frame       Frame
	logger      *slog.Logger
	retries     int
	skipPin     bool

	mu     sync.RWMutex
	codecs map[codecKey]*Codec
}

type codecKey struct {
	ref *TypeRef
	rt  reflect.Type
}

// NewClient creates a client for the table, posting envelopes to endpoint.
func NewClient(table *RouteTable, endpoint string) *Client {
	return &Client{
		table:       table,
		fingerprint: table.Fingerprint(),
		endpoint:    endpoint,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		frame:       FrameJSON,
		codecs:      make(map[codecKey]*Codec),
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.httpClient = h
	return c
}

// WithFrame selects the byte encoding for envelopes. Default is JSON.
func (c *Client) WithFrame(f Frame) *Client {
	c.frame = f
	return c
}

// WithLogger sets a custom logger. If not set, slog.Default() is used.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithRetries re-sends query envelopes up to n times after transport
// failures (connection errors, HTTP 5xx). Mutations are never retried:
// the envelope may have been applied even when the response was lost.
func (c *Client) WithRetries(n int) *Client {
	c.retries = n
	return c
}

// WithCompression asks for gzip responses and decompresses them
// transparently.
func (c *Client) WithCompression() *Client {
	t := c.httpClient.Transport
	if t == nil {
		t = http.DefaultTransport
	}
	c.httpClient.Transport = gzhttp.Transport(t)
	return c
}

// WithoutSchemaPin stops the client from sending its schema fingerprint and
// from checking the server's. Useful against servers built from a newer,
// compatible table.
func (c *Client) WithoutSchemaPin() *Client {
	c.skipPin = true
	return c
}

func (c *Client) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

func (c *Client) codec(ref *TypeRef, rt reflect.Type) (*Codec, error) {
	key := codecKey{ref: ref, rt: rt}
	c.mu.RLock()
	cd, ok := c.codecs[key]
	c.mu.RUnlock()
	if ok {
		return cd, nil
	}
	cd, err := BindType(ref, rt)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.codecs[key] = cd
	c.mu.Unlock()
	return cd, nil
}

// Query starts a batch of query operations.
func (c *Client) Query() *Batch {
	return &Batch{client: c, kind: RouteQuery}
}

// Mutate starts a batch of mutation operations.
func (c *Client) Mutate() *Batch {
	return &Batch{client: c, kind: RouteMutation}
}

// Batch accumulates operations of one kind for a single envelope. A batch
// is not safe for concurrent use and is spent after Do.
type Batch struct {
	client *Client
	kind   RouteKind
	ops    []pendingOp
	err    error
}

type pendingOp struct {
	route  *Route
	req    WireValue
	decode func(WireValue) error
}

// Pending holds one operation's decoded response after Batch.Do returns
// nil. Value is nil before that, and on any batch failure.
type Pending[Res any] struct {
	res *Res
}

// Value returns the decoded response, or nil if the batch has not
// completed successfully.
func (p *Pending[Res]) Value() *Res { return p.res }

// Queue adds an operation to the batch. Queueing errors (unknown route,
// wrong kind, binding or encoding failures) are deferred to Do so call
// sites stay linear.
func Queue[Req any, Res any](b *Batch, routeName string, req *Req) *Pending[Res] {
	p := &Pending[Res]{}
	if b.err != nil {
		return p
	}
	route, ok := b.client.table.Route(routeName)
	if !ok {
		b.err = fmt.Errorf("zetro: no route named %q", routeName)
		return p
	}
	if route.Kind != b.kind {
		b.err = fmt.Errorf("zetro: route %q is a %s, queued on a %s batch", routeName, route.Kind, b.kind)
		return p
	}
	reqCodec, err := b.client.codec(route.Request, reflect.TypeOf((*Req)(nil)).Elem())
	if err != nil {
		b.err = fmt.Errorf("zetro: route %q request: %w", routeName, err)
		return p
	}
	resCodec, err := b.client.codec(route.Response, reflect.TypeOf((*Res)(nil)).Elem())
	if err != nil {
		b.err = fmt.Errorf("zetro: route %q response: %w", routeName, err)
		return p
	}
	reqWire, err := reqCodec.Encode(req)
	if err != nil {
		b.err = fmt.Errorf("zetro: route %q request: %w", routeName, err)
		return p
	}
	b.ops = append(b.ops, pendingOp{
		route: route,
		req:   reqWire,
		decode: func(w WireValue) error {
			var res Res
			if err := resCodec.Decode(w, &res); err != nil {
				return fmt.Errorf("zetro: route %q response: %w", routeName, err)
			}
			p.res = &res
			return nil
		},
	})
	return p
}

// Do sends the batch and decodes every response. The server runs operations
// in queue order and aborts on the first failure, so either every Pending
// is filled or none is.
func (b *Batch) Do(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if len(b.ops) == 0 {
		return nil
	}
	c := b.client

	wireOps := make([]wireOp, len(b.ops))
	for i := range b.ops {
		wireOps[i] = wireOp{Route: b.ops[i].route.WireName, Value: b.ops[i].req}
	}
	data, err := c.frame.Marshal(encodeRequestEnvelope(b.kind, wireOps))
	if err != nil {
		return fmt.Errorf("zetro: marshal request envelope: %w", err)
	}

	results, err := c.send(ctx, b.kind, data)
	if err != nil {
		return err
	}
	if len(results) != len(b.ops) {
		return Errorf(CodeInternal, "server answered %d of %d operations", len(results), len(b.ops))
	}
	for i, res := range results {
		if res.Route != b.ops[i].route.WireName {
			return Errorf(CodeInternal, "response %d is for route %q, want %q", i, res.Route, b.ops[i].route.WireName)
		}
		if err := b.ops[i].decode(res.Value); err != nil {
			return err
		}
	}
	return nil
}

// send posts one encoded envelope, retrying transport failures for query
// batches. Errors the server reports inside the envelope are returned as
// *Error and never retried.
func (c *Client) send(ctx context.Context, kind RouteKind, data []byte) ([]wireOp, error) {
	attempts := 1
	if kind.SafeToRetry() && c.retries > 0 {
		attempts += c.retries
	}
	backoff := 100 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.log().Debug("retrying request",
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		ops, err, retryable := c.roundTrip(ctx, data)
		if err == nil {
			return ops, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) roundTrip(ctx context.Context, data []byte) (ops []wireOp, err error, retryable bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err, false
	}
	req.Header.Set("Content-Type", c.frame.ContentType())
	req.Header.Set("Accept", c.frame.ContentType())
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if !c.skipPin {
		req.Header.Set(SchemaHeader, c.fingerprint.String())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("zetro: post envelope: %w", err), true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, Errorf(CodeUnavailable, "server returned HTTP %d", resp.StatusCode),
			resp.StatusCode >= 500
	}
	if !c.skipPin {
		if got := resp.Header.Get(SchemaHeader); got != "" && got != c.fingerprint.String() {
			return nil, Errorf(CodeSchemaMismatch, "server schema %s, client schema %s", got, c.fingerprint), false
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("zetro: read response body: %w", err), true
	}
	env, err := frameFor(resp.Header.Get("Content-Type")).Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("zetro: unmarshal response envelope: %w", err), false
	}
	results, rpcErr, err := decodeResponseEnvelope(env)
	if err != nil {
		return nil, fmt.Errorf("zetro: malformed response envelope: %w", err), false
	}
	if rpcErr != nil {
		return nil, rpcErr, false
	}
	return results, nil, false
}

// Call sends a single operation in its own envelope. The route's kind picks
// the batch type, so Call works for queries and mutations alike.
func Call[Req any, Res any](ctx context.Context, c *Client, routeName string, req *Req) (*Res, error) {
	route, ok := c.table.Route(routeName)
	if !ok {
		return nil, fmt.Errorf("zetro: no route named %q", routeName)
	}
	var b *Batch
	if route.Kind == RouteMutation {
		b = c.Mutate()
	} else {
		b = c.Query()
	}
	p := Queue[Req, Res](b, routeName, req)
	if err := b.Do(ctx); err != nil {
		return nil, err
	}
	return p.Value(), nil
}
