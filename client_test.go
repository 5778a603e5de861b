package zetro

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// driftedTable is the chatroom table with an extra enum variant, so its
// fingerprint differs from chatroomTable while the Go bindings still fit.
func driftedTable(t *testing.T) *RouteTable {
	t.Helper()
	l := chatroomLayout()
	e := l.Enum("RoomStatus")
	if e == nil {
		t.Fatal("expected RoomStatus enum")
	}
	e.Variants = append(e.Variants, "ARCHIVED")
	table, err := NewRouteTable(l, []Route{
		{
			Name: "GetRooms", Kind: RouteQuery, WireName: "GetRooms",
			Request:  structRef(l.Struct("GetRoomsRequest")),
			Response: structRef(l.Struct("GetRoomsResponse")),
		},
		{
			Name: "SendMessage", Kind: RouteMutation, WireName: "SendMessage",
			Request:  structRef(l.Struct("SendMessageRequest")),
			Response: scalar(TypeU64),
		},
	})
	if err != nil {
		t.Fatalf("NewRouteTable: %v", err)
	}
	return table
}

func TestClientCallQuery(t *testing.T) {
	app, _ := newChatApp(t)
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	client := NewClient(chatroomTable(t), srv.URL)
	res, err := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(res.Rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(res.Rooms))
	}
	if res.Rooms[0].Name != "Furry cats" {
		t.Errorf("expected first room 'Furry cats', got %q", res.Rooms[0].Name)
	}
	if res.Rooms[1].Status != RoomDisabled {
		t.Errorf("expected second room disabled, got %d", res.Rooms[1].Status)
	}
}

func TestClientCallMutation(t *testing.T) {
	app, store := newChatApp(t)
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	client := NewClient(chatroomTable(t), srv.URL)
	req := &SendMessageRequest{
		RoomID: 0,
		Msg:    Message{Author: AuthorRef{Username: "mitoch0ndria"}, Date: 1714000000, Text: "perhaps"},
	}
	id, err := Call[SendMessageRequest, uint64](context.Background(), client, "SendMessage", req)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if *id != 248949 {
		t.Errorf("expected assigned id 248949, got %d", *id)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.rooms[0].Messages) != 1 || store.rooms[0].Messages[0].Author.Username != "mitoch0ndria" {
		t.Errorf("expected stored message from mitoch0ndria, got %+v", store.rooms[0].Messages)
	}
}

func TestClientBatch(t *testing.T) {
	app, _ := newChatApp(t)
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	client := NewClient(chatroomTable(t), srv.URL)
	disabled := RoomDisabled

	batch := client.Query()
	all := Queue[GetRoomsRequest, GetRoomsResponse](batch, "GetRooms", &GetRoomsRequest{})
	filtered := Queue[GetRoomsRequest, GetRoomsResponse](batch, "GetRooms", &GetRoomsRequest{WithStatus: &disabled})

	if all.Value() != nil {
		t.Error("expected nil value before Do")
	}

	if err := batch.Do(context.Background()); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := len(all.Value().Rooms); got != 2 {
		t.Errorf("expected 2 rooms unfiltered, got %d", got)
	}
	if got := len(filtered.Value().Rooms); got != 1 {
		t.Errorf("expected 1 disabled room, got %d", got)
	}
	if filtered.Value().Rooms[0].Name != "Differential calculus" {
		t.Errorf("expected the disabled room, got %q", filtered.Value().Rooms[0].Name)
	}
}

func TestClientEmptyBatch(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	client := NewClient(chatroomTable(t), srv.URL)
	if err := client.Query().Do(context.Background()); err != nil {
		t.Errorf("expected nil error for empty batch, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Error("expected no HTTP request for an empty batch")
	}
}

func TestClientQueueErrors(t *testing.T) {
	client := NewClient(chatroomTable(t), "http://unused.invalid")

	t.Run("unknown route", func(t *testing.T) {
		batch := client.Query()
		Queue[GetRoomsRequest, GetRoomsResponse](batch, "Nope", &GetRoomsRequest{})
		err := batch.Do(context.Background())
		if err == nil || !strings.Contains(err.Error(), `no route named "Nope"`) {
			t.Errorf("expected unknown route error, got %v", err)
		}
	})

	t.Run("kind mismatch", func(t *testing.T) {
		batch := client.Mutate()
		Queue[GetRoomsRequest, GetRoomsResponse](batch, "GetRooms", &GetRoomsRequest{})
		err := batch.Do(context.Background())
		if err == nil || !strings.Contains(err.Error(), "queued on a mutation batch") {
			t.Errorf("expected kind mismatch error, got %v", err)
		}
	})

	t.Run("binding failure", func(t *testing.T) {
		type wrongShape struct {
			Extra bool
		}
		batch := client.Query()
		p := Queue[wrongShape, GetRoomsResponse](batch, "GetRooms", &wrongShape{})
		err := batch.Do(context.Background())
		if err == nil || !strings.Contains(err.Error(), `route "GetRooms" request:`) {
			t.Errorf("expected binding error, got %v", err)
		}
		if p.Value() != nil {
			t.Error("expected nil value after failed batch")
		}
	})

	t.Run("first error wins", func(t *testing.T) {
		batch := client.Query()
		Queue[GetRoomsRequest, GetRoomsResponse](batch, "Nope", &GetRoomsRequest{})
		Queue[GetRoomsRequest, GetRoomsResponse](batch, "AlsoNope", &GetRoomsRequest{})
		err := batch.Do(context.Background())
		if err == nil || !strings.Contains(err.Error(), `"Nope"`) {
			t.Errorf("expected the first queue error, got %v", err)
		}
	})
}

func TestClientServerError(t *testing.T) {
	app, _ := newChatApp(t)
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	client := NewClient(chatroomTable(t), srv.URL)
	req := &SendMessageRequest{RoomID: 99, Msg: Message{Author: AuthorRef{Username: "hal42"}}}
	_, err := Call[SendMessageRequest, uint64](context.Background(), client, "SendMessage", req)

	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if rpcErr.Code != CodeNotFound {
		t.Errorf("expected code %s, got %s", CodeNotFound, rpcErr.Code)
	}
	if rpcErr.Message != "no room 99" {
		t.Errorf("expected message 'no room 99', got %q", rpcErr.Message)
	}
}

func TestClientSchemaPin(t *testing.T) {
	app, _ := newChatApp(t)
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	t.Run("drifted client rejected", func(t *testing.T) {
		client := NewClient(driftedTable(t), srv.URL)
		_, err := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{})

		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			t.Fatalf("expected *Error, got %T: %v", err, err)
		}
		if rpcErr.Code != CodeSchemaMismatch {
			t.Errorf("expected code %s, got %s", CodeSchemaMismatch, rpcErr.Code)
		}
	})

	t.Run("response pin checked", func(t *testing.T) {
		// The server skips its own check, so the request is served; the
		// client still refuses the answer when the response header drifts.
		loose, _ := newChatApp(t)
		loose.WithoutSchemaCheck()
		looseSrv := httptest.NewServer(loose.Handler())
		defer looseSrv.Close()

		client := NewClient(driftedTable(t), looseSrv.URL)
		_, err := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{})

		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			t.Fatalf("expected *Error, got %T: %v", err, err)
		}
		if rpcErr.Code != CodeSchemaMismatch {
			t.Errorf("expected code %s, got %s", CodeSchemaMismatch, rpcErr.Code)
		}
	})

	t.Run("pin disabled", func(t *testing.T) {
		client := NewClient(driftedTable(t), srv.URL).WithoutSchemaPin()
		res, err := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{})
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if len(res.Rooms) != 2 {
			t.Errorf("expected 2 rooms, got %d", len(res.Rooms))
		}
	})
}

// flakyHandler answers 503 for the first failures requests, then delegates.
type flakyHandler struct {
	failures int32
	attempts int32
	inner    http.Handler
}

func (f *flakyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := atomic.AddInt32(&f.attempts, 1)
	if n <= f.failures {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	f.inner.ServeHTTP(w, r)
}

func TestClientRetriesQueries(t *testing.T) {
	app, _ := newChatApp(t)
	flaky := &flakyHandler{failures: 1, inner: app.Handler()}
	srv := httptest.NewServer(flaky)
	defer srv.Close()

	client := NewClient(chatroomTable(t), srv.URL).WithRetries(2)
	res, err := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(res.Rooms) != 2 {
		t.Errorf("expected 2 rooms, got %d", len(res.Rooms))
	}
	if got := atomic.LoadInt32(&flaky.attempts); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestClientNeverRetriesMutations(t *testing.T) {
	app, _ := newChatApp(t)
	flaky := &flakyHandler{failures: 1, inner: app.Handler()}
	srv := httptest.NewServer(flaky)
	defer srv.Close()

	client := NewClient(chatroomTable(t), srv.URL).WithRetries(5)
	req := &SendMessageRequest{RoomID: 0, Msg: Message{Author: AuthorRef{Username: "hal42"}}}
	_, err := Call[SendMessageRequest, uint64](context.Background(), client, "SendMessage", req)

	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if rpcErr.Code != CodeUnavailable {
		t.Errorf("expected code %s, got %s", CodeUnavailable, rpcErr.Code)
	}
	if got := atomic.LoadInt32(&flaky.attempts); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
}

func TestClientNeverRetriesEnvelopeErrors(t *testing.T) {
	var hits int32
	app := NewApp(chatroomTable(t))
	err := HandleQuery(app, "GetRooms", func(ctx context.Context, req *GetRoomsRequest) (*GetRoomsResponse, error) {
		atomic.AddInt32(&hits, 1)
		return nil, errors.New("store offline")
	})
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	client := NewClient(chatroomTable(t), srv.URL).WithRetries(3)
	_, callErr := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{})

	var rpcErr *Error
	if !errors.As(callErr, &rpcErr) {
		t.Fatalf("expected *Error, got %T: %v", callErr, callErr)
	}
	if rpcErr.Code != CodeInternal {
		t.Errorf("expected code %s, got %s", CodeInternal, rpcErr.Code)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected 1 handler call, got %d", hits)
	}
}

func TestClientNoRetryBelow500(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "nothing here", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(chatroomTable(t), srv.URL).WithRetries(3)
	_, err := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{})

	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if rpcErr.Code != CodeUnavailable {
		t.Errorf("expected code %s, got %s", CodeUnavailable, rpcErr.Code)
	}
	if !strings.Contains(rpcErr.Message, "HTTP 404") {
		t.Errorf("expected HTTP 404 in message, got %q", rpcErr.Message)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected 1 attempt, got %d", hits)
	}
}

func TestClientRetryStopsOnContextDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(chatroomTable(t), srv.URL).WithRetries(5)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := func() error {
		batch := client.Query()
		Queue[GetRoomsRequest, GetRoomsResponse](batch, "GetRooms", &GetRoomsRequest{})
		return batch.Do(ctx)
	}()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestClientCBORFrame(t *testing.T) {
	app, _ := newChatApp(t)
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	client := NewClient(chatroomTable(t), srv.URL).WithFrame(FrameCBOR)
	res, err := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(res.Rooms) != 2 {
		t.Errorf("expected 2 rooms, got %d", len(res.Rooms))
	}
}

func TestClientCompression(t *testing.T) {
	app := NewApp(chatroomTable(t))
	app.WithCompression()
	longName := strings.Repeat("meow ", 1000)
	err := HandleQuery(app, "GetRooms", func(ctx context.Context, req *GetRoomsRequest) (*GetRoomsResponse, error) {
		return &GetRoomsResponse{Rooms: []Chatroom{{ID: 7, Name: longName, Messages: []Message{}}}}, nil
	})
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	client := NewClient(chatroomTable(t), srv.URL).WithCompression()
	res, callErr := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{})
	if callErr != nil {
		t.Fatalf("Call: %v", callErr)
	}
	if res.Rooms[0].Name != longName {
		t.Error("expected the padded room name to survive compression")
	}
}

func TestClientCodecCache(t *testing.T) {
	app, _ := newChatApp(t)
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	client := NewClient(chatroomTable(t), srv.URL)
	call := func() {
		if _, err := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{}); err != nil {
			t.Fatalf("Call: %v", err)
		}
	}

	call()
	client.mu.RLock()
	after1 := len(client.codecs)
	client.mu.RUnlock()
	if after1 != 2 {
		t.Errorf("expected 2 cached codecs after first call, got %d", after1)
	}

	call()
	client.mu.RLock()
	after2 := len(client.codecs)
	client.mu.RUnlock()
	if after2 != after1 {
		t.Errorf("expected cache to be reused, got %d entries", after2)
	}

	// A different Go binding for the same wire type gets its own entry.
	type roomsOnly struct {
		Rooms []Chatroom
	}
	batch := client.Query()
	p := Queue[GetRoomsRequest, roomsOnly](batch, "GetRooms", &GetRoomsRequest{})
	if err := batch.Do(context.Background()); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(p.Value().Rooms) != 2 {
		t.Errorf("expected 2 rooms, got %d", len(p.Value().Rooms))
	}
	client.mu.RLock()
	after3 := len(client.codecs)
	client.mu.RUnlock()
	if after3 != 3 {
		t.Errorf("expected 3 cached codecs, got %d", after3)
	}
}

func TestClientRogueServer(t *testing.T) {
	t.Run("wrong route in response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[[["Wrong",[[]]]],null]`))
		}))
		defer srv.Close()

		client := NewClient(chatroomTable(t), srv.URL).WithoutSchemaPin()
		_, err := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{})
		if err == nil || !strings.Contains(err.Error(), `is for route "Wrong", want "GetRooms"`) {
			t.Errorf("expected route mismatch error, got %v", err)
		}
	})

	t.Run("missing results", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[[],null]`))
		}))
		defer srv.Close()

		client := NewClient(chatroomTable(t), srv.URL).WithoutSchemaPin()
		_, err := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{})
		if err == nil || !strings.Contains(err.Error(), "answered 0 of 1 operations") {
			t.Errorf("expected missing results error, got %v", err)
		}
	})

	t.Run("invalid frame", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{not json`))
		}))
		defer srv.Close()

		client := NewClient(chatroomTable(t), srv.URL).WithoutSchemaPin()
		_, err := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{})
		if err == nil || !strings.Contains(err.Error(), "unmarshal response envelope") {
			t.Errorf("expected frame error, got %v", err)
		}
	})

	t.Run("malformed envelope", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[1,2,3]`))
		}))
		defer srv.Close()

		client := NewClient(chatroomTable(t), srv.URL).WithoutSchemaPin()
		_, err := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{})
		if err == nil || !strings.Contains(err.Error(), "malformed response envelope") {
			t.Errorf("expected envelope error, got %v", err)
		}
	})
}

func TestClientSendsRequestHeaders(t *testing.T) {
	var gotContentType, gotAccept, gotPin, gotReqID string
	app, _ := newChatApp(t)
	inner := app.Handler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAccept = r.Header.Get("Accept")
		gotPin = r.Header.Get(SchemaHeader)
		gotReqID = r.Header.Get(RequestIDHeader)
		inner.ServeHTTP(w, r)
	}))
	defer srv.Close()

	table := chatroomTable(t)
	client := NewClient(table, srv.URL)
	if _, err := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "GetRooms", &GetRoomsRequest{}); err != nil {
		t.Fatalf("Call: %v", err)
	}

	if gotContentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", gotContentType)
	}
	if gotAccept != "application/json" {
		t.Errorf("expected Accept application/json, got %s", gotAccept)
	}
	if gotPin != table.Fingerprint().String() {
		t.Errorf("expected schema pin %s, got %s", table.Fingerprint(), gotPin)
	}
	if gotReqID == "" {
		t.Error("expected a generated request id")
	}
}

func TestClientUnknownRouteInCall(t *testing.T) {
	client := NewClient(chatroomTable(t), "http://unused.invalid")
	_, err := Call[GetRoomsRequest, GetRoomsResponse](context.Background(), client, "Nope", &GetRoomsRequest{})
	if err == nil || !strings.Contains(err.Error(), `no route named "Nope"`) {
		t.Errorf("expected unknown route error, got %v", err)
	}
}
