package zetro

import (
	"context"
	"net/http/httptest"
	"testing"
)

func testOpContext(t *testing.T) (context.Context, *httptest.ResponseRecorder, *RPCInfo) {
	t.Helper()
	req := httptest.NewRequest("POST", "/rpc", nil)
	w := httptest.NewRecorder()
	info := &RPCInfo{
		Route:      &Route{Name: "GetRooms", Kind: RouteQuery, WireName: "GetRooms"},
		RequestID:  "req-1",
		BatchIndex: 0,
		BatchSize:  2,
	}
	return newOpContext(req.Context(), w, req, info), w, info
}

func TestRequestFromContext(t *testing.T) {
	t.Run("with request in context", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/rpc", nil)
		w := httptest.NewRecorder()
		ctx := newOpContext(context.Background(), w, req, &RPCInfo{})

		if got := RequestFromContext(ctx); got != req {
			t.Error("expected request to be returned from context")
		}
	})

	t.Run("without request in context", func(t *testing.T) {
		if got := RequestFromContext(context.Background()); got != nil {
			t.Errorf("expected nil when request not in context, got %v", got)
		}
	})
}

func TestSetHeader(t *testing.T) {
	t.Run("with writer in context", func(t *testing.T) {
		ctx, w, _ := testOpContext(t)
		SetHeader(ctx, "X-Custom-Header", "custom-value")
		if got := w.Header().Get("X-Custom-Header"); got != "custom-value" {
			t.Errorf("expected header to be set, got %s", got)
		}
	})

	t.Run("without writer in context", func(t *testing.T) {
		// Should not panic.
		SetHeader(context.Background(), "X-Custom-Header", "custom-value")
	})
}

func TestInfoFromContext(t *testing.T) {
	t.Run("with info in context", func(t *testing.T) {
		ctx, _, info := testOpContext(t)
		got, ok := InfoFromContext(ctx)
		if !ok {
			t.Fatal("expected ok to be true")
		}
		if got != info {
			t.Error("expected the stored info pointer")
		}
		if got.RequestID != "req-1" || got.BatchSize != 2 {
			t.Errorf("unexpected info %+v", got)
		}
	})

	t.Run("without info in context", func(t *testing.T) {
		if _, ok := InfoFromContext(context.Background()); ok {
			t.Error("expected ok to be false")
		}
	})
}

func TestRouteFromContext(t *testing.T) {
	ctx, _, info := testOpContext(t)
	route, ok := RouteFromContext(ctx)
	if !ok {
		t.Fatal("expected ok to be true")
	}
	if route != info.Route {
		t.Error("expected the stored route pointer")
	}
	if route.Name != "GetRooms" {
		t.Errorf("expected GetRooms, got %s", route.Name)
	}

	if _, ok := RouteFromContext(context.Background()); ok {
		t.Error("expected ok to be false")
	}
}
