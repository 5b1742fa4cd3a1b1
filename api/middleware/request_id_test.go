package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

func TestRequestIDKeepsUsableHeader(t *testing.T) {
	var seen string
	handler := RequestID(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(requestIDHeader, "edge-7f3a:checkout.1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if seen != "edge-7f3a:checkout.1" {
		t.Fatalf("expected caller id in context, got %q", seen)
	}
	if got := resp.Header().Get(requestIDHeader); got != seen {
		t.Fatalf("expected response header %q, got %q", seen, got)
	}
}

func TestRequestIDReplacesUnusableHeader(t *testing.T) {
	for _, raw := range []string{"", "bad id\r\nX-Injected: 1", strings.Repeat("a", maxRequestIDLen+1)} {
		var seen string
		handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromContext(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, raw)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if _, err := uuid.Parse(seen); err != nil {
			t.Fatalf("expected a minted uuid for %q, got %q", raw, seen)
		}
	}
}

func TestRecovererWritesInternalError(t *testing.T) {
	handler := RequestID(logger.Nop())(Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil store")
	})))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if resp.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id on the error response")
	}
	if strings.Contains(resp.Body.String(), "nil store") {
		t.Fatalf("panic value leaked to the client: %s", resp.Body.String())
	}
}

func TestRecovererRethrowsAbort(t *testing.T) {
	handler := Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
