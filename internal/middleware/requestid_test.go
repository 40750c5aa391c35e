package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDKeepsClientValue(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "edge-7f3a:01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "edge-7f3a:01" || rec.Header().Get("X-Request-ID") != "edge-7f3a:01" {
		t.Fatalf("context = %q, header = %q", seen, rec.Header().Get("X-Request-ID"))
	}
}

func TestRequestIDReplacesUnusableValues(t *testing.T) {
	for _, rid := range []string{"", strings.Repeat("a", maxRequestIDLen+1), "line\nbreak", "has space"} {
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header["X-Request-Id"] = []string{rid}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		got := rec.Header().Get("X-Request-ID")
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("request id for %q = %q, want a uuid", rid, got)
		}
	}
}
