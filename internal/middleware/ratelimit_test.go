package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientIPForRateLimit(t *testing.T) {
	cases := []struct {
		forwarded, remote, want string
	}{
		{"36.84.12.9", "10.0.0.7:5123", "36.84.12.9"},
		{" bogus , 36.84.12.9 ", "10.0.0.7:5123", "36.84.12.9"},
		{"bogus", "10.0.0.7:5123", "10.0.0.7"},
		{"", "[2001:db8::2]:443", "2001:db8::2"},
		{"2001:db8::1", "[2001:db8::2]:443", "2001:db8::1"},
		{"", "10.0.0.7", "10.0.0.7"},
		{"", "pipe", "pipe"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/transform-image", nil)
		req.RemoteAddr = tc.remote
		if tc.forwarded != "" {
			req.Header.Set("X-Forwarded-For", tc.forwarded)
		}
		if got := clientIPForRateLimit(req); got != tc.want {
			t.Errorf("clientIPForRateLimit(%q, %q) = %q, want %q", tc.forwarded, tc.remote, got, tc.want)
		}
	}
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimitRejectsOverLimit(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 10, 6, 9, 0, 0, 0, time.UTC)}
	h := rateLimit(2, time.Minute, clock.now)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/transform-image", nil)
		req.RemoteAddr = ip + ":5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	send("198.51.100.7")
	send("198.51.100.7")
	clock.advance(15 * time.Second)
	rec := send("198.51.100.7")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request code = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "46" {
		t.Fatalf("Retry-After = %q, want 46", got)
	}
	if !strings.Contains(rec.Body.String(), `"rate_limited"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if rec := send("198.51.100.8"); rec.Code != http.StatusNoContent {
		t.Fatalf("other client code = %d", rec.Code)
	}

	clock.advance(time.Minute)
	if rec := send("198.51.100.7"); rec.Code != http.StatusNoContent {
		t.Fatalf("code after window reset = %d", rec.Code)
	}
}

func TestRateLimitSweepsExpiredWindows(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 10, 6, 9, 0, 0, 0, time.UTC)}
	l := newLimiter(1, time.Minute, clock.now)
	l.allow("198.51.100.7")
	l.allow("198.51.100.8")
	clock.advance(2 * time.Minute)
	l.allow("198.51.100.9")
	if len(l.windows) != 1 {
		t.Fatalf("windows = %d, want 1", len(l.windows))
	}
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(0, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d", rec.Code)
		}
	}
}
