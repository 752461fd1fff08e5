package limits

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time { return f.t }

func newTestBucket(rate float64, burst int) (*TokenBucket, *fakeNow) {
	clock := &fakeNow{t: time.Unix(1_700_000_000, 0)}
	tb := NewTokenBucket(rate, burst)
	tb.now = clock.now
	return tb, clock
}

func TestTokenBucket_Burst(t *testing.T) {
	tb, clock := newTestBucket(1, 3)

	for i := 0; i < 3; i++ {
		if !tb.Allow("a") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if tb.Allow("a") {
		t.Error("fourth request should be limited")
	}
	if !tb.Allow("b") {
		t.Error("other keys have their own bucket")
	}

	clock.t = clock.t.Add(time.Second)
	if !tb.Allow("a") {
		t.Error("expected one token after a second")
	}
	if tb.Allow("a") {
		t.Error("expected bucket empty again")
	}
}

func TestTokenBucket_AllowN(t *testing.T) {
	tb, _ := newTestBucket(1, 5)
	if !tb.AllowN("k", 5) {
		t.Error("expected full burst allowed")
	}
	if tb.AllowN("k", 1) {
		t.Error("expected limit")
	}
}

func TestTokenBucket_Cleanup(t *testing.T) {
	tb, clock := newTestBucket(1, 1)
	tb.Allow("old")
	clock.t = clock.t.Add(2 * time.Hour)
	tb.Allow("new")

	if removed := tb.Cleanup(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	tb, _ := newTestBucket(1, 1)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RateLimitMiddleware(tb, IPKeyFunc, nil)(ok)

	serve := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := serve("10.0.0.1:1234"); code != http.StatusNoContent {
		t.Errorf("first = %d", code)
	}
	if code := serve("10.0.0.1:5678"); code != http.StatusTooManyRequests {
		t.Errorf("same ip, other port = %d, want 429", code)
	}
	if code := serve("10.0.0.2:1234"); code != http.StatusNoContent {
		t.Errorf("other ip = %d", code)
	}
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1"
	if got := IPKeyFunc(req); got != "192.0.2.1" {
		t.Errorf("IPKeyFunc = %q", got)
	}
}
