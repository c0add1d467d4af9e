package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/system/ratelimit"
	"github.com/dalemusser/dikshahub/internal/testutil"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAllow_WindowResets(t *testing.T) {
	clk := &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := ratelimit.New(2, time.Minute).WithClock(clk.Now)
	defer l.Close()

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("k"); !ok {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	ok, wait := l.Allow("k")
	if ok || wait != time.Minute {
		t.Fatalf("third request: got ok=%v wait=%v, want rejected with 1m", ok, wait)
	}
	if got := l.Remaining("k"); got != 0 {
		t.Errorf("Remaining: got %d, want 0", got)
	}
	if ok, _ := l.Allow("other"); !ok {
		t.Error("keys must not share a window")
	}

	clk.Advance(time.Minute)
	if ok, _ := l.Allow("k"); !ok {
		t.Error("window should reset after its duration")
	}
	if got := l.Remaining("k"); got != 1 {
		t.Errorf("Remaining after reset: got %d, want 1", got)
	}
}

func TestMiddleware(t *testing.T) {
	l := ratelimit.New(1, time.Hour)
	defer l.Close()
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(method string, user *testutil.TestUser) *testutil.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/x", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		if user != nil {
			req = testutil.WithUser(req, *user)
		}
		rec := testutil.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	op := testutil.OperatorUser()
	admin := testutil.AdminUser()

	serve(http.MethodPost, &op).AssertStatus(t, http.StatusNoContent)
	rec := serve(http.MethodPost, &op)
	rec.AssertStatus(t, http.StatusTooManyRequests)
	rec.AssertContains(t, "rate_limited")
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	// Reads are never limited; other users have their own budget.
	serve(http.MethodGet, &op).AssertStatus(t, http.StatusNoContent)
	serve(http.MethodPost, &admin).AssertStatus(t, http.StatusNoContent)

	// Anonymous callers are keyed by IP.
	serve(http.MethodPost, nil).AssertStatus(t, http.StatusNoContent)
	serve(http.MethodPost, nil).AssertStatus(t, http.StatusTooManyRequests)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "10.0.0.1:1", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": " 5.6.7.8 "}, "10.0.0.1:1", "5.6.7.8"},
		{"remote with port", nil, "9.9.9.9:443", "9.9.9.9"},
		{"remote without port", nil, "9.9.9.9", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			if got := ratelimit.ClientIP(req); got != tt.want {
				t.Errorf("ClientIP: got %q, want %q", got, tt.want)
			}
		})
	}
}
