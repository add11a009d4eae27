package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestMemory(start time.Time) (*Memory, *clock) {
	c := &clock{t: start}
	m := NewMemory(0)
	m.now = c.now
	return m, c
}

func TestMemory_FailsAfterMax(t *testing.T) {
	start := time.Date(2026, 2, 25, 12, 0, 0, 0, time.UTC)
	m, c := newTestMemory(start)
	defer m.Close()

	cfg := Config{Window: time.Minute, MaxRequests: 5}

	for i := 1; i <= 5; i++ {
		res, err := m.Check(context.Background(), "1.2.3.4", cfg)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Success {
			t.Fatalf("call %d rejected", i)
		}
		if res.Remaining != 5-i {
			t.Fatalf("call %d remaining=%d", i, res.Remaining)
		}
		c.advance(time.Second)
	}

	res, _ := m.Check(context.Background(), "1.2.3.4", cfg)
	if res.Success {
		t.Fatalf("6th call should fail")
	}
	if !res.ResetTime.Equal(start.Add(time.Minute)) {
		t.Fatalf("reset=%s want %s", res.ResetTime, start.Add(time.Minute))
	}
	if !res.ResetTime.After(c.now()) {
		t.Fatalf("reset time should be in the future")
	}
	if got := res.RetryAfterSeconds(c.now()); got != 55 {
		t.Fatalf("retry after=%d", got)
	}
}

func TestMemory_KeysAreIndependent(t *testing.T) {
	m, _ := newTestMemory(time.Date(2026, 2, 25, 12, 0, 0, 0, time.UTC))
	defer m.Close()

	cfg := Config{Window: time.Minute, MaxRequests: 1}
	a, _ := m.Check(context.Background(), "a", cfg)
	b, _ := m.Check(context.Background(), "b", cfg)
	if !a.Success || !b.Success {
		t.Fatalf("first call per key must pass")
	}
}

func TestMemory_ResetsAfterWindow(t *testing.T) {
	m, c := newTestMemory(time.Date(2026, 2, 25, 12, 0, 0, 0, time.UTC))
	defer m.Close()

	cfg := Config{Window: time.Minute, MaxRequests: 1}
	m.Check(context.Background(), "k", cfg)
	if res, _ := m.Check(context.Background(), "k", cfg); res.Success {
		t.Fatalf("second call should fail")
	}

	c.advance(time.Minute)
	res, _ := m.Check(context.Background(), "k", cfg)
	if !res.Success || res.Remaining != 0 {
		t.Fatalf("expected fresh window, got %+v", res)
	}
	if !res.ResetTime.Equal(c.now().Add(time.Minute)) {
		t.Fatalf("reset=%s", res.ResetTime)
	}
}

func TestMemory_SweepDropsExpired(t *testing.T) {
	m, c := newTestMemory(time.Date(2026, 2, 25, 12, 0, 0, 0, time.UTC))
	defer m.Close()

	m.Check(context.Background(), "old", Config{Window: time.Minute, MaxRequests: 5})
	m.Check(context.Background(), "long", Config{Window: time.Hour, MaxRequests: 5})

	c.advance(2 * time.Minute)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("swept %d", n)
	}
	if m.Len() != 1 {
		t.Fatalf("len=%d", m.Len())
	}
}

func TestMemory_CloseStopsSweeper(t *testing.T) {
	m := NewMemory(time.Millisecond)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	// second close is a no-op
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}

type errLimiter struct{}

func (errLimiter) Check(ctx context.Context, key string, cfg Config) (Result, error) {
	return Result{}, errors.New("redis down")
}

func TestMiddleware_RejectsWith429(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	h := Middleware(m, Config{Window: time.Minute, MaxRequests: 2}, "events", nil, nil)(next)

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/events", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		last = w
	}

	if codes[0] != http.StatusAccepted || codes[1] != http.StatusAccepted || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes=%v", codes)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
	if got := last.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("X-RateLimit-Remaining=%q", got)
	}
}

func TestMiddleware_FailsOpen(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := Middleware(errLimiter{}, Config{Window: time.Minute, MaxRequests: 1}, "events", nil, nil)(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/events", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestRedis_FixedWindow(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	prefix := "ratelimit-test-" + time.Now().Format("150405.000000000")
	l := NewRedis(rdb, prefix)
	cfg := Config{Window: 2 * time.Second, MaxRequests: 2}

	for i := 0; i < 2; i++ {
		res, err := l.Check(ctx, "k", cfg)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Success {
			t.Fatalf("call %d rejected", i+1)
		}
	}
	res, err := l.Check(ctx, "k", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Remaining != 0 {
		t.Fatalf("3rd call should fail, got %+v", res)
	}
	if !res.ResetTime.After(time.Now()) {
		t.Fatalf("reset time should be in the future")
	}

	time.Sleep(cfg.Window + 200*time.Millisecond)
	res, err = l.Check(ctx, "k", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("window should have reset")
	}
}
