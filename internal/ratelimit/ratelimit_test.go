package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func TestMemoryLimiterSlidingWindow(t *testing.T) {
	clk := newClock()
	limiter := NewMemoryLimiter(5, 15*time.Minute).WithClock(clk.now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := limiter.Allow(ctx, "form_submission")
		if err != nil || !ok {
			t.Fatalf("call %d: expected allow, got %v %v", i+1, ok, err)
		}
		clk.advance(time.Minute)
	}

	if ok, _ := limiter.Allow(ctx, "form_submission"); ok {
		t.Fatalf("sixth call inside the window should be rejected")
	}

	// The first call was at +0; it leaves the window at +15m.
	clk.t = time.Date(2024, 5, 1, 10, 15, 0, 1, time.UTC)
	if ok, _ := limiter.Allow(ctx, "form_submission"); !ok {
		t.Fatalf("call after the oldest entry expired should be allowed")
	}
}

func TestMemoryLimiterAllowsAgainAfterFullWindow(t *testing.T) {
	clk := newClock()
	limiter := NewMemoryLimiter(5, 15*time.Minute).WithClock(clk.now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		limiter.Allow(ctx, "k")
	}
	if ok, _ := limiter.Allow(ctx, "k"); ok {
		t.Fatalf("expected rejection")
	}
	clk.advance(15*time.Minute + time.Second)
	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Fatalf("expected allow after window")
	}
}

func TestMemoryLimiterSeparatesIdentifiers(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	ctx := context.Background()
	if ok, _ := limiter.Allow(ctx, "a"); !ok {
		t.Fatal("a should be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "b"); !ok {
		t.Fatal("b should be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "a"); ok {
		t.Fatal("a should be limited")
	}
}

func TestMemoryLimiterSweep(t *testing.T) {
	clk := newClock()
	limiter := NewMemoryLimiter(5, time.Minute).WithClock(clk.now)
	limiter.Allow(context.Background(), "old")
	clk.advance(2 * time.Minute)
	limiter.Allow(context.Background(), "fresh")

	if removed := limiter.Sweep(); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := limiter.hits["fresh"]; !ok {
		t.Fatalf("fresh identifier should survive sweep")
	}
}

func TestMemoryGuardRejectsQuickResubmit(t *testing.T) {
	clk := newClock()
	guard := NewMemoryGuard(GuardOptions{}).WithClock(clk.now)
	ctx := context.Background()

	if err := guard.Check(ctx, "eco4:visitor"); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	clk.advance(time.Second)
	if err := guard.Check(ctx, "eco4:visitor"); !errors.Is(err, ErrTooSoon) {
		t.Fatalf("expected ErrTooSoon, got %v", err)
	}
	clk.advance(1500 * time.Millisecond)
	if err := guard.Check(ctx, "eco4:visitor"); err != nil {
		t.Fatalf("attempt after interval: %v", err)
	}
}

func TestMemoryGuardCapsAttempts(t *testing.T) {
	clk := newClock()
	guard := NewMemoryGuard(GuardOptions{MaxAttempts: 3}).WithClock(clk.now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := guard.Check(ctx, "k"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		clk.advance(5 * time.Second)
	}
	if err := guard.Check(ctx, "k"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
	clk.advance(time.Hour)
	if err := guard.Check(ctx, "k"); err != nil {
		t.Fatalf("expected reset after window, got %v", err)
	}
}

type stubLimiter struct {
	allow bool
	err   error
	ids   []string
}

func (s *stubLimiter) Allow(_ context.Context, id string) (bool, error) {
	s.ids = append(s.ids, id)
	return s.allow, s.err
}

func (s *stubLimiter) Window() time.Duration { return 15 * time.Minute }

func serve(limiter Limiter, key KeyFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/", RateLimit(limiter, key, zerolog.Nop()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitMiddlewareRejects(t *testing.T) {
	rec := serve(&stubLimiter{allow: false}, KeyFor(StrategyStatic, ""))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "900" {
		t.Fatalf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimitMiddlewareFailsOpen(t *testing.T) {
	rec := serve(&stubLimiter{err: errors.New("redis down")}, KeyFor(StrategyStatic, ""))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected request to pass, got %d", rec.Code)
	}
}

func TestKeyStrategies(t *testing.T) {
	static := &stubLimiter{allow: true}
	serve(static, KeyFor(StrategyStatic, ""))
	if static.ids[0] != "form_submission" {
		t.Fatalf("static key = %q", static.ids[0])
	}

	byIP := &stubLimiter{allow: true}
	serve(byIP, KeyFor(StrategyIP, ""))
	if byIP.ids[0] != "ip:203.0.113.9" {
		t.Fatalf("ip key = %q", byIP.ids[0])
	}
}
