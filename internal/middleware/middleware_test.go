package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Awaisee01/fund-sub001/internal/config"
	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/security"
	"github.com/Awaisee01/fund-sub001/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockValidator struct {
	validateFn func(ctx context.Context, token string, client service.ClientInfo) (models.AdminUser, models.AdminSession, error)
}

func (m *mockValidator) ValidateSession(ctx context.Context, token string, client service.ClientInfo) (models.AdminUser, models.AdminSession, error) {
	return m.validateFn(ctx, token, client)
}

func TestAdminAuth(t *testing.T) {
	validator := &mockValidator{
		validateFn: func(_ context.Context, token string, _ service.ClientInfo) (models.AdminUser, models.AdminSession, error) {
			if token != "good" {
				return models.AdminUser{}, models.AdminSession{}, service.ErrInvalidSession
			}
			return models.AdminUser{ID: "admin-1", Email: "ops@example.com"}, models.AdminSession{ID: "sess-1"}, nil
		},
	}

	reached := false
	router := gin.New()
	router.GET("/private", AdminAuth(validator), func(c *gin.Context) {
		reached = true
		admin, _ := CurrentAdmin(c)
		session, _ := CurrentSession(c)
		c.JSON(http.StatusOK, gin.H{"admin": admin.ID, "session": session.ID, "token": AccessToken(c)})
	})

	tests := []struct {
		name    string
		header  string
		status  int
		reached bool
	}{
		{name: "no header", header: "", status: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "rejected token", header: "Bearer expired", status: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer good", status: http.StatusOK, reached: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached = false
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			if reached != tt.reached {
				t.Errorf("handler reached = %v, want %v", reached, tt.reached)
			}
		})
	}
}

type memNonces struct {
	seen map[string]bool
	err  error
}

func (m *memNonces) SetNX(_ context.Context, key string, _ interface{}, _ time.Duration) *redis.BoolCmd {
	if m.err != nil {
		return redis.NewBoolResult(false, m.err)
	}
	if m.seen[key] {
		return redis.NewBoolResult(false, nil)
	}
	m.seen[key] = true
	return redis.NewBoolResult(true, nil)
}

func signedRequest(secret, client, nonce string, date time.Time, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/relay", bytes.NewReader(body))
	security.SignRequest(req, secret, client, body, date.UTC().Format(time.RFC3339), nonce)
	return req
}

func TestSignature(t *testing.T) {
	cfg := config.SecurityConfig{RelaySecret: "relay-secret", RelayClientID: "site"}
	nonces := &memNonces{seen: map[string]bool{}}

	var gotBody string
	router := gin.New()
	router.POST("/relay", Signature(cfg, nonces), func(c *gin.Context) {
		b, _ := io.ReadAll(c.Request.Body)
		gotBody = string(b)
		c.Status(http.StatusAccepted)
	})

	body := []byte(`{"name":"Jane Doe"}`)
	now := time.Now()

	serve := func(req *http.Request) int {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := serve(signedRequest("relay-secret", "site", "n1", now, body)); code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	if gotBody != string(body) {
		t.Errorf("body not restored for handler: %q", gotBody)
	}

	if code := serve(signedRequest("relay-secret", "site", "n1", now, body)); code != http.StatusUnauthorized {
		t.Errorf("replayed nonce: expected 401, got %d", code)
	}
	if code := serve(signedRequest("wrong", "site", "n2", now, body)); code != http.StatusUnauthorized {
		t.Errorf("bad secret: expected 401, got %d", code)
	}
	if code := serve(signedRequest("relay-secret", "other", "n3", now, body)); code != http.StatusUnauthorized {
		t.Errorf("unknown client: expected 401, got %d", code)
	}
	if code := serve(signedRequest("relay-secret", "site", "n4", now.Add(-10*time.Minute), body)); code != http.StatusUnauthorized {
		t.Errorf("stale date: expected 401, got %d", code)
	}

	tampered := signedRequest("relay-secret", "site", "n5", now, body)
	tampered.Body = io.NopCloser(bytes.NewReader([]byte(`{"name":"Mallory"}`)))
	if code := serve(tampered); code != http.StatusUnauthorized {
		t.Errorf("tampered body: expected 401, got %d", code)
	}

	unsigned := httptest.NewRequest(http.MethodPost, "/relay", bytes.NewReader(body))
	if code := serve(unsigned); code != http.StatusUnauthorized {
		t.Errorf("unsigned: expected 401, got %d", code)
	}

	nonces.err = errors.New("redis down")
	if code := serve(signedRequest("relay-secret", "site", "n6", now, body)); code != http.StatusServiceUnavailable {
		t.Errorf("nonce store down: expected 503, got %d", code)
	}
}

func TestSignatureDisabledWithoutSecret(t *testing.T) {
	router := gin.New()
	router.POST("/relay", Signature(config.SecurityConfig{}, &memNonces{seen: map[string]bool{}}), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest("", "site", "n1", time.Now(), nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://grants.example.com"}))
	router.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://grants.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://grants.example.com" {
		t.Errorf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin should not be allowed, got %q", got)
	}
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for foreign origin, got %d", w.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(requestIDHeader, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "req-123" {
		t.Errorf("expected request id echoed, got %q", got)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("expected a generated request id")
	}
}

func TestRequestIDRejectsUnsafeValues(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	for _, bad := range []string{"line\nbreak", strings.Repeat("a", maxRequestIDLen+1), "<script>"} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(requestIDHeader, bad)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		got := w.Header().Get(requestIDHeader)
		if got == bad || got == "" {
			t.Errorf("expected %q to be replaced, got %q", bad, got)
		}
		if w.Body.String() != got {
			t.Errorf("context id %q differs from header %q", w.Body.String(), got)
		}
	}
}

func TestRecoveryReturns500(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), Recovery(zerolog.Nop()))
	router.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "internal_server_error") {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}
