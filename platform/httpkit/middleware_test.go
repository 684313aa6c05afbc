package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type testConfig struct {
	secret  string
	webhook string
}

func (c testConfig) GetJWTAccessSecret() string   { return c.secret }
func (c testConfig) GetWebhookSecret() string     { return c.webhook }
func (c testConfig) GetWebhookRateLimit() float64 { return 1 }
func (c testConfig) GetWebhookRateBurst() int     { return 1 }

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/t", handlers...)
	return r
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestWebhookSecret(t *testing.T) {
	r := newEngine(WebhookSecret(testConfig{webhook: "s3cret"}))

	cases := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{name: "missing", target: "/t", want: http.StatusUnauthorized},
		{name: "wrong header", target: "/t", header: "nope", want: http.StatusUnauthorized},
		{name: "header", target: "/t", header: "s3cret", want: http.StatusNoContent},
		{name: "query", target: "/t?secret=s3cret", want: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set(WebhookSecretHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestWebhookSecretDisabledWhenEmpty(t *testing.T) {
	r := newEngine(WebhookSecret(testConfig{}))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/t", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestAuthRequiredAndRole(t *testing.T) {
	cfg := testConfig{secret: "jwt-secret"}
	r := newEngine(AuthRequired(cfg), RequireRole("admin"))

	admin := signToken(t, cfg.secret, jwt.MapClaims{
		"sub":   uuid.NewString(),
		"type":  "access",
		"roles": []string{"admin"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	viewer := signToken(t, cfg.secret, jwt.MapClaims{
		"sub":   uuid.NewString(),
		"type":  "access",
		"roles": []string{"viewer"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	refresh := signToken(t, cfg.secret, jwt.MapClaims{
		"sub":  uuid.NewString(),
		"type": "refresh",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{name: "no token", want: http.StatusUnauthorized},
		{name: "refresh token", token: refresh, want: http.StatusUnauthorized},
		{name: "wrong role", token: viewer, want: http.StatusForbidden},
		{name: "admin", token: admin, want: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/t", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	limiter := NewIPRateLimiter(0.001, 1, nil)
	r := newEngine(limiter.RateLimit())

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/t", nil))
	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/t", nil))

	if first.Code != http.StatusNoContent || second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 204 then 429, got %d then %d", first.Code, second.Code)
	}
}
