package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/fleet-api/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubTokenParser struct {
	claims *auth.Claims
	err    error
}

func (s stubTokenParser) ParseToken(string) (*auth.Claims, error) {
	return s.claims, s.err
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		id, _ := c.Get(AccountIDKey)
		c.JSON(http.StatusOK, gin.H{"account_id": id})
	})
	r.GET("/accounts/:account_id", handlers...)
	return r
}

func errorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	s, _ := body["error_type"].(string)
	return s
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		parser    stubTokenParser
		wantCode  int
		wantError string
	}{
		{name: "missing header", wantCode: http.StatusUnauthorized, wantError: "token_missing"},
		{name: "wrong scheme", header: "Basic abc", wantCode: http.StatusUnauthorized, wantError: "token_format"},
		{name: "expired", header: "Bearer t", parser: stubTokenParser{err: auth.ErrTokenExpired}, wantCode: http.StatusUnauthorized, wantError: "token_expired"},
		{name: "invalid", header: "Bearer t", parser: stubTokenParser{err: auth.ErrTokenInvalid}, wantCode: http.StatusUnauthorized, wantError: "token_invalid"},
		{name: "ok", header: "Bearer t", parser: stubTokenParser{claims: &auth.Claims{AccountID: 7}}, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAuthMiddleware(tt.parser, nil)
			r := newRouter(m.RequireAuth())

			req := httptest.NewRequest(http.MethodGet, "/accounts/1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errorType(t, w))
				return
			}
			assert.JSONEq(t, `{"account_id":7}`, w.Body.String())
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	m := NewAuthMiddleware(nil, []string{" key-one ", "", "key-two"})
	r := newRouter(m.RequireAPIKey())

	do := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/accounts/1", nil)
		if key != "" {
			req.Header.Set(APIKeyHeader, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do("key-one").Code)
	assert.Equal(t, http.StatusOK, do("key-two").Code)

	w := do("")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "api_key_missing", errorType(t, w))

	w = do("key-three")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", errorType(t, w))
}

func TestExtractUintParam(t *testing.T) {
	r := newRouter(ExtractUintParam("account_id", AccountIDKey))

	for _, raw := range []string{"abc", "0", "-1", "99999999999"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/accounts/"+raw, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, raw)
		assert.Equal(t, "validation_error", errorType(t, w))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/accounts/12", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"account_id":12}`, w.Body.String())
}

func TestRequestID(t *testing.T) {
	r := newRouter(RequestID())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/accounts/1", nil))
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/accounts/1", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "upstream-id", w.Header().Get(RequestIDHeader))
}

func TestRateLimiter_NilClientPassesThrough(t *testing.T) {
	r := newRouter(NewRateLimiter(nil).Limit(CodeRateLimitConfig(1, time.Minute)))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/accounts/1", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimiter_FailsOpenOnRedisError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer client.Close()

	r := newRouter(NewRateLimiter(client).Limit(CodeRateLimitConfig(1, time.Minute)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/accounts/1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_Redis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping redis rate limiter test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	defer client.Close()
	require.NoError(t, client.FlushDB(t.Context()).Err())

	r := newRouter(NewRateLimiter(client).Limit(CodeRateLimitConfig(2, time.Minute)))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/accounts/1", nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "rate_limited", errorType(t, w))
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCodeRateLimitConfig_Defaults(t *testing.T) {
	cfg := CodeRateLimitConfig(0, 0)
	assert.Equal(t, 10, cfg.MaxRequests)
	assert.Equal(t, time.Minute, cfg.Window)
}
