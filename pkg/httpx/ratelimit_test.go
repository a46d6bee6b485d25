package httpx_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/roomkey/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestIPKeyExtractorIgnoresForwardingWithoutProxies(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
	}{
		{"remote addr", nil},
		{"forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.1, 192.168.1.1"}},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))
		})
	}
}

func TestClientIP(t *testing.T) {
	trusted, err := httpx.ParseTrustedProxies("10.0.0.0/8, 192.168.1.1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		remote string
		header map[string]string
		want   string
	}{
		{"untrusted peer keeps its address", "198.51.100.9:1", map[string]string{"X-Forwarded-For": "203.0.113.1"}, "198.51.100.9"},
		{"trusted peer forwards the client", "10.0.0.5:1", map[string]string{"X-Forwarded-For": "203.0.113.1"}, "203.0.113.1"},
		{"client supplied hops are skipped", "10.0.0.5:1", map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.1"}, "203.0.113.1"},
		{"trusted hops are walked", "192.168.1.1:1", map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.9"}, "203.0.113.1"},
		{"garbage hop stops the walk", "10.0.0.5:1", map[string]string{"X-Forwarded-For": "203.0.113.1, nonsense"}, "10.0.0.5"},
		{"real ip from trusted peer", "10.0.0.5:1", map[string]string{"X-Real-IP": "203.0.113.2"}, "203.0.113.2"},
		{"real ip from untrusted peer", "198.51.100.9:1", map[string]string{"X-Real-IP": "203.0.113.2"}, "198.51.100.9"},
		{"trusted peer without headers", "10.0.0.5:1", nil, "10.0.0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, httpx.ClientIP(req, trusted))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := httpx.ParseTrustedProxies("")
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = httpx.ParseTrustedProxies("10.1.2.3/8, ::1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "10.0.0.0/8", got[0].String())
	require.Equal(t, "::1/128", got[1].String())

	_, err = httpx.ParseTrustedProxies("10.0.0.0/8, not-an-ip")
	require.Error(t, err)
}

func TestRateLimitByIPIgnoresSpoofedForwarding(t *testing.T) {
	h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1})(okHandler())

	for i, xff := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.9:1"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if i == 0 {
			require.Equal(t, http.StatusOK, rec.Code)
		} else {
			require.Equal(t, http.StatusTooManyRequests, rec.Code, "rotating the header does not reset the bucket")
		}
	}
}

func TestJSONFieldKeyExtractorRestoresBody(t *testing.T) {
	body := `{"email":"Alice@Corp.Test","password":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(body))

	require.Equal(t, "alice@corp.test", httpx.JSONFieldKeyExtractor("email")(req))

	rest, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	require.Equal(t, body, string(rest))
}

func TestJSONFieldKeyExtractorBadBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not json"))
	require.Empty(t, httpx.JSONFieldKeyExtractor("email")(req))
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute, Burst: 3}
	h := httpx.RateLimitMiddleware(cfg, httpx.IPKeyExtractor)(okHandler())

	hit := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for range 3 {
		require.Equal(t, http.StatusOK, hit("10.0.0.1:1").Code)
	}

	rec := hit("10.0.0.1:1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	require.Contains(t, rec.Body.String(), "rate_limit_exceeded")

	require.Equal(t, http.StatusOK, hit("10.0.0.2:1").Code, "other keys are independent")
}

func TestRateLimitEmptyKeyPassesThrough(t *testing.T) {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
	h := httpx.RateLimitMiddleware(cfg, func(*http.Request) string { return "" })(okHandler())

	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitByIPAndJSONField(t *testing.T) {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
	h := httpx.RateLimitByIPAndJSONField(cfg, "email")(okHandler())

	login := func(email string) int {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"`+email+`"}`))
		req.RemoteAddr = "10.0.0.1:1"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, login("a@x.test"))
	require.Equal(t, http.StatusTooManyRequests, login("A@x.test"))
	require.Equal(t, http.StatusOK, login("b@x.test"))
}

func TestRateLimitProfilesOrdered(t *testing.T) {
	require.Less(t, httpx.StrictLimit.RequestsPerWindow, httpx.ModerateLimit.RequestsPerWindow)
	require.Less(t, httpx.ModerateLimit.RequestsPerWindow, httpx.LenientLimit.RequestsPerWindow)
	require.Less(t, httpx.LenientLimit.RequestsPerWindow, httpx.PublicLimit.RequestsPerWindow)
}

func TestParseRateLimitFromEnv(t *testing.T) {
	def := httpx.RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10}

	t.Setenv("RATELIMIT_TEST_REQUESTS", "50")
	t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "30")
	t.Setenv("RATELIMIT_TEST_BURST", "-4")

	got := httpx.ParseRateLimitFromEnv("TEST", def)
	require.Equal(t, 50, got.RequestsPerWindow)
	require.Equal(t, 30*time.Second, got.Window)
	require.Equal(t, 10, got.Burst, "non-positive burst is ignored")
}
