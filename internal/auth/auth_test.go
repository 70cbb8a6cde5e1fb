package auth

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

func newRouter(s *Sessions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(s.Middleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, SessionID(c))
	})
	return r
}

func do(r http.Handler, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	return nil
}

func TestMiddlewareMintsAndKeepsSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSessions(SessionConfig{Secret: secret, TTL: 24 * time.Hour, Secure: true}, clock)
	r := newRouter(s)

	first := do(r, nil)
	sid := first.Body.String()
	assert.Len(t, sid, 32)
	cookie := sessionCookie(t, first)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)

	second := do(r, cookie)
	assert.Equal(t, sid, second.Body.String())
	assert.Nil(t, sessionCookie(t, second), "fresh cookie is not re-issued")

	clock.Advance(13 * time.Hour)
	third := do(r, cookie)
	assert.Equal(t, sid, third.Body.String())
	assert.NotNil(t, sessionCookie(t, third), "cookie past half its life is refreshed")

	clock.Advance(12 * time.Hour)
	fourth := do(r, cookie)
	assert.NotEqual(t, sid, fourth.Body.String(), "expired cookie starts a new session")
}

func TestMiddlewareRejectsForgedCookie(t *testing.T) {
	s := NewSessions(SessionConfig{Secret: secret}, nil)
	other := NewSessions(SessionConfig{Secret: []byte("another-secret-another-secret!!")}, nil)
	r := newRouter(s)

	forged, err := other.Sign("00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	w := do(r, &http.Cookie{Name: CookieName, Value: forged})
	assert.NotEqual(t, "00112233445566778899aabbccddeeff", w.Body.String())

	w = do(r, &http.Cookie{Name: CookieName, Value: "garbage"})
	assert.Len(t, w.Body.String(), 32)
}

func TestVerify(t *testing.T) {
	s := NewSessions(SessionConfig{Secret: secret}, nil)

	value, err := s.Sign("00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	sid, issued, err := s.Verify(value)
	require.NoError(t, err)
	assert.Equal(t, "00112233445566778899aabbccddeeff", sid)
	assert.False(t, issued.IsZero())

	bad, err := s.Sign("../../etc/passwd")
	require.NoError(t, err)
	_, _, err = s.Verify(bad)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "00112233445566778899aabbccddeeff"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, _, err = s.Verify(unsigned)
	assert.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, 2)
	r := gin.New()
	r.POST("/upload", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	post := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/upload", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post("10.0.0.1"))
	assert.Equal(t, http.StatusOK, post("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, post("10.0.0.1"))
	assert.Equal(t, http.StatusOK, post("10.0.0.2"), "limits are per client")

	unlimited := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.Allow("10.0.0.3"))
	}
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := newRateLimiter(1, 1, clock)

	for i := 0; i < 50; i++ {
		rl.Allow(fmt.Sprintf("10.0.1.%d", i))
	}
	assert.Equal(t, 50, rl.size())
	assert.False(t, rl.Allow("10.0.1.0"), "bucket is still drained")

	clock.Advance(limiterExpiry + time.Second)
	require.True(t, rl.Allow("10.0.2.1"))
	assert.Equal(t, 1, rl.size(), "idle buckets are dropped")
	assert.True(t, rl.Allow("10.0.1.0"), "a returning client starts with a fresh bucket")
}
