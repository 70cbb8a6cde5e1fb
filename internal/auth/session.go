// Package auth gives every browser an anonymous session identity and guards
// the upload endpoint against floods. There are no accounts.
package auth

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/lukezje16/pdfmerger/internal/logging"
	"github.com/lukezje16/pdfmerger/internal/session"
)

const (
	CookieName = "pdfmerger_session"
	// ContextKey holds the session id in the gin context.
	ContextKey = "session_id"
)

type SessionConfig struct {
	Secret []byte
	TTL    time.Duration
	// Secure marks the cookie HTTPS-only.
	Secure bool
}

// Sessions issues and verifies the signed session cookie. The cookie is an
// HS256 JWT whose subject is the session id.
type Sessions struct {
	cfg   SessionConfig
	clock clockwork.Clock
}

func NewSessions(cfg SessionConfig, clock clockwork.Clock) *Sessions {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sessions{cfg: cfg, clock: clock}
}

// Middleware resolves the session id for every request, minting a new
// session when the cookie is missing, invalid or expired. The cookie is
// re-issued once it is past half its lifetime.
func (s *Sessions) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, issuedAt, err := s.fromCookie(c)
		if err != nil {
			if sid, err = session.NewToken(session.SessionIDBytes); err != nil {
				logging.Errorf("[SESSION] failed to create session id: %v", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
				return
			}
			issuedAt = time.Time{}
		}
		if s.clock.Since(issuedAt) > s.cfg.TTL/2 {
			if err := s.setCookie(c, sid); err != nil {
				logging.Errorf("[SESSION] failed to sign session cookie: %v", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
				return
			}
		}
		c.Set(ContextKey, sid)
		c.Next()
	}
}

// SessionID returns the id set by Middleware.
func SessionID(c *gin.Context) string {
	return c.GetString(ContextKey)
}

// Sign returns a cookie value for sid.
func (s *Sessions) Sign(sid string) (string, error) {
	now := s.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
	})
	return token.SignedString(s.cfg.Secret)
}

// Verify parses a cookie value and returns its session id and issue time.
func (s *Sessions) Verify(value string) (string, time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims, func(token *jwt.Token) (interface{}, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return "", time.Time{}, err
	}
	if !validSessionID(claims.Subject) {
		return "", time.Time{}, fmt.Errorf("malformed session id")
	}
	var issued time.Time
	if claims.IssuedAt != nil {
		issued = claims.IssuedAt.Time
	}
	return claims.Subject, issued, nil
}

func (s *Sessions) fromCookie(c *gin.Context) (string, time.Time, error) {
	value, err := c.Cookie(CookieName)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.Verify(value)
}

func (s *Sessions) setCookie(c *gin.Context, sid string) error {
	value, err := s.Sign(sid)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, value, int(s.cfg.TTL.Seconds()), "/", "", s.cfg.Secure, true)
	return nil
}

func validSessionID(sid string) bool {
	if len(sid) != session.SessionIDBytes*2 {
		return false
	}
	_, err := hex.DecodeString(sid)
	return err == nil
}
