package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionPrefix is prepended by the backend to the session tokens it issues.
const sessionPrefix = "JWT "

// SessionClaims are the claims carried by the backend session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"id,omitempty"`
}

// ParseSessionClaims decodes the claims of a backend session token without verifying its signature.
//
// The signing key lives on the backend; the client only reads the claims to report
// identity and expiry. The "JWT " prefix is accepted and stripped.
func ParseSessionClaims(raw string) (*SessionClaims, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), sessionPrefix))
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidSession)
	}

	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	return claims, nil
}

// Expired reports whether the token carries an expiry at or before now.
func (c *SessionClaims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}
