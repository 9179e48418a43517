package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ProviderIdentityOnly      = "identity-only"
	ProviderDualStageComplete = "dual-stage-complete"
)

// Claims are the session-token claims. The token is a cache: every field
// here is re-derived from storage on refresh, never trusted from a previous
// token.
type Claims struct {
	UID                 string           `json:"uid"`
	Email               string           `json:"email"`
	Provider            string           `json:"provider"`
	InstitutionID       string           `json:"institution_id,omitempty"`
	IsDualStageComplete bool             `json:"is_dual_stage_complete"`
	LastSync            *jwt.NumericDate `json:"last_sync,omitempty"`
	jwt.RegisteredClaims
}

func MakeAccess(secret string, c Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Subject:   c.UID,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return t.SignedString([]byte(secret))
}

func ParseAccess(secret, token string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, errors.New("invalid token")
	}
	return c, nil
}
