// Package session issues session tokens and turns a presented (name, token)
// pair into the equality filter used to look the user up.
//
// Tokens are bearer credentials: they are stored on the user record, never
// rotated and never expired server-side. The expiry returned by Issue only
// bounds the delivery cookies. When a signing secret is configured the token
// is an HS256 JWT bound to the username, which lets forged or mismatched
// tokens be rejected without a store round-trip.
package session

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/cinelog/catalog-api/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieLifetime is the default lifetime of the session cookies (52 weeks).
const CookieLifetime = 52 * 7 * 24 * time.Hour

const issuer = "catalog-api"

// ErrMalformed is returned for a missing name or token, or a token that fails
// signature verification. Callers treat it as an authorization failure.
var ErrMalformed = errors.New("session: malformed credentials")

// Token is a freshly issued session credential.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

type Codec struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewCodec creates a codec. An empty secret yields opaque UUID tokens.
func NewCodec(secret string, lifetime time.Duration) *Codec {
	if lifetime <= 0 {
		lifetime = CookieLifetime
	}
	c := &Codec{
		lifetime: lifetime,
		now:      time.Now,
	}
	if secret != "" {
		c.secret = []byte(secret)
	}
	return c
}

// Signed reports whether issued tokens are signed.
func (c *Codec) Signed() bool {
	return len(c.secret) > 0
}

// Issue creates a new session token for name.
func (c *Codec) Issue(name string) (Token, error) {
	if name == "" {
		return Token{}, ErrMalformed
	}

	now := c.now().UTC()
	id := uuid.NewString()
	tok := Token{Value: id, ExpiresAt: c.expiry(now)}

	if !c.Signed() {
		return tok, nil
	}

	claims := jwt.RegisteredClaims{
		Subject:  name,
		ID:       id,
		Issuer:   issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign session token: %w", err)
	}
	tok.Value = signed

	return tok, nil
}

// Expiry returns the cookie expiry for a session delivered now.
func (c *Codec) Expiry() time.Time {
	return c.expiry(c.now().UTC())
}

func (c *Codec) expiry(from time.Time) time.Time {
	return from.Add(c.lifetime)
}

// Filter validates the shape of a presented credential pair and returns the
// lookup filter for it. It performs no store access.
func (c *Codec) Filter(name, token string) (models.SessionFilter, error) {
	if name == "" || token == "" {
		return models.SessionFilter{}, ErrMalformed
	}

	if c.Signed() {
		if err := c.verify(name, token); err != nil {
			return models.SessionFilter{}, err
		}
	}

	return models.SessionFilter{Name: name, Token: token}, nil
}

func (c *Codec) verify(name, token string) error {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil || !parsed.Valid {
		return ErrMalformed
	}
	if !Equal(claims.Subject, name) {
		return ErrMalformed
	}
	return nil
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Matches reports whether user holds the credential described by f.
func Matches(user *models.User, f models.SessionFilter) bool {
	if user == nil {
		return false
	}
	nameOK := Equal(user.Name, f.Name)
	tokenOK := Equal(user.SessionToken, f.Token)
	return nameOK && tokenOK
}
