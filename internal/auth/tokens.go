package auth

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims is the subset of token claims the application uses.
type Claims struct {
	Subject string
	Roles   []string
}

// TokenIssuer mints and verifies HS256 access tokens.
type TokenIssuer struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration

	// Now is overridable in tests.
	Now func() time.Time
}

func (t *TokenIssuer) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Issue signs a token for the subject with its role list embedded.
func (t *TokenIssuer) Issue(subject string, roles []string) (string, error) {
	now := t.now()
	tok, err := jwt.NewBuilder().
		Issuer(t.Issuer).
		Audience([]string{t.Audience}).
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(t.TTL)).
		Claim("roles", roles).
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, t.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

// Parse verifies the signature, issuer, audience, and expiry of a token.
func (t *TokenIssuer) Parse(raw string) (Claims, error) {
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, t.Secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(t.Issuer),
		jwt.WithAudience(t.Audience),
		jwt.WithClock(jwt.ClockFunc(t.now)),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}
	claims := Claims{Subject: tok.Subject()}
	if raw, ok := tok.Get("roles"); ok {
		if list, ok := raw.([]any); ok {
			for _, v := range list {
				if s, ok := v.(string); ok {
					claims.Roles = append(claims.Roles, s)
				}
			}
		}
	}
	return claims, nil
}
