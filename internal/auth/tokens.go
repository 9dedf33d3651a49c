// Package auth verifies HS256 bearer access tokens and puts the subject on
// the request context. Token issuance beyond local development is handled
// elsewhere.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-invoice/internal/common"
)

const defaultTokenTTL = 15 * time.Minute

// Config configures Tokens.
type Config struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	// TTL is the lifetime of tokens minted by Sign.
	TTL time.Duration
}

// Tokens signs and verifies access tokens with a shared secret.
type Tokens struct {
	secret    []byte
	issuer    string
	audience  string
	clockSkew time.Duration
	ttl       time.Duration
	now       func() time.Time
	validator TokenValidator
}

// NewTokens constructs Tokens. The secret must be at least 16 bytes.
func NewTokens(cfg Config) (*Tokens, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if len(secret) < 16 {
		return nil, errors.New("auth: secret must be at least 16 characters")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-invoice"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "invoice-app"
	}
	skew := max(cfg.ClockSkew, 0)
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Tokens{
		secret:    []byte(secret),
		issuer:    issuer,
		audience:  audience,
		clockSkew: skew,
		ttl:       ttl,
		now:       time.Now,
		validator: TokenValidator{Issuer: issuer, Audience: audience, ClockSkew: skew, Algorithm: jwa.HS256},
	}, nil
}

// WithNow allows tests to override the time provider.
func (t *Tokens) WithNow(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// Sign mints an access token for userID.
func (t *Tokens) Sign(userID string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}
	now := t.now()
	expiresAt := now.Add(t.ttl)
	token, err := jwt.NewBuilder().
		Subject(userID).
		Issuer(t.issuer).
		Audience([]string{t.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-t.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, t.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// ParseAccessToken validates token and returns its subject.
func (t *Tokens) ParseAccessToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return "", invalidToken(err)
	}
	if algorithm != t.validator.Algorithm {
		return "", invalidToken(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, t.secret), jwt.WithValidate(false))
	if err != nil {
		return "", invalidToken(err)
	}
	if err := t.validator.Validate(parsed, algorithm, t.now()); err != nil {
		return "", invalidToken(err)
	}
	return parsed.Subject(), nil
}

func invalidToken(err error) error {
	return common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
}

// tokenAlgorithm reads the single signing algorithm from the protected headers.
func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("auth: token must carry exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	switch alg {
	case "":
		return "", errors.New("auth: token missing algorithm")
	case jwa.NoSignature:
		return "", errors.New("auth: token uses none algorithm")
	}
	return alg, nil
}
