// Package auth validates and issues the signed bearer tokens that
// authenticate individual gateway actions. One process-wide shared secret
// and one allowed algorithm (HS256); the token subject is the user id.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for the three authentication failure modes. Callers must
// convert these into rejection replies; they never cross the worker boundary
// as panics.
var (
	ErrTokenMissing = errors.New("auth: token missing")
	ErrTokenInvalid = errors.New("auth: token invalid")
	ErrTokenExpired = errors.New("auth: token expired")
)

// IsMissing reports whether err means no token was presented at all.
func IsMissing(err error) bool { return errors.Is(err, ErrTokenMissing) }

// IsExpired reports whether err means the token was valid but past expiry.
func IsExpired(err error) bool { return errors.Is(err, ErrTokenExpired) }

// Claims is the verified identity extracted from a token. It is created
// fresh per event and never cached across events.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verifier checks token signatures against the shared secret and mints new
// tokens on login. Safe for concurrent use.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	parser   *jwt.Parser
}

// Config carries the verifier settings. Secret is required; the remaining
// fields default to the values the clients were built against.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
	TokenTTL time.Duration
}

// NewVerifier builds a Verifier from cfg.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: secret must not be empty")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "atlas_scarlet"
	}
	if cfg.Audience == "" {
		cfg.Audience = "as-cli"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)

	return &Verifier{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TokenTTL,
		parser:   parser,
	}, nil
}

// Verify validates signature, algorithm, issuer and expiry, and returns the
// claims. An empty token yields ErrTokenMissing; expiry yields
// ErrTokenExpired; every other validation failure yields ErrTokenInvalid.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}

	parsed, err := v.parser.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Mark(err, ErrTokenExpired)
		}
		return nil, errors.Mark(err, ErrTokenInvalid)
	}

	reg, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || reg.Subject == "" {
		return nil, ErrTokenInvalid
	}

	claims := &Claims{
		Subject:  reg.Subject,
		Issuer:   reg.Issuer,
		Audience: reg.Audience,
	}
	if reg.IssuedAt != nil {
		claims.IssuedAt = reg.IssuedAt.Time
	}
	if reg.ExpiresAt != nil {
		claims.ExpiresAt = reg.ExpiresAt.Time
	}
	return claims, nil
}

// Issue mints a token for the given user id, valid for the configured TTL.
func (v *Verifier) Issue(subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    v.issuer,
		Audience:  jwt.ClaimStrings{v.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", errors.Wrap(err, "auth: sign token")
	}
	return signed, nil
}

// IssueExpiring mints a token with an explicit TTL. Negative values produce
// an already-expired token, which the tests use to exercise rejection paths.
func (v *Verifier) IssueExpiring(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    v.issuer,
		Audience:  jwt.ClaimStrings{v.audience},
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", errors.Wrap(err, "auth: sign token")
	}
	return signed, nil
}

// BearerToken extracts the compact token from an Authorization header of the
// form "Bearer <token>". Used by the REST endpoints; WS events carry the
// token inline in the payload instead.
func BearerToken(h http.Header) (string, error) {
	raw := h.Get("Authorization")
	if raw == "" {
		return "", ErrTokenMissing
	}
	token, found := strings.CutPrefix(raw, "Bearer ")
	if !found || token == "" {
		return "", errors.Mark(errors.Newf("auth: malformed authorization header"), ErrTokenInvalid)
	}
	return token, nil
}
