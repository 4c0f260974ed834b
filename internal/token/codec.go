// Package token issues and verifies the signed session tokens carried in the
// session cookie. Tokens are HS512 JWTs; the server keeps no session state.
//
// codec.go -- Codec construction, Issue and Verify.
package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Verification failures. Callers branch on these with errors.Is; role-code
// failures wrap domain.ErrUnknownRole instead.
var (
	// ErrMalformed means the value is empty or has no segment separator at all.
	// Any other parse failure is ErrTampered.
	ErrMalformed = errors.New("token malformed")
	// ErrTampered means the signature does not match the content.
	ErrTampered = errors.New("token signature invalid")
	// ErrExpired means the token was genuine but is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrIssuerMismatch means the token was signed for a different issuer.
	ErrIssuerMismatch = errors.New("token issuer mismatch")
	// ErrInvalidClaims means a required claim is missing or unusable.
	ErrInvalidClaims = errors.New("token claims invalid")
)

// minSecretLen is the smallest HS512 key accepted, in bytes.
const minSecretLen = 64

// Config holds codec settings. SecretKey is base64 (standard alphabet).
type Config struct {
	SecretKey      string
	Issuer         string
	Expiry         time.Duration
	ActuatorExpiry time.Duration
}

// sessionClaims is the JWT payload. Roles are comma-delimited numeric codes.
type sessionClaims struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Roles    string `json:"roles"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens. Read-only after construction and
// safe for concurrent use.
type Codec struct {
	secret         []byte
	issuer         string
	expiry         time.Duration
	actuatorExpiry time.Duration
	parser         *jwt.Parser

	// now is swapped in tests.
	now func() time.Time
}

// NewCodec decodes the secret and builds a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	secret, err := base64.StdEncoding.DecodeString(cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("jwt secret must decode to at least %d bytes, got %d", minSecretLen, len(secret))
	}
	if cfg.Issuer == "" {
		return nil, errors.New("jwt issuer is required")
	}

	c := &Codec{
		secret:         secret,
		issuer:         cfg.Issuer,
		expiry:         cfg.Expiry,
		actuatorExpiry: cfg.ActuatorExpiry,
		now:            time.Now,
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	return c, nil
}

// Issue signs a token for u. The actuator lifetime applies only when the
// user's roles are exactly {ACTUATOR}.
func (c *Codec) Issue(u *domain.User) (string, error) {
	if u == nil || u.AuthenticationServiceID == "" {
		return "", fmt.Errorf("%w: subject is required", ErrInvalidClaims)
	}
	if err := u.Roles.Validate(); err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}

	lifetime := c.expiry
	if u.Roles.IsActuatorOnly() {
		lifetime = c.actuatorExpiry
	}

	now := c.now()
	claims := sessionClaims{
		Provider: string(u.AuthProvider),
		Name:     u.FullName,
		Roles:    u.Roles.Codes(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.AuthenticationServiceID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	tok.Header["typ"] = "JWT"
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry, then decodes the principal.
// Nothing from a token that fails signature checks is ever returned.
func (c *Codec) Verify(raw string) (domain.Principal, error) {
	if raw == "" || !strings.Contains(raw, ".") {
		return domain.Principal{}, ErrMalformed
	}

	var claims sessionClaims
	_, err := c.parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return domain.Principal{}, classify(err)
	}

	if claims.Subject == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidClaims)
	}
	provider, err := domain.ParseAuthProvider(claims.Provider)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %w", ErrInvalidClaims, err)
	}
	roles, err := domain.ParseRoleCodes(claims.Roles)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("decoding roles claim: %w", err)
	}

	return domain.Principal{
		Subject:    claims.Subject,
		Provider:   provider,
		FullName:   claims.Name,
		Roles:      roles,
		VerifiedAt: c.now(),
	}, nil
}

// classify maps parser errors onto the package sentinels. Signature, segment
// count and decoding failures are all treated as tampering; claim validation
// only runs once the signature has checked out.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %w", ErrIssuerMismatch, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrTampered, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %w", ErrInvalidClaims, err)
	default:
		return fmt.Errorf("%w: %w", ErrTampered, err)
	}
}
