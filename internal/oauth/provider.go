// provider.go -- OAuth provider interface and shared types.
package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"

	"github.com/MGallo-Code/cloudy/internal/domain"
)

// Identity is the raw attribute map a provider returns for the signed-in user.
// Keys are provider specific (Google "sub", Facebook "id"); mapping to a
// domain.User happens in the users package.
type Identity map[string]any

// String returns the string value at key, or "" when absent or not a string.
func (i Identity) String(key string) string {
	s, _ := i[key].(string)
	return s
}

// Nested walks nested objects (e.g. "picture", "data", "url") and returns the
// string at the end of the path, or "".
func (i Identity) Nested(path ...string) string {
	var cur any = map[string]any(i)
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[p]
	}
	s, _ := cur.(string)
	return s
}

// Provider is an OAuth2 identity provider.
// PKCE (RFC 7636) is required: callers pass the code_challenge to AuthCodeURL and the
// matching code_verifier to Exchange.
type Provider interface {
	// Name is the provider recorded on users and in session tokens.
	Name() domain.AuthProvider

	// ClientID and RedirectURL describe the registered client.
	ClientID() string
	RedirectURL() string

	// AuthorizationURI is the provider's authorization endpoint.
	AuthorizationURI() string

	// AuthCodeURL returns the redirect URL with state and PKCE code_challenge embedded.
	AuthCodeURL(state, codeChallenge string) string

	// Exchange trades the authorization code for the user's identity attributes.
	Exchange(ctx context.Context, code, codeVerifier string) (Identity, error)
}

// S256Challenge derives the PKCE code_challenge for verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
