// pending.go -- Pending OAuth2 authorization request, held client side in a
// cookie between the redirect to the provider and the callback.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/MGallo-Code/cloudy/internal/reqlog"
)

// AuthorizationRequest is the state needed to complete an OAuth2 code flow.
type AuthorizationRequest struct {
	ClientID         string              `json:"clientId"`
	AuthorizationURI string              `json:"authorizationUri"`
	RedirectURI      string              `json:"redirectUri"`
	State            string              `json:"state"`
	CodeVerifier     string              `json:"codeVerifier"`
	Provider         domain.AuthProvider `json:"provider"`
}

// PendingAuthorizationStore persists one AuthorizationRequest per browser.
type PendingAuthorizationStore struct {
	cookies *CookieTransport
}

// NewPendingAuthorizationStore stores requests in the transport's pending cookie.
func NewPendingAuthorizationStore(c *CookieTransport) *PendingAuthorizationStore {
	return &PendingAuthorizationStore{cookies: c}
}

// Save writes req. A nil req deletes the stored request, writing the
// deletion only when the browser actually sent one.
func (s *PendingAuthorizationStore) Save(w http.ResponseWriter, r *http.Request, req *AuthorizationRequest) error {
	if req == nil {
		if s.cookies.hasPending(r) {
			s.cookies.expirePending(w)
		}
		return nil
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding authorization request: %w", err)
	}
	s.cookies.writePending(w, base64.RawURLEncoding.EncodeToString(raw))
	return nil
}

// Load returns the stored request without removing it. Absent or
// undecodable values yield (nil, false).
func (s *PendingAuthorizationStore) Load(r *http.Request) (*AuthorizationRequest, bool) {
	v, ok := s.cookies.readPending(r)
	if !ok {
		return nil, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		reqlog.Debug(r, "pending authorization cookie is not base64url", "error", err)
		return nil, false
	}
	var req AuthorizationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		reqlog.Debug(r, "pending authorization cookie is not valid json", "error", err)
		return nil, false
	}
	return &req, true
}

// Consume loads the stored request and always expires the cookie.
func (s *PendingAuthorizationStore) Consume(w http.ResponseWriter, r *http.Request) (*AuthorizationRequest, bool) {
	req, ok := s.Load(r)
	s.cookies.expirePending(w)
	return req, ok
}
