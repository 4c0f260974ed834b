// oauth_handler.go -- OAuth2 login redirect and callback handlers.
// Provider-specific logic lives in internal/oauth/*.go.
// Adding a new provider: implement oauth.Provider, register it in buildProviders in main.go.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/MGallo-Code/cloudy/internal/metrics"
	"github.com/MGallo-Code/cloudy/internal/oauth"
	"github.com/MGallo-Code/cloudy/internal/reqlog"
	"github.com/go-chi/chi/v5"
)

// randomString returns n random bytes, base64url encoded.
func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Login handles GET /login/{provider} -- generates state + PKCE verifier, stores
// them as the pending authorization request, and redirects to the provider.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.oauthProvider(w, r)
	if !ok {
		return
	}

	state, err := randomString(32)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	verifier, err := randomString(32)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	req := &AuthorizationRequest{
		ClientID:         provider.ClientID(),
		AuthorizationURI: provider.AuthorizationURI(),
		RedirectURI:      provider.RedirectURL(),
		State:            state,
		CodeVerifier:     verifier,
		Provider:         provider.Name(),
	}
	if err := h.Pending.Save(w, r, req); err != nil {
		InternalServerError(w, r, err)
		return
	}
	http.Redirect(w, r, provider.AuthCodeURL(state, oauth.S256Challenge(verifier)), http.StatusFound)
}

// Callback handles GET /login/oauth2/code/{provider} -- checks state against the
// pending request, exchanges the code, creates or refreshes the user and
// issues the session cookie. The pending request is discarded on every path.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	pending, havePending := h.Pending.Consume(w, r)

	provider, ok := h.oauthProvider(w, r)
	if !ok {
		return
	}
	name := string(provider.Name())

	if !havePending {
		metrics.RecordLogin(name, "missing_state")
		reqlog.Warn(r, "oauth callback: no pending authorization request")
		BadRequest(w, r, "missing oauth state")
		return
	}
	if pending.Provider != provider.Name() {
		metrics.RecordLogin(name, "provider_mismatch")
		reqlog.Warn(r, "oauth callback: pending request is for another provider", "pending", pending.Provider)
		BadRequest(w, r, "invalid oauth state")
		return
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		metrics.RecordLogin(name, "denied")
		reqlog.Info(r, "oauth callback: provider returned error", "error", e, "provider", name)
		Unauthorized(w, r, "oauth authentication failed")
		return
	}
	// Constant-time comparison prevents timing oracle on state value.
	if subtle.ConstantTimeCompare([]byte(pending.State), []byte(q.Get("state"))) != 1 {
		metrics.RecordLogin(name, "state_mismatch")
		reqlog.Warn(r, "oauth callback: state mismatch")
		Unauthorized(w, r, "invalid oauth state")
		return
	}

	identity, err := provider.Exchange(r.Context(), q.Get("code"), pending.CodeVerifier)
	if err != nil {
		metrics.RecordLogin(name, "exchange_failed")
		reqlog.Warn(r, "oauth callback: exchange failed", "error", err, "provider", name)
		Unauthorized(w, r, "oauth authentication failed")
		return
	}

	user, err := h.Users.CreateOrUpdate(r.Context(), provider.Name(), identity)
	if err != nil {
		metrics.RecordLogin(name, "user_error")
		InternalServerError(w, r, err)
		return
	}

	tok, err := h.Tokens.Issue(user)
	if err != nil {
		metrics.RecordLogin(name, "issue_failed")
		InternalServerError(w, r, err)
		return
	}
	h.Cookies.WriteSession(w, tok)

	metrics.RecordLogin(name, "success")
	reqlog.Info(r, "oauth user logged in", "user_id", user.ID, "provider", name, "first_visit", user.IsFirstVisit())
	http.Redirect(w, r, h.PostLogonURL, http.StatusFound)
}

// oauthProvider reads the {provider} URL param and looks it up in Providers.
// Writes 404 and returns (nil, false) when the provider is not configured.
func (h *AuthHandler) oauthProvider(w http.ResponseWriter, r *http.Request) (oauth.Provider, bool) {
	p, ok := h.Providers[strings.ToLower(chi.URLParam(r, "provider"))]
	if !ok {
		NotFound(w)
		return nil, false
	}
	return p, true
}
