// helpers_test.go -- shared fixtures and assertions for auth tests.
package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/MGallo-Code/cloudy/internal/oauth"
	"github.com/MGallo-Code/cloudy/internal/testutil"
	"github.com/MGallo-Code/cloudy/internal/token"
	"github.com/MGallo-Code/cloudy/internal/users"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
)

const (
	sessionCookie = "CLOUDY-JWT"
	csrfCookie    = "XSRF-TOKEN"
	csrfHeader    = "X-XSRF-TOKEN"
	pendingCookie = "cloudy-oauth2-auth"
	testIssuer    = "cloudy-test"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("s3cr3t-k", 8)))

// newTestCodec builds a codec on the shared test secret. mods adjust the config
// (e.g. negative expiry for pre-expired tokens).
func newTestCodec(t *testing.T, mods ...func(*token.Config)) *token.Codec {
	t.Helper()
	cfg := token.Config{SecretKey: testSecret, Issuer: testIssuer, Expiry: time.Hour, ActuatorExpiry: 24 * time.Hour}
	for _, m := range mods {
		m(&cfg)
	}
	c, err := token.NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func testCookieTransport() *CookieTransport {
	return NewCookieTransport(CookieConfig{
		Session:    CookieAttrs{Name: sessionCookie, HttpOnly: true, Secure: true, SameSite: http.SameSiteLaxMode, MaxAge: time.Hour},
		CSRF:       CookieAttrs{Name: csrfCookie, Secure: true, SameSite: http.SameSiteLaxMode},
		Pending:    CookieAttrs{Name: pendingCookie, HttpOnly: true, Secure: true, SameSite: http.SameSiteLaxMode, MaxAge: 10 * time.Minute},
		CSRFHeader: csrfHeader,
		Legacy:     []string{"JSESSIONID"},
	})
}

// newTestHandler wires an AuthHandler against in-memory stores seeded with seed.
func newTestHandler(t *testing.T, seed ...*domain.User) (*AuthHandler, *testutil.MockStore, *testutil.MockCache) {
	t.Helper()
	ms := testutil.NewMockStore(seed...)
	mc := testutil.NewMockCache()
	cookies := testCookieTransport()
	h := &AuthHandler{
		Tokens:       newTestCodec(t),
		Users:        &users.Service{Store: ms, Cache: mc, CacheTTL: time.Minute},
		Cookies:      cookies,
		Pending:      NewPendingAuthorizationStore(cookies),
		Providers:    map[string]oauth.Provider{},
		PostLogonURL: "/welcome",
		PS:           ms,
		RS:           mc,
	}
	return h, ms, mc
}

// newTestUser returns a Google user holding roles.
func newTestUser(sub string, roles ...domain.Role) *domain.User {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &domain.User{
		ID:                      uuid.Must(uuid.NewV7()),
		AuthenticationServiceID: sub,
		AuthProvider:            domain.ProviderGoogle,
		FullName:                "User " + sub,
		Email:                   sub + "@example.com",
		FirstLogon:              now,
		LastLogon:               now,
		Roles:                   domain.NewRoleSet(roles...),
	}
}

// issue returns a signed session token for u.
func issue(t *testing.T, h *AuthHandler, u *domain.User) string {
	t.Helper()
	tok, err := h.Tokens.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

// withURLParams attaches a chi route context carrying kv pairs.
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// authenticated runs r through Authenticate and returns the request next saw.
func authenticated(t *testing.T, h *AuthHandler, r *http.Request) *http.Request {
	t.Helper()
	var seen *http.Request
	h.Authenticate(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { seen = r })).
		ServeHTTP(httptest.NewRecorder(), r)
	if seen == nil {
		t.Fatal("Authenticate did not call next")
	}
	return seen
}

// findCookie returns the Set-Cookie named name, or nil.
func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// assertExpiredCookie checks w deletes the named cookie.
func assertExpiredCookie(t *testing.T, w *httptest.ResponseRecorder, name string) {
	t.Helper()
	c := findCookie(w, name)
	if c == nil {
		t.Fatalf("expected Set-Cookie for %s, got none", name)
	}
	if c.Value != "" {
		t.Errorf("%s: expected empty value, got %q", name, c.Value)
	}
	if c.MaxAge >= 0 {
		t.Errorf("%s: expected Max-Age=0 (parsed as -1), got %d", name, c.MaxAge)
	}
}

// assertNoCookie checks w does not touch the named cookie.
func assertNoCookie(t *testing.T, w *httptest.ResponseRecorder, name string) {
	t.Helper()
	if c := findCookie(w, name); c != nil {
		t.Errorf("expected no Set-Cookie for %s, got %+v", name, c)
	}
}

// assertMessage checks status and the JSON {"message":...} body.
func assertMessage(t *testing.T, w *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status: expected %d, got %d", status, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
	body, _ := io.ReadAll(w.Body)
	expected := fmt.Sprintf(`{"message":"%s"}`, msg)
	if string(body) != expected {
		t.Errorf("body: expected %q, got %q", expected, string(body))
	}
}

// mockProvider implements oauth.Provider for tests.
type mockProvider struct {
	name        domain.AuthProvider
	identity    oauth.Identity
	exchangeErr error

	gotCode, gotVerifier string
}

func (m *mockProvider) Name() domain.AuthProvider { return m.name }
func (m *mockProvider) ClientID() string          { return "client-" + strings.ToLower(string(m.name)) }
func (m *mockProvider) RedirectURL() string       { return "https://app.example/login/oauth2/code/google" }
func (m *mockProvider) AuthorizationURI() string  { return "https://idp.example/auth" }
func (m *mockProvider) AuthCodeURL(state, challenge string) string {
	return "https://idp.example/auth?state=" + state + "&code_challenge=" + challenge
}
func (m *mockProvider) Exchange(_ context.Context, code, verifier string) (oauth.Identity, error) {
	m.gotCode, m.gotVerifier = code, verifier
	return m.identity, m.exchangeErr
}
