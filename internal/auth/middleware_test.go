package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/MGallo-Code/cloudy/internal/reqlog"
	"github.com/MGallo-Code/cloudy/internal/token"
)

func requestWithSession(tok string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookie, Value: tok})
	return r
}

// --- Authenticate ---

func TestAuthenticateValidToken(t *testing.T) {
	u := newTestUser("editor-1", domain.RoleUser, domain.RoleEditor)
	h, _, _ := newTestHandler(t, u)

	seen := authenticated(t, h, requestWithSession(issue(t, h, u)))

	a, ok := AuthenticationFromContext(seen.Context())
	if !ok {
		t.Fatal("expected authentication in context")
	}
	p := a.Principal()
	if p.Subject != "editor-1" || p.Provider != domain.ProviderGoogle {
		t.Errorf("identity: got %s/%s", p.Provider, p.Subject)
	}
	if !a.HasRole(domain.RoleEditor) || a.HasRole(domain.RoleAdmin) {
		t.Errorf("roles: got %v", p.Roles)
	}
	if r, err := a.HighestRole(); err != nil || r != domain.RoleEditor {
		t.Errorf("HighestRole: expected EDITOR, got %v (%v)", r, err)
	}
	if tu := TokenUserFromContext(seen.Context()); tu == nil || tu.FullName != u.FullName {
		t.Errorf("TokenUser: got %+v", tu)
	}
	if attrs := fmt.Sprint(reqlog.Attrs(seen)); !strings.Contains(attrs, "subject editor-1") {
		t.Errorf("log attrs should carry the verified subject, got %s", attrs)
	}
}

func TestAuthenticateNoCookie(t *testing.T) {
	h, _, _ := newTestHandler(t)
	w := httptest.NewRecorder()
	var seen *http.Request
	h.Authenticate(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { seen = r })).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if _, ok := AuthenticationFromContext(seen.Context()); ok {
		t.Error("expected anonymous request")
	}
	if TokenUserFromContext(seen.Context()) != nil {
		t.Error("expected nil token user")
	}
	assertNoCookie(t, w, sessionCookie)
}

func TestAuthenticateBadTokens(t *testing.T) {
	u := newTestUser("user-1", domain.RoleUser)
	h, _, _ := newTestHandler(t, u)
	good := issue(t, h, u)

	expired, err := newTestCodec(t, func(c *token.Config) { c.Expiry = -time.Minute }).Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	foreign, err := newTestCodec(t, func(c *token.Config) { c.Issuer = "someone-else" }).Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	dotted := good[:5] + "." + good[6:]
	joined := parts[0] + "A" + parts[1] + "." + parts[2]

	cases := []struct {
		name        string
		tok         string
		clearCookie bool
	}{
		{"malformed keeps cookie", "not-a-jwt", false},
		{"expired clears cookie", expired, true},
		{"tampered clears cookie", tampered, true},
		{"character turned into a dot clears cookie", dotted, true},
		{"separator overwritten clears cookie", joined, true},
		{"issuer mismatch clears cookie", foreign, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			var seen *http.Request
			h.Authenticate(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { seen = r })).
				ServeHTTP(w, requestWithSession(tc.tok))

			if seen == nil {
				t.Fatal("expected request to continue anonymously")
			}
			if _, ok := AuthenticationFromContext(seen.Context()); ok {
				t.Error("expected no authentication")
			}
			if tc.clearCookie {
				assertExpiredCookie(t, w, sessionCookie)
			} else {
				assertNoCookie(t, w, sessionCookie)
			}
		})
	}
}

// --- Authentication ---

func TestCurrentUserReadsStore(t *testing.T) {
	u := newTestUser("user-1", domain.RoleUser, domain.RoleEditor)
	h, ms, _ := newTestHandler(t, u)
	tok := issue(t, h, u)

	// Roles revoked after the token was issued.
	ms.UpdateUserRoles(context.Background(), u.ID, domain.RoleSet{domain.RoleUser})

	a, _ := AuthenticationFromContext(authenticated(t, h, requestWithSession(tok)).Context())
	if !a.HasRole(domain.RoleEditor) {
		t.Error("token view should still carry EDITOR")
	}
	cur, err := a.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if cur.Roles.Has(domain.RoleEditor) {
		t.Error("store view should no longer carry EDITOR")
	}
	if cur.ID != u.ID {
		t.Errorf("ID: expected %s, got %s", u.ID, cur.ID)
	}
}

// --- ResolveCaller ---

func TestResolveCaller(t *testing.T) {
	u := newTestUser("user-1", domain.RoleUser)

	t.Run("anonymous is 401", func(t *testing.T) {
		h, _, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		if _, ok := h.ResolveCaller(w, httptest.NewRequest(http.MethodGet, "/", nil)); ok {
			t.Fatal("expected false")
		}
		assertMessage(t, w, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("deleted account is 403 and clears session", func(t *testing.T) {
		h, ms, _ := newTestHandler(t, u)
		r := authenticated(t, h, requestWithSession(issue(t, h, u)))
		ms.DeleteUser(context.Background(), u.ID)

		w := httptest.NewRecorder()
		if _, ok := h.ResolveCaller(w, r); ok {
			t.Fatal("expected false")
		}
		assertMessage(t, w, http.StatusForbidden, "forbidden")
		assertExpiredCookie(t, w, sessionCookie)
	})

	t.Run("store failure is 500", func(t *testing.T) {
		h, ms, _ := newTestHandler(t, u)
		r := authenticated(t, h, requestWithSession(issue(t, h, u)))
		ms.FindUsersErr = errors.New("db down")

		w := httptest.NewRecorder()
		if _, ok := h.ResolveCaller(w, r); ok {
			t.Fatal("expected false")
		}
		assertMessage(t, w, http.StatusInternalServerError, "internal server error")
	})

	t.Run("found", func(t *testing.T) {
		h, _, _ := newTestHandler(t, u)
		r := authenticated(t, h, requestWithSession(issue(t, h, u)))

		got, ok := h.ResolveCaller(httptest.NewRecorder(), r)
		if !ok || got.ID != u.ID {
			t.Errorf("expected stored user %s, got (%+v, %v)", u.ID, got, ok)
		}
	})
}

// --- Role middleware ---

func TestRequireAtLeast(t *testing.T) {
	h, _, _ := newTestHandler(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cases := []struct {
		name   string
		roles  []domain.Role
		min    domain.Role
		status int
	}{
		{"anonymous", nil, domain.RoleUser, http.StatusUnauthorized},
		{"user below editor", []domain.Role{domain.RoleUser}, domain.RoleEditor, http.StatusForbidden},
		{"editor meets editor", []domain.Role{domain.RoleUser, domain.RoleEditor}, domain.RoleEditor, http.StatusNoContent},
		{"admin implies editor", []domain.Role{domain.RoleUser, domain.RoleAdmin}, domain.RoleEditor, http.StatusNoContent},
		{"editor below admin", []domain.Role{domain.RoleUser, domain.RoleEditor}, domain.RoleAdmin, http.StatusForbidden},
		{"actuator is not a user", []domain.Role{domain.RoleActuator}, domain.RoleUser, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.roles != nil {
				u := newTestUser("caller", tc.roles...)
				r = authenticated(t, h, requestWithSession(issue(t, h, u)))
			}
			w := httptest.NewRecorder()
			RequireAtLeast(tc.min)(ok).ServeHTTP(w, r)
			if w.Code != tc.status {
				t.Errorf("status: expected %d, got %d", tc.status, w.Code)
			}
		})
	}
}

func TestRequireActuator(t *testing.T) {
	h, _, _ := newTestHandler(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	t.Run("admin is refused", func(t *testing.T) {
		r := authenticated(t, h, requestWithSession(issue(t, h, newTestUser("admin", domain.RoleUser, domain.RoleAdmin))))
		w := httptest.NewRecorder()
		RequireActuator(ok).ServeHTTP(w, r)
		assertMessage(t, w, http.StatusForbidden, "forbidden")
	})

	t.Run("actuator passes", func(t *testing.T) {
		act := newTestUser("actuator", domain.RoleActuator)
		act.AuthProvider = domain.ProviderLocal
		r := authenticated(t, h, requestWithSession(issue(t, h, act)))
		w := httptest.NewRecorder()
		RequireActuator(ok).ServeHTTP(w, r)
		if w.Code != http.StatusNoContent {
			t.Errorf("status: expected 204, got %d", w.Code)
		}
	})

	t.Run("anonymous is 401", func(t *testing.T) {
		w := httptest.NewRecorder()
		RequireActuator(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assertMessage(t, w, http.StatusUnauthorized, "unauthorized")
	})
}

func TestRequireAuthentication(t *testing.T) {
	h, _, _ := newTestHandler(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	w := httptest.NewRecorder()
	RequireAuthentication(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assertMessage(t, w, http.StatusUnauthorized, "unauthorized")

	w = httptest.NewRecorder()
	RequireAuthentication(ok).ServeHTTP(w, authenticated(t, h, requestWithSession(issue(t, h, newTestUser("u", domain.RoleUser)))))
	if w.Code != http.StatusNoContent {
		t.Errorf("status: expected 204, got %d", w.Code)
	}
}
