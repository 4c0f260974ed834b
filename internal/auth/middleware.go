// middleware.go

// Session authentication and role middleware.
package auth

import (
	"errors"
	"net/http"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/MGallo-Code/cloudy/internal/metrics"
	"github.com/MGallo-Code/cloudy/internal/reqlog"
	"github.com/MGallo-Code/cloudy/internal/token"
)

// Authenticate verifies the session cookie when present and stores the
// resulting Authentication in the request context. Requests without a
// usable token continue anonymously; expired or forged tokens also have the
// cookie cleared.
func (h *AuthHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := h.Cookies.ReadSession(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		p, err := h.Tokens.Verify(raw)
		if err != nil {
			outcome := metrics.OutcomeIllegalClaims
			dropCookie := true
			switch {
			case errors.Is(err, token.ErrMalformed):
				outcome, dropCookie = metrics.OutcomeMalformed, false
				reqlog.Debug(r, "ignoring malformed session token", "error", err)
			case errors.Is(err, token.ErrExpired):
				outcome = metrics.OutcomeExpired
				reqlog.Info(r, "session token expired")
			case errors.Is(err, token.ErrTampered):
				outcome = metrics.OutcomeTampered
				reqlog.Error(r, "session token signature invalid", "error", err)
			case errors.Is(err, token.ErrIssuerMismatch):
				outcome = metrics.OutcomeIssuerMismatch
				reqlog.Error(r, "session token issuer mismatch", "error", err)
			case errors.Is(err, domain.ErrUnknownRole):
				reqlog.Error(r, "session token carries unknown role code", "error", err)
			default:
				reqlog.Error(r, "session token claims invalid", "error", err)
			}
			metrics.RecordTokenVerification(outcome)
			if dropCookie {
				h.Cookies.ExpireSession(w)
			}
			next.ServeHTTP(w, r)
			return
		}

		metrics.RecordTokenVerification(metrics.OutcomeValid)
		r = reqlog.With(r, "subject", p.Subject, "provider", p.Provider)
		ctx := WithAuthentication(r.Context(), NewAuthentication(p, h.Users))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuthentication returns 401 for anonymous requests.
func RequireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := AuthenticationFromContext(r.Context()); !ok {
			metrics.RecordAccessDenied("unauthenticated")
			reqlog.Warn(r, "authentication required")
			Unauthorized(w, r, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAtLeast returns 401 for anonymous requests and 403 unless the
// caller's token grants minRole or a higher ordered role.
func RequireAtLeast(minRole domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := AuthenticationFromContext(r.Context())
			if !ok {
				metrics.RecordAccessDenied("unauthenticated")
				Unauthorized(w, r, "unauthorized")
				return
			}
			if !a.Principal().Roles.AtLeast(minRole) {
				metrics.RecordAccessDenied("insufficient_role")
				reqlog.Warn(r, "insufficient role", "required", minRole, "subject", a.Principal().Subject)
				Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireActuator admits only tokens whose sole role is ACTUATOR.
// ADMIN does not imply monitoring access.
func RequireActuator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := AuthenticationFromContext(r.Context())
		if !ok {
			metrics.RecordAccessDenied("unauthenticated")
			Unauthorized(w, r, "unauthorized")
			return
		}
		if !a.Principal().Roles.IsActuatorOnly() {
			metrics.RecordAccessDenied("not_actuator")
			reqlog.Warn(r, "actuator endpoint refused", "subject", a.Principal().Subject)
			Forbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
