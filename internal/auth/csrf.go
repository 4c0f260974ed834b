// csrf.go -- Double-submit CSRF protection.
//
// The token lives in a script-readable cookie; unsafe requests must echo it
// in a header. The session token itself is never readable by scripts.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/MGallo-Code/cloudy/internal/metrics"
	"github.com/MGallo-Code/cloudy/internal/reqlog"
)

// GenerateCSRFToken returns a 256-bit random token, base64url encoded.
func GenerateCSRFToken() (string, error) {
	var token [32]byte
	if _, err := rand.Read(token[:]); err != nil {
		return "", fmt.Errorf("generating token with rand: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(token[:]), nil
}

// ValidateCSRFToken compares the header value against the cookie value in constant time.
func ValidateCSRFToken(provided, stored string) bool {
	if provided == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(stored)) == 1
}

// CSRFMiddleware issues the CSRF cookie when the browser has none and
// rejects POST, PUT, PATCH and DELETE requests whose header does not match it.
func CSRFMiddleware(cookies *CookieTransport) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stored, ok := cookies.ReadCSRF(r)
			if !ok {
				fresh, err := GenerateCSRFToken()
				if err != nil {
					InternalServerError(w, r, err)
					return
				}
				cookies.WriteCSRF(w, fresh)
			}

			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				next.ServeHTTP(w, r)
				return
			}

			if !ok || !ValidateCSRFToken(r.Header.Get(cookies.CSRFHeader()), stored) {
				metrics.RecordAccessDenied("csrf")
				reqlog.Warn(r, "csrf check failed", "cookie_present", ok)
				Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
