// cookies.go -- Cookie transport for the session token, the CSRF token and
// the pending OAuth2 authorization request.
package auth

import (
	"net/http"
	"time"

	"github.com/MGallo-Code/cloudy/internal/reqlog"
)

// CookieAttrs configures one cookie family.
type CookieAttrs struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
	MaxAge   time.Duration // zero writes a browser-session cookie
}

// CookieConfig groups every cookie the service reads or writes.
type CookieConfig struct {
	Session CookieAttrs
	CSRF    CookieAttrs
	Pending CookieAttrs

	// CSRFHeader carries the echoed CSRF cookie value on unsafe requests.
	CSRFHeader string

	// Legacy names are only ever expired, on logout.
	Legacy []string
}

// CookieTransport writes, reads and expires the service's cookies.
// It holds no per-request state.
type CookieTransport struct {
	cfg CookieConfig
}

// NewCookieTransport returns a transport for cfg. Families without a Path get "/".
func NewCookieTransport(cfg CookieConfig) *CookieTransport {
	for _, a := range []*CookieAttrs{&cfg.Session, &cfg.CSRF, &cfg.Pending} {
		if a.Path == "" {
			a.Path = "/"
		}
	}
	return &CookieTransport{cfg: cfg}
}

// CSRFHeader returns the header name the CSRF middleware checks.
func (c *CookieTransport) CSRFHeader() string { return c.cfg.CSRFHeader }

// WriteSession sets the session token cookie.
func (c *CookieTransport) WriteSession(w http.ResponseWriter, token string) {
	write(w, c.cfg.Session, token)
}

// ReadSession returns the session token, or ("", false) when absent or empty.
func (c *CookieTransport) ReadSession(r *http.Request) (string, bool) {
	return read(r, c.cfg.Session.Name)
}

// ExpireSession deletes the session cookie.
func (c *CookieTransport) ExpireSession(w http.ResponseWriter) {
	expire(w, c.cfg.Session)
}

// WriteCSRF sets the CSRF cookie. It is readable by page scripts.
func (c *CookieTransport) WriteCSRF(w http.ResponseWriter, token string) {
	write(w, c.cfg.CSRF, token)
}

// ReadCSRF returns the CSRF cookie value, or ("", false).
func (c *CookieTransport) ReadCSRF(r *http.Request) (string, bool) {
	return read(r, c.cfg.CSRF.Name)
}

// ExpireCSRF deletes the CSRF cookie.
func (c *CookieTransport) ExpireCSRF(w http.ResponseWriter) {
	expire(w, c.cfg.CSRF)
}

// ExpireLegacy deletes any cookie named in the legacy list, using the session
// cookie's scope.
func (c *CookieTransport) ExpireLegacy(w http.ResponseWriter) {
	for _, name := range c.cfg.Legacy {
		a := c.cfg.Session
		a.Name = name
		expire(w, a)
	}
}

func (c *CookieTransport) writePending(w http.ResponseWriter, value string) {
	write(w, c.cfg.Pending, value)
}

func (c *CookieTransport) readPending(r *http.Request) (string, bool) {
	return read(r, c.cfg.Pending.Name)
}

func (c *CookieTransport) expirePending(w http.ResponseWriter) {
	expire(w, c.cfg.Pending)
}

func (c *CookieTransport) hasPending(r *http.Request) bool {
	_, err := r.Cookie(c.cfg.Pending.Name)
	return err == nil
}

func write(w http.ResponseWriter, a CookieAttrs, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.Name,
		Value:    value,
		Path:     a.Path,
		Domain:   a.Domain,
		Secure:   a.Secure,
		HttpOnly: a.HttpOnly,
		SameSite: a.SameSite,
		MaxAge:   int(a.MaxAge.Seconds()),
	})
}

// expire overwrites the cookie with an empty value and Max-Age=0 in the
// same scope it was written with, so the browser drops it.
func expire(w http.ResponseWriter, a CookieAttrs) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.Name,
		Value:    "",
		Path:     a.Path,
		Domain:   a.Domain,
		Secure:   a.Secure,
		HttpOnly: a.HttpOnly,
		SameSite: a.SameSite,
		MaxAge:   -1,
	})
}

func read(r *http.Request, name string) (string, bool) {
	ck, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	if ck.Value == "" {
		reqlog.Debug(r, "ignoring empty cookie", "cookie", name)
		return "", false
	}
	return ck.Value, true
}
