package main

import (
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/cloudy/internal/api"
	"github.com/MGallo-Code/cloudy/internal/auth"
	"github.com/MGallo-Code/cloudy/internal/config"
	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/MGallo-Code/cloudy/internal/metrics"
	"github.com/MGallo-Code/cloudy/internal/oauth"
	"github.com/MGallo-Code/cloudy/internal/store"
	"github.com/MGallo-Code/cloudy/internal/token"
	"github.com/MGallo-Code/cloudy/internal/users"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
	"github.com/rs/cors"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg, os.Stdout))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes (ps, rdb) always execute before os.Exit.
	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// newLogger returns a JSON logger, or a tint console logger when LOG_FORMAT=text.
// Source locations are included at debug level only.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	addSrc := cfg.LogLevel == slog.LevelDebug
	if cfg.LogFormat == "text" {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  addSrc,
			TimeFormat: time.RFC3339,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	}))
}

// userCache is what the user service and the actuator health check need from the cache.
type userCache interface {
	users.Cache
	auth.HealthChecker
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	ps, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to set up postgres store: %w", err)
	}
	defer ps.Close()

	migrationsFS, err := fs.Sub(migrationsDir, "migrations")
	if err != nil {
		return fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	applied, err := ps.Migrate(ctx, migrationsFS)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("migrations complete", "applied", applied)

	// Redis is optional; without it every request resolves users from Postgres.
	var cache userCache = store.NoopUserCache{}
	if cfg.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to set up redis client: %w", err)
		}
		defer rdb.Close()
		cache = store.NewRedisUserCache(rdb)
	} else {
		slog.Warn("REDIS_URL not set, user cache disabled")
	}

	codec, err := token.NewCodec(token.Config{
		SecretKey:      cfg.JWT.SecretKey,
		Issuer:         cfg.JWT.Issuer,
		Expiry:         cfg.JWT.Expiry,
		ActuatorExpiry: cfg.JWT.ActuatorExpiry,
	})
	if err != nil {
		return fmt.Errorf("failed to set up token codec: %w", err)
	}

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return err
	}

	svc := &users.Service{
		Store:             ps,
		Cache:             cache,
		CacheTTL:          cfg.UserCacheTTL,
		DefaultAdminEmail: cfg.DefaultAdminEmail,
	}
	if cfg.ActuatorUserEnabled {
		if err := bootstrapActuator(ctx, svc, codec); err != nil {
			return err
		}
	}

	cookies := auth.NewCookieTransport(cookieConfig(cfg))
	h := &auth.AuthHandler{
		Tokens:       codec,
		Users:        svc,
		Cookies:      cookies,
		Pending:      auth.NewPendingAuthorizationStore(cookies),
		Providers:    providers,
		PostLogonURL: cfg.PostLogonURL,
		PS:           ps,
		RS:           cache,
	}
	bh := &api.BookHandler{Books: ps, Callers: h}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{Handler: buildRouter(cfg, h, bh)}

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("cloudy listening", "addr", ln.Addr().String())
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	// In-flight requests get 30s to finish before Shutdown gives up.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// buildProviders registers every OAuth2 provider that has a client id, keyed
// by the name used in /login/{provider}.
func buildProviders(ctx context.Context, cfg *config.Config) (map[string]oauth.Provider, error) {
	providers := make(map[string]oauth.Provider)
	if cfg.Google.Enabled() {
		g, err := oauth.NewGoogleProvider(ctx, cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
		if err != nil {
			return nil, fmt.Errorf("failed to set up google provider: %w", err)
		}
		providers["google"] = g
	}
	if cfg.Facebook.Enabled() {
		providers["facebook"] = oauth.NewFacebookProvider(cfg.Facebook.ClientID, cfg.Facebook.ClientSecret, cfg.Facebook.RedirectURL)
	}
	if len(providers) == 0 {
		slog.Warn("no oauth providers configured, login is disabled")
	}
	return providers, nil
}

// bootstrapActuator makes sure the monitoring account exists and logs a
// token for it. The token is a long-lived credential.
func bootstrapActuator(ctx context.Context, svc *users.Service, codec *token.Codec) error {
	u, err := svc.EnsureActuatorUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up actuator user: %w", err)
	}
	tok, err := codec.Issue(u)
	if err != nil {
		return fmt.Errorf("failed to issue actuator token: %w", err)
	}
	slog.Warn("actuator token issued", "user_id", u.ID, "token", tok)
	return nil
}

// cookieConfig maps env config onto the cookie transport. The session cookie
// lives as long as the token it carries; the CSRF cookie lasts the browser session.
func cookieConfig(cfg *config.Config) auth.CookieConfig {
	c := cfg.Cookies
	base := auth.CookieAttrs{
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		SameSite: c.SameSite.Mode(),
	}

	session := base
	session.Name = c.SessionName
	session.HttpOnly = true
	session.MaxAge = cfg.JWT.Expiry

	csrf := base
	csrf.Name = c.CSRFName

	pending := base
	pending.Name = c.PendingName
	pending.HttpOnly = true
	pending.MaxAge = c.PendingTTL

	return auth.CookieConfig{
		Session:    session,
		CSRF:       csrf,
		Pending:    pending,
		CSRFHeader: c.CSRFHeader,
		Legacy:     c.LegacyNames,
	}
}

// buildRouter wires all routes and middleware.
// Called from run() and smoke tests.
func buildRouter(cfg *config.Config, h *auth.AuthHandler, bh *api.BookHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	if cfg.CORSEnabled {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", cfg.Cookies.CSRFHeader},
			AllowCredentials: true,
		}).Handler)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Every request may carry a session; anonymous requests pass through.
	// CSRF runs after Authenticate so an expired cookie is cleared even on a refused POST.
	r.Use(h.Authenticate)
	r.Use(auth.CSRFMiddleware(h.Cookies))

	r.Get("/health", h.Health)
	r.Get("/login/{provider}", h.Login)
	r.Get("/login/oauth2/code/{provider}", h.Callback)
	r.Get("/api/books", bh.ListBooks)
	r.Get("/api/books/{id}", bh.GetBook)

	r.Route("/secure/api", func(r chi.Router) {
		r.Use(auth.RequireAuthentication)
		r.Get("/user", h.GetCurrentUser)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAtLeast(domain.RoleAdmin))
			r.Get("/users", h.ListUsers)
			r.Delete("/users/{id}", h.DeleteUser)
			r.Patch("/users/{id}", h.PatchUserRoles)
		})

		// Ownership is checked per book in the handlers.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAtLeast(domain.RoleEditor))
			r.Post("/books", bh.CreateBook)
			r.Put("/books/{id}", bh.UpdateBook)
			r.Delete("/books/{id}", bh.DeleteBook)
			r.Post("/books/{id}/comments", bh.AddComment)
			r.Delete("/books/{id}/comments/{commentId}", bh.DeleteComment)
		})
	})

	r.Route("/actuator", func(r chi.Router) {
		r.Use(auth.RequireActuator)
		r.Get("/health", h.CheckHealth)
		r.Method(http.MethodGet, "/prometheus", metrics.Handler())
	})

	return r
}
