// config.go

// Environment variable loading and validation.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// SameSite is the SameSite attribute shared by every cookie family.
// Only Strict and Lax are accepted.
type SameSite http.SameSite

// UnmarshalText parses "Strict" or "Lax" (case-insensitive).
func (s *SameSite) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "strict":
		*s = SameSite(http.SameSiteStrictMode)
	case "lax":
		*s = SameSite(http.SameSiteLaxMode)
	default:
		return fmt.Errorf("COOKIE_SAME_SITE must be Strict or Lax, got %q", text)
	}
	return nil
}

// Mode returns the net/http representation.
func (s SameSite) Mode() http.SameSite { return http.SameSite(s) }

// OAuthClient holds one provider's client registration. An empty ClientID
// disables the provider.
type OAuthClient struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

// Enabled reports whether the provider is configured.
func (c OAuthClient) Enabled() bool { return c.ClientID != "" }

// CookieConfig covers the session, CSRF and pending-authorization cookies.
type CookieConfig struct {
	Secure      bool          `env:"COOKIE_SECURE" envDefault:"true"`
	SameSite    SameSite      `env:"COOKIE_SAME_SITE" envDefault:"Lax"`
	Domain      string        `env:"COOKIE_DOMAIN"`
	Path        string        `env:"COOKIE_PATH" envDefault:"/"`
	SessionName string        `env:"COOKIE_SESSION_NAME" envDefault:"CLOUDY-JWT"`
	CSRFName    string        `env:"COOKIE_CSRF_NAME" envDefault:"XSRF-TOKEN"`
	CSRFHeader  string        `env:"CSRF_HEADER" envDefault:"X-XSRF-TOKEN"`
	PendingName string        `env:"COOKIE_PENDING_NAME" envDefault:"cloudy-oauth2-auth"`
	PendingTTL  time.Duration `env:"COOKIE_PENDING_MAX_AGE" envDefault:"10m"`
	LegacyNames []string      `env:"COOKIE_LEGACY_NAMES" envDefault:"JSESSIONID" envSeparator:","`
}

// JWTConfig configures the session token codec.
type JWTConfig struct {
	// SecretKey is base64 (standard alphabet); decoded length must be at least 64 bytes.
	SecretKey      string        `env:"JWT_SECRET_KEY,notEmpty"`
	Issuer         string        `env:"JWT_ISSUER" envDefault:"cloudy-books"`
	Expiry         time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
	ActuatorExpiry time.Duration `env:"JWT_ACTUATOR_EXPIRY" envDefault:"8760h"`
}

// Config holds all env configuration vars for cloudy.
type Config struct {
	Port        string     `env:"PORT" envDefault:"7865"`
	DatabaseURL string     `env:"DATABASE_URL,notEmpty"`
	RedisURL    string     `env:"REDIS_URL"` // empty disables the user cache
	LogLevel    slog.Level `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string     `env:"LOG_FORMAT" envDefault:"json"`

	JWT     JWTConfig
	Cookies CookieConfig

	PostLogonURL string      `env:"POST_LOGON_URL" envDefault:"/"`
	Google       OAuthClient `envPrefix:"GOOGLE_"`
	Facebook     OAuthClient `envPrefix:"FACEBOOK_"`

	DefaultAdminEmail   string        `env:"DEFAULT_ADMIN_EMAIL"`
	ActuatorUserEnabled bool          `env:"ACTUATOR_USER_ENABLED" envDefault:"false"`
	UserCacheTTL        time.Duration `env:"USER_CACHE_TTL" envDefault:"30s"`

	CORSEnabled        bool     `env:"CORS_ENABLED" envDefault:"false"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// LoadConfig reads .env (if present) and environment variables and returns a
// validated Config.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("loading .env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	key, err := base64.StdEncoding.DecodeString(c.JWT.SecretKey)
	if err != nil {
		return fmt.Errorf("JWT_SECRET_KEY is not valid base64: %w", err)
	}
	if len(key) < 64 {
		return fmt.Errorf("JWT_SECRET_KEY must decode to at least 64 bytes, got %d", len(key))
	}
	if c.JWT.Expiry <= 0 || c.JWT.ActuatorExpiry <= 0 {
		return errors.New("JWT_EXPIRY and JWT_ACTUATOR_EXPIRY must be positive")
	}
	if c.Cookies.PendingTTL <= 0 {
		return errors.New("COOKIE_PENDING_MAX_AGE must be positive")
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}

	if c.CORSEnabled && len(c.CORSAllowedOrigins) == 0 {
		return errors.New("CORS_ALLOWED_ORIGINS is required when CORS_ENABLED is true")
	}
	return nil
}
