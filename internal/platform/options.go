package platform

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/diary/pkg/core"
)

// Adapter names accepted by WithAdapter.
const (
	AdapterSupabase = "supabase"
	AdapterPostgres = "postgres"
	AdapterMemory   = "memory"
)

// options holds the internal configuration for the diary backend.
type options struct {
	backend core.Backend
	logger  *slog.Logger
	adapter string
	config  map[string]any
}

// Option defines a functional option for configuring the diary.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		backend: nil,
		logger:  nil,
		adapter: AdapterSupabase,
		config:  make(map[string]any),
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBackend injects a ready-made backend (e.g. a mock).
// If provided, the adapter selection is skipped.
func WithBackend(b core.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithAdapter selects the backend adapter by name ("supabase", "postgres" or "memory").
// Defaults to "supabase".
func WithAdapter(name string) Option {
	return func(o *options) {
		if name != "" {
			o.adapter = name
		}
	}
}

// WithSupabase sets the project URL and anon key of the hosted backend.
func WithSupabase(url, anonKey string) Option {
	return func(o *options) {
		o.config["supabase_url"] = url
		o.config["supabase_anon_key"] = anonKey
	}
}

// WithHTTPClient overrides the HTTP client used to reach the hosted backend.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.config["http_client"] = c
	}
}

// WithDatabaseURL sets the Postgres connection string used by the "postgres" adapter.
func WithDatabaseURL(dsn string) Option {
	return func(o *options) {
		o.config["database_url"] = dsn
	}
}

// WithJWTSecret sets the project's JWT secret. The "postgres" adapter uses it
// to verify access tokens before handing their claims to the database.
func WithJWTSecret(secret string) Option {
	return func(o *options) {
		o.config["jwt_secret"] = secret
	}
}

// WithAutoConfirm makes the "memory" adapter issue a session on signup
// instead of waiting for confirmation.
func WithAutoConfirm(auto bool) Option {
	return func(o *options) {
		o.config["auto_confirm"] = auto
	}
}

// WithTokenTTL sets the access token lifetime of the "memory" adapter.
func WithTokenTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.config["token_ttl"] = ttl
	}
}

// WithConfig applies every backend setting of a loaded Config.
func WithConfig(c Config) Option {
	return func(o *options) {
		WithAdapter(c.Backend)(o)
		WithSupabase(c.SupabaseURL, c.SupabaseAnonKey)(o)
		WithDatabaseURL(c.DatabaseURL)(o)
		WithJWTSecret(c.JWTSecret)(o)
		WithAutoConfirm(c.AutoConfirm)(o)
	}
}
