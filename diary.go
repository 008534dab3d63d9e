package diary

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/diary/internal/platform"
	"github.com/aretw0/diary/pkg/core"
)

// --- Types ---

// Client bundles a SessionManager and a Notes repository for one user.
type Client = platform.Client

// Config is the merged file, .env and environment configuration.
type Config = platform.Config

// --- Configuration ---

// Option defines a functional option for configuring the diary.
type Option = platform.Option

// Adapter names.
const (
	AdapterSupabase = platform.AdapterSupabase
	AdapterPostgres = platform.AdapterPostgres
	AdapterMemory   = platform.AdapterMemory
)

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithBackend injects a ready-made backend.
func WithBackend(b core.Backend) Option {
	return platform.WithBackend(b)
}

// WithAdapter selects the backend adapter by name.
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithSupabase sets the hosted project URL and anon key.
func WithSupabase(url, anonKey string) Option {
	return platform.WithSupabase(url, anonKey)
}

// WithHTTPClient overrides the HTTP client used for the hosted project.
func WithHTTPClient(c *http.Client) Option {
	return platform.WithHTTPClient(c)
}

// WithDatabaseURL sets the Postgres connection string of the "postgres" adapter.
func WithDatabaseURL(dsn string) Option {
	return platform.WithDatabaseURL(dsn)
}

// WithJWTSecret sets the secret used to verify access tokens in the "postgres" adapter.
func WithJWTSecret(secret string) Option {
	return platform.WithJWTSecret(secret)
}

// WithAutoConfirm makes the "memory" adapter skip email confirmation.
func WithAutoConfirm(auto bool) Option {
	return platform.WithAutoConfirm(auto)
}

// WithTokenTTL sets the access token lifetime of the "memory" adapter.
func WithTokenTTL(ttl time.Duration) Option {
	return platform.WithTokenTTL(ttl)
}

// WithConfig applies a loaded Config.
func WithConfig(c Config) Option {
	return platform.WithConfig(c)
}

// LoadConfig reads the configuration file, .env and environment.
func LoadConfig(path string) (Config, error) {
	return platform.LoadConfig(path)
}

// --- Factory ---

// Open builds the configured backend without any session.
func Open(ctx context.Context, opts ...Option) (core.Backend, error) {
	return platform.Open(ctx, opts...)
}

// New opens the configured backend and restores the session held in storage.
func New(ctx context.Context, storage core.SessionStorage, opts ...Option) (*Client, error) {
	return platform.New(ctx, storage, opts...)
}

// NewClient builds a client on an already opened backend.
func NewClient(ctx context.Context, backend core.Backend, storage core.SessionStorage, logger *slog.Logger) *Client {
	return platform.NewClient(ctx, backend, storage, logger)
}

// --- Session Storage ---

// NewMemoryStorage keeps the session in process memory.
func NewMemoryStorage() *core.MemoryStorage {
	return core.NewMemoryStorage()
}

// NewFileStorage keeps the session in a YAML file readable only by its owner.
func NewFileStorage(path string) *platform.FileStorage {
	return platform.NewFileStorage(path)
}

// DefaultCredentialsPath returns the CLI's session file location.
func DefaultCredentialsPath() (string, error) {
	return platform.DefaultCredentialsPath()
}

// --- Errors ---

// UserMessage converts any error into the text shown to the user.
func UserMessage(err error) string {
	return core.UserMessage(err)
}
