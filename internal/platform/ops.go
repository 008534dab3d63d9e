package platform

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/diary/pkg/adapters/memory"
	"github.com/aretw0/diary/pkg/adapters/postgres"
	"github.com/aretw0/diary/pkg/adapters/supabase"
	"github.com/aretw0/diary/pkg/core"
)

// Open builds the backend selected by the options.
// Call Close on the result when it implements io.Closer.
func Open(ctx context.Context, opts ...Option) (core.Backend, error) {
	o := applyOptions(opts)

	// 1. Check for injected backend
	if o.backend != nil {
		return o.backend, nil
	}

	// 2. Initialize based on Adapter
	var backend core.Backend
	switch o.adapter {
	case AdapterSupabase:
		b, err := initSupabase(o)
		if err != nil {
			return nil, err
		}
		backend = b
	case AdapterPostgres:
		b, err := initPostgres(ctx, o)
		if err != nil {
			return nil, err
		}
		backend = b
	case AdapterMemory:
		backend = initMemory(o)
	default:
		return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
	return backend, nil
}

func initSupabase(o *options) (*supabase.Backend, error) {
	url, _ := o.config["supabase_url"].(string)
	key, _ := o.config["supabase_anon_key"].(string)
	client, _ := o.config["http_client"].(*http.Client)

	b, err := supabase.New(supabase.Config{
		URL:        url,
		AnonKey:    key,
		HTTPClient: client,
		Logger:     o.logger,
	})
	if err != nil {
		return nil, err
	}
	o.logger.Debug("backend ready", "adapter", AdapterSupabase, "url", url)
	return b, nil
}

// initPostgres keeps authentication on the hosted project and reads and
// writes notes directly in its database.
func initPostgres(ctx context.Context, o *options) (*splitBackend, error) {
	auth, err := initSupabase(o)
	if err != nil {
		return nil, err
	}
	dsn, _ := o.config["database_url"].(string)
	if dsn == "" {
		return nil, fmt.Errorf("postgres adapter: database URL is required")
	}
	secret, _ := o.config["jwt_secret"].(string)

	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	store, err := postgres.New(postgres.Config{DB: db, JWTSecret: []byte(secret), Logger: o.logger})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	o.logger.Debug("backend ready", "adapter", AdapterPostgres)
	return &splitBackend{auth: auth, notes: store}, nil
}

func initMemory(o *options) *memory.Backend {
	autoConfirm, _ := o.config["auto_confirm"].(bool)
	ttl, _ := o.config["token_ttl"].(time.Duration)
	o.logger.Warn("using in-memory backend, data is lost on exit")
	return memory.New(memory.Config{
		AutoConfirm: autoConfirm,
		TokenTTL:    ttl,
		Logger:      o.logger,
	})
}

// splitBackend authenticates against one backend and stores notes in another.
type splitBackend struct {
	auth  *supabase.Backend
	notes *postgres.Store
}

func (s *splitBackend) NewAuthClient(storage core.SessionStorage) core.AuthClient {
	return s.auth.NewAuthClient(storage)
}

func (s *splitBackend) Notes() core.NoteStore {
	return s.notes
}

func (s *splitBackend) Close() error {
	return s.notes.Close()
}

// ComponentType implements introspection.Component.
func (s *splitBackend) ComponentType() string {
	return AdapterPostgres
}

// State implements introspection.Introspectable.
func (s *splitBackend) State() any {
	return map[string]any{
		"auth":  s.auth.State(),
		"notes": s.notes.State(),
	}
}
