package platform

import (
	"context"
	"io"
	"log/slog"

	"github.com/aretw0/diary/pkg/core"
)

// Client is one user's view of the backend: the session manager and the
// note repository scoped to its session.
type Client struct {
	Session *core.SessionManager
	Notes   *core.Notes
	Auth    core.AuthClient

	backend core.Backend
	owned   bool // backend was opened by New
	cancel  context.CancelFunc
}

// autoRefresher is implemented by auth clients that can renew their token
// in the background.
type autoRefresher interface {
	StartAutoRefresh(ctx context.Context)
}

// NewClient wires a session manager and note repository over backend. The
// session lives in storage.
//
// client := platform.NewClient(ctx, backend, platform.NewFileStorage(path), logger)
// defer client.Close()
func NewClient(ctx context.Context, backend core.Backend, storage core.SessionStorage, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	auth := backend.NewAuthClient(storage)
	session := core.NewSessionManager(auth, logger)

	ctx, cancel := context.WithCancel(ctx)
	if r, ok := auth.(autoRefresher); ok {
		r.StartAutoRefresh(ctx)
	}

	return &Client{
		Session: session,
		Notes:   core.NewNotes(backend.Notes(), session, logger),
		Auth:    auth,
		backend: backend,
		cancel:  cancel,
	}
}

// New opens the configured backend and returns a client on it, with the
// session restored from storage.
func New(ctx context.Context, storage core.SessionStorage, opts ...Option) (*Client, error) {
	o := applyOptions(opts)
	backend, err := Open(ctx, opts...)
	if err != nil {
		return nil, err
	}
	c := NewClient(ctx, backend, storage, o.logger)
	c.owned = true
	if _, err := c.Session.GetCurrentSession(ctx); err != nil {
		o.logger.Warn("could not restore session", "error", err)
	}
	return c, nil
}

// Backend returns the backend the client was built on.
func (c *Client) Backend() core.Backend {
	return c.backend
}

// Close stops background work. A backend opened by New is released too.
func (c *Client) Close() error {
	c.cancel()
	c.Session.Close()
	if !c.owned {
		return nil
	}
	if closer, ok := c.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
