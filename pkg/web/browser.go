package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/diary/internal/platform"
	"github.com/aretw0/diary/pkg/core"
)

// browser is the server-side half of one visitor: a session manager of its
// own plus the view state the dashboard needs between requests. mu
// serializes every request of the same browser.
type browser struct {
	mu     sync.Mutex
	id     string
	client *platform.Client

	expanded string    // note whose description is shown
	editing  string    // note rendered as an edit form
	draft    *noteForm // rejected edit, shown again instead of the stored note
	lastSeen time.Time // guarded by registry.mu
}

// ensureChecked settles the initial session lookup.
func (b *browser) ensureChecked(ctx context.Context) {
	if b.client.Session.Status() != core.StateCheckingSession {
		return
	}
	// A failed lookup already leaves the browser unauthenticated.
	_, _ = b.client.Session.GetCurrentSession(ctx)
}

func (b *browser) authenticated() bool {
	return b.client.Session.Status() == core.StateAuthenticated
}

// resetView forgets the dashboard state, e.g. after logout.
func (b *browser) resetView() {
	b.expanded = ""
	b.editing = ""
	b.draft = nil
}

// registry maps browser ids to their state and drops browsers idle for
// longer than idle.
type registry struct {
	ctx     context.Context
	backend core.Backend
	logger  *slog.Logger
	idle    time.Duration
	now     func() time.Time

	mu       sync.Mutex
	browsers map[string]*browser
}

func newRegistry(ctx context.Context, backend core.Backend, idle time.Duration, logger *slog.Logger) *registry {
	return &registry{
		ctx:      ctx,
		backend:  backend,
		logger:   logger,
		idle:     idle,
		now:      time.Now,
		browsers: make(map[string]*browser),
	}
}

// get returns the browser with the given id, creating it on first use.
func (r *registry) get(id string) *browser {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, ok := r.browsers[id]
	if !ok {
		r.sweepLocked(now)
		logger := r.logger.With("browser", shortID(id))
		b = &browser{
			id:     id,
			client: platform.NewClient(r.ctx, r.backend, core.NewMemoryStorage(), logger),
		}
		r.browsers[id] = b
		r.logger.Debug("browser registered", "browser", shortID(id), "browsers", len(r.browsers))
	}
	b.lastSeen = now
	return b
}

// sweepLocked closes idle browsers that are not serving a request.
func (r *registry) sweepLocked(now time.Time) {
	for id, b := range r.browsers {
		if now.Sub(b.lastSeen) < r.idle || !b.mu.TryLock() {
			continue
		}
		_ = b.client.Close()
		delete(r.browsers, id)
		b.mu.Unlock()
		r.logger.Debug("browser expired", "browser", shortID(id))
	}
}

func (r *registry) counts() (total, authenticated int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.browsers {
		total++
		if b.client.Session.Status() == core.StateAuthenticated {
			authenticated++
		}
	}
	return total, authenticated
}

func (r *registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, b := range r.browsers {
		_ = b.client.Close()
		delete(r.browsers, id)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
