// Package web serves the diary as server-rendered HTML. Every browser is
// identified by a signed cookie and gets its own session manager, so two
// visitors never share an identity even though they share one backend.
package web

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"github.com/aretw0/diary/pkg/core"
)

const (
	cookieName = "diary"
	browserKey = "browser"
	csrfKey    = "csrf"

	flashError   = "error"
	flashNotice  = "notice"
	flashCreated = "created"

	defaultIdleTimeout = 30 * time.Minute
	shutdownTimeout    = 5 * time.Second
)

// Config holds the configuration for the web server.
type Config struct {
	Backend      core.Backend
	SessionKey   []byte        // Signs the browser cookie. Random when empty, so cookies do not survive a restart.
	TemplatesDir string        // Parse pages from disk and reload them on change. Embedded pages when empty.
	IdleTimeout  time.Duration // Browsers idle for longer are forgotten. Defaults to 30 minutes.
	SecureCookie bool          // Mark the cookie Secure (HTTPS only).
	Logger       *slog.Logger
}

// Server is an http.Handler rendering the diary pages.
type Server struct {
	config    Config
	logger    *slog.Logger
	cookies   *sessions.CookieStore
	browsers  *registry
	templates *templateSet
	router    *mux.Router
	now       func() time.Time
	cancel    context.CancelFunc
}

// New creates a server on config.Backend. Call Close to release the
// per-browser sessions.
func New(config Config) (*Server, error) {
	if config.Backend == nil {
		return nil, errors.New("web: backend is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaultIdleTimeout
	}
	if len(config.SessionKey) == 0 {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
		config.SessionKey = key
		config.Logger.Warn("no session key configured, browser cookies will not survive a restart")
	}

	templates, err := newTemplateSet(config.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	cookies := sessions.NewCookieStore(config.SessionKey)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   config.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    config,
		logger:    config.Logger,
		cookies:   cookies,
		browsers:  newRegistry(ctx, config.Backend, config.IdleTimeout, config.Logger),
		templates: templates,
		now:       time.Now,
		cancel:    cancel,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests, securityHeaders)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	app := r.NewRoute().Subrouter()
	app.Use(s.withBrowser)
	app.HandleFunc("/", s.page(s.handleHome)).Methods(http.MethodGet)
	app.HandleFunc("/login", s.page(s.handleLoginForm)).Methods(http.MethodGet)
	app.HandleFunc("/login", s.page(s.handleLogin)).Methods(http.MethodPost)
	app.HandleFunc("/signup", s.page(s.handleSignup)).Methods(http.MethodPost)
	app.HandleFunc("/logout", s.page(s.handleLogout)).Methods(http.MethodPost)
	app.HandleFunc("/restart", s.page(s.handleRestart)).Methods(http.MethodPost)
	app.HandleFunc("/dashboard", s.page(s.handleDashboard)).Methods(http.MethodGet)
	app.HandleFunc("/create", s.page(s.handleCreateForm)).Methods(http.MethodGet)
	app.HandleFunc("/create", s.page(s.handleCreate)).Methods(http.MethodPost)
	app.HandleFunc("/notes/{id}", s.page(s.handleSave)).Methods(http.MethodPost)
	app.HandleFunc("/notes/{id}/expand", s.page(s.handleExpand)).Methods(http.MethodPost)
	app.HandleFunc("/notes/{id}/edit", s.page(s.handleEdit)).Methods(http.MethodPost)
	app.HandleFunc("/notes/{id}/cancel", s.page(s.handleCancel)).Methods(http.MethodPost)
	app.HandleFunc("/notes/{id}/delete", s.page(s.handleDeleteConfirm)).Methods(http.MethodGet)
	app.HandleFunc("/notes/{id}/delete", s.page(s.handleDelete)).Methods(http.MethodPost)
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// WatchTemplates reloads the pages whenever a template under
// Config.TemplatesDir changes, until ctx is done or stop is called. It is a
// no-op for embedded templates.
func (s *Server) WatchTemplates(ctx context.Context) (stop func(context.Context) error, err error) {
	if s.config.TemplatesDir == "" {
		return func(context.Context) error { return nil }, nil
	}
	return superviseReloader(ctx, s.config.TemplatesDir, s.templates, s.logger)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	stop, err := s.WatchTemplates(ctx)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := stop(stopCtx); err != nil {
			s.logger.Warn("template reloader did not stop cleanly", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("http shutdown failed", "error", err)
	}))

	s.logger.Info("diary listening", "addr", addr, "templates", s.config.TemplatesDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", addr, err)
	}
	return nil
}

// Close releases every browser session.
func (s *Server) Close() {
	s.cancel()
	s.browsers.closeAll()
}

// request is what withBrowser attaches to each application request.
type request struct {
	cookie  *sessions.Session
	browser *browser
	csrf    string
}

type requestKey struct{}

// withBrowser resolves the cookie to a browser, issuing a new id and CSRF
// token on first visit, and rejects POSTs without a matching token.
func (s *Server) withBrowser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := s.cookies.Get(r, cookieName)
		if err != nil {
			s.logger.Debug("discarding unreadable cookie", "error", err)
		}

		id, _ := cookie.Values[browserKey].(string)
		if id == "" {
			id = uuid.NewString()
			cookie.Values[browserKey] = id
		}
		token, _ := cookie.Values[csrfKey].(string)
		if token == "" {
			if token, err = newCSRFToken(); err != nil {
				s.logger.Error("generate csrf token", "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			cookie.Values[csrfKey] = token
		}

		if r.Method == http.MethodPost && !validCSRF(r, token) {
			s.logger.Warn("rejected request without valid csrf token", "path", r.URL.Path)
			http.Error(w, "invalid or missing CSRF token", http.StatusForbidden)
			return
		}

		rq := &request{cookie: cookie, browser: s.browsers.get(id), csrf: token}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestKey{}, rq)))
	})
}

type pageHandler func(w http.ResponseWriter, r *http.Request, rq *request)

// page serializes the handler with every other request of the same browser.
func (s *Server) page(h pageHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rq, ok := r.Context().Value(requestKey{}).(*request)
		if !ok {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		rq.browser.mu.Lock()
		defer rq.browser.mu.Unlock()

		rq.browser.ensureChecked(r.Context())
		h(w, r, rq)
	}
}

// view is the data every page template receives.
type view struct {
	Title   string
	Nav     string
	User    *core.User
	CSRF    string
	Errors  []string
	Notices []string
	Refresh int
	Year    int
	Body    any
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, rq *request, status int, name string, v view) {
	v.CSRF = rq.csrf
	v.User = rq.browser.client.Session.CurrentUser()
	v.Year = s.now().Year()
	v.Errors = append(flashes(rq.cookie, flashError), v.Errors...)
	v.Notices = append(flashes(rq.cookie, flashNotice), v.Notices...)

	var buf bytes.Buffer
	if err := s.templates.render(&buf, name, v); err != nil {
		s.logger.Error("render failed", "template", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s.saveCookie(w, r, rq)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) redirect(w http.ResponseWriter, r *http.Request, rq *request, url string) {
	s.saveCookie(w, r, rq)
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func (s *Server) flash(rq *request, kind, msg string) {
	rq.cookie.AddFlash(msg, kind)
}

func (s *Server) saveCookie(w http.ResponseWriter, r *http.Request, rq *request) {
	if err := rq.cookie.Save(r, w); err != nil {
		s.logger.Error("save cookie", "error", err)
	}
}

func flashes(cookie *sessions.Session, kind string) []string {
	var out []string
	for _, f := range cookie.Flashes(kind) {
		if msg, ok := f.(string); ok {
			out = append(out, msg)
		}
	}
	return out
}
