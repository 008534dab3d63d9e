// Package supabase talks to a hosted Supabase project: GoTrue for
// authentication and PostgREST for the notes table. Row-level security on
// the project restricts every table request to the caller's own rows.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/diary/pkg/core"
)

// Config holds the configuration for the hosted backend.
type Config struct {
	URL        string // Project URL, e.g. https://xyz.supabase.co
	AnonKey    string // Public anon key sent as apikey on every request.
	HTTPClient *http.Client
	Logger     *slog.Logger

	// RefreshMargin is how long before expiry the auto-refresh loop renews
	// the access token. Defaults to one minute.
	RefreshMargin time.Duration
	// RefreshInterval is how often the auto-refresh loop checks the session.
	// Defaults to 30 seconds.
	RefreshInterval time.Duration
	Now             func() time.Time
}

// Backend implements core.Backend against a Supabase project.
type Backend struct {
	config  Config
	baseURL *url.URL
	table   *noteTable
}

// New validates the configuration and returns a Backend.
func New(config Config) (*Backend, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("supabase: project URL is required")
	}
	if config.AnonKey == "" {
		return nil, fmt.Errorf("supabase: anon key is required")
	}
	u, err := url.Parse(strings.TrimRight(config.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("supabase: invalid project URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("supabase: invalid project URL %q", config.URL)
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.RefreshMargin <= 0 {
		config.RefreshMargin = time.Minute
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = 30 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	b := &Backend{config: config, baseURL: u}
	b.table = &noteTable{b: b}
	return b, nil
}

// NewAuthClient implements core.Backend.
func (b *Backend) NewAuthClient(storage core.SessionStorage) core.AuthClient {
	if storage == nil {
		storage = core.NewMemoryStorage()
	}
	return &AuthClient{backend: b, storage: storage}
}

// Notes implements core.Backend.
func (b *Backend) Notes() core.NoteStore {
	return b.table
}

// request describes one HTTP call to the project.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	token  string // Bearer token; the anon key when empty.
	prefer string
}

// errorBody covers the error shapes of both GoTrue and PostgREST.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Code             any    `json:"code"` // number on GoTrue, string on PostgREST
}

func (e errorBody) message() string {
	for _, s := range []string{e.Msg, e.ErrorDescription, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (e errorBody) code() string {
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	if s, ok := e.Code.(string); ok && s != "" {
		return s
	}
	return e.Error
}

// httpError is a non-2xx response, converted to the core taxonomy by the caller.
type httpError struct {
	status int
	body   errorBody
	raw    string
}

func (e *httpError) Error() string {
	if msg := e.body.message(); msg != "" {
		return msg
	}
	if e.raw != "" {
		return fmt.Sprintf("status %d: %s", e.status, e.raw)
	}
	return fmt.Sprintf("status %d", e.status)
}

// do performs the request and decodes a 2xx JSON response into out (when non-nil).
func (b *Backend) do(ctx context.Context, r request, out any) error {
	var reqBody io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	u := *b.baseURL
	u.Path += r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	token := r.token
	if token == "" {
		token = b.config.AnonKey
	}
	req.Header.Set("apikey", b.config.AnonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	resp, err := b.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	b.config.Logger.Debug("supabase request", "method", r.method, "path", r.path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		he := &httpError{status: resp.StatusCode, raw: strings.TrimSpace(string(respBody))}
		_ = json.Unmarshal(respBody, &he.body)
		return he
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// authError converts a failed auth call. Transport failures are returned as is.
func authError(err error) error {
	var he *httpError
	if !errors.As(err, &he) {
		return err
	}
	return &core.AuthError{Status: he.status, Code: he.body.code(), Message: he.Error()}
}

// backendError converts a failed table call.
func backendError(op string, err error) error {
	be := &core.BackendError{Op: op, Err: err}
	var he *httpError
	if errors.As(err, &he) {
		be.Status = he.status
		be.Code = he.body.code()
		be.Message = he.Error()
		be.Err = nil
		if he.status == http.StatusNotFound || be.Code == "PGRST116" {
			be.Err = core.ErrNotFound
		}
	}
	return be
}
