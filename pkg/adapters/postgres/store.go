// Package postgres implements core.NoteStore directly against the project's
// Postgres database. Each call runs in its own transaction with the caller's
// token claims and the authenticated role, so the table's row-level
// security policies apply exactly as they do behind the REST API.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/aretw0/diary/pkg/core"
)

//go:embed schema.sql
var Schema string

const noteColumns = `id, user_id, title, note_date, description, created_at`

// Config holds the configuration for the SQL note store.
type Config struct {
	DB *sql.DB
	// JWTSecret verifies access tokens before their claims are handed to the
	// database. Without it the claims are trusted as presented.
	JWTSecret []byte
	Logger    *slog.Logger
}

// Store implements core.NoteStore over database/sql with the pgx driver.
type Store struct {
	db     *sql.DB
	secret []byte
	logger *slog.Logger
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// New returns a Store using config.DB.
func New(config Config) (*Store, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("postgres: database handle is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if len(config.JWTSecret) == 0 {
		config.Logger.Warn("postgres: no JWT secret configured, token claims are not verified")
	}
	return &Store{db: config.DB, secret: config.JWTSecret, logger: config.Logger}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ApplySchema creates the notes table and its policies.
func (s *Store) ApplySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type tokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// requestClaims returns the JSON document for request.jwt.claims.
func (s *Store) requestClaims(token string) (string, error) {
	if token == "" {
		return "", core.ErrNotAuthenticated
	}
	c := &tokenClaims{}
	if len(s.secret) > 0 {
		_, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		})
		if err != nil {
			return "", fmt.Errorf("verify access token: %w", err)
		}
	} else if _, _, err := jwt.NewParser().ParseUnverified(token, c); err != nil {
		return "", fmt.Errorf("parse access token: %w", err)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("access token has no subject")
	}
	data, err := json.Marshal(map[string]string{
		"sub":   c.Subject,
		"email": c.Email,
		"role":  "authenticated",
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// inTx runs fn in a transaction scoped to the caller's identity.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	claims, err := s.requestClaims(core.AccessTokenFrom(ctx))
	if err != nil {
		return &core.BackendError{Op: op, Status: http.StatusUnauthorized, Code: "42501", Message: "permission denied for table notes", Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pgError(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	const scope = `SELECT set_config('request.jwt.claims', $1, true), set_config('role', 'authenticated', true)`
	if _, err := tx.ExecContext(ctx, scope, claims); err != nil {
		return pgError(op, err)
	}
	if err := fn(tx); err != nil {
		return pgError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return pgError(op, err)
	}
	return nil
}

func (s *Store) Select(ctx context.Context, userID string) ([]core.Note, error) {
	const q = `SELECT ` + noteColumns + ` FROM notes WHERE user_id = $1 ORDER BY note_date DESC, created_at DESC`

	notes := []core.Note{}
	err := s.inTx(ctx, "list notes", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, q, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			n, err := rowToNote(rows)
			if err != nil {
				return err
			}
			notes = append(notes, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return notes, nil
}

func (s *Store) Insert(ctx context.Context, n core.Note) (core.Note, error) {
	const q = `INSERT INTO notes (user_id, title, note_date, description) VALUES ($1, $2, $3::date, $4) RETURNING ` + noteColumns

	var created core.Note
	err := s.inTx(ctx, "create note", func(tx *sql.Tx) error {
		var err error
		created, err = rowToNote(tx.QueryRowContext(ctx, q, n.UserID, n.Title, n.NoteDate.String(), n.Description))
		return err
	})
	return created, err
}

func (s *Store) Update(ctx context.Context, id string, in core.NoteInput) (core.Note, error) {
	const q = `UPDATE notes SET title = $1, note_date = $2::date, description = $3 WHERE id = $4 RETURNING ` + noteColumns

	var updated core.Note
	err := s.inTx(ctx, "update note", func(tx *sql.Tx) error {
		var err error
		updated, err = rowToNote(tx.QueryRowContext(ctx, q, in.Title, in.NoteDate.String(), in.Description, id))
		return err
	})
	return updated, err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM notes WHERE id = $1`

	return s.inTx(ctx, "delete note", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, q, id)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

type scannable interface {
	Scan(dest ...any) error
}

func rowToNote(row scannable) (core.Note, error) {
	var (
		n        core.Note
		noteDate time.Time
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &noteDate, &n.Description, &n.CreatedAt); err != nil {
		return core.Note{}, err
	}
	n.NoteDate = core.DateOf(noteDate)
	return n, nil
}

// pgError converts driver errors into the core taxonomy.
func pgError(op string, err error) error {
	var be *core.BackendError
	if errors.As(err, &be) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &core.BackendError{Op: op, Status: http.StatusNotFound, Code: "PGRST116", Message: "note not found", Err: core.ErrNotFound}
	}

	out := &core.BackendError{Op: op, Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		out.Code = pgErr.Code
		out.Message = pgErr.Message
		switch pgErr.Code {
		case "42501": // insufficient_privilege, row-level security violation
			out.Status = http.StatusForbidden
		case "22P02", "22007", "22008": // malformed uuid or date
			out.Status = http.StatusBadRequest
		case "23502", "23503": // not null, foreign key
			out.Status = http.StatusConflict
		default:
			out.Status = http.StatusInternalServerError
		}
		// A malformed id can never match a row.
		if pgErr.Code == "22P02" && (op == "update note" || op == "delete note") {
			out.Status = http.StatusNotFound
			out.Err = core.ErrNotFound
		}
	}
	return out
}
