package platform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/diary/pkg/core"
)

const (
	// CredentialsFileName is the session file kept under UserConfigDir.
	CredentialsFileName = "session.yaml"

	tempFilePrefix = "diary-tmp-"
)

// FileStorage persists a session as YAML in a file only the owner can read,
// so the CLI stays signed in between invocations.
type FileStorage struct {
	Path string

	mu sync.Mutex
}

// NewFileStorage returns a FileStorage at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{Path: path}
}

// DefaultCredentialsPath returns ~/.config/diary/session.yaml (or the
// platform equivalent).
func DefaultCredentialsPath() (string, error) {
	dir, err := UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, CredentialsFileName), nil
}

func (f *FileStorage) Load(ctx context.Context) (*core.AuthSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var s core.AuthSession
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", f.Path, err)
	}
	if s.AccessToken == "" {
		return nil, nil
	}
	return &s, nil
}

func (f *FileStorage) Save(ctx context.Context, s *core.AuthSession) error {
	if s == nil {
		return f.Clear(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	return writeFileAtomic(f.Path, data, 0o600)
}

func (f *FileStorage) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it over filename.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(filename), tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name()) // no-op after a successful rename

	if err := tmpFile.Chmod(perm); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), filename); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}
	return nil
}

var _ core.SessionStorage = (*FileStorage)(nil)
