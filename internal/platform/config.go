package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Build-time defaults, injected with
// -ldflags "-X github.com/aretw0/diary/internal/platform.DefaultSupabaseURL=..."
var (
	DefaultSupabaseURL     string
	DefaultSupabaseAnonKey string
)

// ConfigFileName is the per-project configuration file searched by FindConfig.
const ConfigFileName = "diary.yaml"

// Config is the merged application configuration.
type Config struct {
	Backend         string `yaml:"backend"`
	SupabaseURL     string `yaml:"supabase_url"`
	SupabaseAnonKey string `yaml:"supabase_anon_key"`
	DatabaseURL     string `yaml:"database_url"`
	JWTSecret       string `yaml:"jwt_secret"`
	Addr            string `yaml:"addr"`
	SessionKey      string `yaml:"session_key"`
	LogLevel        string `yaml:"log_level"`
	AutoConfirm     bool   `yaml:"auto_confirm"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		Backend:         AdapterSupabase,
		SupabaseURL:     DefaultSupabaseURL,
		SupabaseAnonKey: DefaultSupabaseAnonKey,
		Addr:            "127.0.0.1:8080",
		LogLevel:        "info",
	}
}

// LoadConfig merges, from lowest to highest precedence: the defaults, the
// YAML file at path (or the one found by FindConfig when path is empty), a
// .env file in the working directory, and the process environment.
// Command-line flags are applied by the caller on top.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		if wd, err := os.Getwd(); err == nil {
			path, _ = FindConfig(wd)
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	for env, dst := range map[string]*string{
		"DIARY_BACKEND":      &cfg.Backend,
		"SUPABASE_URL":       &cfg.SupabaseURL,
		"SUPABASE_ANON_KEY":  &cfg.SupabaseAnonKey,
		"DIARY_DATABASE_URL": &cfg.DatabaseURL,
		"DIARY_JWT_SECRET":   &cfg.JWTSecret,
		"DIARY_ADDR":         &cfg.Addr,
		"DIARY_SESSION_KEY":  &cfg.SessionKey,
		"DIARY_LOG_LEVEL":    &cfg.LogLevel,
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("DIARY_AUTO_CONFIRM"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoConfirm = b
		}
	}
}

// Level parses LogLevel, defaulting to Info.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// UserConfigDir returns the directory holding the user's diary files.
func UserConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "diary"), nil
}
