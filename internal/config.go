package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nbsync/internal/history"
	"github.com/starford/nbsync/internal/runtime"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	Recovery  RecoveryConfig    `yaml:"recovery"`
	Index     IndexConfig       `yaml:"index"`
	History   HistoryConfig     `yaml:"history"`
	Runtime   RuntimeConfig     `yaml:"runtime"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Workspace, &c.Recovery, &c.Index, &c.History, &c.Runtime} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WorkspaceConfig holds the directory notebook file locations resolve against.
type WorkspaceConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RecoveryConfig locates the three recovery tiers: backup files in Dir and
// the global and session buckets in the SQLite database at SQLitePath.
type RecoveryConfig struct {
	Dir            string        `yaml:"dir"`
	SQLitePath     string        `yaml:"sqlite_path"`
	BackupInterval time.Duration `yaml:"backup_interval"`
	// ClearSession drops the session bucket at startup, as a new session would.
	ClearSession bool `yaml:"clear_session"`
}

// Validate validates the recovery configuration.
func (c *RecoveryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.SQLitePath, validation.Required),
		validation.Field(&c.BackupInterval, validation.Min(time.Duration(0))),
	)
}

// IndexConfig holds the workspace catalog database path.
type IndexConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SQLitePath, validation.Required),
	)
}

// HistoryConfig bounds the undo stacks of documents and replicas.
type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

// Validate validates the history configuration.
func (c *HistoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Limit, validation.Min(0)),
	)
}

// RuntimeConfig describes the interpreter stamped into new notebook
// metadata. PythonBinary is probed first; PythonVersion is the fallback.
type RuntimeConfig struct {
	PythonVersion string `yaml:"python_version"`
	PythonBinary  string `yaml:"python_binary"`
}

// Validate validates the runtime configuration.
func (c *RuntimeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PythonVersion, validation.By(func(any) error {
			if c.PythonVersion == "" {
				return nil
			}
			_, err := runtime.ParseVersion(c.PythonVersion)
			return err
		})),
	)
}

// Provider returns the runtime provider described by the configuration, or
// nil when none is configured.
func (c *RuntimeConfig) Provider() runtime.Provider {
	var chain runtime.Chain
	if c.PythonBinary != "" {
		chain = append(chain, runtime.NewCommand(c.PythonBinary))
	}
	if c.PythonVersion != "" {
		chain = append(chain, runtime.Static(c.PythonVersion))
	}
	switch len(chain) {
	case 0:
		return nil
	case 1:
		return chain[0]
	}
	return chain
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Workspace: WorkspaceConfig{
			Path: "./notebooks",
		},
		Recovery: RecoveryConfig{
			Dir:            filepath.Join(".nbsync", "backups"),
			SQLitePath:     filepath.Join(".nbsync", "state.db"),
			BackupInterval: 30 * time.Second,
		},
		Index: IndexConfig{
			SQLitePath: filepath.Join(".nbsync", "index.db"),
		},
		History: HistoryConfig{
			Limit: history.DefaultLimit,
		},
		Runtime: RuntimeConfig{
			PythonVersion: "3.11.0",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
