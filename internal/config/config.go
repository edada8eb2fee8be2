// Package config provides configuration loading and management for the
// gition server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHost = "0.0.0.0"
	defaultPort = 8080

	// DatabasePasswordEnv overrides the database password file.
	DatabasePasswordEnv = "GITION_DATABASE_PASSWORD"

	// GitHubClientSecretEnv overrides the OAuth client secret file.
	GitHubClientSecretEnv = "GITION_GITHUB_CLIENT_SECRET"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Server   ServerConfig    `yaml:"server,omitempty"`
	Storage  StorageConfig   `yaml:"storage"`
	Database *DatabaseConfig `yaml:"database,omitempty"`
	GitHub   *GitHubConfig   `yaml:"github,omitempty"`
	Notes    NotesConfig     `yaml:"notes,omitempty"`
}

// ServerConfig defines the HTTP listener settings
type ServerConfig struct {
	// Host is the address the server binds to
	Host string `yaml:"host,omitempty"`

	// Port is the port the server listens on
	Port int `yaml:"port,omitempty"`

	// FrontendURL is where the OAuth callback redirects the browser after
	// a completed login
	FrontendURL string `yaml:"frontendUrl,omitempty"`
}

// StorageConfig defines where working copies live
type StorageConfig struct {
	// Root is the directory holding every working copy; a clone of
	// (owner, repo) always lands at {root}/{owner}/{repo}
	Root string `yaml:"root"`
}

// NotesConfig defines where branch notes are persisted
type NotesConfig struct {
	// Path is the bolt database file for branch notes. Defaults to
	// {storage.root}/.gition/notes.db, outside every working copy so
	// notes survive working-copy deletion.
	Path string `yaml:"path,omitempty"`
}

// GitHubConfig defines the OAuth application settings
type GitHubConfig struct {
	// ClientID is the OAuth app client ID
	ClientID string `yaml:"clientId"`

	// ClientSecretFile is the path to a file containing the OAuth client
	// secret. This is the recommended approach for production deployments.
	ClientSecretFile string `yaml:"clientSecretFile,omitempty"`

	// RedirectURL is the OAuth callback URL registered with the app
	RedirectURL string `yaml:"redirectUrl"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from GITION_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(DatabasePasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s environment variable",
		DatabasePasswordEnv,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// GetConnMaxLifetime parses the configured connection lifetime, falling back
// to the given default.
func (d *DatabaseConfig) GetConnMaxLifetime(fallback time.Duration) (time.Duration, error) {
	if d.ConnMaxLifetime == "" {
		return fallback, nil
	}

	duration, err := time.ParseDuration(d.ConnMaxLifetime)
	if err != nil {
		return 0, fmt.Errorf("invalid connection max lifetime: %w", err)
	}
	return duration, nil
}

// GetClientSecret returns the OAuth client secret using the following priority:
// 1. Read from ClientSecretFile if specified
// 2. Read from GITION_GITHUB_CLIENT_SECRET environment variable
func (g *GitHubConfig) GetClientSecret() (string, error) {
	if g.ClientSecretFile != "" {
		cleanPath := filepath.Clean(g.ClientSecretFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read client secret from file %s: %w", g.ClientSecretFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envSecret := os.Getenv(GitHubClientSecretEnv); envSecret != "" {
		return envSecret, nil
	}

	return "", fmt.Errorf(
		"no GitHub client secret configured: set clientSecretFile or %s environment variable",
		GitHubClientSecretEnv,
	)
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetHost returns the bind address, using the default if not specified
func (c *Config) GetHost() string {
	if c.Server.Host == "" {
		return defaultHost
	}
	return c.Server.Host
}

// GetPort returns the listen port, using the default if not specified
func (c *Config) GetPort() int {
	if c.Server.Port == 0 {
		return defaultPort
	}
	return c.Server.Port
}

// GetNotesPath returns the branch-note database path, defaulting to a
// location under the storage root but outside any working copy.
func (c *Config) GetNotesPath() string {
	if c.Notes.Path != "" {
		return c.Notes.Path
	}
	return filepath.Join(c.Storage.Root, ".gition", "notes.db")
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root is required")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	return c.validateGitHub()
}

// validateDatabase validates the database configuration when present
func (c *Config) validateDatabase() error {
	if c.Database == nil {
		return nil
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}

	if _, err := c.Database.GetConnMaxLifetime(0); err != nil {
		return fmt.Errorf("database.connMaxLifetime: %w", err)
	}

	return nil
}

// validateGitHub validates the OAuth configuration when present
func (c *Config) validateGitHub() error {
	if c.GitHub == nil {
		return nil
	}

	if c.GitHub.ClientID == "" {
		return fmt.Errorf("github.clientId is required")
	}
	if c.GitHub.RedirectURL == "" {
		return fmt.Errorf("github.redirectUrl is required")
	}

	return nil
}
