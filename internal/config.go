package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app" toml:"app"`
	Remote      RemoteConfig      `yaml:"remote" toml:"remote"`
	Vault       VaultConfig       `yaml:"vault" toml:"vault"`
	Frontmatter FrontmatterConfig `yaml:"frontmatter" toml:"frontmatter"`
	Filter      FilterConfig      `yaml:"filter" toml:"filter"`
	SQLite      SQLiteConfig      `yaml:"sqlite" toml:"sqlite"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"app", &c.App},
		{"remote", &c.Remote},
		{"vault", &c.Vault},
		{"frontmatter", &c.Frontmatter},
		{"sqlite", &c.SQLite},
		{"auth", &c.Auth},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel     slog.Level    `yaml:"log_level" toml:"log_level"`
	Debug        bool          `yaml:"debug" toml:"debug"`
	LogFile      LogFileConfig `yaml:"log_file" toml:"log_file"`
	HTTP         HTTPConfig    `yaml:"http" toml:"http"`
	SyncInterval time.Duration `yaml:"sync_interval" toml:"sync_interval"`
}

// Level returns the effective log level.
func (c *ApplicationConfig) Level() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	return c.LogLevel
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.SyncInterval, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	if err := c.LogFile.Validate(); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// LogFileConfig enables an additional rotating log file. Empty Path disables it.
type LogFileConfig struct {
	Path       string `yaml:"path" toml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// Validate validates the log file configuration.
func (c *LogFileConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
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

// RemoteConfig holds the highlights API connection settings.
type RemoteConfig struct {
	BaseURL           string        `yaml:"base_url" toml:"base_url"`
	Token             string        `yaml:"token" toml:"token"`
	Kind              string        `yaml:"kind" toml:"kind"`
	PageSize          int           `yaml:"page_size" toml:"page_size"`
	RequestsPerMinute int           `yaml:"requests_per_minute" toml:"requests_per_minute"`
	DefaultRetryAfter time.Duration `yaml:"default_retry_after" toml:"default_retry_after"`
	Timeout           time.Duration `yaml:"timeout" toml:"timeout"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Token, validation.Required),
		validation.Field(&c.Kind, validation.Required),
		validation.Field(&c.PageSize, validation.Required, validation.Min(1), validation.Max(1000)),
		validation.Field(&c.RequestsPerMinute, validation.Min(0)),
		validation.Field(&c.DefaultRetryAfter, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.Timeout, validation.Required),
	)
}

// VaultConfig holds the vault directory and write-phase settings.
type VaultConfig struct {
	Path         string `yaml:"path" toml:"path"`
	BaseFolder   string `yaml:"base_folder" toml:"base_folder"`
	SetFileTimes bool   `yaml:"set_file_times" toml:"set_file_times"`
	Concurrency  int    `yaml:"concurrency" toml:"concurrency"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.BaseFolder, validation.Required),
		validation.Field(&c.Concurrency, validation.Min(1), validation.Max(64)),
	)
}

// FrontmatterConfig controls rendering and merging of the YAML header.
type FrontmatterConfig struct {
	Enabled          bool     `yaml:"enabled" toml:"enabled"`
	Template         string   `yaml:"template" toml:"template"`
	TemplateFile     string   `yaml:"template_file" toml:"template_file"`
	BodyTemplateFile string   `yaml:"body_template_file" toml:"body_template_file"`
	TrackFiles       bool     `yaml:"track_files" toml:"track_files"`
	TrackingProperty string   `yaml:"tracking_property" toml:"tracking_property"`
	ProtectedFields  []string `yaml:"protected_fields" toml:"protected_fields"`
	DeleteDuplicates bool     `yaml:"delete_duplicates" toml:"delete_duplicates"`
	MultilineFields  []string `yaml:"multiline_fields" toml:"multiline_fields"`
}

// Tracking reports whether files are matched by their tracking property.
func (c *FrontmatterConfig) Tracking() bool {
	return c.Enabled && c.TrackFiles
}

// Validate validates the frontmatter configuration.
func (c *FrontmatterConfig) Validate() error {
	if c.Template != "" && c.TemplateFile != "" {
		return fmt.Errorf("template and template_file are mutually exclusive")
	}
	if c.Tracking() {
		return validation.ValidateStruct(c,
			validation.Field(&c.TrackingProperty, validation.Required),
		)
	}
	return nil
}

// FilterConfig selects which documents and highlights are mirrored.
type FilterConfig struct {
	ExcludeTags      []string `yaml:"exclude_tags" toml:"exclude_tags"`
	IncludeDeleted   bool     `yaml:"include_deleted" toml:"include_deleted"`
	IncludeDiscarded bool     `yaml:"include_discarded" toml:"include_discarded"`
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the HTTP surface.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
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
			LogFile: LogFileConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Remote: RemoteConfig{
			BaseURL:           "https://readwise.io/api/v2",
			Kind:              "export",
			PageSize:          1000,
			DefaultRetryAfter: time.Second,
			Timeout:           30 * time.Second,
		},
		Vault: VaultConfig{
			Path:        "./vault",
			BaseFolder:  "Readwise",
			Concurrency: 1,
		},
		Frontmatter: FrontmatterConfig{
			Enabled:          true,
			TrackFiles:       true,
			TrackingProperty: "uri",
		},
		SQLite: SQLiteConfig{
			Path: "./marginalia.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
