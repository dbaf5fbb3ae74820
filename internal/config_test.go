package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/marginalia/pkg/config"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Remote.Token = "tok"
	return cfg
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfig_RequiresRemoteToken(t *testing.T) {
	err := NewDefaultConfig().Validate()
	if err == nil || !strings.HasPrefix(err.Error(), "remote:") {
		t.Fatalf("err = %v, want remote section error", err)
	}
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}
}

func TestRemoteConfig_PageSizeBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Remote.PageSize = 1001
	if err := cfg.Validate(); err == nil {
		t.Error("page_size above 1000 should fail")
	}
}

func TestFrontmatterConfig_TrackingNeedsProperty(t *testing.T) {
	cfg := validConfig()
	cfg.Frontmatter.TrackingProperty = ""
	if err := cfg.Validate(); err == nil || !strings.HasPrefix(err.Error(), "frontmatter:") {
		t.Errorf("err = %v", err)
	}

	cfg.Frontmatter.TrackFiles = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("untracked config should pass: %v", err)
	}

	cfg.Frontmatter.Template = "a: b"
	cfg.Frontmatter.TemplateFile = "x.tmpl"
	if err := cfg.Validate(); err == nil {
		t.Error("template and template_file together should fail")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestApplicationConfig_DebugLevel(t *testing.T) {
	cfg := ApplicationConfig{LogLevel: slog.LevelWarn}
	if cfg.Level() != slog.LevelWarn {
		t.Errorf("level = %v", cfg.Level())
	}
	cfg.Debug = true
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("debug level = %v", cfg.Level())
	}
}

func TestLoad_TOMLConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.toml")
	content := `
[app]
debug = true
sync_interval = "15m"

[remote]
token = "${TEST_REMOTE_TOKEN}"

[vault]
path = "/tmp/vault"
concurrency = 4

[frontmatter]
protected_fields = ["status", "rating"]
`
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_REMOTE_TOKEN", "abc")

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(p, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Remote.Token != "abc" || cfg.App.SyncInterval != 15*time.Minute || cfg.Vault.Concurrency != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Remote.PageSize != 1000 || cfg.Vault.BaseFolder != "Readwise" {
		t.Error("defaults lost while decoding")
	}
	if len(cfg.Frontmatter.ProtectedFields) != 2 {
		t.Errorf("protected = %v", cfg.Frontmatter.ProtectedFields)
	}
}
