package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/nbsync/internal/runtime"
	pkgconfig "github.com/starford/nbsync/pkg/config"
)

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

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
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
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestRecoveryConfig_NegativeInterval(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Recovery.BackupInterval = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative backup interval should fail")
	}
}

func TestRuntimeConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RuntimeConfig
		want    string
		wantErr bool
	}{
		{name: "none", cfg: RuntimeConfig{}, want: "<nil>"},
		{name: "static", cfg: RuntimeConfig{PythonVersion: "3.10.4"}, want: "runtime.Static"},
		{name: "binary", cfg: RuntimeConfig{PythonBinary: "python3"}, want: "*runtime.Command"},
		{name: "both", cfg: RuntimeConfig{PythonVersion: "3.10.4", PythonBinary: "python3"}, want: "runtime.Chain"},
		{name: "bad version", cfg: RuntimeConfig{PythonVersion: "three"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := typeName(tt.cfg.Provider()); got != tt.want {
				t.Errorf("Provider() = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(p runtime.Provider) string {
	switch p.(type) {
	case nil:
		return "<nil>"
	case runtime.Static:
		return "runtime.Static"
	case *runtime.Command:
		return "*runtime.Command"
	case runtime.Chain:
		return "runtime.Chain"
	}
	return "unknown"
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("NBSYNC_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  http:
    port: 9090
workspace:
  path: /srv/notebooks
recovery:
  backup_interval: 5s
auth:
  mode: token
  token: ${NBSYNC_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.Workspace.Path != "/srv/notebooks" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Recovery.BackupInterval != 5*time.Second {
		t.Errorf("backup interval = %v", cfg.Recovery.BackupInterval)
	}
	if cfg.Recovery.SQLitePath == "" || cfg.History.Limit == 0 {
		t.Error("defaults lost")
	}
	if !cfg.Auth.AuthEnabled() || cfg.Auth.Token != "s3cret" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
}
