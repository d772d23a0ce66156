package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/contentgraph/pkg/config"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Upstream.Space = "space1"
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

func TestDefaultConfig_NeedsSpace(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err == nil {
		t.Fatal("default config without upstream space should fail")
	}
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestConfig_Invalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"max depth beyond include depth", func(c *Config) { c.Resolver.MaxDepth = 3 }, "exceeds upstream.include_depth"},
		{"zero max depth", func(c *Config) { c.Resolver.MaxDepth = 0 }, "resolver"},
		{"negative burst", func(c *Config) { c.Upstream.Burst = -1 }, "Burst"},
		{"too many concurrent pages", func(c *Config) { c.Upstream.Concurrency = 64 }, "Concurrency"},
		{"relative base url", func(c *Config) { c.Upstream.BaseURL = "not a url" }, "upstream"},
		{"tiny ttl", func(c *Config) { c.Cache.TTL = time.Millisecond }, "cache"},
		{"no fetch timeout", func(c *Config) { c.Cache.FetchTimeout = 0 }, "cache"},
		{"unknown ranker fallback", func(c *Config) { c.Ranker.Fallback = "random" }, "ranker"},
		{"snapshot without path", func(c *Config) { c.Snapshot.Path = "" }, "snapshot"},
		{"no fallback dir", func(c *Config) { c.Fallback.Dir = "" }, "fallback"},
		{"auth token missing", func(c *Config) { c.Auth.Mode = AuthModeToken }, "token is empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestConfig_SnapshotDisabledNeedsNoPath(t *testing.T) {
	cfg := validConfig()
	cfg.Snapshot = SnapshotConfig{Enabled: false}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled snapshot should not need a path: %v", err)
	}
}

func TestConfig_LoadYAML(t *testing.T) {
	t.Setenv("CG_TEST_TOKEN", "secret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  log_level: debug
  http:
    port: 9090
upstream:
  space: abc
  access_token: ${CG_TEST_TOKEN}
  timeout: 3s
  concurrency: 8
cache:
  ttl: 90s
ranker:
  fallback: shuffle
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Upstream.AccessToken != "secret" {
		t.Errorf("token not expanded: %q", cfg.Upstream.AccessToken)
	}
	if cfg.Upstream.Timeout != 3*time.Second || cfg.Cache.TTL != 90*time.Second {
		t.Errorf("durations = %v, %v", cfg.Upstream.Timeout, cfg.Cache.TTL)
	}
	if cfg.Cache.FetchTimeout != 8*time.Second {
		t.Errorf("default fetch timeout lost: %v", cfg.Cache.FetchTimeout)
	}
	if cfg.Upstream.Concurrency != 8 || cfg.Upstream.Burst != 10 {
		t.Errorf("upstream concurrency = %d, burst = %d", cfg.Upstream.Concurrency, cfg.Upstream.Burst)
	}
	if cfg.Ranker.Fallback != "shuffle" {
		t.Errorf("ranker fallback = %q", cfg.Ranker.Fallback)
	}
}
