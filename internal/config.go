package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/contentgraph/internal/fetcher"
	"github.com/starford/contentgraph/internal/ranker"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Upstream UpstreamConfig    `yaml:"upstream"`
	Cache    CacheConfig       `yaml:"cache"`
	Resolver ResolverConfig    `yaml:"resolver"`
	Ranker   RankerConfig      `yaml:"ranker"`
	Snapshot SnapshotConfig    `yaml:"snapshot"`
	Fallback FallbackConfig    `yaml:"fallback"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Resolver.Validate(); err != nil {
		return fmt.Errorf("resolver: %w", err)
	}
	// Links deeper than the upstream include depth never arrive, so
	// resolving further would only produce sentinels.
	if c.Resolver.MaxDepth > c.Upstream.IncludeDepth {
		return fmt.Errorf("resolver: max_depth %d exceeds upstream.include_depth %d",
			c.Resolver.MaxDepth, c.Upstream.IncludeDepth)
	}
	if err := c.Ranker.Validate(); err != nil {
		return fmt.Errorf("ranker: %w", err)
	}
	if err := c.Snapshot.Validate(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := c.Fallback.Validate(); err != nil {
		return fmt.Errorf("fallback: %w", err)
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

// UpstreamConfig describes the content delivery API.
type UpstreamConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Space        string        `yaml:"space"`
	Environment  string        `yaml:"environment"`
	AccessToken  string        `yaml:"access_token"`
	Timeout      time.Duration `yaml:"timeout"`
	IncludeDepth int           `yaml:"include_depth"`
	PageSize     int           `yaml:"page_size"`
	MaxPages     int           `yaml:"max_pages"`
	// RateLimit is requests per second; 0 disables client-side throttling.
	RateLimit float64 `yaml:"rate_limit"`
	// Burst is how many requests may go out at once before RateLimit applies.
	Burst int `yaml:"burst"`
	// Concurrency caps parallel page requests within one list fetch.
	Concurrency int `yaml:"concurrency"`
}

// Validate validates the upstream configuration.
func (c *UpstreamConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Space, validation.Required),
		validation.Field(&c.Environment, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.IncludeDepth, validation.Min(0), validation.Max(10)),
		validation.Field(&c.PageSize, validation.Min(1), validation.Max(1000)),
		validation.Field(&c.MaxPages, validation.Min(1)),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
		validation.Field(&c.Concurrency, validation.Min(0), validation.Max(32)),
	)
}

// CacheConfig holds cache freshness settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
	// FetchTimeout bounds each upstream load or refresh.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.FetchTimeout, validation.Required, validation.Min(100*time.Millisecond)),
	)
}

// ResolverConfig holds link resolution settings.
type ResolverConfig struct {
	MaxDepth int `yaml:"max_depth"`
}

// Validate validates the resolver configuration.
func (c *ResolverConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxDepth, validation.Required, validation.Min(1)),
	)
}

// RankerConfig holds related-content ranking settings.
type RankerConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	// Fallback is the order of unmatched candidates: "original" or "shuffle".
	Fallback string `yaml:"fallback"`
	TagField string `yaml:"tag_field"`
}

// Validate validates the ranker configuration.
func (c *RankerConfig) Validate() error {
	if c.Fallback == "" {
		c.Fallback = string(ranker.FallbackOriginal)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.Fallback, validation.In(string(ranker.FallbackOriginal), string(ranker.FallbackShuffle))),
		validation.Field(&c.TagField, validation.Required),
	)
}

// SnapshotConfig holds the warm-start SQLite store settings.
type SnapshotConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the snapshot configuration.
func (c *SnapshotConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// FallbackConfig holds the static fallback document directory.
type FallbackConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// Validate validates the fallback configuration.
func (c *FallbackConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
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
		Upstream: UpstreamConfig{
			BaseURL:      "https://cdn.contentful.com",
			Environment:  "master",
			Timeout:      10 * time.Second,
			IncludeDepth: 2,
			PageSize:     100,
			MaxPages:     10,
			RateLimit:    50,
			Burst:        10,
			Concurrency:  fetcher.DefaultConcurrency,
		},
		Cache: CacheConfig{
			TTL:          5 * time.Minute,
			FetchTimeout: 8 * time.Second,
		},
		Resolver: ResolverConfig{
			MaxDepth: 2,
		},
		Ranker: RankerConfig{
			DefaultLimit: ranker.DefaultLimit,
			Fallback:     string(ranker.FallbackOriginal),
			TagField:     ranker.DefaultTagField,
		},
		Snapshot: SnapshotConfig{
			Enabled: true,
			Path:    "./contentgraph.db",
		},
		Fallback: FallbackConfig{
			Dir:   "./fallback",
			Watch: true,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
