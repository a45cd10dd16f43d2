package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/llmrouter/router/internal/core/domain"
)

// Config is the fully-resolved configuration for the router process:
// the domain-level RouterConfig plus the ambient server/transport concerns
// that don't belong in the core.
type Config struct {
	Server    ServerConfig        `mapstructure:"server"`
	Redis     RedisConfig         `mapstructure:"redis"`
	RateLimit RateLimitConfig     `mapstructure:"rate_limit"`
	Auth      AuthConfig          `mapstructure:"auth"`
	Audit     AuditConfig         `mapstructure:"audit"`
	Router    domain.RouterConfig `mapstructure:",squash"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// AuthConfig holds the static Bearer keys accepted at the HTTP edge. There
// is no user/org database in this system, unlike the teacher's.
type AuthConfig struct {
	Keys []string `mapstructure:"keys"`
}

// AuditConfig points at the optional SQLite RouteEvent sink. It is
// deliberately distinct from Router.SharedStoreURL: the latter selects
// the shared state/circuit-breaker backend per spec.md §6, while this
// is a disabled-by-default observability collector the core never
// knows about.
type AuditConfig struct {
	DSN string `mapstructure:"dsn"`
}

var envInterpolation = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateEnv expands ${VAR} references in raw YAML bytes against the
// process environment before handing them to viper, mirroring
// original_source's RouterConfig.from_yaml behavior.
func interpolateEnv(raw []byte) []byte {
	return envInterpolation.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envInterpolation.FindSubmatch(match)[1]
		if v, ok := os.LookupEnv(string(name)); ok {
			return []byte(v)
		}
		return match
	})
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)

	d := domain.DefaultRouterConfig()
	v.SetDefault("window_seconds", d.WindowSeconds)
	v.SetDefault("high_priority_reserve_fraction", d.HighPriorityReserveFraction)
	v.SetDefault("session_ttl_seconds", d.SessionTTLSeconds)
	v.SetDefault("ema_alpha", d.EMAAlpha)
	v.SetDefault("initial_latency_ms", d.InitialLatencyMS)
	v.SetDefault("circuit_breaker.failure_threshold", d.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.cooldown_seconds", d.CircuitBreaker.CooldownSeconds)
	v.SetDefault("exhaustion.short_window_seconds", d.Exhaustion.ShortWindowSeconds)
	v.SetDefault("exhaustion.lookahead_seconds", d.Exhaustion.LookaheadSeconds)
	v.SetDefault("exhaustion.multiplier", d.Exhaustion.Multiplier)
}

// LoadConfig reads configuration from config.yaml (if present) and the
// environment, resolving ${VAR} interpolation and the provider APIKey
// "ENV:VAR" convention before returning.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./internal/config")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if f, err := locateConfigFile(); err == nil && f != "" {
		raw, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := v.ReadConfig(strings.NewReader(string(interpolateEnv(raw)))); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	resolveAPIKeys(&cfg, v)

	if cfg.Router.RoutingWeights == nil {
		cfg.Router.RoutingWeights = domain.DefaultRoutingWeights()
	}

	return &cfg, nil
}

// locateConfigFile searches the same paths viper would, since we need the
// raw bytes for ${VAR} interpolation before handing them to viper.
func locateConfigFile() (string, error) {
	for _, dir := range []string{".", "./config", "./internal/config"} {
		for _, ext := range []string{"yaml", "yml"} {
			p := dir + "/config." + ext
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	return "", nil
}

func resolveAPIKeys(cfg *Config, v *viper.Viper) {
	for i, p := range cfg.Router.Providers {
		if strings.HasPrefix(p.APIKey, "ENV:") {
			envVar := strings.TrimPrefix(p.APIKey, "ENV:")
			val := os.Getenv(envVar)
			if val == "" {
				val = v.GetString(envVar)
			}
			cfg.Router.Providers[i].APIKey = val
		}
	}
}

// KnownProvider describes a well-known vendor LoadFromEnv can bootstrap
// without a config file, keyed by the env var carrying its API key.
type KnownProvider struct {
	Name    string
	Type    string
	Model   string
	EnvVar  string
	BaseURL string
}

// DefaultKnownProviders mirrors original_source's RouterConfig.from_env
// vendor list.
func DefaultKnownProviders() []KnownProvider {
	return []KnownProvider{
		{Name: "openai", Type: "openai", Model: "gpt-4o-mini", EnvVar: "OPENAI_API_KEY"},
		{Name: "anthropic", Type: "anthropic", Model: "claude-3-5-sonnet-latest", EnvVar: "ANTHROPIC_API_KEY"},
		{Name: "google", Type: "google", Model: "gemini-1.5-flash", EnvVar: "GOOGLE_API_KEY"},
	}
}

// LoadFromEnv builds a minimal RouterConfig from whichever known provider
// API keys are present in the environment, skipping the rest. Useful for
// quickstart examples and tests that don't want a config.yaml on disk.
func LoadFromEnv(known []KnownProvider) domain.RouterConfig {
	cfg := domain.DefaultRouterConfig()
	for _, kp := range known {
		key := os.Getenv(kp.EnvVar)
		if key == "" {
			continue
		}
		cfg.Providers = append(cfg.Providers, domain.ProviderConfig{
			Name:     kp.Name,
			Type:     kp.Type,
			Model:    kp.Model,
			BaseURL:  kp.BaseURL,
			APIKey:   key,
			RPMLimit: 60,
			TPMLimit: 60000,
			Weight:   1.0,
			Enabled:  true,
		})
	}
	return cfg
}
