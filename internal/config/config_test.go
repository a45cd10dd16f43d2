package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Clearenv()
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_ENV", "test")
	t.Setenv("REDIS_ENABLED", "true")

	withWorkdir(t, t.TempDir(), func() {
		cfg, err := LoadConfig()
		assert.NoError(t, err)

		assert.Equal(t, "9090", cfg.Server.Port)
		assert.Equal(t, "test", cfg.Server.Env)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, 60, cfg.Router.WindowSeconds)
		assert.Equal(t, 0.2, cfg.Router.HighPriorityReserveFraction)
		assert.NotNil(t, cfg.Router.RoutingWeights)
	})
}

func TestLoadConfig_APIKeyResolutionAndInterpolation(t *testing.T) {
	os.Clearenv()
	t.Setenv("TEST_API_KEY", "sk-test-12345")
	t.Setenv("TEST_BASE_URL", "https://example.test/v1")

	dir := t.TempDir()
	configContent := `
providers:
  - name: "test-provider"
    type: "openai"
    model: "gpt-4o-mini"
    base_url: "${TEST_BASE_URL}"
    api_key: "ENV:TEST_API_KEY"
    rpm_limit: 60
    tpm_limit: 60000
    enabled: true
`
	err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configContent), 0o644)
	assert.NoError(t, err)

	withWorkdir(t, dir, func() {
		cfg, err := LoadConfig()
		assert.NoError(t, err)
		assert.Len(t, cfg.Router.Providers, 1)
		assert.Equal(t, "sk-test-12345", cfg.Router.Providers[0].APIKey)
		assert.Equal(t, "https://example.test/v1", cfg.Router.Providers[0].BaseURL)
	})
}

func TestLoadFromEnv(t *testing.T) {
	os.Clearenv()
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg := LoadFromEnv(DefaultKnownProviders())
	assert.Len(t, cfg.Providers, 1)
	assert.Equal(t, "openai", cfg.Providers[0].Name)
	assert.Equal(t, "sk-openai", cfg.Providers[0].APIKey)
}

// withWorkdir runs fn with the process cwd set to dir, restoring it
// afterward. LoadConfig resolves its search paths relative to cwd.
func withWorkdir(t *testing.T, dir string, fn func()) {
	t.Helper()
	prev, err := os.Getwd()
	assert.NoError(t, err)
	assert.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(prev) }()
	fn()
}
