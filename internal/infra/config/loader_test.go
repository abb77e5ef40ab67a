package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraconfig "github.com/jonesrussell/north-cloud/research/internal/infra/config"
)

type sample struct {
	Name    string        `env:"SAMPLE_NAME"    yaml:"name"`
	Port    int           `env:"SAMPLE_PORT"    yaml:"port"`
	Ratio   float64       `env:"SAMPLE_RATIO"   yaml:"ratio"`
	Enabled bool          `env:"SAMPLE_ENABLED" yaml:"enabled"`
	Timeout time.Duration `env:"SAMPLE_TIMEOUT" yaml:"timeout"`
	Nested  struct {
		Tags []string `env:"SAMPLE_TAGS" yaml:"tags"`
	} `yaml:"nested"`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithDefaults_YAMLThenDefaultsThenEnv(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("SAMPLE_PORT", "9100")
	t.Setenv("SAMPLE_ENABLED", "yes")
	t.Setenv("SAMPLE_TIMEOUT", "3s")
	t.Setenv("SAMPLE_TAGS", "a, b ,c")

	path := writeConfig(t, "name: from-yaml\nport: 8000\n")

	cfg, err := infraconfig.LoadWithDefaults(path, func(s *sample) {
		if s.Ratio == 0 {
			s.Ratio = 0.5
		}
	})
	require.NoError(t, err)

	assert.Equal(t, "from-yaml", cfg.Name)
	assert.Equal(t, 9100, cfg.Port)
	assert.InDelta(t, 0.5, cfg.Ratio, 0.0001)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Nested.Tags)
}

func TestLoadWithDefaults_MissingFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	_, err := infraconfig.LoadWithDefaults[sample](filepath.Join(t.TempDir(), "nope.yml"), nil)
	require.Error(t, err)

	t.Setenv("CONFIG_OPTIONAL", "1")
	t.Setenv("SAMPLE_NAME", "env-only")
	cfg, err := infraconfig.LoadWithDefaults[sample](filepath.Join(t.TempDir(), "nope.yml"), nil)
	require.NoError(t, err)
	assert.Equal(t, "env-only", cfg.Name)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "config.yml", infraconfig.GetConfigPath("config.yml"))

	t.Setenv("CONFIG_PATH", "/etc/research.yml")
	assert.Equal(t, "/etc/research.yml", infraconfig.GetConfigPath("config.yml"))
}
