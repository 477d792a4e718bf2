package config

import (
	"testing"
	"time"

	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() AppConfig {
	var cfg AppConfig
	cfg.LogFormat = "human"
	cfg.Build.Parallelism = 4
	cfg.Receipt.Format = "json"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{"valid", func(*AppConfig) {}, ""},
		{"zero parallelism", func(c *AppConfig) { c.Build.Parallelism = 0 }, "build.parallelism"},
		{"negative timeout", func(c *AppConfig) { c.Build.Timeout = -time.Second }, "build.timeout"},
		{"log format", func(c *AppConfig) { c.LogFormat = "xml" }, "log_format"},
		{"receipt format", func(c *AppConfig) { c.Receipt.Format = "toml" }, "receipt.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := Validate(cfg)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, commonerrors.ErrConfigInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Build.Parallelism = 0
	cfg.LogFormat = ""

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build.parallelism")
	assert.Contains(t, err.Error(), "log_format")
}

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	var cfg AppConfig
	require.NoError(t, v.Unmarshal(&cfg))
	assert.NoError(t, Validate(cfg))
	assert.Equal(t, "/usr/local", cfg.Build.InstallPrefix)
	assert.True(t, cfg.Source.Fetch)
	assert.Equal(t, 5*time.Minute, cfg.Source.Timeout)
	assert.Equal(t, "json", cfg.Receipt.Format)
	assert.GreaterOrEqual(t, cfg.Build.Parallelism, 1)
}

func TestInitializeAndReload(t *testing.T) {
	t.Setenv("RECIPE_RUNNER_ENV", "development")
	t.Setenv("RECIPE_RUNNER_BUILD_PARALLELISM", "3")
	t.Setenv("RECIPE_RUNNER_BUILD_INSTALL_PREFIX", "/opt/test")

	require.NoError(t, Initialize(""))
	require.NotNil(t, Viper())
	assert.Equal(t, 3, Instance.Build.Parallelism)
	assert.Equal(t, "/opt/test", Instance.Build.InstallPrefix)

	Viper().Set("build.parallelism", 7)
	require.NoError(t, Reload())
	assert.Equal(t, 7, Instance.Build.Parallelism)

	Viper().Set("build.parallelism", 0)
	assert.ErrorIs(t, Reload(), commonerrors.ErrConfigInvalid)
	Viper().Set("build.parallelism", 3)
	require.NoError(t, Reload())
}
