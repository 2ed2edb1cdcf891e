package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BACKOFFICE_DATABASE_DSN", "postgres://localhost/backoffice")
	t.Setenv("BACKOFFICE_LABELS_STRATEGY", "scan")
	t.Setenv("BACKOFFICE_LABELS_RENDER_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/backoffice", cfg.Database.DSN)
	assert.Equal(t, StrategyScan, cfg.Labels.Strategy)
	assert.Equal(t, 5*time.Second, cfg.Labels.RenderTimeout)
	assert.Equal(t, 500, cfg.Labels.ScanWindow)
	assert.Equal(t, "local", cfg.Storage.Driver)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{DSN: "postgres://x"},
			Labels:   LabelsConfig{Strategy: StrategyCounter, Columns: 3},
			Storage:  StorageConfig{Driver: "local", Dir: "/tmp"},
		}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.Database.DSN = ""
	assert.Error(t, c.Validate())

	c = base()
	c.Labels.Strategy = "memory"
	assert.Error(t, c.Validate())

	c = base()
	c.Storage = StorageConfig{Driver: "s3"}
	assert.Error(t, c.Validate())
}
