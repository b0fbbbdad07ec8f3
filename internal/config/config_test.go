package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/internal/config"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.DriverSQLite, cfg.Source.Driver)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Engine.ProjectTimeout)
	assert.Equal(t, 3, cfg.Notifications.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Notifications.BackoffBase)
	assert.Equal(t, time.Minute, cfg.Notifications.BackoffMax)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Tracing.Enabled)

	def := cfg.DefaultAlertConfiguration()
	assert.Equal(t, model.DefaultConfiguration().Thresholds, def.Thresholds)
	assert.Equal(t, 60, def.CheckFrequencyMinutes)
	assert.True(t, def.Channels.Dashboard.Enabled)
	assert.True(t, def.Channels.Email.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: /tmp/test.db
source:
  driver: postgres
  dsn: postgres://bdg@localhost/obras?sslmode=disable
engine:
  workers: 8
  schedule:
    interval: 15m
    tenants: [t1, t2]
notifications:
  max_attempts: 5
  backoff_base: 2s
  backoff_max: 30s
  rate_per_second: 10
defaults:
  low: 10
  medium: 20
  high: 30
  critical: 50
logging:
  level: debug
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.Storage.Path)
	assert.Equal(t, config.DriverPostgres, cfg.Source.Driver)
	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, 15*time.Minute, cfg.Engine.Schedule.Interval)
	assert.Equal(t, []string{"t1", "t2"}, cfg.Engine.Schedule.Tenants)
	assert.Equal(t, "debug", cfg.Logging.Level)

	d := cfg.DispatcherConfig()
	assert.Equal(t, 5, d.MaxAttempts)
	assert.Equal(t, 2*time.Second, d.BackoffBase)
	assert.Equal(t, 30*time.Second, d.BackoffMax)
	assert.Equal(t, 10.0, d.RatePerSecond)

	assert.Equal(t, model.Thresholds{Low: 10, Medium: 20, High: 30, Critical: 50}, cfg.DefaultAlertConfiguration().Thresholds)
	assert.Equal(t, 8, cfg.TriggerConfig().Workers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BDG_LOGGING_LEVEL", "error")
	t.Setenv("BDG_SERVER_LISTEN", ":7070")
	t.Setenv("BDG_ENGINE_WORKERS", "2")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, ":7070", cfg.Server.Listen)
	assert.Equal(t, 2, cfg.Engine.Workers)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml")

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	path := writeConfig(t, `
source:
  driver: mysql
engine:
  workers: 0
defaults:
  low: 10
  medium: 10
  high: 30
  critical: 50
slack:
  enabled: true
`)

	_, err := config.Load(path)
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 4)
	assert.Contains(t, verr.Problems[0], `unknown source driver "mysql"`)
}

func TestValidate_PostgresNeedsDSN(t *testing.T) {
	t.Setenv("BDG_SOURCE_DRIVER", "postgres")

	_, err := config.Load("")
	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), "source.dsn")
}

func TestValidate_EmailEnabled(t *testing.T) {
	path := writeConfig(t, `
email:
  enabled: true
  port: 587
`)

	_, err := config.Load(path)
	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), "SMTP host is required")
}
