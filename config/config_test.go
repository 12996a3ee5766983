package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/yield-pacing/client"
	"github.com/warp/yield-pacing/dashboard"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, client.DefaultGoalBaseURL, cfg.API.GoalBaseURL)
	assert.Equal(t, client.DefaultKPIBaseURL, cfg.API.KPIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.TimeoutDuration())
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, dashboard.DefaultRefreshSpec, cfg.Dashboard.RefreshCron)
}

func TestLoad_FileThenEnv(t *testing.T) {
	// GIVEN: a yaml file overriding the KPI base and port
	// WHEN: an env var overrides the port again
	// THEN: the env var wins and the file value stays for the rest

	dir := t.TempDir()
	path := filepath.Join(dir, "pacing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  kpiBaseURL: https://kpi.example.test/
  timeout: 3
server:
  port: 9000
`), 0o600))
	t.Setenv("PACING_SERVER_PORT", "9100")
	t.Setenv("PACING_SERVER_ALLOWEDORIGINS", "https://a.test, https://b.test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "https://kpi.example.test/", cfg.API.KPIBaseURL)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.AllowedOrigins)

	cc := cfg.API.ClientConfig()
	assert.Equal(t, 3*time.Second, cc.Timeout)
	assert.Equal(t, client.DefaultGoalBaseURL, cc.GoalBaseURL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
