package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/yield-pacing/api"
	"github.com/warp/yield-pacing/config"
	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
	"github.com/warp/yield-pacing/store/sqlite"
)

// isolate points every file the CLI writes into a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PACING_SESSION_PATH", filepath.Join(dir, "session.json"))
	t.Setenv("PACING_DASHBOARD_PREFERENCESPATH", filepath.Join(dir, "preferences.json"))
	t.Setenv("PACING_LOGGING_LEVEL", "error")
	return dir
}

// startBackend serves the development API over an in-memory store.
func startBackend(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(store, nil), &config.ServerConfig{AllowedOrigins: []string{"*"}}, nil))
	t.Cleanup(srv.Close)
	t.Setenv("PACING_API_GOALBASEURL", srv.URL+"/goal")
	t.Setenv("PACING_API_KPIBASEURL", srv.URL)
	return store
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPeriods(t *testing.T) {
	dir := isolate(t)

	t.Run("bare type", func(t *testing.T) {
		out, err := execute(t, "periods", "--rule", "weekly", "--date", "2025-06-19")
		require.NoError(t, err)
		assert.Contains(t, out, "rule: weekly")
		assert.Contains(t, out, "* 2025-06-16")
	})

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(dir, "rule.yaml")
		require.NoError(t, os.WriteFile(path, []byte("type: weekly\noptions:\n  startWeekday: sunday\n"), 0o600))

		out, err := execute(t, "periods", "--rule", path, "--date", "2025-06-19")
		require.NoError(t, err)
		assert.Contains(t, out, "* 2025-06-15")
	})

	t.Run("monthly", func(t *testing.T) {
		out, err := execute(t, "periods", "--rule", "monthly", "--date", "2025-06-19")
		require.NoError(t, err)
		assert.Contains(t, out, "* 2025-06")
		assert.Contains(t, out, "2025-06-01..2025-06-30")
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := execute(t, "periods", "--rule", "monthly", "--date", "June")
		assert.Error(t, err)
	})
}

func TestRates(t *testing.T) {
	isolate(t)

	out, err := execute(t, "rates", "--mode", "step", "--counts", "newInterviews=10, proposals=5,recommendations=4")
	require.NoError(t, err)
	assert.Contains(t, out, "mode: step")
	assert.Regexp(t, `proposalRate\s+50%`, out)
	assert.Regexp(t, `recommendationRate\s+80%`, out)

	out, err = execute(t, "rates", "--counts", "newInterviews=10,proposals=5,recommendations=4")
	require.NoError(t, err)
	assert.Contains(t, out, "mode: base")
	assert.Regexp(t, `recommendationRate\s+40%`, out)

	_, err = execute(t, "rates", "--counts", "proposals")
	assert.Error(t, err)
}

func TestParseWindows(t *testing.T) {
	rows, err := parseWindows([]string{"proposals=2025-06-05:2025-06-30"}, []string{"offers"})
	require.NoError(t, err)
	assert.Equal(t, []goals.MsPeriodSetting{
		{MetricKey: "proposals", StartDate: "2025-06-05", EndDate: "2025-06-30"},
		{MetricKey: "offers"},
	}, rows)

	for _, bad := range []string{
		"proposals",
		"proposals=2025-06-05",
		"revenue=2025-06-01:2025-06-30",
		"proposals=2025-06-30:2025-06-05",
		"proposals=June:2025-06-30",
	} {
		_, err := parseWindows([]string{bad}, nil)
		assert.Error(t, err, bad)
	}
}

func TestModeSetAndShow(t *testing.T) {
	dir := isolate(t)

	out, err := execute(t, "mode", "set", "--scope", "personalPeriod", "--rate", "step")
	require.NoError(t, err)
	assert.Contains(t, out, "personalPeriod rate=step")
	assert.FileExists(t, filepath.Join(dir, "preferences.json"))

	out, err = execute(t, "mode", "set", "--calc", "period")
	require.NoError(t, err)
	assert.Contains(t, out, "default calc=period")

	out, err = execute(t, "mode", "show")
	require.NoError(t, err)
	assert.Regexp(t, `personalPeriod\s+rate=step calc=period`, out)
	assert.Regexp(t, `companyTerm\s+rate=base calc=period`, out)

	_, err = execute(t, "mode", "set", "--scope", "employee")
	assert.ErrorIs(t, err, generic.ErrMissingField)
}

func TestBackendCommands(t *testing.T) {
	// GIVEN: a development backend with the default monthly rule
	// WHEN: a window is configured for proposals this month
	// THEN: window, distribute and ms-settings all see it

	isolate(t)
	store := startBackend(t)
	month := time.Now().Format("2006-01")
	first, tenth := month+"-01", month+"-10"

	out, err := execute(t, "ms-settings", "set", "--month", month, "--window", "proposals="+first+":"+tenth)
	require.NoError(t, err)
	assert.Contains(t, out, first+".."+tenth)

	out, err = execute(t, "ms-settings", "get", "--month", month)
	require.NoError(t, err)
	assert.Regexp(t, `proposals\s+`+first+`\.\.`+tenth, out)

	out, err = execute(t, "ms-settings", "set", "--month", month, "--window", "offers="+first+":"+tenth)
	require.NoError(t, err)
	assert.Regexp(t, `offers\s+`+first, out)
	assert.Regexp(t, `proposals\s+`+first, out, "a save naming offers keeps proposals")

	out, err = execute(t, "ms-settings", "set", "--month", month, "--clear", "offers")
	require.NoError(t, err)
	assert.NotContains(t, out, "offers")
	assert.Contains(t, out, "proposals")

	out, err = execute(t, "window", "--period", month, "--metric", "proposals")
	require.NoError(t, err)
	assert.Contains(t, out, "(10 days, configured)")

	out, err = execute(t, "window", "--period", month, "--metric", "offers")
	require.NoError(t, err)
	assert.Contains(t, out, "department default")

	out, err = execute(t, "distribute", "--period", month, "--metric", "proposals", "--total", "10")
	require.NoError(t, err)
	assert.Contains(t, out, tenth+" 10.00")
	assert.Contains(t, out, "days: 10")

	_, err = execute(t, "distribute", "--period", month, "--metric", "offers", "--total", "10")
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)

	_, err = execute(t, "distribute", "--period", month, "--metric", "proposals", "--total", "20", "--scope", "company", "--save")
	require.NoError(t, err)
	_, dept, ok := goals.LookupMetric("proposals")
	require.True(t, ok)
	rec, err := store.GetMsTargets(context.Background(), generic.MsTargetKey{
		Scope: generic.ScopeCompany, Department: dept, Metric: "proposals", PeriodID: generic.PeriodID(month),
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 20.0, rec.TargetTotal)
	assert.Len(t, rec.DailyTargets, 10)

	out, err = execute(t, "prefetch")
	require.NoError(t, err)
	assert.Contains(t, out, "periods: ")

	out, err = execute(t, "load", "--scope", "company")
	require.NoError(t, err)
	assert.Contains(t, out, "yield dashboard")
}
