/*
Package sqlite persists the development backend's data.

PURPOSE:
  The CLI talks to two REST bases (goal and KPI). cmd/server answers both
  from one SQLite file so the dashboard can be exercised end to end without
  the production services.

KEY TABLES:
  goal_settings:       single row, the evaluation rule
  goal_targets:        period targets, company (advisor 0) and personal
  goal_daily_targets:  per-advisor per-date targets
  ms_targets:          MS totals and cumulative overrides
  important_metrics:   highlighted metric per department and user
  ms_period_settings:  explicit metric windows per month
  kpi_targets:         page-rate targets per month
  members:             the member directory

JSON COLUMNS:
  Target maps are stored as JSON text. The backend never queries inside them.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Multi-row saves run in one
  transaction so a failed row leaves the previous state intact.

WAL MODE:
  Opened with WAL so the CLI can read while the server writes.

USAGE:
  store, err := sqlite.New("./pacing.db")
  if err != nil {
      return err
  }
  defer store.Close()

SEE ALSO:
  - api/handlers.go: the only caller
  - goals/msdata.go: MsPeriodSetting and ImportantMetric
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
)

// Store implements the backend persistence on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps ":memory:" a single database
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS goal_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		rule_type TEXT NOT NULL,
		options_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goal_targets (
		scope TEXT NOT NULL,
		period_id TEXT NOT NULL,
		advisor_user_id INTEGER NOT NULL DEFAULT 0,
		targets_json TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (scope, period_id, advisor_user_id)
	);

	CREATE TABLE IF NOT EXISTS goal_daily_targets (
		advisor_user_id INTEGER NOT NULL,
		period_id TEXT NOT NULL,
		target_date TEXT NOT NULL,
		targets_json TEXT NOT NULL,
		PRIMARY KEY (advisor_user_id, period_id, target_date)
	);

	CREATE TABLE IF NOT EXISTS ms_targets (
		scope TEXT NOT NULL,
		department_key TEXT NOT NULL,
		metric_key TEXT NOT NULL,
		period_id TEXT NOT NULL,
		advisor_user_id INTEGER NOT NULL DEFAULT 0,
		target_total REAL NOT NULL,
		daily_json TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (scope, department_key, metric_key, period_id, advisor_user_id)
	);

	CREATE TABLE IF NOT EXISTS important_metrics (
		department_key TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		metric_key TEXT NOT NULL,
		PRIMARY KEY (department_key, user_id)
	);

	CREATE TABLE IF NOT EXISTS ms_period_settings (
		target_month TEXT NOT NULL,
		metric_key TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (target_month, metric_key)
	);

	CREATE TABLE IF NOT EXISTS kpi_targets (
		period TEXT PRIMARY KEY,
		targets_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS members (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		role TEXT NOT NULL,
		is_admin INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// =============================================================================
// GOAL SETTINGS
// =============================================================================

// GoalSettings is the stored evaluation rule.
type GoalSettings struct {
	RuleType  string
	Options   map[string]any
	UpdatedAt time.Time
}

// GetGoalSettings returns nil when nothing was saved yet.
func (s *Store) GetGoalSettings(ctx context.Context) (*GoalSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var gs GoalSettings
	var optionsJSON, updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT rule_type, options_json, updated_at FROM goal_settings WHERE id = 1",
	).Scan(&gs.RuleType, &optionsJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(optionsJSON), &gs.Options); err != nil {
		return nil, fmt.Errorf("decode goal settings options: %w", err)
	}
	gs.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &gs, nil
}

func (s *Store) SaveGoalSettings(ctx context.Context, ruleType string, options map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if options == nil {
		options = map[string]any{}
	}
	optionsJSON, err := encode(options)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO goal_settings (id, rule_type, options_json, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rule_type = excluded.rule_type,
			options_json = excluded.options_json,
			updated_at = excluded.updated_at
	`, ruleType, optionsJSON, now())
	return err
}

// =============================================================================
// PERIOD TARGETS
// =============================================================================

// GetTargets returns nil when no row exists. Company rows use advisor 0.
func (s *Store) GetTargets(ctx context.Context, scope generic.Scope, periodID generic.PeriodID, advisor generic.AdvisorID) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var targetsJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT targets_json FROM goal_targets WHERE scope = ? AND period_id = ? AND advisor_user_id = ?",
		scope, periodID, advisor,
	).Scan(&targetsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var targets map[string]any
	if err := json.Unmarshal([]byte(targetsJSON), &targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	return targets, nil
}

func (s *Store) SaveTargets(ctx context.Context, scope generic.Scope, periodID generic.PeriodID, advisor generic.AdvisorID, targets map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if targets == nil {
		targets = map[string]any{}
	}
	targetsJSON, err := encode(targets)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO goal_targets (scope, period_id, advisor_user_id, targets_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scope, period_id, advisor_user_id) DO UPDATE SET
			targets_json = excluded.targets_json,
			updated_at = excluded.updated_at
	`, scope, periodID, advisor, targetsJSON, now())
	return err
}

// =============================================================================
// DAILY TARGETS
// =============================================================================

// GetDailyTargets returns date -> targets; an empty map when nothing is stored.
func (s *Store) GetDailyTargets(ctx context.Context, advisor generic.AdvisorID, periodID generic.PeriodID) (map[string]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT target_date, targets_json FROM goal_daily_targets WHERE advisor_user_id = ? AND period_id = ? ORDER BY target_date",
		advisor, periodID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]map[string]any{}
	for rows.Next() {
		var date, targetsJSON string
		if err := rows.Scan(&date, &targetsJSON); err != nil {
			return nil, err
		}
		var targets map[string]any
		if err := json.Unmarshal([]byte(targetsJSON), &targets); err != nil {
			return nil, fmt.Errorf("decode daily targets %s: %w", date, err)
		}
		out[date] = targets
	}
	return out, rows.Err()
}

// MergeDailyTargets upserts the given dates and keeps the others.
func (s *Store) MergeDailyTargets(ctx context.Context, advisor generic.AdvisorID, periodID generic.PeriodID, daily map[string]map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for date, targets := range daily {
		if targets == nil {
			targets = map[string]any{}
		}
		targetsJSON, err := encode(targets)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO goal_daily_targets (advisor_user_id, period_id, target_date, targets_json)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(advisor_user_id, period_id, target_date) DO UPDATE SET
				targets_json = excluded.targets_json
		`, advisor, periodID, date, targetsJSON); err != nil {
			return fmt.Errorf("save daily targets %s: %w", date, err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// MS TARGETS
// =============================================================================

type MsTargetRecord struct {
	TargetTotal  float64            `json:"targetTotal"`
	DailyTargets map[string]float64 `json:"dailyTargets"`
}

// GetMsTargets returns nil when the key has no row.
func (s *Store) GetMsTargets(ctx context.Context, key generic.MsTargetKey) (*MsTargetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec MsTargetRecord
	var dailyJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT target_total, daily_json FROM ms_targets
		WHERE scope = ? AND department_key = ? AND metric_key = ? AND period_id = ? AND advisor_user_id = ?
	`, key.Scope, key.Department, key.Metric, key.PeriodID, key.AdvisorID).Scan(&rec.TargetTotal, &dailyJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dailyJSON), &rec.DailyTargets); err != nil {
		return nil, fmt.Errorf("decode ms daily targets: %w", err)
	}
	return &rec, nil
}

func (s *Store) SaveMsTargets(ctx context.Context, key generic.MsTargetKey, rec MsTargetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.DailyTargets == nil {
		rec.DailyTargets = map[string]float64{}
	}
	dailyJSON, err := encode(rec.DailyTargets)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ms_targets (scope, department_key, metric_key, period_id, advisor_user_id, target_total, daily_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, department_key, metric_key, period_id, advisor_user_id) DO UPDATE SET
			target_total = excluded.target_total,
			daily_json = excluded.daily_json,
			updated_at = excluded.updated_at
	`, key.Scope, key.Department, key.Metric, key.PeriodID, key.AdvisorID, rec.TargetTotal, dailyJSON, now())
	return err
}

// =============================================================================
// IMPORTANT METRICS
// =============================================================================

// ListImportantMetrics filters by department unless it is "all", and by
// user when user is set. User 0 lists every user of the department.
func (s *Store) ListImportantMetrics(ctx context.Context, key generic.ImportantMetricKey) ([]goals.ImportantMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT department_key, user_id, metric_key FROM important_metrics WHERE 1 = 1"
	var args []any
	if key.Department != "" && key.Department != generic.AllDepartments {
		query += " AND department_key = ?"
		args = append(args, key.Department)
	}
	if key.UserID.Valid() {
		query += " AND user_id = ?"
		args = append(args, key.UserID)
	}
	query += " ORDER BY department_key, user_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []goals.ImportantMetric{}
	for rows.Next() {
		var m goals.ImportantMetric
		if err := rows.Scan(&m.DepartmentKey, &m.UserID, &m.MetricKey); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveImportantMetric replaces the user's choice within the department.
func (s *Store) SaveImportantMetric(ctx context.Context, m goals.ImportantMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO important_metrics (department_key, user_id, metric_key)
		VALUES (?, ?, ?)
		ON CONFLICT(department_key, user_id) DO UPDATE SET
			metric_key = excluded.metric_key
	`, m.DepartmentKey, m.UserID, m.MetricKey)
	return err
}

// =============================================================================
// MS PERIOD SETTINGS
// =============================================================================

// GetMsPeriodSettings returns the month's rows ordered by metric key.
func (s *Store) GetMsPeriodSettings(ctx context.Context, month string) ([]goals.MsPeriodSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT metric_key, start_date, end_date FROM ms_period_settings WHERE target_month = ? ORDER BY metric_key",
		month,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []goals.MsPeriodSetting{}
	for rows.Next() {
		var row goals.MsPeriodSetting
		if err := rows.Scan(&row.MetricKey, &row.StartDate, &row.EndDate); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SaveMsPeriodSettings applies the rows in one transaction. Unknown metric
// keys are skipped, rows with an empty date delete the stored window.
func (s *Store) SaveMsPeriodSettings(ctx context.Context, month string, settings []goals.MsPeriodSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	for _, row := range settings {
		if !goals.ValidMsMetricKeys[row.MetricKey] {
			continue
		}
		if row.StartDate == "" || row.EndDate == "" {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM ms_period_settings WHERE target_month = ? AND metric_key = ?",
				month, row.MetricKey,
			); err != nil {
				return fmt.Errorf("clear %s: %w", row.MetricKey, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ms_period_settings (target_month, metric_key, start_date, end_date, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(target_month, metric_key) DO UPDATE SET
				start_date = excluded.start_date,
				end_date = excluded.end_date,
				updated_at = excluded.updated_at
		`, month, row.MetricKey, row.StartDate, row.EndDate, ts); err != nil {
			return fmt.Errorf("save %s: %w", row.MetricKey, err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// KPI TARGETS
// =============================================================================

// GetKPITargets returns nil when the month has no row.
func (s *Store) GetKPITargets(ctx context.Context, period string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var targetsJSON string
	err := s.db.QueryRowContext(ctx, "SELECT targets_json FROM kpi_targets WHERE period = ?", period).Scan(&targetsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var targets map[string]any
	if err := json.Unmarshal([]byte(targetsJSON), &targets); err != nil {
		return nil, fmt.Errorf("decode kpi targets: %w", err)
	}
	return targets, nil
}

func (s *Store) SaveKPITargets(ctx context.Context, period string, targets map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if targets == nil {
		targets = map[string]any{}
	}
	targetsJSON, err := encode(targets)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kpi_targets (period, targets_json) VALUES (?, ?)
		ON CONFLICT(period) DO UPDATE SET targets_json = excluded.targets_json
	`, period, targetsJSON)
	return err
}

// =============================================================================
// MEMBERS
// =============================================================================

type MemberRecord struct {
	ID      generic.AdvisorID
	Name    string
	Email   string
	Role    string
	IsAdmin bool
}

func (s *Store) SaveMember(ctx context.Context, m MemberRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, name, email, role, is_admin) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			is_admin = excluded.is_admin
	`, m.ID, m.Name, nullString(m.Email), m.Role, m.IsAdmin)
	return err
}

// ListMembers returns members in id order.
func (s *Store) ListMembers(ctx context.Context) ([]MemberRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, email, role, is_admin FROM members ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemberRecord
	for rows.Next() {
		var m MemberRecord
		var email sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &email, &m.Role, &m.IsAdmin); err != nil {
			return nil, err
		}
		m.Email = email.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"goal_settings", "goal_targets", "goal_daily_targets", "ms_targets",
		"important_metrics", "ms_period_settings", "kpi_targets", "members",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
