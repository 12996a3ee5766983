/*
handlers.go - HTTP handlers of the development backend

PURPOSE:
  Answers every endpoint the client package calls so the CLI and the
  dashboard can run against a local SQLite file.

ENDPOINTS:
  Goal base (mounted under /goal):
    GET|PUT /goal-settings        evaluation rule
    GET|PUT /goal-targets         period targets, company or personal (bulk)
    GET|PUT /goal-daily-targets   per-date targets, single or bulk

  KPI base:
    GET|PUT /ms-targets           MS totals and overrides
    GET|PUT /important-metrics    highlighted metric per department and user
    GET|PUT /ms-period-settings   metric windows for a YYYY-MM month
    GET|PUT /kpi-targets          page-rate targets for a YYYY-MM month
    GET     /members              member directory (bare array)
    GET     /kpi/yield            synthetic funnel counts
    GET     /kpi/yield/trend      fixed two-month rate trend
    GET     /kpi/yield/breakdown  fixed channel breakdown

ERROR HANDLING:
  Errors are returned as {"error": "...", "details": ...}:
  - 400: missing parameters, validation errors
  - 500: store failures
  Missing data is never a 404; empty objects are returned instead.

SEE ALSO:
  - dto.go: Request/response data structures
  - yield.go: Synthetic yield generator
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
	"github.com/warp/yield-pacing/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over store. A nil logger discards.
func NewHandler(store *sqlite.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:    store,
		logger:   logger,
		validate: newValidator(),
		now:      time.Now,
	}
}

// =============================================================================
// GOAL SETTINGS
// =============================================================================

const defaultRuleType = "monthly"

func (h *Handler) GetGoalSettings(w http.ResponseWriter, r *http.Request) {
	gs, err := h.Store.GetGoalSettings(r.Context())
	if err != nil {
		h.internalError(w, r, "Failed to load goal settings", err)
		return
	}
	dto := GoalSettingsDTO{EvaluationRuleType: defaultRuleType, EvaluationRuleOptions: map[string]any{}}
	if gs != nil {
		dto = GoalSettingsDTO{EvaluationRuleType: gs.RuleType, EvaluationRuleOptions: gs.Options}
	}
	writeJSON(w, http.StatusOK, dto)
}

// PutGoalSettings stores the rule as sent; an empty type means monthly.
func (h *Handler) PutGoalSettings(w http.ResponseWriter, r *http.Request) {
	var req GoalSettingsDTO
	if !h.decodeRequest(w, r, &req) {
		return
	}
	req.EvaluationRuleType = strings.TrimSpace(req.EvaluationRuleType)
	if req.EvaluationRuleType == "" {
		req.EvaluationRuleType = defaultRuleType
	}
	if req.EvaluationRuleOptions == nil {
		req.EvaluationRuleOptions = map[string]any{}
	}

	if err := h.Store.SaveGoalSettings(r.Context(), req.EvaluationRuleType, req.EvaluationRuleOptions); err != nil {
		h.internalError(w, r, "Failed to save goal settings", err)
		return
	}
	h.logger.Info("goal settings saved", zap.String("rule_type", req.EvaluationRuleType))
	writeJSON(w, http.StatusOK, GoalSettingsSavedResponse{Success: true, GoalSettingsDTO: req})
}

// =============================================================================
// PERIOD TARGETS
// =============================================================================

func (h *Handler) GetGoalTargets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope := generic.Scope(strings.TrimSpace(q.Get("scope")))
	periodID := generic.PeriodID(strings.TrimSpace(q.Get("periodId")))
	if scope == "" || periodID == "" {
		writeError(w, http.StatusBadRequest, "scope, periodId are required", nil)
		return
	}
	ctx := r.Context()

	switch scope {
	case generic.ScopeCompany:
		targets, err := h.Store.GetTargets(ctx, scope, periodID, 0)
		if err != nil {
			h.internalError(w, r, "Failed to load targets", err)
			return
		}
		writeJSON(w, http.StatusOK, TargetsResponse{Targets: orEmpty(targets)})

	case generic.ScopePersonal:
		if ids := parseAdvisorIDs(q.Get("advisorUserIds")); ids != nil {
			items := make([]AdvisorTargetsDTO, 0, len(ids))
			for _, id := range ids {
				targets, err := h.Store.GetTargets(ctx, scope, periodID, id)
				if err != nil {
					h.internalError(w, r, "Failed to load targets", err)
					return
				}
				items = append(items, AdvisorTargetsDTO{AdvisorUserID: id, Targets: orEmpty(targets)})
			}
			writeJSON(w, http.StatusOK, ItemsResponse[AdvisorTargetsDTO]{Items: items})
			return
		}
		advisor := generic.ParseAdvisorID(q.Get("advisorUserId"))
		if !advisor.Valid() {
			writeError(w, http.StatusBadRequest, "advisorUserId is required", nil)
			return
		}
		targets, err := h.Store.GetTargets(ctx, scope, periodID, advisor)
		if err != nil {
			h.internalError(w, r, "Failed to load targets", err)
			return
		}
		writeJSON(w, http.StatusOK, TargetsResponse{Targets: orEmpty(targets)})

	default:
		writeError(w, http.StatusBadRequest, "unknown scope", nil)
	}
}

func (h *Handler) PutGoalTargets(w http.ResponseWriter, r *http.Request) {
	var req TargetsRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	advisor := req.AdvisorUserID
	if req.Scope == generic.ScopeCompany {
		advisor = 0
	}
	if err := h.Store.SaveTargets(r.Context(), req.Scope, req.PeriodID, advisor, req.Targets); err != nil {
		h.internalError(w, r, "Failed to save targets", err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// =============================================================================
// DAILY TARGETS
// =============================================================================

// GetGoalDailyTargets narrows each advisor's dates to ?date when given.
func (h *Handler) GetGoalDailyTargets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	periodID := generic.PeriodID(strings.TrimSpace(q.Get("periodId")))
	if periodID == "" {
		writeError(w, http.StatusBadRequest, "periodId is required", nil)
		return
	}
	date := strings.TrimSpace(q.Get("date"))
	ctx := r.Context()

	if ids := parseAdvisorIDs(q.Get("advisorUserIds")); ids != nil {
		items := make([]AdvisorDailyTargetsDTO, 0, len(ids))
		for _, id := range ids {
			daily, err := h.Store.GetDailyTargets(ctx, id, periodID)
			if err != nil {
				h.internalError(w, r, "Failed to load daily targets", err)
				return
			}
			items = append(items, AdvisorDailyTargetsDTO{AdvisorUserID: id, DailyTargets: onlyDate(daily, date)})
		}
		writeJSON(w, http.StatusOK, ItemsResponse[AdvisorDailyTargetsDTO]{Items: items})
		return
	}

	advisor := generic.ParseAdvisorID(q.Get("advisorUserId"))
	if !advisor.Valid() {
		writeError(w, http.StatusBadRequest, "advisorUserId is required", nil)
		return
	}
	daily, err := h.Store.GetDailyTargets(ctx, advisor, periodID)
	if err != nil {
		h.internalError(w, r, "Failed to load daily targets", err)
		return
	}
	writeJSON(w, http.StatusOK, DailyTargetsResponse{DailyTargets: onlyDate(daily, date)})
}

// PutGoalDailyTargets merges by date. Items without a date are skipped.
func (h *Handler) PutGoalDailyTargets(w http.ResponseWriter, r *http.Request) {
	var req DailyTargetsRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	daily := make(map[string]map[string]any, len(req.Items))
	for _, item := range req.Items {
		date := strings.TrimSpace(item.TargetDate)
		if date == "" {
			continue
		}
		daily[date] = orEmpty(item.Targets)
	}
	if err := h.Store.MergeDailyTargets(r.Context(), req.AdvisorUserID, req.PeriodID, daily); err != nil {
		h.internalError(w, r, "Failed to save daily targets", err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// =============================================================================
// MS TARGETS
// =============================================================================

func (h *Handler) GetMsTargets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := generic.MsTargetKey{
		Scope:      generic.Scope(strings.TrimSpace(q.Get("scope"))),
		Department: generic.DepartmentKey(strings.TrimSpace(q.Get("departmentKey"))),
		Metric:     generic.MetricKey(strings.TrimSpace(q.Get("metricKey"))),
		PeriodID:   generic.PeriodID(strings.TrimSpace(q.Get("periodId"))),
		AdvisorID:  generic.ParseAdvisorID(q.Get("advisorUserId")),
	}
	if !key.Complete() {
		writeError(w, http.StatusBadRequest, "scope, departmentKey, metricKey, periodId are required", nil)
		return
	}

	rec, err := h.Store.GetMsTargets(r.Context(), key)
	if err != nil {
		h.internalError(w, r, "Failed to load ms targets", err)
		return
	}
	dto := MsTargetsDTO{DailyTargets: map[string]float64{}}
	if rec != nil {
		dto = MsTargetsDTO{TargetTotal: rec.TargetTotal, DailyTargets: rec.DailyTargets}
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) PutMsTargets(w http.ResponseWriter, r *http.Request) {
	var req MsTargetsRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	key := req.Key()
	rec := sqlite.MsTargetRecord{TargetTotal: req.TargetTotal, DailyTargets: req.DailyTargets}
	if err := h.Store.SaveMsTargets(r.Context(), key, rec); err != nil {
		h.internalError(w, r, "Failed to save ms targets", err)
		return
	}
	h.logger.Debug("ms targets saved", zap.String("key", key.String()), zap.Int("overrides", len(req.DailyTargets)))
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// =============================================================================
// IMPORTANT METRICS
// =============================================================================

func (h *Handler) GetImportantMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := generic.NewImportantMetricKey(
		generic.DepartmentKey(strings.TrimSpace(q.Get("departmentKey"))),
		generic.ParseAdvisorID(q.Get("userId")),
	)
	items, err := h.Store.ListImportantMetrics(r.Context(), key)
	if err != nil {
		h.internalError(w, r, "Failed to load important metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, ItemsResponse[goals.ImportantMetric]{Items: items})
}

func (h *Handler) PutImportantMetric(w http.ResponseWriter, r *http.Request) {
	var req ImportantMetricRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if err := h.Store.SaveImportantMetric(r.Context(), req.Metric()); err != nil {
		h.internalError(w, r, "Failed to save important metric", err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// =============================================================================
// MS PERIOD SETTINGS
// =============================================================================

func (h *Handler) GetMsPeriodSettings(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if !yearMonthPattern.MatchString(month) {
		writeError(w, http.StatusBadRequest, "month parameter is required (e.g., ?month=2026-02)", nil)
		return
	}
	settings, err := h.Store.GetMsPeriodSettings(r.Context(), month)
	if err != nil {
		h.internalError(w, r, "Failed to load ms period settings", err)
		return
	}
	writeJSON(w, http.StatusOK, MsPeriodSettingsResponse{Month: month, Settings: settings})
}

func (h *Handler) PutMsPeriodSettings(w http.ResponseWriter, r *http.Request) {
	var req MsPeriodSettingsRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if err := h.Store.SaveMsPeriodSettings(r.Context(), req.Month, req.Settings); err != nil {
		h.internalError(w, r, "Failed to save ms period settings", err)
		return
	}
	h.logger.Info("ms period settings saved", zap.String("month", req.Month), zap.Int("rows", len(req.Settings)))
	writeJSON(w, http.StatusOK, MessageResponse{Message: "MS period settings saved successfully", Month: req.Month})
}

// =============================================================================
// KPI TARGETS
// =============================================================================

// GetKPITargets answers 200 with {} when the month has nothing stored.
func (h *Handler) GetKPITargets(w http.ResponseWriter, r *http.Request) {
	period := strings.TrimSpace(r.URL.Query().Get("period"))
	if period == "" {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	targets, err := h.Store.GetKPITargets(r.Context(), period)
	if err != nil {
		h.internalError(w, r, "Failed to load kpi targets", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(targets))
}

// PutKPITargets ignores bodies without a period.
func (h *Handler) PutKPITargets(w http.ResponseWriter, r *http.Request) {
	var req KPITargetsRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if period := strings.TrimSpace(req.Period); period != "" {
		if err := h.Store.SaveKPITargets(r.Context(), period, req.Targets); err != nil {
			h.internalError(w, r, "Failed to save kpi targets", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// =============================================================================
// MEMBERS
// =============================================================================

// ListMembers returns a bare array.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context())
	if err != nil {
		h.internalError(w, r, "Failed to list members", err)
		return
	}
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = MemberDTO{ID: m.ID, Name: m.Name, Email: m.Email, Role: m.Role, IsAdmin: m.IsAdmin}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// YIELD
// =============================================================================

func (h *Handler) GetYield(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := yieldParams{
		From:        parseDateOr(q.Get("from"), defaultYieldFrom),
		To:          parseDateOr(q.Get("to"), defaultYieldTo),
		Scope:       generic.Scope(valueOr(q.Get("scope"), string(generic.ScopeCompany))),
		GroupBy:     valueOr(q.Get("groupBy"), "none"),
		Granularity: valueOr(q.Get("granularity"), "summary"),
		Cohort:      isCohort(r),
		Advisor:     generic.ParseAdvisorID(q.Get("advisorUserId")),
	}
	writeJSON(w, http.StatusOK, buildYield(p, h.yieldMembers(r)))
}

func (h *Handler) GetYieldTrend(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildTrend(isCohort(r)))
}

func (h *Handler) GetYieldBreakdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildBreakdown(isCohort(r)))
}

// yieldMembers reads the directory, falling back to the fixed trio.
func (h *Handler) yieldMembers(r *http.Request) []yieldMember {
	records, err := h.Store.ListMembers(r.Context())
	if err != nil {
		h.logger.Warn("list members for yield failed", zap.Error(err))
	}
	if len(records) == 0 {
		return fallbackMembers
	}
	out := make([]yieldMember, len(records))
	for i, m := range records {
		out[i] = yieldMember{ID: m.ID, Name: m.Name}
	}
	return out
}

// isCohort is true only for calcMode=cohort. MS requests always count by
// period.
func isCohort(r *http.Request) bool {
	q := r.URL.Query()
	return q.Get("ms") != "1" && strings.TrimSpace(q.Get("calcMode")) == "cohort"
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": h.now().UTC().Format(time.RFC3339)})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, message string, err error) {
	h.logger.Error(message, zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, message, err.Error())
}

// decodeRequest reads a JSON body into dst and validates it. On failure the
// 400 response is already written.
func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", validationDetails(err))
		return false
	}
	return true
}

// parseAdvisorIDs reads "1,2,x" into the positive ids. Nil when the
// parameter is absent.
func parseAdvisorIDs(raw string) []generic.AdvisorID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := []generic.AdvisorID{}
	for _, part := range strings.Split(raw, ",") {
		if id := generic.ParseAdvisorID(strings.TrimSpace(part)); id.Valid() {
			out = append(out, id)
		}
	}
	return out
}

func onlyDate(daily map[string]map[string]any, date string) map[string]map[string]any {
	if date == "" {
		return daily
	}
	out := map[string]map[string]any{}
	if t, ok := daily[date]; ok {
		out[date] = t
	}
	return out
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func valueOr(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

func parseDateOr(v, fallback string) time.Time {
	if tp, err := generic.ParseDate(strings.TrimSpace(v)); err == nil {
		return tp.Time
	}
	return generic.MustParseDate(fallback).Time
}
