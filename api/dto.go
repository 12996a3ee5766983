/*
dto.go - Request and response bodies of the development backend

PURPOSE:
  Mirrors the wire shapes the client package sends and reads. Request types
  carry validator tags; handlers call decodeRequest before touching the
  store.

NAMING CONVENTION:
  - *Request: request bodies from clients
  - *Response: response wrappers
  - *DTO: nested items

TYPES:
  Goal base:   GoalSettingsDTO, TargetsRequest, DailyTargetsRequest
  KPI base:    MsTargetsRequest, ImportantMetricRequest,
               MsPeriodSettingsRequest, KPITargetsRequest, MemberDTO
  Yield:       YieldItemDTO, YieldResponse, TrendPointDTO, BreakdownItemDTO
  Scenarios:   ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Field names in validation errors are the json names. "yearmonth" is a
  custom tag for YYYY-MM.

SEE ALSO:
  - handlers.go: Uses these types
  - client/goals.go, client/kpi.go: the other side of the wire
*/
package api

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
)

// =============================================================================
// GOAL BASE
// =============================================================================

// GoalSettingsDTO is both the GET response and the PUT body.
type GoalSettingsDTO struct {
	EvaluationRuleType    string         `json:"evaluation_rule_type"`
	EvaluationRuleOptions map[string]any `json:"evaluation_rule_options"`
}

type GoalSettingsSavedResponse struct {
	Success bool `json:"success"`
	GoalSettingsDTO
}

type TargetsRequest struct {
	Scope         generic.Scope     `json:"scope" validate:"required,oneof=company personal"`
	PeriodID      generic.PeriodID  `json:"periodId" validate:"required"`
	AdvisorUserID generic.AdvisorID `json:"advisorUserId" validate:"required_if=Scope personal,gte=0"`
	Targets       map[string]any    `json:"targets"`
}

type TargetsResponse struct {
	Targets map[string]any `json:"targets"`
}

type AdvisorTargetsDTO struct {
	AdvisorUserID generic.AdvisorID `json:"advisorUserId"`
	Targets       map[string]any    `json:"targets"`
}

type DailyTargetItemDTO struct {
	TargetDate string         `json:"target_date"`
	Targets    map[string]any `json:"targets"`
}

type DailyTargetsRequest struct {
	AdvisorUserID generic.AdvisorID    `json:"advisorUserId" validate:"gt=0"`
	PeriodID      generic.PeriodID     `json:"periodId" validate:"required"`
	Items         []DailyTargetItemDTO `json:"items"`
}

type DailyTargetsResponse struct {
	DailyTargets map[string]map[string]any `json:"dailyTargets"`
}

type AdvisorDailyTargetsDTO struct {
	AdvisorUserID generic.AdvisorID         `json:"advisorUserId"`
	DailyTargets  map[string]map[string]any `json:"dailyTargets"`
}

// ItemsResponse wraps list responses.
type ItemsResponse[T any] struct {
	Items []T `json:"items"`
}

// =============================================================================
// KPI BASE
// =============================================================================

type MsTargetsRequest struct {
	Scope         generic.Scope         `json:"scope" validate:"required,oneof=company personal"`
	DepartmentKey generic.DepartmentKey `json:"departmentKey" validate:"required"`
	MetricKey     generic.MetricKey     `json:"metricKey" validate:"required"`
	PeriodID      generic.PeriodID      `json:"periodId" validate:"required"`
	AdvisorUserID *generic.AdvisorID    `json:"advisorUserId"`
	TargetTotal   float64               `json:"targetTotal" validate:"gte=0"`
	DailyTargets  map[string]float64    `json:"dailyTargets"`
}

// Key folds a null advisor into 0.
func (r MsTargetsRequest) Key() generic.MsTargetKey {
	key := generic.MsTargetKey{
		Scope:      r.Scope,
		Department: r.DepartmentKey,
		Metric:     r.MetricKey,
		PeriodID:   r.PeriodID,
	}
	if r.AdvisorUserID != nil && r.AdvisorUserID.Valid() {
		key.AdvisorID = *r.AdvisorUserID
	}
	return key
}

type MsTargetsDTO struct {
	TargetTotal  float64            `json:"targetTotal"`
	DailyTargets map[string]float64 `json:"dailyTargets"`
}

type ImportantMetricRequest struct {
	DepartmentKey generic.DepartmentKey `json:"departmentKey" validate:"required"`
	UserID        generic.AdvisorID     `json:"userId" validate:"gt=0"`
	MetricKey     generic.MetricKey     `json:"metricKey" validate:"required"`
}

func (r ImportantMetricRequest) Metric() goals.ImportantMetric {
	return goals.ImportantMetric{DepartmentKey: r.DepartmentKey, UserID: r.UserID, MetricKey: r.MetricKey}
}

type MsPeriodSettingsRequest struct {
	Month    string                  `json:"month" validate:"yearmonth"`
	Settings []goals.MsPeriodSetting `json:"settings" validate:"required"`
}

type MsPeriodSettingsResponse struct {
	Month    string                  `json:"month"`
	Settings []goals.MsPeriodSetting `json:"settings"`
}

type MessageResponse struct {
	Message string `json:"message"`
	Month   string `json:"month,omitempty"`
}

type KPITargetsRequest struct {
	Period  string         `json:"period"`
	Targets map[string]any `json:"targets"`
}

type MemberDTO struct {
	ID      generic.AdvisorID `json:"id"`
	Name    string            `json:"name"`
	Email   string            `json:"email"`
	Role    string            `json:"role"`
	IsAdmin bool              `json:"is_admin"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

// =============================================================================
// YIELD
// =============================================================================

// CountsDTO is one day, month or total of the funnel.
type CountsDTO struct {
	NewInterviews       int `json:"newInterviews"`
	Proposals           int `json:"proposals"`
	Recommendations     int `json:"recommendations"`
	InterviewsScheduled int `json:"interviewsScheduled"`
	InterviewsHeld      int `json:"interviewsHeld"`
	Offers              int `json:"offers"`
	Accepts             int `json:"accepts"`
	Hires               int `json:"hires"`
	Revenue             int `json:"revenue"`
}

func (c CountsDTO) Add(o CountsDTO) CountsDTO {
	return CountsDTO{
		NewInterviews:       c.NewInterviews + o.NewInterviews,
		Proposals:           c.Proposals + o.Proposals,
		Recommendations:     c.Recommendations + o.Recommendations,
		InterviewsScheduled: c.InterviewsScheduled + o.InterviewsScheduled,
		InterviewsHeld:      c.InterviewsHeld + o.InterviewsHeld,
		Offers:              c.Offers + o.Offers,
		Accepts:             c.Accepts + o.Accepts,
		Hires:               c.Hires + o.Hires,
		Revenue:             c.Revenue + o.Revenue,
	}
}

type YieldItemDTO struct {
	AdvisorUserID *generic.AdvisorID   `json:"advisorUserId"`
	Name          string               `json:"name"`
	Series        map[string]CountsDTO `json:"series"`
	KPI           CountsDTO            `json:"kpi"`
}

type YieldMeta struct {
	CalcMode string `json:"calcMode"`
}

type YieldResponse struct {
	Items []YieldItemDTO `json:"items"`
	Meta  YieldMeta      `json:"meta"`
}

type TrendPointDTO struct {
	Period string             `json:"period"`
	Rates  map[string]float64 `json:"rates"`
}

type TrendResponse struct {
	Meta   YieldMeta       `json:"meta"`
	Series []TrendPointDTO `json:"series"`
}

type BreakdownItemDTO struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type BreakdownResponse struct {
	Meta  YieldMeta          `json:"meta"`
	Items []BreakdownItemDTO `json:"items"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO represents a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// VALIDATION
// =============================================================================

var yearMonthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("yearmonth", func(fl validator.FieldLevel) bool {
		return yearMonthPattern.MatchString(fl.Field().String())
	})
	return v
}

// validationDetails maps json field names to readable messages.
func validationDetails(err error) map[string]string {
	out := map[string]string{}
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return out
	}
	for _, fe := range ve {
		out[fe.Field()] = formatValidationError(fe)
	}
	return out
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gt":
		return fmt.Sprintf("Must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	case "yearmonth":
		return "Must be YYYY-MM"
	default:
		return fmt.Sprintf("Failed %s", fe.Tag())
	}
}
