package client

import (
	"context"
	"net/url"

	"github.com/warp/yield-pacing/factory"
	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
)

// =============================================================================
// GOAL SETTINGS
// =============================================================================

// GetGoalSettings returns the stored rule in the backend shape.
func (c *Client) GetGoalSettings(ctx context.Context) (factory.RuleDocument, error) {
	var doc factory.RuleDocument
	err := c.getGoal(ctx, "/goal-settings", nil, &doc)
	return doc, err
}

func (c *Client) PutGoalSettings(ctx context.Context, payload factory.BackendPayload) error {
	return c.putGoal(ctx, "/goal-settings", payload)
}

// =============================================================================
// PERIOD TARGETS
// =============================================================================

type targetsResponse struct {
	Targets map[string]any `json:"targets"`
}

// AdvisorItem is one entry of a bulk response.
type AdvisorItem struct {
	AdvisorUserID      any                       `json:"advisorUserId"`
	AdvisorUserIDSnake any                       `json:"advisor_user_id"`
	Targets            map[string]any            `json:"targets"`
	DailyTargets       map[string]map[string]any `json:"dailyTargets"`
}

// AdvisorID reads advisorUserId, then advisor_user_id.
func (i AdvisorItem) AdvisorID() generic.AdvisorID {
	if id := generic.ParseAdvisorID(i.AdvisorUserID); id.Valid() {
		return id
	}
	return generic.ParseAdvisorID(i.AdvisorUserIDSnake)
}

type bulkTargetsResponse struct {
	Items            []AdvisorItem             `json:"items"`
	TargetsByAdvisor map[string]map[string]any `json:"targetsByAdvisor"`
}

type bulkDailyResponse struct {
	Items                 []AdvisorItem                        `json:"items"`
	DailyTargetsByAdvisor map[string]map[string]map[string]any `json:"dailyTargetsByAdvisor"`
}

func (c *Client) GetCompanyTarget(ctx context.Context, periodID generic.PeriodID) (goals.Target, error) {
	q := url.Values{"scope": {string(generic.ScopeCompany)}, "periodId": {string(periodID)}}
	var resp targetsResponse
	if err := c.getGoal(ctx, "/goal-targets", q, &resp); err != nil {
		return nil, err
	}
	return goals.NormalizeTarget(resp.Targets), nil
}

func (c *Client) GetPersonalTarget(ctx context.Context, periodID generic.PeriodID, advisor generic.AdvisorID) (goals.Target, error) {
	q := url.Values{
		"scope":         {string(generic.ScopePersonal)},
		"periodId":      {string(periodID)},
		"advisorUserId": {advisor.String()},
	}
	var resp targetsResponse
	if err := c.getGoal(ctx, "/goal-targets", q, &resp); err != nil {
		return nil, err
	}
	return goals.NormalizeTarget(resp.Targets), nil
}

// GetPersonalTargetsBulk accepts either the items array or the
// targetsByAdvisor object. Entries without a positive advisor id are dropped.
func (c *Client) GetPersonalTargetsBulk(ctx context.Context, periodID generic.PeriodID, advisors []generic.AdvisorID) (map[generic.AdvisorID]goals.Target, error) {
	q := url.Values{
		"scope":          {string(generic.ScopePersonal)},
		"periodId":       {string(periodID)},
		"advisorUserIds": {joinIDs(advisors)},
	}
	var resp bulkTargetsResponse
	if err := c.getGoal(ctx, "/goal-targets", q, &resp); err != nil {
		return nil, err
	}

	items := resp.Items
	if items == nil {
		for id, targets := range resp.TargetsByAdvisor {
			items = append(items, AdvisorItem{AdvisorUserID: id, Targets: targets})
		}
	}
	out := make(map[generic.AdvisorID]goals.Target, len(items))
	for _, item := range items {
		if id := item.AdvisorID(); id.Valid() {
			out[id] = goals.NormalizeTarget(item.Targets)
		}
	}
	return out, nil
}

type companyTargetPayload struct {
	Scope    generic.Scope    `json:"scope"`
	PeriodID generic.PeriodID `json:"periodId"`
	Targets  goals.Target     `json:"targets"`
}

type personalTargetPayload struct {
	Scope         generic.Scope     `json:"scope"`
	AdvisorUserID generic.AdvisorID `json:"advisorUserId"`
	PeriodID      generic.PeriodID  `json:"periodId"`
	Targets       goals.Target      `json:"targets"`
}

func (c *Client) PutCompanyTarget(ctx context.Context, periodID generic.PeriodID, target goals.Target) error {
	return c.putGoal(ctx, "/goal-targets", companyTargetPayload{
		Scope:    generic.ScopeCompany,
		PeriodID: periodID,
		Targets:  target,
	})
}

func (c *Client) PutPersonalTarget(ctx context.Context, periodID generic.PeriodID, advisor generic.AdvisorID, target goals.Target) error {
	return c.putGoal(ctx, "/goal-targets", personalTargetPayload{
		Scope:         generic.ScopePersonal,
		AdvisorUserID: advisor,
		PeriodID:      periodID,
		Targets:       target,
	})
}

// =============================================================================
// DAILY TARGETS
// =============================================================================

type dailyResponse struct {
	DailyTargets map[string]map[string]any `json:"dailyTargets"`
}

func normalizeDaily(raw map[string]map[string]any) goals.DailyTargetSet {
	out := make(goals.DailyTargetSet, len(raw))
	for date, target := range raw {
		out[date] = goals.NormalizeTarget(target)
	}
	return out
}

func (c *Client) GetDailyTargets(ctx context.Context, periodID generic.PeriodID, advisor generic.AdvisorID) (goals.DailyTargetSet, error) {
	q := url.Values{"advisorUserId": {advisor.String()}, "periodId": {string(periodID)}}
	var resp dailyResponse
	if err := c.getGoal(ctx, "/goal-daily-targets", q, &resp); err != nil {
		return nil, err
	}
	return normalizeDaily(resp.DailyTargets), nil
}

// GetDailyTargetsBulk optionally narrows the response to one date.
func (c *Client) GetDailyTargetsBulk(ctx context.Context, periodID generic.PeriodID, advisors []generic.AdvisorID, date string) (map[generic.AdvisorID]goals.DailyTargetSet, error) {
	q := url.Values{"periodId": {string(periodID)}, "advisorUserIds": {joinIDs(advisors)}}
	if date != "" {
		q.Set("date", date)
	}
	var resp bulkDailyResponse
	if err := c.getGoal(ctx, "/goal-daily-targets", q, &resp); err != nil {
		return nil, err
	}

	items := resp.Items
	if items == nil {
		for id, daily := range resp.DailyTargetsByAdvisor {
			items = append(items, AdvisorItem{AdvisorUserID: id, DailyTargets: daily})
		}
	}
	out := make(map[generic.AdvisorID]goals.DailyTargetSet, len(items))
	for _, item := range items {
		if id := item.AdvisorID(); id.Valid() {
			out[id] = normalizeDaily(item.DailyTargets)
		}
	}
	return out, nil
}

// DailyTargetItem is one date of a daily targets upsert.
type DailyTargetItem struct {
	TargetDate string       `json:"target_date"`
	Targets    goals.Target `json:"targets"`
}

type dailyTargetsPayload struct {
	AdvisorUserID generic.AdvisorID `json:"advisorUserId"`
	PeriodID      generic.PeriodID  `json:"periodId"`
	Items         []DailyTargetItem `json:"items"`
}

// PutDailyTargets upserts the given dates; dates not sent are kept.
func (c *Client) PutDailyTargets(ctx context.Context, periodID generic.PeriodID, advisor generic.AdvisorID, daily goals.DailyTargetSet) error {
	items := make([]DailyTargetItem, 0, len(daily))
	for _, date := range daily.Dates() {
		items = append(items, DailyTargetItem{TargetDate: date, Targets: daily[date]})
	}
	return c.putGoal(ctx, "/goal-daily-targets", dailyTargetsPayload{
		AdvisorUserID: advisor,
		PeriodID:      periodID,
		Items:         items,
	})
}
