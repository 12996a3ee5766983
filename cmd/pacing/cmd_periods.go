package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/yield-pacing/dashboard"
	"github.com/warp/yield-pacing/factory"
	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
	"github.com/warp/yield-pacing/service"
)

// =============================================================================
// PERIODS
// =============================================================================

func (a *app) periodsCmd() *cobra.Command {
	var ruleArg, dateArg string
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "Print the evaluation periods of a rule",
		Long: `Prints the periods generated around a date. --rule takes a file
(JSON or YAML), an inline document or a bare type name; without it the
rule stored in the goal backend is used.

Example:
  pacing periods --rule weekly --date 2025-06-19
  pacing periods --rule rule.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := dateOrNow(dateArg)
			if err != nil {
				return err
			}
			var rule generic.EvaluationRule
			if ruleArg == "" {
				settings, _ := a.backend(cmd.Context())
				rule = settings.EvaluationRule()
			} else if rule, err = readRule(ruleArg); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rule: %s\n", rule.Type)
			current, _ := generic.FindPeriodByDate(generic.DateOf(now), generic.GeneratePeriods(rule, now))
			for _, p := range generic.GeneratePeriods(rule, now) {
				marker := " "
				if p.ID == current.ID {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-14s %s..%s  %s\n", marker, p.ID, p.StartDate, p.EndDate, p.Label)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ruleArg, "rule", "", "rule file, document or type")
	cmd.Flags().StringVar(&dateArg, "date", "", "reference date YYYY-MM-DD (default: today)")
	return cmd
}

// readRule reads arg as a file when one exists, otherwise as the rule text.
func readRule(arg string) (generic.EvaluationRule, error) {
	f := factory.NewRuleFactory()
	if data, err := os.ReadFile(arg); err == nil {
		return f.ParseRule(data)
	}
	return f.ParseRuleString(arg)
}

func dateOrNow(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	tp, err := generic.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date: %w", err)
	}
	return tp.Time, nil
}

// =============================================================================
// MS WINDOW
// =============================================================================

type msFlags struct {
	period string
	dept   string
	metric string
}

func (f *msFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.period, "period", "", "period id (default: the period containing today)")
	cmd.Flags().StringVar(&f.dept, "dept", "", "department key (default: the metric's department)")
	cmd.Flags().StringVar(&f.metric, "metric", "", "MS metric key")
	_ = cmd.MarkFlagRequired("metric")
}

// resolve fills the period and department defaults.
func (f *msFlags) resolve(settings *service.GoalSettings) (generic.PeriodID, generic.DepartmentKey, generic.MetricKey, error) {
	metric := generic.MetricKey(f.metric)
	dept := generic.DepartmentKey(f.dept)
	if dept == "" {
		_, d, ok := goals.LookupMetric(metric)
		if !ok {
			return "", "", "", fmt.Errorf("unknown metric %q: %w", metric, generic.ErrMissingField)
		}
		dept = d
	}

	periodID := generic.PeriodID(f.period)
	if periodID == "" {
		p, ok := settings.PeriodByDate(generic.Today())
		if !ok {
			return "", "", "", fmt.Errorf("no period contains today: %w", generic.ErrInvalidPeriod)
		}
		periodID = p.ID
	}
	return periodID, dept, metric, nil
}

func (a *app) windowCmd() *cobra.Command {
	var f msFlags
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Resolve the MS window of a metric",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings, _ := a.backend(ctx)
			periodID, dept, metric, err := f.resolve(settings)
			if err != nil {
				return err
			}

			settings.LoadMsPeriodSettingsFor(ctx, periodID, false)
			resolver := settings.Resolver()
			periods := settings.EvaluationPeriods()
			window, err := resolver.Window(periodID, periods, dept, metric)
			if err != nil {
				return err
			}
			source := "department default"
			if resolver.IsConfigured(periodID, periods, metric) {
				source = "configured"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s: %s..%s (%d days, %s)\n",
				periodID, dept, metric, window.Start, window.End, window.Len(), source)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

// =============================================================================
// DISTRIBUTE
// =============================================================================

func (a *app) distributeCmd() *cobra.Command {
	var (
		f       msFlags
		total   string
		scope   string
		advisor string
		save    bool
	)
	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Spread an MS total evenly over its window",
		Long: `Prints the cumulative daily targets of an even distribution. The
metric must have a configured window for the period. With --save the
result is written as the row's MS targets.

Example:
  pacing distribute --total 30 --metric proposals --period 2025-06 --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(total)
			if err != nil {
				return fmt.Errorf("--total %q: %w", total, err)
			}
			ctx := cmd.Context()
			settings, _ := a.backend(ctx)
			periodID, dept, metric, err := f.resolve(settings)
			if err != nil {
				return err
			}

			var daily generic.DailyTargets
			if save {
				c, err := a.controller(ctx, dashboard.Selection{Advisor: advisor})
				if err != nil {
					return err
				}
				saved, err := c.Distribute(ctx, dashboard.DistributeRequest{
					Scope:      generic.Scope(scope),
					PeriodID:   periodID,
					Department: dept,
					Metric:     metric,
					Advisor:    advisor,
					Total:      amount,
				})
				if err != nil {
					return err
				}
				daily = saved.DailyTargets
			} else {
				settings.LoadMsPeriodSettingsFor(ctx, periodID, false)
				resolver := settings.Resolver()
				periods := settings.EvaluationPeriods()
				if !resolver.IsConfigured(periodID, periods, metric) {
					return fmt.Errorf("ms period for %s in %s is not configured: %w", metric, periodID, generic.ErrInvalidPeriod)
				}
				window, err := resolver.Window(periodID, periods, dept, metric)
				if err != nil {
					return err
				}
				daily = generic.DistributionMap(amount, window.Days(), window)
			}
			printDaily(cmd.OutOrStdout(), daily)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&total, "total", "0", "target total")
	cmd.Flags().StringVar(&scope, "scope", "personal", "company or personal")
	cmd.Flags().StringVar(&advisor, "advisor", "", "advisor id or name (personal scope, default: session user)")
	cmd.Flags().BoolVar(&save, "save", false, "write the distribution as MS targets")
	return cmd
}

func printDaily(w io.Writer, daily generic.DailyTargets) {
	for _, date := range daily.Dates() {
		fmt.Fprintf(w, "%s %s\n", date, daily[date].StringFixed(2))
	}
	fmt.Fprintf(w, "days: %d\n", len(daily))
}

// =============================================================================
// RATES
// =============================================================================

func (a *app) ratesCmd() *cobra.Command {
	var mode, counts string
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Funnel conversion rates from counts",
		Long: `Example:
  pacing rates --mode step --counts newInterviews=10,proposals=5,recommendations=4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := parseCounts(counts)
			if err != nil {
				return err
			}
			rateMode := goals.NormalizeRateMode(mode)
			rates := goals.ComputeRates(goals.NormalizeCounts(raw), rateMode)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mode: %s\n", rateMode)
			for _, step := range goals.RateSteps {
				fmt.Fprintf(out, "%-22s %3d%%  (%s / %s)\n",
					step.RateKey, rates[step.RateKey], step.Numerator, step.Denominator(rateMode))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(goals.DefaultRateMode), "base or step")
	cmd.Flags().StringVar(&counts, "counts", "", "comma-separated key=value counts")
	return cmd
}

// parseCounts reads "k=v,k=v" into a raw count map.
func parseCounts(s string) (map[string]any, error) {
	out := map[string]any{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("count %q: want key=value", part)
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("count %q: %w", part, err)
		}
		out[strings.TrimSpace(key)] = n
	}
	return out, nil
}
