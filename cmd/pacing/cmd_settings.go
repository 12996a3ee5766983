package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
)

// =============================================================================
// MS PERIOD SETTINGS
// =============================================================================

func (a *app) msSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ms-settings",
		Short: "Read or write metric windows for a month",
	}

	var month string
	get := &cobra.Command{
		Use:   "get",
		Short: "Print the configured windows of a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !generic.IsMonthKey(month) {
				return fmt.Errorf("--month %q: want YYYY-MM", month)
			}
			settings, _ := a.backend(cmd.Context())
			printPeriodMap(cmd, month, settings.LoadMsPeriodSettings(cmd.Context(), month, true))
			return nil
		},
	}
	get.Flags().StringVar(&month, "month", "", "YYYY-MM")

	var windows, clear []string
	set := &cobra.Command{
		Use:   "set",
		Short: "Set or clear metric windows of a month",
		Long: `Rows not named are left alone. --window takes metric=start:end,
--clear takes a metric key.

Example:
  pacing ms-settings set --month 2025-06 --window proposals=2025-06-05:2025-06-30 --clear offers`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !generic.IsMonthKey(month) {
				return fmt.Errorf("--month %q: want YYYY-MM", month)
			}
			rows, err := parseWindows(windows, clear)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("nothing to save: %w", generic.ErrMissingField)
			}
			settings, _ := a.backend(cmd.Context())
			saved, err := settings.SaveMsPeriodSettings(cmd.Context(), month, rows)
			if err != nil {
				return err
			}
			printPeriodMap(cmd, month, saved)
			return nil
		},
	}
	set.Flags().StringVar(&month, "month", "", "YYYY-MM")
	set.Flags().StringArrayVar(&windows, "window", nil, "metric=YYYY-MM-DD:YYYY-MM-DD (repeatable)")
	set.Flags().StringSliceVar(&clear, "clear", nil, "metric keys to clear")

	cmd.AddCommand(get, set)
	return cmd
}

// parseWindows turns flag values into rows. Cleared rows carry empty dates.
func parseWindows(windows, clear []string) ([]goals.MsPeriodSetting, error) {
	rows := make([]goals.MsPeriodSetting, 0, len(windows)+len(clear))
	for _, w := range windows {
		key, span, ok := strings.Cut(w, "=")
		start, end, ok2 := strings.Cut(span, ":")
		if !ok || !ok2 {
			return nil, fmt.Errorf("window %q: want metric=start:end", w)
		}
		metric := generic.MetricKey(strings.TrimSpace(key))
		if !goals.ValidMsMetricKeys[metric] {
			return nil, fmt.Errorf("window %q: %q is not a configurable metric", w, metric)
		}
		r := generic.DateRange{}
		var err error
		if r.Start, err = generic.ParseDate(strings.TrimSpace(start)); err != nil {
			return nil, fmt.Errorf("window %q: %w", w, err)
		}
		if r.End, err = generic.ParseDate(strings.TrimSpace(end)); err != nil {
			return nil, fmt.Errorf("window %q: %w", w, err)
		}
		if !r.Valid() {
			return nil, fmt.Errorf("window %q: start after end", w)
		}
		rows = append(rows, goals.MsPeriodSetting{MetricKey: metric, StartDate: r.Start.String(), EndDate: r.End.String()})
	}
	for _, key := range clear {
		rows = append(rows, goals.MsPeriodSetting{MetricKey: generic.MetricKey(strings.TrimSpace(key))})
	}
	return rows, nil
}

func printPeriodMap(cmd *cobra.Command, month string, m goals.MsPeriodMap) {
	out := cmd.OutOrStdout()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	fmt.Fprintf(out, "month: %s\n", month)
	for _, k := range keys {
		r := m[generic.MetricKey(k)]
		fmt.Fprintf(out, "  %-22s %s..%s\n", k, r.Start, r.End)
	}
	if len(keys) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
}

// =============================================================================
// MODES
// =============================================================================

func (a *app) modeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Show or set rate and calc modes",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the mode of every dashboard scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.modes()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, scope := range append([]goals.ModeScope{goals.ScopeDefault}, goals.ModeScopes...) {
				fmt.Fprintf(out, "%-16s rate=%s calc=%s\n", scope, m.RateMode(scope), m.CalcMode(scope))
			}
			return nil
		},
	}

	var scope, rate, calc string
	set := &cobra.Command{
		Use:   "set",
		Short: "Persist a rate or calc mode for a scope",
		Long: `Example:
  pacing mode set --scope personalPeriod --rate step
  pacing mode set --calc period`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rate == "" && calc == "" {
				return fmt.Errorf("--rate or --calc is required: %w", generic.ErrMissingField)
			}
			m, err := a.modes()
			if err != nil {
				return err
			}
			s := goals.ModeScope(scope)
			out := cmd.OutOrStdout()
			if rate != "" {
				got, err := m.SetRateMode(s, goals.RateMode(rate))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s rate=%s\n", scopeName(s), got)
			}
			if calc != "" {
				got, err := m.SetCalcMode(s, goals.CalcMode(calc))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s calc=%s\n", scopeName(s), got)
			}
			return nil
		},
	}
	set.Flags().StringVar(&scope, "scope", "", "dashboard scope (default: all scopes without their own choice)")
	set.Flags().StringVar(&rate, "rate", "", "base or step")
	set.Flags().StringVar(&calc, "calc", "", "cohort or period")

	cmd.AddCommand(show, set)
	return cmd
}

func scopeName(s goals.ModeScope) goals.ModeScope {
	if s == "" {
		return goals.ScopeDefault
	}
	return s
}
