package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/yield-pacing/dashboard"
	"github.com/warp/yield-pacing/generic"
)

// =============================================================================
// LOAD
// =============================================================================

func (a *app) loadCmd() *cobra.Command {
	var (
		scope   string
		advisor string
		period  string
		maxDays int
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the dashboard and render it",
		Long: `Runs one full dashboard load for the selection and prints the KPI
summaries and MS tables. With --watch the load repeats on
dashboard.refreshCron until interrupted.

Example:
  pacing load --scope personal --advisor 30 --max-days 10
  pacing load --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sel := dashboard.Selection{
				Scope:            dashboard.Scope(scope),
				Advisor:          advisor,
				PersonalPeriodID: generic.PeriodID(period),
				CompanyPeriodID:  generic.PeriodID(period),
			}
			c, err := a.controller(cmd.Context(), sel)
			if err != nil {
				return err
			}
			renderer := dashboard.TextRenderer{MaxDays: maxDays}
			out := cmd.OutOrStdout()

			if !watch {
				if err := c.LoadAll(cmd.Context()); err != nil {
					return err
				}
				return renderer.Render(out, c.State().Snapshot())
			}

			rs, err := dashboard.NewRefreshScheduler(c, a.cfg.Dashboard.RefreshCron, a.log)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if run := rs.RunNow(ctx); run.Err == nil {
				if err := renderer.Render(out, c.State().Snapshot()); err != nil {
					return err
				}
			}
			rs.Start()
			defer rs.Stop()

			seen := rs.Runs()
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
				n := rs.Runs()
				if n == seen {
					continue
				}
				seen = n
				if run, ok := rs.LastRun(); !ok || run.Err != nil {
					continue
				}
				if err := renderer.Render(out, c.State().Snapshot()); err != nil {
					a.log.Warn("render failed", zap.Error(err))
				}
			}
		},
	}
	cmd.Flags().StringVar(&scope, "scope", string(dashboard.ScopeAll), "all, personal, company or admin")
	cmd.Flags().StringVar(&advisor, "advisor", "", "advisor id or name (default: session user)")
	cmd.Flags().StringVar(&period, "period", "", "period id (default: the period containing today)")
	cmd.Flags().IntVar(&maxDays, "max-days", 0, "show only the last n days of MS tables")
	cmd.Flags().BoolVar(&watch, "watch", false, "refresh on a schedule until interrupted")
	return cmd
}

// =============================================================================
// PREFETCH
// =============================================================================

func (a *app) prefetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prefetch",
		Short: "Warm target caches for every period of the stored rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings, _ := a.backend(ctx)
			periods := settings.EvaluationPeriods()
			advisors := settings.AdvisorIDs(ctx)

			bar := progressbar.NewOptions(len(periods),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("prefetch"),
				progressbar.OptionShowCount(),
			)
			covered := 0
			for _, p := range periods {
				settings.LoadCompanyTarget(ctx, p.ID, false)
				settings.LoadPageRateTargets(ctx, p.ID, false)
				settings.LoadMsPeriodSettingsFor(ctx, p.ID, false)
				covered += settings.LoadPersonalTargetsBulk(ctx, p.ID, advisors, false)
				_ = bar.Add(1)
			}
			_ = bar.Finish()

			fmt.Fprintf(cmd.OutOrStdout(), "periods: %d advisors: %d personal targets: %d\n",
				len(periods), len(advisors), covered)
			return nil
		},
	}
}
