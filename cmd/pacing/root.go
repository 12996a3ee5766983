package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/yield-pacing/client"
	"github.com/warp/yield-pacing/config"
	"github.com/warp/yield-pacing/dashboard"
	"github.com/warp/yield-pacing/goals"
	"github.com/warp/yield-pacing/logger"
	"github.com/warp/yield-pacing/service"
	"github.com/warp/yield-pacing/session"
)

// app carries what every command shares. The backend side is built on first
// use so offline commands never touch the session file.
type app struct {
	configPath string
	verbose    bool

	cfg *config.Config
	log *zap.Logger

	client   *client.Client
	settings *service.GoalSettings
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "pacing",
		Short: "Yield pacing: evaluation periods, MS windows and target distribution",
		Long: `pacing talks to the goal and KPI backends configured in pacing.yaml
(or PACING_API_GOALBASEURL / PACING_API_KPIBASEURL) and prints what the
yield dashboard would show.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: search for pacing.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.periodsCmd(),
		a.windowCmd(),
		a.distributeCmd(),
		a.ratesCmd(),
		a.loadCmd(),
		a.prefetchCmd(),
		a.msSettingsCmd(),
		a.modeCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	log, err := logger.New(&cfg.Logging, &cfg.App)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// backend builds the client and the goal settings service, then loads the
// stored evaluation rule.
func (a *app) backend(ctx context.Context) (*service.GoalSettings, *client.Client) {
	if a.settings == nil {
		provider := session.NewFileStore(a.cfg.Session.Path)
		a.client = client.New(a.cfg.API.ClientConfig(), client.WithSession(provider), client.WithLogger(a.log))
		a.settings = service.NewGoalSettings(a.client, provider, service.WithLogger(a.log))
	}
	a.settings.LoadEvaluationRule(ctx, false)
	return a.settings, a.client
}

func (a *app) modes() (*goals.ModeSettings, error) {
	m, err := goals.NewModeSettings(goals.NewFilePreferences(a.cfg.Dashboard.PreferencesPath))
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	return m, nil
}

func (a *app) controller(ctx context.Context, sel dashboard.Selection) (*dashboard.Controller, error) {
	settings, c := a.backend(ctx)
	modes, err := a.modes()
	if err != nil {
		return nil, err
	}
	return dashboard.NewController(settings, c, dashboard.NewState(sel),
		dashboard.WithLogger(a.log),
		dashboard.WithModes(modes),
	), nil
}
