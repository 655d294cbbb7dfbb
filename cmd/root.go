// Package cmd defines the hsecrawler CLI: crawl, graph and rank stages.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gorbunovakris4/hse-crawler/internal/app"
	"github.com/gorbunovakris4/hse-crawler/internal/config"
	"github.com/gorbunovakris4/hse-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is a variable so tests can swap the container factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile, envFile string
	cmd := &cobra.Command{
		Use:   "hsecrawler",
		Short: "Crawl a site, build its link graph and rank its pages.",
		Long: `hsecrawler runs a three-stage batch pipeline:

  crawl   fetch pages breadth-first from a seed and persist one record per page
  graph   turn persisted records into a directed link graph
  rank    rank graph nodes by damped power iteration`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML/JSON/TOML); env vars use the CRAWLER_ prefix")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with CRAWLER_* overrides, ignored when absent")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newGraphCmd())
	cmd.AddCommand(newRankCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp hands the App to a stage command and closes it once the stage
// returns, whether or not it failed.
func withApp(run func(cmd *cobra.Command, args []string, appInstance *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()
		return run(cmd, args, appInstance)
	}
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "hsecrawler:", err)
		os.Exit(1)
	}
}
