package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gorbunovakris4/hse-crawler/internal/api"
	"github.com/gorbunovakris4/hse-crawler/internal/app"
	"github.com/gorbunovakris4/hse-crawler/internal/orchestrator"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl [seed]",
		Short: "Crawl the configured domain starting from a seed URL",
		Long: `Fetches pages breadth-first from the seed (argument or crawler.seed),
following only links under extractor.domain_suffix. Each URL is fetched at
most once. The crawl stops once the frontier stays empty for
crawler.idle_timeout with no fetch in flight.`,
		Args: cobra.MaximumNArgs(1),
		RunE: withApp(runCrawlCommand),
	}
}

func runCrawlCommand(cmd *cobra.Command, args []string, appInstance *app.App) error {
	cfg := appInstance.Config()

	seed := cfg.Crawler.Seed
	if len(args) == 1 {
		seed = args[0]
	}

	orch, err := appInstance.NewCrawl(cmd.Context())
	if err != nil {
		return err
	}
	if err := orch.Start(seed); err != nil {
		return err
	}

	// The ops server lives exactly as long as the crawl; a failing server
	// cancels the crawl.
	g, gctx := errgroup.WithContext(cmd.Context())
	opsCtx, stopOps := context.WithCancel(gctx)
	defer stopOps()
	if cfg.Metrics.Enabled {
		server := api.NewServer(func() string { return orch.State().String() }, appInstance.Logger().Named("api"))
		g.Go(func() error {
			return server.ListenAndServe(opsCtx, cfg.Metrics.Addr)
		})
	}

	var summary orchestrator.Summary
	g.Go(func() error {
		defer stopOps()
		var runErr error
		summary, runErr = orch.Run(gctx)
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("run crawler: %w", runErr)
		}
		return nil
	})
	err = g.Wait()

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: visited=%d persisted=%d failed=%d duration=%s\n",
		summary.RunID, summary.Visited, summary.Persisted, summary.Failed, summary.Duration)
	return err
}
