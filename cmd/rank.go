package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gorbunovakris4/hse-crawler/internal/app"
	"github.com/gorbunovakris4/hse-crawler/internal/rank"
)

func newRankCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank graph nodes and write pages_ranked.csv",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, appInstance *app.App) error {
			report, err := appInstance.RankPages(cmd.Context())
			if err != nil {
				return fmt.Errorf("rank pages: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rank: iterations=%d converged=%t delta=%g uri=%s\n",
				report.Result.Iterations, report.Result.Converged, report.Result.Delta, report.URI)
			if !cmd.Flags().Changed("top") {
				top = appInstance.Config().Rank.Top
			}
			for _, id := range rank.Top(report.Result.Ranks, top) {
				fmt.Fprintf(out, "%6d  %.6f  %s\n", id, report.Result.Ranks[id], report.Nodes[id].URL)
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of top-ranked pages to print")
	return cmd
}
