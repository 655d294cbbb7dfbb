package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gorbunovakris4/hse-crawler/internal/app"
)

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Build the link graph from persisted crawl records",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, appInstance *app.App) error {
			g, err := appInstance.BuildGraph(cmd.Context())
			if err != nil {
				return fmt.Errorf("build graph: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "graph: nodes=%d edges=%d skipped=%d dir=%s\n",
				len(g.Nodes), len(g.Edges), g.Skipped, appInstance.Config().Graph.Dir)
			return nil
		}),
	}
}
