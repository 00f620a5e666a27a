package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScrapeCmd() *cobra.Command {
	var (
		force  bool
		source string
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one batch over the configured sources",
		Long: `Visits every configured source once, in order, with the configured delay
between sources. Unchanged pages are skipped unless --force is set. Interrupt
stops the batch after the source in progress.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.RunOnce(cmd.Context(), force, source)
			if err != nil {
				return fmt.Errorf("run batch: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "checked %d/%d sources: %d changed, %d unchanged, %d failed, %d new records\n",
				summary.Progress, summary.Total, summary.Changed, summary.Unchanged, summary.Failed, summary.NewRecords)
			if summary.Canceled {
				fmt.Fprintln(out, "batch canceled before completion")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-extract even when the page is unchanged")
	cmd.Flags().StringVar(&source, "source", "", "only visit the named source")
	return cmd
}
