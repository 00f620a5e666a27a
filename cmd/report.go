package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/listingwatch/internal/export"
	"github.com/JakeFAU/listingwatch/internal/scraper"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print record counts by category and source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := appInstance.Store().Statistics(cmd.Context())
			if err != nil {
				return fmt.Errorf("load statistics: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "active records\t%d\n", stats.TotalActive)
			for _, c := range scraper.Categories {
				fmt.Fprintf(tw, "  %s\t%d\n", c, stats.ByCategory[c])
			}
			fmt.Fprintf(tw, "visits (7 days)\t%d\n", stats.RecentAudits)
			if len(stats.TopSources) > 0 {
				fmt.Fprintln(tw, "top sources\t")
				for _, s := range stats.TopSources {
					fmt.Fprintf(tw, "  %s\t%d\n", s.Source, s.Count)
				}
			}
			return tw.Flush()
		},
	}
}

func newLogsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the most recent audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := appInstance.Store().RecentAudit(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("load audit log: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSOURCE\tSTATUS\tFOUND\tMESSAGE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					e.Timestamp.Format(time.DateTime), e.SourceName, e.Status, e.RecordsFound, e.Message)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		output     string
		source     string
		activeOnly bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored records as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			records, err := appInstance.Store().QueryRecords(cmd.Context(), scraper.RecordFilter{
				Source:     source,
				ActiveOnly: activeOnly,
			})
			if err != nil {
				return fmt.Errorf("query records: %w", err)
			}
			if output == "" || output == "-" {
				return export.WriteCSV(cmd.OutOrStdout(), records)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := export.WriteCSV(f, records); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d records to %s\n", len(records), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&source, "source", "", "only export the named source")
	cmd.Flags().BoolVar(&activeOnly, "active-only", true, "skip deactivated records")
	return cmd
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCITY\tURL")
			for _, s := range appInstance.Sources() {
				target := s.ListingURL
				if target == "" {
					target = s.BaseURL + " (discover)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.City, target)
			}
			return tw.Flush()
		},
	}
}
