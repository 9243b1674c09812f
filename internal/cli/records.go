package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"emailtracker/internal/model"
)

// NewExportCommand creates the export command.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every record as a versioned JSON export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, storage, err := opts.openTracker(ctx)
			if err != nil {
				return err
			}
			defer storage.Close()

			data, err := svc.ExportData(ctx)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), data)
				return err
			}
			if err := os.WriteFile(out, []byte(data), 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			opts.logger.Info("Export written", zap.String("path", out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import an export file or a bare record array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			ctx := context.Background()
			svc, storage, err := opts.openTracker(ctx)
			if err != nil {
				return err
			}
			defer storage.Close()

			n, err := svc.ImportData(ctx, string(data))
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return opts.printJSON(cmd, map[string]int{"imported": n})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records.\n", n)
			return err
		},
	}
}

// NewSearchCommand creates the search command.
func NewSearchCommand(opts *RootOptions) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search records by domain, email, notes or provider",
		Long: `Search records case-insensitively. With no query every record is listed.

Examples:
  trackerctl search github
  trackerctl search --email alice@gmail.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, storage, err := opts.openTracker(ctx)
			if err != nil {
				return err
			}
			defer storage.Close()

			if email != "" {
				domains, err := svc.FindDomainsByEmail(ctx, email)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return opts.printJSON(cmd, map[string][]string{"domains": domains})
				}
				for _, d := range domains {
					fmt.Fprintln(cmd.OutOrStdout(), d)
				}
				return nil
			}

			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			records, err := svc.SearchRecords(ctx, query)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return opts.printJSON(cmd, records)
			}
			return printRecords(cmd, records)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "list the domains an address was used on")
	return cmd
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the stored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, storage, err := opts.openTracker(ctx)
			if err != nil {
				return err
			}
			defer storage.Close()

			stats, err := svc.Stats(ctx)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return opts.printJSON(cmd, stats)
			}
			return printStats(cmd, stats)
		},
	}
}

func printRecords(cmd *cobra.Command, records []model.EmailRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "No records found.")
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tEMAIL\tPROVIDER\tADDED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rec.Domain, rec.Email, rec.Provider, rec.DateAdded.Format("2006-01-02"))
	}
	return w.Flush()
}

func printStats(cmd *cobra.Command, stats model.DomainStats) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Records:        %d\n", stats.TotalRecords)
	fmt.Fprintf(out, "Unique emails:  %d\n", stats.UniqueEmails)
	if stats.MostUsedEmail != "" {
		fmt.Fprintf(out, "Most used:      %s\n", stats.MostUsedEmail)
	}
	if stats.OldestRecord != "" {
		fmt.Fprintf(out, "Oldest:         %s\n", stats.OldestRecord)
		fmt.Fprintf(out, "Newest:         %s\n", stats.NewestRecord)
	}

	providers := make([]string, 0, len(stats.ProviderBreakdown))
	for p := range stats.ProviderBreakdown {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		fmt.Fprintf(out, "  %-12s %d\n", p, stats.ProviderBreakdown[p])
	}
	return nil
}
