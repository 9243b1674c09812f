package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"emailtracker/internal/bootstrap"
	"emailtracker/internal/config"
	"emailtracker/internal/service/tracker"
	pkgconfig "emailtracker/pkg/config"
	"emailtracker/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Env        string
	ConfigDir  string
	Store      string
	SQLitePath string
	Verbose    bool
	Format     string // "json" | "text"

	cfg    *config.Config
	logger *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the trackerctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "trackerctl",
		Short: "Inspect and exercise the email tracker",
		Long:  "Replay capture scenarios and manage tracked email records from the command line.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Env, "env", pkgconfig.GetConfigEnv(), "config environment (config/<env>.yaml)")
	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", pkgconfig.GetEnv("CONFIG_DIR", "config"), "directory holding base.yaml")
	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "override store driver (postgres|sqlite|memory)")
	cmd.PersistentFlags().StringVar(&opts.SQLitePath, "sqlite-path", "", "override sqlite database path")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewHashKeyCommand(opts))

	return cmd
}

func (o *RootOptions) load() error {
	cfg, err := config.LoadFrom(o.Env, o.ConfigDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.Store != "" {
		cfg.Store.Driver = o.Store
	}
	if o.SQLitePath != "" {
		cfg.Store.SQLitePath = o.SQLitePath
	}
	o.cfg = cfg
	o.logger = logger.NewDevelopment(o.Verbose)
	return nil
}

// openTracker builds a tracker over the configured store. CLI writes never
// publish events.
func (o *RootOptions) openTracker(ctx context.Context) (*tracker.Service, *bootstrap.Storage, error) {
	storage, err := bootstrap.OpenStorage(ctx, o.cfg, o.logger)
	if err != nil {
		return nil, nil, err
	}
	return tracker.NewService(storage.Store, o.logger), storage, nil
}

func (o *RootOptions) printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
