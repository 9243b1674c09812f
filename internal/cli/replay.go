package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"emailtracker/internal/capture"
	"emailtracker/internal/messaging"
	"emailtracker/internal/replay"
	redisclient "emailtracker/pkg/redis"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Remote    bool
	Transport string
	AutoSave  bool
	Session   string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>...",
		Short: "Drive capture scenarios through the page state machine",
		Long: `Replay one or more capture scenarios. All scenarios share one browsing
session, so a sign-in click in one file can be picked up by a later one.

By default the tracker runs in-process against the configured store. With
--remote the scenarios talk to a running server over HTTP or websocket.

Examples:
  trackerctl replay internal/replay/testdata/oauth_github.yaml
  trackerctl replay --remote --transport ws login.yaml
  trackerctl replay --auto-save --format json login.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Remote, "remote", false, "send messages to client.server_url instead of an in-process tracker")
	cmd.Flags().StringVar(&opts.Transport, "transport", "", "remote transport (http|ws), default client.transport")
	cmd.Flags().BoolVar(&opts.AutoSave, "auto-save", false, "accept every prompt even when the scenario does not ask for it")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id for the redis signal store (default random)")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	scenarios := make([]*replay.Scenario, 0, len(paths))
	for _, path := range paths {
		sc, err := replay.Load(path)
		if err != nil {
			return err
		}
		if opts.AutoSave {
			sc.AutoSave = true
		}
		scenarios = append(scenarios, sc)
	}

	messenger, closeFn, err := opts.messenger(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	signals, closeSignals, err := opts.signalStore()
	if err != nil {
		return err
	}
	defer closeSignals()

	runner := replay.NewRunner(messenger, messenger, capture.OptionsFromConfig(opts.cfg.Capture), opts.logger)
	results := make([]*replay.Result, 0, len(scenarios))
	var failed []string
	for _, sc := range scenarios {
		res, err := runner.Run(ctx, sc, signals)
		if err != nil {
			opts.logger.Error("Scenario failed", zap.String("scenario", sc.Name), zap.Error(err))
			failed = append(failed, sc.Name)
			res.Errors = append(res.Errors, err.Error())
		}
		results = append(results, res)
	}

	if opts.Format == "json" {
		if err := opts.printJSON(cmd, results); err != nil {
			return err
		}
	} else {
		printReplay(cmd, results)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d scenario(s) failed: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func (o *ReplayOptions) messenger(ctx context.Context) (*capture.Messenger, func(), error) {
	if o.Remote {
		clientCfg := o.cfg.Client
		if o.Transport != "" {
			clientCfg.Transport = o.Transport
		}
		m, err := capture.DialMessenger(ctx, clientCfg, o.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to %s: %w", clientCfg.ServerURL, err)
		}
		return m, func() { _ = m.Close() }, nil
	}

	svc, storage, err := o.openTracker(ctx)
	if err != nil {
		return nil, nil, err
	}
	dispatcher := messaging.NewTrackerDispatcher(svc, messaging.NewLogPopupOpener(o.logger), o.logger)
	m := capture.NewMessenger(messaging.NewLocalClient(dispatcher), "local", nil, o.logger)
	return m, storage.Close, nil
}

func (o *ReplayOptions) signalStore() (capture.SignalStore, func(), error) {
	if o.cfg.Capture.SignalStore != "redis" {
		return capture.NewMemorySignalStore(), func() {}, nil
	}

	rdb, err := redisclient.NewRedisClient(o.cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	session := o.Session
	if session == "" {
		session = uuid.NewString()
	}
	o.logger.Debug("Using redis signal store", zap.String("session", session))
	return capture.NewRedisSignalStore(rdb, session), func() { _ = rdb.Close() }, nil
}

func printReplay(cmd *cobra.Command, results []*replay.Result) {
	out := cmd.OutOrStdout()
	for _, res := range results {
		fmt.Fprintf(out, "%s: %d steps, %d prompt(s)\n", res.Scenario, res.Steps, len(res.Prompts))
		for _, p := range res.Prompts {
			prefill := p.Prefill
			if prefill == "" {
				prefill = "(empty)"
			}
			fmt.Fprintf(out, "  prompt  %-6s %s  %s\n", p.Kind, p.Domain, prefill)
		}
		for _, d := range res.Saved {
			fmt.Fprintf(out, "  saved   %s\n", d)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  error   %s\n", e)
		}
	}
}
