package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"FeedPulse/internal/app"
	"FeedPulse/internal/config"
	"FeedPulse/internal/domain"
	"FeedPulse/internal/logging"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "feedpulse",
		Short:         "Ranked, summarized community feeds behind a freshness cache",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (overrides FEEDPULSE_CONFIG)")

	load := func(cmd *cobra.Command) (*app.Application, error) {
		var (
			cfg config.Config
			err error
		)
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return nil, err
		}
		logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
		return app.New(cmd.Context(), cfg, logger)
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with background cache warming",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := load(cmd)
			if err != nil {
				return err
			}
			defer application.Close()
			return application.Serve(cmd.Context())
		},
	}

	fetch := &cobra.Command{
		Use:   "fetch [feed]",
		Short: "Refresh one feed and print it as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := load(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			feed := ""
			if len(args) == 1 {
				feed = args[0]
			}
			res, err := application.Fetch(cmd.Context(), feed)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	var limit int
	history := &cobra.Command{
		Use:   "history [feed]",
		Short: "Show recent refresh outcomes recorded in the history database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := load(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			feed := ""
			if len(args) == 1 {
				feed = args[0]
			}
			records, err := application.History(cmd.Context(), feed, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RECORDED\tITEMS\tSUMMARY\tDURATION\tERROR")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					rec.RecordedAt.Local().Format(time.DateTime),
					rec.ItemCount,
					summaryLabel(rec),
					rec.Duration.Round(time.Millisecond),
					rec.Error,
				)
			}
			return w.Flush()
		},
	}
	history.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")

	root.AddCommand(serve, fetch, history)
	root.RunE = serve.RunE
	return root
}

func summaryLabel(rec domain.RefreshRecord) string {
	switch {
	case rec.Error != "":
		return "-"
	case rec.SummaryRegenerated && rec.SummaryFallback:
		return "fallback"
	case rec.SummaryRegenerated:
		return "generated"
	default:
		return "reused"
	}
}
