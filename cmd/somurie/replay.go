package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/okian/somurie/internal/config"
	"github.com/okian/somurie/internal/testevents"
)

func replayCmd(cfg func() *config.Config) *cobra.Command {
	rc := testevents.Config{}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay synthetic webhooks against a running server and verify the scores",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("secret") {
				rc.Secret = cfg().WebhookSecret
			}
			stats, err := testevents.Run(cmd.Context(), rc)
			if err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}

	f := cmd.Flags()
	f.StringVar(&rc.BaseURL, "url", testevents.DefaultBaseURL, "base URL of the server")
	f.IntVar(&rc.Events, "events", testevents.DefaultEvents, "distinct events to send")
	f.IntVar(&rc.Creators, "creators", testevents.DefaultCreators, "creators the events are spread over")
	f.Int64Var(&rc.FirstFID, "first-fid", testevents.DefaultFirstFID, "lowest creator fid")
	f.IntVar(&rc.Workers, "workers", runtime.NumCPU()*2, "concurrent senders")
	f.Float64Var(&rc.Redeliver, "redeliver", testevents.DefaultRedeliver, "share of events delivered twice")
	f.StringVar(&rc.Secret, "secret", "", "signing secret (defaults to webhook_secret)")
	f.DurationVar(&rc.Timeout, "timeout", testevents.DefaultTimeout, "per request timeout")
	f.DurationVar(&rc.Settle, "settle", testevents.DefaultSettle, "how long to wait for jobs")
	f.IntVar(&rc.TopN, "top", testevents.DefaultTopN, "leaderboard rows to log")
	return cmd
}
