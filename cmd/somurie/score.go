package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/somurie/internal/app"
	"github.com/okian/somurie/internal/config"
)

// cliWaitBudget replaces the HTTP wait budget for one-off scoring.
const cliWaitBudget = 2 * time.Minute

func scoreCmd(cfg func() *config.Config) *cobra.Command {
	var fid int64

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute one creator's score and print it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fid <= 0 {
				return errors.New("--fid must be positive")
			}
			c := cfg()
			c.PollTimeout = cliWaitBudget
			return runScore(cmd.Context(), c, fid, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Int64Var(&fid, "fid", 0, "creator id to score")
	_ = cmd.MarkFlagRequired("fid")
	return cmd
}

func runScore(ctx context.Context, cfg *config.Config, fid int64, out io.Writer) error {
	comps, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = comps.close() }()

	if err := comps.service.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = comps.service.Stop(context.WithoutCancel(ctx)) }()

	res, err := comps.service.RequestScore(ctx, fid)
	if err != nil {
		var pending *service.PendingError
		if errors.As(err, &pending) {
			job, _ := comps.service.Job(pending.JobID)
			return fmt.Errorf("score for %d not ready (job %s, status %s): %w", fid, pending.JobID, job.Status, err)
		}
		return fmt.Errorf("score %d: %w", fid, err)
	}
	return writeJSON(out, res)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

