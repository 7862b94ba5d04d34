package testevents

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/somurie/pkg/logger"
)

// verifyResults checks that every touched creator got a job and that the
// board is ordered by score.
func verifyResults(ctx context.Context, cfg *Config, touched map[int64]struct{}, jobs []Job, board []Entry) error {
	log := logger.Get()

	if missing := missingCreators(touched, jobs); len(missing) > 0 {
		return fmt.Errorf("%d creators got no score job, first %d", len(missing), missing[0])
	}
	if err := verifyLeaderboardOrder(board); err != nil {
		return err
	}

	for _, j := range jobs {
		if j.Status == "failed" {
			log.Warn(ctx, "score job failed",
				logger.String("job_id", j.ID), logger.Int64("fid", j.FID), logger.String("error", j.Error))
		}
	}
	displayTopCreators(ctx, board, cfg.TopN)
	return nil
}

func missingCreators(touched map[int64]struct{}, jobs []Job) []int64 {
	seen := make(map[int64]bool, len(jobs))
	for _, j := range jobs {
		seen[j.FID] = true
	}
	var missing []int64
	for fid := range touched {
		if !seen[fid] {
			missing = append(missing, fid)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

func verifyLeaderboardOrder(board []Entry) error {
	for i := 1; i < len(board); i++ {
		if board[i].OverallScore > board[i-1].OverallScore {
			return fmt.Errorf("leaderboard not sorted: entry %d (%d) above entry %d (%d)",
				i, board[i].OverallScore, i-1, board[i-1].OverallScore)
		}
	}
	return nil
}

func displayTopCreators(ctx context.Context, board []Entry, n int) {
	if len(board) < n {
		n = len(board)
	}
	for i, e := range board[:n] {
		logger.Get().Info(ctx, "leaderboard",
			logger.Int("rank", i+1), logger.Int64("fid", e.FID),
			logger.String("username", e.Username), logger.Int("score", e.OverallScore))
	}
}
