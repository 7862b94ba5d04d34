package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/somurie/internal/config"
	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/internal/domain/signals"
	"github.com/okian/somurie/pkg/logger"
)

const seedPostsPerCreator = 12

var seedHandles = []string{"dwr", "vitalik", "jessepollak", "linda", "ted", "horsefacts", "betashop", "cassie"} //nolint:gochecknoglobals // sample data

func seedCmd(cfg func() *config.Config) *cobra.Command {
	var (
		count int
		first int64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert sample creators and today's scores into the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), cfg(), first, count, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&count, "count", len(seedHandles), "number of creators")
	cmd.Flags().Int64Var(&first, "first-fid", 1, "fid of the first sample creator")
	return cmd
}

func runSeed(ctx context.Context, cfg *config.Config, first int64, count int, out io.Writer) error {
	if count <= 0 || first <= 0 {
		return errors.New("count and first-fid must be positive")
	}
	log := logger.Named("seed")

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	calc, err := newCalculator(store, cfg)
	if err != nil {
		return err
	}

	now := time.Now()
	for i := range count {
		fid := first + int64(i)
		profile, posts := sampleCreator(fid, i, now)
		if err := store.UpsertProfile(ctx, profile); err != nil {
			return fmt.Errorf("seed profile %d: %w", fid, err)
		}
		m := signals.Derive(profile, posts, cfg.MetricsWindowDays, now)
		score, err := calc.CalculateScore(ctx, m)
		if err != nil {
			return fmt.Errorf("seed score %d: %w", fid, err)
		}
		stored, err := store.UpsertScore(ctx, score)
		if err != nil {
			return fmt.Errorf("store score %d: %w", fid, err)
		}
		log.Debug(ctx, "seeded creator", logger.Int64("fid", fid), logger.Int("score", stored.OverallScore))
		_, _ = fmt.Fprintf(out, "%d\t@%s\t%d\t%s\t%s\n",
			fid, profile.Handle, stored.OverallScore, stored.TierName(), stored.ShareableID)
	}
	return nil
}

// sampleCreator derives a deterministic profile and post history for the
// i-th sample creator; later creators are larger and more active.
func sampleCreator(fid int64, i int, now time.Time) (model.CreatorProfile, []model.PostMetric) {
	handle := seedHandles[i%len(seedHandles)]
	if i >= len(seedHandles) {
		handle = fmt.Sprintf("%s%d", handle, i/len(seedHandles))
	}
	scale := i + 1
	profile := model.CreatorProfile{
		ID:              fid,
		Handle:          handle,
		DisplayName:     handle,
		FollowerCount:   50 * scale * scale,
		FollowingCount:  40 + 10*scale,
		HasBadge:        i%3 == 0,
		ReputationScore: float64(i%10) / 10,
	}

	posts := make([]model.PostMetric, 0, seedPostsPerCreator)
	for p := range seedPostsPerCreator {
		posts = append(posts, model.PostMetric{
			ID:          fmt.Sprintf("seed-%d-%d", fid, p),
			Timestamp:   now.Add(-time.Duration(p*(i%4+1)) * 24 * time.Hour),
			LikeCount:   (p%5 + 1) * scale * 3,
			RecastCount: (p % 3) * scale,
			ReplyCount:  (p%4 + 1) * scale,
		})
	}
	return profile, posts
}
