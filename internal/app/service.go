package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/somurie/internal/adapters/repository"
	"github.com/okian/somurie/internal/domain/dedupe"
	"github.com/okian/somurie/internal/domain/loan"
	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/pkg/logger"
	"github.com/okian/somurie/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultPollInterval = 500 * time.Millisecond
	defaultPollTimeout  = 10 * time.Second
	defaultShareBase    = "/share/"
)

// Jobs is the scheduler as seen by the service.
type Jobs interface {
	Enqueue(ctx context.Context, fid int64, priority int) (string, error)
	Job(id string) (model.Job, bool)
	ListJobs() []model.Job
	Stats(ctx context.Context) SchedulerStats
	Start(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// MetricsReader reads and invalidates cached creator metrics.
type MetricsReader interface {
	GetUserMetrics(ctx context.Context, fid int64, windowDays int) (*model.RawMetrics, error)
	Invalidate(fid int64)
	Size() int
}

// LoadReporter reports outbound request load.
type LoadReporter interface {
	CurrentLoad() int
	Limit() int
}

// ScoreView is a score joined with the creator's display fields.
type ScoreView struct {
	model.CreatorScore
	TierLabel     string `json:"tierName"`
	Username      string `json:"username"`
	FollowerCount int    `json:"followerCount"`
}

// ScoreResult is a ready score with its loan terms and share link.
type ScoreResult struct {
	Score     ScoreView  `json:"score"`
	LoanTerms loan.Terms `json:"loanTerms"`
	ShareURL  string     `json:"shareUrl"`
}

// Service implements the API dependencies of the creator score system.
type Service struct {
	store      repository.Store
	jobs       Jobs
	fetcher    MetricsReader
	challenges Challenger
	deduper    dedupe.Deduper
	limiter    LoadReporter

	pollInterval  time.Duration
	pollTimeout   time.Duration
	shareBase     string
	webhookSecret string
	now           func() time.Time
	loc           *time.Location

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service over already built components.
func New(store repository.Store, jobs Jobs, fetcher MetricsReader, opts ...Option) (*Service, error) {
	if store == nil || jobs == nil || fetcher == nil {
		return nil, errors.New("service needs a store, scheduler and metrics reader")
	}
	s := &Service{
		store:        store,
		jobs:         jobs,
		fetcher:      fetcher,
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
		shareBase:    defaultShareBase,
		now:          time.Now,
		loc:          time.UTC,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper()
	}
	return s, nil
}

// Start launches the scheduler and, when the metrics reader supports it,
// its cache sweeper.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.jobs.Start(runCtx)
	if r, ok := s.fetcher.(interface{ Run(context.Context) }); ok {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			r.Run(runCtx)
		}()
	}
	s.started = true
	s.logger.Info(ctx, "score service started")
	return nil
}

// Stop shuts the scheduler down and waits for background loops.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	err := s.jobs.Shutdown(ctx)
	s.cancel()
	s.wg.Wait()
	s.started = false
	s.logger.Info(ctx, "score service stopped")
	return err
}

func (s *Service) today() time.Time {
	return model.StartOfDay(s.now(), s.loc)
}

// ShareURL returns the public link of a shareable id.
func (s *Service) ShareURL(id string) string {
	return s.shareBase + id
}

// RequestScore returns today's score of fid, computing it if needed. When
// the wait budget runs out first a *PendingError carrying the job id is
// returned; the job keeps running.
func (s *Service) RequestScore(ctx context.Context, fid int64) (ScoreResult, error) {
	if fid <= 0 {
		return ScoreResult{}, invalid("fid must be positive, got %d", fid)
	}
	day := s.today()

	existing, found, err := s.store.FindScore(ctx, fid, day)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("find score: %w", err)
	}
	if found && existing.ValidAt(s.now()) && !existing.Provisional {
		return s.result(ctx, existing)
	}

	jobID, err := s.jobs.Enqueue(ctx, fid, model.PriorityInteractive)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("enqueue score job: %w", err)
	}

	score, err := s.await(ctx, jobID, fid, day)
	if err != nil {
		return ScoreResult{}, err
	}
	return s.result(ctx, score)
}

// await polls for the job's score until the budget runs out.
func (s *Service) await(ctx context.Context, jobID string, fid int64, day time.Time) (model.CreatorScore, error) {
	deadline := time.NewTimer(s.pollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return model.CreatorScore{}, fmt.Errorf("waiting for job %s: %w", jobID, ctx.Err())
		case <-deadline.C:
			return model.CreatorScore{}, &PendingError{JobID: jobID}
		case <-ticker.C:
			score, done, err := s.poll(ctx, jobID, fid, day)
			if err != nil || done {
				return score, err
			}
		}
	}
}

// poll accepts a final same-day score, or the result of the job once it
// completed. A failed job ends the wait early; an unknown creator is not
// found rather than pending.
func (s *Service) poll(ctx context.Context, jobID string, fid int64, day time.Time) (model.CreatorScore, bool, error) {
	score, found, err := s.store.FindScore(ctx, fid, day)
	if err != nil {
		return model.CreatorScore{}, false, fmt.Errorf("poll score: %w", err)
	}
	if found && !score.Provisional {
		return score, true, nil
	}

	job, ok := s.jobs.Job(jobID)
	if !ok {
		return model.CreatorScore{}, false, nil
	}
	switch job.Status {
	case model.JobCompleted:
		if job.Result != nil {
			return *job.Result, true, nil
		}
		return score, found, nil
	case model.JobFailed:
		if job.ErrorCode == model.JobErrUnknownCreator {
			return model.CreatorScore{}, false, notFound("Creator not found")
		}
		s.logger.Warn(ctx, "score job failed while waiting",
			logger.String("job_id", jobID), logger.String("error", job.Error))
		return model.CreatorScore{}, false, &PendingError{JobID: jobID}
	default:
		return model.CreatorScore{}, false, nil
	}
}

func (s *Service) result(ctx context.Context, score model.CreatorScore) (ScoreResult, error) {
	view, err := s.view(ctx, score)
	if err != nil {
		return ScoreResult{}, err
	}
	return ScoreResult{
		Score:     view,
		LoanTerms: loan.For(score),
		ShareURL:  s.ShareURL(score.ShareableID),
	}, nil
}

func (s *Service) view(ctx context.Context, score model.CreatorScore) (ScoreView, error) {
	profile, err := s.store.Profile(ctx, score.CreatorID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return ScoreView{}, fmt.Errorf("load profile: %w", err)
	}
	profile.ID = score.CreatorID
	return ScoreView{
		CreatorScore:  score,
		TierLabel:     score.TierName(),
		Username:      profile.DisplayHandle(),
		FollowerCount: profile.FollowerCount,
	}, nil
}

// GetScoreByCreator returns today's score of fid.
func (s *Service) GetScoreByCreator(ctx context.Context, fid int64) (ScoreView, error) {
	if fid <= 0 {
		return ScoreView{}, invalid("fid must be positive, got %d", fid)
	}
	score, found, err := s.store.FindScore(ctx, fid, s.today())
	if err != nil {
		return ScoreView{}, fmt.Errorf("find score: %w", err)
	}
	if !found {
		return ScoreView{}, notFound("Score not found")
	}
	return s.view(ctx, score)
}

// GetScoreByShareableID returns the score behind a share link with its loan
// terms.
func (s *Service) GetScoreByShareableID(ctx context.Context, id string) (ScoreResult, error) {
	if id == "" {
		return ScoreResult{}, invalid("shareable id is required")
	}
	score, err := s.store.ScoreByShareableID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ScoreResult{}, notFound("Score not found")
	}
	if err != nil {
		return ScoreResult{}, fmt.Errorf("find shared score: %w", err)
	}
	return s.result(ctx, score)
}

// ListJobs returns the retained jobs, oldest first.
func (s *Service) ListJobs() []model.Job {
	return s.jobs.ListJobs()
}

// Job returns one retained job.
func (s *Service) Job(id string) (model.Job, error) {
	job, ok := s.jobs.Job(id)
	if !ok {
		return model.Job{}, notFound("Job not found")
	}
	return job, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	js := s.jobs.Stats(ctx)
	stats := map[string]interface{}{
		"started":          started,
		"queueLength":      js.QueueLength,
		"retainedJobs":     js.RetainedJobs,
		"workers":          js.Workers,
		"jobsByStatus":     js.ByStatus,
		"nextBatch":        js.NextBatch,
		"metricsCacheSize": s.fetcher.Size(),
		"dedupeSize":       s.deduper.Size(),
	}
	if s.limiter != nil {
		load := s.limiter.CurrentLoad()
		stats["rateLimiterLoad"] = load
		stats["rateLimit"] = s.limiter.Limit()
		metrics.UpdateRateLimiterLoad(load)
	}

	metrics.UpdateQueueDepth(js.QueueLength)
	metrics.UpdateRetainedJobs(js.RetainedJobs)
	metrics.UpdateCacheSize(s.fetcher.Size())
	return stats
}
