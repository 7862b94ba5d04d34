// Package service wires the score pipeline together: the job scheduler that
// computes and persists scores, and the read/write operations the HTTP API
// exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/okian/somurie/internal/adapters/mq/queue"
	"github.com/okian/somurie/internal/adapters/mq/worker"
	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/internal/domain/signals"
	"github.com/okian/somurie/pkg/logger"
	"github.com/okian/somurie/pkg/metrics"
)

// Default scheduler configuration constants.
const (
	defaultJobAttempts     = 3
	defaultJobRetention    = time.Hour
	defaultMaxRetainedJobs = 10_000
	defaultBatchHour       = 2
	defaultNotifyTimeout   = 30 * time.Second
	evictInterval          = time.Minute
	jobRetryInitial        = time.Second
	jobRetryMax            = 30 * time.Second
)

// MetricsSource yields raw metrics for a creator.
type MetricsSource interface {
	GetUserMetrics(ctx context.Context, fid int64, windowDays int) (*model.RawMetrics, error)
}

// Calculator turns raw metrics into a score.
type Calculator interface {
	CalculateScore(ctx context.Context, m *model.RawMetrics) (model.CreatorScore, error)
}

// ScoreWriter is the persistence the scheduler writes to.
type ScoreWriter interface {
	UpsertScore(ctx context.Context, s model.CreatorScore) (model.CreatorScore, error)
	UpsertProfile(ctx context.Context, p model.CreatorProfile) error
	CreateProfileIfAbsent(ctx context.Context, p model.CreatorProfile) (bool, error)
	ListCreatorIDs(ctx context.Context) ([]int64, error)
}

// ScoreNotifier is told about every freshly stored score.
type ScoreNotifier interface {
	ScoreUpdated(ctx context.Context, s model.CreatorScore) error
}

// SchedulerStats is a point-in-time view of the scheduler.
type SchedulerStats struct {
	QueueLength  int                     `json:"queueLength"`
	RetainedJobs int                     `json:"retainedJobs"`
	Workers      int                     `json:"workers"`
	ByStatus     map[model.JobStatus]int `json:"byStatus"`
	NextBatch    time.Time               `json:"nextBatch"`
}

// Scheduler runs score jobs in priority order on a worker pool. Jobs of the
// same creator never run concurrently.
type Scheduler struct {
	source     MetricsSource
	calc       Calculator
	store      ScoreWriter
	notifier   ScoreNotifier
	queue      *queue.PriorityQueue
	pool       *worker.Pool
	locks      *worker.KeyedMutex[int64]
	log        logger.Logger
	now        func() time.Time
	loc        *time.Location
	newBackOff func() backoff.BackOff

	workers       int
	queueCapacity int
	attempts      int
	windowDays    int
	retention     time.Duration
	maxRetained   int
	batchHour     int
	notifyTimeout time.Duration

	mu   sync.RWMutex
	jobs map[string]*model.Job

	stop    context.CancelFunc
	loops   sync.WaitGroup
	pending sync.WaitGroup
	started bool
}

// NewScheduler creates a scheduler. Start must be called before jobs run.
func NewScheduler(source MetricsSource, calc Calculator, store ScoreWriter, opts ...SchedulerOption) (*Scheduler, error) {
	if source == nil || calc == nil || store == nil {
		return nil, errors.New("scheduler needs a metrics source, calculator and store")
	}
	s := &Scheduler{
		source:        source,
		calc:          calc,
		store:         store,
		log:           logger.Nop(),
		now:           time.Now,
		loc:           time.UTC,
		newBackOff:    defaultJobBackOff,
		workers:       1,
		attempts:      defaultJobAttempts,
		retention:     defaultJobRetention,
		maxRetained:   defaultMaxRetainedJobs,
		batchHour:     defaultBatchHour,
		notifyTimeout: defaultNotifyTimeout,
		jobs:          make(map[string]*model.Job),
		locks:         worker.NewKeyedMutex[int64](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = queue.NewPriorityQueue(queue.WithCapacity(s.queueCapacity), queue.WithClock(s.now))
	s.pool = worker.NewPool(s.workers, s.queue, s, worker.WithName("job"), worker.WithLogger(s.log))
	return s, nil
}

func defaultJobBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = jobRetryInitial
	b.MaxInterval = jobRetryMax
	return b
}

// Start launches the workers, the daily batch and job eviction.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.pool.Start(ctx)

	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		s.loop(loopCtx)
	}()
	s.log.Info(ctx, "scheduler started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("batch_hour", s.batchHour),
		logger.String("timezone", s.loc.String()))
}

// Shutdown stops accepting jobs, lets in-flight jobs finish and waits for
// pending notifications.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	stop, started := s.stop, s.started
	s.mu.Unlock()
	if !started {
		return s.queue.Close()
	}
	stop()
	s.loops.Wait()

	err := s.pool.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, fmt.Errorf("waiting for notifications: %w", ctx.Err()))
	}
	return err
}

// Enqueue registers a job for fid and queues it. Higher priorities run first;
// equal priorities run in submission order.
func (s *Scheduler) Enqueue(ctx context.Context, fid int64, priority int) (string, error) {
	if fid <= 0 {
		return "", invalid("fid must be positive, got %d", fid)
	}
	now := s.now()
	job := &model.Job{
		ID:        uuid.NewString(),
		CreatorID: fid,
		Priority:  priority,
		Status:    model.JobQueued,
		CreatedAt: now,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	if !s.queue.Enqueue(ctx, queue.Item{ID: job.ID, Priority: priority, EnqueuedAt: now}) {
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		if s.queue.IsClosed() {
			return "", ErrClosed
		}
		return "", ErrQueueFull
	}

	metrics.RecordJobEnqueued(strconv.Itoa(priority))
	s.log.Debug(ctx, "job queued",
		logger.String("job_id", job.ID),
		logger.Int64("fid", fid),
		logger.Int("priority", priority))
	return job.ID, nil
}

// Handle runs the pipeline of one dequeued job.
func (s *Scheduler) Handle(ctx context.Context, it queue.Item) error {
	fid, ok := s.begin(it.ID)
	if !ok {
		s.log.Warn(ctx, "dequeued unknown job", logger.String("job_id", it.ID))
		return nil
	}

	unlock := s.locks.Lock(fid)
	defer unlock()

	score, err := s.pipeline(ctx, it.ID, fid)
	s.finish(ctx, it.ID, score, err)
	return err
}

// HandlePanic fails a job whose pipeline panicked.
func (s *Scheduler) HandlePanic(ctx context.Context, it queue.Item, err error) {
	s.finish(ctx, it.ID, model.CreatorScore{}, err)
}

// pipeline fetches, scores and persists under the job attempt budget.
// Degraded metrics count as a failed attempt until the last one, which
// stores a provisional score instead.
func (s *Scheduler) pipeline(ctx context.Context, jobID string, fid int64) (model.CreatorScore, error) {
	log := s.log.With(logger.String("job_id", jobID), logger.Int64("fid", fid))
	attempt := 0

	return backoff.Retry(ctx, func() (model.CreatorScore, error) {
		attempt++
		s.setAttempts(jobID, attempt)

		m, err := s.source.GetUserMetrics(ctx, fid, s.windowDays)
		if err != nil {
			return model.CreatorScore{}, backoff.Permanent(fmt.Errorf("fetch metrics: %w", err))
		}
		if m.Degraded && attempt < s.attempts {
			return model.CreatorScore{}, errDegraded
		}

		score, err := s.calc.CalculateScore(ctx, m)
		if err != nil {
			return model.CreatorScore{}, fmt.Errorf("calculate score: %w", err)
		}
		stored, err := s.store.UpsertScore(ctx, score)
		if err != nil {
			return model.CreatorScore{}, fmt.Errorf("store score: %w", err)
		}

		if m.Degraded {
			log.Warn(ctx, "stored provisional score from degraded metrics")
			if _, err := s.store.CreateProfileIfAbsent(ctx, model.CreatorProfile{ID: fid}); err != nil {
				return model.CreatorScore{}, fmt.Errorf("store placeholder profile: %w", err)
			}
		} else if err := s.store.UpsertProfile(ctx, m.Profile()); err != nil {
			return model.CreatorScore{}, fmt.Errorf("store profile: %w", err)
		}
		return stored, nil
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(s.attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.RecordJobRetry()
			log.Info(ctx, "retrying job", logger.Error(err), logger.Duration("backoff", next))
		}),
	)
}

func (s *Scheduler) begin(id string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != model.JobQueued {
		return 0, false
	}
	started := s.now()
	job.Status = model.JobProcessing
	job.StartedAt = &started
	return job.CreatorID, true
}

func (s *Scheduler) setAttempts(id string, n int) {
	s.mu.Lock()
	if job, ok := s.jobs[id]; ok {
		job.Attempts = n
	}
	s.mu.Unlock()
}

func (s *Scheduler) finish(ctx context.Context, id string, score model.CreatorScore, err error) {
	finished := s.now()

	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	fid := job.CreatorID
	job.FinishedAt = &finished
	if err != nil {
		job.Status = model.JobFailed
		job.Error = err.Error()
		if errors.Is(err, signals.ErrUnknownCreator) {
			job.ErrorCode = model.JobErrUnknownCreator
		}
	} else {
		job.Status = model.JobCompleted
		result := score
		job.Result = &result
	}
	var elapsed time.Duration
	if job.StartedAt != nil {
		elapsed = finished.Sub(*job.StartedAt)
	}
	s.evictLocked(finished)
	retained := len(s.jobs)
	s.mu.Unlock()

	metrics.RecordJobFinished(string(job.Status), float64(elapsed.Milliseconds()))
	metrics.UpdateRetainedJobs(retained)

	log := s.log.With(logger.String("job_id", id), logger.Int64("fid", fid))
	if err != nil {
		metrics.RecordErrorByComponent("scheduler", "job_failed")
		log.Error(ctx, "job failed", logger.Error(err))
		return
	}
	metrics.RecordScore(score.OverallScore, score.Provisional)
	log.Info(ctx, "job completed",
		logger.Int("score", score.OverallScore),
		logger.Int("tier", score.Tier),
		logger.Bool("provisional", score.Provisional),
		logger.Duration("elapsed", elapsed))
	s.notify(ctx, score)
}

// notify hands the score to the notifier without blocking the worker.
func (s *Scheduler) notify(ctx context.Context, score model.CreatorScore) {
	if s.notifier == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.RecordErrorByComponent("scheduler", "notify_panic")
				s.log.Error(ctx, "score notifier panicked",
					logger.Int64("fid", score.CreatorID), logger.Any("panic", r))
			}
		}()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.ScoreUpdated(nctx, score); err != nil {
			s.log.Warn(nctx, "score notification failed",
				logger.Int64("fid", score.CreatorID), logger.Error(err))
		}
	}()
}

// Job returns a copy of the job with id.
func (s *Scheduler) Job(id string) (model.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return *job, true
}

// ListJobs returns every retained job, oldest first.
func (s *Scheduler) ListJobs() []model.Job {
	s.mu.RLock()
	out := make([]model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Evict drops expired terminal jobs and returns how many remain.
func (s *Scheduler) Evict() int {
	s.mu.Lock()
	s.evictLocked(s.now())
	n := len(s.jobs)
	s.mu.Unlock()
	metrics.UpdateRetainedJobs(n)
	return n
}

// evictLocked removes terminal jobs older than the retention, then the
// oldest terminal jobs while over the cap. Live jobs are never evicted.
func (s *Scheduler) evictLocked(now time.Time) {
	var terminal []*model.Job
	for id, job := range s.jobs {
		if !job.Status.Terminal() || job.FinishedAt == nil {
			continue
		}
		if s.retention > 0 && now.Sub(*job.FinishedAt) > s.retention {
			delete(s.jobs, id)
			continue
		}
		terminal = append(terminal, job)
	}

	excess := len(s.jobs) - s.maxRetained
	if s.maxRetained <= 0 || excess <= 0 {
		return
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].FinishedAt.Before(*terminal[j].FinishedAt)
	})
	for i := 0; i < excess && i < len(terminal); i++ {
		delete(s.jobs, terminal[i].ID)
	}
}

// RunBatch queues a zero-priority job for every known creator.
func (s *Scheduler) RunBatch(ctx context.Context) (int, error) {
	ids, err := s.store.ListCreatorIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list creators: %w", err)
	}
	queued := 0
	for _, id := range ids {
		if _, err := s.Enqueue(ctx, id, model.PriorityBatch); err != nil {
			return queued, fmt.Errorf("enqueue %d: %w", id, err)
		}
		queued++
	}
	return queued, nil
}

// NextBatch returns the first batch time strictly after t.
func (s *Scheduler) NextBatch(t time.Time) time.Time {
	local := t.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.batchHour, 0, 0, 0, s.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) loop(ctx context.Context) {
	evict := time.NewTicker(evictInterval)
	defer evict.Stop()

	next := s.NextBatch(s.now())
	batch := time.NewTimer(next.Sub(s.now()))
	defer batch.Stop()
	s.log.Info(ctx, "daily batch scheduled", logger.String("at", next.Format(time.RFC3339)))

	for {
		select {
		case <-ctx.Done():
			return
		case <-evict.C:
			s.Evict()
		case <-batch.C:
			n, err := s.RunBatch(ctx)
			if err != nil {
				metrics.RecordErrorByComponent("scheduler", "batch")
				s.log.Error(ctx, "daily batch failed", logger.Int("queued", n), logger.Error(err))
			} else {
				s.log.Info(ctx, "daily batch queued", logger.Int("queued", n))
			}
			next = s.NextBatch(s.now())
			batch.Reset(next.Sub(s.now()))
		}
	}
}

// Stats returns a snapshot of queue and job state.
func (s *Scheduler) Stats(ctx context.Context) SchedulerStats {
	s.mu.RLock()
	by := make(map[model.JobStatus]int, 4)
	for _, job := range s.jobs {
		by[job.Status]++
	}
	retained := len(s.jobs)
	s.mu.RUnlock()

	return SchedulerStats{
		QueueLength:  s.queue.Len(ctx),
		RetainedJobs: retained,
		Workers:      s.pool.Size(),
		ByStatus:     by,
		NextBatch:    s.NextBatch(s.now()),
	}
}
