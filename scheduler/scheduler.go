// Package scheduler runs the periodic maintenance jobs: voucher expiry, access window
// sweep and stale payment cleanup.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"go-hotspot/metrics"
)

// JobFunc does one pass of a job and returns a JSON-friendly summary.
type JobFunc func(ctx context.Context, now time.Time) (any, error)

type Result struct {
	Job     string `json:"job"`
	Summary any    `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

type job struct {
	name string
	fn   JobFunc
}

type Scheduler struct {
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu   sync.Mutex
	jobs []job
	cron *cron.Cron
}

func New(clock clockwork.Clock, logger *zap.Logger, m *metrics.Metrics, timeout time.Duration) *Scheduler {
	return &Scheduler{
		clock:   clock,
		logger:  logger.Named("scheduler"),
		metrics: m,
		timeout: timeout,
	}
}

// Register adds a job. Jobs run in registration order.
func (s *Scheduler) Register(name string, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job{name: name, fn: fn})
}

// RunAll runs every job once. A failing job does not stop the ones after it.
func (s *Scheduler) RunAll(ctx context.Context) []Result {
	s.mu.Lock()
	jobs := append([]job(nil), s.jobs...)
	s.mu.Unlock()

	now := s.clock.Now().UTC()
	results := make([]Result, 0, len(jobs))
	for _, j := range jobs {
		results = append(results, s.run(ctx, j, now))
	}
	return results
}

func (s *Scheduler) run(ctx context.Context, j job, now time.Time) Result {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	summary, err := j.fn(ctx, now)
	s.metrics.JobRun(j.name, err)

	r := Result{Job: j.name, Summary: summary}
	if err != nil {
		r.Error = err.Error()
		s.logger.Error("job failed", zap.String("job", j.name), zap.Error(err))
	} else {
		s.logger.Debug("job finished", zap.String("job", j.name), zap.Any("summary", summary))
	}
	return r
}

// Start runs RunAll on the cron spec until Stop. Overlapping runs are skipped.
func (s *Scheduler) Start(spec string) error {
	logger := cron.PrintfLogger(zap.NewStdLog(s.logger))
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() { s.RunAll(context.Background()) }); err != nil {
		return err
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	s.logger.Info("scheduler started", zap.String("schedule", spec))
	return nil
}

// Stop waits for a running pass to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
