package publish

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/apacbi/budgetportal/internal/platform/errors"
	"github.com/apacbi/budgetportal/internal/services/portal/domain"
)

// Config controls the coordinator's worker pool and retry behavior.
type Config struct {
	Workers       int
	QueueSize     int
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

const (
	defaultWorkers       = 2
	defaultQueueSize     = 64
	defaultMaxAttempts   = 5
	defaultRetryBackoff  = 2 * time.Second
	defaultRetryMaxDelay = time.Minute
)

func (c Config) normalized() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	return c
}

// Coordinator schedules submission batches onto a bounded worker pool and
// drives each job to a terminal state with bounded, backed-off retries.
type Coordinator struct {
	publisher Publisher
	cfg       Config
	tracer    trace.Tracer

	jobs chan *Job
	quit chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	latest map[domain.Partition]*Job
	closed bool
}

// NewCoordinator starts the worker pool and returns a ready coordinator.
func NewCoordinator(publisher Publisher, cfg Config) (*Coordinator, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	cfg = cfg.normalized()
	c := &Coordinator{
		publisher: publisher,
		cfg:       cfg,
		tracer:    otel.Tracer("budgetportal/publish"),
		jobs:      make(chan *Job, cfg.QueueSize),
		quit:      make(chan struct{}),
		latest:    make(map[domain.Partition]*Job),
	}
	c.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go c.worker()
	}
	return c, nil
}

// Schedule enqueues a batch for background publication and returns its
// handle immediately. The caller is never blocked on the external Publisher.
func (c *Coordinator) Schedule(batch domain.SubmissionBatch) (*Job, error) {
	job := newJob(batch)

	// The enqueue stays under the mutex so Close cannot close the channel
	// between the closed check and the send.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, apperrors.New(apperrors.CodePublish, "publish coordinator is shut down")
	}
	select {
	case c.jobs <- job:
		c.latest[batch.Partition] = job
		return job, nil
	default:
		return nil, apperrors.New(apperrors.CodePublish, "publish queue full")
	}
}

// LatestJob returns the most recent job scheduled for a partition, if any.
// This is the out-of-band hook for observing terminal publish failures.
func (c *Coordinator) LatestJob(p domain.Partition) (*Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.latest[p]
	return job, ok
}

// Close stops accepting work and waits for queued jobs to reach a terminal
// state. Jobs interrupted mid-backoff fail immediately instead of waiting
// out their delay.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.jobs)
	close(c.quit)
	c.wg.Wait()
}

func (c *Coordinator) worker() {
	defer c.wg.Done()
	for job := range c.jobs {
		c.run(job)
	}
}

// run drives one job to a terminal state. The batch is already committed
// locally; only delivery to the external dataset is at stake here.
func (c *Coordinator) run(job *Job) {
	ctx, span := c.tracer.Start(context.Background(), "publish.batch",
		trace.WithAttributes(
			attribute.String("portal.partition", job.batch.Partition.String()),
			attribute.Int("portal.rows", len(job.batch.Rows)),
		),
	)
	defer span.End()

	job.markRunning()

	var err error
	pushed := false
	delay := c.cfg.RetryBackoff
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		err = c.attempt(ctx, job, &pushed)
		if err == nil {
			break
		}
		log.Printf("publish attempt %d/%d for %s failed: %v",
			attempt, c.cfg.MaxAttempts, job.batch.Partition, err)
		if attempt == c.cfg.MaxAttempts {
			break
		}
		if !c.sleep(delay) {
			err = apperrors.Wrap(apperrors.CodePublish, "publish interrupted by shutdown", err)
			break
		}
		delay *= 2
		if delay > c.cfg.RetryMaxDelay {
			delay = c.cfg.RetryMaxDelay
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		log.Printf("publish for %s terminally failed: %v", job.batch.Partition, err)
	} else {
		log.Printf("published %d rows for %s", len(job.batch.Rows), job.batch.Partition)
	}
	job.finish(err)
}

// attempt pushes then refreshes, resuming from the refresh step when a prior
// attempt already pushed successfully.
func (c *Coordinator) attempt(ctx context.Context, job *Job, pushed *bool) error {
	if !*pushed {
		if err := c.publisher.Push(ctx, job.batch.Rows); err != nil {
			return fmt.Errorf("push rows: %w", err)
		}
		*pushed = true
	}
	if err := c.publisher.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh dataset: %w", err)
	}
	return nil
}

// sleep waits for the backoff delay; returns false if shutdown interrupted it.
func (c *Coordinator) sleep(delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.quit:
		return false
	}
}
