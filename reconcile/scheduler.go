// Package reconcile runs the out-of-band work that follows a call: syncing
// the caller's directory record and contact row when the call is resolved,
// and after it ends logging the interaction, storing its transcript,
// bumping daily counters and invalidating the cache entries it changed.
//
// Jobs run on a bounded worker pool against context.Background(), so a
// caller hanging up never cancels them.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/rolodex/pkg/cache"
	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/eventstream"
	"github.com/papercomputeco/rolodex/pkg/eventstream/nop"
	"github.com/papercomputeco/rolodex/pkg/logger"
	"github.com/papercomputeco/rolodex/pkg/resolver"
	"github.com/papercomputeco/rolodex/pkg/source"
	"github.com/papercomputeco/rolodex/pkg/storage"
	"github.com/papercomputeco/rolodex/pkg/telemetry"
)

var (
	defaultNumWorkers      uint = 3
	defaultJobQueueSize    uint = 256
	defaultMaxTries        uint = 5
	defaultInitialInterval      = 100 * time.Millisecond
	defaultMaxInterval          = 2 * time.Second
	defaultStepTimeout          = 10 * time.Second
)

// Job is one call to reconcile.
type Job struct {
	Key         caller.Key
	Context     *caller.Context
	Interaction storage.Interaction
}

// Inbound reports whether the job is for a call still in progress, which
// has no outcome yet.
func (j Job) Inbound() bool {
	return j.Interaction.Outcome == ""
}

// Config is the configuration options for the scheduler.
type Config struct {
	// Store is the durable store for contacts, interactions and counters.
	Store storage.Driver

	// Directory is the optional directory the caller's record is synced to.
	Directory source.Directory

	// Memory is the optional memory store transcripts are written to.
	Memory source.Memory

	// Cache is the optional cache whose entries the call invalidates.
	Cache *cache.Tiered

	// Assembler, when set with Refresh, rebuilds the full context after
	// invalidation so the next call finds it warm.
	Assembler *resolver.Assembler
	Refresh   bool

	// Publisher receives an event per newly logged interaction. Defaults to
	// a no-op publisher.
	Publisher eventstream.Publisher

	// Scope is the availability scope invalidated on a booking when the
	// interaction does not name one.
	Scope string

	// ContactSource and ContactTags are sent with every directory upsert.
	ContactSource string
	ContactTags   []string

	// Location decides which day a call is counted on. Defaults to UTC.
	Location *time.Location

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// MaxTries bounds the attempts of each step (defaults to 5).
	MaxTries uint

	// InitialInterval and MaxInterval shape the exponential backoff between
	// attempts.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// StepTimeout bounds a single attempt of a step.
	StepTimeout time.Duration

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Now     func() time.Time
}

// Scheduler processes reconciliation jobs asynchronously via a worker pool.
type Scheduler struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

// NewScheduler creates a new Scheduler and starts its worker goroutines.
func NewScheduler(c *Config) (*Scheduler, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("reconciliation requires a store")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.MaxTries == 0 {
		c.MaxTries = defaultMaxTries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = defaultInitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = defaultMaxInterval
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = defaultStepTimeout
	}
	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	s := &Scheduler{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	s.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go s.worker(i)
	}

	return s, nil
}

// Schedule submits a call for reconciliation and returns immediately.
// Returns true if enqueued, false if the queue is full, resulting in the job
// being dropped. An interaction without an outcome is a call in progress
// and only syncs the directory and contact row.
func (s *Scheduler) Schedule(key caller.Key, cctx *caller.Context, in storage.Interaction) bool {
	if in.Key == "" {
		in.Key = key
	}
	job := Job{Key: key, Context: cctx, Interaction: in}

	select {
	case s.queue <- job:
		s.logger.Debug("reconciliation queued",
			"key", string(key),
			"interaction_id", in.ID,
			"outcome", string(in.Outcome),
		)
		return true
	default:
		s.logger.Error("reconciliation not queued, queue full, job dropped",
			"key", string(key),
			"interaction_id", in.ID,
			"outcome", string(in.Outcome),
		)
		s.config.Metrics.ReconcileDropped(context.Background())
		return false
	}
}

// Close stops accepting jobs and waits for queued and in-flight jobs to
// drain. Call this during graceful shutdown after the HTTP server has
// stopped; Schedule must not be called afterwards.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (s *Scheduler) worker(id uint) {
	defer s.wg.Done()
	s.logger.Debug("reconciliation worker started", "worker_id", id)

	for job := range s.queue {
		s.processJob(job)
	}

	s.logger.Debug("reconciliation worker stopped", "worker_id", id)
}
