package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/subflow/subflow/internal/lock"
	"github.com/subflow/subflow/internal/logger"
	"github.com/subflow/subflow/internal/types"
)

// JobConfig describes a named repeating job. Jobs are registered once at
// process start and never mutated.
type JobConfig struct {
	// Name uniquely identifies the job within the scheduler.
	Name string
	// Interval between repeating invocations. Must be positive.
	Interval time.Duration
	// InitialDelay before the first invocation when RunOnStart is set.
	InitialDelay time.Duration
	// RunOnStart schedules one invocation at start in addition to the
	// repeating ticker. Defaults to true when nil.
	RunOnStart *bool
	// LockKey, when set, makes each tick acquire a distributed lock before
	// running so only one process executes the job at a time.
	LockKey string
	// LockTTL bounds how long a crashed process can wedge the job.
	LockTTL time.Duration
	// Handler does the work. Failures are logged, never propagated.
	Handler func(ctx context.Context) error
}

type job struct {
	cfg     JobConfig
	running bool
}

// Scheduler runs named repeating jobs on their own timers with in-process
// overlap protection and optional cross-process locking.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	started bool
	stopCh  chan struct{}

	lockStore lock.Store
	log       *logger.Logger
	clock     types.Clock
}

// New creates a scheduler. lockStore may be nil when no registered job uses a
// lock key.
func New(lockStore lock.Store, log *logger.Logger, clock types.Clock) *Scheduler {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Scheduler{
		jobs:      make(map[string]*job),
		lockStore: lockStore,
		log:       log,
		clock:     clock,
	}
}

// Register adds a job. Duplicate names, non-positive intervals and
// registration after start are rejected with a logged warning; nothing
// escapes to the caller.
func (s *Scheduler) Register(cfg JobConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Name == "" || cfg.Handler == nil {
		s.log.Warnw("rejecting job registration with missing name or handler", "name", cfg.Name)
		return
	}
	if cfg.Interval <= 0 {
		s.log.Warnw("rejecting job registration with non-positive interval",
			"name", cfg.Name,
			"interval", cfg.Interval)
		return
	}
	if s.started {
		s.log.Warnw("rejecting job registration after scheduler start", "name", cfg.Name)
		return
	}
	if _, exists := s.jobs[cfg.Name]; exists {
		s.log.Warnw("rejecting duplicate job registration", "name", cfg.Name)
		return
	}

	s.jobs[cfg.Name] = &job{cfg: cfg}
	s.log.Infow("registered job",
		"name", cfg.Name,
		"interval", cfg.Interval,
		"lock_key", cfg.LockKey)
}

// Start begins all registered jobs. Calling it twice logs a warning and has
// no further effect.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		s.log.Warnw("scheduler already started")
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	stopCh := s.stopCh
	s.mu.Unlock()

	for _, j := range jobs {
		if lo.FromPtrOr(j.cfg.RunOnStart, true) {
			go s.runAfterDelay(j, stopCh)
		}
		go s.runTicker(j, stopCh)
	}

	s.log.Infow("scheduler started", "job_count", len(jobs))
}

// Stop cancels all timers and clears running state. It does not wait for
// in-flight handlers to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	close(s.stopCh)
	for _, j := range s.jobs {
		j.running = false
	}
	s.log.Infow("scheduler stopped")
}

// JobCount returns the number of registered jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) runAfterDelay(j *job, stopCh <-chan struct{}) {
	timer := time.NewTimer(j.cfg.InitialDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		s.tick(j)
	case <-stopCh:
	}
}

func (s *Scheduler) runTicker(j *job, stopCh <-chan struct{}) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(j)
		case <-stopCh:
			return
		}
	}
}

// tick executes one invocation of the job. A failing or panicking handler
// never affects other jobs or crashes the process.
func (s *Scheduler) tick(j *job) {
	if !s.markRunning(j) {
		s.log.Warnw("skipping tick, previous invocation still running", "name", j.cfg.Name)
		return
	}
	defer s.unmarkRunning(j)

	ctx := types.SetRequestID(context.Background(), types.GenerateULID())

	var token string
	if j.cfg.LockKey != "" {
		if s.lockStore == nil {
			s.log.Warnw("skipping tick, job declares a lock key but scheduler has no lock store",
				"name", j.cfg.Name)
			return
		}

		var err error
		token, err = s.lockStore.Acquire(ctx, j.cfg.LockKey, j.cfg.LockTTL)
		if err != nil {
			// Correctness over availability: never run unlocked.
			s.log.Warnw("skipping tick, lock store unreachable",
				"name", j.cfg.Name,
				"lock_key", j.cfg.LockKey,
				"error", err)
			return
		}
		if token == "" {
			s.log.Infow("skipping tick, lock held by another process",
				"name", j.cfg.Name,
				"lock_key", j.cfg.LockKey)
			return
		}

		defer func() {
			if _, err := s.lockStore.Release(ctx, j.cfg.LockKey, token); err != nil {
				s.log.Warnw("failed to release job lock",
					"name", j.cfg.Name,
					"lock_key", j.cfg.LockKey,
					"error", err)
			}
		}()
	}

	start := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("job handler panicked",
				"name", j.cfg.Name,
				"panic", r)
		}
	}()

	if err := j.cfg.Handler(ctx); err != nil {
		s.log.Errorw("job handler failed",
			"name", j.cfg.Name,
			"duration", s.clock.Now().Sub(start),
			"error", err)
		return
	}

	s.log.Debugw("job handler completed",
		"name", j.cfg.Name,
		"duration", s.clock.Now().Sub(start))
}

func (s *Scheduler) markRunning(j *job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.running {
		return false
	}
	j.running = true
	return true
}

func (s *Scheduler) unmarkRunning(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.running = false
}
