package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// shutdownGrace bounds how long the scheduler waits for cancelled bodies to
// wind down before abandoning them.
const shutdownGrace = 1 * time.Second

// Scheduler owns a set of jobs and drives them through one orchestration:
// ready jobs are launched concurrently, completions admit their successors,
// and the whole run is subject to an optional concurrency window, an
// optional global timeout and the critical-failure policy.
type Scheduler struct {
	mu            sync.Mutex
	jobs          []*Job
	members       map[*Job]struct{}
	verbose       bool
	logger        Logger
	orchestrating bool
	cycle         []*Job
}

// NewScheduler creates a scheduler owning the given items. Jobs are added
// directly; sequences contribute all their members and stay bound so later
// appends register here too.
func NewScheduler(items ...Requirement) *Scheduler {
	s := &Scheduler{
		members: make(map[*Job]struct{}),
		logger:  NewDefaultLogger(),
	}
	_ = s.Add(items...)
	return s
}

// SetLogger sets a custom logger.
func (s *Scheduler) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetVerbose controls whether orchestration progress is emitted at info
// level rather than debug.
func (s *Scheduler) SetVerbose(verbose bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verbose = verbose
}

// Add inserts jobs into the scheduler. A *Job is added directly, a
// *Sequence binds itself and adds every entry, and a Group adds each
// member. Duplicates collapse by identity. Adding while an orchestration is
// in progress is unsupported.
func (s *Scheduler) Add(items ...Requirement) error {
	s.mu.Lock()
	busy := s.orchestrating
	s.mu.Unlock()
	if busy {
		s.logger.Error("job set mutated during orchestration, ignored")
		return ErrOrchestrating
	}

	for _, item := range items {
		switch v := item.(type) {
		case nil:
		case *Job:
			s.addJob(v)
		case *Sequence:
			if v != nil {
				v.bind(s)
			}
		case Group:
			if err := s.Add(v...); err != nil {
				return err
			}
		default:
			for _, j := range flatten([]Requirement{item}) {
				s.addJob(j)
			}
		}
	}
	return nil
}

// Update inserts many items at once; it is Add under the name the rest of
// the API family uses for bulk insertion.
func (s *Scheduler) Update(items ...Requirement) error {
	return s.Add(items...)
}

func (s *Scheduler) addJob(j *Job) {
	if j == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, in := s.members[j]; in {
		return
	}
	s.members[j] = struct{}{}
	s.jobs = append(s.jobs, j)
}

// Jobs returns a read-only snapshot of the owned jobs in insertion order.
func (s *Scheduler) Jobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Reset returns every owned job to idle with no outcome, making the
// scheduler reusable for another orchestration.
func (s *Scheduler) Reset() error {
	s.mu.Lock()
	if s.orchestrating {
		s.mu.Unlock()
		return ErrOrchestrating
	}
	members := make([]*Job, len(s.jobs))
	copy(members, s.jobs)
	s.cycle = nil
	s.mu.Unlock()

	for _, j := range members {
		j.reset()
	}
	return nil
}

// emit logs orchestration progress, at info level when verbose.
func (s *Scheduler) emit(msg string, keysAndValues ...interface{}) {
	if s.verbose {
		s.logger.Info(msg, keysAndValues...)
	} else {
		s.logger.Debug(msg, keysAndValues...)
	}
}

// OrchestrateOption configures one orchestration run.
type OrchestrateOption func(*orchestrateConfig)

type orchestrateConfig struct {
	timeout time.Duration
	window  int
	err     error
}

// WithTimeout bounds the wall-clock duration of the whole orchestration.
// On expiry all in-flight bodies are cancelled and Orchestrate returns
// false.
func WithTimeout(d time.Duration) OrchestrateOption {
	return func(c *orchestrateConfig) {
		if d < 0 {
			c.err = ErrBadTimeout
			return
		}
		c.timeout = d
	}
}

// WithWindow bounds the number of concurrently running jobs. Zero means
// unbounded.
func WithWindow(n int) OrchestrateOption {
	return func(c *orchestrateConfig) {
		if n < 0 {
			c.err = ErrBadWindow
			return
		}
		c.window = n
	}
}

// completion carries a finished body back to the orchestration goroutine.
type completion struct {
	job    *Job
	result interface{}
	err    error
}

// Orchestrate validates the graph and runs the job set to completion. It
// returns true when every non-forever job finished without a critical
// raise, false on a cycle, a timeout, a critical failure or external
// cancellation through ctx. Raised errors never escape; inspect per-job
// outcomes afterwards.
func (s *Scheduler) Orchestrate(ctx context.Context, opts ...OrchestrateOption) bool {
	cfg := &orchestrateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.err != nil {
		s.logger.Error("invalid orchestration options", "error", cfg.err)
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !s.RainCheck() {
		return false
	}

	s.mu.Lock()
	if s.orchestrating {
		s.mu.Unlock()
		s.logger.Error("orchestration already in progress")
		return false
	}
	s.orchestrating = true
	members := make([]*Job, len(s.jobs))
	copy(members, s.jobs)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.orchestrating = false
		s.mu.Unlock()
	}()

	if len(members) == 0 {
		return true
	}
	return s.run(ctx, cfg, members)
}

// run is the orchestration loop proper. It is the only goroutine touching
// the ready set and the per-job bookkeeping; bodies communicate back over
// the completions channel, so readiness updates are serialized with
// admission decisions.
func (s *Scheduler) run(ctx context.Context, cfg *orchestrateConfig, members []*Job) bool {
	memberSet := make(map[*Job]struct{}, len(members))
	for _, j := range members {
		memberSet[j] = struct{}{}
	}

	// Per-job unsatisfied prerequisites, restricted to members, and the
	// reverse edges used to propagate readiness.
	waiting := make(map[*Job]map[*Job]struct{})
	successors := make(map[*Job][]*Job)
	var ready []*Job
	remaining := 0
	for _, j := range members {
		if !j.forever {
			remaining++
		}
		deps := make(map[*Job]struct{})
		for _, dep := range j.Required() {
			if _, in := memberSet[dep]; !in {
				continue
			}
			deps[dep] = struct{}{}
			successors[dep] = append(successors[dep], j)
		}
		if len(deps) == 0 {
			ready = append(ready, j)
		} else {
			waiting[j] = deps
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so abandoned bodies can still deliver without blocking.
	completions := make(chan completion, len(members))
	running := 0

	// release frees the successors waiting on j.
	release := func(j *Job) {
		for _, succ := range successors[j] {
			deps := waiting[succ]
			if deps == nil {
				continue
			}
			delete(deps, j)
			if len(deps) == 0 {
				delete(waiting, succ)
				ready = append(ready, succ)
			}
		}
	}

	start := func(j *Job) {
		j.markScheduled()
		j.markRunning()
		running++
		s.emit("job started", "job", j.describe(), "forever", j.forever)
		if j.forever {
			// A forever prerequisite never completes; it gates its
			// successors on start only.
			release(j)
		}
		go func() {
			result, err := j.runner.Run(runCtx)
			completions <- completion{job: j, result: result, err: err}
		}()
	}

	var timeoutC <-chan time.Time
	if cfg.timeout > 0 {
		timer := time.NewTimer(cfg.timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	for {
		for len(ready) > 0 && (cfg.window == 0 || running < cfg.window) {
			j := ready[0]
			ready = ready[1:]
			start(j)
		}
		if remaining == 0 {
			break
		}
		if running == 0 && len(ready) == 0 {
			s.logger.Error("orchestration stalled: jobs remain but none can run",
				"remaining", remaining)
			s.teardown(cancel, completions, running, members)
			return false
		}

		select {
		case c := <-completions:
			running--
			if runCtx.Err() != nil {
				// The run is already being torn down from outside.
				s.settle(c, true)
				s.teardown(cancel, completions, running, members)
				return false
			}
			s.settle(c, false)
			if c.err != nil && c.job.critical {
				s.logger.Error("critical job raised, aborting",
					"job", c.job.describe(), "error", c.err)
				s.teardown(cancel, completions, running, members)
				return false
			}
			if !c.job.forever {
				remaining--
			}
			release(c.job)
		case <-timeoutC:
			s.emit("orchestration timed out", "timeout", cfg.timeout)
			s.teardown(cancel, completions, running, members)
			return false
		case <-ctx.Done():
			s.emit("orchestration cancelled", "error", ctx.Err())
			s.teardown(cancel, completions, running, members)
			return false
		}
	}

	// Every non-forever job is done; cancel the forever frontier and run
	// the shutdown hooks.
	s.teardown(cancel, completions, running, members)
	return true
}

// settle records a body's outcome. During teardown a context cancellation
// is not a raise: the job simply never completed.
func (s *Scheduler) settle(c completion, tearingDown bool) {
	if tearingDown && errors.Is(c.err, context.Canceled) {
		c.job.markCancelled()
		s.emit("job cancelled", "job", c.job.describe())
		return
	}
	c.job.markDone(c.result, c.err)
	if c.err != nil {
		s.emit("job raised", "job", c.job.describe(),
			"error", c.err, "critical", c.job.critical)
	} else {
		s.emit("job done", "job", c.job.describe())
	}
}

// teardown cancels outstanding bodies, waits for them within the grace
// period, abandons the rest, and invokes every job's shutdown hook.
// Cancellation is cooperative: a body that ignores its context is left
// behind rather than deadlocking the scheduler.
func (s *Scheduler) teardown(cancel context.CancelFunc, completions chan completion, running int, members []*Job) {
	cancel()

	if running > 0 {
		timer := time.NewTimer(shutdownGrace)
		defer timer.Stop()
	drain:
		for running > 0 {
			select {
			case c := <-completions:
				running--
				s.settle(c, true)
			case <-timer.C:
				s.logger.Error("abandoning jobs that ignored cancellation",
					"count", running)
				break drain
			}
		}
	}

	// Anything still marked running never reported back.
	for _, j := range members {
		if j.State() == StateRunning {
			j.markCancelled()
		}
	}

	s.shutdownAll(members)
}

// shutdownAll fans the shutdown hooks out concurrently and waits for them.
// Hook errors are swallowed with an observational note; hooks receive a
// fresh context, not the cancelled orchestration one.
func (s *Scheduler) shutdownAll(members []*Job) {
	g := new(errgroup.Group)
	for _, j := range members {
		g.Go(func() error {
			return j.shutdown(context.Background())
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Debug("shutdown hook raised", "error", err)
	}
}
