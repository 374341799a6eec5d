package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// JobState represents the current state of a job within an orchestration.
type JobState string

const (
	StateIdle      JobState = "idle"
	StateScheduled JobState = "scheduled"
	StateRunning   JobState = "running"
	StateDone      JobState = "done"
)

// Runner is the unit of work a Job carries. Run performs the work and
// returns a result or an error; it must honor ctx cancellation at its
// suspension points. Shutdown is the cleanup hook, invoked exactly once by
// the scheduler when an orchestration terminates, regardless of whether Run
// ever started. Implementations must keep Shutdown idempotent.
type Runner interface {
	Run(ctx context.Context) (interface{}, error)
	Shutdown(ctx context.Context) error
}

// BodyFunc adapts a plain function into a Runner with a no-op Shutdown.
type BodyFunc func(ctx context.Context) (interface{}, error)

func (f BodyFunc) Run(ctx context.Context) (interface{}, error) { return f(ctx) }

func (f BodyFunc) Shutdown(ctx context.Context) error { return nil }

// Job is a node of the dependency graph: an opaque asynchronous unit of
// work plus the set of jobs it requires. Jobs compare by identity, never by
// value; the same *Job may be owned by several sequences and schedulers.
type Job struct {
	id       string
	label    string
	critical bool
	forever  bool
	runner   Runner

	mu           sync.Mutex
	required     []*Job
	requiredSet  map[*Job]struct{}
	state        JobState
	result       interface{}
	err          error
	shutdownDone bool
}

// JobOption configures a Job at construction time.
type JobOption func(*jobConfig)

type jobConfig struct {
	label     string
	critical  bool
	forever   bool
	required  []Requirement
	scheduler *Scheduler
}

// WithLabel sets the human-readable label used by List and Debrief.
func WithLabel(label string) JobOption {
	return func(c *jobConfig) { c.label = label }
}

// Critical marks the job as critical: a raised error aborts the whole
// orchestration.
func Critical() JobOption {
	return func(c *jobConfig) { c.critical = true }
}

// Forever marks the job as non-terminating: the scheduler cancels it at
// shutdown and does not wait for it to complete.
func Forever() JobOption {
	return func(c *jobConfig) { c.forever = true }
}

// WithRequired declares prerequisites. Requirements may be jobs, sequences,
// groups, or arbitrary nestings thereof; nils are absorbed.
func WithRequired(reqs ...Requirement) JobOption {
	return func(c *jobConfig) { c.required = append(c.required, reqs...) }
}

// WithScheduler registers the job with a scheduler on construction.
func WithScheduler(s *Scheduler) JobOption {
	return func(c *jobConfig) { c.scheduler = s }
}

// NewJob creates an idle job around a Runner. Use BodyFunc for plain
// function bodies.
func NewJob(runner Runner, opts ...JobOption) *Job {
	cfg := &jobConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	j := &Job{
		id:          "job-" + uuid.New().String()[:8],
		label:       cfg.label,
		critical:    cfg.critical,
		forever:     cfg.forever,
		runner:      runner,
		requiredSet: make(map[*Job]struct{}),
		state:       StateIdle,
	}

	// Construction-time requirements cannot contain the job itself, so the
	// self check in Requires cannot trip here.
	_ = j.Requires(cfg.required...)

	if cfg.scheduler != nil {
		_ = cfg.scheduler.Add(j)
	}
	return j
}

// Requires extends the prerequisite set. Inputs are flattened recursively,
// nils are discarded, and duplicates (by identity) collapse. Declaring the
// job as its own prerequisite is a programmer error; the call then stores
// nothing.
func (j *Job) Requires(reqs ...Requirement) error {
	flat := flatten(reqs)
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, dep := range flat {
		if dep == j {
			return fmt.Errorf("%w: %s", ErrSelfRequirement, j.describe())
		}
	}
	for _, dep := range flat {
		if _, seen := j.requiredSet[dep]; seen {
			continue
		}
		j.requiredSet[dep] = struct{}{}
		j.required = append(j.required, dep)
	}
	return nil
}

// Required returns the prerequisite jobs in declaration order.
func (j *Job) Required() []*Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*Job, len(j.required))
	copy(out, j.required)
	return out
}

// ID returns the job's short unique identifier.
func (j *Job) ID() string { return j.id }

// Label returns the job's label, falling back to its id.
func (j *Job) Label() string {
	if j.label == "" {
		return j.id
	}
	return j.label
}

// IsCritical reports whether a raised error from this job aborts the
// orchestration.
func (j *Job) IsCritical() bool { return j.critical }

// IsForever reports whether the job is expected to never complete.
func (j *Job) IsForever() bool { return j.forever }

// State returns the job's current lifecycle state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// IsDone reports whether the job ran to completion, successfully or not.
// Jobs cancelled in flight are not done.
func (j *Job) IsDone() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state == StateDone
}

// Result returns the value produced by the body, or nil if the job is not
// done or raised an error.
func (j *Job) Result() interface{} {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateDone || j.err != nil {
		return nil
	}
	return j.result
}

// RaisedException returns the error raised by the body, or nil.
func (j *Job) RaisedException() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateDone {
		return nil
	}
	return j.err
}

// describe renders the job for diagnostics.
func (j *Job) describe() string {
	if j.label != "" {
		return fmt.Sprintf("%s (%s)", j.label, j.id)
	}
	return j.id
}

// --- transitions, driven only by the scheduler's orchestration goroutine

func (j *Job) markScheduled() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateIdle {
		j.state = StateScheduled
	}
}

func (j *Job) markRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateScheduled {
		j.state = StateRunning
	}
}

// markDone freezes the outcome. Once done, later transitions are ignored.
func (j *Job) markDone(result interface{}, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateDone {
		return
	}
	j.state = StateDone
	j.result = result
	j.err = err
}

// markCancelled records that the body was cancelled before completing. The
// job is no longer running but keeps no outcome; it is left scheduled so a
// later listing distinguishes it from jobs that never started.
func (j *Job) markCancelled() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateRunning {
		j.state = StateScheduled
	}
}

// shutdown invokes the Runner's Shutdown hook at most once per
// orchestration.
func (j *Job) shutdown(ctx context.Context) error {
	j.mu.Lock()
	if j.shutdownDone {
		j.mu.Unlock()
		return nil
	}
	j.shutdownDone = true
	j.mu.Unlock()
	return j.runner.Shutdown(ctx)
}

// reset returns the job to idle with no outcome, so the owning scheduler
// can be reused.
func (j *Job) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = StateIdle
	j.result = nil
	j.err = nil
	j.shutdownDone = false
}
