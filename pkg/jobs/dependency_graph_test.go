package jobs

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestRainCheckValidDAG(t *testing.T) {
	a1, a2, a3 := quickJob("1"), quickJob("2"), quickJob("3")
	_ = a2.Requires(a1)
	_ = a3.Requires(a1, a2)

	sched := NewScheduler(a1, a2, a3)
	if !sched.RainCheck() {
		t.Error("expected rain check to pass on a DAG")
	}
	if len(sched.Cycle()) != 0 {
		t.Errorf("expected no cycle suspects, got %d", len(sched.Cycle()))
	}
}

func TestRainCheckCycle(t *testing.T) {
	a1, a2, a3 := quickJob("1"), quickJob("2"), quickJob("3")
	_ = a1.Requires(a2)
	_ = a2.Requires(a3)
	_ = a3.Requires(a1)

	sched := NewScheduler(a1, a2, a3)
	if sched.RainCheck() {
		t.Error("expected rain check to fail on a cycle")
	}
	if len(sched.Cycle()) != 3 {
		t.Errorf("expected 3 cycle suspects, got %d", len(sched.Cycle()))
	}
}

func TestRainCheckCycleLeavesJobsUntouched(t *testing.T) {
	var ran atomic.Int32
	body := BodyFunc(func(ctx context.Context) (interface{}, error) {
		ran.Add(1)
		return nil, nil
	})

	a1 := NewJob(body, WithLabel("1"))
	a2 := NewJob(body, WithLabel("2"))
	_ = a1.Requires(a2)
	_ = a2.Requires(a1)

	sched := NewScheduler(a1, a2)
	if sched.Orchestrate(context.Background()) {
		t.Error("orchestrate must fail on a cyclic graph")
	}
	if ran.Load() != 0 {
		t.Errorf("no body may run on a cyclic graph, %d ran", ran.Load())
	}
	for _, j := range sched.Jobs() {
		if j.State() != StateIdle {
			t.Errorf("job %s transitioned past idle: %s", j.Label(), j.State())
		}
	}
}

func TestRainCheckPartialCycle(t *testing.T) {
	// An independent job, a 2-cycle and a job behind the cycle: the
	// independent job is not reported.
	free := quickJob("free")
	b1, b2 := quickJob("b1"), quickJob("b2")
	_ = b1.Requires(b2)
	_ = b2.Requires(b1)

	downstream := quickJob("downstream")
	_ = downstream.Requires(b1)

	sched := NewScheduler(free, b1, b2, downstream)
	if sched.RainCheck() {
		t.Error("expected rain check to fail")
	}

	suspects := sched.Cycle()
	for _, j := range suspects {
		if j == free {
			t.Error("independent job must not be reported as cyclic")
		}
	}
	// The cycle and everything stuck behind it remain unresolved.
	if len(suspects) != 3 {
		t.Errorf("expected 3 unresolved jobs, got %d", len(suspects))
	}
}

func TestRainCheckNonMemberPrerequisite(t *testing.T) {
	// Prerequisites outside the scheduler never block its members.
	outside := quickJob("outside")
	member := quickJob("member")
	_ = member.Requires(outside)

	sched := NewScheduler(member)
	if !sched.RainCheck() {
		t.Error("a non-member prerequisite must not fail the rain check")
	}
	if !sched.Orchestrate(context.Background()) {
		t.Error("orchestrate should succeed")
	}
	if !member.IsDone() {
		t.Error("member should have run")
	}
	if outside.State() != StateIdle {
		t.Error("non-member must not be touched")
	}
}

func TestRainCheckIllTypedMember(t *testing.T) {
	broken := NewJob(nil, WithLabel("no runner"))
	sched := NewScheduler(broken, quickJob("fine"))

	if sched.RainCheck() {
		t.Error("a job without a runner must fail the rain check")
	}
	if sched.Orchestrate(context.Background()) {
		t.Error("orchestrate must refuse an ill-typed member")
	}
}

func TestRainCheckEmptyScheduler(t *testing.T) {
	sched := NewScheduler()
	if !sched.RainCheck() {
		t.Error("empty scheduler must pass the rain check")
	}
}

func TestRainCheckReadOnly(t *testing.T) {
	a1, a2 := quickJob("1"), quickJob("2")
	_ = a2.Requires(a1)
	sched := NewScheduler(a1, a2)

	before := requiredCounts(a1, a2)
	sched.RainCheck()
	after := requiredCounts(a1, a2)

	for i := range before {
		if before[i] != after[i] {
			t.Error("rain check must not mutate jobs")
		}
	}
	if a1.State() != StateIdle || a2.State() != StateIdle {
		t.Error("rain check must not advance job states")
	}
}
