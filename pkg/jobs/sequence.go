package jobs

// Sequence is a construction-time helper that chains jobs linearly: each
// element requires the previous one. A Sequence is not a job and has no
// runtime behavior; used as a Requirement it contributes its tail element,
// so depending on a sequence means depending on its last job.
type Sequence struct {
	entries    []*Job
	schedulers []*Scheduler
}

// NewSequence chains the given elements: each one requires its predecessor.
// Elements may be jobs or other sequences; a sequence element is spliced
// in, its head picking up the requirement on the previous tail. Nils are
// skipped. External prerequisites go through Requires, which targets the
// head; registration with a scheduler happens through Scheduler.Add, after
// which later appends register there too.
func NewSequence(elems ...Requirement) *Sequence {
	seq := &Sequence{}
	for _, elem := range elems {
		seq.splice(elem)
	}
	return seq
}

// splice attaches one element to the end of the chain.
func (s *Sequence) splice(elem Requirement) {
	switch v := elem.(type) {
	case nil:
	case *Job:
		if v == nil {
			return
		}
		if tail := s.Tail(); tail != nil {
			_ = v.Requires(tail)
		}
		s.entries = append(s.entries, v)
	case *Sequence:
		if v == nil || len(v.entries) == 0 {
			return
		}
		if tail := s.Tail(); tail != nil {
			_ = v.entries[0].Requires(tail)
		}
		s.entries = append(s.entries, v.entries...)
	case Group:
		for _, r := range v {
			s.splice(r)
		}
	}
}

// Append extends the chain with one more job and registers it with every
// scheduler the sequence is bound to.
func (s *Sequence) Append(j *Job) {
	if j == nil {
		return
	}
	s.splice(j)
	for _, sched := range s.schedulers {
		_ = sched.Add(j)
	}
}

// Requires forwards external prerequisites to the head of the sequence.
func (s *Sequence) Requires(reqs ...Requirement) error {
	if len(s.entries) == 0 {
		return nil
	}
	return s.entries[0].Requires(reqs...)
}

// Entries returns the chained jobs in order.
func (s *Sequence) Entries() []*Job {
	out := make([]*Job, len(s.entries))
	copy(out, s.entries)
	return out
}

// Tail returns the last element of the chain, or nil for an empty sequence.
func (s *Sequence) Tail() *Job {
	if len(s.entries) == 0 {
		return nil
	}
	return s.entries[len(s.entries)-1]
}

// bind registers all current entries with the scheduler and remembers it
// for later appends.
func (s *Sequence) bind(sched *Scheduler) {
	for _, registered := range s.schedulers {
		if registered == sched {
			return
		}
	}
	s.schedulers = append(s.schedulers, sched)
	for _, j := range s.entries {
		_ = sched.Add(j)
	}
}

// flattenInto makes a Sequence usable as a Requirement: it resolves to its
// tail element.
func (s *Sequence) flattenInto(c *reqCollector) {
	if s == nil {
		return
	}
	if tail := s.Tail(); tail != nil {
		c.add(tail)
	}
}
