package jobs

// RainCheck validates the job set before orchestration: every member must
// be a usable job and the prerequisite graph over the members must be
// acyclic. It never mutates jobs. On failure the unresolved (cyclic) subset
// is retained for rendering through Cycle and List.
func (s *Scheduler) RainCheck() bool {
	s.mu.Lock()
	members := make([]*Job, len(s.jobs))
	copy(members, s.jobs)
	s.mu.Unlock()

	illTyped := 0
	for _, j := range members {
		if j == nil || j.runner == nil {
			illTyped++
		}
	}
	if illTyped > 0 {
		s.logger.Error("scheduler has ill-typed members",
			"ill_typed", illTyped, "total", len(members))
		return false
	}

	remaining := s.peel(members)

	s.mu.Lock()
	s.cycle = remaining
	s.mu.Unlock()

	if len(remaining) > 0 {
		labels := make([]string, 0, len(remaining))
		for _, j := range remaining {
			labels = append(labels, j.describe())
		}
		s.logger.Error("circular dependency detected", "jobs", labels)
		return false
	}
	return true
}

// peel runs the iterative topological peeling: each round removes the jobs
// whose prerequisites all lie outside the unresolved set. Prerequisites
// that are not members of this scheduler never block a job. The returned
// slice is the unresolved remainder; empty means the graph is a DAG.
func (s *Scheduler) peel(members []*Job) []*Job {
	unresolved := make(map[*Job]struct{}, len(members))
	for _, j := range members {
		unresolved[j] = struct{}{}
	}

	for len(unresolved) > 0 {
		var removable []*Job
		for j := range unresolved {
			blocked := false
			for _, dep := range j.Required() {
				if _, in := unresolved[dep]; in {
					blocked = true
					break
				}
			}
			if !blocked {
				removable = append(removable, j)
			}
		}
		if len(removable) == 0 {
			break
		}
		for _, j := range removable {
			delete(unresolved, j)
		}
	}

	// Report the remainder in membership order for stable output.
	var remaining []*Job
	for _, j := range members {
		if _, in := unresolved[j]; in {
			remaining = append(remaining, j)
		}
	}
	return remaining
}

// Cycle returns the jobs left unresolved by the last RainCheck: the
// members of (or downstream of) a dependency cycle. Empty when the last
// check passed.
func (s *Scheduler) Cycle() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, len(s.cycle))
	copy(out, s.cycle)
	return out
}
