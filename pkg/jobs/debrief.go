package jobs

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// stateGlyph renders a job's lifecycle state as a colored marker.
func stateGlyph(j *Job) string {
	switch j.State() {
	case StateDone:
		if j.RaisedException() != nil {
			return color.RedString("✗")
		}
		return color.GreenString("✓")
	case StateRunning:
		return color.YellowString("⚡")
	case StateScheduled:
		return color.CyanString("○")
	default:
		return color.HiBlackString("·")
	}
}

// flags renders the critical/forever markers the way List and Debrief show
// them.
func flags(j *Job) string {
	var parts []string
	if j.critical {
		parts = append(parts, "critical")
	}
	if j.forever {
		parts = append(parts, "forever")
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, ",") + "]"
}

// List writes one line per job, in insertion order: state, label, flags and
// prerequisites. Jobs caught in a cycle by the last RainCheck are marked.
func (s *Scheduler) List(w io.Writer) {
	cyclic := make(map[*Job]struct{})
	for _, j := range s.Cycle() {
		cyclic[j] = struct{}{}
	}

	for _, j := range s.Jobs() {
		line := fmt.Sprintf("%s %s%s", stateGlyph(j), j.Label(), flags(j))
		if deps := j.Required(); len(deps) > 0 {
			labels := make([]string, len(deps))
			for i, dep := range deps {
				labels[i] = dep.Label()
			}
			line += " requires " + strings.Join(labels, ", ")
		}
		if _, in := cyclic[j]; in {
			line += " " + color.RedString("(in cycle)")
		}
		fmt.Fprintln(w, line)
	}
}

// Debrief writes a post-orchestration summary: per-state counts and, for
// every raised job, its error. With details set, each job gets a full line
// including its result.
func (s *Scheduler) Debrief(w io.Writer, details bool) {
	all := s.Jobs()

	counts := map[JobState]int{}
	raised := 0
	for _, j := range all {
		counts[j.State()]++
		if j.RaisedException() != nil {
			raised++
		}
	}

	fmt.Fprintf(w, "%d jobs: %s done, %s running, %s scheduled, %s idle, %s raised\n",
		len(all),
		color.GreenString("%d", counts[StateDone]),
		color.YellowString("%d", counts[StateRunning]),
		color.CyanString("%d", counts[StateScheduled]),
		color.HiBlackString("%d", counts[StateIdle]),
		color.RedString("%d", raised))

	for _, j := range all {
		if err := j.RaisedException(); err != nil {
			fmt.Fprintf(w, "%s %s raised: %v\n", stateGlyph(j), j.Label(), err)
		}
	}

	if !details {
		return
	}
	for _, j := range all {
		line := fmt.Sprintf("%s %s%s state=%s", stateGlyph(j), j.Label(), flags(j), j.State())
		if j.IsDone() && j.RaisedException() == nil {
			line += fmt.Sprintf(" result=%v", j.Result())
		}
		fmt.Fprintln(w, line)
	}
}
