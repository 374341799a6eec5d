package jobs

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// JobRecord is a read-only snapshot of one job's identity, shape and
// outcome, suitable for export and post-mortem tooling.
type JobRecord struct {
	ID       string      `yaml:"id" json:"id"`
	Label    string      `yaml:"label" json:"label"`
	State    JobState    `yaml:"state" json:"state"`
	Critical bool        `yaml:"critical,omitempty" json:"critical,omitempty"`
	Forever  bool        `yaml:"forever,omitempty" json:"forever,omitempty"`
	Requires []string    `yaml:"requires,omitempty" json:"requires,omitempty"`
	Result   interface{} `yaml:"result,omitempty" json:"result,omitempty"`
	Error    string      `yaml:"error,omitempty" json:"error,omitempty"`
}

// Snapshot captures every owned job as a JobRecord, in insertion order.
func (s *Scheduler) Snapshot() []JobRecord {
	all := s.Jobs()
	records := make([]JobRecord, 0, len(all))
	for _, j := range all {
		rec := JobRecord{
			ID:       j.ID(),
			Label:    j.Label(),
			State:    j.State(),
			Critical: j.critical,
			Forever:  j.forever,
			Result:   j.Result(),
		}
		for _, dep := range j.Required() {
			rec.Requires = append(rec.Requires, dep.ID())
		}
		if err := j.RaisedException(); err != nil {
			rec.Error = err.Error()
		}
		records = append(records, rec)
	}
	return records
}

// ExportState writes the current snapshot as a YAML document.
func (s *Scheduler) ExportState(w io.Writer) error {
	data, err := yaml.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}
