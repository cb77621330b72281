package render

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// RunReport summarizes a run or a plan.
// The caller can serialize it to JSON, YAML, or any other format.
type RunReport struct {
	RunID            string      `json:"runID"`
	Planned          bool        `json:"planned,omitempty"` // True for Plan, which renders nothing
	Range            Range       `json:"range"`
	Destination      string      `json:"destination"`
	Selected         []string    `json:"selected"`
	Jobs             []RenderJob `json:"jobs"`
	Batches          int         `json:"batches"` // Clear/start/drain cycles completed
	Folders          []string    `json:"folders"`
	OriginalSelector int         `json:"originalSelector"`
	Restored         bool        `json:"restored"`
	State            State       `json:"state"`
	StartedAt        time.Time   `json:"startedAt"`
	FinishedAt       time.Time   `json:"finishedAt"`
}

func newRunReport(input RunInput, planned bool) *RunReport {
	return &RunReport{
		RunID:       uuid.NewString(),
		Planned:     planned,
		Range:       input.Range,
		Destination: input.Destination,
		Jobs:        []RenderJob{},
		Folders:     []string{},
		State:       StateIdle,
		StartedAt:   time.Now(),
	}
}

func (r *RunReport) finish(state State) {
	r.State = state
	r.FinishedAt = time.Now()
}

func (r *RunReport) addFolder(folder string) {
	for _, f := range r.Folders {
		if f == folder {
			return
		}
	}
	r.Folders = append(r.Folders, folder)
}

// JobsForIndex returns the jobs enqueued for one roster index
func (r *RunReport) JobsForIndex(index int) []RenderJob {
	var jobs []RenderJob
	for _, job := range r.Jobs {
		if job.Index == index {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// ToJSON converts the report to JSON format.
// The caller can write this to a .json file if needed.
func (r *RunReport) ToJSON(indent bool) (string, error) {
	var result []byte
	var err error

	if indent {
		result, err = json.MarshalIndent(r, "", "  ")
	} else {
		result, err = json.Marshal(r)
	}

	if err != nil {
		return "", fmt.Errorf("failed to marshal run report: %w", err)
	}

	return string(result), nil
}

// WriteFile writes the indented JSON report to path
func (r *RunReport) WriteFile(path string) error {
	data, err := r.ToJSON(true)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(data+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write run report to %s: %w", path, err)
	}
	return nil
}
