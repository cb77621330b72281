package render

import "fmt"

// Item is a renderable composition in the engine's project.
// The project owns items; this package only holds references to them.
type Item struct {
	Name       string `json:"name"`
	Position   int    `json:"position"`  // 1-based project enumeration order
	Selected   bool   `json:"selected"`  // Operator selection flag
	LayerCount int    `json:"numLayers"` // Number of layers in the composition
}

// Layer is an ordered child of a composition
type Layer struct {
	Comp  string `json:"comp"`
	Index int    `json:"index"` // 1-based, stable within a composition
	Name  string `json:"name"`
}

// Effect is an effect instance attached to exactly one layer
type Effect struct {
	Layer Layer  `json:"layer"`
	Name  string `json:"name"`
}

// JobStatus mirrors the engine's render queue item states
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRendering JobStatus = "rendering"
	StatusDone      JobStatus = "done"
	StatusFailed    JobStatus = "failed"
	StatusStopped   JobStatus = "stopped"
	StatusUnqueued  JobStatus = "unqueued"
)

// Pending reports whether the engine has yet to finish with an item
func (s JobStatus) Pending() bool {
	return s == StatusQueued || s == StatusRendering
}

// JobHandle identifies a job inside the engine's render queue
type JobHandle string

// QueueItem is one entry of a render queue snapshot
type QueueItem struct {
	ID     JobHandle `json:"id"`
	Comp   string    `json:"comp"`
	Status JobStatus `json:"status"`
}

// QueueStatus is a snapshot of the engine's render queue in queue order
type QueueStatus struct {
	Items []QueueItem `json:"items"`
}

// Lead returns the first item in the queue, if any
func (q QueueStatus) Lead() (QueueItem, bool) {
	if len(q.Items) == 0 {
		return QueueItem{}, false
	}
	return q.Items[0], true
}

// Drained reports whether the queue is empty or its lead item is no longer
// queued. A lead that started, finished or failed all count as drained.
func (q QueueStatus) Drained() bool {
	lead, ok := q.Lead()
	return !ok || lead.Status != StatusQueued
}

// Settled reports whether no item in the queue is still queued or rendering
func (q QueueStatus) Settled() bool {
	for _, item := range q.Items {
		if item.Status.Pending() {
			return false
		}
	}
	return true
}

// RenderJob is one enqueued render task
type RenderJob struct {
	Source         Item      `json:"source"`
	OutputTemplate string    `json:"outputTemplate"`
	Destination    string    `json:"destination"`
	Index          int       `json:"index"`
	Handle         JobHandle `json:"handle,omitempty"`
}

// Range is an inclusive, 1-based roster index range
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of indexes in the range
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Validate checks 1 <= Start <= End <= size
func (r Range) Validate(size int) error {
	if r.Start < 1 {
		return fmt.Errorf("start index %d must be at least 1", r.Start)
	}
	if r.End > size {
		return fmt.Errorf("end index %d exceeds roster size %d", r.End, size)
	}
	if r.Start > r.End {
		return fmt.Errorf("start index %d is after end index %d", r.Start, r.End)
	}
	return nil
}

// NamingTuple holds the per-entry naming fields resolved from the lookup compositions
type NamingTuple struct {
	Number    string `json:"number"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}
