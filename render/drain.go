package render

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultPollInterval is how often the render queue is polled while waiting
const DefaultPollInterval = 1000 * time.Millisecond

// PollPolicy controls how AwaitDrain polls the render queue.
// There is no timeout. An engine that never finishes stalls the run.
type PollPolicy struct {
	Interval    time.Duration // First wait between polls
	MaxInterval time.Duration // Upper bound once backoff applies; 0 means Interval
	Multiplier  float64       // Backoff factor; values <= 1 keep a fixed interval
	WaitForAll  bool          // Wait until every item has settled, not only the lead
}

// DefaultPollPolicy polls once per second without backoff
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: DefaultPollInterval, Multiplier: 1}
}

func (p PollPolicy) normalized() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = p.Interval
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

func (p PollPolicy) next(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * p.Multiplier)
	if next > p.MaxInterval {
		return p.MaxInterval
	}
	return next
}

// Drainer blocks until a render queue has nothing left pending
type Drainer struct {
	queue  RenderQueue
	policy PollPolicy
	sleep  func(time.Duration)
}

// NewDrainer creates a drainer for the given queue
func NewDrainer(queue RenderQueue, policy PollPolicy) *Drainer {
	return &Drainer{
		queue:  queue,
		policy: policy.normalized(),
		sleep:  time.Sleep,
	}
}

// AwaitDrain polls until the queue is empty or its lead item has left
// "queued". With WaitForAll it polls until no item is queued or rendering.
// Failed and finished items are treated alike.
func (d *Drainer) AwaitDrain() error {
	interval := d.policy.Interval
	polls := 0
	started := time.Now()

	for {
		status, err := d.queue.QueueStatus()
		if err != nil {
			return fmt.Errorf("failed to poll render queue: %w", err)
		}
		polls++

		done := status.Drained()
		if d.policy.WaitForAll {
			done = status.Settled()
		}
		if done {
			failed := 0
			for _, item := range status.Items {
				if item.Status == StatusFailed {
					failed++
				}
			}
			if failed > 0 {
				log.Warn("Render queue reports failed items", "failed", failed, "items", len(status.Items))
			}
			log.Debug("Render queue drained", "polls", polls, "elapsed", time.Since(started).Round(time.Millisecond))
			return nil
		}

		if lead, ok := status.Lead(); ok {
			log.Debug("Waiting for render queue", "lead", lead.Comp, "status", lead.Status, "next_poll", interval)
		}

		d.sleep(interval)
		interval = d.policy.next(interval)
	}
}
