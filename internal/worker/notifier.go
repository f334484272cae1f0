package worker

import (
	"context"
	"log"
	"time"
)

// Event reports a job reaching a terminal state.
type Event struct {
	JobID  string    `json:"jobId"`
	FileID string    `json:"fileId"`
	UserID string    `json:"userId"`
	State  JobState  `json:"state"`
	Widths []int     `json:"widths,omitempty"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

type logNotifier struct{}

// NewLogNotifier reports events to the process log only.
func NewLogNotifier() Notifier {
	return logNotifier{}
}

func (logNotifier) Notify(_ context.Context, ev Event) {
	logEvent("thumbnail", ev)
}

func logEvent(prefix string, ev Event) {
	if ev.State == StateFailed {
		log.Printf("%s job %s for file %s failed: %s", prefix, ev.JobID, ev.FileID, ev.Error)
		return
	}
	log.Printf("%s job %s for file %s %s widths=%v", prefix, ev.JobID, ev.FileID, ev.State, ev.Widths)
}
