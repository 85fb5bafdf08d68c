package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// EventWorker processes reservation event jobs from the River queue.
// It records the event in the log; downstream notification fan-out goes
// through the AMQP sink instead.
type EventWorker struct {
	river.WorkerDefaults[EventJobArgs]
	logger *slog.Logger
}

// Work processes a single event job.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventJobArgs]) error {
	w.logger.InfoContext(ctx, "reservation event",
		"topic", job.Args.Topic,
		"tenant_id", job.Args.TenantID,
		"reservation_id", job.Args.ReservationID,
		"state", job.Args.State,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
