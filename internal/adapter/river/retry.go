package river

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// Compile-time check: RetryQueue implements domain.RetryQueue.
var _ domain.RetryQueue = (*RetryQueue)(nil)

// DefaultMaxAttempts bounds webhook reprocessing before the event is handed
// to the review queue.
const DefaultMaxAttempts = 8

// ReconcileJobArgs carries a verified payment event whose processing failed.
type ReconcileJobArgs struct {
	Event domain.PaymentEvent `json:"event"`
}

func (ReconcileJobArgs) Kind() string { return "webhook.reconcile" }

// RetryQueue schedules payment events for asynchronous reprocessing.
type RetryQueue struct {
	client      *Client
	maxAttempts int
}

// NewRetryQueue creates a retry queue. maxAttempts <= 0 uses DefaultMaxAttempts.
func NewRetryQueue(client *Client, maxAttempts int) *RetryQueue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RetryQueue{client: client, maxAttempts: maxAttempts}
}

func (q *RetryQueue) EnqueueRetry(ctx context.Context, event domain.PaymentEvent) error {
	_, err := q.client.Insert(ctx, ReconcileJobArgs{Event: event}, &river.InsertOpts{
		MaxAttempts: q.maxAttempts,
	})
	if err != nil {
		return fmt.Errorf("enqueuing reconcile job: %w", err)
	}
	return nil
}

// Processor applies a payment event. app.Reconciler satisfies it.
type Processor interface {
	Process(ctx context.Context, event domain.PaymentEvent) (domain.Outcome, error)
	FlagExhausted(ctx context.Context, event domain.PaymentEvent, cause error) error
}

// processorHolder boxes the interface so it can be swapped atomically.
type processorHolder struct{ p Processor }

// errUnbound is returned while no processor has been bound yet; River
// retries the job later.
var errUnbound = errors.New("reconcile worker has no processor bound")

// ReconcileWorker re-runs failed webhook processing. The processor is bound
// after the River client exists because the reconciler indirectly publishes
// through that same client.
type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileJobArgs]
	processor atomic.Pointer[processorHolder]
	logger    *slog.Logger
}

// NewReconcileWorker creates an unbound worker.
func NewReconcileWorker(logger *slog.Logger) *ReconcileWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileWorker{logger: logger}
}

// Bind sets the processor used by subsequent jobs.
func (w *ReconcileWorker) Bind(p Processor) {
	w.processor.Store(&processorHolder{p: p})
}

func (w *ReconcileWorker) Work(ctx context.Context, job *river.Job[ReconcileJobArgs]) error {
	holder := w.processor.Load()
	if holder == nil {
		return errUnbound
	}

	event := job.Args.Event
	outcome, err := holder.p.Process(ctx, event)
	if err == nil {
		w.logger.InfoContext(ctx, "webhook reprocessed",
			"event_id", event.ID,
			"outcome", string(outcome),
			"attempt", job.Attempt,
		)
		return nil
	}

	if job.Attempt < job.MaxAttempts {
		w.logger.WarnContext(ctx, "webhook reprocessing failed",
			"event_id", event.ID,
			"attempt", job.Attempt,
			"max_attempts", job.MaxAttempts,
			"error", err,
		)
		return err
	}

	// Final attempt: hand the event to operators instead of failing the job.
	if ferr := holder.p.FlagExhausted(ctx, event, err); ferr != nil {
		return fmt.Errorf("filing exhausted event %s: %w", event.ID, errors.Join(err, ferr))
	}
	w.logger.ErrorContext(ctx, "webhook retries exhausted",
		"event_id", event.ID,
		"attempts", job.Attempt,
		"error", err,
	)
	return nil
}
