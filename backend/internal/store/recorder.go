package store

import (
	"context"
	"time"

	pkgerrors "prompt-lineage/backend/pkg/errors"
	"prompt-lineage/backend/pkg/logger"
	"go.uber.org/zap"
)

// Recorder hands decision records to the backing store with bounded retry.
// Only transient failures are retried; a permanent rejection surfaces
// immediately. Idempotency per execution ref makes retries safe.
type Recorder struct {
	store      Store
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewRecorder creates a recorder over the given store
func NewRecorder(store Store, maxRetries int, retryDelay time.Duration) *Recorder {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Recorder{
		store:      store,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger.Get(),
	}
}

// Record submits one decision record, retrying transient failures up to the
// configured attempt count with a fixed delay between attempts
func (r *Recorder) Record(ctx context.Context, record DecisionRecord) (StoreResult, error) {
	var lastErr error

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		result, err := r.store.StoreDecisionEvent(ctx, record)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !pkgerrors.IsRetryable(err) {
			r.logger.Warn("Decision record rejected permanently",
				zap.String("execution_ref", record.ExecutionRef),
				zap.Error(err))
			return StoreResult{}, err
		}
		if attempt == r.maxRetries {
			break
		}

		r.logger.Debug("Retrying decision record",
			zap.String("execution_ref", record.ExecutionRef),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return StoreResult{}, pkgerrors.NewContextCancelled("store_decision_event", ctx.Err())
		case <-time.After(r.retryDelay):
		}
	}

	r.logger.Error("Decision record failed after retries",
		zap.String("execution_ref", record.ExecutionRef),
		zap.Int("attempts", r.maxRetries),
		zap.Error(lastErr))
	return StoreResult{}, lastErr
}
