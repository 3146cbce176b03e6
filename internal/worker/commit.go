package worker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/syncpulse-dev/notify-worker/internal/db"
	"github.com/syncpulse-dev/notify-worker/internal/metrics"
)

// commitRetries bounds the in-process backoff around a single commit call,
// per spec.md §7's "Database error on commit" policy: the first try plus
// two retries, three attempts from 100ms, abandoning the row to the next
// wake cycle rather than retrying forever inside one pass.
const commitRetries = 2

func newCommitBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	return backoff.WithMaxRetries(b, commitRetries)
}

// recordSuccess commits a terminal success, retrying transient DB errors
// in-process before giving up on the row for this cycle.
func recordSuccess(ctx context.Context, gw gateway, id uuid.UUID) (bool, error) {
	var ok bool
	err := backoff.Retry(func() error {
		var err error
		ok, err = gw.RecordSuccess(ctx, id)
		if err != nil && !db.IsTransient(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			metrics.DBCommitRetries.Inc()
		}
		return err
	}, backoff.WithContext(newCommitBackOff(), ctx))
	return ok, err
}

// recordFailure commits a terminal or non-terminal failure, with the same
// retry policy as recordSuccess. count reports the row's error_count after
// this call, for the "abandoned after exhausting retries" log line.
func recordFailure(ctx context.Context, gw gateway, id uuid.UUID, errText string, maxRetries int) (bool, int, error) {
	var stop bool
	var count int
	err := backoff.Retry(func() error {
		var err error
		stop, count, err = gw.RecordFailure(ctx, id, errText, maxRetries)
		if err != nil && !db.IsTransient(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			metrics.DBCommitRetries.Inc()
		}
		return err
	}, backoff.WithContext(newCommitBackOff(), ctx))
	return stop, count, err
}
