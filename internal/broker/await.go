package broker

import (
	"context"
	"time"

	"github.com/jobgate/jobgate/internal/envelope"
)

// Await races the completion signal of a submitted job against a deadline.
// Exactly one outcome resolves the wait: the result envelope, the reported
// failure, or a gateway timeout. The listener and the timer are released on
// every path, so a completion arriving after the timeout is dropped and can
// never resolve the wait twice.
//
// This is the only place job-id correlation happens.
func Await(ctx context.Context, q Queue, jobID string, timeout time.Duration) (*envelope.Result, error) {
	done, detach := q.Completed(jobID)
	defer detach()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c := <-done:
		if c.Err != nil {
			return nil, c.Err
		}
		if c.Result == nil {
			return nil, envelope.Internal("job %s completed without a result", jobID)
		}
		return c.Result, nil
	case <-timer.C:
		return nil, envelope.GatewayTimeout()
	case <-ctx.Done():
		return nil, envelope.AsError(ctx.Err())
	}
}
