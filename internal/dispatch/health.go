package dispatch

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jobgate/jobgate/internal/broker"
	"github.com/jobgate/jobgate/internal/envelope"
)

// healthTimeout is the fixed ceiling for one health probe. It is deliberately
// shorter than the dispatch timeout so a wedged queue fails the health check
// quickly.
const healthTimeout = 3 * time.Second

// QueueHealth is the outcome of one queue's probe.
type QueueHealth struct {
	Queue      string        `json:"queue"`
	StatusCode int           `json:"status_code"`
	Elapsed    time.Duration `json:"elapsed"`
	Error      string        `json:"error,omitempty"`
}

// HealthReport aggregates per-queue probe outcomes. StatusCode is 200 only
// when every probe returned 200, otherwise 503.
type HealthReport struct {
	StatusCode int           `json:"status_code"`
	Queues     []QueueHealth `json:"queues"`
}

// Healthy reports whether every probed queue answered 200.
func (r *HealthReport) Healthy() bool {
	return r.StatusCode == http.StatusOK
}

// HealthChecker fans one synthetic HEALTH probe out to every distinct queue
// the mapping table references.
type HealthChecker struct {
	queues []broker.Queue
}

// NewHealthChecker builds a checker over the named queues, in order.
func NewHealthChecker(b JobBroker, names []string) *HealthChecker {
	queues := make([]broker.Queue, 0, len(names))
	for _, name := range names {
		queues = append(queues, b.Queue(name))
	}
	return &HealthChecker{queues: queues}
}

// Check probes every queue concurrently and aggregates the outcomes. The
// report keeps per-queue detail for logging; callers decide how much of it
// to expose.
func (h *HealthChecker) Check(ctx context.Context) *HealthReport {
	report := &HealthReport{
		StatusCode: http.StatusOK,
		Queues:     make([]QueueHealth, len(h.queues)),
	}

	var wg sync.WaitGroup
	for i, q := range h.queues {
		i, q := i, q
		wg.Add(1)
		go func() {
			defer wg.Done()
			report.Queues[i] = probe(ctx, q)
		}()
	}
	wg.Wait()

	for _, qh := range report.Queues {
		if qh.StatusCode != http.StatusOK {
			report.StatusCode = http.StatusServiceUnavailable
			break
		}
	}
	return report
}

func probe(ctx context.Context, q broker.Queue) QueueHealth {
	start := time.Now()
	qh := QueueHealth{Queue: q.Name()}

	req := envelope.Request{Method: envelope.MethodHealth, URL: "/"}
	jobID, err := q.Submit(ctx, req)
	if err != nil {
		qh.StatusCode = http.StatusServiceUnavailable
		qh.Error = err.Error()
		qh.Elapsed = time.Since(start)
		return qh
	}

	result, err := broker.Await(ctx, q, jobID, healthTimeout)
	qh.Elapsed = time.Since(start)
	if err != nil {
		coded := envelope.AsError(err)
		qh.StatusCode = coded.StatusCode
		qh.Error = coded.Message
		return qh
	}
	qh.StatusCode = result.StatusCode
	return qh
}
