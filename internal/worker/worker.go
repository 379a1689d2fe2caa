// Package worker implements the worker-side job processor: it consumes jobs
// from one queue, resolves each against the module's route table, and
// reports the outcome back to the broker.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jobgate/jobgate/internal/broker"
	"github.com/jobgate/jobgate/internal/envelope"
	"github.com/jobgate/jobgate/internal/log"
	"github.com/jobgate/jobgate/internal/registry"
	"github.com/jobgate/jobgate/internal/routetable"
	"github.com/jobgate/jobgate/internal/storage"
)

// ModuleFactory builds a module's route table, resolving its collaborators
// from the dependency registry. Called once per queue at worker bootstrap.
type ModuleFactory func(reg *registry.Registry) (*routetable.Table, error)

// Options tunes a processor.
type Options struct {
	// Concurrency is the number of jobs processed at once (default 1).
	Concurrency int
	// JobLog, when set, records every terminal outcome.
	JobLog *storage.JobLog
}

// Processor consumes one queue and dispatches its jobs.
type Processor struct {
	queue  broker.Queue
	table  *routetable.Table
	jobLog *storage.JobLog
	conc   int
	logger *slog.Logger
}

// NewProcessor creates a processor for q backed by the given route table.
func NewProcessor(q broker.Queue, table *routetable.Table, opts Options) *Processor {
	conc := opts.Concurrency
	if conc <= 0 {
		conc = 1
	}
	return &Processor{
		queue:  q,
		table:  table,
		jobLog: opts.JobLog,
		conc:   conc,
		logger: log.WithComponent("worker").With(slog.String("queue", q.Name())),
	}
}

// Run consumes jobs until ctx is cancelled or the broker closes. Each job
// runs as its own task, bounded by the concurrency limit.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("worker started", "concurrency", p.conc)
	defer p.logger.Info("worker stopped")

	sem := make(chan struct{}, p.conc)
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, broker.ErrClosed) {
				return err
			}
			p.logger.Error("dequeue failed", "error", err)
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		go func(job *broker.Job) {
			defer func() { <-sem }()
			p.process(ctx, job)
		}(job)
	}
}

// process executes one job and reports its outcome. Handler failures are
// caught here and reported to the broker with the failure's status code;
// nothing propagates past this boundary.
func (p *Processor) process(ctx context.Context, job *broker.Job) {
	receivedAt := time.Now().UTC()
	jobLogger := p.logger.With(slog.String("job_id", job.ID), slog.String("method", job.Data.Method), slog.String("url", job.Data.URL))
	jobLogger.Info("job received")

	res, jobErr := p.execute(ctx, job)

	completion := broker.Completion{Result: res, Err: jobErr}
	if err := p.queue.Complete(ctx, job.ID, completion); err != nil {
		jobLogger.Error("failed to report job completion", "error", err)
	}

	statusCode := http.StatusOK
	var lastError *string
	if jobErr != nil {
		statusCode = jobErr.StatusCode
		msg := jobErr.Message
		lastError = &msg
		jobLogger.Warn("job failed", "status_code", statusCode, "error", msg)
	} else {
		statusCode = res.StatusCode
		jobLogger.Info("job completed", "status_code", statusCode)
	}

	if p.jobLog != nil && job.Data.Method != envelope.MethodHealth {
		entry := storage.JobLogEntry{
			JobID:       job.ID,
			Queue:       job.Queue,
			Method:      job.Data.Method,
			URL:         job.Data.URL,
			StatusCode:  statusCode,
			LastError:   lastError,
			ReceivedAt:  receivedAt,
			CompletedAt: time.Now().UTC(),
		}
		if err := p.jobLog.Append(ctx, nil, entry); err != nil {
			jobLogger.Error("failed to append job log", "error", err)
		}
	}
}

func (p *Processor) execute(ctx context.Context, job *broker.Job) (*envelope.Result, *envelope.Error) {
	// Health probes never reach user handlers.
	if job.Data.Method == envelope.MethodHealth {
		return &envelope.Result{StatusCode: http.StatusOK}, nil
	}

	res, err := p.table.Dispatch(ctx, &job.Data)
	if err != nil {
		return nil, envelope.AsError(err)
	}
	if res == nil {
		res = &envelope.Result{StatusCode: http.StatusOK}
	}
	if res.StatusCode == 0 {
		res.StatusCode = http.StatusOK
	}
	return res, nil
}
