// Package broker defines the contract the gateway requires from its message
// queue medium and provides two implementations: an in-process broker for
// single-process deployments and tests, and a NATS-backed broker for
// multi-process deployments.
//
// The medium guarantees at-least-once delivery of each job to exactly one
// consumer of the target queue and provides one-shot, detachable completion
// signals keyed by job id. No ordering is guaranteed across jobs.
package broker

import (
	"context"
	"errors"

	"github.com/jobgate/jobgate/internal/envelope"
)

// Job is the broker-visible unit of work.
type Job struct {
	ID    string           `json:"id"`
	Queue string           `json:"queue"`
	Data  envelope.Request `json:"data"`
}

// Completion is the terminal outcome of a job. Exactly one of Result and
// Err is set.
type Completion struct {
	JobID  string           `json:"job_id"`
	Result *envelope.Result `json:"result,omitempty"`
	Err    *envelope.Error  `json:"error,omitempty"`
}

// Queue is one named job queue.
//
// Submit registers the completion listener slot before the job becomes
// visible to consumers, so a completion can never race past a subsequent
// Completed call for the same job id.
type Queue interface {
	Name() string

	// Submit publishes a job carrying req and returns its id.
	Submit(ctx context.Context, req envelope.Request) (string, error)

	// Completed returns a one-shot channel that observes the completion of
	// jobID, plus a detach function. After detach, a late completion signal
	// is dropped, never delivered twice.
	Completed(jobID string) (<-chan Completion, func())

	// Dequeue blocks until the next job is delivered or ctx is done.
	Dequeue(ctx context.Context) (*Job, error)

	// Complete reports the terminal outcome of a job. If no listener remains
	// the report is dropped silently.
	Complete(ctx context.Context, jobID string, c Completion) error
}

// Broker hands out queue handles by name.
type Broker interface {
	Queue(name string) Queue
	Close() error
}

// ErrClosed is returned by queue operations after the broker shuts down.
var ErrClosed = errors.New("broker is closed")
