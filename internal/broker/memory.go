package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jobgate/jobgate/internal/envelope"
)

// jobBuffer bounds how many submitted jobs a queue holds before Submit blocks.
const jobBuffer = 256

// Memory is an in-process broker. Jobs flow through buffered channels and
// completion listeners are one-shot slots keyed by job id.
type Memory struct {
	mu     sync.Mutex
	queues map[string]*memoryQueue
	closed bool
}

// NewMemory creates an in-process broker.
func NewMemory() *Memory {
	return &Memory{queues: make(map[string]*memoryQueue)}
}

// Queue returns the handle for name, creating the queue on first use.
func (m *Memory) Queue(name string) Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		q = &memoryQueue{
			name:    name,
			jobs:    make(chan *Job, jobBuffer),
			done:    make(chan struct{}),
			waiters: make(map[string]chan Completion),
		}
		m.queues[name] = q
	}
	return q
}

// Close marks the broker closed. Blocked Dequeue and Submit calls return
// ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, q := range m.queues {
		q.close()
	}
	return nil
}

type memoryQueue struct {
	name string
	jobs chan *Job
	done chan struct{}

	mu      sync.Mutex
	waiters map[string]chan Completion
	closed  bool
}

func (q *memoryQueue) Name() string { return q.name }

func (q *memoryQueue) Submit(ctx context.Context, req envelope.Request) (string, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrClosed
	}
	id := uuid.NewString()
	// The listener slot exists before the job is visible to any consumer.
	q.waiters[id] = make(chan Completion, 1)
	q.mu.Unlock()

	job := &Job{ID: id, Queue: q.name, Data: req}
	select {
	case q.jobs <- job:
		return id, nil
	case <-q.done:
		q.detach(id)
		return "", ErrClosed
	case <-ctx.Done():
		q.detach(id)
		return "", ctx.Err()
	}
}

func (q *memoryQueue) Completed(jobID string) (<-chan Completion, func()) {
	q.mu.Lock()
	ch, ok := q.waiters[jobID]
	if !ok {
		// Unknown job id: hand back an empty slot so the caller's select
		// simply never fires on it.
		ch = make(chan Completion, 1)
		q.waiters[jobID] = ch
	}
	q.mu.Unlock()

	return ch, func() { q.detach(jobID) }
}

func (q *memoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *memoryQueue) Complete(_ context.Context, jobID string, c Completion) error {
	c.JobID = jobID

	q.mu.Lock()
	ch, ok := q.waiters[jobID]
	q.mu.Unlock()

	if !ok {
		// Listener already detached (e.g. the waiter timed out). The report
		// is observed by nobody.
		return nil
	}
	// The slot buffers one signal and stays registered until the waiter
	// detaches, so a listener attaching after completion still observes it.
	// A duplicate report is dropped, never delivered twice.
	select {
	case ch <- c:
	default:
	}
	return nil
}

func (q *memoryQueue) detach(jobID string) {
	q.mu.Lock()
	delete(q.waiters, jobID)
	q.mu.Unlock()
}

func (q *memoryQueue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	q.mu.Unlock()
}
