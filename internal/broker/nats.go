package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jobgate/jobgate/internal/envelope"
	"github.com/jobgate/jobgate/internal/log"
	"github.com/nats-io/nats.go"
)

// NATSOptions configures the NATS-backed broker.
type NATSOptions struct {
	URL string
	// Name identifies this client on the server.
	Name string
	// Prefix namespaces all subjects (default "jobgate").
	Prefix string
}

// NATS is a broker over a NATS connection. Jobs are published on
// <prefix>.<queue>.jobs and consumed with a queue group (one consumer per
// job); completions are published on <prefix>.<queue>.done.<jobID>.
type NATS struct {
	nc     *nats.Conn
	prefix string

	mu     sync.Mutex
	queues map[string]*natsQueue
}

// ConnectNATS dials the NATS server with reconnect handling.
func ConnectNATS(opts NATSOptions) (*NATS, error) {
	if opts.Prefix == "" {
		opts.Prefix = "jobgate"
	}
	logger := log.WithComponent("broker")

	nc, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info("connected to nats", "url", nc.ConnectedUrl())

	return &NATS{nc: nc, prefix: opts.Prefix, queues: make(map[string]*natsQueue)}, nil
}

// NewNATS wraps an existing connection. The caller keeps ownership of nc's
// lifecycle when constructed this way.
func NewNATS(nc *nats.Conn, prefix string) *NATS {
	if prefix == "" {
		prefix = "jobgate"
	}
	return &NATS{nc: nc, prefix: prefix, queues: make(map[string]*natsQueue)}
}

// Queue returns the handle for name.
func (b *NATS) Queue(name string) Queue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = &natsQueue{
			nc:       b.nc,
			name:     name,
			jobsSubj: fmt.Sprintf("%s.%s.jobs", b.prefix, name),
			doneSubj: fmt.Sprintf("%s.%s.done", b.prefix, name),
			waiters:  make(map[string]*natsWaiter),
		}
		b.queues[name] = q
	}
	return q
}

// Close drains the connection.
func (b *NATS) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nc.IsClosed() {
		return nil
	}
	return b.nc.Drain()
}

type natsWaiter struct {
	sub *nats.Subscription
	ch  chan Completion
}

type natsQueue struct {
	nc       *nats.Conn
	name     string
	jobsSubj string
	doneSubj string

	mu      sync.Mutex
	consume *nats.Subscription
	waiters map[string]*natsWaiter
}

func (q *natsQueue) Name() string { return q.name }

func (q *natsQueue) Submit(ctx context.Context, req envelope.Request) (string, error) {
	if q.nc.IsClosed() {
		return "", ErrClosed
	}
	id := uuid.NewString()

	// Subscribe for the completion before the job is published so the
	// signal cannot slip past the waiter.
	ch := make(chan Completion, 1)
	subject := q.doneSubj + "." + id
	sub, err := q.nc.Subscribe(subject, func(msg *nats.Msg) {
		var c Completion
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			log.WithQueue(q.name).Error("discarding malformed completion", "job_id", id, "error", err)
			return
		}
		select {
		case ch <- c:
		default:
		}
	})
	if err != nil {
		return "", fmt.Errorf("subscribe completion: %w", err)
	}
	// One completion resolves the wait; anything after is dropped.
	if err := sub.AutoUnsubscribe(1); err != nil {
		_ = sub.Unsubscribe()
		return "", fmt.Errorf("limit completion subscription: %w", err)
	}

	q.mu.Lock()
	q.waiters[id] = &natsWaiter{sub: sub, ch: ch}
	q.mu.Unlock()

	data, err := json.Marshal(&Job{ID: id, Queue: q.name, Data: req})
	if err != nil {
		q.detach(id)
		return "", fmt.Errorf("encode job: %w", err)
	}
	if err := q.nc.Publish(q.jobsSubj, data); err != nil {
		q.detach(id)
		return "", fmt.Errorf("publish job: %w", err)
	}
	return id, nil
}

func (q *natsQueue) Completed(jobID string) (<-chan Completion, func()) {
	q.mu.Lock()
	w, ok := q.waiters[jobID]
	q.mu.Unlock()
	if !ok {
		// Unknown job id: an empty slot that never fires.
		return make(chan Completion, 1), func() {}
	}
	return w.ch, func() { q.detach(jobID) }
}

func (q *natsQueue) Dequeue(ctx context.Context) (*Job, error) {
	sub, err := q.consumer()
	if err != nil {
		return nil, err
	}

	msg, err := sub.NextMsgWithContext(ctx)
	if err != nil {
		if q.nc.IsClosed() {
			return nil, ErrClosed
		}
		return nil, err
	}

	var job Job
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

func (q *natsQueue) Complete(_ context.Context, jobID string, c Completion) error {
	c.JobID = jobID
	data, err := json.Marshal(&c)
	if err != nil {
		return fmt.Errorf("encode completion: %w", err)
	}
	if err := q.nc.Publish(q.doneSubj+"."+jobID, data); err != nil {
		return fmt.Errorf("publish completion: %w", err)
	}
	return nil
}

// consumer lazily creates the queue-group subscription shared by every
// Dequeue call of this process.
func (q *natsQueue) consumer() (*nats.Subscription, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.consume != nil {
		return q.consume, nil
	}
	sub, err := q.nc.QueueSubscribeSync(q.jobsSubj, q.name)
	if err != nil {
		return nil, fmt.Errorf("subscribe jobs: %w", err)
	}
	q.consume = sub
	return sub, nil
}

func (q *natsQueue) detach(jobID string) {
	q.mu.Lock()
	w, ok := q.waiters[jobID]
	if ok {
		delete(q.waiters, jobID)
	}
	q.mu.Unlock()
	if ok {
		_ = w.sub.Unsubscribe()
	}
}
