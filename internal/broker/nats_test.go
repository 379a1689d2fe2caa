package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jobgate/jobgate/internal/envelope"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T) *nats.Conn {
	t.Helper()

	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // random free port
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("nats server failed to start")
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(5*time.Second))
	require.NoError(t, err)

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

func TestNATSRoundTrip(t *testing.T) {
	nc := startTestServer(t)
	b := NewNATS(nc, "jobgate-test")

	gateway := b.Queue("users")
	worker := b.Queue("users")

	go func() {
		job, err := worker.Dequeue(context.Background())
		if err != nil {
			return
		}
		_ = worker.Complete(context.Background(), job.ID, Completion{
			Result: &envelope.Result{StatusCode: 200, Result: json.RawMessage(`{"id":42}`)},
		})
	}()

	// Give the consumer a moment to establish its queue-group subscription;
	// core NATS drops messages published before any subscriber exists.
	time.Sleep(100 * time.Millisecond)

	id, err := gateway.Submit(context.Background(), envelope.Request{Method: http.MethodGet, URL: "/users/42"})
	require.NoError(t, err)

	res, err := Await(context.Background(), gateway, id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
	assert.JSONEq(t, `{"id":42}`, string(res.Result))
}

func TestNATSFailureCompletion(t *testing.T) {
	nc := startTestServer(t)
	b := NewNATS(nc, "jobgate-test")

	gateway := b.Queue("orders")
	worker := b.Queue("orders")

	go func() {
		job, err := worker.Dequeue(context.Background())
		if err != nil {
			return
		}
		_ = worker.Complete(context.Background(), job.ID, Completion{
			Err: envelope.Upstream(http.StatusUnprocessableEntity, "bad order"),
		})
	}()

	time.Sleep(100 * time.Millisecond)

	id, err := gateway.Submit(context.Background(), envelope.Request{Method: http.MethodPost, URL: "/orders", Body: json.RawMessage(`{}`)})
	require.NoError(t, err)

	_, err = Await(context.Background(), gateway, id, 5*time.Second)
	require.Error(t, err)
	coded := envelope.AsError(err)
	assert.Equal(t, http.StatusUnprocessableEntity, coded.StatusCode)
	assert.Equal(t, "bad order", coded.Message)
}

func TestNATSAwaitTimeout(t *testing.T) {
	nc := startTestServer(t)
	b := NewNATS(nc, "jobgate-test")

	q := b.Queue("silent")
	// Nobody consumes this queue.
	id, err := q.Submit(context.Background(), envelope.Request{Method: http.MethodGet, URL: "/"})
	require.NoError(t, err)

	_, err = Await(context.Background(), q, id, 200*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, http.StatusGatewayTimeout, envelope.AsError(err).StatusCode)
}
