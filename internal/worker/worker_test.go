package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/jobgate/jobgate/internal/broker"
	"github.com/jobgate/jobgate/internal/envelope"
	"github.com/jobgate/jobgate/internal/routetable"
	"github.com/jobgate/jobgate/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) *routetable.Table {
	t.Helper()
	return routetable.NewBuilder("/users").
		Handle(http.MethodGet, "/:id", func(_ context.Context, req *envelope.Request) (*envelope.Result, error) {
			body, _ := json.Marshal(map[string]string{"id": req.Params["id"]})
			return &envelope.Result{StatusCode: http.StatusOK, Result: body}, nil
		}).
		Handle(http.MethodGet, "/teapot", func(_ context.Context, _ *envelope.Request) (*envelope.Result, error) {
			return nil, envelope.Upstream(http.StatusTeapot, "short and stout")
		}).
		Build()
}

func startProcessor(t *testing.T, q broker.Queue, opts Options) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewProcessor(q, testTable(t), opts).Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestProcessorSuccess(t *testing.T) {
	t.Parallel()

	b := broker.NewMemory()
	t.Cleanup(func() { _ = b.Close() })
	q := b.Queue("users")
	startProcessor(t, q, Options{})

	id, err := q.Submit(context.Background(), envelope.Request{Method: http.MethodGet, URL: "/users/42"})
	require.NoError(t, err)

	res, err := broker.Await(context.Background(), q, id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"id":"42"}`, string(res.Result))
}

func TestProcessorReportsFailureStatus(t *testing.T) {
	t.Parallel()

	b := broker.NewMemory()
	t.Cleanup(func() { _ = b.Close() })
	q := b.Queue("users")
	startProcessor(t, q, Options{})

	id, err := q.Submit(context.Background(), envelope.Request{Method: http.MethodGet, URL: "/users/teapot"})
	require.NoError(t, err)

	_, err = broker.Await(context.Background(), q, id, 5*time.Second)
	require.Error(t, err)
	coded := envelope.AsError(err)
	assert.Equal(t, http.StatusTeapot, coded.StatusCode)
	assert.Equal(t, "short and stout", coded.Message)
}

func TestProcessorNotFound(t *testing.T) {
	t.Parallel()

	b := broker.NewMemory()
	t.Cleanup(func() { _ = b.Close() })
	q := b.Queue("users")
	startProcessor(t, q, Options{})

	id, err := q.Submit(context.Background(), envelope.Request{Method: http.MethodDelete, URL: "/users/42/unknown"})
	require.NoError(t, err)

	_, err = broker.Await(context.Background(), q, id, 5*time.Second)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, envelope.AsError(err).StatusCode)
}

func TestProcessorHealthShortCircuit(t *testing.T) {
	t.Parallel()

	b := broker.NewMemory()
	t.Cleanup(func() { _ = b.Close() })
	q := b.Queue("users")
	startProcessor(t, q, Options{})

	// HEALTH is reserved: it never reaches user handlers, even though the
	// table has no HEALTH bin.
	id, err := q.Submit(context.Background(), envelope.Request{Method: envelope.MethodHealth, URL: "/"})
	require.NoError(t, err)

	res, err := broker.Await(context.Background(), q, id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestProcessorAppendsJobLog(t *testing.T) {
	t.Parallel()

	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	jobLog := storage.NewJobLog(db)

	b := broker.NewMemory()
	t.Cleanup(func() { _ = b.Close() })
	q := b.Queue("users")
	startProcessor(t, q, Options{JobLog: jobLog})

	id, err := q.Submit(context.Background(), envelope.Request{Method: http.MethodGet, URL: "/users/42"})
	require.NoError(t, err)
	_, err = broker.Await(context.Background(), q, id, 5*time.Second)
	require.NoError(t, err)

	// The log append happens after the completion is reported; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := jobLog.Recent(context.Background(), "users", 10)
		require.NoError(t, err)
		if len(entries) == 1 {
			assert.Equal(t, id, entries[0].JobID)
			assert.Equal(t, http.StatusOK, entries[0].StatusCode)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job log entry never appeared, got %d entries", len(entries))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProcessorConcurrentJobs(t *testing.T) {
	t.Parallel()

	b := broker.NewMemory()
	t.Cleanup(func() { _ = b.Close() })
	q := b.Queue("users")
	startProcessor(t, q, Options{Concurrency: 4})

	const n = 8
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := q.Submit(context.Background(), envelope.Request{Method: http.MethodGet, URL: "/users/7"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		res, err := broker.Await(context.Background(), q, id, 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.StatusCode)
	}
}
