package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jobgate/jobgate/internal/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitResolvesWithCompletion(t *testing.T) {
	t.Parallel()

	b := NewMemory()
	t.Cleanup(func() { _ = b.Close() })
	q := b.Queue("users")

	id, err := q.Submit(context.Background(), envelope.Request{Method: http.MethodGet, URL: "/users/42"})
	require.NoError(t, err)

	go func() {
		job, err := q.Dequeue(context.Background())
		if err != nil {
			return
		}
		_ = q.Complete(context.Background(), job.ID, Completion{
			Result: &envelope.Result{StatusCode: 200, Result: json.RawMessage(`{"id":42}`)},
		})
	}()

	res, err := Await(context.Background(), q, id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
	assert.JSONEq(t, `{"id":42}`, string(res.Result))
}

func TestAwaitPropagatesFailureStatus(t *testing.T) {
	t.Parallel()

	b := NewMemory()
	t.Cleanup(func() { _ = b.Close() })
	q := b.Queue("users")

	id, err := q.Submit(context.Background(), envelope.Request{Method: http.MethodGet, URL: "/users/42"})
	require.NoError(t, err)

	go func() {
		job, err := q.Dequeue(context.Background())
		if err != nil {
			return
		}
		_ = q.Complete(context.Background(), job.ID, Completion{
			Err: envelope.Upstream(http.StatusConflict, "version conflict"),
		})
	}()

	_, err = Await(context.Background(), q, id, 5*time.Second)
	require.Error(t, err)
	coded := envelope.AsError(err)
	assert.Equal(t, http.StatusConflict, coded.StatusCode)
	assert.Equal(t, "version conflict", coded.Message)
}

func TestAwaitTimesOutAndIgnoresLateSignal(t *testing.T) {
	t.Parallel()

	b := NewMemory()
	t.Cleanup(func() { _ = b.Close() })
	q := b.Queue("users")

	id, err := q.Submit(context.Background(), envelope.Request{Method: http.MethodGet, URL: "/users/42"})
	require.NoError(t, err)

	start := time.Now()
	_, err = Await(context.Background(), q, id, 50*time.Millisecond)
	require.Error(t, err)
	coded := envelope.AsError(err)
	assert.Equal(t, http.StatusGatewayTimeout, coded.StatusCode)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// The worker completes long after the timer fired. The listener was
	// detached, so the report must be dropped without re-resolving anything.
	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NoError(t, q.Complete(context.Background(), job.ID, Completion{
		Result: &envelope.Result{StatusCode: 200},
	}))

	done, detach := q.Completed(id)
	defer detach()
	select {
	case <-done:
		t.Fatal("late completion leaked to a fresh listener")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAwaitContextCancellation(t *testing.T) {
	t.Parallel()

	b := NewMemory()
	t.Cleanup(func() { _ = b.Close() })
	q := b.Queue("users")

	id, err := q.Submit(context.Background(), envelope.Request{Method: http.MethodGet, URL: "/users/42"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Await(ctx, q, id, time.Second)
	require.Error(t, err)
}
