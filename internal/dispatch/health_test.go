package dispatch

import (
	"context"
	"net/http"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobgate/jobgate/internal/broker"
	"github.com/jobgate/jobgate/internal/dispatch/mocks"
	"github.com/jobgate/jobgate/internal/envelope"
	"github.com/jobgate/jobgate/internal/routetable"
	"github.com/jobgate/jobgate/internal/worker"
)

func TestHealthAllQueuesUp(t *testing.T) {
	t.Parallel()

	b := broker.NewMemory()
	defer b.Close()

	// Empty route tables suffice: health probes short-circuit in the
	// processor and never reach handlers.
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	for _, name := range []string{"users", "orders"} {
		table := routetable.NewBuilder("/").Build()
		go worker.NewProcessor(b.Queue(name), table, worker.Options{}).Run(ctx)
	}

	report := NewHealthChecker(b, []string{"users", "orders"}).Check(context.Background())
	assert.True(t, report.Healthy())
	require.Len(t, report.Queues, 2)
	for _, qh := range report.Queues {
		assert.Equal(t, http.StatusOK, qh.StatusCode)
	}
}

func TestHealthSilentQueueFailsAggregate(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	up := mocks.NewMockQueue(ctrl)
	up.EXPECT().Name().Return("users").AnyTimes()
	up.EXPECT().Submit(gomock.Any(), gomock.Any()).Return("job-up", nil)
	done := make(chan broker.Completion, 1)
	done <- broker.Completion{JobID: "job-up", Result: &envelope.Result{StatusCode: http.StatusOK}}
	up.EXPECT().Completed("job-up").Return(readOnly(done), func() {})

	down := mocks.NewMockQueue(ctrl)
	down.EXPECT().Name().Return("orders").AnyTimes()
	down.EXPECT().Submit(gomock.Any(), gomock.Any()).Return("", assert.AnError)

	mb := mocks.NewMockBroker(ctrl)
	mb.EXPECT().Queue("users").Return(up)
	mb.EXPECT().Queue("orders").Return(down)

	report := NewHealthChecker(mb, []string{"users", "orders"}).Check(context.Background())
	assert.False(t, report.Healthy())
	assert.Equal(t, http.StatusServiceUnavailable, report.StatusCode)

	byQueue := make(map[string]QueueHealth, len(report.Queues))
	for _, qh := range report.Queues {
		byQueue[qh.Queue] = qh
	}
	assert.Equal(t, http.StatusOK, byQueue["users"].StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, byQueue["orders"].StatusCode)
	assert.NotEmpty(t, byQueue["orders"].Error)
}

func TestHealthNoQueues(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	report := NewHealthChecker(mocks.NewMockBroker(ctrl), nil).Check(context.Background())
	assert.True(t, report.Healthy())
	assert.Empty(t, report.Queues)
}

func readOnly(ch chan broker.Completion) <-chan broker.Completion { return ch }
