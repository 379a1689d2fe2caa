package dispatch

import (
	"github.com/jobgate/jobgate/internal/broker"
)

//go:generate mockgen -destination=mocks/mock_broker.go -package=mocks github.com/jobgate/jobgate/internal/broker Queue,Broker

// JobBroker is the broker surface the dispatcher needs: queue handles by
// name.
type JobBroker interface {
	Queue(name string) broker.Queue
}
