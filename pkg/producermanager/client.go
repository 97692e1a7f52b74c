package producermanager

import "context"

const (
	// Origin tags notifications emitted by the producer manager.
	Origin = "producer"

	// PartitionUnassigned lets the client pick the partition.
	PartitionUnassigned int32 = -1

	// MsgFlagsNone is the only message flag value the fan-out sends.
	MsgFlagsNone = 0
)

// Client is the producer handle the Manager configures and publishes through.
type Client interface {
	// SetLogLevel forwards a syslog-style severity threshold to the client.
	SetLogLevel(level int) error

	// AddBrokers adds a comma-separated list of broker addresses.
	AddBrokers(brokers string) error

	// NewTopic creates a topic handle. conf is passed through untouched and
	// its meaning is up to the implementation.
	NewTopic(name string, conf any) (Topic, error)
}

// Topic is a handle to a single destination topic.
type Topic interface {
	Name() string

	// Produce publishes one message. A nil key means no key.
	Produce(ctx context.Context, partition int32, msgFlags int, value, key []byte) error
}

// Notifier receives the origin tag after each successful fan-out.
type Notifier interface {
	Notify(origin string)
}
