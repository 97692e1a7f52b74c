package producermanager

import "errors"

var (
	// ErrEntityNotSet is returned when an operation needs the producer client
	// before SetProducer was called.
	ErrEntityNotSet = errors.New("producer entity not set")

	// ErrNoBrokerSet is returned by AddTopic before AddBrokers succeeded.
	ErrNoBrokerSet = errors.New("no broker set")

	// ErrLogLevelNotSet is returned by AddTopic before SetLogLevel succeeded.
	ErrLogLevelNotSet = errors.New("log level not set")
)

// KafkaError reports a publish failure during the topic fan-out.
//
// Only the message text of the underlying error is kept. The error itself is
// not wrapped, so errors.Is and errors.As never see the original.
type KafkaError struct {
	Message string
}

func (e *KafkaError) Error() string {
	return e.Message
}

func newKafkaError(err error) *KafkaError {
	return &KafkaError{Message: err.Error()}
}
