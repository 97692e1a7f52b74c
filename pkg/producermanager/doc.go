// Package producermanager gates a Kafka producer behind a strict setup order
// and fans every produce call out to all registered topics.
//
// Setup order
//   - SetProducer attaches the producer client.
//   - SetLogLevel and AddBrokers configure the client. They are siblings:
//     each only requires the producer, not each other.
//   - AddTopic requires the producer, the brokers and the log level, checked
//     in that order, and registers a topic handle created by the client.
//
// Misconfiguration fails fast with a distinct sentinel (ErrEntityNotSet,
// ErrNoBrokerSet, ErrLogLevelNotSet) before anything reaches the client.
//
// Publishing
//
// Produce publishes the same message to every registered topic in
// registration order. The first failing topic stops the loop: earlier topics
// stay published, later ones are skipped, and the failure is reported as a
// *KafkaError carrying only the original message text. When every topic
// succeeds the attached Notifier receives Origin exactly once.
//
// A Manager is not safe for concurrent use. Configure it once, then call
// Produce sequentially; use one Manager per goroutine when producing in
// parallel.
package producermanager
