package kafka

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/ava-labs/kafka-fanout/pkg/producermanager"
)

const queueFullErrorRetryDelay = time.Second

// TopicConfig is the per-topic configuration accepted by Client.NewTopic.
type TopicConfig struct {
	// Properties are librdkafka topic-level properties (e.g. "message.timeout.ms",
	// "partitioner"). They are applied when the first topic opens the producer.
	Properties kafka.ConfigMap

	// Headers are attached to every message produced to the topic.
	Headers map[string]string

	// DeliveryTimeout bounds the wait for a delivery report. Zero uses the
	// client's DeliveryTimeout.
	DeliveryTimeout time.Duration
}

func topicConfigFrom(conf any) (TopicConfig, error) {
	switch tc := conf.(type) {
	case nil:
		return TopicConfig{}, nil
	case TopicConfig:
		return tc, nil
	case *TopicConfig:
		if tc == nil {
			return TopicConfig{}, nil
		}
		return *tc, nil
	default:
		return TopicConfig{}, fmt.Errorf("unsupported topic config type %T", conf)
	}
}

func (tc TopicConfig) kafkaHeaders() []kafka.Header {
	if len(tc.Headers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tc.Headers))
	for k := range tc.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(tc.Headers[k])})
	}
	return headers
}

// Topic is a handle producing to a single Kafka topic through a Client.
type Topic struct {
	name            string
	client          *Client
	headers         []kafka.Header
	deliveryTimeout time.Duration
}

var _ producermanager.Topic = (*Topic)(nil)

func (t *Topic) Name() string {
	return t.name
}

// Produce synchronously produces a message to the topic.
//
// Produce blocks until a delivery report is received, the topic's delivery
// timeout elapses or ctx is canceled. If the producer queue is full, the
// message will be retried internally with a 1 second delay.
//
// partition may be producermanager.PartitionUnassigned to let the configured
// partitioner choose. msgFlags must be producermanager.MsgFlagsNone.
//
// If Produce returns because of the timeout or ctx, the message MAY still be
// delivered afterwards.
func (t *Topic) Produce(ctx context.Context, partition int32, msgFlags int, value, key []byte) error {
	if msgFlags != producermanager.MsgFlagsNone {
		return fmt.Errorf("unsupported message flags %#x", msgFlags)
	}

	p, err := t.client.handle()
	if err != nil {
		return err
	}

	if partition == producermanager.PartitionUnassigned {
		partition = kafka.PartitionAny
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &t.name,
			Partition: partition,
		},
		Value:   value,
		Key:     key,
		Headers: slices.Clone(t.headers),
	}

	// Not closed: a late report after a timeout must not hit a closed channel.
	deliveryCh := make(chan kafka.Event, 1)
	if err := t.client.produceWithRetry(ctx, p, msg, deliveryCh); err != nil {
		return err
	}

	timer := time.NewTimer(t.deliveryTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no delivery report for topic %s within %s", t.name, t.deliveryTimeout)
	case e := <-deliveryCh:
		err := handleDeliveryEvent(t.client.log, msg, e)
		t.client.metrics.RecordDeliveryReport(err)
		return err
	}
}

// produceWithRetry produces a message to Kafka with retry logic.
//
// If the context is done, produceWithRetry returns the context error.
// If the producer queue is full, produceWithRetry sleeps for 1 second and retries.
// If the broker is not available, message size is invalid, the message is invalid,
// topic or partition is unknown, or the authentication fails, produceWithRetry returns an error.
func (c *Client) produceWithRetry(
	ctx context.Context,
	p *kafka.Producer,
	msg *kafka.Message,
	deliveryCh chan kafka.Event,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := p.Produce(msg, deliveryCh)
		if err == nil {
			return nil
		}

		var kafkaErr kafka.Error
		if !errors.As(err, &kafkaErr) {
			return fmt.Errorf("failed to produce: %w", err)
		}

		switch kafkaErr.Code() {
		case kafka.ErrQueueFull:
			c.metrics.IncQueueFullRetry()
			c.log.Warnf("producer queue full, retrying in %s", queueFullErrorRetryDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(queueFullErrorRetryDelay):
			}
			continue
		case kafka.ErrBrokerNotAvailable:
			return fmt.Errorf("broker not available: %w", err)
		case kafka.ErrInvalidMsgSize:
			return fmt.Errorf("invalid message size: %w", err)
		case kafka.ErrInvalidMsg:
			return fmt.Errorf("invalid message: %w", err)
		case kafka.ErrUnknownTopicOrPart, kafka.ErrUnknownPartition:
			return fmt.Errorf("unknown topic or partition: %w", err)
		case kafka.ErrAuthentication:
			return fmt.Errorf("authentication error: %w", err)
		default:
			return fmt.Errorf("failed to produce: %w", err)
		}
	}
}

func handleDeliveryEvent(log *zap.SugaredLogger, msg *kafka.Message, ev kafka.Event) error {
	switch e := ev.(type) {
	case *kafka.Message:
		if err := e.TopicPartition.Error; err != nil {
			return fmt.Errorf("delivery failed: %w", err)
		}

		log.Debugf(
			"delivered to topic [%s] partition [%d] at offset [%d]",
			*msg.TopicPartition.Topic,
			e.TopicPartition.Partition,
			e.TopicPartition.Offset,
		)
		return nil

	case kafka.Error:
		return fmt.Errorf(
			"kafka error: code=%d fatal=%t: %w",
			e.Code(),
			e.IsFatal(),
			e,
		)

	default:
		return fmt.Errorf("unexpected delivery event: %T", ev)
	}
}
