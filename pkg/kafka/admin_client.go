package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const (
	// metadataTimeout is the timeout for Kafka metadata operations.
	metadataTimeout = 10 * time.Second
)

// AdminAPI is the subset of *kafka.AdminClient used to provision topics.
type AdminAPI interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	CreateTopics(ctx context.Context, topics []kafka.TopicSpecification, options ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error)
	CreatePartitions(ctx context.Context, partitions []kafka.PartitionsSpecification, options ...kafka.CreatePartitionsAdminOption) ([]kafka.TopicResult, error)
}

var _ AdminAPI = (*kafka.AdminClient)(nil)

// TopicSpec describes a topic to provision before it is registered for fan-out.
type TopicSpec struct {
	Name              string // Required: topic name
	NumPartitions     int    // Required: number of partitions (must be > 0)
	ReplicationFactor int    // Required: replication factor (must be > 0)
}

// Validate checks if the TopicSpec is valid for topic creation.
func (ts TopicSpec) Validate() error {
	if ts.Name == "" {
		return errors.New("topic name cannot be empty")
	}
	if ts.NumPartitions <= 0 {
		return fmt.Errorf("number of partitions must be > 0, got %d", ts.NumPartitions)
	}
	if ts.ReplicationFactor <= 0 {
		return fmt.Errorf("replication factor must be > 0, got %d", ts.ReplicationFactor)
	}
	return nil
}

// TopicExists returns the topic metadata, or nil if the topic does not exist.
// A non-nil error means existence could not be determined.
func TopicExists(admin AdminAPI, topicName string) (*kafka.TopicMetadata, error) {
	metadata, err := admin.GetMetadata(&topicName, false, int(metadataTimeout.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for topic %q: %w", topicName, err)
	}

	topicMetadata, exists := metadata.Topics[topicName]
	if !exists || topicMetadata.Error.Code() == kafka.ErrUnknownTopicOrPart {
		return nil, nil
	}

	if topicMetadata.Error.Code() != kafka.ErrNoError {
		return nil, fmt.Errorf("topic %q has error: %w", topicName, topicMetadata.Error)
	}

	return &topicMetadata, nil
}

// CreateTopic creates a new Kafka topic. An already existing topic is logged
// and not treated as an error.
func CreateTopic(ctx context.Context, admin AdminAPI, spec TopicSpec, log *zap.SugaredLogger) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid topic spec: %w", err)
	}

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             spec.Name,
		NumPartitions:     spec.NumPartitions,
		ReplicationFactor: spec.ReplicationFactor,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topic %q: %w", spec.Name, err)
	}

	for _, result := range results {
		switch result.Error.Code() {
		case kafka.ErrNoError:
			log.Infow("created topic",
				"topic", result.Topic,
				"partitions", spec.NumPartitions,
				"replicationFactor", spec.ReplicationFactor)
		case kafka.ErrTopicAlreadyExists:
			log.Infow("topic already exists", "topic", result.Topic)
		default:
			return fmt.Errorf("failed to create topic %q: %w", result.Topic, result.Error)
		}
	}

	return nil
}

// EnsureTopic makes sure a topic exists with at least spec.NumPartitions.
//
//   - Missing topics are created.
//   - Topics with fewer partitions are grown.
//   - Topics with more partitions fail, since Kafka cannot shrink them.
//   - A differing replication factor is only logged.
func EnsureTopic(ctx context.Context, admin AdminAPI, spec TopicSpec, log *zap.SugaredLogger) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid topic spec: %w", err)
	}

	topicMetadata, err := TopicExists(admin, spec.Name)
	if err != nil {
		return fmt.Errorf("failed to check topic existence: %w", err)
	}

	if topicMetadata == nil {
		return CreateTopic(ctx, admin, spec, log)
	}

	currentPartitions := len(topicMetadata.Partitions)
	if currentRF := replicationFactor(topicMetadata); currentRF != spec.ReplicationFactor {
		log.Warnw("topic replication factor differs from config",
			"topic", spec.Name,
			"current", currentRF,
			"desired", spec.ReplicationFactor)
	}

	switch {
	case currentPartitions < spec.NumPartitions:
		log.Infow("increasing topic partitions",
			"topic", spec.Name,
			"from", currentPartitions,
			"to", spec.NumPartitions)
		return increasePartitions(ctx, admin, spec.Name, spec.NumPartitions)
	case currentPartitions > spec.NumPartitions:
		return fmt.Errorf("topic %q has %d partitions, more than the configured %d", spec.Name, currentPartitions, spec.NumPartitions)
	default:
		return nil
	}
}

// EnsureTopics runs EnsureTopic for every spec, stopping at the first error.
func EnsureTopics(ctx context.Context, admin AdminAPI, specs []TopicSpec, log *zap.SugaredLogger) error {
	for _, spec := range specs {
		if err := EnsureTopic(ctx, admin, spec, log); err != nil {
			return err
		}
	}
	return nil
}

func increasePartitions(ctx context.Context, admin AdminAPI, topicName string, newPartitionCount int) error {
	results, err := admin.CreatePartitions(ctx, []kafka.PartitionsSpecification{{
		Topic:      topicName,
		IncreaseTo: newPartitionCount,
	}})
	if err != nil {
		return fmt.Errorf("failed to increase partitions for topic %q: %w", topicName, err)
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError {
			return fmt.Errorf("failed to increase partitions for topic %q: %w", result.Topic, result.Error)
		}
	}
	return nil
}

// replicationFactor returns 0 for a topic without partitions.
func replicationFactor(metadata *kafka.TopicMetadata) int {
	if len(metadata.Partitions) == 0 {
		return 0
	}
	return len(metadata.Partitions[0].Replicas)
}
