package testutils

import (
	"context"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// NewTestLogger creates a test logger that writes to testing.T
func NewTestLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// NewTopicMetadata builds metadata for a topic with the given partition count,
// each partition replicated replicationFactor times.
func NewTopicMetadata(topic string, partitions, replicationFactor int) kafka.TopicMetadata {
	md := kafka.TopicMetadata{Topic: topic}
	for i := 0; i < partitions; i++ {
		replicas := make([]int32, replicationFactor)
		for r := range replicas {
			replicas[r] = int32(r + 1)
		}
		md.Partitions = append(md.Partitions, kafka.PartitionMetadata{
			ID:       int32(i),
			Replicas: replicas,
		})
	}
	return md
}

// MockAdmin is a mock implementation of the admin client used for topic provisioning
type MockAdmin struct {
	mock.Mock
}

func (m *MockAdmin) GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error) {
	args := m.Called(*topic, allTopics, timeoutMs)
	md, _ := args.Get(0).(*kafka.Metadata)
	return md, args.Error(1)
}

func (m *MockAdmin) CreateTopics(ctx context.Context, topics []kafka.TopicSpecification, _ ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error) {
	args := m.Called(ctx, topics)
	results, _ := args.Get(0).([]kafka.TopicResult)
	return results, args.Error(1)
}

func (m *MockAdmin) CreatePartitions(ctx context.Context, partitions []kafka.PartitionsSpecification, _ ...kafka.CreatePartitionsAdminOption) ([]kafka.TopicResult, error) {
	args := m.Called(ctx, partitions)
	results, _ := args.Get(0).([]kafka.TopicResult)
	return results, args.Error(1)
}
