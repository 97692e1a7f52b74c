package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/kafka-fanout/pkg/kafka"
	"github.com/ava-labs/kafka-fanout/pkg/producermanager"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// newTestContext builds a cli.Context for the given flags and arguments.
func newTestContext(t *testing.T, flags []cli.Flag, args ...string) *cli.Context {
	t.Helper()

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range flags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))

	return cli.NewContext(cli.NewApp(), set, nil)
}

func runCommandFlags() []cli.Flag {
	return append(commonFlags(), runFlags()...)
}

func TestBuildConfig_Defaults(t *testing.T) {
	t.Parallel()

	c := newTestContext(t, runCommandFlags(),
		"--bootstrap-servers", "localhost:9092",
		"--topics", "orders,events",
	)

	cfg, err := buildConfig(c)
	require.NoError(t, err)

	assert.Equal(t, "localhost:9092", cfg.BootstrapServers)
	assert.Equal(t, []string{"orders", "events"}, cfg.Topics)
	assert.Equal(t, 6, cfg.LogLevel)
	assert.Equal(t, int32(producermanager.PartitionUnassigned), cfg.Partition)
	assert.Nil(t, cfg.KeyBytes())
	assert.Equal(t, "-", cfg.Input)
	assert.Equal(t, "kafka-fanout", cfg.Client.ClientID)
	assert.Equal(t, "all", cfg.Client.Acks)
	require.NotNil(t, cfg.Client.FlushTimeout)
	assert.Equal(t, kafka.DefaultFlushTimeout, *cfg.Client.FlushTimeout)
	require.NotNil(t, cfg.Client.DeliveryTimeout)
	assert.Equal(t, kafka.DefaultDeliveryTimeout, *cfg.Client.DeliveryTimeout)
	assert.False(t, cfg.Client.SASL.Enabled())
	assert.Nil(t, cfg.TopicHeaders)
	assert.Equal(t, ":9090", cfg.MetricsAddr())
}

func TestBuildConfig_Overrides(t *testing.T) {
	t.Parallel()

	c := newTestContext(t, runCommandFlags(),
		"--bootstrap-servers", "b1:9092,b2:9092",
		"--topics", "orders",
		"--log-level", "7",
		"--key", "user-1",
		"--partition", "3",
		"--kafka-property", "linger.ms=5",
		"--kafka-property", "batch.size = 1000",
		"--topic-header", "source=cli",
		"--kafka-sasl-username", "alice",
		"--metrics-host", "127.0.0.1",
		"--metrics-port", "9191",
		"--flush-timeout", "2s",
	)

	cfg, err := buildConfig(c)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.LogLevel)
	assert.Equal(t, []byte("user-1"), cfg.KeyBytes())
	assert.Equal(t, int32(3), cfg.Partition)
	assert.Equal(t, map[string]string{"linger.ms": "5", "batch.size": "1000"}, cfg.Client.Properties)
	assert.Equal(t, map[string]string{"source": "cli"}, cfg.TopicHeaders)
	assert.True(t, cfg.Client.SASL.Enabled())
	assert.Equal(t, "127.0.0.1:9191", cfg.MetricsAddr())
	assert.Equal(t, 2*time.Second, *cfg.Client.FlushTimeout)
}

func TestBuildConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "log level too high",
			args:    []string{"--topics", "orders", "--log-level", "8"},
			wantErr: "log-level must be between 0 and 7",
		},
		{
			name:    "log level negative",
			args:    []string{"--topics", "orders", "--log-level", "-1"},
			wantErr: "log-level must be between 0 and 7",
		},
		{
			name:    "no topics",
			args:    []string{"--topics", " , "},
			wantErr: "at least one topic is required",
		},
		{
			name:    "bad partition",
			args:    []string{"--topics", "orders", "--partition", "-2"},
			wantErr: "partition must be -1",
		},
		{
			name:    "bad property",
			args:    []string{"--topics", "orders", "--kafka-property", "linger.ms"},
			wantErr: "invalid kafka-property",
		},
		{
			name:    "bad header",
			args:    []string{"--topics", "orders", "--topic-header", "=x"},
			wantErr: "invalid topic-header",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestContext(t, runCommandFlags(), tt.args...)
			_, err := buildConfig(c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseTopics(t *testing.T) {
	t.Parallel()

	topics, err := parseTopics(" orders, events ,,orders,audit ")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "events", "audit"}, topics)

	_, err = parseTopics("")
	require.Error(t, err)
}

func TestParseKeyValues(t *testing.T) {
	t.Parallel()

	got, err := parseKeyValues(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseKeyValues([]string{"a=1", "b=x=y", "a=2", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "2", "b": "x=y", "empty": ""}, got)

	_, err = parseKeyValues([]string{"novalue"})
	require.Error(t, err)
}

func TestTopicSpecs(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Topics:                      []string{"orders", "events"},
		KafkaTopicNumPartitions:     3,
		KafkaTopicReplicationFactor: 1,
	}

	assert.Equal(t, []kafka.TopicSpec{
		{Name: "orders", NumPartitions: 3, ReplicationFactor: 1},
		{Name: "events", NumPartitions: 3, ReplicationFactor: 1},
	}, cfg.TopicSpecs())
}

func TestReadLines_SkipsBlankLines(t *testing.T) {
	t.Parallel()

	lines, errs := readLines(context.Background(), strings.NewReader("a\n\nb\nc"))

	var got []string
	for line := range lines {
		got = append(got, string(line))
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
	require.NoError(t, <-errs)
}

func TestReadLines_ReportsOversizedLine(t *testing.T) {
	t.Parallel()

	input := "first\n" + strings.Repeat("x", maxLineSize+1) + "\nthird\n"
	lines, errs := readLines(context.Background(), strings.NewReader(input))

	var got []string
	for line := range lines {
		got = append(got, string(line))
	}
	assert.Equal(t, []string{"first"}, got)
	require.ErrorIs(t, <-errs, bufio.ErrTooLong)
}

func TestReadLines_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	lines, errs := readLines(ctx, strings.NewReader("a\nb\nc\n"))

	first := <-lines
	assert.Equal(t, "a", string(first))
	cancel()

	// The reader may have one more line in flight before it observes cancellation.
	count := 0
	for range lines {
		count++
	}
	assert.LessOrEqual(t, count, 1)
	require.NoError(t, <-errs)
}

// scriptedTopic records "topic:value" for each publish. It fails when the
// pair is in fail, and cancels the run when the value equals cancelOn.
type scriptedTopic struct {
	name      string
	fail      map[string]error
	cancelOn  string
	cancel    context.CancelFunc
	published *[]string
}

func (t *scriptedTopic) Name() string { return t.name }

func (t *scriptedTopic) Produce(_ context.Context, _ int32, _ int, value, _ []byte) error {
	if t.cancelOn != "" && string(value) == t.cancelOn {
		t.cancel()
		return context.Canceled
	}
	entry := t.name + ":" + string(value)
	if err := t.fail[entry]; err != nil {
		return err
	}
	*t.published = append(*t.published, entry)
	return nil
}

// scriptedClient hands out pre-built topics by name.
type scriptedClient struct {
	topics map[string]*scriptedTopic
}

func (c *scriptedClient) SetLogLevel(int) error { return nil }
func (c *scriptedClient) AddBrokers(string) error { return nil }

func (c *scriptedClient) NewTopic(name string, _ any) (producermanager.Topic, error) {
	return c.topics[name], nil
}

// publisherFunc adapts a function to linePublisher.
type publisherFunc func(ctx context.Context, message, key []byte, partition int32) error

func (f publisherFunc) ProduceToPartition(ctx context.Context, message, key []byte, partition int32) error {
	return f(ctx, message, key, partition)
}

func TestPublishLines(t *testing.T) {
	t.Parallel()

	errBrokerDown := errors.New("broker down")

	tests := []struct {
		name            string
		input           string
		fail            map[string]error
		cancelOn        string
		continueOnError bool
		wantPublished   []string
		wantErr         string
		wantErrIs       error
	}{
		{
			name:          "all lines fan out in order",
			input:         "a\nb\n",
			wantPublished: []string{"orders:a", "events:a", "orders:b", "events:b"},
		},
		{
			name:          "failure stops the stream",
			input:         "a\nb\nc\n",
			fail:          map[string]error{"orders:b": errBrokerDown},
			wantPublished: []string{"orders:a", "events:a"},
			wantErr:       "failed to produce message: broker down",
		},
		{
			name:            "kafka error is skipped with continue on error",
			input:           "a\nb\nc\n",
			fail:            map[string]error{"events:b": errBrokerDown},
			continueOnError: true,
			wantPublished:   []string{"orders:a", "events:a", "orders:b", "orders:c", "events:c"},
		},
		{
			name:          "cancellation during publish returns nil",
			input:         "a\nb\nc\n",
			cancelOn:      "b",
			wantPublished: []string{"orders:a", "events:a"},
		},
		{
			name:            "oversized line fails the run",
			input:           "first\n" + strings.Repeat("x", maxLineSize+1) + "\nthird\nfourth\n",
			continueOnError: true,
			wantPublished:   []string{"orders:first", "events:first"},
			wantErr:         "failed to read input",
			wantErrIs:       bufio.ErrTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var published []string
			client := &scriptedClient{topics: map[string]*scriptedTopic{}}
			for _, name := range []string{"orders", "events"} {
				client.topics[name] = &scriptedTopic{
					name:      name,
					fail:      tt.fail,
					cancelOn:  tt.cancelOn,
					cancel:    cancel,
					published: &published,
				}
			}

			log := zaptest.NewLogger(t).Sugar()
			pm := producermanager.New(log, nil).SetProducer(client)
			require.NoError(t, pm.SetLogLevel(6))
			require.NoError(t, pm.AddBrokers("localhost:9092"))
			require.NoError(t, pm.AddTopic("orders", nil))
			require.NoError(t, pm.AddTopic("events", nil))

			cfg := &Config{
				Partition:       producermanager.PartitionUnassigned,
				ContinueOnError: tt.continueOnError,
			}
			lines, readErrs := readLines(ctx, strings.NewReader(tt.input))
			err := publishLines(ctx, log, pm, lines, readErrs, cfg)

			assert.Equal(t, tt.wantPublished, published)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
			if tt.wantErrIs != nil {
				require.ErrorIs(t, err, tt.wantErrIs)
			}
		})
	}
}

func TestPublishLines_FailureKeepsKafkaError(t *testing.T) {
	t.Parallel()

	pub := publisherFunc(func(context.Context, []byte, []byte, int32) error {
		return &producermanager.KafkaError{Message: "broker down"}
	})
	lines, readErrs := readLines(context.Background(), strings.NewReader("a\nb\n"))

	err := publishLines(context.Background(), zaptest.NewLogger(t).Sugar(), pub, lines, readErrs, &Config{})

	var kerr *producermanager.KafkaError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, "broker down", kerr.Message)
}

func TestPublishLines_OtherErrorsAbortDespiteContinueOnError(t *testing.T) {
	t.Parallel()

	calls := 0
	pub := publisherFunc(func(context.Context, []byte, []byte, int32) error {
		calls++
		return errors.New("not a kafka error")
	})
	lines, readErrs := readLines(context.Background(), strings.NewReader("a\nb\nc\n"))

	err := publishLines(context.Background(), zaptest.NewLogger(t).Sugar(), pub, lines, readErrs, &Config{ContinueOnError: true})

	require.ErrorContains(t, err, "failed to produce message: not a kafka error")
	assert.Equal(t, 1, calls)
}

func TestAdminConfigMap(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		BootstrapServers: "b1:9093,b2:9093",
		Client: kafka.ClientConfig{
			Properties: map[string]string{
				"bootstrap.servers":                     "b0:9093, b1:9093",
				"ssl.ca.location":                       "/etc/kafka/ca.pem",
				"ssl.endpoint.identification.algorithm": "https",
			},
			SASL: kafka.SASLConfig{
				Username:         "svc",
				Password:         "secret",
				Mechanism:        "SCRAM-SHA-512",
				SecurityProtocol: "SASL_SSL",
			},
		},
	}

	assert.Equal(t, confluentKafka.ConfigMap{
		"bootstrap.servers":                     "b0:9093,b1:9093,b2:9093",
		"ssl.ca.location":                       "/etc/kafka/ca.pem",
		"ssl.endpoint.identification.algorithm": "https",
		"security.protocol":                     "SASL_SSL",
		"sasl.mechanisms":                       "SCRAM-SHA-512",
		"sasl.username":                         "svc",
		"sasl.password":                         "secret",
	}, adminConfigMap(cfg))
}
