package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/kafka-fanout/pkg/metrics"
)

func TestDispatcher_NotifyInOrder(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var got []string
	d := NewDispatcher(
		ListenerFunc(func(e Event) { got = append(got, "first:"+e.Origin) }),
	)
	d.now = func() time.Time { return fixed }
	d.Subscribe(ListenerFunc(func(e Event) {
		got = append(got, "second:"+e.Origin)
		assert.Equal(t, fixed, e.Time)
	}))

	d.Notify("producer")

	assert.Equal(t, []string{"first:producer", "second:producer"}, got)
}

func TestDispatcher_NoListeners(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	require.NotPanics(t, func() { d.Notify("producer") })
}

func TestDispatcher_Concurrent(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		count int
	)
	d := NewDispatcher()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.Subscribe(ListenerFunc(func(Event) {
				mu.Lock()
				count++
				mu.Unlock()
			}))
		}()
		go func() {
			defer wg.Done()
			d.Notify("producer")
		}()
	}
	wg.Wait()

	d.Notify("producer")

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, count, 10)
}

func TestLogListener(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	d := NewDispatcher(LogListener(zap.New(core).Sugar()))

	d.Notify("producer")

	entries := logs.FilterMessage("produce notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "producer", entries[0].ContextMap()["origin"])
}

func TestMetricsListener(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	d := NewDispatcher(MetricsListener(m))
	d.Notify("producer")
	d.Notify("producer")

	families, err := reg.Gather()
	require.NoError(t, err)

	var value float64
	for _, mf := range families {
		if mf.GetName() == "fanout_notifications_total" {
			value = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(2), value)
}

func TestMetricsListener_NilMetrics(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(MetricsListener(nil))
	require.NotPanics(t, func() { d.Notify("producer") })
}
