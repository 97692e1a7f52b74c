package metrics

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	server := NewServer(":0", reg, nil) // :0 lets OS pick available port

	require.NotNil(t, server)
	require.NotNil(t, server.httpServer)
	require.Equal(t, ":0", server.httpServer.Addr)
}

func httpGet(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}

func startServer(t *testing.T, addr string, reg *prometheus.Registry, ready ReadyFunc) {
	t.Helper()

	server := NewServer(addr, reg, ready)
	errCh := server.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		<-errCh
	})

	// Give server time to start
	time.Sleep(50 * time.Millisecond)
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := httpGet(t.Context(), url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_StartAndShutdown(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	server := NewServer("127.0.0.1:19190", reg, nil)
	errCh := server.Start()

	time.Sleep(50 * time.Millisecond)

	status, body := getBody(t, "http://127.0.0.1:19190/health")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	// Normal shutdown closes the channel without an error
	err, ok := <-errCh
	require.False(t, ok)
	require.NoError(t, err)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveProduce(StatusSuccess, 10*time.Millisecond)
	m.IncTopicPublish("orders", StatusSuccess)
	m.IncConfigError(ConfigErrorNoBrokerSet)

	startServer(t, "127.0.0.1:19191", reg, nil)

	status, body := getBody(t, "http://127.0.0.1:19191/metrics")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "fanout_produce_calls_total")
	require.Contains(t, body, "fanout_topic_publishes_total")
	require.Contains(t, body, "fanout_config_errors_total")
}

func TestServer_ReadyEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()

	var ready atomic.Bool
	startServer(t, "127.0.0.1:19192", reg, ready.Load)

	status, body := getBody(t, "http://127.0.0.1:19192/ready")
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, "not ready", body)

	ready.Store(true)

	status, body = getBody(t, "http://127.0.0.1:19192/ready")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ready", body)
}

func TestServer_ReadyEndpoint_NilFunc(t *testing.T) {
	reg := prometheus.NewRegistry()
	startServer(t, "127.0.0.1:19193", reg, nil)

	status, _ := getBody(t, "http://127.0.0.1:19193/ready")
	require.Equal(t, http.StatusOK, status)
}
