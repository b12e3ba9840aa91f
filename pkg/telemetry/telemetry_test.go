package telemetry

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, tel.Meter)
	require.NotNil(t, tel.Tracer)
	require.Nil(t, tel.MetricsHandler)
	require.Empty(t, tel.Addr())
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_ExportsCounters(t *testing.T) {
	tel, err := New(Config{Enabled: true, ServiceName: "gojosort-test"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, tel.Shutdown(context.Background())) })
	require.Empty(t, tel.Addr())

	counter, err := tel.Meter.Int64Counter("test_counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	tel.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "test_counter")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestNew_ServesMetricsEndpoint(t *testing.T) {
	port := freePort(t)
	tel, err := New(Config{Enabled: true, ServiceName: "gojosort-test", PrometheusPort: port}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, tel.Shutdown(context.Background())) })
	require.NotEmpty(t, tel.Addr())

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, Config{}.Validate())
	require.Error(t, Config{Enabled: true}.Validate())
	require.Error(t, Config{Enabled: true, ServiceName: "x", PrometheusPort: 70000}.Validate())
	require.NoError(t, Config{Enabled: true, ServiceName: "x", PrometheusPort: 9100}.Validate())
}
