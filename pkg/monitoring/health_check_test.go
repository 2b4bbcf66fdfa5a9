package monitoring

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradex-ops/tradexd/pkg/logging"
)

func runOptions() HealthCheckRunOptions {
	return HealthCheckRunOptions{
		Enabled:  true,
		Interval: 50 * time.Millisecond,
		Timeout:  40 * time.Millisecond,
	}
}

func TestHealthMonitor_HTTPHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &HealthCheckConfig{
		Type:       HealthCheckTypeHTTP,
		HTTP:       HTTPHealthCheckConfig{URL: server.URL},
		RunOptions: runOptions(),
	}

	monitor := NewHealthMonitor(cfg, "dashboard_app", 0, logging.NewNopLogger())
	require.NoError(t, monitor.Start(context.Background()))
	defer monitor.Stop()

	require.Eventually(t, func() bool {
		return monitor.State().Status == HealthCheckStatusHealthy
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthMonitor_HTTPUnhealthyCallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := &HealthCheckConfig{
		Type:       HealthCheckTypeHTTP,
		HTTP:       HTTPHealthCheckConfig{URL: server.URL},
		RunOptions: runOptions(),
	}

	var fired atomic.Bool
	monitor := NewHealthMonitor(cfg, "dashboard_app", 0, logging.NewNopLogger())
	monitor.SetUnhealthyCallback(func(reason string) {
		fired.Store(true)
	})

	require.NoError(t, monitor.Start(context.Background()))
	defer monitor.Stop()

	require.Eventually(t, func() bool {
		return monitor.State().Status == HealthCheckStatusUnhealthy
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, fired.Load, time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, monitor.State().ConsecutiveFailures, 2)
}

func TestHealthMonitor_TCP(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port
	cfg := &HealthCheckConfig{
		Type:       HealthCheckTypeTCP,
		TCP:        TCPHealthCheckConfig{Port: port},
		RunOptions: runOptions(),
	}

	monitor := NewHealthMonitor(cfg, "webhook_app", 0, logging.NewNopLogger())
	require.NoError(t, monitor.Start(context.Background()))
	defer monitor.Stop()

	require.Eventually(t, func() bool {
		return monitor.State().Status == HealthCheckStatusHealthy
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthMonitor_TCPClosedPort(t *testing.T) {
	port, err := freeport.GetFreePort()
	require.NoError(t, err)

	cfg := &HealthCheckConfig{
		Type:       HealthCheckTypeTCP,
		TCP:        TCPHealthCheckConfig{Port: port},
		RunOptions: runOptions(),
	}

	monitor := NewHealthMonitor(cfg, "webhook_app", 0, logging.NewNopLogger())
	require.NoError(t, monitor.Start(context.Background()))
	defer monitor.Stop()

	require.Eventually(t, func() bool {
		return monitor.State().Status == HealthCheckStatusUnhealthy
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthMonitor_Process(t *testing.T) {
	cfg := &HealthCheckConfig{
		Type:       HealthCheckTypeProcess,
		RunOptions: runOptions(),
	}

	monitor := NewHealthMonitor(cfg, "email_reader", os.Getpid(), logging.NewNopLogger())
	require.NoError(t, monitor.Start(context.Background()))
	defer monitor.Stop()

	require.Eventually(t, func() bool {
		return monitor.State().Status == HealthCheckStatusHealthy
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthMonitor_InvalidConfig(t *testing.T) {
	cfg := &HealthCheckConfig{
		Type:       HealthCheckTypeHTTP,
		RunOptions: runOptions(),
	}

	monitor := NewHealthMonitor(cfg, "dashboard_app", 0, logging.NewNopLogger())
	assert.Error(t, monitor.Start(context.Background()))
}

func TestValidateHealthCheckConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  HealthCheckConfig
		wantErr string
	}{
		{
			name:   "zero value is disabled",
			config: HealthCheckConfig{},
		},
		{
			name: "valid http",
			config: HealthCheckConfig{
				Type:       HealthCheckTypeHTTP,
				HTTP:       HTTPHealthCheckConfig{URL: "http://127.0.0.1:5000/"},
				RunOptions: runOptions(),
			},
		},
		{
			name: "http without url",
			config: HealthCheckConfig{
				Type:       HealthCheckTypeHTTP,
				RunOptions: runOptions(),
			},
			wantErr: "requires a url",
		},
		{
			name: "tcp with bad port",
			config: HealthCheckConfig{
				Type:       HealthCheckTypeTCP,
				TCP:        TCPHealthCheckConfig{Port: 70000},
				RunOptions: runOptions(),
			},
			wantErr: "invalid tcp health check port",
		},
		{
			name: "unknown type",
			config: HealthCheckConfig{
				Type:       "grpc",
				RunOptions: runOptions(),
			},
			wantErr: "unsupported health check type",
		},
		{
			name: "timeout exceeds interval",
			config: HealthCheckConfig{
				Type: HealthCheckTypeProcess,
				RunOptions: HealthCheckRunOptions{
					Interval: 10 * time.Millisecond,
					Timeout:  20 * time.Millisecond,
				},
			},
			wantErr: "exceeds interval",
		},
		{
			name: "non-positive interval",
			config: HealthCheckConfig{
				Type: HealthCheckTypeProcess,
				RunOptions: HealthCheckRunOptions{
					Timeout: 10 * time.Millisecond,
				},
			},
			wantErr: "interval must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHealthCheckConfig(tt.config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
