package monitoring

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tradex-ops/tradexd/pkg/errors"
	"github.com/tradex-ops/tradexd/pkg/logging"
	"github.com/tradex-ops/tradexd/pkg/process"
)

type HealthCheckType string

const (
	HealthCheckTypeHTTP    HealthCheckType = "http"
	HealthCheckTypeTCP     HealthCheckType = "tcp"
	HealthCheckTypeProcess HealthCheckType = "process"
)

type HTTPHealthCheckConfig struct {
	URL    string `yaml:"url"`
	Method string `yaml:"method,omitempty"`
}

type TCPHealthCheckConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port"`
}

type HealthCheckConfig struct {
	Type HealthCheckType `yaml:"type"`

	// HTTP health check (dashboard and webhook endpoints)
	HTTP HTTPHealthCheckConfig `yaml:"http,omitempty"`

	// TCP health check (plain port probe)
	TCP TCPHealthCheckConfig `yaml:"tcp,omitempty"`

	// Run options
	RunOptions HealthCheckRunOptions `yaml:"run_options,omitempty"`
}

type HealthCheckRunOptions struct {
	Enabled      bool          `yaml:"enabled,omitempty"`
	Interval     time.Duration `yaml:"interval,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
}

type HealthCheckStatus string

const (
	HealthCheckStatusUnknown   HealthCheckStatus = "unknown"
	HealthCheckStatusHealthy   HealthCheckStatus = "healthy"
	HealthCheckStatusDegraded  HealthCheckStatus = "degraded"
	HealthCheckStatusUnhealthy HealthCheckStatus = "unhealthy"
)

type HealthCheckState struct {
	Status               HealthCheckStatus
	LastCheck            time.Time
	Message              string
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
}

// UnhealthyCallback fires when a program crosses into unhealthy status.
type UnhealthyCallback func(reason string)

// RecoveryCallback fires when a previously unhealthy program recovers.
type RecoveryCallback func()

type HealthMonitor interface {
	Start(ctx context.Context) error
	Stop()
	State() *HealthCheckState
	SetUnhealthyCallback(callback UnhealthyCallback)
	SetRecoveryCallback(callback RecoveryCallback)
}

type healthMonitor struct {
	config            *HealthCheckConfig
	state             *HealthCheckState
	stopChan          chan struct{}
	stopOnce          sync.Once
	wg                sync.WaitGroup
	mutex             sync.Mutex
	logger            logging.Logger
	name              string
	pid               int
	unhealthyCallback UnhealthyCallback
	recoveryCallback  RecoveryCallback
}

// NewHealthMonitor creates a monitor for the named program. pid is required
// for process checks and ignored otherwise.
func NewHealthMonitor(config *HealthCheckConfig, name string, pid int, logger logging.Logger) HealthMonitor {
	return &healthMonitor{
		config:   config,
		state:    &HealthCheckState{Status: HealthCheckStatusUnknown},
		stopChan: make(chan struct{}),
		logger:   logger,
		name:     name,
		pid:      pid,
	}
}

func (h *healthMonitor) Start(ctx context.Context) error {
	if err := ValidateHealthCheckConfig(*h.config); err != nil {
		h.logger.Errorf("Health check configuration validation failed, program: %s, error: %v", h.name, err)
		return errors.NewValidationError("invalid health check configuration", err).WithContext("program", h.name)
	}

	h.logger.Infof("Starting health monitor, program: %s, type: %s, interval: %v",
		h.name, h.config.Type, h.config.RunOptions.Interval)

	h.wg.Add(1)
	go h.loop()
	return nil
}

func (h *healthMonitor) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
	h.wg.Wait()
	h.logger.Debugf("Health monitor stopped, program: %s", h.name)
}

func (h *healthMonitor) State() *HealthCheckState {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	stateCopy := *h.state
	return &stateCopy
}

func (h *healthMonitor) SetUnhealthyCallback(callback UnhealthyCallback) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.unhealthyCallback = callback
}

func (h *healthMonitor) SetRecoveryCallback(callback RecoveryCallback) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.recoveryCallback = callback
}

func (h *healthMonitor) loop() {
	defer h.wg.Done()

	if h.config.RunOptions.InitialDelay > 0 {
		select {
		case <-time.After(h.config.RunOptions.InitialDelay):
		case <-h.stopChan:
			return
		}
	}

	ticker := time.NewTicker(h.config.RunOptions.Interval)
	defer ticker.Stop()

	h.performCheck()

	for {
		select {
		case <-ticker.C:
			h.performCheck()
		case <-h.stopChan:
			return
		}
	}
}

func (h *healthMonitor) performCheck() {
	h.mutex.Lock()
	h.state.LastCheck = time.Now()
	h.mutex.Unlock()

	var isHealthy bool
	var message string

	switch h.config.Type {
	case HealthCheckTypeHTTP:
		isHealthy, message = h.checkHTTP()
	case HealthCheckTypeTCP:
		isHealthy, message = h.checkTCP()
	case HealthCheckTypeProcess:
		isHealthy, message = h.checkProcess()
	default:
		isHealthy = false
		message = "unknown health check type: " + string(h.config.Type)
	}

	h.updateState(isHealthy, message)
}

func (h *healthMonitor) updateState(isHealthy bool, message string) {
	h.mutex.Lock()

	previousStatus := h.state.Status
	var fireUnhealthy UnhealthyCallback
	var fireRecovery RecoveryCallback

	if isHealthy {
		h.state.ConsecutiveSuccesses++
		h.state.ConsecutiveFailures = 0

		if previousStatus != HealthCheckStatusHealthy {
			h.state.Status = HealthCheckStatusHealthy
			h.logger.Infof("Health check recovered, program: %s, previous: %s", h.name, previousStatus)
			if previousStatus == HealthCheckStatusUnhealthy && h.recoveryCallback != nil {
				fireRecovery = h.recoveryCallback
			}
		}
	} else {
		h.state.ConsecutiveFailures++
		h.state.ConsecutiveSuccesses = 0

		// One failure is a degradation, two in a row is unhealthy.
		newStatus := HealthCheckStatusDegraded
		if h.state.ConsecutiveFailures > 1 {
			newStatus = HealthCheckStatusUnhealthy
		}

		if h.state.Status != newStatus {
			h.logger.Warnf("Health check status changed, program: %s, status: %s->%s, message: %s",
				h.name, previousStatus, newStatus, message)
		}
		h.state.Status = newStatus

		if newStatus == HealthCheckStatusUnhealthy && previousStatus != HealthCheckStatusUnhealthy && h.unhealthyCallback != nil {
			fireUnhealthy = h.unhealthyCallback
		}
	}

	h.state.Message = message
	h.mutex.Unlock()

	// Callbacks run outside the lock so they may query State().
	if fireUnhealthy != nil {
		go fireUnhealthy(message)
	}
	if fireRecovery != nil {
		go fireRecovery()
	}
}

func (h *healthMonitor) checkHTTP() (bool, string) {
	client := &http.Client{
		Timeout: h.config.RunOptions.Timeout,
	}

	method := h.config.HTTP.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequest(method, h.config.HTTP.URL, nil)
	if err != nil {
		return false, fmt.Sprintf("failed to create HTTP request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("HTTP request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return true, fmt.Sprintf("HTTP check passed: %s", resp.Status)
	}
	return false, fmt.Sprintf("HTTP check failed: %s", resp.Status)
}

func (h *healthMonitor) checkTCP() (bool, string) {
	host := h.config.TCP.Host
	if host == "" {
		host = "127.0.0.1"
	}
	address := net.JoinHostPort(host, fmt.Sprintf("%d", h.config.TCP.Port))

	conn, err := net.DialTimeout("tcp", address, h.config.RunOptions.Timeout)
	if err != nil {
		return false, fmt.Sprintf("TCP connection failed: %v", err)
	}
	defer conn.Close()

	return true, fmt.Sprintf("TCP connection successful to %s", address)
}

func (h *healthMonitor) checkProcess() (bool, string) {
	running, err := process.IsRunning(h.pid)
	if err != nil {
		return false, fmt.Sprintf("process check failed for PID %d: %v", h.pid, err)
	}
	if !running {
		return false, fmt.Sprintf("process not running: PID %d", h.pid)
	}
	return true, fmt.Sprintf("process is running: PID %d", h.pid)
}
