package monitoring

import (
	"fmt"
	"net/url"
)

// ValidateHealthCheckConfig validates a health check configuration. The zero
// value (no type) is valid and means no health monitoring.
func ValidateHealthCheckConfig(config HealthCheckConfig) error {
	if config.Type == "" {
		return nil
	}

	switch config.Type {
	case HealthCheckTypeHTTP:
		if config.HTTP.URL == "" {
			return fmt.Errorf("http health check requires a url")
		}
		if _, err := url.ParseRequestURI(config.HTTP.URL); err != nil {
			return fmt.Errorf("invalid http health check url %q: %w", config.HTTP.URL, err)
		}
	case HealthCheckTypeTCP:
		if config.TCP.Port <= 0 || config.TCP.Port > 65535 {
			return fmt.Errorf("invalid tcp health check port: %d", config.TCP.Port)
		}
	case HealthCheckTypeProcess:
		// No extra configuration.
	default:
		return fmt.Errorf("unsupported health check type: %s (supported: http, tcp, process)", config.Type)
	}

	if config.RunOptions.Interval <= 0 {
		return fmt.Errorf("health check interval must be positive: %v", config.RunOptions.Interval)
	}
	if config.RunOptions.Timeout <= 0 {
		return fmt.Errorf("health check timeout must be positive: %v", config.RunOptions.Timeout)
	}
	if config.RunOptions.Timeout > config.RunOptions.Interval {
		return fmt.Errorf("health check timeout %v exceeds interval %v", config.RunOptions.Timeout, config.RunOptions.Interval)
	}
	if config.RunOptions.InitialDelay < 0 {
		return fmt.Errorf("health check initial delay cannot be negative: %v", config.RunOptions.InitialDelay)
	}
	return nil
}
