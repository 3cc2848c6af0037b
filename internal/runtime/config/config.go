package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DispatchMode selects how published messages reach their subscribers.
type DispatchMode string

const (
	// DispatchDirect delivers while holding the bus write lock.
	DispatchDirect DispatchMode = "direct"
	// DispatchStaged pushes messages onto a bounded queue that a drain loop
	// running on the executor consumes in batches.
	DispatchStaged DispatchMode = "staged"
)

const (
	DefaultMaxSubscribersPerTopic = 1000
	DefaultMaxHistorySize         = 100
	DefaultStagingQueueCapacity   = 1024
	DefaultStagingBatchSize       = 20
	DefaultStagingPushRetries     = 3
	DefaultStagingIdleInterval    = 5 * time.Millisecond
	DefaultExecutorWorkers        = 4
	DefaultWebUIPort              = 8081
)

// NoStagingPushRetries makes the staged backend fall back to inline dispatch
// on the first failed push.
const NoStagingPushRetries = -1

// Config groups the settings required to initialise a Bus. Zero values are
// replaced by the package defaults in WithDefaults.
type Config struct {
	// DispatchMode selects the execution backend. Supported values: "direct"
	// (default) or "staged".
	DispatchMode DispatchMode

	// MaxSubscribersPerTopic caps the number of subscribers registered for one
	// (message type, topic) pair.
	MaxSubscribersPerTopic int
	// MaxHistorySize caps the number of messages retained per (type, topic).
	MaxHistorySize int

	// Staged backend tuning.
	StagingQueueCapacity int
	StagingBatchSize     int
	// StagingPushRetries is the number of additional push attempts made before
	// a message is dispatched inline. Zero selects the default; any negative
	// value, such as NoStagingPushRetries, disables retries.
	StagingPushRetries  int
	StagingIdleInterval time.Duration

	// ExecutorWorkers sizes the worker pool the bus creates when no executor
	// is supplied through the dependencies.
	ExecutorWorkers int

	// Metrics configuration.
	MetricsEnabled bool
	// MetricsPort is the port where Prometheus metrics will be exposed.
	MetricsPort int

	// WebUI configuration.
	WebUIEnabled bool
	// WebUIPort is the port where the introspection API will be exposed. Defaults to 8081.
	WebUIPort int
	// WebUICORSAllowedOrigins specifies allowed origins for CORS. Use "*" for development
	// or specific origins like "https://example.com" for production. Empty disables CORS headers.
	WebUICORSAllowedOrigins []string
}

// WithDefaults returns a copy of the configuration with every unset field
// replaced by its default.
func (c Config) WithDefaults() Config {
	out := c
	if out.DispatchMode == "" {
		out.DispatchMode = DispatchDirect
	}
	out.DispatchMode = DispatchMode(strings.ToLower(string(out.DispatchMode)))
	if out.MaxSubscribersPerTopic == 0 {
		out.MaxSubscribersPerTopic = DefaultMaxSubscribersPerTopic
	}
	if out.MaxHistorySize == 0 {
		out.MaxHistorySize = DefaultMaxHistorySize
	}
	if out.StagingQueueCapacity == 0 {
		out.StagingQueueCapacity = DefaultStagingQueueCapacity
	}
	if out.StagingBatchSize == 0 {
		out.StagingBatchSize = DefaultStagingBatchSize
	}
	switch {
	case out.StagingPushRetries == 0:
		out.StagingPushRetries = DefaultStagingPushRetries
	case out.StagingPushRetries < 0:
		out.StagingPushRetries = NoStagingPushRetries
	}
	if out.StagingIdleInterval == 0 {
		out.StagingIdleInterval = DefaultStagingIdleInterval
	}
	if out.ExecutorWorkers == 0 {
		out.ExecutorWorkers = DefaultExecutorWorkers
	}
	if out.WebUIEnabled && out.WebUIPort == 0 {
		out.WebUIPort = DefaultWebUIPort
	}
	return out
}

func (c Config) String() string {
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(c))
}

// Validate reports every invalid setting at once. Zero values are accepted
// because WithDefaults replaces them.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateMode()...)
	errs = append(errs, c.validateLimits()...)
	errs = append(errs, c.validateStaging()...)
	errs = append(errs, c.validatePorts()...)

	return errors.Join(errs...)
}

func (c *Config) validateMode() []error {
	switch DispatchMode(strings.ToLower(string(c.DispatchMode))) {
	case "", DispatchDirect, DispatchStaged:
		return nil
	default:
		return []error{fmt.Errorf("dispatch: unsupported mode %q", c.DispatchMode)}
	}
}

func (c *Config) validateLimits() []error {
	var errs []error
	if c.MaxSubscribersPerTopic < 0 {
		errs = append(errs, errors.New("limits: max subscribers per topic cannot be negative"))
	}
	if c.MaxHistorySize < 0 {
		errs = append(errs, errors.New("limits: max history size cannot be negative"))
	}
	if c.ExecutorWorkers < 0 {
		errs = append(errs, errors.New("executor: worker count cannot be negative"))
	}
	return errs
}

func (c *Config) validateStaging() []error {
	var errs []error
	if c.StagingQueueCapacity < 0 {
		errs = append(errs, errors.New("staging: queue capacity cannot be negative"))
	}
	if c.StagingBatchSize < 0 {
		errs = append(errs, errors.New("staging: batch size cannot be negative"))
	}
	if c.StagingIdleInterval < 0 {
		errs = append(errs, errors.New("staging: idle interval cannot be negative"))
	}
	return errs
}

func (c *Config) validatePorts() []error {
	var errs []error
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.MetricsPort))
	}
	if c.WebUIPort < 0 || c.WebUIPort > 65535 {
		errs = append(errs, fmt.Errorf("webui: invalid port %d", c.WebUIPort))
	}
	return errs
}

// ValidateConfig is a convenience function to validate a config pointer.
// Returns nil if the config is valid.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
