package model

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Gateway invokes the language model through one of the configured
// execution backends. All backends normalize to InvokeResponse.
type Gateway interface {
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error)
}

// Execution modes.
const (
	ModeInProcess = "inprocess"
	ModeSandbox   = "sandbox"
	ModeContainer = "container"
)

// Config selects and parameterizes the execution backend.
type Config struct {
	Mode            string
	Endpoint        string
	APIKey          string
	SandboxCommand  []string
	ContainerBinary string
	Timeout         time.Duration
}

// DefaultTimeout bounds a single model invocation when the config
// doesn't set one.
const DefaultTimeout = 120 * time.Second

// ConfigError indicates the gateway cannot be used as configured.
// It is fatal and never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "model gateway misconfigured: " + e.Reason
}

// TransportError indicates a backend-level failure for one call:
// a subprocess exited non-zero, a response file was missing, or the
// call timed out. It aborts the current turn.
type TransportError struct {
	Backend string
	Detail  string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s transport: %s: %v", e.Backend, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s transport: %s", e.Backend, e.Detail)
}

func (e *TransportError) Unwrap() error { return e.Err }

// New constructs the gateway for the configured mode. The returned
// gateway is built once at startup and shared; it holds no per-call
// state beyond its HTTP client.
func New(cfg Config, logger *zap.Logger) (Gateway, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch cfg.Mode {
	case ModeInProcess:
		if cfg.APIKey == "" {
			return nil, &ConfigError{Reason: "inprocess mode requires an API key"}
		}
		return newInProcessGateway(cfg, logger), nil
	case ModeSandbox:
		if len(cfg.SandboxCommand) == 0 {
			return nil, &ConfigError{Reason: "sandbox mode requires a command"}
		}
		return newSandboxGateway(cfg, logger), nil
	case ModeContainer:
		if cfg.ContainerBinary == "" {
			return nil, &ConfigError{Reason: "container mode requires a binary path"}
		}
		return newContainerGateway(cfg, logger), nil
	case "":
		return nil, &ConfigError{Reason: "execution mode not set"}
	default:
		return nil, &ConfigError{Reason: "unknown execution mode " + cfg.Mode}
	}
}
