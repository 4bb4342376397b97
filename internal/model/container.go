package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
)

// containerGateway writes the request envelope to a temporary file and
// invokes an external binary with (requestPath, responsePath) as its
// two positional arguments. The response is read from responsePath
// after a zero exit; a missing response file after a zero exit is
// still a transport error.
type containerGateway struct {
	cfg    Config
	logger *zap.Logger
}

func newContainerGateway(cfg Config, logger *zap.Logger) *containerGateway {
	return &containerGateway{cfg: cfg, logger: logger}
}

func (g *containerGateway) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	dir, err := os.MkdirTemp("", "meridian-exec-")
	if err != nil {
		return nil, fmt.Errorf("create exec dir: %w", err)
	}
	defer os.RemoveAll(dir)

	reqPath := filepath.Join(dir, "request.json")
	respPath := filepath.Join(dir, "response.json")
	if err := os.WriteFile(reqPath, body, 0o600); err != nil {
		return nil, fmt.Errorf("write request file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.cfg.ContainerBinary, reqPath, respPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &TransportError{Backend: ModeContainer, Detail: "call timed out", Err: ctx.Err()}
		}
		return nil, &TransportError{
			Backend: ModeContainer,
			Detail:  "exec failed: " + stderr.String(),
			Err:     err,
		}
	}

	respBody, err := os.ReadFile(respPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &TransportError{Backend: ModeContainer, Detail: "response file missing after zero exit"}
		}
		return nil, &TransportError{Backend: ModeContainer, Detail: "read response file", Err: err}
	}

	var out InvokeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &TransportError{Backend: ModeContainer, Detail: "decode response", Err: err}
	}

	g.logger.Debug("model invoked",
		zap.String("mode", ModeContainer),
		zap.String("stop_reason", out.StopReason))
	return &out, nil
}
