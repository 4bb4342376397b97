package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"

	"go.uber.org/zap"
)

// sandboxGateway spawns one subprocess per call. Exactly one JSON
// request object is written to the process's stdin and exactly one
// JSON response object is read back from its stdout. A non-zero exit
// is a transport error carrying the process's stderr.
type sandboxGateway struct {
	cfg    Config
	logger *zap.Logger
}

func newSandboxGateway(cfg Config, logger *zap.Logger) *sandboxGateway {
	return &sandboxGateway{cfg: cfg, logger: logger}
}

func (g *sandboxGateway) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.New("marshal request: " + err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.cfg.SandboxCommand[0], g.cfg.SandboxCommand[1:]...)
	cmd.Stdin = bytes.NewReader(body)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &TransportError{Backend: ModeSandbox, Detail: "call timed out", Err: ctx.Err()}
		}
		return nil, &TransportError{
			Backend: ModeSandbox,
			Detail:  "subprocess failed: " + stderr.String(),
			Err:     err,
		}
	}

	var out InvokeResponse
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, &TransportError{Backend: ModeSandbox, Detail: "decode response", Err: err}
	}

	g.logger.Debug("model invoked",
		zap.String("mode", ModeSandbox),
		zap.String("stop_reason", out.StopReason))
	return &out, nil
}
