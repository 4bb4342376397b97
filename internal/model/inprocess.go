package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// inProcessGateway calls the model API directly over HTTP from the
// current process.
type inProcessGateway struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func newInProcessGateway(cfg Config, logger *zap.Logger) *inProcessGateway {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com/v1"
	}
	return &inProcessGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (g *inProcessGateway) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.cfg.Endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", g.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Backend: ModeInProcess, Detail: "send request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &TransportError{
			Backend: ModeInProcess,
			Detail:  fmt.Sprintf("API error %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var out InvokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &TransportError{Backend: ModeInProcess, Detail: "decode response", Err: err}
	}

	g.logger.Debug("model invoked",
		zap.String("mode", ModeInProcess),
		zap.String("stop_reason", out.StopReason),
		zap.Int("blocks", len(out.Content)))
	return &out, nil
}
