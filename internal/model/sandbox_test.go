//go:build unix

package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func sandboxWith(t *testing.T, script string) Gateway {
	t.Helper()
	gw, err := New(Config{
		Mode:           ModeSandbox,
		SandboxCommand: []string{"/bin/sh", "-c", script},
		Timeout:        10 * time.Second,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gw
}

func TestSandboxRoundTrip(t *testing.T) {
	// The stub reads the request from stdin and echoes a fixed response.
	gw := sandboxWith(t, `cat > /dev/null; echo '{"content": [{"type": "text", "text": "hello"}], "stop_reason": "end_turn"}'`)

	resp, err := gw.Invoke(context.Background(), &InvokeRequest{
		Model:     "test",
		MaxTokens: 100,
		Messages:  []Message{TextMessage("user", "hi")},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(resp.Content) != 1 || resp.Content[0].Text != "hello" {
		t.Errorf("got content %+v, want one hello text block", resp.Content)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("got stop_reason %q, want end_turn", resp.StopReason)
	}
}

func TestSandboxReceivesRequestOnStdin(t *testing.T) {
	// The stub greps the request for the model name and reports it back.
	gw := sandboxWith(t, `grep -q '"model":"probe-model"' && echo '{"content": [{"type": "text", "text": "seen"}], "stop_reason": "end_turn"}'`)

	resp, err := gw.Invoke(context.Background(), &InvokeRequest{
		Model:     "probe-model",
		MaxTokens: 1,
		Messages:  []Message{TextMessage("user", "hi")},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if resp.Content[0].Text != "seen" {
		t.Errorf("request did not reach the subprocess stdin")
	}
}

func TestSandboxToolUseResponse(t *testing.T) {
	gw := sandboxWith(t, `cat > /dev/null; echo '{"content": [{"type": "tool_use", "id": "tu_1", "name": "calculate", "input": {"calculator": "loan_payment"}}], "stop_reason": "tool_use"}'`)

	resp, err := gw.Invoke(context.Background(), &InvokeRequest{Model: "test", Messages: []Message{TextMessage("user", "hi")}})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	block, ok := resp.FirstToolUse()
	if !ok {
		t.Fatal("expected a tool_use block")
	}
	if block.Name != "calculate" || block.ID != "tu_1" {
		t.Errorf("got block %+v", block)
	}
}

func TestSandboxNonZeroExit(t *testing.T) {
	gw := sandboxWith(t, `echo "backend exploded" >&2; exit 3`)

	_, err := gw.Invoke(context.Background(), &InvokeRequest{Model: "test"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want TransportError", err)
	}
	if te.Backend != ModeSandbox {
		t.Errorf("got backend %q, want sandbox", te.Backend)
	}
}

func TestSandboxGarbageOutput(t *testing.T) {
	gw := sandboxWith(t, `cat > /dev/null; echo 'not json'`)

	_, err := gw.Invoke(context.Background(), &InvokeRequest{Model: "test"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want TransportError", err)
	}
}

func TestSandboxTimeout(t *testing.T) {
	gw, err := New(Config{
		Mode:           ModeSandbox,
		SandboxCommand: []string{"/bin/sh", "-c", "sleep 5"},
		Timeout:        100 * time.Millisecond,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	_, err = gw.Invoke(context.Background(), &InvokeRequest{Model: "test"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want TransportError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want wrapped DeadlineExceeded", err)
	}
}
