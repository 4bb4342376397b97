//go:build unix

package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

// writeStub writes an executable shell script and returns its path.
func writeStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func containerWith(t *testing.T, stubBody string) Gateway {
	t.Helper()
	gw, err := New(Config{
		Mode:            ModeContainer,
		ContainerBinary: writeStub(t, stubBody),
		Timeout:         10 * time.Second,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gw
}

func TestContainerRoundTrip(t *testing.T) {
	// $1 is the request path, $2 the response path. The stub checks the
	// request file exists, then writes a fixed response.
	gw := containerWith(t, `
test -s "$1" || exit 1
cat > "$2" <<'EOF'
{"content": [{"type": "text", "text": "from container"}], "stop_reason": "end_turn"}
EOF`)

	resp, err := gw.Invoke(context.Background(), &InvokeRequest{
		Model:     "test",
		MaxTokens: 100,
		Messages:  []Message{TextMessage("user", "hi")},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(resp.Content) != 1 || resp.Content[0].Text != "from container" {
		t.Errorf("got content %+v", resp.Content)
	}
}

func TestContainerRequestFileCarriesEnvelope(t *testing.T) {
	gw := containerWith(t, `
grep -q '"model":"probe-model"' "$1" || exit 2
echo '{"content": [], "stop_reason": "end_turn"}' > "$2"`)

	if _, err := gw.Invoke(context.Background(), &InvokeRequest{Model: "probe-model"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
}

func TestContainerNonZeroExit(t *testing.T) {
	gw := containerWith(t, `echo "binary crashed" >&2; exit 7`)

	_, err := gw.Invoke(context.Background(), &InvokeRequest{Model: "test"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want TransportError", err)
	}
	if te.Backend != ModeContainer {
		t.Errorf("got backend %q, want container", te.Backend)
	}
}

func TestContainerMissingResponseFile(t *testing.T) {
	// Zero exit, but the stub never writes the response file.
	gw := containerWith(t, `exit 0`)

	_, err := gw.Invoke(context.Background(), &InvokeRequest{Model: "test"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want TransportError", err)
	}
	if te.Detail != "response file missing after zero exit" {
		t.Errorf("got detail %q", te.Detail)
	}
}

func TestContainerTimeout(t *testing.T) {
	stub := writeStub(t, `sleep 5`)
	gw, err := New(Config{
		Mode:            ModeContainer,
		ContainerBinary: stub,
		Timeout:         100 * time.Millisecond,
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
