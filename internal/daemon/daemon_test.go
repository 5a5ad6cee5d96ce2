package daemon_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skyward-systems/acp"
	"github.com/skyward-systems/acp/internal/daemon"
	acpmetrics "github.com/skyward-systems/acp/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loopback implements io.ReadWriter over a plain bytes.Buffer, enough for
// ConnHandler.Serve's single read pass in these tests.
type loopback struct {
	*bytes.Buffer
}

func (loopback) Write(p []byte) (int, error) { return len(p), nil }

func TestGuardedSessionEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	sess, err := acp.NewSession(1, bytes.Repeat([]byte{0x42}, 32), 0)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	g := daemon.NewGuardedSession(sess)

	payload := []byte("telemetry-payload")
	dst := make([]byte, acp.MaxEncodedLen(acp.FlagAuthenticated, len(payload)))
	n, err := g.Encode(dst, acp.FrameTypeTelemetry, acp.FlagAuthenticated, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var f acp.Frame
	scratch := make([]byte, 2048)
	if _, err := g.Decode(&f, scratch, dst[:n]); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Errorf("Decode payload = %q, want %q", f.Payload, payload)
	}
}

func TestConnHandlerServeAcceptsFrameAndUpdatesMetrics(t *testing.T) {
	t.Parallel()

	sendSess, err := acp.NewSession(1, bytes.Repeat([]byte{0x11}, 32), 0)
	if err != nil {
		t.Fatalf("NewSession (sender): %v", err)
	}
	recvSess, err := acp.NewSession(1, bytes.Repeat([]byte{0x11}, 32), 0)
	if err != nil {
		t.Fatalf("NewSession (receiver): %v", err)
	}

	payload := []byte("hello")
	dst := make([]byte, acp.MaxEncodedLen(acp.FlagAuthenticated, len(payload)))
	n, err := acp.Encode(dst, acp.FrameTypeTelemetry, acp.FlagAuthenticated, payload, sendSess)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	reg := prometheus.NewRegistry()
	collector := acpmetrics.NewCollector(reg)
	guarded := daemon.NewGuardedSession(recvSess)
	handler := daemon.NewConnHandler(guarded, collector, discardLogger())

	conn := loopback{Buffer: bytes.NewBuffer(dst[:n])}
	ctx, cancel := context.WithCancel(context.Background())

	// Serve blocks until EOF; the loopback buffer drains to EOF right
	// after the one frame, so Serve returns nil on its own.
	if err := handler.Serve(ctx, conn); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	cancel()

	lastAccepted, _ := guarded.ReplayState()
	if lastAccepted != 1 {
		t.Errorf("session lastAccepted = %d, want 1", lastAccepted)
	}
}
