package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun boots the full composition root against a mock simulator and a
// port-0 fan-out server, then cancels shortly after startup to exercise
// the graceful-shutdown path.
func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "skybridge.yaml")

	cfgYAML := `
sim:
  provider: mock
device:
  listen_address: "127.0.0.1:0"
  slot_count: 4
server:
  address: "127.0.0.1:0"
  static_root: "` + dir + `"
log:
  server:
    path: "` + filepath.Join(dir, "server.log") + `"
    level: info
  requests:
    path: "` + filepath.Join(dir, "requests.log") + `"
    level: info
metrics:
  enabled: false
`
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		t.Fatalf("run() failed: %v", err)
	}
}

func TestSplitHostPort(t *testing.T) {
	host, port, err := splitHostPort("127.0.0.1:45312")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "127.0.0.1" || port != 45312 {
		t.Fatalf("expected (127.0.0.1, 45312), got (%s, %d)", host, port)
	}

	if _, _, err := splitHostPort("not-an-address"); err == nil {
		t.Fatal("expected an error for a malformed address")
	}
}
