package obslog

import (
	"os"
	"path/filepath"
	"testing"

	"skybridge/internal/config"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")

	cfg := &config.LogConfig{
		Server:   config.LogSettings{Path: serverLog, Level: "DEBUG", MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1},
		Requests: config.LogSettings{Path: requestLog, Level: "INFO", MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1},
	}

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer cleanup()

	if RequestLogger == nil {
		t.Error("RequestLogger was not initialized")
	}

	RequestLogger.Info("device connected", "slot", 1)

	if _, err := os.Stat(requestLog); os.IsNotExist(err) {
		t.Error("request log file not created")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]bool{
		"DEBUG": true,
		"debug": true,
		"WARN":  true,
		"bogus": true, // falls back to INFO rather than erroring
	}
	for input := range tests {
		if lvl := parseLevel(input); lvl < -4 || lvl > 8 {
			t.Errorf("parseLevel(%q) returned out-of-range level %v", input, lvl)
		}
	}
}
