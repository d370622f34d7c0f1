//go:build windows

package simconnect

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed lib/SimConnect.dll
var embeddedDLL embed.FS

// extractEmbeddedDLL extracts the embedded SimConnect.dll to a temp
// directory and returns its path. The DLL itself is not checked in (it is
// Microsoft SDK-licensed); place it at pkg/simlink/simconnect/lib/
// before building, or rely on an SDK install via FindDLL's fallback paths.
func extractEmbeddedDLL() (string, error) {
	data, err := embeddedDLL.ReadFile("lib/SimConnect.dll")
	if err != nil {
		return "", fmt.Errorf("failed to read embedded SimConnect.dll: %w", err)
	}

	tempDir := filepath.Join(os.TempDir(), "skybridge")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	dllPath := filepath.Join(tempDir, "SimConnect.dll")
	if err := os.WriteFile(dllPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write SimConnect.dll: %w", err)
	}

	return dllPath, nil
}
