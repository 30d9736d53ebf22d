package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyike/StockPilot/internal/logger"
)

// WriteMarkdown writes content to dir/fileName, creating dir as needed, and
// returns the full path.
func WriteMarkdown(dir, fileName, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", path, err)
	}
	logger.Debug(context.Background(), "markdown written", "path", path)
	return path, nil
}
