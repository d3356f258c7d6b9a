package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Filename builds the per-participant file name.
func Filename(participant, identifier string) string {
	return fmt.Sprintf("p%s_%s_memory.csv", sanitize(participant), sanitize(strings.ToLower(identifier)))
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "unknown"
	}
	return out
}

// WriteFile writes content to dir/name through a temp file and rename.
func WriteFile(dir, name string, content []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data dir: %w", err)
	}
	path := filepath.Join(dir, name)
	tmpFile, err := os.CreateTemp(dir, "rows-*.csv")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(content); err != nil {
		return "", fmt.Errorf("failed to write rows: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close rows file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to write rows: %w", err)
	}
	return path, nil
}
