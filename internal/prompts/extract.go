package prompts

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// SystemDir returns the path to the system prompts directory.
func SystemDir(dataDir string) string {
	return filepath.Join(dataDir, "prompts", "system")
}

// FallbackPath returns the path of the generic fallback prompt played
// when speech synthesis fails.
func FallbackPath(dataDir string) string {
	return filepath.Join(SystemDir(dataDir), "prompt_fallback.wav")
}

// ExtractToDataDir copies the embedded system prompts to the data
// directory so the media server can play them by path. Files that
// already exist on disk are skipped, preserving any replacements with
// real voice recordings. The target directory is $dataDir/prompts/system/.
func ExtractToDataDir(dataDir string) error {
	sysDir := SystemDir(dataDir)
	if err := os.MkdirAll(sysDir, 0750); err != nil {
		return fmt.Errorf("creating system prompts directory: %w", err)
	}

	for _, name := range SystemPrompts {
		dest := filepath.Join(sysDir, name)

		// Skip files that already exist on disk.
		if _, err := os.Stat(dest); err == nil {
			slog.Debug("system prompt already exists, skipping", "file", name)
			continue
		}

		data, err := fs.ReadFile(SystemFS, filepath.Join("system", name))
		if err != nil {
			return fmt.Errorf("reading embedded prompt %s: %w", name, err)
		}

		if err := os.WriteFile(dest, data, 0640); err != nil {
			return fmt.Errorf("writing prompt %s: %w", name, err)
		}

		slog.Info("extracted system prompt", "file", name, "path", dest)
	}

	return nil
}
