package install

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/emplace-build/emplace/pkgs/manifest"
)

// Uninstall removes every path a manifest records, in reverse install
// order, then the manifest files themselves. Paths already gone are
// logged and skipped; any other removal error stops the uninstall so
// the manifest still names what remains.
func Uninstall(m *manifest.Manifest, manifestDir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for i := len(m.Entries) - 1; i >= 0; i-- {
		path := m.Entries[i].Path
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				logger.Info("already removed", "path", path)
				continue
			}
			return fmt.Errorf("removing %s: %w", path, err)
		}
		logger.Info("removing", "path", path)
	}

	for _, name := range []string{
		manifest.TextName(m.Component),
		manifest.JSONName(m.Component),
	} {
		if err := os.Remove(filepath.Join(manifestDir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
