package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// AddWhitelist allows removal of dir even though it lies outside the root.
// This covers profiles whose user data dir was configured explicitly by the
// host. A filesystem root or the user's home directory is never accepted.
func (g *Guard) AddWhitelist(dir string) error {
	if dir == "" {
		return fmt.Errorf("whitelist directory cannot be empty")
	}

	absPath, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve whitelist directory: %w", err)
	}
	evalPath := resolveSymlinks(absPath)

	if filepath.Dir(evalPath) == evalPath {
		return fmt.Errorf("refusing to whitelist filesystem root %s", evalPath)
	}
	if home, err := os.UserHomeDir(); err == nil && evalPath == resolveSymlinks(filepath.Clean(home)) {
		return fmt.Errorf("refusing to whitelist home directory %s", evalPath)
	}

	for _, existing := range g.whitelistedDirs {
		if existing == evalPath {
			return nil // Already whitelisted
		}
	}

	g.whitelistedDirs = append(g.whitelistedDirs, evalPath)
	return nil
}

// GetWhitelist returns a copy of the whitelisted directories
func (g *Guard) GetWhitelist() []string {
	whitelist := make([]string, len(g.whitelistedDirs))
	copy(whitelist, g.whitelistedDirs)
	return whitelist
}
