// Package workspace keeps destructive file operations inside the directories
// the host handed to the sidecar. Paths are compared after symlink
// resolution, so a link inside the root cannot point an operation elsewhere.
package workspace

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Guard enforces a root directory boundary, plus any whitelisted
// directories outside it.
type Guard struct {
	root            string   // absolute, symlinks resolved
	whitelistedDirs []string // additional directories that may be removed
}

// NewGuard creates a guard for root. The root does not have to exist yet.
func NewGuard(root string) (*Guard, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory cannot be empty")
	}

	absPath, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}

	return &Guard{
		root:            resolveSymlinks(absPath),
		whitelistedDirs: make([]string, 0),
	}, nil
}

// Root returns the absolute root directory.
func (g *Guard) Root() string {
	return g.root
}

// ResolvePath converts path to an absolute, cleaned path with symlinks
// resolved. Relative paths are taken relative to the root.
func (g *Guard) ResolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		cleanPath = filepath.Join(g.root, cleanPath)
	}
	return resolveSymlinks(cleanPath), nil
}

// Contains reports whether path is the root or inside it.
func (g *Guard) Contains(path string) bool {
	resolved, err := g.ResolvePath(path)
	if err != nil {
		return false
	}
	return within(resolved, g.root)
}

// ValidateRemovable checks that path may be deleted recursively: it must lie
// strictly below the root, or be (or lie below) a whitelisted directory.
func (g *Guard) ValidateRemovable(path string) error {
	resolved, err := g.ResolvePath(path)
	if err != nil {
		return err
	}

	if resolved != g.root && within(resolved, g.root) {
		return nil
	}
	for _, dir := range g.whitelistedDirs {
		if within(resolved, dir) {
			return nil
		}
	}
	return fmt.Errorf("path '%s' is outside %s", path, g.root)
}

func within(path, dir string) bool {
	sep := string(filepath.Separator)
	return path == dir || strings.HasPrefix(path+sep, strings.TrimSuffix(dir, sep)+sep)
}

// resolveSymlinks resolves symlinks in a path, handling non-existent paths
// by resolving the deepest existing parent and re-appending the rest.
func resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	var components []string
	currentPath := path

	for {
		if resolved, err := filepath.EvalSymlinks(currentPath); err == nil {
			result := resolved
			for i := len(components) - 1; i >= 0; i-- {
				result = filepath.Join(result, components[i])
			}
			return result
		}

		dir := filepath.Dir(currentPath)
		if dir == currentPath || dir == "." {
			return filepath.Clean(path)
		}

		components = append(components, filepath.Base(currentPath))
		currentPath = dir
	}
}
