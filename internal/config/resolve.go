package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/moby/patternmatcher"

	"github.com/modularizer/fishook/internal/constants"
	"github.com/modularizer/fishook/internal/logger"
)

// Location is a config file to load and the directory it governs.
type Location struct {
	Path string
	// ScopeRoot is empty for an unscoped override.
	ScopeRoot string
	// Optional locations may be absent; only the implicit root default is.
	Optional bool
}

// DefaultPrune lists directory patterns never descended into during discovery.
var DefaultPrune = []string{".git", "**/.git", "node_modules", "**/node_modules", "vendor", "**/vendor"}

// PruneFromEnv parses a comma-separated FISHOOK_PRUNE value.
func PruneFromEnv() []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(constants.EnvPrune), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Resolve returns the ordered config locations for a run.
//
// A non-empty override yields exactly that file, unscoped. Otherwise the tree
// under repoRoot is searched for fishook.{json,toml,yaml,yml} in directories
// at most MaxConfigDepth levels deep; results are sorted by path and each is
// scoped to its directory. When nothing is found the optional
// <repoRoot>/fishook.json is returned.
func Resolve(repoRoot, override string, extraPrune []string) ([]Location, error) {
	if override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %s: %w", override, err)
		}
		return []Location{{Path: abs}}, nil
	}

	root, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository root %s: %w", repoRoot, err)
	}

	pm, err := patternmatcher.New(append(append([]string(nil), DefaultPrune...), extraPrune...))
	if err != nil {
		return nil, fmt.Errorf("invalid prune pattern: %w", err)
	}

	names := make(map[string]bool, len(constants.ConfigFileNames))
	for _, n := range constants.ConfigFileNames {
		names[n] = true
	}

	var found []Location
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees are not fatal for discovery
			logger.Debug("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if depth(rel) > constants.MaxConfigDepth {
				return fs.SkipDir
			}
			skip, err := pm.MatchesOrParentMatches(rel)
			if err != nil {
				return fmt.Errorf("failed to match prune patterns: %w", err)
			}
			if skip {
				return fs.SkipDir
			}
			return nil
		}

		if names[d.Name()] {
			found = append(found, Location{Path: path, ScopeRoot: filepath.Dir(path)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover configs under %s: %w", root, err)
	}

	if len(found) == 0 {
		return []Location{{
			Path:      filepath.Join(root, constants.DefaultConfigFile),
			ScopeRoot: root,
			Optional:  true,
		}}, nil
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	logger.Debug("configs discovered", "count", len(found))
	return found, nil
}

// depth counts path segments in a slash-separated relative directory path.
func depth(rel string) int {
	return strings.Count(rel, "/") + 1
}
