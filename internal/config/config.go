// Package config discovers, parses, and normalizes fishook configuration files.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/modularizer/fishook/internal/errs"
	"github.com/modularizer/fishook/internal/hookkey"
	"github.com/modularizer/fishook/internal/logger"
)

//go:embed starter.json
var starter []byte

// Starter returns the config written by `fishook init`.
func Starter() []byte {
	return append([]byte(nil), starter...)
}

// Reserved top-level keys that are not hooks.
const (
	KeySetup  = "setup"
	KeySource = "source"
)

// Source is one loaded configuration file.
type Source struct {
	// Path is the absolute path of the file.
	Path string
	// ScopeRoot is the directory whose files this config governs.
	// Empty means unscoped (an explicit --config override).
	ScopeRoot string
	// Setup holds shell snippets run before every command of this config.
	Setup []string
	// Preludes holds files sourced before every command of this config.
	Preludes []string
	// Hooks maps hook names to their raw, un-normalized action values.
	Hooks map[string]any
}

// Dir returns the directory containing the config file.
func (s *Source) Dir() string {
	return filepath.Dir(s.Path)
}

// Blocks normalizes the action value configured for hook. A hook that is not
// configured yields no blocks.
func (s *Source) Blocks(hook string) ([]Block, error) {
	raw, ok := s.Hooks[hook]
	if !ok {
		return nil, nil
	}
	blocks, err := Normalize(hook, raw)
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			e.WithDetail("config", s.Path)
		}
		return nil, err
	}
	return blocks, nil
}

// HookNames returns the configured hook names, sorted.
func (s *Source) HookNames() []string {
	names := make([]string, 0, len(s.Hooks))
	for name := range s.Hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate normalizes every configured hook so shape errors surface before
// anything runs.
func (s *Source) Validate() error {
	for _, name := range s.HookNames() {
		if _, err := s.Blocks(name); err != nil {
			return err
		}
	}
	return nil
}

// Load reads and parses the config at loc. A missing optional location
// (the implicit root default) yields a nil Source and no error.
func Load(loc Location) (*Source, error) {
	data, err := os.ReadFile(loc.Path)
	if err != nil {
		if os.IsNotExist(err) && loc.Optional {
			logger.Debug("no config at default location", "path", loc.Path)
			return nil, nil
		}
		return nil, errs.Wrap(err, errs.ConfigParseError, "read config %s", loc.Path).WithDetail("config", loc.Path)
	}

	raw, err := Parse(loc.Path, data)
	if err != nil {
		return nil, errs.Wrap(err, errs.ConfigParseError, "parse config %s", loc.Path).WithDetail("config", loc.Path)
	}

	src, err := fromMap(loc, raw)
	if err != nil {
		return nil, err
	}
	logger.Debug("config loaded", "path", loc.Path, "scope", loc.ScopeRoot, "hooks", len(src.Hooks))
	return src, nil
}

// LoadAll loads every location in order. Any failure fails the whole set.
func LoadAll(locs []Location) ([]*Source, error) {
	var out []*Source
	for _, loc := range locs {
		src, err := Load(loc)
		if err != nil {
			return nil, err
		}
		if src != nil {
			out = append(out, src)
		}
	}
	return out, nil
}

// Parse decodes config data by file extension: .json, .toml, .yaml or .yml.
func Parse(path string, data []byte) (map[string]any, error) {
	raw := make(map[string]any)
	if strings.TrimSpace(string(data)) == "" {
		return raw, nil
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return raw, nil
}

// fromMap splits a decoded document into preludes and hook entries.
func fromMap(loc Location, raw map[string]any) (*Source, error) {
	src := &Source{
		Path:      loc.Path,
		ScopeRoot: loc.ScopeRoot,
		Hooks:     make(map[string]any),
	}

	for key, value := range raw {
		switch {
		case key == KeySetup:
			list, err := stringList(value)
			if err != nil {
				return nil, shapeError("", KeySetup, err).WithDetail("config", loc.Path)
			}
			src.Setup = list
		case key == KeySource:
			list, err := stringList(value)
			if err != nil {
				return nil, shapeError("", KeySource, err).WithDetail("config", loc.Path)
			}
			src.Preludes = list
		case strings.HasPrefix(key, "$") || strings.HasPrefix(key, "_"):
			// annotations such as $schema or _comment
		case hookkey.IsKnown(key):
			src.Hooks[key] = value
		default:
			attrs := []any{"config", loc.Path, "key", key}
			if s := hookkey.Suggest(key); len(s) > 0 {
				attrs = append(attrs, "did_you_mean", s[0])
			}
			logger.Warn("ignoring unknown top-level config key", attrs...)
		}
	}
	return src, nil
}
