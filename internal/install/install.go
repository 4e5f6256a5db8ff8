// Package install writes and removes the stub scripts git runs for each hook.
// A stub does nothing but exec the fishook binary with the hook name and
// git's arguments.
package install

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"

	"mvdan.cc/sh/v3/syntax"

	"github.com/modularizer/fishook/internal/constants"
	"github.com/modularizer/fishook/internal/errs"
	"github.com/modularizer/fishook/internal/hookkey"
	"github.com/modularizer/fishook/internal/logger"
)

const stubTemplate = `#!/bin/sh
# {{.Marker}}: {{.Hook}}
# Generated by fishook install. Configure commands in fishook.json instead.

FISHOOK_BIN={{quote .Bin}}

if ! command -v "$FISHOOK_BIN" >/dev/null 2>&1; then
    echo "fishook: $FISHOOK_BIN not found, skipping {{.Hook}}" >&2
    exit 0
fi

exec "$FISHOOK_BIN" {{.Hook}} "$@"
`

var stub = template.Must(template.New("stub").Funcs(template.FuncMap{
	"quote": quote,
}).Parse(stubTemplate))

func quote(s string) (string, error) {
	return syntax.Quote(s, syntax.LangPOSIX)
}

// Action is what happened to one hook file.
type Action string

const (
	Installed Action = "installed"
	Updated   Action = "updated"
	BackedUp  Action = "backed up"
	Skipped   Action = "skipped"
	Removed   Action = "removed"
	Restored  Action = "restored"
)

// Change records the outcome for one hook.
type Change struct {
	Hook   string
	Path   string
	Action Action
	// Backup is set when a foreign hook was moved aside or restored.
	Backup string
}

func (c Change) String() string {
	if c.Backup != "" {
		return fmt.Sprintf("%s: %s (%s)", c.Hook, c.Action, c.Backup)
	}
	return fmt.Sprintf("%s: %s", c.Hook, c.Action)
}

// Options controls Install.
type Options struct {
	// Hooks limits installation; empty means DefaultHooks.
	Hooks []string
	// Bin is the command the stub execs; empty means "fishook".
	Bin string
	// Bare selects server-side hooks for DefaultHooks.
	Bare bool
	// Force replaces an existing backup and skips Confirm.
	Force bool
	// Confirm is asked before a foreign hook is moved aside. A nil Confirm
	// always agrees.
	Confirm func(hook, path string) bool
}

// DefaultHooks returns the hooks installed when none are named: client hooks
// for a working repository, server hooks for a bare one. Hooks whose stdout
// is a protocol git parses are never installed by default.
func DefaultHooks(bare bool) []string {
	var out []string
	for _, info := range hookkey.All() {
		switch info.Key {
		case "fsmonitor-watchman", "proc-receive":
			continue
		}
		if info.Server == bare {
			out = append(out, string(info.Key))
		}
	}
	return out
}

// Render returns the stub script for hook.
func Render(hook, bin string) ([]byte, error) {
	if bin == "" {
		bin = constants.AppName
	}
	var buf bytes.Buffer
	err := stub.Execute(&buf, struct {
		Marker, Hook, Bin string
	}{constants.HookMarker, hook, bin})
	if err != nil {
		return nil, fmt.Errorf("render %s stub: %w", hook, err)
	}
	return buf.Bytes(), nil
}

// IsManaged reports whether the file at path is a fishook stub.
func IsManaged(path string) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Contains(content, []byte(constants.HookMarker))
}

// Install writes stubs into hooksDir.
func Install(hooksDir string, opts Options) ([]Change, error) {
	hooks, err := selectHooks(opts.Hooks, opts.Bare)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(hooksDir, constants.DirMode); err != nil {
		return nil, errs.Wrap(err, errs.InstallError, "create hooks directory %s", hooksDir)
	}

	var changes []Change
	for _, hook := range hooks {
		c, err := installHook(hooksDir, hook, opts)
		if err != nil {
			return changes, err
		}
		logger.Debug("hook stub", "hook", hook, "action", c.Action)
		changes = append(changes, c)
	}
	return changes, nil
}

func installHook(hooksDir, hook string, opts Options) (Change, error) {
	path := filepath.Join(hooksDir, hook)
	c := Change{Hook: hook, Path: path, Action: Installed}

	if _, err := os.Lstat(path); err == nil {
		if IsManaged(path) {
			c.Action = Updated
		} else {
			if !opts.Force && opts.Confirm != nil && !opts.Confirm(hook, path) {
				c.Action = Skipped
				return c, nil
			}
			backup := path + constants.BackupSuffix
			if _, err := os.Lstat(backup); err == nil && !opts.Force {
				return c, errs.New(errs.InstallError, "%s has an existing backup", hook).
					WithDetail("backup", backup).
					WithDetail("hint", "rerun with --force to replace it")
			}
			if err := os.Rename(path, backup); err != nil {
				return c, errs.Wrap(err, errs.InstallError, "back up existing %s hook", hook)
			}
			c.Action = BackedUp
			c.Backup = backup
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return c, errs.Wrap(err, errs.InstallError, "inspect %s", path)
	}

	content, err := Render(hook, opts.Bin)
	if err != nil {
		return c, errs.Wrap(err, errs.InstallError, "render %s stub", hook)
	}
	// #nosec G306 - git hooks need to be executable
	if err := os.WriteFile(path, content, constants.HookMode); err != nil {
		return c, errs.Wrap(err, errs.InstallError, "write %s", path)
	}
	// WriteFile keeps the mode of a file it overwrites.
	if err := os.Chmod(path, constants.HookMode); err != nil {
		return c, errs.Wrap(err, errs.InstallError, "chmod %s", path)
	}
	return c, nil
}

// Uninstall removes fishook stubs from hooksDir and puts back any hook that
// Install moved aside. Foreign hooks are left untouched. Empty hooks means
// every known hook.
func Uninstall(hooksDir string, hooks []string) ([]Change, error) {
	if len(hooks) == 0 {
		hooks = hookkey.Names()
	} else if _, err := selectHooks(hooks, false); err != nil {
		return nil, err
	}

	var changes []Change
	for _, hook := range hooks {
		path := filepath.Join(hooksDir, hook)
		if !IsManaged(path) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return changes, errs.Wrap(err, errs.InstallError, "remove %s", path)
		}
		c := Change{Hook: hook, Path: path, Action: Removed}

		backup := path + constants.BackupSuffix
		if _, err := os.Lstat(backup); err == nil {
			if err := os.Rename(backup, path); err != nil {
				return changes, errs.Wrap(err, errs.InstallError, "restore %s", backup)
			}
			c.Action = Restored
			c.Backup = backup
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func selectHooks(names []string, bare bool) ([]string, error) {
	if len(names) == 0 {
		return DefaultHooks(bare), nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := hookkey.Lookup(name); err != nil {
			return nil, err
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}
