// Package hookkey enumerates the git hooks fishook understands and the
// argument contract git uses when invoking each of them.
package hookkey

import (
	"github.com/sahilm/fuzzy"

	"github.com/modularizer/fishook/internal/errs"
)

// Key is a git lifecycle hook name.
type Key string

// Class selects how events are derived for a hook.
type Class int

const (
	// ClassNone hooks produce no events; only one-shot run commands apply.
	ClassNone Class = iota
	// ClassStaged hooks derive file events from the staged index.
	ClassStaged
	// ClassCommitRange hooks derive file events from a diff between two commits.
	ClassCommitRange
	// ClassPush derives ref events from pre-push stdin.
	ClassPush
	// ClassReceive derives ref events from pre/post-receive stdin.
	ClassReceive
	// ClassUpdate derives one ref event from the update hook's arguments.
	ClassUpdate
)

func (c Class) String() string {
	switch c {
	case ClassStaged:
		return "staged"
	case ClassCommitRange:
		return "commit-range"
	case ClassPush:
		return "push"
	case ClassReceive:
		return "receive"
	case ClassUpdate:
		return "update"
	default:
		return "none"
	}
}

// Info describes one hook.
type Info struct {
	Key   Key
	Class Class
	// Args documents git's positional arguments.
	Args string
	// Stdin documents git's stdin stream, if any.
	Stdin string
	// Server is true for hooks that run in the receiving repository.
	Server bool
}

var catalogue = []Info{
	{Key: "applypatch-msg", Class: ClassStaged, Args: "<msg-file>"},
	{Key: "pre-applypatch", Class: ClassStaged},
	{Key: "post-applypatch", Class: ClassCommitRange},
	{Key: "pre-commit", Class: ClassStaged},
	{Key: "pre-merge-commit", Class: ClassStaged},
	{Key: "prepare-commit-msg", Class: ClassStaged, Args: "<msg-file> [<source> [<sha>]]"},
	{Key: "commit-msg", Class: ClassStaged, Args: "<msg-file>"},
	{Key: "post-commit", Class: ClassCommitRange},
	{Key: "pre-rebase", Class: ClassNone, Args: "<upstream> [<branch>]"},
	{Key: "post-checkout", Class: ClassCommitRange, Args: "<prev-head> <new-head> <branch-flag>"},
	{Key: "post-merge", Class: ClassCommitRange, Args: "<squash-flag>"},
	{Key: "post-rewrite", Class: ClassCommitRange, Args: "<amend|rebase>", Stdin: "<old-sha> <new-sha> [<extra>]"},
	{Key: "pre-push", Class: ClassPush, Args: "<remote-name> <remote-url>", Stdin: "<local-ref> <local-oid> <remote-ref> <remote-oid>"},
	{Key: "pre-auto-gc", Class: ClassNone},
	{Key: "pre-receive", Class: ClassReceive, Stdin: "<old-oid> <new-oid> <ref>", Server: true},
	{Key: "update", Class: ClassUpdate, Args: "<ref> <old-oid> <new-oid>", Server: true},
	{Key: "post-receive", Class: ClassReceive, Stdin: "<old-oid> <new-oid> <ref>", Server: true},
	{Key: "post-update", Class: ClassNone, Args: "<ref>...", Server: true},
	{Key: "push-to-checkout", Class: ClassNone, Args: "<new-oid>", Server: true},
	{Key: "proc-receive", Class: ClassNone, Stdin: "pkt-line protocol", Server: true},
	{Key: "sendemail-validate", Class: ClassNone, Args: "<patch-file> <header-file>"},
	{Key: "fsmonitor-watchman", Class: ClassNone, Args: "<version> <token>"},
}

var byKey = func() map[Key]Info {
	m := make(map[Key]Info, len(catalogue))
	for _, info := range catalogue {
		m[info.Key] = info
	}
	return m
}()

// All returns every known hook in git's documentation order.
func All() []Info {
	out := make([]Info, len(catalogue))
	copy(out, catalogue)
	return out
}

// Names returns every known hook name.
func Names() []string {
	names := make([]string, len(catalogue))
	for i, info := range catalogue {
		names[i] = string(info.Key)
	}
	return names
}

// IsKnown reports whether name is a known hook.
func IsKnown(name string) bool {
	_, ok := byKey[Key(name)]
	return ok
}

// Lookup returns the hook description for name, or an UnknownHook error
// carrying up to three suggestions.
func Lookup(name string) (Info, error) {
	if info, ok := byKey[Key(name)]; ok {
		return info, nil
	}
	err := errs.New(errs.UnknownHook, "unknown hook %q", name)
	if s := Suggest(name); len(s) > 0 {
		err = err.WithDetail("did you mean", s)
	}
	return Info{}, err
}

// Suggest returns up to three known hook names that fuzzily match name,
// best match first.
func Suggest(name string) []string {
	if name == "" {
		return nil
	}
	var out []string
	for _, m := range fuzzy.Find(name, Names()) {
		out = append(out, m.Str)
		if len(out) == 3 {
			break
		}
	}
	return out
}
