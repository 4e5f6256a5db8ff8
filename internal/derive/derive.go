// Package derive turns a raw hook invocation into the ordered stream of file
// and ref events that handlers are dispatched against.
package derive

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/modularizer/fishook/internal/event"
	"github.com/modularizer/fishook/internal/git"
	"github.com/modularizer/fishook/internal/hookkey"
	"github.com/modularizer/fishook/internal/logger"
)

// Repo is the git plumbing derivation reads from.
type Repo interface {
	StagedChanges(ctx context.Context) ([]git.Change, error)
	DiffCommits(ctx context.Context, oldRev, newRev string) ([]git.Change, error)
	ResolveCommit(ctx context.Context, id string) (string, bool)
}

// Invocation is one hook call as git made it.
type Invocation struct {
	Hook string
	Args []string
	// Stdin is git's complete stdin stream for the hook.
	Stdin []byte
	// RepoRoot anchors absolute paths of file events.
	RepoRoot string
}

// Derive returns the events for inv in git's order. Hooks without an event
// contract, empty streams, and unresolvable commit ranges all yield zero
// events and no error.
func Derive(ctx context.Context, repo Repo, inv Invocation) ([]event.Event, error) {
	info, err := hookkey.Lookup(inv.Hook)
	if err != nil {
		return nil, err
	}

	var events []event.Event
	switch info.Class {
	case hookkey.ClassStaged:
		events, err = staged(ctx, repo, inv)
	case hookkey.ClassCommitRange:
		events, err = commitRange(ctx, repo, inv)
	case hookkey.ClassPush:
		events = push(inv)
	case hookkey.ClassReceive:
		events = receive(inv)
	case hookkey.ClassUpdate:
		events = update(inv)
	}
	if err != nil {
		return nil, err
	}

	if len(events) == 0 {
		logger.Debug("no events derived", "hook", inv.Hook, "class", info.Class.String())
	}
	return events, nil
}

func staged(ctx context.Context, repo Repo, inv Invocation) ([]event.Event, error) {
	changes, err := repo.StagedChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list staged changes: %w", err)
	}
	return fileEvents(changes, inv.RepoRoot, "", ""), nil
}

// Range is a pair of commit ids to diff.
type Range struct {
	Old, New string
}

// Ranges returns the commit ranges a commit-range hook covers.
func Ranges(inv Invocation) []Range {
	switch inv.Hook {
	case "post-checkout":
		if len(inv.Args) < 2 {
			logger.Warn("post-checkout called without commit arguments", "args", inv.Args)
			return nil
		}
		return []Range{{Old: inv.Args[0], New: inv.Args[1]}}
	case "post-merge", "post-applypatch":
		return []Range{{Old: "ORIG_HEAD", New: "HEAD"}}
	case "post-commit":
		return []Range{{Old: "HEAD^", New: "HEAD"}}
	case "post-rewrite":
		var out []Range
		eachLine(inv.Stdin, func(n int, fields []string) {
			if len(fields) < 2 {
				logger.Warn("skipping malformed post-rewrite line", "line", n, "fields", len(fields))
				return
			}
			out = append(out, Range{Old: fields[0], New: fields[1]})
		})
		return out
	}
	return nil
}

func commitRange(ctx context.Context, repo Repo, inv Invocation) ([]event.Event, error) {
	var events []event.Event
	for _, r := range Ranges(inv) {
		oldSHA, ok := repo.ResolveCommit(ctx, r.Old)
		if !ok {
			logger.Debug("commit does not resolve, skipping range", "hook", inv.Hook, "commit", r.Old)
			continue
		}
		newSHA, ok := repo.ResolveCommit(ctx, r.New)
		if !ok {
			logger.Debug("commit does not resolve, skipping range", "hook", inv.Hook, "commit", r.New)
			continue
		}
		changes, err := repo.DiffCommits(ctx, oldSHA, newSHA)
		if err != nil {
			return nil, fmt.Errorf("failed to diff %s..%s: %w", oldSHA, newSHA, err)
		}
		events = append(events, fileEvents(changes, inv.RepoRoot, oldSHA, newSHA)...)
	}
	return events, nil
}

func fileEvents(changes []git.Change, root, oldCommit, newCommit string) []event.Event {
	abs := func(p string) string {
		if p == "" {
			return ""
		}
		return filepath.Join(root, filepath.FromSlash(p))
	}

	events := make([]event.Event, 0, len(changes))
	for _, c := range changes {
		kind, ok := event.KindFromStatus(c.Status)
		if !ok {
			logger.Debug("skipping unsupported status", "status", c.Status, "path", c.Path)
			continue
		}
		f := &event.File{Status: c.Status, OldCommit: oldCommit, NewCommit: newCommit}
		if kind == event.Move || kind == event.Copy {
			f.SrcPath, f.DstPath = c.Src, c.Path
			f.AbsSrcPath, f.AbsDstPath = abs(c.Src), abs(c.Path)
		} else {
			f.Path = c.Path
			f.AbsPath = abs(c.Path)
		}
		events = append(events, event.Event{Kind: kind, File: f})
	}
	return events
}

func push(inv Invocation) []event.Event {
	var remoteName, remoteURL string
	if len(inv.Args) > 0 {
		remoteName = inv.Args[0]
	}
	if len(inv.Args) > 1 {
		remoteURL = inv.Args[1]
	}

	var events []event.Event
	eachLine(inv.Stdin, func(n int, fields []string) {
		if len(fields) != 4 {
			logger.Warn("skipping malformed pre-push line", "line", n, "fields", len(fields))
			return
		}
		ev := event.NewRef(fields[2], fields[3], fields[1])
		ev.Ref.LocalRef = fields[0]
		ev.Ref.RemoteName = remoteName
		ev.Ref.RemoteURL = remoteURL
		events = append(events, ev)
	})
	return events
}

func receive(inv Invocation) []event.Event {
	var events []event.Event
	eachLine(inv.Stdin, func(n int, fields []string) {
		if len(fields) != 3 {
			logger.Warn("skipping malformed receive line", "hook", inv.Hook, "line", n, "fields", len(fields))
			return
		}
		events = append(events, event.NewRef(fields[2], fields[0], fields[1]))
	})
	return events
}

func update(inv Invocation) []event.Event {
	if len(inv.Args) < 3 {
		logger.Warn("update called with too few arguments", "args", inv.Args)
		return nil
	}
	return []event.Event{event.NewRef(inv.Args[0], inv.Args[1], inv.Args[2])}
}

// maxLineSize bounds a single stdin line; longer lines end the stream.
const maxLineSize = 1 << 20

// eachLine calls fn with the whitespace-separated fields of every non-blank
// line; n is 1-based.
func eachLine(data []byte, fn func(n int, fields []string)) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	n := 0
	for sc.Scan() {
		n++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		fn(n, fields)
	}
	if err := sc.Err(); err != nil {
		logger.Warn("stopped reading hook stdin", "line", n+1, "error", err)
	}
}
