package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"mvdan.cc/sh/v3/interp"

	"github.com/modularizer/fishook/internal/event"
)

// ContentRepo is the git access the content builtins need.
type ContentRepo interface {
	Show(ctx context.Context, rev, path string) ([]byte, bool, error)
	Diff(ctx context.Context, oldRev, newRev string, paths ...string) ([]byte, error)
	IndexMode(ctx context.Context, path string) (string, error)
	HashObject(ctx context.Context, data []byte) (string, error)
	UpdateIndex(ctx context.Context, mode, blob, path string) error
}

// Call is what a builtin sees of the command invoking it.
type Call struct {
	Name   string
	Repo   ContentRepo
	Event  *event.Event
	Stdout io.Writer
	Stderr io.Writer
}

// Builtin implements a command resolved before PATH lookup. Returning
// interp.ExitStatus sets the status, *Abort stops the whole command, and
// other errors are reported and exit 1.
type Builtin func(ctx context.Context, call *Call, args []string) error

// Abort stops the running command immediately with Status.
type Abort struct {
	Status int
}

func (a *Abort) Error() string {
	return fmt.Sprintf("aborted with status %d", a.Status)
}

var defaultBuiltins = map[string]Builtin{
	"old":     builtinOld,
	"new":     builtinNew,
	"changes": builtinChanges,
	"modify":  builtinModify,
	"raise":   builtinRaise,
}

// Builtins returns the names of the default builtins.
func Builtins() []string {
	return []string{"old", "new", "changes", "modify", "raise"}
}

func (e *Executor) builtinMiddleware(c Command) func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
		return func(ctx context.Context, args []string) error {
			b, ok := e.builtins[args[0]]
			if !ok {
				return next(ctx, args)
			}
			hc := interp.HandlerCtx(ctx)
			call := &Call{
				Name:   args[0],
				Repo:   e.session.Repo,
				Event:  c.Event,
				Stdout: hc.Stdout,
				Stderr: hc.Stderr,
			}
			err := b(ctx, call, args[1:])
			var status interp.ExitStatus
			var abort *Abort
			if err == nil || errors.As(err, &status) || errors.As(err, &abort) {
				return err
			}
			fmt.Fprintf(hc.Stderr, "%s: %v\n", args[0], err)
			return interp.ExitStatus(1)
		}
	}
}

// usage reports misuse of a builtin with status 2.
func (c *Call) usage(format string, args ...any) error {
	fmt.Fprintf(c.Stderr, "%s: %s\n", c.Name, fmt.Sprintf(format, args...))
	return interp.ExitStatus(2)
}

// file returns the current file event, or a usage error outside one.
func (c *Call) file() (*event.File, error) {
	if c.Event == nil || c.Event.File == nil {
		return nil, c.usage("only available in file event handlers")
	}
	if c.Repo == nil {
		return nil, errors.New("no repository")
	}
	return c.Event.File, nil
}

func (c *Call) show(ctx context.Context, rev, path string) error {
	data, ok, err := c.Repo.Show(ctx, rev, path)
	if err != nil {
		return err
	}
	if ok {
		_, err = c.Stdout.Write(data)
	}
	return err
}

// old prints the file's content before the change.
func builtinOld(ctx context.Context, call *Call, args []string) error {
	f, err := call.file()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		return call.usage("takes no arguments")
	}
	rev := "HEAD"
	if f.FromCommitRange() {
		rev = f.OldCommit
	}
	return call.show(ctx, rev, f.PreviousPath())
}

// new prints the file's content after the change: the index for staged
// events, the new commit for commit ranges.
func builtinNew(ctx context.Context, call *Call, args []string) error {
	f, err := call.file()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		return call.usage("takes no arguments")
	}
	return call.show(ctx, f.NewCommit, f.PrimaryPath())
}

func builtinChanges(ctx context.Context, call *Call, args []string) error {
	f, err := call.file()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		return call.usage("takes no arguments")
	}
	paths := []string{f.PrimaryPath()}
	if f.SrcPath != "" {
		paths = []string{f.SrcPath, f.DstPath}
	}
	out, err := call.Repo.Diff(ctx, f.OldCommit, f.NewCommit, paths...)
	if err != nil {
		return err
	}
	_, err = call.Stdout.Write(out)
	return err
}

// modify [--staged|--worktree] <search> <replace>
func builtinModify(ctx context.Context, call *Call, args []string) error {
	f, err := call.file()
	if err != nil {
		return err
	}

	fs := pflag.NewFlagSet("modify", pflag.ContinueOnError)
	fs.SetOutput(call.Stderr)
	staged := fs.Bool("staged", false, "edit the staged copy only")
	worktree := fs.Bool("worktree", false, "edit the working tree copy only")
	if err := fs.Parse(args); err != nil {
		return interp.ExitStatus(2)
	}
	if fs.NArg() != 2 {
		return call.usage("usage: modify [--staged|--worktree] <search> <replace>")
	}
	search, replace := fs.Arg(0), fs.Arg(1)
	if search == "" {
		return call.usage("search text must not be empty")
	}
	if call.Event.Kind == event.Delete {
		return call.usage("%s was deleted", f.PrimaryPath())
	}
	if !*staged && !*worktree {
		*staged, *worktree = true, true
	}

	if *worktree {
		if err := modifyWorktree(f.AbsPrimaryPath(), search, replace); err != nil {
			return err
		}
	}
	if *staged {
		if err := modifyIndex(ctx, call.Repo, f.PrimaryPath(), search, replace); err != nil {
			return err
		}
	}
	return nil
}

func modifyWorktree(path, search, replace string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out := Replace(string(data), search, replace)
	if out == string(data) {
		return nil
	}
	return os.WriteFile(path, []byte(out), info.Mode().Perm())
}

func modifyIndex(ctx context.Context, repo ContentRepo, path, search, replace string) error {
	data, ok, err := repo.Show(ctx, "", path)
	if err != nil || !ok {
		return err
	}
	out := Replace(string(data), search, replace)
	if out == string(data) {
		return nil
	}
	mode, err := repo.IndexMode(ctx, path)
	if err != nil {
		return err
	}
	blob, err := repo.HashObject(ctx, []byte(out))
	if err != nil {
		return err
	}
	return repo.UpdateIndex(ctx, mode, blob, path)
}

// Replace substitutes every literal occurrence of search with replace,
// leaving text that already reads as replace untouched so that applying it
// twice changes nothing further.
func Replace(content, search, replace string) string {
	if search == "" || search == replace {
		return content
	}
	if !strings.Contains(replace, search) {
		return strings.ReplaceAll(content, search, replace)
	}
	parts := strings.Split(content, replace)
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(p, search, replace)
	}
	return strings.Join(parts, replace)
}

// raise <message...>
func builtinRaise(ctx context.Context, call *Call, args []string) error {
	msg := strings.Join(args, " ")
	if msg == "" {
		msg = "raised"
	}
	fmt.Fprintln(call.Stderr, msg)
	return &Abort{Status: 1}
}

// tailBuffer keeps the last size bytes written to it.
type tailBuffer struct {
	size int
	buf  bytes.Buffer
}

const defaultTailSize = 4096

func newTailBuffer(size int) *tailBuffer {
	return &tailBuffer{size: size}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf.Write(p)
	if over := t.buf.Len() - 2*t.size; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	b := t.buf.Bytes()
	if len(b) <= t.size {
		return string(b)
	}
	b = b[len(b)-t.size:]
	if i := bytes.IndexByte(b, '\n'); i >= 0 && i < len(b)-1 {
		b = b[i+1:]
	}
	return string(b)
}
