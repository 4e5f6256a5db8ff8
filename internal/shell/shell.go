// Package shell runs configured commands through an in-process POSIX shell
// with the per-event FISHOOK_* environment and content builtins in scope.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/modularizer/fishook/internal/config"
	"github.com/modularizer/fishook/internal/errs"
	"github.com/modularizer/fishook/internal/event"
	"github.com/modularizer/fishook/internal/logger"
)

// HandlerRun labels one-shot run commands, which have no event.
const HandlerRun = "run"

// Session holds what stays fixed across every command of one invocation.
type Session struct {
	Hook string
	// Args are forwarded as positional parameters.
	Args []string
	// Stdin is replayed to every command.
	Stdin    []byte
	RepoRoot string
	RepoName string
	GitDir   string
	StateDir string
	// Bin is the path of the running fishook executable.
	Bin    string
	DryRun bool
	// Environ is the inherited process environment; nil means os.Environ().
	Environ []string
	Stdout  io.Writer
	Stderr  io.Writer
	// Repo backs the content builtins; they fail when it is nil.
	Repo ContentRepo
}

// Command is one command string scheduled by the dispatcher.
type Command struct {
	Config  *config.Source
	Block   int
	Handler string
	Command string
	// Event is nil for run commands.
	Event *event.Event
}

// Executor runs commands for one Session.
type Executor struct {
	session  Session
	builtins map[string]Builtin
	// Executed counts commands that actually ran, excluding dry runs.
	Executed int
}

// New returns an executor with the default builtins registered.
func New(s Session) *Executor {
	if s.Stdout == nil {
		s.Stdout = os.Stdout
	}
	if s.Stderr == nil {
		s.Stderr = os.Stderr
	}
	if s.Environ == nil {
		s.Environ = os.Environ()
	}
	e := &Executor{session: s, builtins: make(map[string]Builtin)}
	for name, b := range defaultBuiltins {
		e.builtins[name] = b
	}
	return e
}

// Register adds or replaces a builtin.
func (e *Executor) Register(name string, b Builtin) {
	e.builtins[name] = b
}

// Env returns the environment a command sees, as KEY=VALUE pairs. Per-event
// variables appear only when c has an event.
func (e *Executor) Env(c Command) []string {
	s := e.session
	vars := map[string]string{
		"HOOK":      s.Hook,
		"REPO_ROOT": s.RepoRoot,
		"REPO_NAME": s.RepoName,
		"GIT_DIR":   s.GitDir,
		"STATE_DIR": s.StateDir,
		"BIN":       s.Bin,
		"DRY_RUN":   boolFlag(s.DryRun),
		"HANDLER":   c.Handler,
	}
	if c.Config != nil {
		vars["CONFIG_PATH"] = c.Config.Path
		vars["CONFIG_DIR"] = c.Config.Dir()
	}
	if c.Event != nil {
		eventVars(vars, c.Event)
	}

	env := make([]string, 0, len(s.Environ)+len(vars))
	for _, kv := range s.Environ {
		// event fields inherited from an outer run must not leak in
		name, _, _ := strings.Cut(kv, "=")
		if managed[strings.TrimPrefix(name, VarPrefix)] && strings.HasPrefix(name, VarPrefix) {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range vars {
		env = append(env, VarPrefix+k+"="+v)
	}
	return env
}

// VarPrefix prefixes every variable fishook exports to commands.
const VarPrefix = "FISHOOK_"

// Vars lists the exported variable names without VarPrefix.
var Vars = []string{
	"HOOK", "REPO_ROOT", "REPO_NAME", "GIT_DIR", "STATE_DIR", "BIN",
	"CONFIG_PATH", "CONFIG_DIR", "DRY_RUN", "HANDLER",
	"EVENT_KIND", "EVENT_TYPE",
	"PATH_REL", "ABS_PATH", "SRC", "DST", "ABS_SRC", "ABS_DST", "STATUS", "OLD_COMMIT", "NEW_COMMIT",
	"REF", "OLD_OID", "NEW_OID", "LOCAL_REF", "REMOTE_NAME", "REMOTE_URL",
}

var managed = func() map[string]bool {
	m := make(map[string]bool, len(Vars))
	for _, v := range Vars {
		m[v] = true
	}
	return m
}()

func eventVars(vars map[string]string, ev *event.Event) {
	vars["EVENT_KIND"] = string(ev.Kind)
	if f := ev.File; f != nil {
		vars["EVENT_TYPE"] = "file"
		vars["PATH_REL"] = f.PrimaryPath()
		vars["ABS_PATH"] = f.AbsPrimaryPath()
		vars["SRC"] = f.SrcPath
		vars["DST"] = f.DstPath
		vars["ABS_SRC"] = f.AbsSrcPath
		vars["ABS_DST"] = f.AbsDstPath
		vars["STATUS"] = f.Status
		vars["OLD_COMMIT"] = f.OldCommit
		vars["NEW_COMMIT"] = f.NewCommit
	}
	if r := ev.Ref; r != nil {
		vars["EVENT_TYPE"] = "ref"
		vars["REF"] = r.Ref
		vars["OLD_OID"] = r.OldOID
		vars["NEW_OID"] = r.NewOID
		vars["LOCAL_REF"] = r.LocalRef
		vars["REMOTE_NAME"] = r.RemoteName
		vars["REMOTE_URL"] = r.RemoteURL
	}
}

// Script assembles the preludes, setup snippets and command into one script.
func Script(c Command) (string, error) {
	var b strings.Builder
	if c.Config != nil {
		for _, p := range c.Config.Preludes {
			if !filepath.IsAbs(p) {
				p = filepath.Join(c.Config.Dir(), p)
			}
			q, err := syntax.Quote(p, syntax.LangBash)
			if err != nil {
				return "", fmt.Errorf("cannot quote prelude path %s: %w", p, err)
			}
			b.WriteString(". " + q + "\n")
		}
		for _, s := range c.Config.Setup {
			b.WriteString(s + "\n")
		}
	}
	b.WriteString(c.Command)
	b.WriteString("\n")
	return b.String(), nil
}

// Parse parses a command string, reporting syntax errors.
func Parse(name, src string) (*syntax.File, error) {
	return syntax.NewParser().Parse(strings.NewReader(src), name)
}

// Exec runs one command. A non-zero exit yields an *errs.Failure.
func (e *Executor) Exec(ctx context.Context, c Command) error {
	s := e.session
	env := e.Env(c)

	src, err := Script(c)
	if err != nil {
		return e.failure(c, 2, err.Error())
	}
	file, err := Parse(c.Handler, src)
	if err != nil {
		fmt.Fprintf(s.Stderr, "fishook: %v\n", err)
		return e.failure(c, 2, err.Error())
	}

	if s.DryRun {
		fmt.Fprintf(s.Stderr, "[dry-run] %s %s: %s\n", s.Hook, c.Handler, c.Command)
		return nil
	}

	tail := newTailBuffer(defaultTailSize)
	stderr := io.MultiWriter(s.Stderr, tail)

	runner, err := interp.New(
		interp.Env(expand.ListEnviron(env...)),
		interp.Dir(s.RepoRoot),
		interp.Params(append([]string{"--"}, s.Args...)...),
		interp.StdIO(bytes.NewReader(s.Stdin), s.Stdout, stderr),
		interp.ExecHandlers(e.builtinMiddleware(c)),
	)
	if err != nil {
		return fmt.Errorf("failed to create shell runner: %w", err)
	}

	log := logger.With("hook", s.Hook, "handler", c.Handler)
	log.Debug("executing command", "command", c.Command)
	e.Executed++

	err = runner.Run(ctx, file)
	if err == nil {
		return nil
	}

	var status interp.ExitStatus
	if errors.As(err, &status) {
		log.Debug("command exited non-zero", "command", c.Command, "status", int(status))
		return e.failure(c, int(status), tail.String())
	}
	var abort *Abort
	if errors.As(err, &abort) {
		log.Debug("command aborted", "command", c.Command, "status", abort.Status)
		return e.failure(c, abort.Status, tail.String())
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	fmt.Fprintf(s.Stderr, "fishook: %v\n", err)
	return e.failure(c, 1, tail.String()+err.Error())
}

func (e *Executor) failure(c Command, code int, output string) *errs.Failure {
	f := &errs.Failure{
		Hook:     e.session.Hook,
		Block:    c.Block,
		Handler:  c.Handler,
		Command:  c.Command,
		ExitCode: code,
		Output:   output,
	}
	if c.Config != nil {
		f.Config = c.Config.Path
	}
	return f
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
