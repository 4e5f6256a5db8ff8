// Package hook runs one fishook hook invocation end to end: resolve and load
// configs, derive events, dispatch commands, and record the audit entry.
package hook

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/modularizer/fishook/internal/audit"
	"github.com/modularizer/fishook/internal/config"
	"github.com/modularizer/fishook/internal/constants"
	"github.com/modularizer/fishook/internal/derive"
	"github.com/modularizer/fishook/internal/dispatch"
	"github.com/modularizer/fishook/internal/errs"
	"github.com/modularizer/fishook/internal/event"
	"github.com/modularizer/fishook/internal/git"
	"github.com/modularizer/fishook/internal/hookkey"
	"github.com/modularizer/fishook/internal/logger"
	"github.com/modularizer/fishook/internal/shell"
)

// Options describes one invocation.
type Options struct {
	Hook string
	Args []string
	// Stdin is git's stdin for the hook, already read in full.
	Stdin []byte
	// Dir is where to look for the repository; empty means the working directory.
	Dir string
	// ConfigOverride replaces discovery with a single unscoped config.
	ConfigOverride string
	DryRun         bool
	NoAudit        bool
	Stdout         io.Writer
	Stderr         io.Writer
}

// Result summarizes a completed (or failed) invocation.
type Result struct {
	Configs  []string
	Events   []event.Event
	Commands int
	Executed int
}

// Plan is a loaded config together with its blocks for the active hook.
type Plan struct {
	Config *config.Source
	Blocks []config.Block
}

// Run executes the hook described by opts.
func Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	res := &Result{}

	if _, err := hookkey.Lookup(opts.Hook); err != nil {
		return res, err
	}

	repo, err := git.Open(ctx, opts.Dir)
	if err != nil {
		return res, err
	}
	stateDir := filepath.Join(repo.GitDir, constants.StateDirName)
	log := logger.With("hook", opts.Hook)

	if err := audit.Init(audit.DefaultLogPath(stateDir), opts.NoAudit); err != nil {
		log.Debug("audit log unavailable", "error", err)
	}
	defer audit.Close()

	err = run(ctx, opts, repo, stateDir, res)
	logAudit(opts, repo, res, err, time.Since(start))
	return res, err
}

func run(ctx context.Context, opts Options, repo *git.Repo, stateDir string, res *Result) error {
	log := logger.With("hook", opts.Hook)

	plans, err := LoadPlans(repo.Root, opts.ConfigOverride, opts.Hook)
	if err != nil {
		return err
	}
	for _, p := range plans {
		res.Configs = append(res.Configs, p.Config.Path)
	}
	if !hasCommands(plans) {
		log.Debug("no commands configured for hook")
		return nil
	}

	events, err := derive.Derive(ctx, repo, derive.Invocation{
		Hook:     opts.Hook,
		Args:     opts.Args,
		Stdin:    opts.Stdin,
		RepoRoot: repo.Root,
	})
	if err != nil {
		return err
	}
	res.Events = events
	log.Debug("events derived", "count", len(events))

	bin, err := os.Executable()
	if err != nil {
		log.Debug("cannot determine executable path", "error", err)
	}

	exec := shell.New(shell.Session{
		Hook:     opts.Hook,
		Args:     opts.Args,
		Stdin:    opts.Stdin,
		RepoRoot: repo.Root,
		RepoName: repo.Name(),
		GitDir:   repo.GitDir,
		StateDir: stateDir,
		Bin:      bin,
		DryRun:   opts.DryRun,
		Stdout:   opts.Stdout,
		Stderr:   opts.Stderr,
		Repo:     repo,
	})
	d := &dispatch.Dispatcher{Exec: exec, RepoRoot: repo.Root}

	defer func() {
		res.Commands = d.Commands
		res.Executed = exec.Executed
	}()

	for _, p := range plans {
		if len(p.Blocks) == 0 {
			continue
		}
		log.Debug("dispatching config", "config", p.Config.Path, "blocks", len(p.Blocks))
		if err := d.Run(ctx, p.Config, p.Blocks, events); err != nil {
			return err
		}
	}
	return nil
}

// LoadPlans resolves, loads and normalizes every config for hook. Every
// config is fully validated before anything runs.
func LoadPlans(repoRoot, override, hook string) ([]Plan, error) {
	locs, err := config.Resolve(repoRoot, override, config.PruneFromEnv())
	if err != nil {
		return nil, err
	}
	sources, err := config.LoadAll(locs)
	if err != nil {
		return nil, err
	}

	plans := make([]Plan, 0, len(sources))
	for _, src := range sources {
		if err := src.Validate(); err != nil {
			return nil, err
		}
		blocks, err := src.Blocks(hook)
		if err != nil {
			return nil, err
		}
		plans = append(plans, Plan{Config: src, Blocks: blocks})
	}
	return plans, nil
}

func hasCommands(plans []Plan) bool {
	for _, p := range plans {
		for _, b := range p.Blocks {
			if !b.Empty() {
				return true
			}
		}
	}
	return false
}

func logAudit(opts Options, repo *git.Repo, res *Result, err error, elapsed time.Duration) {
	entry := audit.Entry{
		DurationMs: float64(elapsed.Microseconds()) / 1000,
		Hook:       opts.Hook,
		Args:       opts.Args,
		RepoRoot:   repo.Root,
		DryRun:     opts.DryRun,
		Configs:    res.Configs,
		Commands:   res.Commands,
		Executed:   res.Executed,
		ExitCode:   errs.ExitCode(err),
	}
	if len(res.Events) > 0 {
		entry.Events = make(map[string]int)
		for _, ev := range res.Events {
			entry.Events[string(ev.Kind)]++
		}
	}
	if err != nil {
		entry.Error = err.Error()
		var f *errs.Failure
		if errors.As(err, &f) {
			entry.Failure = &audit.Failure{Config: f.Config, Block: f.Block, Handler: f.Handler, Command: f.Command}
		}
	}
	if err := audit.Log(entry); err != nil {
		logger.Debug("failed to write audit entry", "error", err)
	}
}
