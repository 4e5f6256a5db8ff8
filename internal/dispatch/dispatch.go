// Package dispatch runs a config's normalized blocks against the events of
// one hook invocation.
package dispatch

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/modularizer/fishook/internal/config"
	"github.com/modularizer/fishook/internal/errs"
	"github.com/modularizer/fishook/internal/event"
	"github.com/modularizer/fishook/internal/logger"
	"github.com/modularizer/fishook/internal/patterns"
	"github.com/modularizer/fishook/internal/shell"
)

// Executor runs a single scheduled command.
type Executor interface {
	Exec(ctx context.Context, c shell.Command) error
}

// Dispatcher schedules commands in deterministic order and stops at the
// first failure.
type Dispatcher struct {
	Exec Executor
	// RepoRoot anchors filter paths for unscoped configs.
	RepoRoot string
	// Commands counts the commands handed to Exec.
	Commands int
}

type compiledBlock struct {
	config.Block
	include patterns.Set
	exclude patterns.Set
}

// Run executes cfg's blocks: every block's run commands first, in block
// order, then for each event each block whose scope and filters accept it.
func (d *Dispatcher) Run(ctx context.Context, cfg *config.Source, blocks []config.Block, events []event.Event) error {
	compiled := make([]compiledBlock, 0, len(blocks))
	for _, b := range blocks {
		include, err := patterns.CompileSet(b.ApplyTo)
		if err != nil {
			return errs.Wrap(err, errs.InvalidConfigShape, "invalid applyTo pattern").WithDetail("config", cfg.Path)
		}
		exclude, err := patterns.CompileSet(b.SkipList)
		if err != nil {
			return errs.Wrap(err, errs.InvalidConfigShape, "invalid skipList pattern").WithDetail("config", cfg.Path)
		}
		compiled = append(compiled, compiledBlock{Block: b, include: include, exclude: exclude})
	}

	for _, b := range compiled {
		for _, cmd := range b.Run {
			if err := d.exec(ctx, shell.Command{Config: cfg, Block: b.Index, Handler: shell.HandlerRun, Command: cmd}); err != nil {
				return err
			}
		}
	}

	for i := range events {
		ev := &events[i]
		for _, b := range compiled {
			if !d.accepts(cfg, b, ev) {
				continue
			}
			for _, key := range event.Handlers(ev.Kind) {
				for _, cmd := range b.Handlers[key] {
					c := shell.Command{Config: cfg, Block: b.Index, Handler: string(key), Command: cmd, Event: ev}
					if err := d.exec(ctx, c); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (d *Dispatcher) exec(ctx context.Context, c shell.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.Commands++
	return d.Exec.Exec(ctx, c)
}

// accepts applies the scope test and the applyTo/skipList filters. Ref
// events are never filtered.
func (d *Dispatcher) accepts(cfg *config.Source, b compiledBlock, ev *event.Event) bool {
	if ev.File == nil {
		return true
	}

	base := d.RepoRoot
	if cfg.ScopeRoot != "" {
		if !Within(cfg.ScopeRoot, ev.File.AbsPrimaryPath()) {
			logger.Debug("event outside config scope", "config", cfg.Path, "path", ev.File.PrimaryPath())
			return false
		}
		base = cfg.ScopeRoot
	}

	rel := ev.File.PrimaryPath()
	if base != "" {
		if r, err := filepath.Rel(base, ev.File.AbsPrimaryPath()); err == nil {
			rel = filepath.ToSlash(r)
		}
	}
	return patterns.Allowed(rel, b.include, b.exclude)
}

// Within reports whether path is root or lexically below it.
func Within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
