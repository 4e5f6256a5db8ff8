// Package git wraps the git plumbing commands fishook needs.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/modularizer/fishook/internal/errs"
	"github.com/modularizer/fishook/internal/logger"
)

// Repo is a repository located on disk.
type Repo struct {
	// Root is the working tree root, or the git dir for bare repositories.
	Root string
	// GitDir is the absolute git directory.
	GitDir string
	Bare   bool
}

// Open locates the repository containing dir.
func Open(ctx context.Context, dir string) (*Repo, error) {
	out, err := outputGit(ctx, dir, nil, "rev-parse", "--absolute-git-dir", "--is-bare-repository")
	if err != nil {
		return nil, errs.Wrap(err, errs.GitError, "not a git repository: %s", dir)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return nil, errs.New(errs.GitError, "unexpected rev-parse output %q", out)
	}

	r := &Repo{GitDir: lines[0], Bare: lines[1] == "true"}
	if r.Bare {
		r.Root = r.GitDir
		return r, nil
	}

	top, err := outputGit(ctx, dir, nil, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, errs.Wrap(err, errs.GitError, "failed to find working tree root")
	}
	r.Root = strings.TrimSpace(string(top))
	return r, nil
}

// Name returns the base name of the repository root.
func (r *Repo) Name() string {
	name := filepath.Base(r.Root)
	if r.Bare {
		name = strings.TrimSuffix(name, ".git")
	}
	return name
}

// HooksDir returns the directory git reads hooks from, honouring core.hooksPath.
func (r *Repo) HooksDir(ctx context.Context) (string, error) {
	out, err := r.output(ctx, nil, "rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(string(out))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.Root, dir)
	}
	return dir, nil
}

// Change is one entry of `git diff --name-status`.
type Change struct {
	// Status is the raw status token, e.g. "M" or "R100".
	Status string
	Path   string
	// Src is set for renames and copies; Path is then the destination.
	Src string
}

// StagedChanges lists index changes relative to HEAD, with rename and copy
// detection.
func (r *Repo) StagedChanges(ctx context.Context) ([]Change, error) {
	out, err := r.output(ctx, nil, "diff", "--cached", "--name-status", "-z", "-M", "-C")
	if err != nil {
		return nil, err
	}
	return ParseNameStatus(out)
}

// DiffCommits lists changes between two commits.
func (r *Repo) DiffCommits(ctx context.Context, oldRev, newRev string) ([]Change, error) {
	out, err := r.output(ctx, nil, "diff", "--name-status", "-z", "-M", "-C", oldRev, newRev)
	if err != nil {
		return nil, err
	}
	return ParseNameStatus(out)
}

// ParseNameStatus parses NUL-separated `--name-status -z` output.
func ParseNameStatus(out []byte) ([]Change, error) {
	fields := strings.Split(string(out), "\x00")
	if n := len(fields); n > 0 && fields[n-1] == "" {
		fields = fields[:n-1]
	}

	var changes []Change
	for i := 0; i < len(fields); {
		status := fields[i]
		i++
		if status == "" {
			continue
		}
		switch status[0] {
		case 'R', 'C':
			if i+1 >= len(fields) {
				return nil, fmt.Errorf("truncated name-status entry for %s", status)
			}
			changes = append(changes, Change{Status: status, Src: fields[i], Path: fields[i+1]})
			i += 2
		default:
			if i >= len(fields) {
				return nil, fmt.Errorf("truncated name-status entry for %s", status)
			}
			changes = append(changes, Change{Status: status, Path: fields[i]})
			i++
		}
	}
	return changes, nil
}

// ResolveCommit resolves id to a full commit id. ok is false when id does not
// name a commit.
func (r *Repo) ResolveCommit(ctx context.Context, id string) (sha string, ok bool) {
	if id == "" {
		return "", false
	}
	out, err := r.output(ctx, nil, "rev-parse", "--verify", "--quiet", id+"^{commit}")
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(out)), true
}

// Show returns the blob at rev:path; rev "" reads the index. ok is false when
// the object does not exist, e.g. the old side of an added file.
func (r *Repo) Show(ctx context.Context, rev, path string) (data []byte, ok bool, err error) {
	object := rev + ":" + path
	if _, err := r.output(ctx, nil, "cat-file", "-e", object); err != nil {
		return nil, false, nil
	}
	out, err := r.output(ctx, nil, "cat-file", "blob", object)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Diff returns a unified diff for path. With empty revisions it diffs the
// index against HEAD.
func (r *Repo) Diff(ctx context.Context, oldRev, newRev string, paths ...string) ([]byte, error) {
	args := []string{"diff", "--no-color", "--no-ext-diff"}
	if oldRev == "" && newRev == "" {
		args = append(args, "--cached")
	} else {
		args = append(args, oldRev, newRev)
	}
	args = append(args, "--")
	args = append(args, paths...)
	return r.output(ctx, nil, args...)
}

// IndexMode returns the file mode recorded in the index for path, e.g. "100644".
func (r *Repo) IndexMode(ctx context.Context, path string) (string, error) {
	out, err := r.output(ctx, nil, "ls-files", "-s", "--", path)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return "", errs.New(errs.GitError, "%s is not in the index", path)
	}
	return fields[0], nil
}

// HashObject writes data as a blob and returns its id.
func (r *Repo) HashObject(ctx context.Context, data []byte) (string, error) {
	out, err := r.output(ctx, bytes.NewReader(data), "hash-object", "-w", "--stdin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// UpdateIndex points the index entry for path at blob with the given mode.
func (r *Repo) UpdateIndex(ctx context.Context, mode, blob, path string) error {
	_, err := r.output(ctx, nil, "update-index", "--cacheinfo", mode+","+blob+","+path)
	return err
}

func (r *Repo) output(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error) {
	return outputGit(ctx, r.Root, stdin, args...)
}

// outputGit runs git in dir and returns stdout. Failures carry git's stderr.
func outputGit(ctx context.Context, dir string, stdin io.Reader, args ...string) ([]byte, error) {
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	logger.Debug("git", "args", args)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		e := errs.Wrap(err, errs.GitError, "git %s failed", strings.Join(args, " "))
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			e.WithDetail("stderr", msg)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			e.WithDetail("exit", exitErr.ExitCode())
		}
		return nil, e
	}
	return out, nil
}
