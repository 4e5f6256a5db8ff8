package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/modularizer/fishook/internal/audit"
	"github.com/modularizer/fishook/internal/config"
	"github.com/modularizer/fishook/internal/errs"
	"github.com/modularizer/fishook/internal/testutil"
)

func runHook(t *testing.T, dir, hook string, mutate func(*Options)) (*Result, string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	opts := Options{
		Hook:    hook,
		Dir:     dir,
		NoAudit: true,
		Stdout:  &stdout,
		Stderr:  &stderr,
	}
	if mutate != nil {
		mutate(&opts)
	}
	res, err := Run(context.Background(), opts)
	return res, stdout.String(), stderr.String(), err
}

// mustRunHook is runHook for invocations expected to succeed.
func mustRunHook(t *testing.T, dir, hook string, mutate func(*Options)) (*Result, string, string) {
	t.Helper()
	res, stdout, stderr, err := runHook(t, dir, hook, mutate)
	if err != nil {
		t.Fatalf("Run(%s) error = %v\nstderr: %s", hook, err, stderr)
	}
	return res, stdout, stderr
}

func assertNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("%s exists, want it absent", path)
	}
}

func TestPreCommitFileEvent(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.WriteConfig(t, dir, ".", `{"pre-commit": {"onFileEvent": "echo X $FISHOOK_PATH_REL $FISHOOK_EVENT_KIND"}}`)
	testutil.Commit(t, dir, "config")

	testutil.WriteFile(t, dir, "new.txt", "hello\n")
	testutil.Git(t, dir, "add", "new.txt")

	res, stdout, _ := mustRunHook(t, dir, "pre-commit", nil)
	if stdout != "X new.txt add\n" {
		t.Errorf("stdout = %q", stdout)
	}
	if res.Executed != 1 {
		t.Errorf("Executed = %d, want 1", res.Executed)
	}
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(res.Events))
	}
	if want := filepath.Join(dir, "new.txt"); res.Events[0].File.AbsPath != want {
		t.Errorf("AbsPath = %q, want %q", res.Events[0].File.AbsPath, want)
	}
}

func TestPreCommitFailureAborts(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.WriteConfig(t, dir, ".", `{"pre-commit": ["echo first", "echo oops >&2; exit 1", "echo never"]}`)

	res, stdout, stderr, err := runHook(t, dir, "pre-commit", nil)

	var f *errs.Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *errs.Failure, got %v", err)
	}
	if f.ExitCode != 1 || f.Handler != "run" {
		t.Errorf("failure = exit %d handler %q, want exit 1 handler run", f.ExitCode, f.Handler)
	}
	if want := filepath.Join(dir, "fishook.json"); f.Config != want {
		t.Errorf("Config = %q, want %q", f.Config, want)
	}
	if !strings.Contains(f.Output, "oops") || !strings.Contains(stderr, "oops") {
		t.Errorf("stderr tail missing: output %q, stderr %q", f.Output, stderr)
	}
	if stdout != "first\n" {
		t.Errorf("stdout = %q, want first only", stdout)
	}
	if res.Executed != 2 {
		t.Errorf("Executed = %d, want 2", res.Executed)
	}
	if code := errs.ExitCode(err); code != 1 {
		t.Errorf("ExitCode = %d, want 1", code)
	}
}

func TestExitCodePropagates(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.WriteConfig(t, dir, ".", `{"pre-push": "exit 42"}`)

	_, _, _, err := runHook(t, dir, "pre-push", nil)
	if code := errs.ExitCode(err); code != 42 {
		t.Errorf("ExitCode = %d, want 42", code)
	}
}

func TestDryRun(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.WriteConfig(t, dir, ".", `{"pre-commit": {"run": "touch ran", "onAdd": "exit 1"}}`)
	testutil.WriteFile(t, dir, "a.txt", "a")
	testutil.Git(t, dir, "add", "a.txt")

	res, _, stderr := mustRunHook(t, dir, "pre-commit", func(o *Options) { o.DryRun = true })
	if res.Executed != 0 || res.Commands != 2 {
		t.Errorf("Executed = %d, Commands = %d, want 0 and 2", res.Executed, res.Commands)
	}
	assertNotExist(t, filepath.Join(dir, "ran"))
	for _, want := range []string{"[dry-run] pre-commit run: touch ran", "[dry-run] pre-commit onAdd: exit 1"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, stderr)
		}
	}
}

func TestScopedConfigs(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.WriteConfig(t, dir, ".", `{"pre-commit": {"onFileEvent": "echo root $FISHOOK_PATH_REL"}}`)
	testutil.WriteConfig(t, dir, "frontend", `{"pre-commit": {"onFileEvent": "echo frontend $FISHOOK_PATH_REL"}}`)
	testutil.Commit(t, dir, "configs")

	testutil.WriteFile(t, dir, "backend/x.js", "x")
	testutil.WriteFile(t, dir, "frontend/y.js", "y")
	testutil.Git(t, dir, "add", "-A")

	res, stdout, _ := mustRunHook(t, dir, "pre-commit", nil)

	// configs run in path order; each sees every event it scopes over
	if want := "root backend/x.js\nroot frontend/y.js\nfrontend frontend/y.js\n"; stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
	want := []string{
		filepath.Join(dir, "fishook.json"),
		filepath.Join(dir, "frontend", "fishook.json"),
	}
	if !reflect.DeepEqual(res.Configs, want) {
		t.Errorf("Configs = %v, want %v", res.Configs, want)
	}
}

func TestInvalidConfigAborts(t *testing.T) {
	tests := []struct {
		name  string
		write func(t *testing.T, dir string)
		code  errs.Code
	}{
		{
			name:  "invalid shape",
			write: func(t *testing.T, dir string) { testutil.WriteConfig(t, dir, "sub", `{"post-commit": 12}`) },
			code:  errs.InvalidConfigShape,
		},
		{
			name:  "parse error",
			write: func(t *testing.T, dir string) { testutil.WriteFile(t, dir, "z/fishook.yaml", "pre-commit: [\n") },
			code:  errs.ConfigParseError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.InitRepo(t)
			testutil.WriteConfig(t, dir, ".", `{"pre-commit": "touch ran"}`)
			tt.write(t, dir)

			_, _, _, err := runHook(t, dir, "pre-commit", nil)
			if !errs.Is(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
			assertNotExist(t, filepath.Join(dir, "ran"))
		})
	}
}

func TestNoConfigIsNoop(t *testing.T) {
	dir := testutil.InitRepo(t)
	res, stdout, _ := mustRunHook(t, dir, "pre-commit", nil)
	if stdout != "" || len(res.Configs) != 0 {
		t.Errorf("stdout = %q, configs = %v, want nothing", stdout, res.Configs)
	}
}

func TestUnknownHook(t *testing.T) {
	_, _, _, err := runHook(t, "", "pre-comit", nil)
	if !errs.Is(err, errs.UnknownHook) {
		t.Errorf("expected UnknownHook, got %v", err)
	}
	if code := errs.ExitCode(err); code != 2 {
		t.Errorf("ExitCode = %d, want 2", code)
	}
}

func TestOverrideConfig(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.WriteConfig(t, dir, ".", `{"pre-commit": "echo discovered"}`)
	override := testutil.WriteFile(t, t.TempDir(), "custom.toml", `pre-commit = "echo override $FISHOOK_CONFIG_PATH"`)

	_, stdout, _ := mustRunHook(t, dir, "pre-commit", func(o *Options) { o.ConfigOverride = override })
	if want := "override " + override + "\n"; stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
}

func TestTOMLListOfBlocks(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.WriteFile(t, dir, "fishook.toml", "[[pre-commit]]\nrun = \"echo first\"\n\n[[pre-commit]]\napplyTo = \"*.go\"\nonAdd = \"echo go $FISHOOK_PATH_REL\"\n")
	testutil.Commit(t, dir, "config")
	testutil.WriteFile(t, dir, "main.go", "package main\n")
	testutil.WriteFile(t, dir, "README.md", "hi\n")
	testutil.Git(t, dir, "add", "-A")

	_, stdout, _ := mustRunHook(t, dir, "pre-commit", nil)
	if want := "first\ngo main.go\n"; stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
}

func TestPostCommitContent(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.WriteFile(t, dir, "f.txt", "before\n")
	testutil.Commit(t, dir, "first")
	testutil.WriteConfig(t, dir, ".", `{"post-commit": {"onChange": "old; new", "onAdd": "echo added $FISHOOK_PATH_REL"}}`)
	testutil.WriteFile(t, dir, "f.txt", "after\n")
	testutil.Commit(t, dir, "second")

	res, stdout, _ := mustRunHook(t, dir, "post-commit", nil)
	if want := "before\nafter\nadded fishook.json\n"; stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
	for _, ev := range res.Events {
		if !ev.File.FromCommitRange() {
			t.Errorf("event %+v not tied to the commit range", ev.File)
		}
	}
}

func TestPostCommitInitialIsNoop(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.WriteConfig(t, dir, ".", `{"post-commit": {"onEvent": "echo event", "run": "echo run"}}`)
	testutil.Commit(t, dir, "initial")

	res, stdout, _ := mustRunHook(t, dir, "post-commit", nil)
	if len(res.Events) != 0 {
		t.Errorf("got %d events on the initial commit", len(res.Events))
	}
	if stdout != "run\n" {
		t.Errorf("stdout = %q, want run only", stdout)
	}
}

func TestPostCheckoutArgs(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.WriteConfig(t, dir, ".", `{"post-checkout": {"onEvent": "echo $FISHOOK_EVENT_KIND $FISHOOK_PATH_REL $1"}}`)
	first := testutil.Commit(t, dir, "first")
	testutil.WriteFile(t, dir, "g.txt", "g")
	second := testutil.Commit(t, dir, "second")

	_, stdout, _ := mustRunHook(t, dir, "post-checkout", func(o *Options) { o.Args = []string{first, second, "1"} })
	if want := "add g.txt " + first + "\n"; stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
}

func TestModifyStaged(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.WriteConfig(t, dir, ".", `{"pre-commit": {"applyTo": "*.txt", "onAdd": "modify --staged TODO DONE"}}`)
	testutil.Commit(t, dir, "config")
	testutil.WriteFile(t, dir, "notes.txt", "TODO: ship\n")
	testutil.Git(t, dir, "add", "notes.txt")

	mustRunHook(t, dir, "pre-commit", nil)
	if got := testutil.Git(t, dir, "show", ":notes.txt"); got != "DONE: ship" {
		t.Errorf("staged content = %q", got)
	}
	if got := testutil.ReadFile(t, dir, "notes.txt"); got != "TODO: ship\n" {
		t.Errorf("work tree content = %q", got)
	}
}

func TestPrePushRefEvents(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.WriteConfig(t, dir, ".", `{"pre-push": {"onRefCreate": "echo create $FISHOOK_REF $FISHOOK_REMOTE_NAME", "onRefEvent": "echo any $FISHOOK_LOCAL_REF"}}`)
	head := testutil.Commit(t, dir, "first")
	zero := strings.Repeat("0", 40)

	stdin := "refs/heads/main " + head + " refs/heads/main " + zero + "\n"
	_, stdout, _ := mustRunHook(t, dir, "pre-push", func(o *Options) {
		o.Args = []string{"origin", "https://example.com/r.git"}
		o.Stdin = []byte(stdin)
	})
	if want := "create refs/heads/main origin\nany refs/heads/main\n"; stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
}

func TestAuditEntry(t *testing.T) {
	defer audit.Reset()
	dir := testutil.InitRepo(t)
	testutil.WriteConfig(t, dir, ".", `{"pre-commit": {"onAdd": "true", "run": "exit 3"}}`)

	if _, _, _, err := runHook(t, dir, "pre-commit", func(o *Options) { o.NoAudit = false }); err == nil {
		t.Fatal("expected the run to fail")
	}

	data, err := os.ReadFile(filepath.Join(dir, ".git", "fishook", "audit.log"))
	if err != nil {
		t.Fatalf("audit log not written: %v", err)
	}

	var entry audit.Entry
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("invalid audit entry: %v", err)
	}
	if entry.Hook != "pre-commit" || entry.ExitCode != 3 || entry.RepoRoot != dir {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Failure == nil || entry.Failure.Command != "exit 3" {
		t.Errorf("Failure = %+v, want command exit 3", entry.Failure)
	}
}

func TestLoadPlans(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteConfig(t, dir, ".", `{"pre-commit": ["a", "b"], "pre-push": "c"}`)

	plans, err := LoadPlans(dir, "", "pre-commit")
	if err != nil {
		t.Fatalf("LoadPlans() error = %v", err)
	}
	if len(plans) != 1 || !reflect.DeepEqual(plans[0].Blocks[0].Run, []string{"a", "b"}) {
		t.Errorf("plans = %+v", plans)
	}

	plans, err = LoadPlans(dir, "", "post-merge")
	if err != nil {
		t.Fatalf("LoadPlans() error = %v", err)
	}
	if len(plans[0].Blocks) != 0 || hasCommands(plans) {
		t.Errorf("post-merge plans = %+v, want no commands", plans)
	}
}

func TestLint(t *testing.T) {
	src := &config.Source{
		Path: "/repo/fishook.json",
		Hooks: map[string]any{
			"pre-commit": map[string]any{
				"run":   "old | grep x",
				"onAdd": "new | wc -l",
			},
			"pre-push": map[string]any{
				"onRefEvent": []any{"changes", "echo $("},
			},
		},
	}

	findings, err := Lint(src)
	if err != nil {
		t.Fatalf("Lint() error = %v", err)
	}
	if len(findings) != 3 {
		t.Fatalf("got %d findings, want 3: %v", len(findings), findings)
	}

	tests := []struct {
		hook    string
		handler string
		message string
		fatal   bool
	}{
		{"pre-commit", "run", "old needs a file event", false},
		{"pre-push", "onRefEvent", "changes", false},
		{"pre-push", "onRefEvent", "", true},
	}
	for i, tt := range tests {
		f := findings[i]
		if f.Hook != tt.hook || f.Handler != tt.handler || f.Fatal != tt.fatal {
			t.Errorf("finding %d = %+v, want %s %s fatal=%v", i, f, tt.hook, tt.handler, tt.fatal)
		}
		if !strings.Contains(f.Message, tt.message) {
			t.Errorf("finding %d message = %q, want it to contain %q", i, f.Message, tt.message)
		}
	}
	if !strings.Contains(findings[2].String(), "pre-push[0].onRefEvent") {
		t.Errorf("String() = %q", findings[2].String())
	}
}
