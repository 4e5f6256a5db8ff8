package config

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/modularizer/fishook/internal/constants"
	"github.com/modularizer/fishook/internal/errs"
	"github.com/modularizer/fishook/internal/event"
	"github.com/modularizer/fishook/internal/logger"
)

func TestNormalizeShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want []Block
	}{
		{
			name: "string",
			raw:  "npm test",
			want: []Block{{Run: []string{"npm test"}}},
		},
		{
			name: "list of strings",
			raw:  []any{"a", "b"},
			want: []Block{{Run: []string{"a", "b"}}},
		},
		{
			name: "object with handlers",
			raw: map[string]any{
				"onAdd":   "echo added",
				"onEvent": []any{"x", "y"},
				"applyTo": "*.go",
			},
			want: []Block{{
				Handlers: map[event.HandlerKey][]string{
					event.OnAdd:   {"echo added"},
					event.OnEvent: {"x", "y"},
				},
				ApplyTo: []string{"*.go"},
			}},
		},
		{
			name: "run and commands concatenate",
			raw:  map[string]any{"run": "a", "commands": []any{"b"}},
			want: []Block{{Run: []string{"a", "b"}}},
		},
		{
			name: "list of objects keeps order",
			raw: []any{
				map[string]any{"run": "first"},
				map[string]any{"skipList": []any{"vendor/**"}, "onChange": "second"},
			},
			want: []Block{
				{Index: 0, Run: []string{"first"}},
				{
					Index:    1,
					Handlers: map[event.HandlerKey][]string{event.OnChange: {"second"}},
					SkipList: []string{"vendor/**"},
				},
			},
		},
		{
			name: "empty object",
			raw:  map[string]any{},
			want: []Block{{}},
		},
		{
			name: "yaml style keys",
			raw:  map[any]any{"run": "lint"},
			want: []Block{{Run: []string{"lint"}}},
		},
		{
			name: "empty list",
			raw:  []any{},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize("pre-commit", tt.raw)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNormalizeInvalidShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		path string
	}{
		{"number", 42.0, "pre-commit"},
		{"null", nil, "pre-commit"},
		{"boolean", true, "pre-commit"},
		{"strings then object", []any{"a", map[string]any{}}, "pre-commit[1]"},
		{"object then string", []any{map[string]any{}, "a"}, "pre-commit[1]"},
		{"non-string handler", map[string]any{"onAdd": 3.0}, "pre-commit.onAdd"},
		{"non-string applyTo item", map[string]any{"applyTo": []any{"a", 1.0}}, "pre-commit.applyTo"},
		{"invalid glob", map[string]any{"skipList": "[abc"}, "pre-commit.skipList"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize("pre-commit", tt.raw)
			if !errs.Is(err, errs.InvalidConfigShape) {
				t.Fatalf("expected InvalidConfigShape, got %v", err)
			}
			e := err.(*errs.Error)
			if e.Details["path"] != tt.path {
				t.Errorf("path detail = %v, want %q", e.Details["path"], tt.path)
			}
			if e.Details["hook"] != "pre-commit" {
				t.Errorf("hook detail = %v, want pre-commit", e.Details["hook"])
			}
		})
	}
}

func TestNormalizeIgnoresUnknownKeys(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		unknown string
	}{
		{"typo handler", map[string]any{"onAdd": "a", "onAddd": "typo"}, "onAddd"},
		{"capitalised run", map[string]any{"onAdd": "a", "Run": "echo capital"}, "Run"},
		{"upper case applyTo", map[string]any{"onAdd": "a", "APPLYTO": "*.go"}, "APPLYTO"},
		{"rest", map[string]any{"onAdd": "a", "rest": "echo typo"}, "rest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger.Reset()
			logger.Init(logger.Options{Output: &buf})
			t.Cleanup(logger.Reset)

			got, err := Normalize("pre-commit", tt.raw)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			want := []Block{{Handlers: map[event.HandlerKey][]string{event.OnAdd: {"a"}}}}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Normalize() = %#v, want only onAdd", got)
			}
			if !strings.Contains(buf.String(), "ignoring unknown action key") || !strings.Contains(buf.String(), "key="+tt.unknown) {
				t.Errorf("missing warning for %q: %s", tt.unknown, buf.String())
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []any{
		"echo hi",
		[]any{"a", "b"},
		map[string]any{"run": "r", "onMove": []any{"m1", "m2"}, "applyTo": "*.md", "skipList": "x/**"},
		[]any{map[string]any{"onRefEvent": "r"}, map[string]any{}},
	}

	for _, raw := range inputs {
		first, err := Normalize("pre-push", raw)
		if err != nil {
			t.Fatalf("Normalize(%v) error = %v", raw, err)
		}
		for _, b := range first {
			again, err := Normalize("pre-push", b.Raw())
			if err != nil {
				t.Fatalf("Normalize(Raw()) error = %v", err)
			}
			again[0].Index = b.Index
			if !reflect.DeepEqual(again[0], b) {
				t.Errorf("not idempotent: %#v != %#v", again[0], b)
			}
		}
	}
}

func TestBlockEmpty(t *testing.T) {
	if !(Block{}).Empty() {
		t.Error("zero block should be empty")
	}
	if !(Block{ApplyTo: []string{"*"}}).Empty() {
		t.Error("filters alone contribute no commands")
	}
	if (Block{Run: []string{"x"}}).Empty() {
		t.Error("block with run is not empty")
	}
	b := Block{Handlers: map[event.HandlerKey][]string{event.OnEvent: {"x"}}}
	if b.Empty() {
		t.Error("block with handler is not empty")
	}
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"json", "fishook.json", `{"pre-commit": "make lint"}`},
		{"toml", "fishook.toml", `pre-commit = "make lint"`},
		{"yaml", "fishook.yaml", "pre-commit: make lint\n"},
		{"yml", "fishook.yml", "pre-commit: make lint\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Parse(tt.file, []byte(tt.data))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if raw["pre-commit"] != "make lint" {
				t.Errorf("pre-commit = %v, want make lint", raw["pre-commit"])
			}
		})
	}
}

func TestParseThenNormalize(t *testing.T) {
	listOfObjects := []Block{
		{Index: 0, ApplyTo: []string{"*.go"}, Handlers: map[event.HandlerKey][]string{event.OnChange: {"gofmt -l x"}}},
		{Index: 1, Handlers: map[event.HandlerKey][]string{event.OnAdd: {"echo add"}}},
	}
	object := []Block{{Run: []string{"make lint"}, Handlers: map[event.HandlerKey][]string{event.OnAdd: {"a", "b"}}}}

	tests := []struct {
		name string
		file string
		data string
		want []Block
	}{
		{"toml list of objects", "fishook.toml",
			"[[pre-commit]]\napplyTo = \"*.go\"\nonChange = \"gofmt -l x\"\n[[pre-commit]]\nonAdd = \"echo add\"\n", listOfObjects},
		{"toml inline list of objects", "fishook.toml",
			"pre-commit = [{applyTo = \"*.go\", onChange = \"gofmt -l x\"}, {onAdd = \"echo add\"}]\n", listOfObjects},
		{"yaml list of objects", "fishook.yaml",
			"pre-commit:\n  - applyTo: \"*.go\"\n    onChange: gofmt -l x\n  - onAdd: echo add\n", listOfObjects},
		{"json list of objects", "fishook.json",
			`{"pre-commit": [{"applyTo": "*.go", "onChange": "gofmt -l x"}, {"onAdd": "echo add"}]}`, listOfObjects},
		{"toml object", "fishook.toml",
			"[pre-commit]\nrun = \"make lint\"\nonAdd = [\"a\", \"b\"]\n", object},
		{"yaml object", "fishook.yaml",
			"pre-commit:\n  run: make lint\n  onAdd: [a, b]\n", object},
		{"json object", "fishook.json",
			`{"pre-commit": {"run": "make lint", "onAdd": ["a", "b"]}}`, object},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Parse(tt.file, []byte(tt.data))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			got, err := Normalize("pre-commit", raw["pre-commit"])
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	raw, err := Parse("fishook.json", []byte("  \n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(raw) != 0 {
		t.Errorf("expected empty map, got %v", raw)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		file string
		data string
	}{
		{"fishook.json", `{"pre-commit": `},
		{"fishook.toml", `pre-commit = [`},
		{"fishook.yaml", "pre-commit: [\n"},
		{"fishook.ini", `x=1`},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			if _, err := Parse(tt.file, []byte(tt.data)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fishook.json")
	data := `{
		"$schema": "https://example.invalid/schema.json",
		"_comment": "ignored",
		"setup": "export A=1",
		"source": ["env.sh"],
		"pre-commit": {"onAdd": "echo $FISHOOK_PATH_REL"},
		"pre-comit": "typo"
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	src, err := Load(Location{Path: path, ScopeRoot: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(src.Setup, []string{"export A=1"}) {
		t.Errorf("Setup = %v", src.Setup)
	}
	if !reflect.DeepEqual(src.Preludes, []string{"env.sh"}) {
		t.Errorf("Preludes = %v", src.Preludes)
	}
	if !reflect.DeepEqual(src.HookNames(), []string{"pre-commit"}) {
		t.Errorf("HookNames() = %v, want [pre-commit]", src.HookNames())
	}
	if src.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", src.Dir(), dir)
	}
	if err := src.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fishook.json")

	src, err := Load(Location{Path: path, ScopeRoot: dir, Optional: true})
	if err != nil || src != nil {
		t.Errorf("optional missing config: got (%v, %v), want (nil, nil)", src, err)
	}

	_, err = Load(Location{Path: path})
	if !errs.Is(err, errs.ConfigParseError) {
		t.Errorf("expected ConfigParseError for missing override, got %v", err)
	}
}

func TestLoadParseErrorNamesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fishook.json")
	if err := os.WriteFile(path, []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(Location{Path: path, ScopeRoot: dir})
	if !errs.Is(err, errs.ConfigParseError) {
		t.Fatalf("expected ConfigParseError, got %v", err)
	}
	if err.(*errs.Error).Details["config"] != path {
		t.Errorf("error should name %s: %v", path, err)
	}
}

func TestLoadAllFailsWhole(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a", "fishook.json")
	bad := filepath.Join(dir, "b", "fishook.json")
	for _, p := range []string{good, bad} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(good, []byte(`{"pre-commit": "ok"}`), 0644)
	os.WriteFile(bad, []byte(`{`), 0644)

	srcs, err := LoadAll([]Location{{Path: good}, {Path: bad}})
	if err == nil {
		t.Fatal("expected error")
	}
	if srcs != nil {
		t.Errorf("expected no partial result, got %d sources", len(srcs))
	}
}

func TestBlocksAddsConfigDetail(t *testing.T) {
	src := &Source{Path: "/repo/fishook.json", Hooks: map[string]any{"pre-commit": 1.0}}
	_, err := src.Blocks("pre-commit")
	if !errs.Is(err, errs.InvalidConfigShape) {
		t.Fatalf("expected InvalidConfigShape, got %v", err)
	}
	if err.(*errs.Error).Details["config"] != "/repo/fishook.json" {
		t.Errorf("missing config detail: %v", err.(*errs.Error).Details)
	}

	blocks, err := src.Blocks("post-commit")
	if err != nil || blocks != nil {
		t.Errorf("unconfigured hook: got (%v, %v)", blocks, err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveDiscovery(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "fishook.json"), "{}")
	writeFile(t, filepath.Join(root, "web", "fishook.yaml"), "")
	writeFile(t, filepath.Join(root, "a", "b", "c", "d", "fishook.toml"), "")
	writeFile(t, filepath.Join(root, "a", "b", "c", "d", "e", "fishook.json"), "{}")
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "fishook.json"), "{}")
	writeFile(t, filepath.Join(root, "vendor", "fishook.json"), "{}")
	writeFile(t, filepath.Join(root, "web", "other.json"), "{}")

	locs, err := Resolve(root, "", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []Location{
		{Path: filepath.Join(root, "a", "b", "c", "d", "fishook.toml"), ScopeRoot: filepath.Join(root, "a", "b", "c", "d")},
		{Path: filepath.Join(root, "fishook.json"), ScopeRoot: root},
		{Path: filepath.Join(root, "web", "fishook.yaml"), ScopeRoot: filepath.Join(root, "web")},
	}
	if !reflect.DeepEqual(locs, want) {
		t.Errorf("Resolve() = %#v\nwant %#v", locs, want)
	}
}

func TestResolveExtraPrune(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "build", "fishook.json"), "{}")
	writeFile(t, filepath.Join(root, "src", "fishook.json"), "{}")

	locs, err := Resolve(root, "", []string{"build"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(locs) != 1 || locs[0].ScopeRoot != filepath.Join(root, "src") {
		t.Errorf("Resolve() = %#v, want only src config", locs)
	}
}

func TestResolveFallback(t *testing.T) {
	root := t.TempDir()
	locs, err := Resolve(root, "", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := []Location{{Path: filepath.Join(root, "fishook.json"), ScopeRoot: root, Optional: true}}
	if !reflect.DeepEqual(locs, want) {
		t.Errorf("Resolve() = %#v, want %#v", locs, want)
	}
}

func TestResolveOverride(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "fishook.json"), "{}")
	override := filepath.Join(root, "custom", "hooks.yaml")

	locs, err := Resolve(root, override, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := []Location{{Path: override}}
	if !reflect.DeepEqual(locs, want) {
		t.Errorf("Resolve() = %#v, want %#v", locs, want)
	}
}

func TestPruneFromEnv(t *testing.T) {
	t.Setenv("FISHOOK_PRUNE", " dist, build ,,")
	if got := PruneFromEnv(); !reflect.DeepEqual(got, []string{"dist", "build"}) {
		t.Errorf("PruneFromEnv() = %v", got)
	}
}

func TestStarterIsValid(t *testing.T) {
	raw, err := Parse(constants.DefaultConfigFile, Starter())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	src, err := fromMap(Location{Path: "/repo/" + constants.DefaultConfigFile, ScopeRoot: "/repo"}, raw)
	if err != nil {
		t.Fatalf("fromMap() error = %v", err)
	}
	if err := src.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	want := []string{"commit-msg", "pre-commit", "pre-push"}
	if got := src.HookNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("HookNames() = %v, want %v", got, want)
	}
}
