// Package explain renders the help topics shown by `fishook explain`.
package explain

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/sahilm/fuzzy"

	"github.com/modularizer/fishook/internal/constants"
	"github.com/modularizer/fishook/internal/event"
	"github.com/modularizer/fishook/internal/hookkey"
	"github.com/modularizer/fishook/internal/shell"
)

type topic struct {
	summary string
	render  func(w io.Writer)
}

var topics = map[string]topic{
	"hooks":     {"every hook fishook can run and what git passes it", renderHooks},
	"config":    {"config file names, discovery and accepted shapes", renderConfig},
	"events":    {"event kinds and which hooks produce them", renderEvents},
	"handlers":  {"handler keys and the order they run in", renderHandlers},
	"filters":   {"applyTo and skipList glob rules", renderFilters},
	"variables": {"environment exported to every command", renderVariables},
	"builtins":  {"content helpers available inside commands", renderBuiltins},
}

// Topics returns the topic names, sorted.
func Topics() []string {
	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary returns the one-line description of name.
func Summary(name string) string {
	return topics[name].summary
}

// Write renders topic name to w. A hook name is accepted as a topic too.
func Write(w io.Writer, name string) error {
	if t, ok := topics[name]; ok {
		t.render(w)
		return nil
	}
	if hookkey.IsKnown(name) {
		info, _ := hookkey.Lookup(name)
		renderHook(w, info)
		return nil
	}

	msg := fmt.Sprintf("unknown topic %q", name)
	candidates := append(Topics(), hookkey.Names()...)
	if matches := fuzzy.Find(name, candidates); len(matches) > 0 {
		msg += fmt.Sprintf(" (did you mean %q?)", matches[0].Str)
	}
	return fmt.Errorf("%s; topics: %s", msg, strings.Join(Topics(), ", "))
}

// Index lists every topic with its summary.
func Index(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range Topics() {
		fmt.Fprintf(tw, "  %s\t%s\n", name, topics[name].summary)
	}
	tw.Flush()
}

func renderHooks(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HOOK\tEVENTS\tARGS\tSTDIN")
	for _, info := range hookkey.All() {
		name := string(info.Key)
		if info.Server {
			name += " (server)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, info.Class, dash(info.Args), dash(info.Stdin))
	}
	tw.Flush()
}

func renderHook(w io.Writer, info hookkey.Info) {
	fmt.Fprintf(w, "%s\n", info.Key)
	fmt.Fprintf(w, "  events: %s\n", classDoc[info.Class])
	fmt.Fprintf(w, "  args:   %s\n", dash(info.Args))
	fmt.Fprintf(w, "  stdin:  %s\n", dash(info.Stdin))
	if info.Server {
		fmt.Fprintln(w, "  runs in the receiving repository")
	}
}

var classDoc = map[hookkey.Class]string{
	hookkey.ClassNone:        "none; only run commands execute",
	hookkey.ClassStaged:      "file events from the index against HEAD",
	hookkey.ClassCommitRange: "file events between two commits",
	hookkey.ClassPush:        "ref events from the pushed refs on stdin",
	hookkey.ClassReceive:     "ref events from the received refs on stdin",
	hookkey.ClassUpdate:      "one ref event from the arguments",
}

func renderConfig(w io.Writer) {
	fmt.Fprintf(w, "Files: %s\n", strings.Join(constants.ConfigFileNames, ", "))
	fmt.Fprintf(w, `
Configs are discovered up to %d directories below the repository root.
Each config only sees file events under its own directory. Set %s or pass
--config to use a single file instead.

A hook's value may be:
  "cmd"                          one command
  ["cmd1", "cmd2"]               commands run in order
  {"run": ..., "onAdd": ...}     a block
  [{...}, {...}]                 several blocks, in order

Top-level "setup" and "source" add shell lines and sourced files before
every command of that config. Keys starting with $ or _ are ignored.
`, constants.MaxConfigDepth, constants.EnvConfig)
}

func renderEvents(w io.Writer) {
	fmt.Fprintln(w, "File events: add, change, delete, move, copy")
	fmt.Fprintln(w, "Ref events:  ref_create, ref_update, ref_delete")
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, class := range []hookkey.Class{
		hookkey.ClassStaged, hookkey.ClassCommitRange, hookkey.ClassPush,
		hookkey.ClassReceive, hookkey.ClassUpdate, hookkey.ClassNone,
	} {
		var hooks []string
		for _, info := range hookkey.All() {
			if info.Class == class {
				hooks = append(hooks, string(info.Key))
			}
		}
		fmt.Fprintf(tw, "%s\t%s\n", classDoc[class], strings.Join(hooks, ", "))
	}
	tw.Flush()
}

func renderHandlers(w io.Writer) {
	fmt.Fprintln(w, `"run" commands execute once per invocation, before any event.`)
	fmt.Fprintln(w, "For each event, every matching tier runs in this order:")
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, kind := range []event.Kind{
		event.Add, event.Change, event.Delete, event.Move, event.Copy,
		event.RefCreate, event.RefUpdate, event.RefDelete,
	} {
		keys := event.Handlers(kind)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = string(k)
		}
		fmt.Fprintf(tw, "  %s\t%s\n", kind, strings.Join(parts, " -> "))
	}
	tw.Flush()
}

func renderFilters(w io.Writer) {
	fmt.Fprint(w, `applyTo and skipList take one glob or a list of globs.

  *     any run of characters except /
  **    any run of characters including /
  ?     one character except /
  [ab]  a character class

Paths are matched relative to the config's directory; a move or copy is
matched on its destination. A glob without / also matches the base name.
An event runs when applyTo is empty or matches, and skipList does not.
Ref events are never filtered.
`)
}

func renderVariables(w io.Writer) {
	fmt.Fprintln(w, "Commands run with the hook's arguments as $1.. and git's stdin.")
	fmt.Fprintln(w, "These variables are exported, event ones only while an event runs:")
	fmt.Fprintln(w)
	for _, v := range shell.Vars {
		fmt.Fprintf(w, "  %s%s\n", shell.VarPrefix, v)
	}
}

var builtinUsage = map[string]string{
	"old":     "print the file's previous content",
	"new":     "print the file's new content",
	"changes": "print the diff for the file",
	"modify":  "modify [--staged] [--worktree] SEARCH REPLACE: replace text in the file",
	"raise":   "raise [MESSAGE]: print MESSAGE and fail the hook",
}

func renderBuiltins(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range shell.Builtins() {
		fmt.Fprintf(tw, "  %s\t%s\n", name, builtinUsage[name])
	}
	tw.Flush()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "old, new, changes and modify need a file event and exit 2 elsewhere.")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
