package hook

import (
	"fmt"

	"mvdan.cc/sh/v3/syntax"

	"github.com/modularizer/fishook/internal/config"
	"github.com/modularizer/fishook/internal/event"
	"github.com/modularizer/fishook/internal/shell"
)

// Finding is a problem found in a configured command without running it.
type Finding struct {
	Config  string
	Hook    string
	Block   int
	Handler string
	Command string
	Message string
	// Fatal findings make the command fail at run time.
	Fatal bool
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s[%d].%s: %s: %q", f.Config, f.Hook, f.Block, f.Handler, f.Message, f.Command)
}

// fileBuiltins need a current file event.
var fileBuiltins = map[string]bool{"old": true, "new": true, "changes": true, "modify": true}

// Lint parses every command of src and reports syntax errors and file
// builtins used where no file event can exist.
func Lint(src *config.Source) ([]Finding, error) {
	var findings []Finding
	for _, hook := range src.HookNames() {
		blocks, err := src.Blocks(hook)
		if err != nil {
			return nil, err
		}
		for _, b := range blocks {
			check := func(handler string, cmds []string, fileEvents bool) {
				for _, cmd := range cmds {
					base := Finding{Config: src.Path, Hook: hook, Block: b.Index, Handler: handler, Command: cmd}
					findings = append(findings, lintCommand(base, fileEvents)...)
				}
			}
			check(shell.HandlerRun, b.Run, false)
			for _, key := range event.HandlerKeys {
				check(string(key), b.Handlers[key], handlerSeesFiles(key))
			}
		}
	}
	return findings, nil
}

func handlerSeesFiles(key event.HandlerKey) bool {
	switch key {
	case event.OnRefCreate, event.OnRefUpdate, event.OnRefDelete, event.OnRefEvent:
		return false
	}
	return true
}

func lintCommand(base Finding, fileEvents bool) []Finding {
	prog, err := shell.Parse(base.Handler, base.Command)
	if err != nil {
		base.Message = err.Error()
		base.Fatal = true
		return []Finding{base}
	}
	if fileEvents {
		return nil
	}

	var out []Finding
	seen := make(map[string]bool)
	syntax.Walk(prog, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		name := call.Args[0].Lit()
		if fileBuiltins[name] && !seen[name] {
			seen[name] = true
			f := base
			f.Message = fmt.Sprintf("%s needs a file event and will exit 2 here", name)
			out = append(out, f)
		}
		return true
	})
	return out
}
