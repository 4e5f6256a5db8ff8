// fishook runs the commands declared in fishook.json files when git fires a
// hook, once per hook and once per changed file or ref.
//
// Install the hook stubs in a repository:
//
//	fishook install
//
// Describe what should run:
//
//	{
//	  "pre-commit": {"applyTo": "*.go", "onChange": "gofmt -l \"$FISHOOK_ABS_PATH\""},
//	  "pre-push": {"onRefDelete": "raise 'no deleting branches'"}
//	}
//
// Try it without git:
//
//	fishook pre-commit --dry-run
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modularizer/fishook/cmd"
	"github.com/modularizer/fishook/internal/errs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprint(os.Stderr, errs.Report(err))
		os.Exit(errs.ExitCode(err))
	}
}
