// Command blockflow runs the demo programs against a local runtime.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/randalmurphal/blockflow/pkg/blockflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an aborted run to the code it was aborted with.
func exitCode(err error) int {
	var abort *blockflow.AbortError
	if errors.As(err, &abort) && abort.Code != 0 {
		return abort.Code
	}
	return 1
}
