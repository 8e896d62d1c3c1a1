// Command hitlgraph runs the human-in-the-loop workflows and posts JIRA
// worklogs.
//
//	hitlgraph confirm
//	hitlgraph research "Artificial Intelligence"
//	hitlgraph adventure --blocks 3
//	hitlgraph worklog SWD-3114 8h "line one" "line two"
//	hitlgraph tools call get_current_datetime
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
