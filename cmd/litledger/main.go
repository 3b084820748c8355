// Command litledger is the command-line front end of the story ledger.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/litledger/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
