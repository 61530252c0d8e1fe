// Command jarvis runs the voice assistant and the commands that control it.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/jarvis/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	runner := app.Runner{Stdout: os.Stdout, Stderr: os.Stderr}
	exitCode := runner.Execute(ctx, os.Args[1:])

	stop()
	os.Exit(exitCode)
}
