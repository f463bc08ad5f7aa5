package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ning0612/treeclean/internal/cli"
)

// Populated by -ldflags at build time
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cli.SetVersionInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app := cli.NewApp()
	code := cli.Execute(ctx, app.MatrixCommand(), os.Args[1:])
	stop()
	os.Exit(code)
}
