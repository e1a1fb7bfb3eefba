package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/cellbook/cellbook/internal/cmd"
)

// These are variables so that they can be set during the build time.
var (
	BuildDate    = "unknown"
	BuildVersion = "0.0.0"
	Commit       = "unknown"
)

func root() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := cmd.Root()
	root.Version = fmt.Sprintf("cellbook %s (%s) on %s", BuildVersion, Commit, BuildDate)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}

func main() {
	os.Exit(root())
}
