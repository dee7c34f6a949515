package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/noah-isme/sma-substitute-api/internal/cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "substitute:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return cli.Execute(ctx)
}
