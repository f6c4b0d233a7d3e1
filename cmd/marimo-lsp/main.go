package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// fang wraps the cobra root the same way the teacher's CLI does, for
	// consistent --help/error rendering and automatic usage on parse errors.
	if err := fang.Execute(ctx, rootCmd); err != nil {
		os.Exit(1)
	}
}
