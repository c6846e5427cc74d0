// Command wikiagent runs the conversational agent as an HTTP API, an MCP
// server, or a one-shot CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hupe1980/wikiagent/internal/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := cli.Execute(ctx, os.Args[1:], cli.IO{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}, version)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wikiagent:", err)
		return 1
	}
	return 0
}
