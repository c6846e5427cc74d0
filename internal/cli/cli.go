// Package cli implements the wikiagent command line.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hupe1980/wikiagent/internal/app"
	"github.com/hupe1980/wikiagent/internal/config"
	"github.com/hupe1980/wikiagent/logging"
	"github.com/hupe1980/wikiagent/mcp"
	"github.com/hupe1980/wikiagent/server"
)

const usageText = `Usage:
  wikiagent [global flags] <command> [args]

Commands:
  serve  [-addr <host:port>]            run the HTTP API
  ingest [-corpus <path>]               index jsonl/html/md/pdf/txt files
  ask    [-q <question>] [-json]        answer one question (reads stdin without -q)
  mcp                                   serve the tools over MCP stdio

Global flags:
  -config <path>   TOML config file (default wikiagent.toml, or WIKIAGENT_CONFIG)
`

const shutdownGrace = 10 * time.Second

// IO bundles the process streams.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Execute parses args and runs the selected command. appOpts are passed to
// app.New and let callers substitute providers.
func Execute(ctx context.Context, args []string, stdio IO, version string, appOpts ...func(o *app.Options)) error {
	if stdio.Out == nil {
		stdio.Out = io.Discard
	}
	if stdio.Err == nil {
		stdio.Err = io.Discard
	}

	fs := flag.NewFlagSet("wikiagent", flag.ContinueOnError)
	fs.SetOutput(stdio.Err)
	configPath := fs.String("config", "", "TOML config file")
	fs.Usage = func() {
		_, _ = io.WriteString(stdio.Err, usageText)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	remaining := fs.Args()
	if len(remaining) == 0 {
		fs.Usage()
		return errors.New("command is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	appOpts = append([]func(o *app.Options){func(o *app.Options) { o.Version = version }}, appOpts...)

	command := remaining[0]
	commandArgs := remaining[1:]

	switch command {
	case "serve":
		return runServe(ctx, cfg, commandArgs, appOpts)
	case "ingest":
		return runIngest(ctx, cfg, commandArgs, stdio, appOpts)
	case "ask":
		return runAsk(ctx, cfg, commandArgs, stdio, appOpts)
	case "mcp":
		return runMCP(ctx, cfg, commandArgs, stdio, appOpts)
	case "help":
		fs.Usage()
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func runServe(ctx context.Context, cfg config.Config, args []string, appOpts []func(o *app.Options)) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Server.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, appOpts...)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	if _, err := a.EnsureCorpus(ctx); err != nil {
		// serve without knowledge search; the tool stays hidden while the index is empty
		a.Logger.Error("app.corpus.failed", "error", err.Error())
	}

	go a.Agent.RunJanitor(ctx, cfg.Agent.SessionIdle/4, cfg.Agent.SessionIdle)

	srv := server.New(a.Agent, func(o *server.Options) {
		o.Addr = *addr
		o.Environment = cfg.Environment
		o.CORSOrigins = cfg.Server.CORSOrigins
		o.ReadTimeout = cfg.Server.ReadTimeout
		o.WriteTimeout = cfg.Server.WriteTimeout
		o.MaxRequestBodyBytes = cfg.Server.MaxRequestBodyBytes
		o.Index = a.Retriever
		o.Telemetry = a.Telemetry
		o.Logger = logging.WithComponent(a.Logger, "server")
	})
	return srv.Run(ctx, shutdownGrace)
}

func runIngest(ctx context.Context, cfg config.Config, args []string, stdio IO, appOpts []func(o *app.Options)) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stdio.Err)
	corpus := fs.String("corpus", cfg.Corpus.Path, "file or directory to index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*corpus) == "" {
		return errors.New("ingest requires -corpus or a configured corpus path")
	}

	a, err := app.New(ctx, cfg, appOpts...)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	stats, err := a.Ingest(ctx, *corpus)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdio.Out, "ingested %d documents (%d skipped) into %d chunks in %s\n",
		stats.Documents, stats.Skipped, stats.Chunks, stats.Duration.Round(time.Millisecond))
	return err
}

func runAsk(ctx context.Context, cfg config.Config, args []string, stdio IO, appOpts []func(o *app.Options)) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(stdio.Err)
	question := fs.String("q", "", "question to answer")
	jsonMode := fs.Bool("json", false, "print the full response as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := strings.TrimSpace(*question)
	if q == "" && stdio.In != nil {
		line, err := bufio.NewReader(stdio.In).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		q = strings.TrimSpace(line)
	}
	if q == "" {
		return errors.New("ask requires -q or a question on stdin")
	}

	a, err := app.New(ctx, cfg, appOpts...)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	if _, err := a.EnsureCorpus(ctx); err != nil {
		a.Logger.Error("app.corpus.failed", "error", err.Error())
	}

	resp, err := a.Agent.Chat(ctx, "", q)
	if resp == nil {
		return err
	}

	if *jsonMode {
		enc := json.NewEncoder(stdio.Out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(resp); encErr != nil {
			return encErr
		}
		return err
	}

	if _, werr := fmt.Fprintln(stdio.Out, resp.Answer); werr != nil {
		return werr
	}
	for _, used := range resp.ToolsUsed() {
		_, _ = fmt.Fprintf(stdio.Err, "  tool %s %s\n", used.Name, used.Input)
	}
	return err
}

func runMCP(ctx context.Context, cfg config.Config, args []string, stdio IO, appOpts []func(o *app.Options)) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	fs.SetOutput(stdio.Err)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, appOpts...)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	if _, err := a.EnsureCorpus(ctx); err != nil {
		a.Logger.Error("app.corpus.failed", "error", err.Error())
	}

	srv, err := mcp.New(a.Registry, func(o *mcp.Options) {
		o.ToolTimeout = cfg.Agent.ToolTimeout
		o.Logger = logging.WithComponent(a.Logger, "mcp")
	})
	if err != nil {
		return err
	}
	return srv.Serve(ctx, stdio.In, stdio.Out)
}
