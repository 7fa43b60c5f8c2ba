package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tradeflow/internal/cli"
	"tradeflow/internal/output"
)

func main() {
	var (
		apiBase   = flag.String("api-base", "", "Trade server base URL (env: TRADECTL_API_BASE)")
		token     = flag.String("token", "", "Bearer token (env: TRADECTL_TOKEN)")
		outFmt    = flag.String("output", "json", "Output format: json|text")
		moderator = flag.Bool("moderator", false, "Act in moderator mode")
		verbose   = flag.Bool("verbose", false, "Log operation steps to stderr")
	)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		cli.Usage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := cli.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBase = strings.TrimRight(strings.TrimSpace(*apiBase), "/")
	}
	format, err := output.ParseFormat(*outFmt)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cli.Context{
		APIBase:   cfg.APIBase,
		Key:       strings.TrimSpace(os.Getenv("TRADECTL_KEY")),
		Moderator: *moderator,
		Verbose:   *verbose,
		Output:    format,
		Base:      ctx,
	}

	// Token resolution order:
	// 1) flag --token
	// 2) env TRADECTL_TOKEN
	// 3) credentials file, renewed on demand
	if strings.TrimSpace(*token) != "" {
		c.Token = strings.TrimSpace(*token)
	} else if v := strings.TrimSpace(os.Getenv("TRADECTL_TOKEN")); v != "" {
		c.Token = v
	}

	if err := cli.Dispatch(c, args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		stop()
		os.Exit(1)
	}
}
