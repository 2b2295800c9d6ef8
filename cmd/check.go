package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/lfzhong/excel-agent/internal/transport"
)

const checkUsage = `Usage: excel-agent check [options]

Probes the backend's health endpoint and reports the result.
`

func runCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf clientFlags
	cf.register(fs)
	timeout := fs.Duration("timeout", 5*time.Second, "Probe timeout")
	fs.Usage = func() {
		fmt.Fprint(stderr, checkUsage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := cf.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := transport.Health(ctx, nil, cfg.ServerURL); err != nil {
		fmt.Fprintf(stdout, "Backend %s: UNHEALTHY (%v)\n", cfg.ServerURL, err)
		return 1
	}
	fmt.Fprintf(stdout, "Backend %s: healthy\n", cfg.ServerURL)
	return 0
}
