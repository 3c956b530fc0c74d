package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"catalogwatch/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath string
		daemon  bool
	)
	flag.StringVar(&cfgPath, "config", "./catalogwatch.json", "path to config (json or yaml)")
	flag.BoolVar(&daemon, "daemon", false, "run on the configured schedule until interrupted")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}
	defer a.Close()

	if daemon {
		if err := a.Serve(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			return 1
		}
		return 0
	}

	if _, err := a.RunOnce(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "run failed:", err)
		return 1
	}
	return 0
}
