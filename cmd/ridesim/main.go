package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/okian/ridergrid/internal/ridesim"
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		riders    = flag.Int("riders", ridesim.DefaultRiders, "Riders in every snapshot")
		snapshots = flag.Int("snapshots", ridesim.DefaultSnapshots, "Snapshots to push")
		firstID   = flag.Int64("first-id", ridesim.DefaultFirstID, "Id of the first synthetic rider")
		workers   = flag.Int("workers", runtime.NumCPU(), "Concurrent submitters")
		timeout   = flag.Duration("timeout", ridesim.DefaultTimeout, "HTTP request timeout")
		settle    = flag.Duration("settle", ridesim.DefaultSettle, "Time allowed for processing")
		logFile   = flag.String("log", "", "Log file (default: ridesim_TIMESTAMP.log)")
		verbose   = flag.Bool("verbose", false, "Log every failure")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		ridesim.ShowHelp()
		return
	}

	closer, err := ridesim.SetupLogging(*logFile)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, err = ridesim.Run(ctx, &ridesim.Config{
		BaseURL:   *baseURL,
		Riders:    *riders,
		Snapshots: *snapshots,
		FirstID:   *firstID,
		Workers:   *workers,
		Timeout:   *timeout,
		Settle:    *settle,
		Verbose:   *verbose,
	})
	if err != nil {
		_, _ = os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
