package ridesim

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/ridergrid/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging logs to stdout and to logFile. An empty logFile gets a
// timestamped name. The returned closer flushes the file.
func SetupLogging(logFile string) (io.Closer, error) {
	if logFile == "" {
		logFile = "ridesim_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return file, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`ridergrid ride simulator
========================

Pushes synthetic telemetry to a running service and checks that the
live maxima show up in the nearby comparison table.

Usage:
  go run ./cmd/ridesim [options]

Options:
  -url string        Base URL of the service (default "http://localhost:9080")
  -riders int        Riders in every snapshot (default 200)
  -snapshots int     Snapshots to push (default 60)
  -first-id int      Id of the first synthetic rider (default 900000)
  -workers int       Concurrent submitters (default CPU cores)
  -timeout duration  HTTP request timeout (default 10s)
  -settle duration   Time allowed for processing (default 30s)
  -log string        Log file (default ridesim_TIMESTAMP.log)
  -verbose           Log every failure
  -help              Show this help message
`)
}
