package claimsim

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/issuearena/issuearena/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "claim_test_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the claim test tool.
func ShowHelp() {
	os.Stdout.WriteString(`Arena Claim Storm Tool
======================

A concurrent tool for stress-testing the issue claim protocol: many teams
race for the same pool of issues and the final state is verified for
exactly-once assignment and quota compliance.

Usage:
  go run cmd/test-claims/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -issues int
        Number of issues to create (default 100)
  -teams int
        Number of racing teams (default 20)
  -quota int
        Per-team occupancy limit the service enforces (default 3)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -log string
        Log file for test output (default: claim_test_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Storm with default settings
  go run cmd/test-claims/main.go

  # Larger storm against a remote instance
  go run cmd/test-claims/main.go -issues 1000 -teams 50 -url http://localhost:8080
`)
}
