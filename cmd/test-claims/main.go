package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/issuearena/issuearena/internal/claimsim"
)

// Default configuration constants.
const (
	defaultNumIssues   = 100
	defaultNumTeams    = 20
	defaultQuotaLimit  = 3
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the service")
		issues  = flag.Int("issues", defaultNumIssues, "Number of issues to create")
		teams   = flag.Int("teams", defaultNumTeams, "Number of racing teams")
		quota   = flag.Int("quota", defaultQuotaLimit, "Per-team occupancy limit the service enforces")
		workers = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile = flag.String("log", "", "Log file for test output (default: claim_test_TIMESTAMP.log)")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		claimsim.ShowHelp()
		return
	}

	// Setup logging
	if err := claimsim.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	// Create test configuration
	config := &claimsim.Config{
		BaseURL:    *baseURL,
		NumIssues:  *issues,
		NumTeams:   *teams,
		QuotaLimit: *quota,
		Workers:    *workers,
		Timeout:    *timeout,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	// Run the test
	if err := claimsim.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		return
	}
}
