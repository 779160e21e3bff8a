package claimsim

import "time"

// Config holds configuration for the claim storm test.
type Config struct {
	BaseURL    string        // Base URL of the service
	NumIssues  int           // Number of issues to create
	NumTeams   int           // Number of teams to race
	QuotaLimit int           // Per-team occupancy limit the service enforces
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	LogFile    string        // Log file for test output
	Verbose    bool          // Enable verbose logging
}

// Issue mirrors the issue shape returned by the service.
type Issue struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Tags       []string `json:"tags"`
	Status     string   `json:"status"`
	AssignedTo string   `json:"assigned_to"`
}

// ClaimRequest mirrors the POST /claims schema.
type ClaimRequest struct {
	IssueID string `json:"issue_id"`
	Team    string `json:"team"`
}

// ClaimResponse mirrors the response from a claim submission.
type ClaimResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse mirrors the service error shape.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stats holds test statistics.
type Stats struct {
	IssuesCreated   int
	TeamsLoggedIn   int
	ClaimsSubmitted int
	ClaimsWon       int
	ClaimsRejected  int
	ClaimsFailed    int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
