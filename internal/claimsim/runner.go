// Package claimsim stress-tests the claim protocol over HTTP: it creates a
// pool of issues, logs in a batch of teams, fires racing claims from many
// workers, and verifies the final issue list for exactly-once assignment and
// quota compliance.
package claimsim

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/issuearena/issuearena/pkg/logger"
)

// Default delay constants.
const (
	settleDelay   = 2 * time.Second
	statusOK      = 200
	statusCreated = 201
)

// Run executes the complete claim storm test.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting arena claim storm",
		logger.String("baseURL", config.BaseURL),
		logger.Int("issues", config.NumIssues),
		logger.Int("teams", config.NumTeams),
		logger.Int("quota", config.QuotaLimit),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Create the issue pool
	issueIDs, err := createIssues(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("issue creation failed: %w", err)
	}

	// Step 3: Log in the racing teams
	teams, err := loginTeams(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("team login failed: %w", err)
	}

	// Step 4: Build the storm and fire it
	claims := buildClaims(issueIDs, teams)
	if err := submitClaims(ctx, config, claims, stats); err != nil {
		return fmt.Errorf("claim submission failed: %w", err)
	}

	// Step 5: Let in-flight transactions settle
	logger.Get().Info(ctx, "waiting for claims to settle")
	time.Sleep(settleDelay)

	// Step 6: Verify the final state
	if err := verifyResults(ctx, config, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "test completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/healthz"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	// Accept any 200 response as healthy (the service returns Prometheus metrics)
	if resp.StatusCode != statusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// createIssues posts the issue pool with a spread of difficulties.
func createIssues(ctx context.Context, config *Config, stats *Stats) ([]string, error) {
	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/issues"
	difficulties := []string{"easy", "medium", "hard"}

	ids := make([]string, 0, config.NumIssues)
	for i := 0; i < config.NumIssues; i++ {
		req := map[string]any{
			"title": "storm issue " + strconv.Itoa(i),
			"tags":  []string{difficulties[i%len(difficulties)]},
		}
		resp, err := client.Post(ctx, url, req)
		if err != nil {
			return nil, fmt.Errorf("failed to create issue %d: %w", i, err)
		}
		body, err := readResponseBody(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to read issue %d response: %w", i, err)
		}
		if resp.StatusCode != statusCreated {
			return nil, fmt.Errorf("issue %d creation failed with status: %d", i, resp.StatusCode)
		}
		var issue Issue
		if err := json.Unmarshal(body, &issue); err != nil {
			return nil, fmt.Errorf("failed to parse issue %d: %w", i, err)
		}
		ids = append(ids, issue.ID)
	}

	stats.IssuesCreated = len(ids)
	logger.Get().Info(ctx, "issue pool created", logger.Int("issues", len(ids)))
	return ids, nil
}

// loginTeams opens a session for each racing team.
func loginTeams(ctx context.Context, config *Config, stats *Stats) ([]string, error) {
	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/teams/login"

	teams := make([]string, 0, config.NumTeams)
	for i := 0; i < config.NumTeams; i++ {
		team := "team-" + strconv.Itoa(i)
		resp, err := client.Post(ctx, url, map[string]string{"team": team})
		if err != nil {
			return nil, fmt.Errorf("failed to log in %s: %w", team, err)
		}
		if _, err := readResponseBody(resp); err != nil {
			return nil, fmt.Errorf("failed to read login response for %s: %w", team, err)
		}
		if resp.StatusCode != statusOK {
			return nil, fmt.Errorf("login for %s failed with status: %d", team, resp.StatusCode)
		}
		teams = append(teams, team)
	}

	stats.TeamsLoggedIn = len(teams)
	logger.Get().Info(ctx, "teams logged in", logger.Int("teams", len(teams)))
	return teams, nil
}

// buildClaims pairs every issue with several racing teams and shuffles the
// result so workers interleave claims across issues.
func buildClaims(issueIDs, teams []string) []ClaimRequest {
	claims := make([]ClaimRequest, 0, len(issueIDs)*len(teams))
	for _, id := range issueIDs {
		for _, team := range teams {
			claims = append(claims, ClaimRequest{IssueID: id, Team: team})
		}
	}
	rand.Shuffle(len(claims), func(i, j int) {
		claims[i], claims[j] = claims[j], claims[i]
	})
	return claims
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var winRate, claimsPerSecond float64

	if stats.ClaimsSubmitted > 0 {
		winRate = float64(stats.ClaimsWon) / float64(stats.ClaimsSubmitted) * 100
	}

	if stats.Duration > 0 {
		claimsPerSecond = float64(stats.ClaimsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("issuesCreated", stats.IssuesCreated),
		logger.Int("teamsLoggedIn", stats.TeamsLoggedIn),
		logger.Int("claimsSubmitted", stats.ClaimsSubmitted),
		logger.Int("claimsWon", stats.ClaimsWon),
		logger.Int("claimsRejected", stats.ClaimsRejected),
		logger.Int("claimsFailed", stats.ClaimsFailed),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("winRate", winRate),
		logger.Float64("claimsPerSecond", claimsPerSecond))
}
