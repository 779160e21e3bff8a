package claimsim

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/issuearena/issuearena/pkg/logger"
)

// verifyResults checks the final issue list for the two storm invariants:
// every occupied issue has exactly one assignee, and no team holds more
// than the quota limit.
func verifyResults(ctx context.Context, config *Config, stats *Stats) error {
	logger.Get().Info(ctx, "verifying final state")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/issues"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to fetch issues: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read issues response: %w", err)
	}
	if resp.StatusCode != statusOK {
		return fmt.Errorf("issue list failed with status: %d", resp.StatusCode)
	}

	var issues []Issue
	if err := json.Unmarshal(body, &issues); err != nil {
		return fmt.Errorf("failed to parse issues: %w", err)
	}

	occupied := 0
	perTeam := make(map[string]int)
	var violations []string

	for _, issue := range issues {
		switch issue.Status {
		case "occupied":
			occupied++
			if issue.AssignedTo == "" {
				violations = append(violations, "occupied issue "+issue.ID+" has no assignee")
				continue
			}
			perTeam[issue.AssignedTo]++
		case "open":
			if issue.AssignedTo != "" {
				violations = append(violations, "open issue "+issue.ID+" still assigned to "+issue.AssignedTo)
			}
		}
	}

	for team, count := range perTeam {
		if count > config.QuotaLimit {
			violations = append(violations,
				fmt.Sprintf("team %s holds %d issues, quota is %d", team, count, config.QuotaLimit))
		}
	}

	// Exactly-once: the store can only hold one assignee per issue, so the
	// cross-check is won claims vs occupied issues. Occupied may run lower
	// when the sweeper released an expired claim mid-test, never higher.
	if occupied > stats.ClaimsWon {
		violations = append(violations,
			fmt.Sprintf("%d issues occupied but only %d claims won", occupied, stats.ClaimsWon))
	}

	if len(violations) > 0 {
		for _, v := range violations {
			log.Printf("❌ Violation: %s", v)
		}
		return fmt.Errorf("verification failed with %d violations", len(violations))
	}

	log.Printf(`✅ Verification passed:
   Occupied issues: %d
   Teams holding issues: %d
   Quota limit respected: yes
`, occupied, len(perTeam))

	return nil
}
