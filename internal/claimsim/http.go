package claimsim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body.
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// submitClaims fires the claim storm: every worker pulls (issue, team) pairs
// off a channel and posts them, so each issue sees many racing claimants.
func submitClaims(ctx context.Context, config *Config, claims []ClaimRequest, stats *Stats) error {
	log.Printf("⚔️  Submitting %d claims with %d workers...", len(claims), config.Workers)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/claims"

	// Counters for statistics
	var (
		won       int64
		rejected  int64
		failed    int64
		submitted int64
	)

	// Progress reporting
	var lastReport time.Time
	reportInterval := 1 * time.Second

	// Create worker pool
	claimChan := make(chan ClaimRequest, config.Workers*2)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for claim := range claimChan {
				select {
				case <-ctx.Done():
					return
				default:
					result := submitSingleClaim(ctx, client, url, claim)

					// Update counters
					atomic.AddInt64(&submitted, 1)
					switch result {
					case "won":
						atomic.AddInt64(&won, 1)
					case "rejected":
						atomic.AddInt64(&rejected, 1)
					case "failed":
						atomic.AddInt64(&failed, 1)
					}

					// Progress reporting
					if time.Since(lastReport) >= reportInterval {
						lastReport = time.Now()
						total := atomic.LoadInt64(&submitted)
						w := atomic.LoadInt64(&won)
						rej := atomic.LoadInt64(&rejected)
						fail := atomic.LoadInt64(&failed)

						if config.Verbose {
							log.Printf("📊 Progress: %d/%d submitted (won: %d, rejected: %d, failed: %d)",
								total, len(claims), w, rej, fail)
						} else {
							fmt.Printf("\r⚔️  Submitted: %d/%d (won: %d, rejected: %d, failed: %d)",
								total, len(claims), w, rej, fail)
						}
					}
				}
			}
		}()
	}

	// Send claims to workers
	go func() {
		defer close(claimChan)
		for _, claim := range claims {
			select {
			case <-ctx.Done():
				return
			case claimChan <- claim:
			}
		}
	}()

	// Wait for all workers to complete
	wg.Wait()

	// Final progress report
	if !config.Verbose {
		fmt.Println() // New line after progress indicator
	}

	// Update stats
	stats.ClaimsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.ClaimsWon = int(atomic.LoadInt64(&won))
	stats.ClaimsRejected = int(atomic.LoadInt64(&rejected))
	stats.ClaimsFailed = int(atomic.LoadInt64(&failed))

	log.Printf(`✅ Claim storm completed:
   Won: %d
   Rejected: %d
   Failed: %d
`, stats.ClaimsWon, stats.ClaimsRejected, stats.ClaimsFailed)

	return nil
}

// submitSingleClaim submits a single claim and classifies the outcome.
func submitSingleClaim(ctx context.Context, client *HTTPClient, url string, claim ClaimRequest) string {
	resp, err := client.Post(ctx, url, claim)
	if err != nil {
		return "failed"
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return "failed"
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var ack ClaimResponse
		if err := json.Unmarshal(body, &ack); err == nil && ack.Success {
			return "won"
		}
		return "won" // Assume won for 200 even if parsing fails
	case http.StatusConflict:
		// Lost the race, quota exceeded, or already occupied
		return "rejected"
	default:
		return "failed"
	}
}
