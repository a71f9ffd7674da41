// Command load-generator drives the lendingd HTTP API with configurable
// request rates and weighted issue/return/renew scenarios, so the metrics and
// tracing wiring can be exercised under realistic contention.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const requestTimeout = 5 * time.Second

// LoadGenerator orchestrates load generation against the lending HTTP API.
// Issued loans are tracked in memory so return and renew scenarios can target
// loans that actually exist; contention on the seeded titles produces the
// realistic mix of successes and 409 rejections.
type LoadGenerator struct {
	config    Config
	client    *http.Client
	memberIDs []uuid.UUID
	titleIDs  []uuid.UUID

	ticker   *time.Ticker
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu           sync.RWMutex
	openLoanIDs  []uuid.UUID
	requestCount int64
	rejectCount  int64
	errorCount   int64
	startTime    time.Time
}

// NewLoadGenerator creates a load generator targeting cfg.BaseURL with the
// seeded member and title populations.
func NewLoadGenerator(cfg Config, memberIDs []uuid.UUID, titleIDs []uuid.UUID) *LoadGenerator {
	return &LoadGenerator{
		config:    cfg,
		client:    &http.Client{Timeout: requestTimeout},
		memberIDs: memberIDs,
		titleIDs:  titleIDs,
		stopChan:  make(chan struct{}),
	}
}

// Start begins load generation with the configured request rate.
// It runs until the context is cancelled or Stop() is called.
func (lg *LoadGenerator) Start(ctx context.Context) error {
	lg.mu.Lock()
	lg.startTime = time.Now()
	lg.requestCount = 0
	lg.rejectCount = 0
	lg.errorCount = 0
	lg.mu.Unlock()

	interval := time.Second / time.Duration(lg.config.Rate)
	lg.ticker = time.NewTicker(interval)
	defer lg.ticker.Stop()

	log.Printf("Load generator starting with %d requests/second (interval: %v), initial goroutines: %d",
		lg.config.Rate, interval, runtime.NumGoroutine())

	lg.wg.Add(1)
	go lg.statsReporter(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Load generator stopping due to context cancellation")
			return ctx.Err()

		case <-lg.stopChan:
			log.Printf("Load generator stopping due to stop signal")
			return nil

		case <-lg.ticker.C:
			lg.wg.Add(1)
			go lg.executeScenario(ctx)
		}
	}
}

// Stop gracefully shuts down the load generator.
func (lg *LoadGenerator) Stop(ctx context.Context) error {
	close(lg.stopChan)

	done := make(chan struct{})
	go func() {
		lg.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lg.logStats("Final Stats")
		return nil
	case <-ctx.Done():
		lg.logStats("Final Stats")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

func (lg *LoadGenerator) executeScenario(ctx context.Context) {
	defer lg.wg.Done()

	opCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var (
		rejected bool
		err      error
	)

	switch lg.selectScenario() {
	case "issue":
		rejected, err = lg.runIssueScenario(opCtx)
	case "return":
		rejected, err = lg.runReturnScenario(opCtx)
	default:
		rejected, err = lg.runRenewScenario(opCtx)
	}

	lg.mu.Lock()
	lg.requestCount++
	if rejected {
		lg.rejectCount++
	}
	if err != nil {
		lg.errorCount++
		log.Printf("Scenario error: %v", err)
	}
	lg.mu.Unlock()
}

// selectScenario chooses a scenario type based on configured weights.
func (lg *LoadGenerator) selectScenario() string {
	r := rand.Intn(100) //nolint:gosec // Test code - weak random is acceptable

	// Apply weights: [issue, return, renew]
	// Example: [60, 30, 10] -> issue: 0-59, return: 60-89, renew: 90-99
	if r < lg.config.ScenarioWeights[0] {
		return "issue"
	}
	if r < lg.config.ScenarioWeights[0]+lg.config.ScenarioWeights[1] {
		return "return"
	}

	return "renew"
}

func (lg *LoadGenerator) runIssueScenario(ctx context.Context) (rejected bool, err error) {
	memberID := lg.memberIDs[rand.Intn(len(lg.memberIDs))] //nolint:gosec // Test code - weak random is acceptable
	titleID := lg.titleIDs[rand.Intn(len(lg.titleIDs))]    //nolint:gosec // Test code - weak random is acceptable

	body, marshalErr := json.Marshal(map[string]string{
		"member_id": memberID.String(),
		"title_id":  titleID.String(),
	})
	if marshalErr != nil {
		return false, marshalErr
	}

	status, payload, postErr := lg.post(ctx, "/loans", body)
	if postErr != nil {
		return false, postErr
	}

	switch status {
	case http.StatusCreated:
		var created struct {
			LoanID string `json:"loan_id"`
		}
		if decodeErr := json.Unmarshal(payload, &created); decodeErr != nil {
			return false, decodeErr
		}

		loanID, parseErr := uuid.Parse(created.LoanID)
		if parseErr != nil {
			return false, parseErr
		}

		lg.trackLoan(loanID)

		return false, nil

	case http.StatusConflict:
		// No copies available or the member already holds this title.
		return true, nil

	default:
		return false, fmt.Errorf("issue returned unexpected status %d", status)
	}
}

func (lg *LoadGenerator) runReturnScenario(ctx context.Context) (rejected bool, err error) {
	loanID, ok := lg.takeLoan()
	if !ok {
		// Nothing issued yet, fall back to generating an issue instead.
		return lg.runIssueScenario(ctx)
	}

	status, _, postErr := lg.post(ctx, "/loans/"+loanID.String()+"/return", nil)
	if postErr != nil {
		return false, postErr
	}

	switch status {
	case http.StatusOK:
		return false, nil
	case http.StatusConflict, http.StatusNotFound:
		return true, nil
	default:
		return false, fmt.Errorf("return returned unexpected status %d", status)
	}
}

func (lg *LoadGenerator) runRenewScenario(ctx context.Context) (rejected bool, err error) {
	loanID, ok := lg.peekLoan()
	if !ok {
		return lg.runIssueScenario(ctx)
	}

	status, _, postErr := lg.post(ctx, "/loans/"+loanID.String()+"/renew", nil)
	if postErr != nil {
		return false, postErr
	}

	switch status {
	case http.StatusOK:
		return false, nil
	case http.StatusConflict, http.StatusNotFound:
		return true, nil
	default:
		return false, fmt.Errorf("renew returned unexpected status %d", status)
	}
}

func (lg *LoadGenerator) post(ctx context.Context, path string, body []byte) (int, []byte, error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, lg.config.BaseURL+path, bytes.NewReader(body))
	if reqErr != nil {
		return 0, nil, reqErr
	}
	req.Header.Set("Content-Type", "application/json")

	resp, doErr := lg.client.Do(req)
	if doErr != nil {
		return 0, nil, doErr
	}
	defer func() { _ = resp.Body.Close() }()

	payload, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return resp.StatusCode, nil, readErr
	}

	return resp.StatusCode, payload, nil
}

func (lg *LoadGenerator) trackLoan(loanID uuid.UUID) {
	lg.mu.Lock()
	lg.openLoanIDs = append(lg.openLoanIDs, loanID)
	lg.mu.Unlock()
}

// takeLoan removes and returns a random tracked loan.
func (lg *LoadGenerator) takeLoan() (uuid.UUID, bool) {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	if len(lg.openLoanIDs) == 0 {
		return uuid.Nil, false
	}

	idx := rand.Intn(len(lg.openLoanIDs)) //nolint:gosec // Test code - weak random is acceptable
	loanID := lg.openLoanIDs[idx]
	lg.openLoanIDs[idx] = lg.openLoanIDs[len(lg.openLoanIDs)-1]
	lg.openLoanIDs = lg.openLoanIDs[:len(lg.openLoanIDs)-1]

	return loanID, true
}

// peekLoan returns a random tracked loan without removing it.
func (lg *LoadGenerator) peekLoan() (uuid.UUID, bool) {
	lg.mu.RLock()
	defer lg.mu.RUnlock()

	if len(lg.openLoanIDs) == 0 {
		return uuid.Nil, false
	}

	return lg.openLoanIDs[rand.Intn(len(lg.openLoanIDs))], true //nolint:gosec // Test code - weak random is acceptable
}

// statsReporter logs throughput statistics periodically.
func (lg *LoadGenerator) statsReporter(ctx context.Context) {
	defer lg.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-lg.stopChan:
			return
		case <-ticker.C:
			lg.logStats("Stats")
		}
	}
}

func (lg *LoadGenerator) logStats(prefix string) {
	lg.mu.RLock()
	duration := time.Since(lg.startTime)
	requests := lg.requestCount
	rejects := lg.rejectCount
	errors := lg.errorCount
	openLoans := len(lg.openLoanIDs)
	lg.mu.RUnlock()

	if duration <= 0 || requests == 0 {
		return
	}

	rps := float64(requests) / duration.Seconds()
	rejectRate := float64(rejects) / float64(requests) * 100
	errorRate := float64(errors) / float64(requests) * 100

	log.Printf("%s: %d requests in %v (%.1f req/s), %d rejections (%.1f%%), %d errors (%.1f%%), %d open loans, %d goroutines",
		prefix, requests, duration.Truncate(time.Second), rps,
		rejects, rejectRate, errors, errorRate, openLoans, runtime.NumGoroutine())
}
