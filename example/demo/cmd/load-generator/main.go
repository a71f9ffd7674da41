package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pkleindienst/library-lending-go/example/demo/config"
)

const (
	defaultRate            = 30
	defaultBaseURL         = "http://localhost:8080"
	defaultInitialTitles   = 200
	defaultInitialMembers  = 50
	defaultCopiesPerTitle  = 3
	defaultScenarioWeights = "60,30,10" // issue, return, renew
)

// Config holds the load generator settings.
type Config struct {
	Rate            int
	BaseURL         string
	PostgresDSN     string
	InitialTitles   int
	InitialMembers  int
	CopiesPerTitle  int
	ScenarioWeights []int
}

func main() {
	cfg := parseFlags()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	memberIDs, titleIDs, seedErr := seedFixtures(ctx, cfg)
	if seedErr != nil {
		log.Fatalf("Failed to seed fixtures: %v", seedErr)
	}

	loadGen := NewLoadGenerator(cfg, memberIDs, titleIDs)

	errChan := make(chan error, 1)
	go func() {
		if err := loadGen.Start(ctx); err != nil {
			errChan <- fmt.Errorf("load generator failed: %w", err)
		}
	}()

	log.Printf("Lending load generator started")
	log.Printf("Configuration: rate=%d req/s, base_url=%s, titles=%d, members=%d, scenario_weights=%v",
		cfg.Rate, cfg.BaseURL, cfg.InitialTitles, cfg.InitialMembers, cfg.ScenarioWeights)
	log.Printf("Press Ctrl+C to stop...")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	case err := <-errChan:
		log.Printf("Error occurred: %v", err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := loadGen.Stop(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Printf("Load generator stopped")
}

func parseFlags() Config {
	var (
		rate            = flag.Int("rate", defaultRate, "Requests per second")
		baseURL         = flag.String("base-url", defaultBaseURL, "Base URL of the lendingd HTTP API")
		dsn             = flag.String("postgres-dsn", "", "Postgres DSN for seeding fixtures (defaults to "+config.EnvPostgresDSN+" or the demo default)")
		initialTitles   = flag.Int("initial-titles", defaultInitialTitles, "Number of book titles to seed")
		initialMembers  = flag.Int("initial-members", defaultInitialMembers, "Number of members to seed")
		copiesPerTitle  = flag.Int("copies-per-title", defaultCopiesPerTitle, "Copies per seeded title")
		scenarioWeights = flag.String("scenario-weights", defaultScenarioWeights, "Comma-separated weights for issue,return,renew scenarios")
	)

	flag.Parse()

	weights, err := parseScenarioWeights(*scenarioWeights)
	if err != nil {
		log.Fatalf("Invalid scenario weights '%s': %v", *scenarioWeights, err)
	}

	resolvedDSN := *dsn
	if resolvedDSN == "" {
		defaults, loadErr := config.Load("")
		if loadErr != nil {
			log.Fatalf("Failed to resolve default DSN: %v", loadErr)
		}

		resolvedDSN = defaults.PostgresDSN
	}

	return Config{
		Rate:            *rate,
		BaseURL:         strings.TrimRight(*baseURL, "/"),
		PostgresDSN:     resolvedDSN,
		InitialTitles:   *initialTitles,
		InitialMembers:  *initialMembers,
		CopiesPerTitle:  *copiesPerTitle,
		ScenarioWeights: weights,
	}
}

func parseScenarioWeights(weightsStr string) ([]int, error) {
	parts := strings.Split(weightsStr, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected 3 weights, got %d", len(parts))
	}

	weights := make([]int, len(parts))
	total := 0

	for i, part := range parts {
		weight, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid weight '%s': %w", part, err)
		}
		if weight < 0 || weight > 100 {
			return nil, fmt.Errorf("weight %d out of range [0, 100]", weight)
		}

		weights[i] = weight
		total += weight
	}

	if total != 100 {
		return nil, fmt.Errorf("weights must sum to 100, got %d", total)
	}

	return weights, nil
}

// seedFixtures inserts a deterministic population of members and titles
// directly into the database so the generated traffic hits real records.
// Re-running is safe: inserts are idempotent on the deterministic IDs.
func seedFixtures(ctx context.Context, cfg Config) ([]uuid.UUID, []uuid.UUID, error) {
	pool, poolErr := pgxpool.New(ctx, cfg.PostgresDSN)
	if poolErr != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", poolErr)
	}
	defer pool.Close()

	if pingErr := pool.Ping(ctx); pingErr != nil {
		return nil, nil, fmt.Errorf("pinging postgres: %w", pingErr)
	}

	memberIDs := make([]uuid.UUID, 0, cfg.InitialMembers)

	for memberNum := range cfg.InitialMembers {
		memberID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("member-%d", memberNum)))
		memberIDs = append(memberIDs, memberID)

		_, insertErr := pool.Exec(ctx,
			`INSERT INTO members (id, name, standing) VALUES ($1, $2, 'ACTIVE') ON CONFLICT (id) DO NOTHING`,
			memberID, fmt.Sprintf("Load Test Member %d", memberNum))
		if insertErr != nil {
			return nil, nil, fmt.Errorf("seeding member: %w", insertErr)
		}
	}

	titleIDs := make([]uuid.UUID, 0, cfg.InitialTitles)

	for titleNum := range cfg.InitialTitles {
		titleID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("title-%d", titleNum)))
		titleIDs = append(titleIDs, titleID)

		_, insertErr := pool.Exec(ctx,
			`INSERT INTO book_titles (id, title, author, total_copies, available_copies)
			 VALUES ($1, $2, $3, $4, $4) ON CONFLICT (id) DO NOTHING`,
			titleID, fmt.Sprintf("Load Test Title %d", titleNum), "Test Author", cfg.CopiesPerTitle)
		if insertErr != nil {
			return nil, nil, fmt.Errorf("seeding title: %w", insertErr)
		}
	}

	log.Printf("Seeded %d members and %d titles (%d copies each)",
		len(memberIDs), len(titleIDs), cfg.CopiesPerTitle)

	return memberIDs, titleIDs, nil
}
