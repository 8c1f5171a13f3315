// Command smoke drives a running payment mock through the end-to-end
// scenarios and exits non-zero when one fails.
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/noah-isme/payment-mock/client"
	"github.com/noah-isme/payment-mock/internal/obs"
)

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("base-url", envOrDefault("MOCK_BASE_URL", "http://localhost:3001"), "mock base URL")
	apiKey := flag.String("api-key", envOrDefault("API_KEY", client.DefaultAPIKey), "bearer key")
	interval := flag.Duration("poll-interval", 300*time.Millisecond, "status poll interval")
	timeout := flag.Duration("poll-timeout", 60*time.Second, "status poll timeout")
	only := flag.String("only", "", "comma-separated scenario names to run")
	flag.Parse()

	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "console"), envOrDefault("OBS_LOG_LEVEL", "info"))

	r := runner{
		c:        client.New(*baseURL, client.WithAPIKey(*apiKey), client.WithRetries(3, 100*time.Millisecond)),
		interval: *interval,
		timeout:  *timeout,
	}

	failed := 0
	for _, sc := range selectScenarios(*only) {
		start := time.Now()
		if err := sc.run(context.Background(), r); err != nil {
			failed++
			logger.Error().Str("scenario", sc.name).Err(err).Msg("FAIL")
			continue
		}
		logger.Info().Str("scenario", sc.name).Dur("took", time.Since(start)).Msg("ok")
	}
	if failed > 0 {
		logger.Error().Int("failed", failed).Msg("smoke run failed")
		os.Exit(1)
	}
}

func selectScenarios(only string) []scenario {
	if strings.TrimSpace(only) == "" {
		return scenarios
	}
	wanted := map[string]bool{}
	for _, name := range strings.Split(only, ",") {
		wanted[strings.TrimSpace(name)] = true
	}
	var out []scenario
	for _, sc := range scenarios {
		if wanted[sc.name] {
			out = append(out, sc)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
