package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"kernelretry/pkg/completion"
	"kernelretry/pkg/logger"
	"kernelretry/pkg/retry"
	"kernelretry/pkg/transport"
)

var (
	numClients     = flag.Int("clients", 20, "Number of concurrent clients")
	duration       = flag.Duration("duration", 30*time.Second, "Test duration")
	reportInterval = flag.Duration("report", 1*time.Second, "Report interval")
	baseURL        = flag.String("backend", "http://localhost:8080/v1", "Backend base URL")
	apiKey         = flag.String("api-key", "", "API key sent to the backend")
	strategyName   = flag.String("strategy", "retry-after", "Backoff strategy: none, constant, exponential, retry-after")
	maxAttempts    = flag.Int("attempts", 3, "Maximum attempts per request")
	baseDelay      = flag.Duration("delay", 500*time.Millisecond, "Base backoff delay")
	maxDelay       = flag.Duration("max-delay", 10*time.Second, "Backoff cap")
)

type stats struct {
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	attempts        atomic.Int64
	totalLatency    atomic.Int64
}

// countingTransport counts every attempt that reaches the network
type countingTransport struct {
	base  http.RoundTripper
	stats *stats
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.stats.attempts.Add(1)
	return c.base.RoundTrip(req)
}

func main() {
	flag.Parse()

	log := logger.NewLogger(logger.Config{
		Level:  "error",
		Pretty: true,
	})

	strategy, err := retry.ParseStrategy(*strategyName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	stats := &stats{}

	exec, err := retry.NewExecutor(retry.Config{
		MaxAttempts:          *maxAttempts,
		Strategy:             strategy,
		BaseDelay:            *baseDelay,
		MaxDelay:             *maxDelay,
		RetryableStatusCodes: []int{http.StatusTooManyRequests, http.StatusServiceUnavailable},
	}, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	httpClient := &http.Client{
		Transport: transport.New(&countingTransport{base: http.DefaultTransport, stats: stats}, exec),
		Timeout:   time.Minute,
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	// Create a goroutine to report stats
	go reportStats(ctx, stats)

	fmt.Printf("Starting burst with %d clients for %v (strategy %s, %d attempts)\n",
		*numClients, *duration, strategy, *maxAttempts)

	var g errgroup.Group
	for i := 0; i < *numClients; i++ {
		cl := completion.NewClient(completion.Config{
			Name:    fmt.Sprintf("client-%d", i),
			BaseURL: *baseURL,
			APIKey:  *apiKey,
			Model:   "mock-gpt",
		}, httpClient, log, nil)

		g.Go(func() error {
			runClient(ctx, cl, stats)
			return nil
		})
	}

	// Wait for all clients to finish
	_ = g.Wait()

	// Print final stats
	printFinalStats(stats, *duration)
}

func runClient(ctx context.Context, cl *completion.Client, stats *stats) {
	for ctx.Err() == nil {
		startTime := time.Now()

		_, err := cl.Complete(ctx, "echo: ping", "")
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			stats.failedRequests.Add(1)
		} else {
			stats.successRequests.Add(1)
			stats.totalLatency.Add(time.Since(startTime).Milliseconds())
		}

		// Small delay before sending next request
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func reportStats(ctx context.Context, stats *stats) {
	ticker := time.NewTicker(*reportInterval)
	defer ticker.Stop()

	var lastSuccess, lastFailed int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSuccess := stats.successRequests.Load()
			currentFailed := stats.failedRequests.Load()

			successDelta := currentSuccess - lastSuccess
			failedDelta := currentFailed - lastFailed

			rps := float64(successDelta+failedDelta) / reportInterval.Seconds()

			fmt.Printf("\rRPS: %.2f | Success: %d (%d/s) | Failed: %d (%d/s) | Attempts: %d | Avg Latency: %.2fms",
				rps,
				currentSuccess,
				successDelta,
				currentFailed,
				failedDelta,
				stats.attempts.Load(),
				averageLatency(stats),
			)

			lastSuccess = currentSuccess
			lastFailed = currentFailed
		}
	}
}

func averageLatency(stats *stats) float64 {
	success := stats.successRequests.Load()
	if success == 0 {
		return 0
	}
	return float64(stats.totalLatency.Load()) / float64(success)
}

func printFinalStats(stats *stats, duration time.Duration) {
	totalRequests := stats.successRequests.Load() + stats.failedRequests.Load()
	successRate := float64(0)
	attemptsPerRequest := float64(0)
	if totalRequests > 0 {
		successRate = float64(stats.successRequests.Load()) / float64(totalRequests) * 100
		attemptsPerRequest = float64(stats.attempts.Load()) / float64(totalRequests)
	}
	rps := float64(totalRequests) / duration.Seconds()

	fmt.Printf("\n\nFinal Statistics:\n")
	fmt.Printf("Total Requests: %d\n", totalRequests)
	fmt.Printf("Successful Requests: %d\n", stats.successRequests.Load())
	fmt.Printf("Failed Requests: %d\n", stats.failedRequests.Load())
	fmt.Printf("Success Rate: %.2f%%\n", successRate)
	fmt.Printf("Attempts per Request: %.2f\n", attemptsPerRequest)
	fmt.Printf("Average Latency: %.2fms\n", averageLatency(stats))
	fmt.Printf("Average RPS: %.2f\n", rps)
}
