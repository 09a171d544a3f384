// Replay tool for checking MerchantRisk against a labelled merchant portfolio.
//
// Usage:
//
//	go run ./cmd/replay -csv /path/to/portfolio.csv -url http://localhost:8080
//
// This tool:
//  1. Reads merchant profiles with an expected_level column
//  2. Sends each profile to POST /evaluate (dry run, nothing is stored)
//  3. Compares the assessed level with the expected one
//  4. Prints a level confusion matrix, agreement and latency
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	csvPath := flag.String("csv", "", "Path to the labelled portfolio CSV")
	baseURL := flag.String("url", "http://localhost:8080", "MerchantRisk base URL")
	limit := flag.Int("limit", 0, "Maximum profiles to replay (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each disagreement")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: replay -csv /path/to/portfolio.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 10 * time.Second}
	if err := checkHealth(ctx, client, *baseURL); err != nil {
		fmt.Printf("ERROR: MerchantRisk not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	cases, skipped, err := readCases(f, *limit)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d profiles from %s (%d rows skipped)\n", len(cases), *csvPath, skipped)

	r := &Runner{Client: client, BaseURL: *baseURL, Workers: *workers}
	if *verbose {
		r.OnResult = func(c Case, got string, err error) {
			switch {
			case err != nil:
				fmt.Printf("ERROR  %-16s %v\n", c.Profile.MerchantID, err)
			case got != c.Expected:
				fmt.Printf("DIFF   %-16s expected %-8s got %s\n", c.Profile.MerchantID, c.Expected, got)
			}
		}
	}

	start := time.Now()
	report, err := r.Run(ctx, cases)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	report.Print(os.Stdout, time.Since(start))
}

func checkHealth(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
